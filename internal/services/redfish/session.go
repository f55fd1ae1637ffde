// Package redfish provides an authenticated session to a Redfish-compatible
// out-of-band management controller.
package redfish

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fgeck/ilohelper/internal/models"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const (
	sessionsPath = "/redfish/v1/SessionService/Sessions/"

	authTokenHeader = "X-Auth-Token"

	// logout runs on a fresh context so it still happens after the caller's
	// context was canceled.
	logoutTimeout = 30 * time.Second
)

// Service defines the operations available on an authenticated session.
type Service interface {
	Temperatures(ctx context.Context) (*models.TemperatureResult, error)
	Status(ctx context.Context, opts models.StatusOptions) (*models.StatusResult, error)
	PowerOn(ctx context.Context) (*models.PowerActionResult, error)
	PowerOff(ctx context.Context) (*models.PowerActionResult, error)
	Close() error
}

// State is the lifecycle state of a session.
type State int

// Session lifecycle states.
const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StatusError reports a controller response outside the 2xx range.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s returned status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Session implements Service against a single controller.
type Session struct {
	cfg     models.ControllerConfig
	baseURL string

	// client serves GETs and retries transient failures; actionClient serves
	// POST/DELETE and never retries.
	client       *retryablehttp.Client
	actionClient *retryablehttp.Client
	logger       zerolog.Logger

	state      State
	token      string
	sessionURI string
}

// Open logs into the controller and returns an authenticated session.
func Open(ctx context.Context, logger zerolog.Logger, cfg models.ControllerConfig) (*Session, error) {
	return OpenWithHTTPClient(ctx, logger, cfg, newHTTPClient(cfg))
}

// OpenWithHTTPClient logs in using a custom HTTP client (for testing).
func OpenWithHTTPClient(ctx context.Context, logger zerolog.Logger, cfg models.ControllerConfig, httpClient *http.Client) (*Session, error) {
	s := &Session{
		cfg:          cfg,
		baseURL:      baseURL(cfg.Address),
		client:       newRetryableClient(httpClient, cfg.Retries, logger),
		actionClient: newRetryableClient(httpClient, 0, logger),
		logger:       logger,
		state:        StateUnauthenticated,
	}

	if err := s.login(ctx); err != nil {
		s.logger.Error().Err(err).Str("controller", s.baseURL).Msg("login failed")
		return nil, err
	}

	s.state = StateAuthenticated
	s.logger.Info().
		Str("controller", s.baseURL).
		Str("auth", s.authMode()).
		Msg("login successful")

	return s, nil
}

// State returns the lifecycle state of the session.
func (s *Session) State() State {
	if s == nil {
		return StateUnauthenticated
	}
	return s.state
}

// Close logs out of the controller. It is safe to call more than once and
// on a session that never authenticated.
func (s *Session) Close() error {
	if s == nil || s.state != StateAuthenticated {
		return nil
	}

	defer func() {
		s.state = StateClosed
		s.token = ""
	}()

	if s.sessionURI == "" {
		s.logger.Info().Msg("logout successful")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
	defer cancel()

	resp, err := s.do(ctx, s.actionClient, http.MethodDelete, s.sessionURI, nil)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	_ = resp.Body.Close()

	s.logger.Info().Msg("logout successful")
	return nil
}

func (s *Session) authMode() string {
	if s.cfg.AuthMode == models.AuthSession {
		return models.AuthSession
	}
	return models.AuthBasic
}

func (s *Session) login(ctx context.Context) error {
	if s.authMode() == models.AuthSession {
		return s.loginSession(ctx)
	}
	return s.loginBasic(ctx)
}

// loginBasic validates the credentials against the sessions collection. The
// service root answers without authentication, so it cannot tell a wrong
// password from a right one.
func (s *Session) loginBasic(ctx context.Context) error {
	req, err := s.newRequest(ctx, http.MethodGet, sessionsPath, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrAuthentication, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrAuthentication, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: controller rejected the credentials (status %d)", models.ErrAuthentication, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: controller returned status %d", models.ErrAuthentication, resp.StatusCode)
	}

	return nil
}

type sessionRequest struct {
	UserName string `json:"UserName"`
	Password string `json:"Password"`
}

// loginSession creates a Redfish session and keeps its token.
func (s *Session) loginSession(ctx context.Context) error {
	body, err := json.Marshal(sessionRequest{UserName: s.cfg.Username, Password: s.cfg.Password})
	if err != nil {
		return fmt.Errorf("%w: failed to marshal request: %w", models.ErrAuthentication, err)
	}

	req, err := s.newRequest(ctx, http.MethodPost, sessionsPath, body)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrAuthentication, err)
	}

	resp, err := s.actionClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrAuthentication, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: controller returned status %d", models.ErrAuthentication, resp.StatusCode)
	}

	token := resp.Header.Get(authTokenHeader)
	if token == "" {
		return fmt.Errorf("%w: controller returned no %s", models.ErrAuthentication, authTokenHeader)
	}

	s.token = token
	s.sessionURI = resp.Header.Get("Location")
	return nil
}

// newRequest builds a request against the controller. path may be relative
// to the controller or an absolute URL (session Location headers are).
func (s *Session) newRequest(ctx context.Context, method, path string, body []byte) (*retryablehttp.Request, error) {
	url := path
	if !strings.Contains(path, "://") {
		url = s.baseURL + path
	}

	var rawBody interface{}
	if body != nil {
		rawBody = body
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, rawBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("OData-Version", "4.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	switch {
	case s.token != "":
		req.Header.Set(authTokenHeader, s.token)
	case s.authMode() == models.AuthBasic:
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}

	return req, nil
}

// do sends an authenticated request and rejects non-2xx responses. The
// caller closes the body.
func (s *Session) do(ctx context.Context, client *retryablehttp.Client, method, path string, body []byte) (*http.Response, error) {
	if s.state != StateAuthenticated {
		return nil, models.ErrNotAuthenticated
	}

	req, err := s.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrTransport, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", models.ErrTransport, method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %w", models.ErrTransport, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		})
	}

	return resp, nil
}

// getJSON fetches a resource and decodes it into out.
func (s *Session) getJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := s.do(ctx, s.client, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to parse %s: %w", models.ErrTransport, path, err)
	}

	return nil
}

// postJSON submits an action body and returns the response status code.
func (s *Session) postJSON(ctx context.Context, path string, payload interface{}) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := s.do(ctx, s.actionClient, http.MethodPost, path, body)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return statusErr.StatusCode, err
		}
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func baseURL(address string) string {
	address = strings.TrimRight(address, "/")
	if strings.Contains(address, "://") {
		return address
	}
	return "https://" + address
}

func newHTTPClient(cfg models.ControllerConfig) *http.Client {
	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // iLO ships self-signed certificates
			},
		},
	}
}

func newRetryableClient(httpClient *http.Client, retries int, logger zerolog.Logger) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient = httpClient
	client.RetryMax = retries
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = &leveledLogger{logger: logger}
	// Hand the last response back instead of a generic "giving up" error so
	// status codes reach the caller.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return client
}
