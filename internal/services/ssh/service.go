// Package ssh asks the operating system of the managed host to shut itself
// down before the controller has to cut the power.
package ssh

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/fgeck/ilohelper/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

const (
	dialTimeout = 30 * time.Second

	// windowsMinDelay keeps Windows from rejecting "shutdown /t 0" on
	// sessions without console access.
	windowsMinDelay = 60
)

// Service defines the interface for SSH operations.
type Service interface {
	Shutdown(ctx context.Context, cfg models.SSHShutdownConfig) (*models.SSHResult, error)
	TestConnection(ctx context.Context, cfg models.SSHShutdownConfig) (*models.SSHResult, error)
}

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Close() error
}

// SSHSession wraps ssh.Session for mocking.
type SSHSession interface {
	CombinedOutput(cmd string) ([]byte, error)
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

// DefaultClientFactory dials real SSH servers.
type DefaultClientFactory struct{}

// NewClient dials addr and performs the SSH handshake.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &clientAdapter{client: client}, nil
}

type clientAdapter struct {
	client *ssh.Client
}

func (c *clientAdapter) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (c *clientAdapter) Close() error {
	return c.client.Close()
}

// Impl implements the SSH Service interface.
type Impl struct {
	clientFactory ClientFactory
	logger        zerolog.Logger
}

// New creates a new SSH service.
func New(logger zerolog.Logger) *Impl {
	return NewWithClientFactory(logger, &DefaultClientFactory{})
}

// NewWithClientFactory creates a new SSH service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory) *Impl {
	return &Impl{
		clientFactory: factory,
		logger:        logger,
	}
}

// Shutdown runs the OS specific shutdown command on the host. The session
// usually drops while the command runs, so a command error only fails the
// result when the context is done.
func (s *Impl) Shutdown(ctx context.Context, cfg models.SSHShutdownConfig) (*models.SSHResult, error) {
	cmd := ShutdownCommand(cfg)

	s.logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("user", cfg.Username).
		Str("os", cfg.OS).
		Int("delay", cfg.ShutdownDelay).
		Msg("asking host to shut down")

	result, err := s.run(ctx, cfg, cmd)
	if result.Error != nil || err == nil {
		s.logResult(result)
		return result, nil
	}

	if ctx.Err() != nil {
		result.Error = ctx.Err()
	} else {
		s.logger.Warn().Err(err).Str("output", result.Output).Msg("shutdown command returned error (may be expected)")
	}

	s.logResult(result)
	return result, nil
}

// TestConnection verifies SSH connectivity without executing shutdown.
func (s *Impl) TestConnection(ctx context.Context, cfg models.SSHShutdownConfig) (*models.SSHResult, error) {
	s.logger.Debug().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Msg("testing SSH connection")

	result, err := s.run(ctx, cfg, "echo OK")
	if result.Error == nil && err != nil {
		result.Error = fmt.Errorf("test command failed: %w", err)
	}

	return result, nil
}

// ShutdownCommand returns the command that powers down a host running cfg.OS.
func ShutdownCommand(cfg models.SSHShutdownConfig) string {
	if cfg.OS == "windows" {
		seconds := cfg.ShutdownDelay * 60
		if seconds < windowsMinDelay {
			seconds = windowsMinDelay
		}
		return fmt.Sprintf("shutdown /s /t %d", seconds)
	}

	if cfg.ShutdownDelay == 0 {
		return "sudo shutdown -h now"
	}
	return fmt.Sprintf("sudo shutdown -h +%d", cfg.ShutdownDelay)
}

// run connects and executes cmd. Setup failures land in result.Error; the
// returned error is the command's own exit error, left to the caller.
func (s *Impl) run(ctx context.Context, cfg models.SSHShutdownConfig, cmd string) (*models.SSHResult, error) {
	result := &models.SSHResult{}

	client, err := s.dial(ctx, cfg)
	if err != nil {
		result.Error = err
		return result, nil
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		result.Error = fmt.Errorf("failed to create session: %w", err)
		return result, nil
	}
	defer func() { _ = session.Close() }()

	s.logger.Debug().Str("command", cmd).Msg("executing remote command")

	output, err := session.CombinedOutput(cmd)
	result.Output = string(output)
	result.CommandRun = true

	return result, err
}

type dialResult struct {
	client SSHClient
	err    error
}

// dial connects in the background so a canceled context returns at once.
func (s *Impl) dial(ctx context.Context, cfg models.SSHShutdownConfig) (SSHClient, error) {
	sshConfig, err := s.buildConfig(cfg)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	done := make(chan dialResult, 1)

	go func() {
		client, err := s.clientFactory.NewClient("tcp", addr, sshConfig)
		done <- dialResult{client: client, err: err}
	}()

	select {
	case <-ctx.Done():
		// Close the connection if the dial completes after we gave up.
		go func() {
			if res := <-done; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, res.err)
		}
		return res.client, nil
	}
}

func (s *Impl) buildConfig(cfg models.SSHShutdownConfig) (*ssh.ClientConfig, error) {
	key := cfg.PrivateKey
	if len(key) == 0 {
		if cfg.KeyPath == "" {
			return nil, fmt.Errorf("no private key provided")
		}

		var err error
		key, err = os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key from %s: %w", cfg.KeyPath, err)
		}
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // host keys of lab machines change on reinstall
		Timeout:         dialTimeout,
	}, nil
}

func (s *Impl) logResult(result *models.SSHResult) {
	s.logger.Info().
		Bool("command_run", result.CommandRun).
		Str("output", result.Output).
		AnErr("error", result.Error).
		Msg("shutdown command completed")
}
