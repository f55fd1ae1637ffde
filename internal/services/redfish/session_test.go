package redfish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/fgeck/ilohelper/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testServiceRoot = "/redfish/v1/"
	testThermalPath = "/redfish/v1/Chassis/1/Thermal/"
	testSystemPath  = "/redfish/v1/Systems/1"
	testResetPath   = "/redfish/v1/Systems/1/Actions/ComputerSystem.Reset/"
	testSessionURI  = "/redfish/v1/SessionService/Sessions/admin0001/"
	testToken       = "c2Vzc2lvbi10b2tlbg"
)

const thermalBody = `{
  "Temperatures": [
    {"Name": "01-Inlet Ambient", "ReadingCelsius": 21, "Status": {"State": "Enabled", "Health": "OK"}},
    {"Name": "02-CPU 1", "ReadingCelsius": 40, "Status": {"State": "Enabled", "Health": "OK"}},
    {"Name": "03-CPU 2", "ReadingCelsius": 0, "Status": {"State": "Absent"}},
    {"Name": "04-P1 DIMM 1-6", "ReadingCelsius": null, "Status": {"State": "Enabled"}},
    {"Name": "05-Chipset", "ReadingCelsius": 50, "Status": {"State": "Enabled", "Health": "OK"}}
  ]
}`

const systemOnBody = `{
  "PowerState": "On",
  "Model": "ProLiant DL380 Gen9",
  "HostName": "server",
  "Status": {"Health": "OK", "State": "Enabled"},
  "MemorySummary": {"TotalSystemMemoryGiB": 64},
  "ProcessorSummary": {"Count": 2, "Model": "Intel(R) Xeon(R) CPU E5-2660 v4 @ 2.00GHz"}
}`

// fakeController serves the handful of Redfish resources the session uses.
// Like a real controller it answers the service root without credentials.
type fakeController struct {
	t *testing.T

	mu           sync.Mutex
	requests     []string
	resetTypes   []string
	thermal      string
	system       string
	resetStatus  int
	rejectStatus int
	failThermal  int
}

func newFakeController(t *testing.T) *fakeController {
	t.Helper()

	return &fakeController{
		t:            t,
		thermal:      thermalBody,
		system:       systemOnBody,
		resetStatus:  http.StatusOK,
		rejectStatus: http.StatusUnauthorized,
	}
}

func (f *fakeController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	if r.Method == http.MethodPost && r.URL.Path == sessionsPath {
		var req sessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserName != "admin" || req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set(authTokenHeader, testToken)
		w.Header().Set("Location", "https://"+r.Host+testSessionURI)
		w.WriteHeader(http.StatusCreated)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == testServiceRoot {
		_, _ = w.Write([]byte(`{"RedfishVersion":"1.0.0"}`))
		return
	}

	if !f.authorized(r) {
		w.WriteHeader(f.rejectStatus)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == sessionsPath:
		_, _ = w.Write([]byte(`{"Members@odata.count":1}`))
	case r.Method == http.MethodGet && r.URL.Path == testThermalPath:
		if f.failThermal > 0 {
			f.failThermal--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(f.thermal))
	case r.Method == http.MethodGet && r.URL.Path == testSystemPath:
		_, _ = w.Write([]byte(f.system))
	case r.Method == http.MethodPost && r.URL.Path == testResetPath:
		assert.Equal(f.t, "application/json", r.Header.Get("Content-Type"))
		var req resetRequest
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		f.resetTypes = append(f.resetTypes, req.ResetType)
		w.WriteHeader(f.resetStatus)
	case r.Method == http.MethodDelete && r.URL.Path == testSessionURI:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeController) authorized(r *http.Request) bool {
	if r.Header.Get(authTokenHeader) == testToken {
		return true
	}
	user, pass, ok := r.BasicAuth()
	return ok && user == "admin" && pass == "secret"
}

func (f *fakeController) count(request string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, r := range f.requests {
		if r == request {
			n++
		}
	}
	return n
}

func (f *fakeController) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.requests...)
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testConfig(address, authMode string) models.ControllerConfig {
	return models.ControllerConfig{
		Address:     address,
		Username:    "admin",
		Password:    "secret",
		AuthMode:    authMode,
		Retries:     0,
		ThermalPath: testThermalPath,
		SystemPath:  testSystemPath,
		ResetPath:   testResetPath,
	}
}

func openTestSession(t *testing.T, authMode string) (*Session, *fakeController) {
	t.Helper()

	fake := newFakeController(t)
	server := httptest.NewTLSServer(fake)
	t.Cleanup(server.Close)

	session, err := OpenWithHTTPClient(context.Background(), testLogger(), testConfig(server.URL, authMode), server.Client())
	require.NoError(t, err)

	return session, fake
}

func TestOpen_Basic(t *testing.T) {
	session, fake := openTestSession(t, models.AuthBasic)

	assert.Equal(t, StateAuthenticated, session.State())
	assert.Equal(t, 1, fake.count("GET "+sessionsPath))

	require.NoError(t, session.Close())
	assert.Equal(t, StateClosed, session.State())
	assert.Equal(t, 0, fake.count("DELETE "+testSessionURI))
}

func TestOpen_BasicWrongPassword(t *testing.T) {
	fake := newFakeController(t)
	server := httptest.NewTLSServer(fake)
	defer server.Close()

	cfg := testConfig(server.URL, models.AuthBasic)
	cfg.Password = "WRONG"

	session, err := OpenWithHTTPClient(context.Background(), testLogger(), cfg, server.Client())

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAuthentication)
	assert.Nil(t, session)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, 1, fake.count("GET "+sessionsPath))
	assert.Equal(t, 0, fake.count("GET "+testServiceRoot))
}

func TestOpen_BasicForbidden(t *testing.T) {
	fake := newFakeController(t)
	fake.rejectStatus = http.StatusForbidden
	server := httptest.NewTLSServer(fake)
	defer server.Close()

	cfg := testConfig(server.URL, models.AuthBasic)
	cfg.Username = "operator"

	_, err := OpenWithHTTPClient(context.Background(), testLogger(), cfg, server.Client())

	assert.ErrorIs(t, err, models.ErrAuthentication)
	assert.Contains(t, err.Error(), "403")
}

func TestOpen_Session(t *testing.T) {
	session, fake := openTestSession(t, models.AuthSession)

	assert.Equal(t, StateAuthenticated, session.State())
	assert.Equal(t, 1, fake.count("POST "+sessionsPath))

	// Resource requests authenticate with the token.
	result, err := session.Temperatures(context.Background())
	require.NoError(t, err)
	require.Nil(t, result.Error)

	require.NoError(t, session.Close())
	assert.Equal(t, StateClosed, session.State())
	assert.Equal(t, 1, fake.count("DELETE "+testSessionURI))
}

func TestOpen_SessionWrongPassword(t *testing.T) {
	server := httptest.NewTLSServer(newFakeController(t))
	defer server.Close()

	cfg := testConfig(server.URL, models.AuthSession)
	cfg.Password = "wrong"

	_, err := OpenWithHTTPClient(context.Background(), testLogger(), cfg, server.Client())

	assert.ErrorIs(t, err, models.ErrAuthentication)
}

func TestOpen_Unreachable(t *testing.T) {
	server := httptest.NewTLSServer(newFakeController(t))
	client := server.Client()
	url := server.URL
	server.Close()

	_, err := OpenWithHTTPClient(context.Background(), testLogger(), testConfig(url, models.AuthBasic), client)

	assert.ErrorIs(t, err, models.ErrAuthentication)
}

func TestOpen_UntrustedCertificate(t *testing.T) {
	server := httptest.NewTLSServer(newFakeController(t))
	defer server.Close()

	cfg := testConfig(server.URL, models.AuthBasic)
	cfg.InsecureSkipVerify = false

	_, err := Open(context.Background(), testLogger(), cfg)

	assert.ErrorIs(t, err, models.ErrAuthentication)
}

func TestOpen_SelfSignedCertificateSkipped(t *testing.T) {
	server := httptest.NewTLSServer(newFakeController(t))
	defer server.Close()

	cfg := testConfig(server.URL, models.AuthBasic)
	cfg.InsecureSkipVerify = true

	session, err := Open(context.Background(), testLogger(), cfg)

	require.NoError(t, err)
	assert.NoError(t, session.Close())
}

func TestClose_Idempotent(t *testing.T) {
	session, fake := openTestSession(t, models.AuthSession)

	require.NoError(t, session.Close())
	require.NoError(t, session.Close())

	assert.Equal(t, 1, fake.count("DELETE "+testSessionURI))
}

func TestClose_NilSession(t *testing.T) {
	var session *Session

	assert.NoError(t, session.Close())
	assert.Equal(t, StateUnauthenticated, session.State())
}

func TestClose_CanceledCallerContext(t *testing.T) {
	session, fake := openTestSession(t, models.AuthSession)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = session.Temperatures(ctx)

	require.NoError(t, session.Close())
	assert.Equal(t, 1, fake.count("DELETE "+testSessionURI))
}

func TestClosedSessionRejectsOperations(t *testing.T) {
	session, fake := openTestSession(t, models.AuthBasic)
	require.NoError(t, session.Close())
	before := len(fake.log())

	temps, err := session.Temperatures(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, temps.Error, models.ErrNotAuthenticated)

	status, err := session.Status(context.Background(), models.StatusOptions{})
	require.NoError(t, err)
	assert.ErrorIs(t, status.Error, models.ErrNotAuthenticated)

	action, err := session.PowerOn(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, action.Error, models.ErrNotAuthenticated)

	assert.Len(t, fake.log(), before)
}

func TestTemperatures(t *testing.T) {
	session, _ := openTestSession(t, models.AuthBasic)

	result, err := session.Temperatures(context.Background())

	require.NoError(t, err)
	require.Nil(t, result.Error)
	require.Len(t, result.Readings, 5)

	assert.Equal(t, "01-Inlet Ambient", result.Readings[0].Name)
	assert.True(t, result.Readings[0].Present)
	assert.False(t, result.Readings[2].Present)
	assert.Equal(t, models.SensorStateAbsent, result.Readings[2].State)
	assert.False(t, result.Readings[3].Present)

	assert.Equal(t, []float64{21, 40, 0, 0, 50}, result.Celsius())
	assert.True(t, result.Available())

	require.NotNil(t, result.Stats)
	assert.Equal(t, 3, result.Stats.Count)
	assert.InDelta(t, 21, result.Stats.Min, 0.001)
	assert.InDelta(t, 50, result.Stats.Max, 0.001)
	assert.InDelta(t, 37, result.Stats.Mean, 0.001)
}

func TestTemperatures_ServerError(t *testing.T) {
	session, fake := openTestSession(t, models.AuthBasic)
	fake.mu.Lock()
	fake.failThermal = 1
	fake.mu.Unlock()

	result, err := session.Temperatures(context.Background())

	require.NoError(t, err)
	assert.ErrorIs(t, result.Error, models.ErrTransport)
	assert.Empty(t, result.Readings)
	assert.Nil(t, result.Stats)
	assert.False(t, result.Available())
}

func TestTemperatures_MalformedBody(t *testing.T) {
	session, fake := openTestSession(t, models.AuthBasic)
	fake.mu.Lock()
	fake.thermal = `{"Temperatures": [`
	fake.mu.Unlock()

	result, err := session.Temperatures(context.Background())

	require.NoError(t, err)
	assert.ErrorIs(t, result.Error, models.ErrTransport)
	assert.Contains(t, result.Error.Error(), "failed to parse")
}

func TestTemperatures_RetriesGet(t *testing.T) {
	fake := newFakeController(t)
	fake.failThermal = 1
	server := httptest.NewTLSServer(fake)
	defer server.Close()

	cfg := testConfig(server.URL, models.AuthBasic)
	cfg.Retries = 1

	session, err := OpenWithHTTPClient(context.Background(), testLogger(), cfg, server.Client())
	require.NoError(t, err)

	result, err := session.Temperatures(context.Background())

	require.NoError(t, err)
	assert.Nil(t, result.Error)
	assert.Equal(t, 2, fake.count("GET "+testThermalPath))
}

func TestStatus_PoweredOn(t *testing.T) {
	session, fake := openTestSession(t, models.AuthBasic)

	result, err := session.Status(context.Background(), models.StatusOptions{})

	require.NoError(t, err)
	require.Nil(t, result.Error)
	require.NotNil(t, result.Status)
	assert.Equal(t, "On", result.Status.PowerState)
	assert.True(t, result.Status.PoweredOn)
	assert.Equal(t, "OK", result.Status.Health)
	assert.Equal(t, "ProLiant DL380 Gen9", result.Status.Model)
	assert.InDelta(t, 64, result.Status.MemoryGiB, 0.001)
	assert.JSONEq(t, `{"Count": 2, "Model": "Intel(R) Xeon(R) CPU E5-2660 v4 @ 2.00GHz"}`, string(result.Status.Processor))
	assert.Nil(t, result.Temperatures)
	assert.Equal(t, 0, fake.count("GET "+testThermalPath))
}

func TestStatus_PoweredOff(t *testing.T) {
	session, fake := openTestSession(t, models.AuthBasic)
	fake.mu.Lock()
	fake.system = `{"PowerState": "Off", "Status": {"Health": "OK"}}`
	fake.mu.Unlock()

	result, err := session.Status(context.Background(), models.StatusOptions{})

	require.NoError(t, err)
	require.NotNil(t, result.Status)
	assert.False(t, result.Status.PoweredOn)
	assert.Empty(t, result.Status.Processor)
}

func TestStatus_RefreshesTemperaturesFirst(t *testing.T) {
	session, fake := openTestSession(t, models.AuthBasic)

	result, err := session.Status(context.Background(), models.StatusOptions{RefreshTemperatures: true})

	require.NoError(t, err)
	require.NotNil(t, result.Temperatures)
	assert.True(t, result.Temperatures.Available())

	log := fake.log()
	require.Len(t, log, 3)
	assert.Equal(t, "GET "+testThermalPath, log[1])
	assert.Equal(t, "GET "+testSystemPath, log[2])
}

func TestStatus_MissingPowerState(t *testing.T) {
	session, fake := openTestSession(t, models.AuthBasic)
	fake.mu.Lock()
	fake.system = `{"Model": "ProLiant"}`
	fake.mu.Unlock()

	result, err := session.Status(context.Background(), models.StatusOptions{})

	require.NoError(t, err)
	assert.ErrorIs(t, result.Error, models.ErrTransport)
	assert.Nil(t, result.Status)
}

func TestPowerActions(t *testing.T) {
	session, fake := openTestSession(t, models.AuthBasic)

	on, err := session.PowerOn(context.Background())
	require.NoError(t, err)
	assert.Nil(t, on.Error)
	assert.Equal(t, models.ResetPushPowerButton, on.ResetType)
	assert.Equal(t, http.StatusOK, on.StatusCode)

	off, err := session.PowerOff(context.Background())
	require.NoError(t, err)
	assert.Nil(t, off.Error)
	assert.Equal(t, models.ResetForceOff, off.ResetType)

	assert.Equal(t, []string{models.ResetPushPowerButton, models.ResetForceOff}, fake.resetTypes)
}

func TestPowerAction_RejectedIsNotRetried(t *testing.T) {
	fake := newFakeController(t)
	fake.resetStatus = http.StatusInternalServerError
	server := httptest.NewTLSServer(fake)
	defer server.Close()

	cfg := testConfig(server.URL, models.AuthBasic)
	cfg.Retries = 3

	session, err := OpenWithHTTPClient(context.Background(), testLogger(), cfg, server.Client())
	require.NoError(t, err)

	result, err := session.PowerOn(context.Background())

	require.NoError(t, err)
	assert.ErrorIs(t, result.Error, models.ErrTransport)
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
	assert.Equal(t, 1, fake.count("POST "+testResetPath))

	var statusErr *StatusError
	require.ErrorAs(t, result.Error, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{address: "10.0.0.2", want: "https://10.0.0.2"},
		{address: "ilo.lab/", want: "https://ilo.lab"},
		{address: "https://ilo.lab:8443", want: "https://ilo.lab:8443"},
		{address: "http://127.0.0.1:8000/", want: "http://127.0.0.1:8000"},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.want, baseURL(tt.address))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "State(7)", State(7).String())
}
