// Package probe checks whether a host answers on the network.
package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/ilohelper/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for reachability checks.
type Service interface {
	Probe(ctx context.Context, address string) (*models.ProbeResult, error)
}

// CommandExecutor allows mocking exec.Command in tests. exitCode is -1 when
// the command could not be started.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) (output []byte, exitCode int, err error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command and returns its combined output and exit status.
// A non-zero exit status is not an error.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return output, exitErr.ExitCode(), nil
	}
	if err != nil {
		return output, -1, err
	}

	return output, 0, nil
}

// Impl implements the probe Service interface using the system ping binary.
type Impl struct {
	executor CommandExecutor
	timeout  time.Duration
	goos     string
	logger   zerolog.Logger
}

// New creates a new ping probe. timeout bounds the wait for a single reply.
func New(logger zerolog.Logger, timeout time.Duration) *Impl {
	return NewWithExecutor(logger, &DefaultExecutor{}, timeout)
}

// NewWithExecutor creates a new ping probe with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor, timeout time.Duration) *Impl {
	return &Impl{
		executor: executor,
		timeout:  timeout,
		goos:     runtime.GOOS,
		logger:   logger,
	}
}

// Probe sends a single echo request to address.
//
// An unanswered ping is a normal result with a lost packet. A ping that ran
// but could not be carried out (unknown host, no route) comes back with
// Attempted set to false. Only a failure to run ping at all is returned as
// an error wrapping models.ErrProbe.
func (s *Impl) Probe(ctx context.Context, address string) (*models.ProbeResult, error) {
	args := pingArgs(s.goos, s.timeout, address)

	output, exitCode, err := s.executor.Execute(ctx, "ping", args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: running ping: %w", models.ErrProbe, err)
	}

	result := ParseOutput(string(output))

	// ping exits 2 on errors other than missing replies.
	if exitCode > 1 {
		result.Attempted = false
	}
	if !result.Attempted && result.Diagnostic == "" {
		result.Diagnostic = strings.TrimSpace(string(output))
	}

	s.logger.Debug().
		Str("address", address).
		Int("exit_code", exitCode).
		Bool("attempted", result.Attempted).
		Int("sent", result.PacketsSent).
		Int("received", result.PacketsReceived).
		Msg("probe finished")

	return result, nil
}

// pingArgs builds the argument vector for a single echo request. iputils and
// busybox take -W in seconds. macOS and FreeBSD read -W as milliseconds, and
// OpenBSD and NetBSD spell the seconds flag -w.
func pingArgs(goos string, timeout time.Duration, address string) []string {
	args := []string{"-c", "1"}
	if timeout > 0 {
		switch goos {
		case "darwin", "freebsd", "dragonfly":
			args = append(args, "-W", strconv.FormatInt(timeoutMillis(timeout), 10))
		case "openbsd", "netbsd":
			args = append(args, "-w", strconv.Itoa(timeoutSeconds(timeout)))
		default:
			args = append(args, "-W", strconv.Itoa(timeoutSeconds(timeout)))
		}
	}
	return append(args, address)
}

// summaryPattern matches the statistics line of iputils, busybox and BSD ping:
//
//	1 packets transmitted, 1 received, 0% packet loss, time 0ms
//	1 packets transmitted, 1 packets received, 0% packet loss
var summaryPattern = regexp.MustCompile(`(\d+) packets transmitted, (\d+) (?:packets )?received`)

// ParseOutput extracts the packet counters from ping output. Output without
// a statistics line yields a result with Attempted set to false.
func ParseOutput(output string) *models.ProbeResult {
	match := summaryPattern.FindStringSubmatch(output)
	if match == nil {
		return &models.ProbeResult{Diagnostic: strings.TrimSpace(output)}
	}

	sent, err := strconv.Atoi(match[1])
	if err != nil {
		return &models.ProbeResult{Diagnostic: err.Error()}
	}
	received, err := strconv.Atoi(match[2])
	if err != nil {
		return &models.ProbeResult{Diagnostic: err.Error()}
	}

	return &models.ProbeResult{
		Attempted:       true,
		PacketsSent:     sent,
		PacketsReceived: received,
	}
}

// timeoutMillis rounds up to at least one millisecond.
func timeoutMillis(d time.Duration) int64 {
	return int64(math.Max(1, math.Ceil(float64(d)/float64(time.Millisecond))))
}

// timeoutSeconds rounds up to whole seconds.
func timeoutSeconds(d time.Duration) int {
	return int(math.Max(1, math.Ceil(d.Seconds())))
}
