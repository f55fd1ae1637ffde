// Package runner executes one operator command against the managed server.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/fgeck/ilohelper/internal/models"
	"github.com/fgeck/ilohelper/internal/services/bootwait"
	"github.com/fgeck/ilohelper/internal/services/probe"
	"github.com/fgeck/ilohelper/internal/services/redfish"
	"github.com/fgeck/ilohelper/internal/services/ssh"
	"github.com/fgeck/ilohelper/internal/services/wol"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Commands understood by the runner.
const (
	CommandTemperatures   = "temperatures"
	CommandServerStatus   = "serverStatus"
	CommandStartServer    = "startServer"
	CommandStopServer     = "stopServer"
	CommandWaitForBoot    = "waitForBoot"
	CommandWake           = "wake"
	CommandShutdownServer = "shutdownServer"
)

// ErrUnknownCommand is returned for command names the runner does not know.
var ErrUnknownCommand = errors.New("unknown command")

// Commands lists every command in help order.
func Commands() []string {
	return []string{
		CommandTemperatures,
		CommandServerStatus,
		CommandStartServer,
		CommandStopServer,
		CommandWaitForBoot,
		CommandWake,
		CommandShutdownServer,
	}
}

// NeedsSession reports whether command talks to the controller.
func NeedsSession(command string) bool {
	return command != CommandWake
}

// NeedsTarget reports whether command talks to the managed host itself.
func NeedsTarget(command string) bool {
	switch command {
	case CommandWaitForBoot, CommandWake, CommandShutdownServer:
		return true
	default:
		return false
	}
}

// Service defines the interface for the command runner.
type Service interface {
	Run(ctx context.Context, command string, cfg models.Config) (*models.RunResult, error)
}

// SessionOpener opens authenticated controller sessions.
type SessionOpener interface {
	Open(ctx context.Context, cfg models.ControllerConfig) (redfish.Service, error)
}

// DefaultSessionOpener opens Redfish sessions over HTTPS.
type DefaultSessionOpener struct {
	Logger zerolog.Logger
}

// Open logs in to the controller.
func (o *DefaultSessionOpener) Open(ctx context.Context, cfg models.ControllerConfig) (redfish.Service, error) {
	session, err := redfish.Open(ctx, o.Logger, cfg)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Impl implements the runner Service interface.
type Impl struct {
	opener SessionOpener
	waiter bootwait.Service
	wolSvc wol.Service
	sshSvc ssh.Service
	logger zerolog.Logger
}

// New creates a new runner service.
func New(logger zerolog.Logger, cfg models.BootWaitConfig) *Impl {
	prober := probe.New(logger, cfg.ProbeTimeout)

	return &Impl{
		opener: &DefaultSessionOpener{Logger: logger},
		waiter: bootwait.New(logger, prober, cfg),
		wolSvc: wol.New(logger),
		sshSvc: ssh.New(logger),
		logger: logger,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	opener SessionOpener,
	waiter bootwait.Service,
	wolSvc wol.Service,
	sshSvc ssh.Service,
) *Impl {
	return &Impl{
		opener: opener,
		waiter: waiter,
		wolSvc: wolSvc,
		sshSvc: sshSvc,
		logger: logger,
	}
}

// Run opens a controller session when the command needs one, executes the
// command and closes the session again. A failure carried in a result is
// also returned as the error.
func (s *Impl) Run(ctx context.Context, command string, cfg models.Config) (*models.RunResult, error) {
	result := &models.RunResult{Command: command}

	if !NeedsSession(command) {
		return result, s.dispatch(ctx, command, nil, cfg, result)
	}
	if !isKnown(command) {
		return result, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	s.logger.Debug().
		Str("controller", cfg.Controller.Address).
		Str("auth", cfg.Controller.AuthMode).
		Msg("opening controller session")

	session, err := s.opener.Open(ctx, cfg.Controller)
	if err != nil {
		return result, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close controller session")
		}
	}()

	return result, s.dispatch(ctx, command, session, cfg, result)
}

//nolint:gocyclo // one case per command
func (s *Impl) dispatch(ctx context.Context, command string, session redfish.Service, cfg models.Config, result *models.RunResult) error {
	switch command {
	case CommandTemperatures:
		temps, err := session.Temperatures(ctx)
		if err != nil {
			return err
		}
		result.Temperatures = temps
		return wrap(command, temps.Error)

	case CommandServerStatus:
		status, err := session.Status(ctx, models.StatusOptions{RefreshTemperatures: true})
		if err != nil {
			return err
		}
		result.Status = status
		result.Temperatures = status.Temperatures
		return wrap(command, status.Error)

	case CommandStartServer:
		action, err := session.PowerOn(ctx)
		if err != nil {
			return err
		}
		result.PowerAction = action
		return wrap(command, action.Error)

	case CommandStopServer:
		action, err := session.PowerOff(ctx)
		if err != nil {
			return err
		}
		result.PowerAction = action
		return wrap(command, action.Error)

	case CommandWaitForBoot:
		wait, err := s.waiter.Wait(ctx, session, cfg.Target.Address)
		if err != nil {
			return err
		}
		result.BootWait = wait
		return wrap(command, wait.Error)

	case CommandWake:
		return s.wake(ctx, cfg, result)

	case CommandShutdownServer:
		shutdown, err := s.shutdown(ctx, session, cfg)
		if err != nil {
			return err
		}
		result.Shutdown = shutdown
		return wrap(command, shutdown.Error)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
}

// wake sends the magic packet and waits for the host to answer.
func (s *Impl) wake(ctx context.Context, cfg models.Config, result *models.RunResult) error {
	if cfg.WOL == nil {
		return fmt.Errorf("%s: wol is not configured", CommandWake)
	}

	wolResult, err := s.wolSvc.Wake(ctx, *cfg.WOL)
	if err != nil {
		return err
	}
	result.Wake = wolResult
	if wolResult.Error != nil {
		return wrap(CommandWake, wolResult.Error)
	}

	poll, err := s.waiter.PollUntilReachable(ctx, cfg.Target.Address)
	if err != nil {
		return err
	}
	result.Poll = poll

	return wrap(CommandWake, poll.Error)
}

// shutdown asks the OS to power down over SSH and waits for the host to stop
// answering. If either step fails the controller forces the system off. The
// result only carries an error when the system could not be brought down.
func (s *Impl) shutdown(ctx context.Context, session redfish.Service, cfg models.Config) (*models.ShutdownResult, error) {
	if cfg.SSHShutdown == nil {
		return nil, fmt.Errorf("%s: ssh_shutdown is not configured", CommandShutdownServer)
	}

	result := &models.ShutdownResult{}
	var errs *multierror.Error

	sshCfg := *cfg.SSHShutdown
	if sshCfg.Host == "" {
		sshCfg.Host = cfg.Target.Address
	}

	sshResult, err := s.sshSvc.Shutdown(ctx, sshCfg)
	if err != nil {
		return nil, err
	}
	result.SSH = sshResult

	if sshResult.Error != nil {
		errs = multierror.Append(errs, fmt.Errorf("ssh shutdown: %w", sshResult.Error))
	} else {
		poll, err := s.waiter.PollUntilUnreachable(ctx, cfg.Target.Address, sshCfg.OfflineAttempts, sshCfg.OfflineInterval)
		if err != nil {
			return nil, err
		}
		if poll.Reached {
			result.WentDown = true
			s.logger.Info().Int("attempts", poll.Attempts).Msg("server shut down gracefully")
			return result, nil
		}
		errs = multierror.Append(errs, fmt.Errorf("waiting for shutdown: %w", poll.Error))
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.Error = multierror.Append(errs, ctxErr).ErrorOrNil()
		return result, nil
	}

	s.logger.Warn().Err(errs.ErrorOrNil()).Msg("graceful shutdown failed, forcing power off")

	powerOff, err := session.PowerOff(ctx)
	if err != nil {
		return nil, err
	}
	result.PowerOff = powerOff

	if powerOff.Error != nil {
		errs = multierror.Append(errs, fmt.Errorf("force off: %w", powerOff.Error))
		result.Error = errs.ErrorOrNil()
		return result, nil
	}

	result.ForcedOff = true
	return result, nil
}

func isKnown(command string) bool {
	for _, c := range Commands() {
		if c == command {
			return true
		}
	}
	return false
}

func wrap(command string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s failed: %w", command, err)
}
