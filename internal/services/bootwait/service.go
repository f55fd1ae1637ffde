// Package bootwait drives a managed host from "possibly off" to "answering
// on the network", or gives up after a bounded number of probes.
package bootwait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fgeck/ilohelper/internal/models"
	"github.com/fgeck/ilohelper/internal/services/probe"
	sw "github.com/filanov/stateswitch"
	"github.com/rs/zerolog"
)

// Service defines the interface for boot wait operations.
type Service interface {
	Wait(ctx context.Context, session PowerController, target string) (*models.BootWaitResult, error)
	PollUntilReachable(ctx context.Context, target string) (*models.PollResult, error)
	PollUntilUnreachable(ctx context.Context, target string, attempts int, interval time.Duration) (*models.PollResult, error)
}

// PowerController is the part of a controller session the waiter needs.
type PowerController interface {
	Status(ctx context.Context, opts models.StatusOptions) (*models.StatusResult, error)
	PowerOn(ctx context.Context) (*models.PowerActionResult, error)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Impl implements the boot wait Service interface.
type Impl struct {
	prober probe.Service
	cfg    models.BootWaitConfig
	sleep  SleepFunc
	sm     sw.StateMachine
	logger zerolog.Logger
}

// New creates a new boot waiter.
func New(logger zerolog.Logger, prober probe.Service, cfg models.BootWaitConfig) *Impl {
	return NewWithSleep(logger, prober, cfg, sleepContext)
}

// NewWithSleep creates a new boot waiter with a custom sleep function (for testing).
func NewWithSleep(logger zerolog.Logger, prober probe.Service, cfg models.BootWaitConfig, sleep SleepFunc) *Impl {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = models.DefaultMaxAttempts
	}

	s := &Impl{
		prober: prober,
		cfg:    cfg,
		sleep:  sleep,
		logger: logger,
	}
	s.sm = newStateMachine(s)

	return s
}

// Wait checks the power state, powers the host on if needed and polls the
// target until it answers.
func (s *Impl) Wait(ctx context.Context, session PowerController, target string) (*models.BootWaitResult, error) {
	start := time.Now()

	s.logger.Info().
		Str("target", target).
		Int("max_attempts", s.cfg.MaxAttempts).
		Msg("waiting until OS booted")

	st := newWaitState(StateCheckingPower, s.cfg.MaxAttempts)
	if err := s.run(ctx, st, &transitionArgs{ctx: ctx, session: session}, target); err != nil {
		return nil, err
	}

	result := &models.BootWaitResult{
		Attempts:      st.Attempts,
		PowerOnIssued: st.powerOn != nil,
		PowerOn:       st.powerOn,
		Duration:      time.Since(start),
	}

	switch st.State() {
	case StatePoweredOn:
		result.Outcome = models.OutcomeAlreadyOn
	case StateReachable:
		result.Outcome = models.OutcomeBecameReachable
	case StateExhausted:
		result.Outcome = models.OutcomeTimedOut
		result.Error = exhaustedError(target, st.Attempts)
	case StateProbeFailed:
		result.Outcome = models.OutcomeProbeError
		result.Error = st.probeErr
	case StateCanceled:
		result.Outcome = models.OutcomeCanceled
		result.Error = ctx.Err()
	}

	s.logger.Info().
		Str("outcome", string(result.Outcome)).
		Int("attempts", result.Attempts).
		Dur("duration", result.Duration).
		Msg("boot wait finished")

	return result, nil
}

// PollUntilReachable runs only the polling phase of the boot wait.
func (s *Impl) PollUntilReachable(ctx context.Context, target string) (*models.PollResult, error) {
	st := newWaitState(StatePolling, s.cfg.MaxAttempts)
	if err := s.run(ctx, st, &transitionArgs{ctx: ctx}, target); err != nil {
		return nil, err
	}

	result := &models.PollResult{
		Attempts: st.Attempts,
		Reached:  st.State() == StateReachable,
		Last:     st.lastProbe,
	}

	switch st.State() {
	case StateExhausted:
		result.Error = exhaustedError(target, st.Attempts)
	case StateProbeFailed:
		result.Error = st.probeErr
	case StateCanceled:
		result.Error = ctx.Err()
	}

	return result, nil
}

// PollUntilUnreachable probes target until it stops answering, at most
// attempts times with interval between probes.
func (s *Impl) PollUntilUnreachable(ctx context.Context, target string, attempts int, interval time.Duration) (*models.PollResult, error) {
	result := &models.PollResult{}

	for result.Attempts < attempts {
		res, err := s.prober.Probe(ctx, target)
		result.Attempts++
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				result.Error = ctxErr
				return result, nil
			}
			result.Error = probeError(err)
			return result, nil
		}
		result.Last = res

		if !res.Reachable() {
			s.logger.Info().Int("attempts", result.Attempts).Str("target", target).Msg("target stopped answering")
			result.Reached = true
			return result, nil
		}

		if result.Attempts < attempts {
			if err := s.sleep(ctx, interval); err != nil {
				result.Error = err
				return result, nil
			}
		}
	}

	result.Error = fmt.Errorf("%w: target %s still answering after %d attempts", models.ErrExhausted, target, result.Attempts)
	return result, nil
}

// run observes the world for the current phase and feeds the matching
// transition into the state machine until a terminal state is reached.
func (s *Impl) run(ctx context.Context, st *waitState, args *transitionArgs, target string) error {
	for !st.terminal() {
		if ctx.Err() != nil {
			if err := s.sm.Run(TransitionCancel, st, args); err != nil {
				return fmt.Errorf("boot wait: %w", err)
			}
			continue
		}

		var transition sw.TransitionType

		switch st.State() {
		case StateCheckingPower:
			s.checkPower(ctx, args.session, st)
			transition = TransitionPowerChecked
		case StatePoweringOn:
			transition = TransitionPowerOn
		case StatePolling:
			s.probeOnce(ctx, target, st)
			if ctx.Err() != nil {
				continue
			}
			transition = TransitionProbed
		default:
			return fmt.Errorf("boot wait: unexpected state %q", st.State())
		}

		if err := s.sm.Run(transition, st, args); err != nil {
			if ctx.Err() != nil {
				continue
			}
			if errors.Is(err, sw.NoConditionPassedToRunTransaction) {
				return fmt.Errorf("boot wait: no transition rule for %q in state %q: %w", transition, st.State(), err)
			}
			return fmt.Errorf("boot wait: %w", err)
		}
	}

	return nil
}

func (s *Impl) checkPower(ctx context.Context, session PowerController, st *waitState) {
	status, err := session.Status(ctx, models.StatusOptions{RefreshTemperatures: true})
	if err != nil {
		status = &models.StatusResult{Error: err}
	}
	st.status = status

	if status.Error != nil {
		s.logger.Warn().Err(status.Error).Msg("power state unknown, treating as off")
		return
	}

	s.logger.Info().Bool("powered_on", st.poweredOn()).Msg("power state checked")
}

func (s *Impl) probeOnce(ctx context.Context, target string, st *waitState) {
	st.Attempts++

	res, err := s.prober.Probe(ctx, target)
	if err != nil {
		st.lastProbe = nil
		if ctx.Err() == nil {
			st.probeErr = probeError(err)
		}
		return
	}
	if res == nil {
		res = &models.ProbeResult{}
	}

	st.lastProbe = res
	st.probeErr = nil
}

func probeError(err error) error {
	if errors.Is(err, models.ErrProbe) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrProbe, err)
}

func exhaustedError(target string, attempts int) error {
	return fmt.Errorf("%w: target %s not reachable after %d attempts", models.ErrExhausted, target, attempts)
}
