package bootwait

import (
	"context"
	"errors"
	"time"

	"github.com/fgeck/ilohelper/internal/models"
	sw "github.com/filanov/stateswitch"
)

// Boot wait states.
const (
	StateCheckingPower sw.State = "checking_power"
	StatePoweredOn     sw.State = "powered_on"
	StatePoweringOn    sw.State = "powering_on"
	StatePolling       sw.State = "polling"
	StateReachable     sw.State = "reachable"
	StateExhausted     sw.State = "exhausted"
	StateProbeFailed   sw.State = "probe_failed"
	StateCanceled      sw.State = "canceled"
)

// Transition types, one per observation the driver makes.
const (
	TransitionPowerChecked sw.TransitionType = "powerChecked"
	TransitionPowerOn      sw.TransitionType = "powerOn"
	TransitionProbed       sw.TransitionType = "probed"
	TransitionCancel       sw.TransitionType = "cancel"
)

var (
	// ErrInvalidTransitionArgs is returned when a handler is run with foreign arguments.
	ErrInvalidTransitionArgs = errors.New("expected a *transitionArgs{} type")

	// ErrInvalidStateSwitch is returned when a handler is run on a foreign state.
	ErrInvalidStateSwitch = errors.New("expected a *waitState{} type")
)

// waitState carries one boot wait through the state machine. It is created
// per call and discarded afterwards.
type waitState struct {
	models.BootWaitState

	status    *models.StatusResult
	powerOn   *models.PowerActionResult
	lastProbe *models.ProbeResult
	probeErr  error
}

func newWaitState(phase sw.State, maxAttempts int) *waitState {
	return &waitState{
		BootWaitState: models.BootWaitState{
			Phase:       string(phase),
			MaxAttempts: maxAttempts,
		},
	}
}

// State implements sw.StateSwitch.
func (st *waitState) State() sw.State {
	return sw.State(st.Phase)
}

// SetState implements sw.StateSwitch.
func (st *waitState) SetState(state sw.State) error {
	st.Phase = string(state)
	return nil
}

func (st *waitState) terminal() bool {
	switch st.State() {
	case StatePoweredOn, StateReachable, StateExhausted, StateProbeFailed, StateCanceled:
		return true
	default:
		return false
	}
}

func (st *waitState) poweredOn() bool {
	return st.status != nil && st.status.Error == nil && st.status.Status != nil && st.status.Status.PoweredOn
}

// transitionArgs is passed to every transition handler.
type transitionArgs struct {
	ctx     context.Context
	session PowerController
}

func unpack(s sw.StateSwitch, args sw.TransitionArgs) (*waitState, *transitionArgs, error) {
	st, ok := s.(*waitState)
	if !ok {
		return nil, nil, ErrInvalidStateSwitch
	}
	targs, ok := args.(*transitionArgs)
	if !ok {
		return nil, nil, ErrInvalidTransitionArgs
	}
	return st, targs, nil
}

func newStateMachine(s *Impl) sw.StateMachine {
	m := sw.NewStateMachine()

	// CheckingPower: the driver has fetched the status.
	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionPowerChecked,
		SourceStates:     sw.States{StateCheckingPower},
		DestinationState: StatePoweredOn,
		Condition:        isPoweredOn,
		PostTransition:   s.logAlreadyOn,
	})

	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionPowerChecked,
		SourceStates:     sw.States{StateCheckingPower},
		DestinationState: StatePoweringOn,
		Condition:        isPoweredOff,
	})

	// PoweringOn: press the button and give the controller a head start.
	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionPowerOn,
		SourceStates:     sw.States{StatePoweringOn},
		DestinationState: StatePolling,
		Transition:       s.pressPowerButton,
	})

	// Polling: the driver has run one probe.
	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionProbed,
		SourceStates:     sw.States{StatePolling},
		DestinationState: StateReachable,
		Condition:        probeReachable,
		PostTransition:   s.logReachable,
	})

	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionProbed,
		SourceStates:     sw.States{StatePolling},
		DestinationState: StateProbeFailed,
		Condition:        probeFailed,
		PostTransition:   s.logProbeFailed,
	})

	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionProbed,
		SourceStates:     sw.States{StatePolling},
		DestinationState: StateExhausted,
		Condition:        attemptsExhausted,
		PostTransition:   s.logExhausted,
	})

	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionProbed,
		SourceStates:     sw.States{StatePolling},
		DestinationState: StatePolling,
		Condition:        attemptsLeft,
		Transition:       s.waitPollInterval,
	})

	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionCancel,
		SourceStates:     sw.States{StateCheckingPower, StatePoweringOn, StatePolling},
		DestinationState: StateCanceled,
	})

	return m
}

func isPoweredOn(s sw.StateSwitch, _ sw.TransitionArgs) (bool, error) {
	st, ok := s.(*waitState)
	if !ok {
		return false, ErrInvalidStateSwitch
	}
	return st.poweredOn(), nil
}

// isPoweredOff also covers a failed status query.
func isPoweredOff(s sw.StateSwitch, args sw.TransitionArgs) (bool, error) {
	on, err := isPoweredOn(s, args)
	return !on, err
}

func probeReachable(s sw.StateSwitch, _ sw.TransitionArgs) (bool, error) {
	st, ok := s.(*waitState)
	if !ok {
		return false, ErrInvalidStateSwitch
	}
	return st.probeErr == nil && st.lastProbe.Reachable(), nil
}

func probeFailed(s sw.StateSwitch, _ sw.TransitionArgs) (bool, error) {
	st, ok := s.(*waitState)
	if !ok {
		return false, ErrInvalidStateSwitch
	}
	return st.probeErr != nil, nil
}

func attemptsExhausted(s sw.StateSwitch, _ sw.TransitionArgs) (bool, error) {
	st, ok := s.(*waitState)
	if !ok {
		return false, ErrInvalidStateSwitch
	}
	return st.probeErr == nil && !st.lastProbe.Reachable() && st.Attempts >= st.MaxAttempts, nil
}

func attemptsLeft(s sw.StateSwitch, _ sw.TransitionArgs) (bool, error) {
	st, ok := s.(*waitState)
	if !ok {
		return false, ErrInvalidStateSwitch
	}
	return st.probeErr == nil && !st.lastProbe.Reachable() && st.Attempts < st.MaxAttempts, nil
}

func (s *Impl) pressPowerButton(ss sw.StateSwitch, args sw.TransitionArgs) error {
	st, targs, err := unpack(ss, args)
	if err != nil {
		return err
	}

	result, err := targs.session.PowerOn(targs.ctx)
	if err != nil {
		return err
	}
	st.powerOn = result

	// A rejected power-on is not fatal: the host may already be booting.
	if result != nil && result.Error != nil {
		s.logger.Warn().Err(result.Error).Msg("power-on action failed, polling anyway")
	}

	s.logger.Info().
		Str("wait", s.cfg.PowerOnDelay.String()).
		Msg("waiting until turned on")

	return s.sleep(targs.ctx, s.cfg.PowerOnDelay)
}

func (s *Impl) waitPollInterval(ss sw.StateSwitch, args sw.TransitionArgs) error {
	st, targs, err := unpack(ss, args)
	if err != nil {
		return err
	}

	s.logger.Info().
		Int("attempt", st.Attempts).
		Int("max_attempts", st.MaxAttempts).
		Str("diagnostic", st.lastProbe.Diagnostic).
		Msg("not yet reachable, waiting")

	return s.sleep(targs.ctx, s.cfg.PollInterval)
}

func (s *Impl) logAlreadyOn(_ sw.StateSwitch, _ sw.TransitionArgs) error {
	s.logger.Info().Msg("server is already turned on")
	return nil
}

func (s *Impl) logReachable(ss sw.StateSwitch, _ sw.TransitionArgs) error {
	st, ok := ss.(*waitState)
	if !ok {
		return ErrInvalidStateSwitch
	}
	st.Reachable = true

	s.logger.Info().Int("attempts", st.Attempts).Msg("server has booted")
	return nil
}

func (s *Impl) logProbeFailed(ss sw.StateSwitch, _ sw.TransitionArgs) error {
	st, ok := ss.(*waitState)
	if !ok {
		return ErrInvalidStateSwitch
	}

	s.logger.Error().Err(st.probeErr).Int("attempt", st.Attempts).Msg("probe failed, giving up")
	return nil
}

func (s *Impl) logExhausted(ss sw.StateSwitch, _ sw.TransitionArgs) error {
	st, ok := ss.(*waitState)
	if !ok {
		return ErrInvalidStateSwitch
	}

	s.logger.Warn().Int("attempts", st.Attempts).Msg("too many retries, giving up")
	return nil
}

// sleepContext is the default SleepFunc.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
