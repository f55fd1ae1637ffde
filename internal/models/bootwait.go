package models

import "time"

// BootOutcome is the terminal result of a boot wait.
type BootOutcome string

// Boot wait outcomes.
const (
	OutcomeAlreadyOn       BootOutcome = "already_on"
	OutcomeBecameReachable BootOutcome = "became_reachable"
	OutcomeTimedOut        BootOutcome = "timed_out"
	OutcomeProbeError      BootOutcome = "probe_error"
	OutcomeCanceled        BootOutcome = "canceled"
)

// BootWaitState is the transient state of one boot wait.
type BootWaitState struct {
	Phase       string
	Attempts    int
	Reachable   bool
	MaxAttempts int
}

// BootWaitResult holds the result of a boot wait.
type BootWaitResult struct {
	Outcome       BootOutcome
	Attempts      int  // probes performed
	PowerOnIssued bool // false when the host was already on
	PowerOn       *PowerActionResult
	Duration      time.Duration
	Error         error // ErrProbe, ErrExhausted or a context error
}

// PollResult holds the result of polling a target until it answers (or stops answering).
type PollResult struct {
	Attempts int
	Reached  bool
	Last     *ProbeResult
	Error    error
}
