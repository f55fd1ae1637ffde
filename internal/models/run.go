package models

// RunResult collects what a single command produced. Only the fields
// belonging to the executed command are set.
type RunResult struct {
	Command      string
	Temperatures *TemperatureResult
	Status       *StatusResult
	PowerAction  *PowerActionResult
	BootWait     *BootWaitResult
	Wake         *WOLResult
	Poll         *PollResult
	Shutdown     *ShutdownResult
}
