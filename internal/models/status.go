package models

import "encoding/json"

// PowerStateOff is the only controller power state reported as powered off.
const PowerStateOff = "Off"

// Reset types accepted by the ComputerSystem.Reset action.
const (
	ResetPushPowerButton = "PushPowerButton"
	ResetForceOff        = "ForceOff"
)

// SystemStatus is the subset of the ComputerSystem resource the tool reports.
type SystemStatus struct {
	PowerState string // as reported by the controller
	PoweredOn  bool
	Health     string
	Model      string
	HostName   string
	MemoryGiB  float64
	Processor  json.RawMessage // ProcessorSummary, passed through unchanged
}

// PoweredOnFromState maps a controller power state to a boolean.
// "Off" is false, every other value (On, PoweringOn, PoweringOff, ...) is true.
func PoweredOnFromState(state string) bool {
	return state != PowerStateOff
}

// StatusOptions controls side effects of a status query.
type StatusOptions struct {
	// RefreshTemperatures queries the thermal resource before the system
	// resource and attaches the result.
	RefreshTemperatures bool
}

// StatusResult holds the result of a status query.
type StatusResult struct {
	Status       *SystemStatus      // nil on failure
	Temperatures *TemperatureResult // nil unless a refresh was requested
	Error        error
}

// PowerActionResult holds the result of a reset action. The effect of the
// action is never verified.
type PowerActionResult struct {
	ResetType  string
	StatusCode int
	Error      error
}
