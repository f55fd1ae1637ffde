package models

import "time"

// SSHShutdownConfig holds graceful shutdown configuration.
type SSHShutdownConfig struct {
	Host          string // defaults to the target address
	Port          int
	Username      string
	PrivateKey    []byte // loaded from file path
	KeyPath       string // path to key file
	ShutdownDelay int    // minutes (Linux), converted to seconds for Windows
	OS            string // "linux" (default) or "windows"

	// The host gets OfflineAttempts probes, OfflineInterval apart, to stop
	// answering before the controller forces it off.
	OfflineAttempts int
	OfflineInterval time.Duration
}

// SSHResult holds the result of an SSH operation.
type SSHResult struct {
	CommandRun bool
	Output     string
	Error      error
}

// ShutdownResult holds the result of a graceful shutdown with fallback.
type ShutdownResult struct {
	SSH       *SSHResult
	WentDown  bool
	ForcedOff bool
	PowerOff  *PowerActionResult
	Error     error
}
