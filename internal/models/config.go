// Package models contains the data structures used throughout ilohelper.
package models

import "time"

// Config holds the complete configuration for a single invocation.
type Config struct {
	Controller  ControllerConfig
	Target      TargetConfig
	BootWait    BootWaitConfig
	WOL         *WOLConfig         // nil if not configured
	SSHShutdown *SSHShutdownConfig // nil if not configured
}

// Authentication modes supported by the controller session.
const (
	AuthBasic   = "basic"
	AuthSession = "session"
)

// ControllerConfig holds the out-of-band controller connection settings.
type ControllerConfig struct {
	Address            string // host[:port] or full https:// URL
	Username           string
	Password           string
	AuthMode           string // "basic" (default) or "session"
	InsecureSkipVerify bool
	Timeout            time.Duration
	Retries            int // transport retries for GET requests, POSTs are never retried

	ThermalPath string
	SystemPath  string
	ResetPath   string
}

// TargetConfig identifies the managed host on the network.
type TargetConfig struct {
	Address string
}

// Boot wait defaults.
const (
	DefaultMaxAttempts  = 100
	DefaultPowerOnDelay = 5 * time.Second
	DefaultPollInterval = 1 * time.Second
	DefaultProbeTimeout = 2 * time.Second
)

// BootWaitConfig bounds the boot-wait polling loop.
type BootWaitConfig struct {
	MaxAttempts  int
	PowerOnDelay time.Duration // single wait after the power-on action
	PollInterval time.Duration // wait between probes
	ProbeTimeout time.Duration // per-probe reply timeout
}
