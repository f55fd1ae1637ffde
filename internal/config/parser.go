// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fgeck/ilohelper/internal/models"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. ILOHELPER_CONTROLLER_PASSWORD for controller.password.
const EnvPrefix = "ILOHELPER"

// Defaults matching the resource layout of HPE iLO controllers.
const (
	DefaultThermalPath = "/redfish/v1/Chassis/1/Thermal/"
	DefaultSystemPath  = "/redfish/v1/Systems/1"
	DefaultResetPath   = "/redfish/v1/Systems/1/Actions/ComputerSystem.Reset/"
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path. An empty path skips the
// file and builds the configuration from environment variables alone.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	if path != "" {
		p.v.SetConfigFile(path)

		if err := p.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{}

	cfg.Controller = models.ControllerConfig{
		Address:            p.expandEnv(p.v.GetString("controller.address")),
		Username:           p.expandEnv(p.v.GetString("controller.username")),
		Password:           p.expandEnv(p.v.GetString("controller.password")),
		AuthMode:           p.v.GetString("controller.auth"),
		InsecureSkipVerify: true,
		Timeout:            p.v.GetDuration("controller.timeout"),
		Retries:            p.v.GetInt("controller.retries"),
		ThermalPath:        p.v.GetString("controller.thermal_path"),
		SystemPath:         p.v.GetString("controller.system_path"),
		ResetPath:          p.v.GetString("controller.reset_path"),
	}

	// iLO ships a self-signed certificate, so verification is opt-in.
	if p.v.IsSet("controller.insecure_skip_verify") {
		cfg.Controller.InsecureSkipVerify = p.v.GetBool("controller.insecure_skip_verify")
	}

	if cfg.Controller.AuthMode == "" {
		cfg.Controller.AuthMode = models.AuthBasic
	}
	validAuth := map[string]bool{models.AuthBasic: true, models.AuthSession: true}
	if !validAuth[cfg.Controller.AuthMode] {
		return nil, fmt.Errorf("controller.auth must be one of: basic, session")
	}
	if cfg.Controller.Timeout == 0 {
		cfg.Controller.Timeout = 30 * time.Second
	}
	if !p.v.IsSet("controller.retries") {
		cfg.Controller.Retries = 2
	}
	if cfg.Controller.Retries < 0 {
		return nil, fmt.Errorf("controller.retries must not be negative")
	}
	if cfg.Controller.ThermalPath == "" {
		cfg.Controller.ThermalPath = DefaultThermalPath
	}
	if cfg.Controller.SystemPath == "" {
		cfg.Controller.SystemPath = DefaultSystemPath
	}
	if cfg.Controller.ResetPath == "" {
		cfg.Controller.ResetPath = DefaultResetPath
	}

	cfg.Target = models.TargetConfig{
		Address: p.expandEnv(p.v.GetString("target.address")),
	}

	cfg.BootWait = models.BootWaitConfig{
		MaxAttempts:  p.v.GetInt("boot_wait.max_attempts"),
		PowerOnDelay: p.v.GetDuration("boot_wait.power_on_delay"),
		PollInterval: p.v.GetDuration("boot_wait.poll_interval"),
		ProbeTimeout: p.v.GetDuration("boot_wait.probe_timeout"),
	}

	if cfg.BootWait.MaxAttempts == 0 {
		cfg.BootWait.MaxAttempts = models.DefaultMaxAttempts
	}
	if cfg.BootWait.MaxAttempts < 0 {
		return nil, fmt.Errorf("boot_wait.max_attempts must be positive")
	}
	if cfg.BootWait.PowerOnDelay == 0 {
		cfg.BootWait.PowerOnDelay = models.DefaultPowerOnDelay
	}
	if cfg.BootWait.PollInterval == 0 {
		cfg.BootWait.PollInterval = models.DefaultPollInterval
	}
	if cfg.BootWait.ProbeTimeout == 0 {
		cfg.BootWait.ProbeTimeout = models.DefaultProbeTimeout
	}

	// Parse optional WOL config.
	if p.sectionSet("wol", "mac_address", "broadcast_ip") {
		cfg.WOL = &models.WOLConfig{
			MACAddress:  p.v.GetString("wol.mac_address"),
			BroadcastIP: p.v.GetString("wol.broadcast_ip"),
		}

		if cfg.WOL.MACAddress == "" {
			return nil, fmt.Errorf("wol.mac_address is required when wol is configured")
		}
		if cfg.WOL.BroadcastIP == "" {
			cfg.WOL.BroadcastIP = "255.255.255.255"
		}
	}

	// Parse optional SSH shutdown config.
	if p.sectionSet("ssh_shutdown", "host", "port", "username", "key_path", "shutdown_delay", "os",
		"offline_attempts", "offline_interval") { //nolint:nestif // config parsing with defaults
		cfg.SSHShutdown = &models.SSHShutdownConfig{
			Host:            p.v.GetString("ssh_shutdown.host"),
			Port:            p.v.GetInt("ssh_shutdown.port"),
			Username:        p.v.GetString("ssh_shutdown.username"),
			KeyPath:         p.expandEnv(p.v.GetString("ssh_shutdown.key_path")),
			ShutdownDelay:   p.v.GetInt("ssh_shutdown.shutdown_delay"),
			OS:              p.v.GetString("ssh_shutdown.os"),
			OfflineAttempts: p.v.GetInt("ssh_shutdown.offline_attempts"),
			OfflineInterval: p.v.GetDuration("ssh_shutdown.offline_interval"),
		}

		if cfg.SSHShutdown.Port == 0 {
			cfg.SSHShutdown.Port = 22
		}
		if cfg.SSHShutdown.Username == "" {
			cfg.SSHShutdown.Username = "root"
		}
		if cfg.SSHShutdown.KeyPath == "" {
			return nil, fmt.Errorf("ssh_shutdown.key_path is required when ssh_shutdown is configured")
		}
		if cfg.SSHShutdown.OS == "" {
			cfg.SSHShutdown.OS = "linux"
		}
		validOS := map[string]bool{"linux": true, "windows": true}
		if !validOS[cfg.SSHShutdown.OS] {
			return nil, fmt.Errorf("ssh_shutdown.os must be one of: linux, windows")
		}
		if cfg.SSHShutdown.OfflineAttempts < 0 {
			return nil, fmt.Errorf("ssh_shutdown.offline_attempts must be positive")
		}
		if cfg.SSHShutdown.OfflineAttempts == 0 {
			cfg.SSHShutdown.OfflineAttempts = 60
		}
		if cfg.SSHShutdown.OfflineInterval < 0 {
			return nil, fmt.Errorf("ssh_shutdown.offline_interval must not be negative")
		}
		if cfg.SSHShutdown.OfflineInterval == 0 {
			cfg.SSHShutdown.OfflineInterval = 5 * time.Second
		}
	}

	return cfg, nil
}

// sectionSet reports whether an optional section is configured, either in
// the file or through one of its keys in the environment. AutomaticEnv only
// resolves leaf keys, so the section name alone misses env-only settings.
func (p *Parser) sectionSet(section string, keys ...string) bool {
	if p.v.IsSet(section) {
		return true
	}
	for _, key := range keys {
		if p.v.IsSet(section + "." + key) {
			return true
		}
	}
	return false
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// ApplyArgs overrides the connection settings with the positional command
// arguments: controller address, account, password and target address.
// Empty arguments leave the configured value untouched.
func ApplyArgs(cfg *models.Config, args []string) {
	if cfg == nil {
		return
	}

	fields := []*string{
		&cfg.Controller.Address,
		&cfg.Controller.Username,
		&cfg.Controller.Password,
		&cfg.Target.Address,
	}
	for i, arg := range args {
		if i >= len(fields) {
			break
		}
		if arg != "" {
			*fields[i] = arg
		}
	}
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Controller.Address == "" {
		return fmt.Errorf("controller.address is required")
	}

	if cfg.Controller.Username == "" {
		return fmt.Errorf("controller.username is required")
	}

	if cfg.Controller.Password == "" {
		return fmt.Errorf("controller.password is required")
	}

	return nil
}

// ValidateTarget checks the settings needed by commands that talk to the
// managed host itself.
func ValidateTarget(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Target.Address == "" {
		return fmt.Errorf("target.address is required")
	}

	return nil
}
