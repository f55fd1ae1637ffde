package main

import (
	"fmt"
	"os"

	"github.com/fgeck/ilohelper/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate " + argsUsage,
	Short: "Validate configuration",
	Long:  `Validate the configuration file, environment and arguments without contacting the controller.`,
	Args:  cobra.MaximumNArgs(4),
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			log.Error().Str("file", configFile).Msg("config file not found")
			return fmt.Errorf("config file not found: %s", configFile)
		}
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	out := cmd.OutOrStdout()

	// Print configuration summary
	fmt.Fprintln(out, "Configuration is valid!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Controller:")
	fmt.Fprintf(out, "  Address: %s\n", cfg.Controller.Address)
	fmt.Fprintf(out, "  Username: %s\n", cfg.Controller.Username)
	fmt.Fprintf(out, "  Password: (configured)\n")
	fmt.Fprintf(out, "  Auth: %s\n", cfg.Controller.AuthMode)
	fmt.Fprintf(out, "  Verify TLS: %v\n", !cfg.Controller.InsecureSkipVerify)
	fmt.Fprintf(out, "  Timeout: %s\n", cfg.Controller.Timeout)
	fmt.Fprintf(out, "  Retries: %d\n", cfg.Controller.Retries)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Target: %s\n", orDefault(cfg.Target.Address, "(not set)"))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Boot Wait:")
	fmt.Fprintf(out, "  Max attempts: %d\n", cfg.BootWait.MaxAttempts)
	fmt.Fprintf(out, "  Power-on delay: %s\n", cfg.BootWait.PowerOnDelay)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.BootWait.PollInterval)
	fmt.Fprintf(out, "  Probe timeout: %s\n", cfg.BootWait.ProbeTimeout)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Optional Features:")
	fmt.Fprintf(out, "  Wake-on-LAN: %v\n", cfg.WOL != nil)
	fmt.Fprintf(out, "  SSH Shutdown: %v\n", cfg.SSHShutdown != nil)

	if cfg.WOL != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "WOL Configuration:")
		fmt.Fprintf(out, "  MAC Address: %s\n", cfg.WOL.MACAddress)
		fmt.Fprintf(out, "  Broadcast IP: %s\n", cfg.WOL.BroadcastIP)
	}

	if cfg.SSHShutdown != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "SSH Shutdown Configuration:")
		fmt.Fprintf(out, "  Host: %s\n", orDefault(cfg.SSHShutdown.Host, "(target address)"))
		fmt.Fprintf(out, "  Port: %d\n", cfg.SSHShutdown.Port)
		fmt.Fprintf(out, "  Username: %s\n", cfg.SSHShutdown.Username)
		fmt.Fprintf(out, "  OS: %s\n", cfg.SSHShutdown.OS)
		fmt.Fprintf(out, "  Shutdown Delay: %d minute(s)\n", cfg.SSHShutdown.ShutdownDelay)
		fmt.Fprintf(out, "  Offline wait: %d x %s\n", cfg.SSHShutdown.OfflineAttempts, cfg.SSHShutdown.OfflineInterval)
	}

	return nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
