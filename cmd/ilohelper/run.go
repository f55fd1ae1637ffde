package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/ilohelper/internal/config"
	"github.com/fgeck/ilohelper/internal/models"
	"github.com/fgeck/ilohelper/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const argsUsage = "[controller] [account] [password] [target]"

type commandInfo struct {
	name  string
	short string
	long  string
}

var commandInfos = []commandInfo{
	{
		name:  runner.CommandTemperatures,
		short: "Print the controller's temperature sensors",
		long:  `Read the thermal resource and print every sensor reading with min, max and mean over present sensors.`,
	},
	{
		name:  runner.CommandServerStatus,
		short: "Print temperatures, power state, health, memory and CPU",
		long:  `Read temperatures and the computer system resource of the managed server.`,
	},
	{
		name:  runner.CommandStartServer,
		short: "Press the power button",
		long:  `Submit a PushPowerButton reset action. The effect is not verified.`,
	},
	{
		name:  runner.CommandStopServer,
		short: "Force the server off",
		long:  `Submit a ForceOff reset action. The effect is not verified.`,
	},
	{
		name:  runner.CommandWaitForBoot,
		short: "Power the server on if needed and wait until it answers",
		long: `Wait until the operating system of the managed server answers on the network:
1. Read the power state (already on: done)
2. Press the power button and wait for the power-on delay
3. Ping the target until it answers or the attempts are exhausted`,
	},
	{
		name:  runner.CommandWake,
		short: "Send a Wake-on-LAN packet and wait until the target answers",
		long:  `Send a magic packet to the configured MAC address, then ping the target until it answers. Does not contact the controller.`,
	},
	{
		name:  runner.CommandShutdownServer,
		short: "Shut the OS down over SSH, forcing power off if needed",
		long: `Shut the managed server down gracefully:
1. Run the shutdown command over SSH
2. Ping the target until it stops answering
3. If either step fails, force the server off through the controller`,
	},
}

func commands() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(commandInfos))
	for _, info := range commandInfos {
		name := info.name
		cmds = append(cmds, &cobra.Command{
			Use:          name + " " + argsUsage,
			Short:        info.short,
			Long:         info.long,
			Args:         cobra.MaximumNArgs(4),
			SilenceUsage: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCommand(cmd.Context(), name, args)
			},
		})
	}
	return cmds
}

// loadConfig reads the optional config file and applies the positional
// arguments on top.
func loadConfig(args []string) (*models.Config, error) {
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}

	config.ApplyArgs(cfg, args)
	return cfg, nil
}

func validateFor(command string, cfg *models.Config) error {
	if runner.NeedsSession(command) {
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}
	if runner.NeedsTarget(command) {
		if err := config.ValidateTarget(cfg); err != nil {
			return err
		}
	}
	return nil
}

func runCommand(parent context.Context, command string, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	if err := validateFor(command, cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}

	log.Debug().
		Str("command", command).
		Str("controller", cfg.Controller.Address).
		Str("target", cfg.Target.Address).
		Msg("configuration loaded")

	if parent == nil {
		parent = context.Background()
	}

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	runnerSvc := runner.New(log.Logger, cfg.BootWait)
	result, runErr := runnerSvc.Run(ctx, command, *cfg)
	if result != nil {
		printResult(os.Stdout, result)
	}
	if runErr != nil {
		log.Error().Err(runErr).Str("command", command).Msg("command failed")
		return runErr
	}

	return nil
}
