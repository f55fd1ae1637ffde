package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configFile string
	verbose    bool
	quiet      bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "ilohelper",
	Short: "Operate a single server through its iLO/Redfish controller",
	Long: `ilohelper manages one physical server through its out-of-band controller:
  - read temperatures and server status
  - start and stop the server
  - wait until the operating system answers on the network
  - wake the server with Wake-on-LAN
  - shut the operating system down over SSH, forcing power off if needed

Connection settings come from the config file, ILOHELPER_* environment
variables, and the positional arguments:

  ilohelper <command> [controller] [account] [password] [target]`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (optional, env and arguments work without it)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	for _, cmd := range commands() {
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(validateCmd)
}

// setupLogging writes logs to stderr so command output on stdout stays
// machine readable.
func setupLogging() {
	if jsonOutput {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
