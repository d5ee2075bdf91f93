// Rmlink controls Broadlink RM infrared and RF blasters on the local network.
//
// It discovers devices with the vendor's broadcast hello, authenticates a
// session with each one, and sends, learns and stores IR/RF codes. Learned
// codes are kept by name in the rmlink config file.
//
// Usage:
//
//	rmlink [command] [flags]
//
// See 'rmlink --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/rmlink/internal/config"
	"github.com/muurk/rmlink/internal/logging"
	"github.com/muurk/rmlink/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "rmlink",
	Short: "Broadlink RM IR/RF Blaster Utility",
	Long: `Discover, control and teach Broadlink RM infrared and RF blasters.

rmlink talks to RM devices directly over UDP on the local network. No vendor
cloud account is required. Learned codes are stored by name in the config
file and can be replayed with 'rmlink send --name'.

Devices can be found by broadcast discovery or defined by hand in the config
file, then referenced by MAC address or nickname with --device.`,
	Version: version.Version,
	Example: `  # Find devices on the network
  rmlink scan

  # Learn an IR code and store it
  rmlink learn --save tv-power

  # Send it again
  rmlink send --name tv-power

  # Read the temperature sensor of a named device
  rmlink temp --device living-room`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: $"+config.EnvConfigPath+" or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); default from $"+logging.LogLevelEnvVar)

	rootCmd.AddCommand(versionCmd)
}

// setup points the config layer at --config and initializes logging.
// The level comes from --log-level, then $RMLINK_LOG_LEVEL, then the config
// file; with none of them set logging stays silent.
func setup() error {
	if configPath != "" {
		if err := os.Setenv(config.EnvConfigPath, configPath); err != nil {
			return err
		}
	}

	level := logLevel
	if level == "" && os.Getenv(logging.LogLevelEnvVar) == "" {
		// A broken config file is reported by the commands that need it
		if registry, err := config.GetGlobalRegistry(); err == nil {
			level = registry.Preferences.LogLevel
		}
	}
	return logging.Initialize(level)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("rmlink " + version.Full())
	},
}
