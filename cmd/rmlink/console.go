package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/muurk/rmlink/internal/config"
	"github.com/muurk/rmlink/internal/console"
	"github.com/muurk/rmlink/internal/logging"
)

var consoleLogFile string

// consoleCmd opens the full-screen remote control
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive remote control",
	Long: `Open a full-screen console that scans for devices, connects to the one you
pick and sends codes from the library with a key press.

Log output would draw over the screen, so the console only logs when
--log-file is given.`,
	Example: `  rmlink console

  # Keep a debug log while using the console
  rmlink console --log-file /tmp/rmlink.log --log-level debug`,
	RunE: runConsole,
}

func init() {
	consoleCmd.Flags().StringVar(&consoleLogFile, "log-file", "", "Write logs to this file")
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("the console needs a terminal; use 'rmlink scan' and 'rmlink send' in scripts")
	}
	cmd.SilenceUsage = true

	registry, err := config.GetGlobalRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if consoleLogFile == "" {
		logging.SetLogger(nil)
	} else {
		level := logLevel
		if level == "" {
			level = os.Getenv(logging.LogLevelEnvVar)
		}
		if level == "" {
			level = registry.Preferences.LogLevel
		}
		if level == "" {
			level = "info"
		}
		if err := logging.InitializeWithOutput(level, consoleLogFile); err != nil {
			return err
		}
	}
	defer logging.Sync()

	return console.Run(console.NewConfig(registry))
}
