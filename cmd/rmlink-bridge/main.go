// Rmlink-bridge exposes the RM devices on the local network over WebSocket.
//
// It discovers and authenticates every RM device it can reach, streams their
// events to connected clients as JSON, and accepts send, send_named,
// temperature and devices requests. The bridge advertises itself over mDNS
// as _rmlink._tcp so clients can find it without configuration.
//
// Usage:
//
//	rmlink-bridge serve [flags]
//
// See 'rmlink-bridge serve --help' for available options.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/rmlink/internal/config"
	"github.com/muurk/rmlink/internal/discovery"
	"github.com/muurk/rmlink/internal/logging"
	"github.com/muurk/rmlink/internal/server"
	"github.com/muurk/rmlink/internal/urls"
	"github.com/muurk/rmlink/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rmlink-bridge",
	Short: "rmlink WebSocket Bridge",
	Long: `A WebSocket bridge between RM IR/RF blasters and home automation clients.

The bridge keeps one authenticated session per device and serializes code
sends per device, so several clients can share the same blasters.

For one-off commands and learning codes, use the 'rmlink' utility.

Protocol reference: ` + urls.Bridge,
	Version: version.Version,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Serve command flags
var (
	configPath  string
	certPath    string
	keyPath     string
	host        string
	port        int
	logLevel    string
	noAdvertise bool
	rescan      time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge",
	Long: `Start the bridge and serve WebSocket clients on /ws.

Listen address, mDNS advertisement and the rescan interval default to the
bridge section of the rmlink config file. Devices defined in the config file
are connected directly; all others are found by broadcast discovery, repeated
every rescan interval.

Provide --cert and --key to serve wss:// instead of ws://.`,
	Example: `  # Start with settings from the config file
  rmlink-bridge serve

  # Listen on a custom port with debug logging
  rmlink-bridge serve --port 9000 --log-level debug

  # Serve over TLS
  rmlink-bridge serve --cert fullchain.pem --key privkey.pem

  # Scan only once at startup, without mDNS
  rmlink-bridge serve --rescan 0 --no-advertise`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Config file path (default: $"+config.EnvConfigPath+" or the user config dir)")
	serveCmd.Flags().StringVar(&certPath, "cert", "", "Path to TLS certificate file")
	serveCmd.Flags().StringVar(&keyPath, "key", "", "Path to TLS private key file")
	serveCmd.Flags().StringVar(&host, "host", "", "Listen address (default from config)")
	serveCmd.Flags().IntVar(&port, "port", 0, "Listen port (default from config)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error; default from config or info)")
	serveCmd.Flags().BoolVar(&noAdvertise, "no-advertise", false, "Do not register the bridge over mDNS")
	serveCmd.Flags().DurationVar(&rescan, "rescan", -1, "Discovery interval, 0 scans once (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Validate: Either both cert and key are provided, or neither
	if (certPath != "") != (keyPath != "") {
		return fmt.Errorf("both --cert and --key must be provided together, or neither")
	}
	for _, path := range []string{certPath, keyPath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", path)
		}
	}
	cmd.SilenceUsage = true

	if configPath != "" {
		if err := os.Setenv(config.EnvConfigPath, configPath); err != nil {
			return err
		}
	}
	registry, err := config.GetGlobalRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := registry.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	prefs := registry.Preferences
	level := logLevel
	if level == "" {
		level = prefs.LogLevel
	}
	if level == "" {
		level = "info"
	}
	if err := logging.Initialize(level); err != nil {
		return err
	}

	cfg := bridgeConfig(prefs, registry)
	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}

	return srv.Start()
}

// bridgeConfig merges the command line over the config file preferences
func bridgeConfig(prefs *config.Preferences, registry *config.Registry) *server.Config {
	bridge := prefs.Bridge
	if bridge == nil {
		bridge = config.DefaultPreferences().Bridge
	}

	scanner := discovery.NewScanner()
	scanner.Timeout = prefs.DiscoverDuration()

	cfg := &server.Config{
		Host:           bridge.Host,
		Port:           bridge.Port,
		CertPath:       certPath,
		KeyPath:        keyPath,
		Advertise:      bridge.Advertise && !noAdvertise,
		RescanInterval: time.Duration(bridge.RescanSeconds) * time.Second,
		RequestTimeout: prefs.RequestDuration(),
		InitialCounter: prefs.InitialCounter,
		Scanner:        scanner,
		Registry:       registry,
	}
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}
	if rescan >= 0 {
		cfg.RescanInterval = rescan
	}
	return cfg
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("rmlink-bridge " + version.Full())
	},
}
