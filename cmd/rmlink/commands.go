package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/rmlink/internal/config"
	"github.com/muurk/rmlink/internal/discovery"
	"github.com/muurk/rmlink/internal/protocol"
	"github.com/muurk/rmlink/internal/session"
	"github.com/muurk/rmlink/internal/ui"
	"github.com/muurk/rmlink/internal/urls"
)

// Command flags
var (
	scanTimeout   int
	scanConnect   bool
	codeName      string
	sendRepeat    int
	learnRF       bool
	learnSave     string
	learnWindow   int
	learnForce    bool
	watchInterval time.Duration
)

func init() {
	// Device selection flags (persistent on root)
	rootCmd.PersistentFlags().StringVarP(&deviceRef, "device", "d", "", "Device MAC address or configured nickname")
	rootCmd.PersistentFlags().StringVar(&deviceHost, "host", "", "Device IP address (skips discovery, needs --device MAC and --type)")
	rootCmd.PersistentFlags().IntVar(&devicePort, "port", discovery.DefaultPort, "Device UDP port")
	rootCmd.PersistentFlags().StringVar(&deviceType, "type", "", "Device type code, e.g. 0x2787 (with --host)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(tempCmd)
	rootCmd.AddCommand(watchCmd)
}

// commandContext returns a context cancelled on SIGINT or SIGTERM
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// scanCmd discovers devices on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for RM devices on the network",
	Long: `Scan for RM devices by broadcasting a hello packet on every IPv4 interface.

Every device that answers within the window is listed with its MAC address,
model and capability. Unsupported and unknown device types are skipped.`,
	Example: `  # Scan for 10 seconds (default from config)
  rmlink scan

  # Quick 3-second scan
  rmlink scan --timeout 3

  # Also check that each device accepts a session
  rmlink scan --connect`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 0, "Scan timeout in seconds (default from config)")
	scanCmd.Flags().BoolVar(&scanConnect, "connect", false, "Authenticate with each device found")
}

func runScan(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	registry, err := config.GetGlobalRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	timeout := registry.Preferences.DiscoverDuration()
	if scanTimeout > 0 {
		timeout = time.Duration(scanTimeout) * time.Second
	}

	p := ui.NewPrinter(nil)
	p.PrintHeader("Device Discovery", "rmlink scan", map[string]string{
		"Timeout": timeout.String(),
		"Connect": fmt.Sprint(scanConnect),
	})

	ctx, stop := commandContext()
	defer stop()

	scanner := discovery.NewScanner()
	scanner.Timeout = timeout
	scanner.Connect = scanConnect
	scanner.SessionOptions = sessionOptions(registry.Preferences)

	devices, err := scanner.ScanForDevicesWithContext(ctx)
	if err != nil {
		p.PrintError("Scan failed", err, []string{
			"Check that this machine has an IPv4 address on the device network",
			"Firewalls must allow UDP broadcast and replies on ephemeral ports",
		})
		return err
	}
	defer func() {
		for _, d := range devices {
			if d.Session != nil {
				d.Session.Close()
			}
		}
	}()

	if len(devices) == 0 {
		p.PrintWarning("No devices found", map[string]string{
			"Timeout": timeout.String(),
			"Help":    urls.Troubleshooting,
		})
		return nil
	}

	rows := make([]ui.DeviceRow, 0, len(devices))
	for _, d := range devices {
		row := deviceRow(d, registry)
		if scanConnect {
			row.Capability += " / " + authStatus(ctx, d, registry.Preferences)
		}
		rows = append(rows, row)
	}
	p.PrintDevices(rows)
	p.Newline()
	p.Println(fmt.Sprintf("Found %d device(s). Use 'rmlink devices add' to keep one under a nickname.", len(devices)))
	return nil
}

func deviceRow(d *discovery.Device, registry *config.Registry) ui.DeviceRow {
	row := ui.DeviceRow{
		MAC:        d.MAC.String(),
		Address:    d.Addr().String(),
		Model:      d.Type.Model,
		Type:       fmt.Sprintf("0x%04x", d.Type.Code),
		Capability: d.Type.Capability.String(),
	}
	if entry, ok := registry.Devices[d.Key()]; ok {
		row.Nickname = entry.Nickname
	}
	return row
}

// authStatus waits for the handshake started by the scanner
func authStatus(ctx context.Context, d *discovery.Device, prefs *config.Preferences) string {
	if d.Auth == nil {
		return "no session"
	}
	ctx, cancel := context.WithTimeout(ctx, prefs.RequestDuration())
	defer cancel()
	if _, err := d.Auth.Wait(ctx); err != nil {
		return "auth failed"
	}
	return "ready"
}

// authCmd authenticates with a device and shows the session
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate with a device",
	Long: `Perform the key-exchange handshake with a device and show the session.

Useful to check that a device is reachable and answering before sending codes.`,
	Example: `  # Authenticate with the only device on the network
  rmlink auth

  # Authenticate with a device at a known address
  rmlink auth --host 192.168.1.50 --device ec:0b:ae:8c:43:f1 --type 0x2787`,
	RunE: runAuth,
}

func runAuth(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	ctx, stop := commandContext()
	defer stop()

	return withTarget(ctx, func(_ *config.Registry, t *target) error {
		s := t.session()
		details := t.params()
		details["Session ID"] = s.SessionID().String()
		details["State"] = s.State().String()
		details["Capability"] = s.Info().Capability.String()
		ui.NewPrinter(nil).PrintSuccess("Authenticated", details)
		return nil
	})
}

// sendCmd sends an IR/RF code
var sendCmd = &cobra.Command{
	Use:   "send [hex-code]",
	Short: "Send an IR or RF code",
	Long: `Send a code to a device. The code is given as hex, or by name from the
code library with --name.

With --repeat the code is queued several times; each send waits for the
device to acknowledge the previous one.`,
	Example: `  # Send a raw code
  rmlink send 26001a001d1d1d1d...

  # Send a saved code to the device it was learned on
  rmlink send --name tv-power

  # Press the button three times
  rmlink send --name volume-up --repeat 3`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&codeName, "name", "n", "", "Name of a saved code")
	sendCmd.Flags().IntVar(&sendRepeat, "repeat", 1, "Number of times to send the code")
}

// resolveCode returns the code to send from the argument or the library.
// A saved code selects its own device when --device is not given.
func resolveCode(registry *config.Registry, args []string) ([]byte, error) {
	switch {
	case codeName != "" && len(args) > 0:
		return nil, errors.New("give either a hex code or --name, not both")
	case codeName != "":
		code := registry.GetCode(codeName)
		if code == nil {
			return nil, fmt.Errorf("no saved code named %q", codeName)
		}
		if deviceRef == "" && deviceHost == "" && code.Device != "" {
			deviceRef = code.Device
		}
		return code.Bytes()
	case len(args) == 1:
		data, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(args[0]), " ", ""))
		if err != nil {
			return nil, fmt.Errorf("invalid hex code: %w", err)
		}
		if len(data) == 0 {
			return nil, errors.New("invalid hex code: empty")
		}
		return data, nil
	}
	return nil, errors.New("a hex code or --name is required")
}

func runSend(cmd *cobra.Command, args []string) error {
	registry, err := config.GetGlobalRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	code, err := resolveCode(registry, args)
	if err != nil {
		return err
	}
	if sendRepeat < 1 {
		return errors.New("--repeat must be at least 1")
	}
	cmd.SilenceUsage = true

	ctx, stop := commandContext()
	defer stop()

	return withTarget(ctx, func(_ *config.Registry, t *target) error {
		q := t.session().NewQueue()
		defer q.Close()

		results := make([]<-chan session.QueueResult, 0, sendRepeat)
		for i := 0; i < sendRepeat; i++ {
			ch, err := q.Enqueue(code)
			if err != nil {
				return err
			}
			results = append(results, ch)
		}

		var rtts []string
		for i, ch := range results {
			var r session.QueueResult
			select {
			case r = <-ch:
			case <-ctx.Done():
				return ctx.Err()
			}
			if r.Err != nil {
				ui.NewPrinter(nil).PrintError("Send failed", fmt.Errorf("send %d of %d: %w", i+1, sendRepeat, r.Err), []string{
					"The device did not acknowledge the code in time",
					"Run 'rmlink auth' to check the device is answering",
				})
				return r.Err
			}
			rtts = append(rtts, r.Reply.RTT.Round(time.Millisecond).String())
		}

		details := t.params()
		details["Bytes"] = fmt.Sprint(len(code))
		details["Sent"] = fmt.Sprint(sendRepeat)
		details["Round trip"] = strings.Join(rtts, ", ")
		if codeName != "" {
			details["Code"] = codeName
		}
		ui.NewPrinter(nil).PrintSuccess("Code sent", details)
		return nil
	})
}

// learnCmd captures a code from a remote
var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Learn an IR or RF code from a remote",
	Long: `Put the device into learning mode and wait for a button press.

IR learning: point the remote at the device and press the button once.

RF learning (--rf, RF capable models only) runs in two phases. First hold the
button down while the device sweeps for the frequency, then release it and
press it once more so the code can be captured.

With --save the code is stored in the code library under the given name.`,
	Example: `  # Learn an IR code and print it
  rmlink learn

  # Learn and store it
  rmlink learn --save tv-power

  # Learn an RF code with a longer window
  rmlink learn --rf --save garage --window 60`,
	RunE: runLearn,
}

func init() {
	learnCmd.Flags().BoolVar(&learnRF, "rf", false, "Learn an RF code (frequency sweep first)")
	learnCmd.Flags().StringVarP(&learnSave, "save", "s", "", "Save the code under this name")
	learnCmd.Flags().IntVar(&learnWindow, "window", 30, "Seconds to wait for the remote")
	learnCmd.Flags().BoolVarP(&learnForce, "force", "f", false, "Overwrite a saved code without asking")
}

var (
	irSteps = []ui.Step{
		{Key: string(session.StageLearning), Name: "Waiting for a button press"},
		{Key: string(session.StageCaptured), Name: "Code captured"},
	}
	rfSteps = []ui.Step{
		{Key: string(session.StageSweeping), Name: "Sweeping frequencies (hold the button)"},
		{Key: string(session.StageFrequencyFound), Name: "Frequency found (release the button)"},
		{Key: string(session.StageCapturing), Name: "Capturing (press the button once)"},
		{Key: string(session.StageCaptured), Name: "Code captured"},
	}
)

func runLearn(cmd *cobra.Command, args []string) error {
	registry, err := config.GetGlobalRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if learnWindow < 1 {
		return errors.New("--window must be at least 1 second")
	}
	cmd.SilenceUsage = true

	if learnSave != "" && registry.GetCode(learnSave) != nil && !learnForce {
		if !ui.ConfirmOverwriteCode(os.Stdin, os.Stdout, learnSave) {
			return errors.New("cancelled")
		}
	}

	ctx, stop := commandContext()
	defer stop()

	return withTarget(ctx, func(registry *config.Registry, t *target) error {
		s := t.session()
		window := time.Duration(learnWindow) * time.Second

		kind, steps, title := config.KindIR, irSteps, "IR Learning"
		learn := s.Learn
		if learnRF {
			if !s.Info().RFCapable() {
				return fmt.Errorf("%w: %s", session.ErrNotRFCapable, s.Info())
			}
			kind, steps, title = config.KindRF, rfSteps, "RF Learning"
			learn = s.LearnRF
		}

		params := t.params()
		params["Window"] = window.String()
		if learnSave != "" {
			params["Save as"] = learnSave
		}

		code, err := ui.RunLearn(ctx, ui.LearnConfig{
			Title:   title,
			Command: "rmlink learn",
			Params:  params,
			Label:   "Learn window",
			Steps:   steps,
			Window:  window,
			Run: func(ctx context.Context, report func(string)) ([]byte, error) {
				ctx, cancel := context.WithTimeout(ctx, window)
				defer cancel()
				return learn(ctx, session.DefaultPollInterval, func(stage session.LearnStage) {
					report(string(stage))
				})
			},
		})

		p := ui.NewPrinter(nil)
		switch {
		case errors.Is(err, context.Canceled):
			p.PrintWarning("Learning cancelled", nil)
			return nil
		case err != nil:
			p.PrintError("Learning failed", err, []string{
				"Press the remote button within the learn window",
				"Hold the remote a few centimetres from the device",
				"RF remotes need --rf and an RF capable model",
			})
			return err
		}

		details := map[string]string{
			"Bytes": fmt.Sprint(len(code)),
			"Code":  truncate(hex.EncodeToString(code), 48),
		}
		if learnSave != "" {
			registry.SaveCode(learnSave, code, t.device.MAC, kind)
			if err := registry.Save(); err != nil {
				return fmt.Errorf("failed to save code: %w", err)
			}
			details["Saved as"] = learnSave
		}
		p.PrintSuccess("Code captured", details)
		if learnSave == "" {
			p.Println(hex.EncodeToString(code))
		}
		return nil
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// tempCmd reads the temperature sensor
var tempCmd = &cobra.Command{
	Use:   "temp",
	Short: "Read temperature and humidity",
	Long: `Read the built-in sensor of a device.

Humidity is only reported by models that have a humidity sensor.`,
	Example: `  rmlink temp --device living-room`,
	RunE:    runTemp,
}

func runTemp(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	ctx, stop := commandContext()
	defer stop()

	return withTarget(ctx, func(_ *config.Registry, t *target) error {
		reading, rtt, err := readSensor(ctx, t.session())
		if err != nil {
			ui.NewPrinter(nil).PrintError("Sensor read failed", err, []string{
				"Not every model has a temperature sensor",
			})
			return err
		}

		details := t.params()
		details["Temperature"] = fmt.Sprintf("%.1f °C", reading.Celsius)
		if reading.HasHumidity {
			details["Humidity"] = fmt.Sprintf("%.1f %%", reading.Humidity)
		}
		details["Round trip"] = rtt.Round(time.Millisecond).String()
		ui.NewPrinter(nil).PrintSuccess("Sensor reading", details)
		return nil
	})
}

// readSensor queries the sensors and waits for the typed reading
func readSensor(ctx context.Context, s *session.Session) (*protocol.TemperatureEvent, time.Duration, error) {
	req, err := s.CheckTemperature()
	if err != nil {
		return nil, 0, err
	}
	reply, err := req.Wait(ctx)
	if err != nil {
		return nil, 0, err
	}
	reading, ok := reply.Event.(*protocol.TemperatureEvent)
	if !ok {
		return nil, reply.RTT, fmt.Errorf("device returned no sensor data (% x)", reply.Payload)
	}
	return reading, reply.RTT, nil
}

// watchCmd streams device events
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream events from a device",
	Long: `Subscribe to a device and print every event it reports until interrupted.

The sensors are polled at --interval so temperature readings keep arriving;
codes captured while another tool has the device in learning mode are shown
as well.`,
	Example: `  # Poll every 30 seconds (default)
  rmlink watch --device living-room

  # Poll every 5 seconds
  rmlink watch --interval 5s`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 30*time.Second, "Sensor poll interval (0 disables polling)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	ctx, stop := commandContext()
	defer stop()

	return withTarget(ctx, func(_ *config.Registry, t *target) error {
		s := t.session()
		sub, err := s.Subscribe()
		if err != nil {
			return err
		}
		defer sub.Close()

		p := ui.NewPrinter(nil)
		p.PrintHeader("Event Stream", "rmlink watch", t.params())

		var tick <-chan time.Time
		if watchInterval > 0 {
			ticker := time.NewTicker(watchInterval)
			defer ticker.Stop()
			tick = ticker.C
			if _, err := s.CheckTemperature(); err != nil {
				return err
			}
		}

		for {
			select {
			case <-ctx.Done():
				p.Newline()
				return nil
			case <-tick:
				if _, err := s.CheckTemperature(); err != nil {
					return err
				}
			case ev, ok := <-sub.Events():
				if !ok {
					return session.ErrClosed
				}
				p.PrintEvent(time.Now(), ev.Kind(), t.name(), ev.String())
			}
		}
	})
}
