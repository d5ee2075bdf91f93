package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/muurk/rmlink/internal/config"
	"github.com/muurk/rmlink/internal/discovery"
	"github.com/muurk/rmlink/internal/protocol"
	"github.com/muurk/rmlink/internal/session"
	"github.com/muurk/rmlink/internal/ui"
	"github.com/muurk/rmlink/internal/urls"
)

// Device selection flags, shared by every command that talks to a device
var (
	deviceRef  string
	deviceHost string
	devicePort int
	deviceType string
)

var errNoDevice = errors.New("no device found")

// connectTroubleshooting is shown when no session could be established
var connectTroubleshooting = []string{
	"Check that the device is powered on and joined to this network",
	"Broadcast discovery needs the device on the same subnet",
	"Define the device by hand: rmlink devices add <mac> <host> --type 0x2787",
	"Or pass --host, --device <mac> and --type to skip discovery",
	"Supported models: " + urls.SupportedDevices,
}

// target is a device with an authenticated session
type target struct {
	device   *discovery.Device
	nickname string
}

func (t *target) session() *session.Session { return t.device.Session }

func (t *target) name() string {
	if t.nickname != "" {
		return t.nickname
	}
	return t.device.MAC.String()
}

func (t *target) close() {
	if t.device.Session != nil {
		t.device.Session.Close()
	}
}

// params returns the header parameters describing the target
func (t *target) params() map[string]string {
	p := map[string]string{
		"Device":  t.device.MAC.String(),
		"Address": t.device.Addr().String(),
		"Model":   t.device.Type.Model,
	}
	if t.nickname != "" {
		p["Name"] = t.nickname
	}
	return p
}

// parseTypeCode accepts "0x2787", "2787" (hex) or a decimal with a leading #
func parseTypeCode(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("device type is required")
	}
	base := 16
	switch {
	case strings.HasPrefix(s, "#"):
		s, base = s[1:], 10
	case strings.HasPrefix(strings.ToLower(s), "0x"):
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, base, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid device type %q: %w", s, err)
	}
	return uint16(v), nil
}

// sessionOptions builds session options from the config preferences
func sessionOptions(prefs *config.Preferences) []session.Option {
	return []session.Option{
		session.WithTimeout(prefs.RequestDuration()),
		session.WithInitialCounter(prefs.InitialCounter),
	}
}

// findDevice picks the device selected by the flags without connecting.
//
// Order: --host builds the device from flags; otherwise a device defined in
// the config file is used; otherwise the network is scanned.
func findDevice(ctx context.Context, registry *config.Registry) (*discovery.Device, string, error) {
	if deviceHost != "" {
		mac, err := protocol.ParseMAC(deviceRef)
		if err != nil {
			return nil, "", fmt.Errorf("--host needs --device set to the MAC address: %w", err)
		}
		code, err := parseTypeCode(deviceType)
		if err != nil {
			return nil, "", err
		}
		d, err := discovery.NewDevice(deviceHost, devicePort, mac, code)
		return d, "", err
	}

	if d, nickname, ok, err := configuredDevice(registry, deviceRef); ok {
		return d, nickname, err
	}

	return scanForDevice(ctx, registry, deviceRef)
}

// configuredDevice resolves ref against the devices in the config file. With
// an empty ref the only configured device is selected.
func configuredDevice(registry *config.Registry, ref string) (*discovery.Device, string, bool, error) {
	var key string
	switch {
	case ref == "" && len(registry.Devices) == 1:
		for k := range registry.Devices {
			key = k
		}
	case ref != "":
		mac, ok := registry.DeviceMAC(ref)
		if !ok {
			return nil, "", false, nil
		}
		if _, defined := registry.Devices[mac.Hex()]; !defined {
			return nil, "", false, nil
		}
		key = mac.Hex()
	default:
		return nil, "", false, nil
	}

	entry := registry.Devices[key]
	mac, err := protocol.ParseMAC(key)
	if err != nil {
		return nil, "", true, err
	}
	code, err := entry.TypeCode()
	if err != nil {
		return nil, "", true, fmt.Errorf("device %s: %w", key, err)
	}
	d, err := discovery.NewDevice(entry.Host, entry.Port, mac, code)
	if err != nil {
		return nil, "", true, fmt.Errorf("device %s: %w", key, err)
	}
	return d, entry.Nickname, true, nil
}

// scanForDevice runs discovery and returns the device matching ref, or the
// only device found when ref is empty
func scanForDevice(ctx context.Context, registry *config.Registry, ref string) (*discovery.Device, string, error) {
	var want *protocol.MAC
	if ref != "" {
		mac, err := protocol.ParseMAC(ref)
		if err != nil {
			return nil, "", fmt.Errorf("unknown device %q: not a MAC address or configured nickname", ref)
		}
		want = &mac
	}

	scanner := discovery.NewScanner()
	scanner.Timeout = registry.Preferences.DiscoverDuration()
	if want != nil {
		scanner.Accept = func(d *discovery.Device) bool { return d.MAC == *want }
		// Stop scanning as soon as the wanted device answers
		scanCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		scanner.OnDevice = func(*discovery.Device) { cancel() }
		ctx = scanCtx
	}

	devices, err := scanner.ScanForDevicesWithContext(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("discovery failed: %w", err)
	}

	switch {
	case len(devices) == 0:
		return nil, "", errNoDevice
	case len(devices) > 1:
		macs := make([]string, len(devices))
		for i, d := range devices {
			macs[i] = d.MAC.String()
		}
		return nil, "", fmt.Errorf("found %d devices, choose one with --device: %s", len(devices), strings.Join(macs, ", "))
	}
	return devices[0], "", nil
}

// connectTarget finds the selected device and authenticates a session.
// The caller must close the returned target.
func connectTarget(ctx context.Context, registry *config.Registry) (*target, error) {
	d, nickname, err := findDevice(ctx, registry)
	if err != nil {
		return nil, err
	}
	if nickname == "" {
		if entry, ok := registry.Devices[d.Key()]; ok {
			nickname = entry.Nickname
		}
	}

	if err := discovery.Connect(ctx, d, sessionOptions(registry.Preferences)...); err != nil {
		return nil, err
	}
	t := &target{device: d, nickname: nickname}

	waitCtx, cancel := context.WithTimeout(ctx, registry.Preferences.RequestDuration()+time.Second)
	defer cancel()
	if _, err := d.Auth.Wait(waitCtx); err != nil {
		t.close()
		return nil, fmt.Errorf("authentication with %s failed: %w", d.Addr(), err)
	}
	return t, nil
}

// withTarget loads the registry, connects to the selected device and runs fn.
// Connection failures are rendered with troubleshooting hints.
func withTarget(ctx context.Context, fn func(*config.Registry, *target) error) error {
	registry, err := config.GetGlobalRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	t, err := connectTarget(ctx, registry)
	if err != nil {
		ui.NewPrinter(nil).PrintError("Could not reach device", err, connectTroubleshooting)
		return err
	}
	defer t.close()

	return fn(registry, t)
}
