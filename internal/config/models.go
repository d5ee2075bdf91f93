package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/muurk/rmlink/internal/devicetype"
	"github.com/muurk/rmlink/internal/protocol"
)

// Code kinds
const (
	KindIR = "ir"
	KindRF = "rf"
)

// Registry represents the entire user configuration file.
// This stores manually defined devices, learned codes and application preferences.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by MAC as 12 hex digits
	Codes       map[string]*Code   `yaml:"codes,omitempty"`   // Keyed by code name
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device is a device defined by hand, for networks where broadcast
// discovery does not reach it.
type Device struct {
	Nickname string `yaml:"nickname,omitempty"` // User-friendly name
	Host     string `yaml:"host"`               // IPv4 address
	Port     int    `yaml:"port,omitempty"`     // UDP port, 80 when empty
	Type     string `yaml:"type"`               // Device type code, e.g. "0x2787"
}

// TypeCode parses the device type code
func (d *Device) TypeCode() (uint16, error) {
	v, err := strconv.ParseUint(d.Type, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid device type %q: %w", d.Type, err)
	}
	return uint16(v), nil
}

// Code is a learned IR or RF code
type Code struct {
	Data    string    `yaml:"data"`             // Raw code bytes as hex
	Device  string    `yaml:"device,omitempty"` // MAC of the device that learned it
	Kind    string    `yaml:"kind"`             // ir or rf
	Learned time.Time `yaml:"learned,omitempty"`
}

// Bytes decodes the code data
func (c *Code) Bytes() ([]byte, error) {
	data, err := hex.DecodeString(c.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid code data: %w", err)
	}
	return data, nil
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	DiscoverTimeout int          `yaml:"discover_timeout"`    // Discovery window in seconds
	RequestTimeout  int          `yaml:"request_timeout"`     // Per-request timeout in seconds
	InitialCounter  uint16       `yaml:"initial_counter"`     // First request id of a session
	LogLevel        string       `yaml:"log_level,omitempty"` // debug, info, warn or error
	Bridge          *BridgePrefs `yaml:"bridge,omitempty"`
}

// BridgePrefs configures the WebSocket bridge
type BridgePrefs struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Advertise     bool   `yaml:"advertise"`      // Announce the bridge over mDNS
	RescanSeconds int    `yaml:"rescan_seconds"` // Periodic discovery, 0 disables
}

// DefaultPreferences returns the preferences used when the file has none
func DefaultPreferences() *Preferences {
	return &Preferences{
		DiscoverTimeout: 10,
		RequestTimeout:  5,
		InitialCounter:  4444,
		Bridge: &BridgePrefs{
			Host:          "0.0.0.0",
			Port:          8780,
			Advertise:     true,
			RescanSeconds: 300,
		},
	}
}

// DiscoverDuration returns the discovery window
func (p *Preferences) DiscoverDuration() time.Duration {
	return time.Duration(p.DiscoverTimeout) * time.Second
}

// RequestDuration returns the per-request timeout
func (p *Preferences) RequestDuration() time.Duration {
	return time.Duration(p.RequestTimeout) * time.Second
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     1,
		Devices:     make(map[string]*Device),
		Codes:       make(map[string]*Code),
		Preferences: DefaultPreferences(),
	}
}

// GetDevice retrieves a device by MAC in any form, or by nickname.
// Returns nil if no device matches.
func (r *Registry) GetDevice(ref string) *Device {
	if mac, err := protocol.ParseMAC(ref); err == nil {
		if d, ok := r.Devices[mac.Hex()]; ok {
			return d
		}
	}
	for _, d := range r.Devices {
		if d.Nickname != "" && strings.EqualFold(d.Nickname, ref) {
			return d
		}
	}
	return nil
}

// DeviceMAC returns the MAC key of a device referenced by MAC or nickname
func (r *Registry) DeviceMAC(ref string) (protocol.MAC, bool) {
	if mac, err := protocol.ParseMAC(ref); err == nil {
		return mac, true
	}
	for key, d := range r.Devices {
		if d.Nickname != "" && strings.EqualFold(d.Nickname, ref) {
			mac, err := protocol.ParseMAC(key)
			return mac, err == nil
		}
	}
	return protocol.MAC{}, false
}

// SetDevice adds or replaces a manual device definition
func (r *Registry) SetDevice(mac protocol.MAC, host string, port int, code uint16) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}
	d, ok := r.Devices[mac.Hex()]
	if !ok {
		d = &Device{}
		r.Devices[mac.Hex()] = d
	}
	d.Host = host
	d.Port = port
	d.Type = fmt.Sprintf("0x%04x", code)
	return d
}

// SetDeviceNickname sets a user-friendly nickname for a known device.
func (r *Registry) SetDeviceNickname(mac protocol.MAC, nickname string) error {
	d, ok := r.Devices[mac.Hex()]
	if !ok {
		return fmt.Errorf("device %s is not defined", mac)
	}
	d.Nickname = nickname
	return nil
}

// SaveCode stores a learned code under name, replacing any previous one
func (r *Registry) SaveCode(name string, data []byte, mac protocol.MAC, kind string) {
	if r.Codes == nil {
		r.Codes = make(map[string]*Code)
	}
	r.Codes[name] = &Code{
		Data:    hex.EncodeToString(data),
		Device:  mac.Hex(),
		Kind:    kind,
		Learned: time.Now(),
	}
}

// GetCode retrieves a code by name. Returns nil if it doesn't exist.
func (r *Registry) GetCode(name string) *Code {
	return r.Codes[name]
}

// DeleteCode removes a code and reports whether it existed
func (r *Registry) DeleteCode(name string) bool {
	if _, ok := r.Codes[name]; !ok {
		return false
	}
	delete(r.Codes, name)
	return true
}

// CodeNames returns all code names in sorted order
func (r *Registry) CodeNames() []string {
	names := make([]string, 0, len(r.Codes))
	for name := range r.Codes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every entry and returns all problems found
func (r *Registry) Validate() error {
	var errs []error

	if r.Version != 1 {
		errs = append(errs, fmt.Errorf("unsupported config version: %d (expected 1)", r.Version))
	}

	if p := r.Preferences; p != nil {
		if p.DiscoverTimeout <= 0 {
			errs = append(errs, fmt.Errorf("discover_timeout must be positive, got %d", p.DiscoverTimeout))
		}
		if p.RequestTimeout <= 0 {
			errs = append(errs, fmt.Errorf("request_timeout must be positive, got %d", p.RequestTimeout))
		}
		if b := p.Bridge; b != nil && (b.Port <= 0 || b.Port > 65535) {
			errs = append(errs, fmt.Errorf("bridge port %d out of range", b.Port))
		}
	}

	for key, d := range r.Devices {
		mac, err := protocol.ParseMAC(key)
		if err != nil {
			errs = append(errs, fmt.Errorf("device %q: %w", key, err))
			continue
		}
		if key != mac.Hex() {
			errs = append(errs, fmt.Errorf("device %q: key must be 12 lowercase hex digits", key))
		}
		code, err := d.TypeCode()
		if err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", key, err))
		} else if _, err := devicetype.Validate(code); err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", key, err))
		}
		if d.Host == "" {
			errs = append(errs, fmt.Errorf("device %s: host is required", key))
		}
	}

	for name, c := range r.Codes {
		if _, err := c.Bytes(); err != nil {
			errs = append(errs, fmt.Errorf("code %q: %w", name, err))
		}
		if c.Kind != KindIR && c.Kind != KindRF {
			errs = append(errs, fmt.Errorf("code %q: kind must be %s or %s, got %q", name, KindIR, KindRF, c.Kind))
		}
	}

	return errors.Join(errs...)
}
