package discovery

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/muurk/rmlink/internal/devicetype"
	"github.com/muurk/rmlink/internal/protocol"
	"github.com/muurk/rmlink/internal/session"
)

// DefaultPort is the UDP port RM devices listen on
const DefaultPort = 80

// Device represents a discovered RM device on the network
type Device struct {
	// MAC is the device hardware address
	MAC protocol.MAC

	// IP is the IPv4 address the announcement came from (e.g., "192.168.4.16")
	IP string

	// Port is the UDP port (typically 80)
	Port int

	// Type is the classification of the announced device type code
	Type devicetype.Info

	// Interface is the local address of the listener that heard the device
	Interface string

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time

	// Session is set when the scanner was asked to connect
	Session *session.Session

	// Auth is the handshake started for Session
	Auth *session.Request
}

// NewDevice builds a device record for a known address, MAC and type code.
// Used for devices defined by hand rather than discovered.
func NewDevice(ip string, port int, mac protocol.MAC, code uint16) (*Device, error) {
	info, err := devicetype.Validate(code)
	if err != nil {
		return nil, err
	}
	if net.ParseIP(ip).To4() == nil {
		return nil, fmt.Errorf("invalid IPv4 address %q", ip)
	}
	if port == 0 {
		port = DefaultPort
	}
	return &Device{
		MAC:          mac,
		IP:           ip,
		Port:         port,
		Type:         info,
		DiscoveredAt: time.Now(),
	}, nil
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("%s [%s] at %s:%d", d.Type, d.MAC, d.IP, d.Port)
}

// Key returns the table key, the MAC as 12 hex digits
func (d *Device) Key() string {
	return d.MAC.Hex()
}

// Addr returns the device's UDP address
func (d *Device) Addr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(d.IP), Port: d.Port}
}

// Table holds discovered devices keyed by MAC. Entries are never removed.
type Table struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

// NewTable creates an empty device table
func NewTable() *Table {
	return &Table{devices: make(map[string]*Device)}
}

// Add stores d unless its MAC is already known, and reports whether it did
func (t *Table) Add(d *Device) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.devices[d.Key()]; ok {
		return false
	}
	t.devices[d.Key()] = d
	return true
}

// Contains reports whether a MAC is known
func (t *Table) Contains(mac protocol.MAC) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.devices[mac.Hex()]
	return ok
}

// Get looks a device up by MAC in any form ParseMAC accepts
func (t *Table) Get(mac string) (*Device, bool) {
	m, err := protocol.ParseMAC(mac)
	if err != nil {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.devices[m.Hex()]
	return d, ok
}

// Devices returns all devices ordered by MAC
func (t *Table) Devices() []*Device {
	t.mu.RLock()
	devices := make([]*Device, 0, len(t.devices))
	for _, d := range t.devices {
		devices = append(devices, d)
	}
	t.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Key() < devices[j].Key()
	})
	return devices
}

// Len returns the number of devices
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.devices)
}

// Close closes every device session in the table
func (t *Table) Close() {
	for _, d := range t.Devices() {
		if d.Session != nil {
			d.Session.Close()
		}
	}
}
