package discovery

import (
	"errors"
	"sync"
	"testing"

	"github.com/muurk/rmlink/internal/devicetype"
	"github.com/muurk/rmlink/internal/protocol"
)

var (
	macA = protocol.MAC{0xec, 0x0b, 0xae, 0x8c, 0x43, 0xf1}
	macB = protocol.MAC{0x24, 0xdf, 0xa7, 0x01, 0x02, 0x03}
)

func TestNewDevice(t *testing.T) {
	tests := []struct {
		name     string
		ip       string
		port     int
		code     uint16
		wantPort int
		wantErr  error
		invalid  bool
	}{
		{name: "default port", ip: "192.168.1.50", code: 0x2787, wantPort: 80},
		{name: "custom port", ip: "10.0.0.5", port: 8080, code: 0x5213, wantPort: 8080},
		{name: "unsupported type", ip: "192.168.1.50", code: 0x2711, wantErr: devicetype.ErrUnsupported},
		{name: "unknown type", ip: "192.168.1.50", code: 0x1234, wantErr: devicetype.ErrUnknown},
		{name: "bad address", ip: "not-an-ip", code: 0x2787, invalid: true},
		{name: "ipv6 address", ip: "fe80::1", code: 0x2787, invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDevice(tt.ip, tt.port, macA, tt.code)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewDevice() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if tt.invalid {
				if err == nil {
					t.Fatal("NewDevice() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewDevice() error = %v", err)
			}
			if d.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", d.Port, tt.wantPort)
			}
			if d.Type.Code != tt.code {
				t.Errorf("Type.Code = 0x%04x, want 0x%04x", d.Type.Code, tt.code)
			}
			if d.DiscoveredAt.IsZero() {
				t.Error("DiscoveredAt not set")
			}
		})
	}
}

func TestDevice_Accessors(t *testing.T) {
	d, err := NewDevice("192.168.1.50", 0, macA, 0x2787)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}

	if got := d.Key(); got != "ec0bae8c43f1" {
		t.Errorf("Key() = %q", got)
	}
	if got := d.Addr().String(); got != "192.168.1.50:80" {
		t.Errorf("Addr() = %q", got)
	}

	want := d.Type.String() + " [ec:0b:ae:8c:43:f1] at 192.168.1.50:80"
	if got := d.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestTable(t *testing.T) {
	table := NewTable()
	a, _ := NewDevice("192.168.1.50", 0, macA, 0x2787)
	b, _ := NewDevice("192.168.1.51", 0, macB, 0x5213)
	dup, _ := NewDevice("192.168.1.99", 0, macA, 0x2787)

	if !table.Add(a) {
		t.Fatal("Add(a) = false")
	}
	if !table.Add(b) {
		t.Fatal("Add(b) = false")
	}
	if table.Add(dup) {
		t.Error("Add() accepted a duplicate MAC")
	}
	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", table.Len())
	}

	if !table.Contains(macA) {
		t.Error("Contains(macA) = false")
	}
	if table.Contains(protocol.MAC{}) {
		t.Error("Contains(zero MAC) = true")
	}

	for _, key := range []string{"ec0bae8c43f1", "EC:0B:AE:8C:43:F1", "ec-0b-ae-8c-43-f1"} {
		got, ok := table.Get(key)
		if !ok || got != a {
			t.Errorf("Get(%q) = %v, %v", key, got, ok)
		}
	}
	if got, _ := table.Get("ec0bae8c43f1"); got.IP != "192.168.1.50" {
		t.Errorf("duplicate replaced the first entry: %s", got.IP)
	}
	if _, ok := table.Get("garbage"); ok {
		t.Error("Get(garbage) found a device")
	}

	devices := table.Devices()
	if len(devices) != 2 || devices[0] != b || devices[1] != a {
		t.Errorf("Devices() not ordered by MAC: %v", devices)
	}
}

func TestTable_ConcurrentAdd(t *testing.T) {
	table := NewTable()
	var wg sync.WaitGroup
	var mu sync.Mutex
	added := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := NewDevice("192.168.1.50", 0, macA, 0x2787)
			if table.Add(d) {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if added != 1 {
		t.Errorf("%d concurrent adds succeeded, want 1", added)
	}
}
