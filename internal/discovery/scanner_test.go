package discovery

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muurk/rmlink/internal/protocol"
	"github.com/muurk/rmlink/internal/protocol/protocoltest"
	"github.com/muurk/rmlink/internal/session"
)

type announced struct {
	mac  protocol.MAC
	code uint16
}

// responder answers hello packets with a fixed set of announcements and
// authentication requests with a handshake
type responder struct {
	t     *testing.T
	conn  net.PacketConn
	list  []announced
	hello atomic.Int32
	auths atomic.Int32
}

func newResponder(t *testing.T, list ...announced) *responder {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	r := &responder{t: t, conn: conn, list: list}
	t.Cleanup(func() { conn.Close() })
	go r.serve()
	return r
}

func (r *responder) addr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

func (r *responder) serve() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		data := buf[:n]

		if n == protocol.HelloSize && data[0x26] == protocol.CommandHello {
			r.hello.Add(1)
			for _, a := range r.list {
				r.conn.WriteTo(protocoltest.BuildAnnouncement(a.mac, a.code), addr)
			}
			// Noise that must be ignored
			r.conn.WriteTo([]byte{0x01, 0x02}, addr)
			continue
		}

		req, err := protocoltest.ParseRequest(data, protocol.DefaultKey(), protocol.DefaultIV())
		if err != nil || req.Command != protocol.CommandAuth {
			continue
		}
		r.auths.Add(1)
		reply, err := protocoltest.Handshake(req, protocol.Handshake{
			SessionID: protocol.SessionID{0x01, 0x02, 0x03, 0x04},
			Key:       protocol.Key{0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f},
		})
		if err != nil {
			r.t.Errorf("encode handshake: %v", err)
			continue
		}
		r.conn.WriteTo(reply, addr)
	}
}

func loopbackScanner(r *responder) *Scanner {
	return &Scanner{
		Timeout:       300 * time.Millisecond,
		BroadcastAddr: r.addr(),
		Interfaces:    []net.IP{net.IPv4(127, 0, 0, 1)},
	}
}

func TestScanner_CollectsSupportedDevices(t *testing.T) {
	r := newResponder(t,
		announced{macA, 0x2787},
		announced{macA, 0x2787},
		announced{protocol.MAC{0x01}, 0x2711},
		announced{protocol.MAC{0x02}, 0x1234},
		announced{macB, 0x5213},
	)

	var mu sync.Mutex
	var seen []string
	s := loopbackScanner(r)
	s.OnDevice = func(d *Device) {
		mu.Lock()
		seen = append(seen, d.Key())
		mu.Unlock()
	}

	devices, err := s.ScanForDevices()
	if err != nil {
		t.Fatalf("ScanForDevices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("found %d devices, want 2: %v", len(devices), devices)
	}
	if devices[0].MAC != macB || devices[1].MAC != macA {
		t.Errorf("devices = %v", devices)
	}
	if devices[1].Type.Code != 0x2787 || !devices[1].Type.RFCapable() {
		t.Errorf("device type = %v", devices[1].Type)
	}
	if devices[0].IP != "127.0.0.1" || devices[0].Port != r.addr().Port {
		t.Errorf("device address = %s:%d", devices[0].IP, devices[0].Port)
	}
	if devices[0].Interface != "127.0.0.1" {
		t.Errorf("Interface = %q", devices[0].Interface)
	}
	if devices[0].Session != nil {
		t.Error("Session set without Connect")
	}
	if r.hello.Load() != 1 {
		t.Errorf("responder saw %d hellos, want 1", r.hello.Load())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Errorf("OnDevice called %d times, want 2", len(seen))
	}
}

func TestScanner_Accept(t *testing.T) {
	r := newResponder(t, announced{macA, 0x2787}, announced{macB, 0x5213})
	s := loopbackScanner(r)
	s.Accept = func(d *Device) bool { return d.Type.RM4() }

	devices, err := s.ScanForDevices()
	if err != nil {
		t.Fatalf("ScanForDevices() error = %v", err)
	}
	if len(devices) != 1 || devices[0].MAC != macB {
		t.Errorf("devices = %v", devices)
	}
}

func TestScanner_ReusesTable(t *testing.T) {
	r := newResponder(t, announced{macA, 0x2787})
	s := loopbackScanner(r)

	table := NewTable()
	first, _ := NewDevice("192.168.1.50", 0, macA, 0x2787)
	table.Add(first)

	added := 0
	s.OnDevice = func(*Device) { added++ }
	if err := s.Scan(context.Background(), table); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if added != 0 {
		t.Errorf("OnDevice called for a known MAC")
	}
	if d, _ := table.Get(macA.Hex()); d != first {
		t.Error("known device was replaced")
	}
}

func TestScanner_Connect(t *testing.T) {
	r := newResponder(t, announced{macA, 0x2787}, announced{macB, 0x5213})
	s := loopbackScanner(r)
	s.Connect = true
	s.SessionOptions = []session.Option{session.WithTimeout(time.Second)}

	table := NewTable()
	defer table.Close()
	if err := s.Scan(context.Background(), table); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, d := range table.Devices() {
		if d.Session == nil || d.Auth == nil {
			t.Fatalf("%s has no session", d)
		}
		if _, err := d.Auth.Wait(ctx); err != nil {
			t.Fatalf("%s handshake error = %v", d, err)
		}
		if d.Session.State() != session.Ready {
			t.Errorf("%s state = %s", d, d.Session.State())
		}
		if d.Session.SessionID() != (protocol.SessionID{0x01, 0x02, 0x03, 0x04}) {
			t.Errorf("%s session id = %s", d, d.Session.SessionID())
		}
	}
	if r.auths.Load() != 2 {
		t.Errorf("responder saw %d auth requests, want 2", r.auths.Load())
	}
}

func TestScanner_NoUsableInterface(t *testing.T) {
	s := &Scanner{
		Timeout:    50 * time.Millisecond,
		Interfaces: []net.IP{net.IPv4(192, 0, 2, 1)},
	}
	if _, err := s.ScanForDevices(); err == nil {
		t.Error("ScanForDevices() expected error for an address not on this host")
	}
}

func TestScanner_PartialInterfaces(t *testing.T) {
	r := newResponder(t, announced{macA, 0x2787})
	s := loopbackScanner(r)
	s.Interfaces = append(s.Interfaces, net.IPv4(192, 0, 2, 1))

	devices, err := s.ScanForDevices()
	if err != nil {
		t.Fatalf("ScanForDevices() error = %v, want success with one usable interface", err)
	}
	if len(devices) != 1 || devices[0].MAC != macA {
		t.Errorf("devices = %v", devices)
	}
}

func TestScanner_AllInterfacesFail(t *testing.T) {
	s := &Scanner{
		Timeout:    50 * time.Millisecond,
		Interfaces: []net.IP{net.IPv4(192, 0, 2, 1), net.IPv4(198, 51, 100, 1)},
	}
	err := s.Scan(context.Background(), NewTable())
	if !errors.Is(err, ErrNoInterfaces) {
		t.Fatalf("Scan() error = %v, want ErrNoInterfaces", err)
	}
	var transportErr *session.TransportError
	if !errors.As(err, &transportErr) || transportErr.Op != "bind" {
		t.Errorf("Scan() error = %v, want the bind failure", err)
	}
}
