package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/muurk/rmlink/internal/devicetype"
	"github.com/muurk/rmlink/internal/logging"
	"github.com/muurk/rmlink/internal/protocol"
	"github.com/muurk/rmlink/internal/session"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultScanTimeout is the collection window of a scan
	DefaultScanTimeout = 10 * time.Second

	maxAnnouncementSize = 1024
)

// ErrNoInterfaces is returned when no listener could be opened
var ErrNoInterfaces = errors.New("no usable IPv4 interface")

// Scanner broadcasts hello packets and collects device announcements
type Scanner struct {
	// Timeout is the collection window
	Timeout time.Duration

	// BroadcastAddr is where hello packets go (default 255.255.255.255:80)
	BroadcastAddr *net.UDPAddr

	// Interfaces overrides the local IPv4 addresses to listen on.
	// When empty every non-loopback IPv4 address is used.
	Interfaces []net.IP

	// Connect builds a session for each new device and starts its handshake
	Connect bool

	// SessionOptions are passed to session.Dial when Connect is set
	SessionOptions []session.Option

	// Accept may reject a device before it is added. Nil accepts all.
	Accept func(*Device) bool

	// OnDevice is called once for every device added to the table
	OnDevice func(*Device)
}

// NewScanner creates a new scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// ScanForDevices discovers all RM devices on the local network
func (s *Scanner) ScanForDevices() ([]*Device, error) {
	return s.ScanForDevicesWithContext(context.Background())
}

// ScanForDevicesWithContext discovers devices with a custom context.
// The devices found before the window closed are returned; a partial result
// is not an error.
func (s *Scanner) ScanForDevicesWithContext(ctx context.Context) ([]*Device, error) {
	table := NewTable()
	if err := s.Scan(ctx, table); err != nil {
		return nil, err
	}
	return table.Devices(), nil
}

// Scan runs one collection window and adds new devices to table. Devices
// already in the table are ignored, so a table can be reused across scans.
func (s *Scanner) Scan(ctx context.Context, table *Table) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ips := s.Interfaces
	if len(ips) == 0 {
		var err error
		ips, err = LocalIPv4Addrs()
		if err != nil {
			return err
		}
	}
	if len(ips) == 0 {
		return ErrNoInterfaces
	}

	// A plain Group: one interface failing must not cut the window short
	// on the others.
	var (
		g     errgroup.Group
		bound atomic.Int32
	)
	for _, ip := range ips {
		g.Go(func() error {
			if err := s.listen(ctx, ip, table); err != nil {
				return err
			}
			bound.Add(1)
			return nil
		})
	}
	err := g.Wait()

	if bound.Load() == 0 {
		return fmt.Errorf("%w: %w", ErrNoInterfaces, err)
	}
	if err != nil {
		logging.Warn("Discovery ran on a subset of interfaces",
			zap.Int("listeners", int(bound.Load())),
			zap.Int("interfaces", len(ips)),
			zap.Error(err),
		)
	}

	logging.Info("Discovery window closed",
		zap.Int("devices", table.Len()),
		zap.Duration("timeout", timeout),
	)
	return nil
}

func (s *Scanner) broadcastAddr() *net.UDPAddr {
	if s.BroadcastAddr != nil {
		return s.BroadcastAddr
	}
	return &net.UDPAddr{IP: net.IPv4bcast, Port: DefaultPort}
}

// listen opens one socket on ip, sends the hello and reads announcements
// until ctx ends. It returns an error only if the socket could not be used.
func (s *Scanner) listen(ctx context.Context, ip net.IP, table *Table) error {
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort(ip.String(), "0"))
	if err != nil {
		logging.Warn("Failed to bind discovery listener", zap.String("ip", ip.String()), zap.Error(err))
		return &session.TransportError{Op: "bind", Err: err}
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	local := conn.LocalAddr().(*net.UDPAddr)
	hello, err := protocol.BuildHello(time.Now(), ip, local.Port)
	if err != nil {
		return err
	}
	if _, err := conn.WriteTo(hello, s.broadcastAddr()); err != nil {
		logging.Warn("Failed to send hello", zap.String("local_addr", local.String()), zap.Error(err))
		return &session.TransportError{Op: "send", Err: err}
	}

	logging.Info("Listening for devices",
		zap.String("local_addr", local.String()),
		zap.String("broadcast", s.broadcastAddr().String()),
	)

	buf := make([]byte, maxAnnouncementSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() == nil {
				logging.Debug("Discovery listener stopped", zap.String("local_addr", local.String()), zap.Error(err))
			}
			return nil
		}
		s.handleAnnouncement(ctx, buf[:n], addr, local, table)
	}
}

func (s *Scanner) handleAnnouncement(ctx context.Context, data []byte, addr net.Addr, local *net.UDPAddr, table *Table) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return
	}

	a, err := protocol.ParseAnnouncement(data)
	if err != nil {
		logging.Debug("Ignoring datagram", zap.String("remote_addr", addr.String()), zap.Error(err))
		return
	}
	if table.Contains(a.MAC) {
		return
	}

	info, err := devicetype.Validate(a.DeviceType)
	if err != nil {
		logging.Warn("Ignoring device",
			zap.String("mac", a.MAC.Hex()),
			zap.String("remote_addr", addr.String()),
			zap.String("device_type", fmt.Sprintf("0x%04x", a.DeviceType)),
			zap.Error(err),
		)
		return
	}

	d := &Device{
		MAC:          a.MAC,
		IP:           udpAddr.IP.String(),
		Port:         udpAddr.Port,
		Type:         info,
		Interface:    local.IP.String(),
		DiscoveredAt: time.Now(),
	}
	if s.Accept != nil && !s.Accept(d) {
		return
	}

	if s.Connect {
		if err := connect(ctx, d, s.SessionOptions); err != nil {
			logging.Error("Failed to start session", zap.String("mac", d.Key()), zap.Error(err))
			return
		}
	}

	if !table.Add(d) {
		// Heard on two interfaces at once
		if d.Session != nil {
			d.Session.Close()
		}
		return
	}

	logging.LogDevice("discovered", d.Key(), addr.String(), a.DeviceType)
	if s.OnDevice != nil {
		s.OnDevice(d)
	}
}

// connect dials a session for d and starts the handshake without waiting
func connect(ctx context.Context, d *Device, opts []session.Option) error {
	sess, err := session.Dial(context.WithoutCancel(ctx), d.Addr(), d.MAC, d.Type.Code, opts...)
	if err != nil {
		return err
	}
	req, err := sess.Authenticate()
	if err != nil {
		sess.Close()
		return err
	}
	d.Session = sess
	d.Auth = req
	return nil
}

// Connect builds a session for a device and starts its handshake.
// Used for devices added by hand.
func Connect(ctx context.Context, d *Device, opts ...session.Option) error {
	return connect(ctx, d, opts)
}

// LocalIPv4Addrs returns every non-loopback IPv4 address on an up interface
func LocalIPv4Addrs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
				ips = append(ips, ip4)
			}
		}
	}
	return ips, nil
}
