package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/rmlink/internal/config"
	"github.com/muurk/rmlink/internal/discovery"
	"github.com/muurk/rmlink/internal/logging"
	"github.com/muurk/rmlink/internal/protocol"
	"github.com/muurk/rmlink/internal/session"
	"go.uber.org/zap"
)

// Config holds the bridge configuration
type Config struct {
	Host            string
	Port            int
	CertPath        string // Serve wss:// when set together with KeyPath
	KeyPath         string
	Advertise       bool          // Register _rmlink._tcp over mDNS
	RescanInterval  time.Duration // Periodic discovery, 0 scans once
	RequestTimeout  time.Duration // Per-request timeout of device sessions
	InitialCounter  uint16
	Scanner         *discovery.Scanner // Defaults to discovery.NewScanner()
	Registry        *config.Registry   // Manual devices, nicknames and named codes
	ShutdownTimeout time.Duration
}

// Server bridges RM devices on the LAN to WebSocket clients
type Server struct {
	config *Config
	table  *discovery.Table
	hub    *Hub

	mu     sync.Mutex
	queues map[string]*session.Queue

	wg       sync.WaitGroup
	httpSrv  *http.Server
	listener net.Listener
	mdns     *zeroconf.Server
}

// New creates a new Server instance
func New(cfg *Config) (*Server, error) {
	if cfg.Scanner == nil {
		cfg.Scanner = discovery.NewScanner()
	}
	if cfg.Registry == nil {
		cfg.Registry = config.NewRegistry()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		config: cfg,
		table:  discovery.NewTable(),
		hub:    NewHub(),
		queues: make(map[string]*session.Queue),
	}

	scanner := *cfg.Scanner
	scanner.Connect = true
	scanner.SessionOptions = s.sessionOptions()
	scanner.OnDevice = s.onDevice
	s.config.Scanner = &scanner

	return s, nil
}

func (s *Server) sessionOptions() []session.Option {
	var opts []session.Option
	if s.config.RequestTimeout > 0 {
		opts = append(opts, session.WithTimeout(s.config.RequestTimeout))
	}
	if s.config.InitialCounter != 0 {
		opts = append(opts, session.WithInitialCounter(s.config.InitialCounter))
	}
	return opts
}

// Table returns the devices known to the bridge
func (s *Server) Table() *discovery.Table { return s.table }

// Hub returns the client hub
func (s *Server) Hub() *Hub { return s.hub }

// Start runs the bridge until SIGINT or SIGTERM
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run listens, discovers devices and serves clients until ctx is done
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.config.CertPath != "" && s.config.KeyPath != "" {
		tlsConfig, err := NewTLSConfig(s.config.CertPath, s.config.KeyPath)
		if err != nil {
			listener.Close()
			return err
		}
		listener = tls.NewListener(listener, tlsConfig)
	}
	s.listener = listener
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	port := listener.Addr().(*net.TCPAddr).Port
	logging.Info("Starting rmlink bridge",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("tls", s.config.CertPath != ""),
		zap.Bool("advertise", s.config.Advertise),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.config.Advertise {
		if err := s.advertise(port); err != nil {
			logging.Warn("mDNS advertisement failed", zap.Error(err))
		}
	}

	s.AddConfiguredDevices(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.discoveryLoop(ctx)
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown signal received, stopping bridge...")
	case err = <-errChan:
		logging.Error("HTTP server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if shutdownErr := s.Shutdown(shutdownCtx); err == nil {
		err = shutdownErr
	}
	return err
}

// discoveryLoop scans once, then again every RescanInterval
func (s *Server) discoveryLoop(ctx context.Context) {
	if err := s.Rescan(ctx); err != nil {
		logging.Error("Discovery failed", zap.Error(err))
	}
	if s.config.RescanInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.config.RescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Rescan(ctx); err != nil {
				logging.Error("Discovery failed", zap.Error(err))
			}
		}
	}
}

// Rescan runs one discovery window. New devices are connected and announced.
func (s *Server) Rescan(ctx context.Context) error {
	return s.config.Scanner.Scan(ctx, s.table)
}

// AddConfiguredDevices connects the devices defined in the registry
func (s *Server) AddConfiguredDevices(ctx context.Context) {
	for key, entry := range s.config.Registry.Devices {
		d, err := manualDevice(key, entry)
		if err != nil {
			logging.Warn("Skipping configured device", zap.String("mac", key), zap.Error(err))
			continue
		}
		if s.table.Contains(d.MAC) {
			continue
		}
		if err := discovery.Connect(ctx, d, s.sessionOptions()...); err != nil {
			logging.Warn("Failed to connect configured device", zap.String("mac", key), zap.Error(err))
			continue
		}
		if !s.table.Add(d) {
			d.Session.Close()
			continue
		}
		s.onDevice(d)
	}
}

func manualDevice(key string, entry *config.Device) (*discovery.Device, error) {
	mac, err := protocol.ParseMAC(key)
	if err != nil {
		return nil, err
	}
	code, err := entry.TypeCode()
	if err != nil {
		return nil, err
	}
	return discovery.NewDevice(entry.Host, entry.Port, mac, code)
}

// onDevice waits for the handshake, then wires the device into the bridge
func (s *Server) onDevice(d *discovery.Device) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if d.Auth != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*s.requestTimeout())
			_, err := d.Auth.Wait(ctx)
			cancel()
			if err != nil {
				logging.Warn("Handshake failed", zap.String("mac", d.Key()), zap.Error(err))
			}
		}

		sub, err := d.Session.Subscribe()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.queues[d.Key()] = d.Session.NewQueue()
		s.mu.Unlock()

		info := deviceInfo(d, s.nickname(d))
		s.hub.Broadcast(&Event{Type: TypeDiscovered, Device: info.MAC, Time: time.Now(), Info: &info})

		for ev := range sub.Events() {
			if out := eventFor(d.MAC, ev); out != nil {
				s.hub.Broadcast(out)
			}
		}
	}()
}

func (s *Server) requestTimeout() time.Duration {
	if s.config.RequestTimeout > 0 {
		return s.config.RequestTimeout
	}
	return session.DefaultTimeout
}

func (s *Server) nickname(d *discovery.Device) string {
	if entry, ok := s.config.Registry.Devices[d.Key()]; ok {
		return entry.Nickname
	}
	return ""
}

func (s *Server) queue(d *discovery.Device) *session.Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queues[d.Key()]
}

// Shutdown gracefully shuts down the bridge
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down bridge...")

	if s.mdns != nil {
		s.mdns.Shutdown()
	}

	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.hub.CloseAll()

	s.mu.Lock()
	for _, q := range s.queues {
		q.Close()
	}
	s.mu.Unlock()
	s.table.Close()

	// Wait for all goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("Bridge stopped")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}

	logging.Sync()
	return err
}
