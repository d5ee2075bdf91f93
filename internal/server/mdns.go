package server

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/rmlink/internal/logging"
	"go.uber.org/zap"
)

const (
	// ServiceType is the DNS-SD service the bridge registers
	ServiceType = "_rmlink._tcp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	// DefaultBrowseTimeout bounds FindBridges when ctx has no deadline
	DefaultBrowseTimeout = 5 * time.Second
)

// Bridge is a bridge instance found over mDNS
type Bridge struct {
	Instance string
	Host     string
	Addrs    []string
	Port     int
	TLS      bool
	Path     string
}

// URL returns the WebSocket URL of the bridge
func (b *Bridge) URL() string {
	scheme := "ws"
	if b.TLS {
		scheme = "wss"
	}
	host := strings.TrimSuffix(b.Host, ".")
	if len(b.Addrs) > 0 {
		host = b.Addrs[0]
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, host, b.Port, b.Path)
}

// advertise registers the bridge over mDNS
func (s *Server) advertise(port int) error {
	host, _ := os.Hostname()
	if host == "" {
		host = "rmlink"
	}
	txt := []string{"path=" + PathWebSocket, fmt.Sprintf("tls=%t", s.config.CertPath != "")}
	srv, err := zeroconf.Register("rmlink-"+host, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", ServiceType, err)
	}
	s.mdns = srv
	logging.Info("Advertising bridge", zap.String("service", ServiceType), zap.Int("port", port))
	return nil
}

// FindBridges browses the local network for running bridges until ctx ends
func FindBridges(ctx context.Context) ([]*Bridge, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultBrowseTimeout)
		defer cancel()
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu      sync.Mutex
		bridges []*Bridge
		seen    = make(map[string]bool)
	)
	go func() {
		for entry := range entries {
			b := parseServiceEntry(entry)
			mu.Lock()
			if !seen[b.Instance] {
				seen[b.Instance] = true
				bridges = append(bridges, b)
				logging.Debug("Bridge found", zap.String("instance", b.Instance), zap.String("url", b.URL()))
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return append([]*Bridge(nil), bridges...), nil
}

func parseServiceEntry(entry *zeroconf.ServiceEntry) *Bridge {
	b := &Bridge{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     entry.Port,
		Path:     PathWebSocket,
	}
	for _, ip := range entry.AddrIPv4 {
		b.Addrs = append(b.Addrs, ip.String())
	}
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		switch key {
		case "path":
			b.Path = value
		case "tls":
			b.TLS = value == "true"
		}
	}
	return b
}
