package server

import (
	"crypto/tls"
	"fmt"

	"github.com/muurk/rmlink/internal/logging"
	"go.uber.org/zap"
)

// NewTLSConfig loads a certificate and key pair for serving wss://
func NewTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	config := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"http/1.1"},
	}

	logging.Debug("TLS configuration loaded",
		zap.String("cert", certPath),
		zap.String("min_version", "TLS 1.2"),
	)
	return config, nil
}
