package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"

	"github.com/getmockd/imposterd/pkg/imposter"
)

// LoadMaterial reads a PEM certificate and key from disk. Both paths must be
// set or both empty; when both are empty it returns nil.
func LoadMaterial(certPath, keyPath string) (*imposter.TLSMaterial, error) {
	if certPath == "" && keyPath == "" {
		return nil, nil
	}
	if certPath == "" || keyPath == "" {
		return nil, errors.New("certificate and key files must be given together")
	}

	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	m := &imposter.TLSMaterial{CertPEM: certPEM, KeyPEM: keyPEM}
	if _, err := tls.X509KeyPair(m.CertPEM, m.KeyPEM); err != nil {
		return nil, fmt.Errorf("invalid key pair: %w", err)
	}
	return m, nil
}

// ServerConfig builds a server-side TLS configuration from PEM material.
func ServerConfig(m *imposter.TLSMaterial) (*tls.Config, error) {
	if m == nil {
		return nil, errors.New("no TLS material")
	}
	cert, err := tls.X509KeyPair(m.CertPEM, m.KeyPEM)
	if err != nil {
		return nil, fmt.Errorf("invalid key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
