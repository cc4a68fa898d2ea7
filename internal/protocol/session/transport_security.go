package session

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

var (
	ErrAddressRequired = errors.New("session: server address required")
	ErrInvalidAddress  = errors.New("session: invalid server address")
	ErrTLSRequired     = errors.New("session: tls options set without tls enabled")
	ErrTLSCABundle     = errors.New("session: unusable tls ca bundle")
)

// ValidateClientTransport checks address and TLS options before dialing.
func (c Config) ValidateClientTransport(address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return ErrAddressRequired
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidAddress, address, err)
	}
	if strings.TrimSpace(host) == "" || strings.TrimSpace(port) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	if !c.TLS.Enabled {
		if c.TLS.InsecureSkipVerify || strings.TrimSpace(c.TLS.CAFile) != "" {
			return ErrTLSRequired
		}
	}
	return nil
}

// ClientTLSConfig builds the tls.Config used to secure a connection to
// address. System roots are used unless a CA bundle is configured.
func (c Config) ClientTLSConfig(address string) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.TLS.InsecureSkipVerify,
	}

	serverName := strings.TrimSpace(c.TLS.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, address, err)
		}
		serverName = host
	}
	cfg.ServerName = serverName

	if caPath := strings.TrimSpace(c.TLS.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTLSCABundle, err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("%w: no certificates in %s", ErrTLSCABundle, caPath)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
