package session

import "time"

// TLSConfig controls the secured transport.
type TLSConfig struct {
	Enabled            bool
	InsecureSkipVerify bool
	CAFile             string
	ServerName         string
}

// PacingConfig controls outbound flood protection.
type PacingConfig struct {
	// Interval is the minimum gap between two lines on the wire, shared by
	// every destination.
	Interval time.Duration
	// MaxQueued caps pending lines per destination.
	MaxQueued int
}

// Config defines transport/session defaults.
type Config struct {
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	// ReadTimeout is how long the connection may stay silent before it is
	// considered dead. Servers PING well inside this window.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TLS          TLSConfig
	Pacing       PacingConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   15 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      5 * time.Minute,
		WriteTimeout:     10 * time.Second,
		Pacing: PacingConfig{
			Interval:  500 * time.Millisecond,
			MaxQueued: 64,
		},
	}
}

// WithDefaults fills zero values from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.Pacing.Interval < 0 {
		c.Pacing.Interval = 0
	}
	if c.Pacing.MaxQueued <= 0 {
		c.Pacing.MaxQueued = def.Pacing.MaxQueued
	}
	return c
}
