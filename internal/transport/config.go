package transport

import (
	"errors"
	"time"
)

// ErrClosed is returned by adapters after Close.
var ErrClosed = errors.New("transport: closed")

// SecurityMode selects how strictly TLS settings are enforced.
type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// TLSConfig names the certificate material for one endpoint.
type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	CertFile           string
	KeyFile            string
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

// Config defines adapter reliability and security settings.
type Config struct {
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	MaxMessageBytes  int
	// MaxDialAttempts <= 0 retries until the dial context ends.
	MaxDialAttempts int
	Backoff         BackoffConfig
	SecurityMode    SecurityMode
	TLS             TLSConfig
	// AllowedOrigins lists extra browser origins (scheme://host[:port]) a
	// host accepts. Same-host origins and clients without an Origin header
	// are always accepted. "*" accepts any origin.
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		DialTimeout:      5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     15 * time.Second,
		MaxMessageBytes:  128 * 1024,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
		SecurityMode: SecurityModeDevelopment,
	}
}

// WithDefaults fills zero-valued fields.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = def.MaxMessageBytes
	}
	if c.Backoff.InitialDelay <= 0 && c.Backoff.Multiplier == 0 && c.Backoff.MaxDelay <= 0 {
		c.Backoff = def.Backoff
	}
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	return c
}
