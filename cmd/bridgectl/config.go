package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/bridgectl/internal/bridge"
	"github.com/danmuck/bridgectl/internal/transport"
)

// bridgectl config.toml key mapping to runtime settings.
type fileConfig struct {
	Name            string   `toml:"name"`
	Codec           string   `toml:"codec"`
	Timeout         string   `toml:"timeout"`
	ListenAddr      string   `toml:"listen_addr"`
	Path            string   `toml:"path"`
	MetricsAddr     string   `toml:"metrics_addr"`
	URL             string   `toml:"url"`
	DialTimeout     string   `toml:"dial_timeout"`
	WriteTimeout    string   `toml:"write_timeout"`
	MaxMessageBytes int      `toml:"max_message_bytes"`
	MaxDialAttempts int      `toml:"max_dial_attempts"`
	SecurityMode    string   `toml:"security_mode"`
	TLSEnabled      bool     `toml:"tls_enabled"`
	TLSMutual       bool     `toml:"tls_mutual"`
	TLSCertFile     string   `toml:"tls_cert_file"`
	TLSKeyFile      string   `toml:"tls_key_file"`
	TLSCAFile       string   `toml:"tls_ca_file"`
	TLSServerName   string   `toml:"tls_server_name"`
	TLSInsecureSkip bool     `toml:"tls_insecure_skip_verify"`
	AllowedOrigins  []string `toml:"allowed_origins"`
}

// config is the resolved bridgectl process configuration.
type config struct {
	Name        string
	Codec       string
	Timeout     time.Duration
	ListenAddr  string
	Path        string
	MetricsAddr string
	URL         string
	Transport   transport.Config
}

func defaultConfig() config {
	return config{
		Codec:      "json",
		Timeout:    bridge.DefaultTimeout,
		ListenAddr: "127.0.0.1:7400",
		Path:       "/bridge",
		URL:        "ws://127.0.0.1:7400/bridge",
		Transport:  transport.DefaultConfig(),
	}
}

// loadConfig overlays the TOML file at path on the defaults. An empty path
// returns the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load bridgectl config: %w", err)
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("codec") {
		cfg.Codec = strings.TrimSpace(raw.Codec)
	}
	if meta.IsDefined("timeout") {
		d, err := parseDuration("timeout", raw.Timeout)
		if err != nil {
			return config{}, err
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("path") {
		cfg.Path = strings.TrimSpace(raw.Path)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("dial_timeout") {
		d, err := parseDuration("dial_timeout", raw.DialTimeout)
		if err != nil {
			return config{}, err
		}
		cfg.Transport.DialTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := parseDuration("write_timeout", raw.WriteTimeout)
		if err != nil {
			return config{}, err
		}
		cfg.Transport.WriteTimeout = d
	}
	if meta.IsDefined("max_message_bytes") {
		cfg.Transport.MaxMessageBytes = raw.MaxMessageBytes
	}
	if meta.IsDefined("max_dial_attempts") {
		cfg.Transport.MaxDialAttempts = raw.MaxDialAttempts
	}
	if meta.IsDefined("security_mode") {
		cfg.Transport.SecurityMode = transport.NormalizeSecurityMode(transport.SecurityMode(raw.SecurityMode))
	}
	if meta.IsDefined("tls_enabled") {
		cfg.Transport.TLS.Enabled = raw.TLSEnabled
	}
	if meta.IsDefined("tls_mutual") {
		cfg.Transport.TLS.Mutual = raw.TLSMutual
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.Transport.TLS.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		cfg.Transport.TLS.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if meta.IsDefined("tls_ca_file") {
		cfg.Transport.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("tls_server_name") {
		cfg.Transport.TLS.ServerName = strings.TrimSpace(raw.TLSServerName)
	}
	if meta.IsDefined("tls_insecure_skip_verify") {
		cfg.Transport.TLS.InsecureSkipVerify = raw.TLSInsecureSkip
	}
	if meta.IsDefined("allowed_origins") {
		cfg.Transport.AllowedOrigins = raw.AllowedOrigins
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
