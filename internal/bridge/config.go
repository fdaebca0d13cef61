package bridge

import (
	"time"

	"github.com/danmuck/bridgectl/internal/codec"
	"github.com/rs/zerolog"
)

const DefaultTimeout = 5 * time.Second

// Role names which side of the bridge a Channel serves.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// ErrorSink receives every locally observed error. It must not block.
type ErrorSink func(err error)

// Config configures one Channel.
type Config struct {
	Role Role
	Name string
	// Timeout applies to every request without a call override. A negative
	// value disables the timer and leaves cancellation to the caller's ctx.
	Timeout   time.Duration
	Codec     codec.Codec
	IDs       IDGenerator
	ErrorSink ErrorSink
	Logger    *zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		Role:    RoleHost,
		Timeout: DefaultTimeout,
		Codec:   codec.Default(),
		IDs:     UUIDs(),
	}
}

// WithDefaults fills zero-valued fields.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Role == "" {
		c.Role = def.Role
	}
	if c.Name == "" {
		c.Name = string(c.Role)
	}
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
	if c.Codec == nil {
		c.Codec = def.Codec
	}
	if c.IDs == nil {
		c.IDs = def.IDs
	}
	return c
}

type Option func(*Config)

func WithRole(role Role) Option {
	return func(c *Config) {
		c.Role = role
	}
}

func WithName(name string) Option {
	return func(c *Config) {
		c.Name = name
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

func WithCodec(cd codec.Codec) Option {
	return func(c *Config) {
		c.Codec = cd
	}
}

func WithIDGenerator(ids IDGenerator) Option {
	return func(c *Config) {
		c.IDs = ids
	}
}

func WithErrorSink(sink ErrorSink) Option {
	return func(c *Config) {
		c.ErrorSink = sink
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = &logger
	}
}

// CallOption adjusts a single Request.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
}

// WithCallTimeout overrides the channel timeout for one request.
func WithCallTimeout(timeout time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = timeout
	}
}
