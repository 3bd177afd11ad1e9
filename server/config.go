package server

import (
	"crypto/tls"
	"log/slog"
	"time"
)

// Config holds the Server Facade's configuration, built from
// DefaultConfig with functional Options. Mutating methods on Server that apply a
// Config are no-ops while the server is Running.
type Config struct {
	ListenAddrs []string
	TLSConfig   *tls.Config

	ThreadCount int

	DefaultKeepAlive     bool
	HeaderReadExpiry     time.Duration
	KeepAliveExpiry      time.Duration
	SessionCleanerOn      bool
	SessionCleanerInterval time.Duration
	SessionDefaultTimeout  time.Duration

	Logger *slog.Logger
}

// Option mutates a Config at construction time.
type Option func(*Config)

// DefaultConfig returns the Server Facade's defaults: no listen addresses
// (the caller must add at least one before Start), 4 worker threads,
// keep-alive on, 10s header-read expiry, 60s keep-alive expiry, session
// cleaner off with a 30 minute interval and 2 hour default timeout, and
// slog.Default() as the logging sink.
func DefaultConfig() Config {
	return Config{
		ThreadCount:            4,
		DefaultKeepAlive:       true,
		HeaderReadExpiry:       10 * time.Second,
		KeepAliveExpiry:        60 * time.Second,
		SessionCleanerOn:       false,
		SessionCleanerInterval: 30 * time.Minute,
		SessionDefaultTimeout:  2 * time.Hour,
		Logger:                 slog.Default(),
	}
}

// WithListenAddr appends a "host:port" endpoint for Start to accept on.
func WithListenAddr(addr string) Option {
	return func(c *Config) { c.ListenAddrs = append(c.ListenAddrs, addr) }
}

// WithTLS sets the TLS configuration applied to every listener.
func WithTLS(tc *tls.Config) Option {
	return func(c *Config) { c.TLSConfig = tc }
}

// WithThreadCount sets the worker pool size used at Start.
func WithThreadCount(n int) Option {
	return func(c *Config) { c.ThreadCount = n }
}

// WithDefaultKeepAlive sets the keep-alive default new connections start
// with.
func WithDefaultKeepAlive(keepAlive bool) Option {
	return func(c *Config) { c.DefaultKeepAlive = keepAlive }
}

// WithHeaderReadExpiry sets the header-read timeout.
func WithHeaderReadExpiry(d time.Duration) Option {
	return func(c *Config) { c.HeaderReadExpiry = d }
}

// WithKeepAliveExpiry sets the idle-keep-alive timeout.
func WithKeepAliveExpiry(d time.Duration) Option {
	return func(c *Config) { c.KeepAliveExpiry = d }
}

// WithSessionCleaner enables the Session Map's background cleaner at the
// given interval.
func WithSessionCleaner(interval time.Duration) Option {
	return func(c *Config) {
		c.SessionCleanerOn = true
		c.SessionCleanerInterval = interval
	}
}

// WithSessionDefaultTimeout sets the Session Map's sliding TTL.
func WithSessionDefaultTimeout(d time.Duration) Option {
	return func(c *Config) { c.SessionDefaultTimeout = d }
}

// WithLogger sets the logging sink. A nil logger is treated as
// slog.Default() rather than disabling logging.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l == nil {
			l = slog.Default()
		}
		c.Logger = l
	}
}
