// Package server implements the Server Facade: lifecycle, cross-component
// ownership, and configuration gating, configured through the
// Config/DefaultConfig functional-option shape in config.go.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/haomingbai/bsrvcore/conn"
	"github.com/haomingbai/bsrvcore/handler"
	"github.com/haomingbai/bsrvcore/internal/rcontext"
	"github.com/haomingbai/bsrvcore/route"
	"github.com/haomingbai/bsrvcore/session"
)

// ErrNoListenAddr is returned by Start when no listen endpoint has been
// configured.
var ErrNoListenAddr = errors.New("bsrvcore: no listen address configured")

// ErrInvalidThreadCount is returned by Start when the configured worker
// count is less than 1.
var ErrInvalidThreadCount = errors.New("bsrvcore: thread count must be >= 1")

// Server is the Server Facade. The zero value is not usable; build one
// with New.
type Server struct {
	mu      sync.RWMutex
	running bool
	cfg     Config

	routes    *route.Table
	sessions  *session.Map
	serverCtx *rcontext.Context

	pool      *pool
	listeners []net.Listener
	wg        sync.WaitGroup
}

// New builds a Stopped Server with opts applied over DefaultConfig.
func New(opts ...Option) *Server {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	s := &Server{
		cfg:       cfg,
		routes:    route.NewTable(),
		serverCtx: rcontext.New(),
	}
	s.sessions = session.NewMap(s, cfg.Logger)
	s.sessions.SetDefaultTimeout(cfg.SessionDefaultTimeout)
	s.sessions.SetCleanerInterval(cfg.SessionCleanerInterval)
	return s
}

// IsRunning reports whether the server is in the Running state. Satisfies
// conn.ServerState and session.Scheduler.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// configGate runs fn and returns true, unless the server is Running, in
// which case it is a no-op returning false — the "silent no-op while
// Running" rule applied uniformly to every configuration mutator.
func (s *Server) configGate(fn func()) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.running {
		return false
	}
	fn()
	return true
}

// AddRoute registers h at (method, tmpl). No-op while Running.
func (s *Server) AddRoute(m route.Method, tmpl string, h handler.Handler) bool {
	ok := false
	applied := s.configGate(func() { ok = s.routes.AddRouteEntry(m, tmpl, h) })
	return applied && ok
}

// AddExclusiveRoute registers h at (method, tmpl) as an exclusive layer.
// No-op while Running.
func (s *Server) AddExclusiveRoute(m route.Method, tmpl string, h handler.Handler) bool {
	ok := false
	applied := s.configGate(func() { ok = s.routes.AddExclusiveRouteEntry(m, tmpl, h) })
	return applied && ok
}

// AddAspect attaches a route-local aspect at (method, tmpl). No-op while
// Running.
func (s *Server) AddAspect(m route.Method, tmpl string, a handler.Aspect) bool {
	ok := false
	applied := s.configGate(func() { ok = s.routes.AddAspect(m, tmpl, a) })
	return applied && ok
}

// AddGlobalAspect registers a, applied to every request. No-op while
// Running.
func (s *Server) AddGlobalAspect(a handler.Aspect) bool {
	return s.configGate(func() { s.routes.AddGlobalAspect(a) })
}

// AddMethodAspect registers a, applied to every request of method m.
// No-op while Running.
func (s *Server) AddMethodAspect(m route.Method, a handler.Aspect) bool {
	return s.configGate(func() { s.routes.AddMethodAspect(m, a) })
}

// SetRouteLimits overrides the per-layer limits at (method, tmpl). No-op
// while Running.
func (s *Server) SetRouteLimits(m route.Method, tmpl string, maxBodySize, readExpiryMS, writeExpiryMS int64) bool {
	ok := false
	applied := s.configGate(func() {
		ok = s.routes.SetRouteLimits(m, tmpl, maxBodySize, readExpiryMS, writeExpiryMS)
	})
	return applied && ok
}

// SetDefaultLimits replaces the Route Table's table-wide fallback limits.
// No-op while Running.
func (s *Server) SetDefaultLimits(d route.Defaults) bool {
	return s.configGate(func() { s.routes.SetDefaults(d) })
}

// SetDefaultHandler replaces the handler served on an unmatched route.
// No-op while Running.
func (s *Server) SetDefaultHandler(h handler.Handler) bool {
	return s.configGate(func() { s.routes.SetDefaultHandler(h) })
}

// SetSessionDefaultTimeout sets the Session Map's sliding TTL. No-op while
// Running.
func (s *Server) SetSessionDefaultTimeout(d time.Duration) bool {
	return s.configGate(func() { s.sessions.SetDefaultTimeout(d) })
}

// SetSessionCleaner enables or disables the Session Map's background
// cleaner, and its interval when enabling. No-op while Running.
func (s *Server) SetSessionCleaner(enabled bool, interval time.Duration) bool {
	return s.configGate(func() {
		if interval > 0 {
			s.sessions.SetCleanerInterval(interval)
		}
		s.sessions.SetBackgroundCleaner(enabled)
	})
}

// SetLogger replaces the logging sink. No-op while Running.
func (s *Server) SetLogger(l *slog.Logger) bool {
	if l == nil {
		l = slog.Default()
	}
	return s.configGate(func() { s.cfg.Logger = l })
}

// SetTLS replaces the TLS configuration applied to future listeners.
// No-op while Running.
func (s *Server) SetTLS(tc *tls.Config) bool {
	return s.configGate(func() { s.cfg.TLSConfig = tc })
}

// AddListenAddr appends a listen endpoint for the next Start. No-op while
// Running.
func (s *Server) AddListenAddr(addr string) bool {
	return s.configGate(func() { s.cfg.ListenAddrs = append(s.cfg.ListenAddrs, addr) })
}

// ServerContext returns the server-wide Context, readable and writable
// regardless of running state (it is not itself a configuration
// mutation).
func (s *Server) ServerContext() *rcontext.Context { return s.serverCtx }

// Post dispatches fn to the worker pool. No-op while Stopped.
func (s *Server) Post(fn func()) {
	s.mu.RLock()
	running, p := s.running, s.pool
	s.mu.RUnlock()
	if !running || p == nil {
		return
	}
	p.Post(fn)
}

// SetTimer schedules fn to run after d via Post, returning a cancel
// function. No-op while Stopped.
func (s *Server) SetTimer(d time.Duration, fn func()) (cancel func()) {
	if !s.IsRunning() {
		return func() {}
	}
	t := time.AfterFunc(d, func() { s.Post(fn) })
	return func() { t.Stop() }
}

// Log writes a log record through the configured sink. Requires Running,
// per the read-operation gate.
func (s *Server) Log(level slog.Level, msg string, args ...any) {
	s.mu.RLock()
	running, logger := s.running, s.cfg.Logger
	s.mu.RUnlock()
	if !running {
		return
	}
	logger.Log(context.Background(), level, msg, args...)
}

// Start transitions Stopped -> Running: validates the thread count and
// listen addresses, builds a fresh worker pool, arms the session cleaner
// if configured, and spawns one accept loop per listen address.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.cfg.ThreadCount < 1 {
		return ErrInvalidThreadCount
	}
	if len(s.cfg.ListenAddrs) == 0 {
		return ErrNoListenAddr
	}

	s.pool = newPool(s.cfg.ThreadCount)
	s.running = true

	if s.cfg.SessionCleanerOn {
		s.sessions.SetBackgroundCleaner(true)
	}

	s.listeners = s.listeners[:0]
	for _, addr := range s.cfg.ListenAddrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			s.running = false
			s.pool.stop()
			return fmt.Errorf("bsrvcore: listen %s: %w", addr, err)
		}
		if s.cfg.TLSConfig != nil {
			ln = tls.NewListener(ln, s.cfg.TLSConfig)
		}
		s.listeners = append(s.listeners, ln)
		s.wg.Add(1)
		go s.acceptLoop(ln)
	}
	return nil
}

// acceptLoop accepts connections on ln until it is closed by Stop,
// spawning a Connection Driver per socket.
func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		s.mu.RLock()
		logger := s.cfg.Logger
		keepAlive := s.cfg.DefaultKeepAlive
		headerReadExpiry := s.cfg.HeaderReadExpiry
		keepAliveExpiry := s.cfg.KeepAliveExpiry
		s.mu.RUnlock()

		c := conn.New(nc, s.routes, s.sessions, s.serverCtx, s, s, logger, keepAlive, headerReadExpiry, keepAliveExpiry)
		c.Run()
	}
}

// Stop transitions Running -> Stopped: flips the running flag (reopening
// the configuration gate immediately), closes every listener, waits for
// their accept loops to return, and retires the worker pool. A later
// Start rebinds fresh listeners on the same configured addresses:
// net.Listener has no pause/resume primitive, so closing and rebinding
// stands in for it.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	listeners := s.listeners
	p := s.pool
	s.mu.Unlock()

	for _, ln := range listeners {
		ln.Close()
	}
	s.wg.Wait()

	if p != nil {
		p.stop()
	}
	s.sessions.SetBackgroundCleaner(false)
}
