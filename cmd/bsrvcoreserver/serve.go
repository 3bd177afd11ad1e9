package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haomingbai/bsrvcore/aspect"
	"github.com/haomingbai/bsrvcore/cookie"
	"github.com/haomingbai/bsrvcore/handler"
	"github.com/haomingbai/bsrvcore/route"
	"github.com/haomingbai/bsrvcore/server"
)

func serveCmd() *cobra.Command {
	var (
		addr              string
		threads           int
		metricsEnabled    bool
		tracingEnabled    bool
		sessionTimeout    time.Duration
		sessionCleaner    time.Duration
		headerReadExpiry  time.Duration
		keepAliveExpiry   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the demo server",
		Long: `Start an embeddable bsrvcore server with a small set of demo routes:

  GET  /ping           -> "pong"
  POST /echo           -> echoes the request body
  GET  /users/{id}     -> reports the captured path parameter
  GET  /whoami         -> mints or reuses a session cookie
  GET  /set-cookie-demo -> demonstrates a Set-Cookie response

Examples:
  bsrvcoreserver serve
  bsrvcoreserver serve --addr=:9090 --threads=8 --metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, threads, metricsEnabled, tracingEnabled, sessionTimeout, sessionCleaner, headerReadExpiry, keepAliveExpiry)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "Listen address")
	cmd.Flags().IntVarP(&threads, "threads", "t", 4, "Worker thread-pool size")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics", false, "Install the Prometheus metrics aspect")
	cmd.Flags().BoolVar(&tracingEnabled, "tracing", false, "Install the OpenTelemetry tracing aspect")
	cmd.Flags().DurationVar(&sessionTimeout, "session-timeout", 2*time.Hour, "Session Map sliding TTL")
	cmd.Flags().DurationVar(&sessionCleaner, "session-cleaner", 0, "Background session cleaner interval (0 disables)")
	cmd.Flags().DurationVar(&headerReadExpiry, "header-read-expiry", 10*time.Second, "Header-read timeout (0 = no limit)")
	cmd.Flags().DurationVar(&keepAliveExpiry, "keep-alive-expiry", 60*time.Second, "Idle keep-alive timeout")

	return cmd
}

func runServe(addr string, threads int, metricsEnabled, tracingEnabled bool, sessionTimeout, sessionCleaner, headerReadExpiry, keepAliveExpiry time.Duration) error {
	opts := []server.Option{
		server.WithListenAddr(addr),
		server.WithThreadCount(threads),
		server.WithSessionDefaultTimeout(sessionTimeout),
		server.WithHeaderReadExpiry(headerReadExpiry),
		server.WithKeepAliveExpiry(keepAliveExpiry),
	}
	if sessionCleaner > 0 {
		opts = append(opts, server.WithSessionCleaner(sessionCleaner))
	}

	s := server.New(opts...)

	if metricsEnabled {
		s.AddGlobalAspect(aspect.NewMetrics())
		info("Prometheus metrics aspect installed")
	}
	if tracingEnabled {
		s.AddGlobalAspect(aspect.NewTracing())
		info("OpenTelemetry tracing aspect installed")
	}

	registerDemoRoutes(s)

	if err := s.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	success("listening on %s", addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	info("shutting down")
	s.Stop()
	return nil
}

func registerDemoRoutes(s *server.Server) {
	s.AddRoute(route.MethodGET, "/ping", handler.HandlerFunc(func(t handler.Task) {
		t.SetHeader("Content-Type", "text/plain")
		t.SetBody([]byte("pong"))
	}))

	s.AddRoute(route.MethodPOST, "/echo", handler.HandlerFunc(func(t handler.Task) {
		t.SetHeader("Content-Type", "application/octet-stream")
		t.SetBody(t.Request().Body)
	}))

	s.AddRoute(route.MethodGET, "/users/{id}", handler.HandlerFunc(func(t handler.Task) {
		params := t.PathParameters()
		id := ""
		if len(params) > 0 {
			id = params[0]
		}
		t.SetHeader("Content-Type", "text/plain")
		t.SetBody([]byte("user id: " + id))
	}))

	s.AddRoute(route.MethodGET, "/whoami", handler.HandlerFunc(func(t handler.Task) {
		id := t.SessionID()
		t.SetHeader("Content-Type", "text/plain")
		t.SetBody([]byte("session: " + id))
	}))

	s.AddRoute(route.MethodGET, "/set-cookie-demo", handler.HandlerFunc(func(t handler.Task) {
		sc := (&cookie.SetCookie{}).SetName("flavor").SetValue("vanilla").SetPath("/").SetSameSite(cookie.SameSiteLax)
		t.AddCookie(sc)
		t.SetStatus(204)
	}))
}
