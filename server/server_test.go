package server

import (
	"bufio"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/haomingbai/bsrvcore/handler"
	"github.com/haomingbai/bsrvcore/route"
)

func freeAddr(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestStartRejectsMissingListenAddr(t *testing.T) {
	s := New()
	if err := s.Start(); err != ErrNoListenAddr {
		t.Fatalf("Start() error = %v, want ErrNoListenAddr", err)
	}
}

func TestConfigMutationsAreNoOpsWhileRunning(t *testing.T) {
	addr := freeAddr(t)
	s := New(WithListenAddr(addr))
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if s.AddRoute(route.MethodGET, "/late", handler.DefaultHandler) {
		t.Error("AddRoute should no-op while Running")
	}
}

func TestEndToEndRequest(t *testing.T) {
	addr := freeAddr(t)
	s := New(WithListenAddr(addr))
	s.AddRoute(route.MethodGET, "/ok", handler.HandlerFunc(func(t handler.Task) {
		t.SetBody([]byte("fine"))
	}))

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	time.Sleep(20 * time.Millisecond)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := conn.Write([]byte("GET /ok HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
}

func TestStopThenStartRebindsListener(t *testing.T) {
	addr := freeAddr(t)
	s := New(WithListenAddr(addr))
	if err := s.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	s.Stop()

	if err := s.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	defer s.Stop()

	if !s.IsRunning() {
		t.Error("expected Running after restart")
	}
}
