package conn

import (
	"bufio"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/haomingbai/bsrvcore/handler"
	"github.com/haomingbai/bsrvcore/internal/rcontext"
	"github.com/haomingbai/bsrvcore/route"
	"github.com/haomingbai/bsrvcore/session"
)

type inlinePool struct{}

func (inlinePool) Post(fn func()) { fn() }

type alwaysRunning struct{}

func (alwaysRunning) IsRunning() bool { return true }

func TestUnaryRequestResponseCycle(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	tbl := route.NewTable()
	tbl.AddRouteEntry(route.MethodGET, "/hello", handler.HandlerFunc(func(t handler.Task) {
		t.SetStatus(200)
		t.SetHeader("Content-Type", "text/plain")
		t.SetBody([]byte("hi"))
	}))

	sessions := session.NewMap(nil, nil)
	c := New(server, tbl, sessions, rcontext.New(), inlinePool{}, alwaysRunning{}, nil, false, 2*time.Second, 60*time.Second)
	c.Run()

	client.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := client.Write([]byte("GET /hello HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
}

func TestUnmatchedRouteGetsDefaultHandler(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	tbl := route.NewTable()
	sessions := session.NewMap(nil, nil)
	c := New(server, tbl, sessions, rcontext.New(), inlinePool{}, alwaysRunning{}, nil, false, 2*time.Second, 60*time.Second)
	c.Run()

	client.SetDeadline(time.Now().Add(2 * time.Second))
	client.Write([]byte("GET /nope HTTP/1.1\r\nHost: x\r\n\r\n"))

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", resp.StatusCode)
	}
}
