// Package task implements the Task Context: the per-request handle passed
// to aspects and handlers. Task satisfies handler.Task; it lives apart from
// package handler so that route, which references handler's interfaces,
// never has to import task.
package task

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haomingbai/bsrvcore/cookie"
	"github.com/haomingbai/bsrvcore/handler"
	"github.com/haomingbai/bsrvcore/internal/rcontext"
	"github.com/haomingbai/bsrvcore/route"
	"github.com/haomingbai/bsrvcore/session"
	"github.com/haomingbai/bsrvcore/wire"
)

const sessionCookieName = "sessionId"

var _ handler.Task = (*Task)(nil)

// Conn is the slice of the connection driver a Task needs: posting work,
// arming timers, streaming writes, availability, logging, and closing.
// The connection driver is the usual implementation.
type Conn interface {
	Post(fn func())
	SetTimer(d time.Duration, fn func()) (cancel func())
	IsAvailable() bool
	Log(level slog.Level, msg string, args ...any)
	Close()
	WriteHeader(h *wire.Response)
	WriteBody(body []byte)
}

// Task is the concrete per-request context. One Task is created per
// request, after its body is fully read, and discarded once the response
// has been finalized.
type Task struct {
	mu sync.Mutex

	req    *wire.Request
	result route.Result
	resp   *wire.Response

	conn       Conn
	sessions   *session.Map
	serverCtx  *rcontext.Context

	cookiesOnce   bool
	cookies       map[string]string

	sessionIDOnce bool
	sessionID     string
	sessionIsNew  bool

	pendingCookies []string

	keepAlive bool
	manual    bool
}

// New returns a Task bound to req, the route it matched, the server's
// session map and shared context, and the owning connection. keepAlive is
// the connection's current default, used unless the handler overrides it.
func New(req *wire.Request, result route.Result, sessions *session.Map, serverCtx *rcontext.Context, conn Conn, keepAliveDefault bool) *Task {
	return &Task{
		req:       req,
		result:    result,
		resp:      wire.NewResponse(),
		conn:      conn,
		sessions:  sessions,
		serverCtx: serverCtx,
		keepAlive: keepAliveDefault,
	}
}

// Request implements handler.Task.
func (t *Task) Request() *wire.Request { return t.req }

// CurrentLocation implements handler.Task.
func (t *Task) CurrentLocation() string { return t.result.Template }

// PathParameters implements handler.Task.
func (t *Task) PathParameters() []string { return t.result.Parameters }

// Cookie implements handler.Task. Parsing happens lazily on first call and
// is memoized.
func (t *Task) Cookie(name string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.parseCookiesLocked()
	return t.cookies[name]
}

func (t *Task) parseCookiesLocked() {
	if t.cookiesOnce {
		return
	}
	t.cookiesOnce = true
	t.cookies = cookie.Parse(t.req.Header.Get("Cookie"))
}

// SessionID implements handler.Task. The first call either finds the
// "sessionId" cookie (case-insensitive name match) or mints a fresh UUIDv4
// and queues it for write-back as a Set-Cookie header at Finalize.
func (t *Task) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessionIDOnce {
		return t.sessionID
	}
	t.sessionIDOnce = true

	t.parseCookiesLocked()
	for name, v := range t.cookies {
		if strings.EqualFold(name, sessionCookieName) {
			t.sessionID = v
			return t.sessionID
		}
	}

	t.sessionID = uuid.NewString()
	t.sessionIsNew = true
	return t.sessionID
}

// Session implements handler.Task.
func (t *Task) Session() *rcontext.Context {
	return t.sessions.Get(t.SessionID())
}

// ServerContext implements handler.Task.
func (t *Task) ServerContext() *rcontext.Context { return t.serverCtx }

// SetBody implements handler.Task.
func (t *Task) SetBody(body []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resp.Body = body
}

// AppendBody implements handler.Task.
func (t *Task) AppendBody(body []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resp.Body = append(t.resp.Body, body...)
}

// SetHeader implements handler.Task.
func (t *Task) SetHeader(key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resp.Header.Set(key, value)
}

// AddHeader implements handler.Task.
func (t *Task) AddHeader(key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resp.Header.Add(key, value)
}

// SetStatus implements handler.Task.
func (t *Task) SetStatus(code int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resp.StatusCode = code
}

// AddCookie implements handler.Task. A cookie that serializes empty is
// dropped rather than queued.
func (t *Task) AddCookie(c handler.CookieBuilder) {
	s := c.String()
	if s == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingCookies = append(t.pendingCookies, s)
}

// SetKeepAlive implements handler.Task.
func (t *Task) SetKeepAlive(keepAlive bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keepAlive = keepAlive
}

// SetManualConnectionManagement implements handler.Task. Latching: once
// set it can never be cleared.
func (t *Task) SetManualConnectionManagement() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.manual = true
}

// IsManual implements handler.Task.
func (t *Task) IsManual() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manual
}

// WriteHeader implements handler.Task.
func (t *Task) WriteHeader(resp *wire.Response) { t.conn.WriteHeader(resp) }

// WriteBody implements handler.Task.
func (t *Task) WriteBody(body []byte) { t.conn.WriteBody(body) }

// Post implements handler.Task.
func (t *Task) Post(fn func()) { t.conn.Post(fn) }

// SetTimer implements handler.Task.
func (t *Task) SetTimer(d time.Duration, fn func()) func() { return t.conn.SetTimer(d, fn) }

// IsAvailable implements handler.Task.
func (t *Task) IsAvailable() bool { return t.conn.IsAvailable() }

// Log implements handler.Task.
func (t *Task) Log(level slog.Level, msg string, args ...any) { t.conn.Log(level, msg, args...) }

// Close implements handler.Task.
func (t *Task) Close() { t.conn.Close() }

// KeepAlive reports the connection driver's keep-alive decision for this
// response, as set by the handler or inherited from the connection's
// default.
func (t *Task) KeepAlive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.keepAlive
}

// Limits exposes the matched route's effective limits, for the connection
// driver to enforce while reading the body and scheduling timers.
func (t *Task) Limits() route.Result { return t.result }

// Finalize applies any pending Set-Cookie headers — including the
// session-id cookie, if SessionID minted a fresh one — to the response and
// returns it. Called once, after the aspect chain and handler have
// returned; the connection driver decides whether to auto-enqueue the
// result based on IsManual.
func (t *Task) Finalize() *wire.Response {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sessionIsNew {
		sc := (&cookie.SetCookie{}).SetName(sessionCookieName).SetValue(t.sessionID).SetPath("/").SetHTTPOnly(true)
		if s := sc.String(); s != "" {
			t.pendingCookies = append(t.pendingCookies, s)
		}
	}
	for _, c := range t.pendingCookies {
		t.resp.Header.Add("Set-Cookie", c)
	}
	t.pendingCookies = nil

	return t.resp
}
