// Package handler declares the contracts a route entry is built from:
// Handler, Aspect, and the narrow Task interface both are invoked with.
// Task itself is implemented by package task; handler only needs the
// surface handlers and aspects actually call, kept independent of the
// task package's full definition to avoid an import cycle with route.
package handler

import (
	"log/slog"
	"time"

	"github.com/haomingbai/bsrvcore/internal/rcontext"
	"github.com/haomingbai/bsrvcore/wire"
)

// Task is the per-request API exposed to handlers and aspects. The
// concrete implementation lives in package task; it is referenced here
// only as an interface so that route (which Task depends on) is never
// imported back by this package.
type Task interface {
	// Request returns the request under service. Callers must not retain
	// mutable references past the handler's return.
	Request() *wire.Request

	// CurrentLocation returns the matched, concretized route template
	// (e.g. "/users/123").
	CurrentLocation() string

	// PathParameters returns the captured parametric segments, in
	// left-to-right order.
	PathParameters() []string

	// Cookie returns the named request cookie's value, or "" if absent.
	// Lookup is case-sensitive; parsing happens lazily on first call.
	Cookie(name string) string

	// SessionID returns the request's session id: the "sessionId" cookie
	// if present (case-insensitive name match), otherwise a freshly
	// generated id that is memoized and queued for write-back as a
	// Set-Cookie header at finalization.
	SessionID() string

	// Session returns the Context bound to SessionID(), creating it if
	// necessary.
	Session() *rcontext.Context

	// ServerContext returns the server-wide Context.
	ServerContext() *rcontext.Context

	// SetBody replaces the response body.
	SetBody(body []byte)

	// AppendBody appends to the response body.
	AppendBody(body []byte)

	// SetHeader sets a response header, replacing any existing values.
	SetHeader(key, value string)

	// AddHeader appends a response header value.
	AddHeader(key, value string)

	// SetStatus sets the response status code.
	SetStatus(code int)

	// AddCookie queues a Set-Cookie header to be emitted at finalization
	// (dropped if it serializes empty, per cookie.SetCookie.String).
	AddCookie(c CookieBuilder)

	// SetKeepAlive controls whether the connection is kept alive after
	// this response, for the non-manual path.
	SetKeepAlive(keepAlive bool)

	// SetManualConnectionManagement latches manual connection management:
	// once set, the driver will not auto-finalize or advance the
	// connection's state machine for this request. The flag cannot be
	// cleared.
	SetManualConnectionManagement()

	// IsManual reports whether manual connection management is engaged.
	IsManual() bool

	// WriteHeader pushes a header snapshot onto the streaming response
	// queue. Valid under manual connection management.
	WriteHeader(resp *wire.Response)

	// WriteBody pushes a body chunk onto the streaming response queue.
	// Valid under manual connection management.
	WriteBody(body []byte)

	// Post schedules fn on the connection's sequencer, serially with the
	// connection's other operations; it does not run fn on the server's
	// thread pool.
	Post(fn func())

	// SetTimer schedules fn to run after d, returning a cancel function.
	SetTimer(d time.Duration, fn func()) (cancel func())

	// IsAvailable reports whether the server is running and the
	// connection is still open.
	IsAvailable() bool

	// Log writes a log record at level through the server's sink.
	Log(level slog.Level, msg string, args ...any)

	// Close closes the underlying connection. Only meaningful once
	// manual connection management is engaged.
	Close()
}

// CookieBuilder is the capability a Task.AddCookie argument must provide;
// *cookie.SetCookie implements it. Declared here (rather than importing
// package cookie) to keep handler's import graph minimal.
type CookieBuilder interface {
	String() string
}

// Handler serves a single matched route.
type Handler interface {
	Service(t Task)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(t Task)

// Service implements Handler.
func (f HandlerFunc) Service(t Task) { f(t) }

// Aspect is a paired pre/post interceptor executed around a Handler.
// Pre-pass runs ascending, Post-pass runs descending.
type Aspect interface {
	Pre(t Task)
	Post(t Task)
}

// FuncAspect adapts two plain functions to Aspect: PreFn runs in Pre,
// PostFn runs in Post.
type FuncAspect struct {
	PreFn  func(t Task)
	PostFn func(t Task)
}

// NewFuncAspect builds an Aspect from a pre/post pair. Either may be nil,
// in which case that slot is a no-op.
func NewFuncAspect(pre, post func(t Task)) *FuncAspect {
	return &FuncAspect{PreFn: pre, PostFn: post}
}

// Pre implements Aspect.
func (a *FuncAspect) Pre(t Task) {
	if a.PreFn != nil {
		a.PreFn(t)
	}
}

// Post implements Aspect.
func (a *FuncAspect) Post(t Task) {
	if a.PostFn != nil {
		a.PostFn(t)
	}
}

// DefaultHandler is installed as a Route Table's default handler at
// construction: it writes a minimal 404 body and disables keep-alive.
var DefaultHandler Handler = HandlerFunc(func(t Task) {
	t.SetStatus(404)
	t.SetHeader("Content-Type", "application/json")
	t.SetBody([]byte(`{"error":"not found"}`))
	t.SetKeepAlive(false)
})
