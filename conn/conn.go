// Package conn implements the Connection Driver: the per-socket HTTP/1.1
// state machine that reads a request header and body, routes it, drives
// the aspect chain and handler, and writes the response — or hands the
// stream to a handler that engaged manual connection management. A
// strand-bound async state machine is reexpressed here as a
// buffered-channel sequencer plus net.Conn deadlines.
package conn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haomingbai/bsrvcore/handler"
	"github.com/haomingbai/bsrvcore/internal/rcontext"
	"github.com/haomingbai/bsrvcore/queue"
	"github.com/haomingbai/bsrvcore/route"
	"github.com/haomingbai/bsrvcore/session"
	"github.com/haomingbai/bsrvcore/task"
	"github.com/haomingbai/bsrvcore/wire"
)

// state is a Connection Driver state, per the state machine table: initial
// ReadingHeader, terminal Closed.
type state int

const (
	stateReadingHeader state = iota
	stateRouting
	stateReadingBody
	stateServing
	stateWriting
	stateClosed
)

// Pool is the server's thread pool, used to run aspect/handler steps off
// the sequencer.
type Pool interface {
	Post(fn func())
}

// ServerState reports whether the owning server is still accepting work,
// consulted by IsAvailable and the keep-alive timer.
type ServerState interface {
	IsRunning() bool
}

const defaultHeaderReadExpiry = 10 * time.Second
const defaultKeepAliveExpiry = 60 * time.Second

var _ task.Conn = (*Connection)(nil)
var _ queue.Conn = queueWriter{}
var _ queue.Sequencer = queueSequencer{}

// Connection is one accepted socket's Connection Driver.
type Connection struct {
	nc net.Conn
	br *bufio.Reader
	bw *bufio.Writer

	seq *sequencer

	routes    *route.Table
	sessions  *session.Map
	serverCtx *rcontext.Context
	pool      Pool
	srv       ServerState
	logger    *slog.Logger

	defaultKeepAlive bool
	headerReadExpiry time.Duration
	keepAliveExpiry  time.Duration

	state state

	timerGen atomic.Uint64
	timer    *time.Timer

	result route.Result
	req    *wire.Request
	cur    *task.Task

	rq *queue.Queue

	mu      sync.Mutex
	closed  bool
	manual  bool
}

// New returns a Connection ready to Run. logger defaults to slog.Default
// if nil. headerReadExpiry and keepAliveExpiry are the server's
// configured timeouts; a headerReadExpiry of 0 means "no limit" and
// disarms the header-read timer entirely, while a zero keepAliveExpiry
// falls back to defaultKeepAliveExpiry.
func New(nc net.Conn, routes *route.Table, sessions *session.Map, serverCtx *rcontext.Context, pool Pool, srv ServerState, logger *slog.Logger, defaultKeepAlive bool, headerReadExpiry, keepAliveExpiry time.Duration) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	if keepAliveExpiry <= 0 {
		keepAliveExpiry = defaultKeepAliveExpiry
	}
	c := &Connection{
		nc:               nc,
		br:               bufio.NewReader(nc),
		bw:               bufio.NewWriter(nc),
		seq:              newSequencer(),
		routes:           routes,
		sessions:         sessions,
		serverCtx:        serverCtx,
		pool:             pool,
		srv:              srv,
		logger:           logger,
		defaultKeepAlive: defaultKeepAlive,
		headerReadExpiry: headerReadExpiry,
		keepAliveExpiry:  keepAliveExpiry,
		state:            stateReadingHeader,
	}
	c.rq = queue.New(queueSequencer{c}, queueWriter{c})
	return c
}

// queueSequencer and queueWriter adapt Connection to the queue package's
// narrow Sequencer/Conn interfaces, keeping the distinction between
// Connection.WriteHeader/WriteBody (task-facing, routes through the queue)
// and the raw wire writers the queue itself drains through.
type queueSequencer struct{ c *Connection }

func (s queueSequencer) Post(fn func()) { s.c.Post(fn) }

type queueWriter struct{ c *Connection }

// A failed write closes the connection, which also kills the queue.
func (w queueWriter) WriteHeader(h *wire.Response) error {
	err := w.c.writeRawHeader(h)
	if err != nil {
		w.c.closeLocked()
	}
	return err
}

func (w queueWriter) WriteBody(b []byte) error {
	err := w.c.writeRawBody(b)
	if err != nil {
		w.c.closeLocked()
	}
	return err
}

// Run starts the state machine on the sequencer.
func (c *Connection) Run() {
	c.Post(c.doReadHeader)
}

// Post implements task.Conn and queue.Sequencer: it schedules fn to run
// serially with every other operation on this connection. The channel is
// generously buffered so the common self-repost (a step scheduling its own
// continuation) never deadlocks the single consumer.
func (c *Connection) Post(fn func()) { c.seq.Post(fn) }

// SetTimer implements task.Conn with a one-shot timer independent of the
// driver's own state-machine timer.
func (c *Connection) SetTimer(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, func() { c.Post(fn) })
	return func() { t.Stop() }
}

// IsAvailable implements task.Conn: the server must still be running and
// the stream must still be open.
func (c *Connection) IsAvailable() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	return !closed && (c.srv == nil || c.srv.IsRunning())
}

// Log implements task.Conn.
func (c *Connection) Log(level slog.Level, msg string, args ...any) {
	c.logger.Log(context.Background(), level, msg, args...)
}

// Close implements task.Conn. Safe to call more than once or concurrently
// with the driver's own close path.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.rq.Kill()
	c.stopTimer()
	_ = c.nc.Close()
}

// WriteHeader implements task.Conn: pushes a header snapshot onto the
// Response Queue, for handlers using manual connection management.
func (c *Connection) WriteHeader(h *wire.Response) { c.rq.AddHeader(h) }

// WriteBody implements task.Conn: pushes a body chunk onto the Response
// Queue.
func (c *Connection) WriteBody(b []byte) { c.rq.AddBody(b) }

// armTimer (re)arms the shared timer resource, cancelling whatever was
// previously scheduled. Firing posts onFire to the sequencer, tagged with
// a generation so a timer cancelled-then-rearmed between its fire and its
// delivery is ignored.
func (c *Connection) armTimer(d time.Duration, onFire func()) {
	c.stopTimer()
	gen := c.timerGen.Add(1)
	c.timer = time.AfterFunc(d, func() {
		c.Post(func() {
			if c.timerGen.Load() == gen {
				onFire()
			}
		})
	})
}

func (c *Connection) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerGen.Add(1)
}

// doReadHeader reads the request line and headers with a header-read-
// expiry deadline. A zero headerReadExpiry means "no limit": no deadline
// is set and no timer armed. On success it immediately routes; on any
// I/O or parse error it closes the connection.
func (c *Connection) doReadHeader() {
	c.state = stateReadingHeader
	if c.headerReadExpiry > 0 {
		_ = c.nc.SetReadDeadline(time.Now().Add(c.headerReadExpiry))
		c.armTimer(c.headerReadExpiry, c.closeLocked)
	} else {
		_ = c.nc.SetReadDeadline(time.Time{})
	}

	req, err := http.ReadRequest(c.br)
	c.stopTimer()
	if err != nil {
		c.closeLocked()
		return
	}
	c.doRoute(req)
}

// doRoute looks up the Route Table and advances to body reading.
func (c *Connection) doRoute(req *http.Request) {
	c.state = stateRouting
	target := req.URL.RequestURI()
	c.result = c.routes.Route(route.Method(req.Method), target)
	c.doReadBody(req)
}

// doReadBody reads up to the matched route's body limit (defaulting to 1
// MiB when unset), enforcing the route's read expiry.
func (c *Connection) doReadBody(req *http.Request) {
	c.state = stateReadingBody

	limit := c.result.MaxBodySize
	if limit <= 0 {
		limit = 1 << 20
	}
	expiry := time.Duration(c.result.ReadExpiryMS) * time.Millisecond
	if expiry <= 0 {
		expiry = c.headerReadExpiry
		if expiry <= 0 {
			expiry = defaultHeaderReadExpiry
		}
	}
	_ = c.nc.SetReadDeadline(time.Now().Add(expiry))
	c.armTimer(expiry, c.closeLocked)

	var body []byte
	if req.Body != nil {
		limited := io.LimitReader(req.Body, limit+1)
		var err error
		body, err = io.ReadAll(limited)
		if err != nil {
			c.stopTimer()
			c.closeLocked()
			return
		}
		if int64(len(body)) > limit {
			c.stopTimer()
			c.closeLocked()
			return
		}
	}
	c.stopTimer()

	c.req = &wire.Request{
		Method: req.Method,
		Target: req.URL.RequestURI(),
		Header: req.Header,
		Body:   body,
		Remote: c.nc.RemoteAddr().String(),
	}
	c.doServe()
}

// doServe builds the Task and runs the aspect pre-pass, handler, and
// post-pass, each step posted to the thread pool so this connection's
// sequencer is free to run its other operations while CPU-bound handler
// code runs.
func (c *Connection) doServe() {
	c.state = stateServing
	c.cur = task.New(c.req, c.result, c.sessions, c.serverCtx, c, c.defaultKeepAlive)

	steps := buildSteps(c.result.Aspects, c.result.Handler)
	c.runStep(steps, 0)
}

// step is one aspect Pre, the Handler.Service, or one aspect Post.
type step func(t handler.Task)

func buildSteps(aspects []handler.Aspect, h handler.Handler) []step {
	steps := make([]step, 0, 2*len(aspects)+1)
	for _, a := range aspects {
		a := a
		steps = append(steps, a.Pre)
	}
	steps = append(steps, h.Service)
	for i := len(aspects) - 1; i >= 0; i-- {
		a := aspects[i]
		steps = append(steps, a.Post)
	}
	return steps
}

// runStep posts steps[i] to the thread pool; its continuation reposts the
// next step to the sequencer. A panicking step is logged at warn and
// skipped — aspects cannot abort the chain by failing, only by mutating
// the Task.
func (c *Connection) runStep(steps []step, i int) {
	if i >= len(steps) {
		c.Post(c.finalize)
		return
	}
	cur := c.cur
	c.pool.Post(func() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.Log(slog.LevelWarn, "aspect/handler step panicked", "recover", fmt.Sprint(r))
				}
			}()
			steps[i](cur)
		}()
		c.Post(func() { c.runStep(steps, i+1) })
	})
}

// finalize applies the Task's pending response mutations and either hands
// the stream to the handler (manual connection management) or writes the
// unary response and advances the state machine.
func (c *Connection) finalize() {
	if c.cur.IsManual() {
		c.manual = true
		c.cur.Finalize()
		return
	}

	resp := c.cur.Finalize()
	keepAlive := c.cur.KeepAlive()
	c.state = stateWriting

	if keepAlive {
		resp.Header.Set("Connection", "keep-alive")
		secs := int64(c.keepAliveExpiry / time.Second)
		if secs < 1 {
			secs = 1
		}
		resp.Header.Set("Keep-Alive", fmt.Sprintf("timeout=%d", secs))
	} else {
		resp.Header.Set("Connection", "close")
	}

	if err := c.writeRawHeader(resp); err != nil {
		c.closeLocked()
		return
	}
	if err := c.writeRawBody(resp.Body); err != nil {
		c.closeLocked()
		return
	}

	if !keepAlive {
		c.closeLocked()
		return
	}

	c.state = stateReadingHeader
	c.armTimer(c.keepAliveExpiry, c.closeLocked)
	c.doReadHeader()
}

// writeRawHeader and writeRawBody are the unary-path and streaming-path
// shared wire writers: a single atomic write per call, flushed
// immediately. Both run on the sequencer (called directly from finalize,
// or via queueWriter from the Response Queue's drain loop, which itself
// always runs posted on the sequencer).
func (c *Connection) writeRawHeader(resp *wire.Response) error {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	statusLine := fmt.Sprintf("HTTP/1.1 %d %s\r\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	if _, err := c.bw.WriteString(statusLine); err != nil {
		return err
	}
	if resp.Header.Get("Content-Length") == "" {
		resp.Header.Set("Content-Length", fmt.Sprintf("%d", len(resp.Body)))
	}
	if err := resp.Header.Write(c.bw); err != nil {
		return err
	}
	if _, err := c.bw.WriteString("\r\n"); err != nil {
		return err
	}
	return c.bw.Flush()
}

func (c *Connection) writeRawBody(body []byte) error {
	if len(body) == 0 {
		return nil
	}
	if _, err := c.bw.Write(body); err != nil {
		return err
	}
	return c.bw.Flush()
}

// closeLocked transitions to Closed and tears down the socket. The name
// reflects that it only ever runs on the sequencer, never under an
// explicit mutex.
func (c *Connection) closeLocked() {
	c.state = stateClosed
	c.Close()
}
