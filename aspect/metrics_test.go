package aspect

import (
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haomingbai/bsrvcore/handler"
	"github.com/haomingbai/bsrvcore/internal/rcontext"
	"github.com/haomingbai/bsrvcore/wire"
)

var _ handler.Task = (*stubTask)(nil)

// stubTask is a minimal handler.Task double for exercising aspects in
// isolation from the task package.
type stubTask struct {
	req    *wire.Request
	loc    string
	manual bool
}

func (s *stubTask) Request() *wire.Request                         { return s.req }
func (s *stubTask) CurrentLocation() string                        { return s.loc }
func (s *stubTask) PathParameters() []string                       { return nil }
func (s *stubTask) Cookie(string) string                           { return "" }
func (s *stubTask) SessionID() string                              { return "sess-1" }
func (s *stubTask) Session() *rcontext.Context                     { return rcontext.New() }
func (s *stubTask) ServerContext() *rcontext.Context                { return rcontext.New() }
func (s *stubTask) SetBody([]byte)                                  {}
func (s *stubTask) AppendBody([]byte)                                {}
func (s *stubTask) SetHeader(string, string)                         {}
func (s *stubTask) AddHeader(string, string)                         {}
func (s *stubTask) SetStatus(int)                                    {}
func (s *stubTask) AddCookie(handler.CookieBuilder)                   {}
func (s *stubTask) SetKeepAlive(bool)                                {}
func (s *stubTask) SetManualConnectionManagement()                   { s.manual = true }
func (s *stubTask) IsManual() bool                                    { return s.manual }
func (s *stubTask) WriteHeader(*wire.Response)                        {}
func (s *stubTask) WriteBody([]byte)                                  {}
func (s *stubTask) Post(func())                                       {}
func (s *stubTask) SetTimer(time.Duration, func()) func()             { return func() {} }
func (s *stubTask) IsAvailable() bool                                  { return true }
func (s *stubTask) Log(slog.Level, string, ...any)                    {}
func (s *stubTask) Close()                                             {}

func TestMetricsRecordsCountAndDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg), WithNamespace("test"))

	task := &stubTask{req: &wire.Request{Method: "GET"}, loc: "/ping"}
	m.Pre(task)
	m.Post(task)

	got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("/ping", "GET", "ok"))
	if got != 1 {
		t.Errorf("requests_total = %v, want 1", got)
	}
}

func TestMetricsOutcomeReflectsManual(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg), WithNamespace("test"))

	task := &stubTask{req: &wire.Request{Method: "GET"}, loc: "/stream", manual: true}
	m.Pre(task)
	m.Post(task)

	got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("/stream", "GET", "manual"))
	if got != 1 {
		t.Errorf("requests_total{outcome=manual} = %v, want 1", got)
	}
}

func TestMetricsPostWithoutPreIsNoOp(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg), WithNamespace("test"))

	task := &stubTask{req: &wire.Request{Method: "GET"}, loc: "/orphan"}
	m.Post(task)

	got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("/orphan", "GET", "ok"))
	if got != 0 {
		t.Errorf("requests_total = %v, want 0 for a Post with no matching Pre", got)
	}
}
