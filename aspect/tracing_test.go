package aspect

import (
	"testing"

	"github.com/haomingbai/bsrvcore/wire"
)

// These tests exercise Pre/Post bookkeeping against the default global
// no-op TracerProvider; wiring a real exporter is the embedding
// application's responsibility (see the doc comment on NewTracing).
func TestTracingOpensAndClosesOneSpanPerRequest(t *testing.T) {
	tr := NewTracing(WithTracerName("test"))
	task := &stubTask{req: &wire.Request{Method: "GET"}, loc: "/ping"}

	tr.Pre(task)
	if len(tr.spans) != 1 {
		t.Fatalf("expected one open span after Pre, got %d", len(tr.spans))
	}

	tr.Post(task)
	if len(tr.spans) != 0 {
		t.Fatalf("expected the span to be released after Post, got %d still open", len(tr.spans))
	}
}

func TestTracingPostWithoutPreIsNoOp(t *testing.T) {
	tr := NewTracing(WithTracerName("test"))
	task := &stubTask{req: &wire.Request{Method: "GET"}, loc: "/orphan"}

	tr.Post(task)
	if len(tr.spans) != 0 {
		t.Fatalf("Post without a matching Pre should not panic or leave state behind")
	}
}
