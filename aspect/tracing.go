package aspect

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/haomingbai/bsrvcore/handler"
)

// TracingConfig configures the Tracing aspect.
type TracingConfig struct {
	// TracerName names the tracer acquired from the global provider
	// (default "bsrvcore").
	TracerName string
	// IncludeSessionID adds the session id as a span attribute. Disabled
	// by default since it forces session-cookie minting on every traced
	// request.
	IncludeSessionID bool
	// AttributeExtractor, when set, adds custom attributes per request.
	AttributeExtractor func(t handler.Task) []attribute.KeyValue
}

// TracingOption configures a TracingConfig.
type TracingOption func(*TracingConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TracingOption {
	return func(c *TracingConfig) { c.TracerName = name }
}

// WithIncludeSessionID enables attaching the session id to each span.
func WithIncludeSessionID(include bool) TracingOption {
	return func(c *TracingConfig) { c.IncludeSessionID = include }
}

// WithAttributeExtractor sets a per-request custom attribute extractor.
func WithAttributeExtractor(extractor func(t handler.Task) []attribute.KeyValue) TracingOption {
	return func(c *TracingConfig) { c.AttributeExtractor = extractor }
}

func defaultTracingConfig() TracingConfig {
	return TracingConfig{TracerName: "bsrvcore"}
}

// Tracing is the OpenTelemetry counterpart to Metrics: a global
// handler.Aspect that opens a span in Pre and closes it in Post —
// rather than wrapping a single next() call — to fit the Pre/Post split
// the rest of the aspect chain uses. Records one span per request, from
// the start of the aspect pre-pass to the end of the post-pass.
type Tracing struct {
	cfg    TracingConfig
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[handler.Task]trace.Span
}

var _ handler.Aspect = (*Tracing)(nil)

// NewTracing builds a Tracing aspect resolving its tracer from the global
// OpenTelemetry provider; callers configure that provider (batcher,
// resource, exporter) in their own main.
func NewTracing(opts ...TracingOption) *Tracing {
	cfg := defaultTracingConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Tracing{
		cfg:    cfg,
		tracer: otel.Tracer(cfg.TracerName),
		spans:  make(map[handler.Task]trace.Span),
	}
}

// Pre implements handler.Aspect: opens a span named after the method and
// matched route.
func (tr *Tracing) Pre(t handler.Task) {
	attrs := []attribute.KeyValue{
		attribute.String("bsrvcore.method", t.Request().Method),
		attribute.String("bsrvcore.route", t.CurrentLocation()),
	}
	if tr.cfg.IncludeSessionID {
		attrs = append(attrs, attribute.String("bsrvcore.session_id", t.SessionID()))
	}
	if tr.cfg.AttributeExtractor != nil {
		attrs = append(attrs, tr.cfg.AttributeExtractor(t)...)
	}

	_, span := tr.tracer.Start(
		context.Background(),
		"bsrvcore "+t.Request().Method+" "+t.CurrentLocation(),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)

	tr.mu.Lock()
	tr.spans[t] = span
	tr.mu.Unlock()
}

// Post implements handler.Aspect: closes the span opened in Pre, marking
// it Ok unless the handler engaged manual connection management (in which
// case the final outcome is outside this request's observable window).
func (tr *Tracing) Post(t handler.Task) {
	tr.mu.Lock()
	span, ok := tr.spans[t]
	delete(tr.spans, t)
	tr.mu.Unlock()
	if !ok {
		return
	}
	defer span.End()

	if t.IsManual() {
		span.SetAttributes(attribute.Bool("bsrvcore.manual", true))
		span.SetStatus(codes.Ok, "manual connection management engaged")
		return
	}
	span.SetStatus(codes.Ok, "")
}
