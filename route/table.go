// Package route implements the hierarchical route table: per-method tries
// of literal/parametric/exclusive route layers, aspect collection, and
// effective per-route limits, adapted from a page/API/layout router to a
// method/template/handler+aspect router.
package route

import (
	"strings"
	"sync"

	"github.com/haomingbai/bsrvcore/handler"
)

// Method is an HTTP request method. The table keys its tries by Method,
// leaving room for arbitrary additional values beyond the common set.
type Method string

// Common HTTP methods.
const (
	MethodGET    Method = "GET"
	MethodPOST   Method = "POST"
	MethodPUT    Method = "PUT"
	MethodDELETE Method = "DELETE"
	MethodPATCH  Method = "PATCH"
	MethodHEAD   Method = "HEAD"
)

// Result is the outcome of routing a request.
type Result struct {
	Template    string
	Parameters  []string
	Aspects     []handler.Aspect
	Handler     handler.Handler
	MaxBodySize int64
	ReadExpiryMS  int64
	WriteExpiryMS int64
}

// Defaults holds the table-wide fallback limits, overridden per-layer when
// a layer's value is nonzero.
type Defaults struct {
	MaxBodySize   int64
	ReadExpiryMS  int64
	WriteExpiryMS int64
}

// Table is a readers-writer-locked set of per-method route tries. The
// table itself does not enforce a running/stopped gate — the server
// facade does, by refusing to call the mutating methods while running.
type Table struct {
	mu      sync.RWMutex
	tries   map[Method]*layer
	global  []handler.Aspect            // global aspects, all methods
	methodG map[Method][]handler.Aspect // method-global aspects

	defaults Defaults

	defaultHandler handler.Handler
}

// NewTable returns an empty Table with handler.DefaultHandler installed as
// the default handler.
func NewTable() *Table {
	return &Table{
		tries:          make(map[Method]*layer),
		methodG:        make(map[Method][]handler.Aspect),
		defaultHandler: handler.DefaultHandler,
	}
}

func (t *Table) trieOrCreate(m Method) *layer {
	root, ok := t.tries[m]
	if !ok {
		root = newLayer()
		t.tries[m] = root
	}
	return root
}

// AddRouteEntry registers handler at (method, tmpl), validating tmpl with
// validTemplate. Re-registration replaces any existing handler at that exact (method,
// template) pair. Returns false (no state change) if tmpl is invalid.
func (t *Table) AddRouteEntry(m Method, tmpl string, h handler.Handler) bool {
	return t.addRouteEntry(m, tmpl, h, false)
}

// AddExclusiveRouteEntry is AddRouteEntry plus marking the terminal layer
// exclusive: descent into its default (parametric) child is forbidden
// during matching, so this layer always serves anything under its prefix.
func (t *Table) AddExclusiveRouteEntry(m Method, tmpl string, h handler.Handler) bool {
	return t.addRouteEntry(m, tmpl, h, true)
}

func (t *Table) addRouteEntry(m Method, tmpl string, h handler.Handler, exclusive bool) bool {
	if !validTemplate(tmpl) {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	l := descend(t.trieOrCreate(m), tmpl)
	l.handler = h
	if exclusive {
		l.exclusive = true
	}
	return true
}

// AddAspect attaches a route-local aspect at (method, tmpl), in insertion
// order relative to other route-local aspects at that same layer. Returns
// false if tmpl is invalid.
func (t *Table) AddAspect(m Method, tmpl string, a handler.Aspect) bool {
	if !validTemplate(tmpl) {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	l := descend(t.trieOrCreate(m), tmpl)
	l.aspects = append(l.aspects, a)
	return true
}

// AddGlobalAspect registers an aspect applied to every request, regardless
// of method, ahead of any method-global or route-local aspect.
func (t *Table) AddGlobalAspect(a handler.Aspect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.global = append(t.global, a)
}

// AddMethodAspect registers an aspect applied to every request of method m,
// after global aspects and before route-local aspects.
func (t *Table) AddMethodAspect(m Method, a handler.Aspect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.methodG[m] = append(t.methodG[m], a)
}

// SetRouteLimits sets per-layer overrides at (method, tmpl). A zero value
// means "inherit the table default", so a per-layer limit of zero cannot
// be set.
func (t *Table) SetRouteLimits(m Method, tmpl string, maxBodySize, readExpiryMS, writeExpiryMS int64) bool {
	if !validTemplate(tmpl) {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	l := descend(t.trieOrCreate(m), tmpl)
	l.maxBodySize = maxBodySize
	l.readExpiryMS = readExpiryMS
	l.writeExpiryMS = writeExpiryMS
	return true
}

// SetDefaults replaces the table-wide fallback limits.
func (t *Table) SetDefaults(d Defaults) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaults = d
}

// SetDefaultHandler replaces the handler served when routing fails to
// match or the matched layer has no handler.
func (t *Table) SetDefaultHandler(h handler.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultHandler = h
}

// Route matches method and target (a request-target, optionally carrying a
// query string) against the table.
func (t *Table) Route(m Method, target string) Result {
	t.mu.RLock()
	defer t.mu.RUnlock()

	root, ok := t.tries[m]
	if !ok {
		return t.defaultResult(m)
	}

	path := target
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := splitSegments(path)

	cur := root
	var b strings.Builder
	var params []string

	for _, seg := range segments {
		if cur.exclusive {
			break
		}
		if child, ok := cur.children[seg]; ok {
			cur = child
			b.WriteByte('/')
			b.WriteString(seg)
			continue
		}
		if cur.defaultChild != nil {
			cur = cur.defaultChild
			b.WriteByte('/')
			b.WriteString(seg)
			params = append(params, seg)
			continue
		}
		return t.defaultResult(m)
	}

	if cur.handler == nil {
		return t.defaultResult(m)
	}

	template := b.String()
	if template == "" {
		template = "/"
	}

	return Result{
		Template:      template,
		Parameters:    params,
		Aspects:       t.collectAspects(cur, m),
		Handler:       cur.handler,
		MaxBodySize:   orDefault(cur.maxBodySize, t.defaults.MaxBodySize),
		ReadExpiryMS:  orDefault(cur.readExpiryMS, t.defaults.ReadExpiryMS),
		WriteExpiryMS: orDefault(cur.writeExpiryMS, t.defaults.WriteExpiryMS),
	}
}

func orDefault(v, def int64) int64 {
	if v != 0 {
		return v
	}
	return def
}

// collectAspects produces the flat (global, method-global, route-local)
// aspect vector for the matched layer.
func (t *Table) collectAspects(l *layer, m Method) []handler.Aspect {
	out := make([]handler.Aspect, 0, len(t.global)+len(t.methodG[m])+len(l.aspects))
	out = append(out, t.global...)
	out = append(out, t.methodG[m]...)
	out = append(out, l.aspects...)
	return out
}

// defaultResult builds the fallback result used when matching fails:
// template "/", no parameters, global-only aspects, the configured
// default handler, and default limits.
func (t *Table) defaultResult(m Method) Result {
	return Result{
		Template:      "/",
		Aspects:       append([]handler.Aspect{}, t.global...),
		Handler:       t.defaultHandler,
		MaxBodySize:   t.defaults.MaxBodySize,
		ReadExpiryMS:  t.defaults.ReadExpiryMS,
		WriteExpiryMS: t.defaults.WriteExpiryMS,
	}
}
