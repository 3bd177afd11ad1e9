package route

import "github.com/haomingbai/bsrvcore/handler"

// layer is a node in a per-method trie, mirroring route_internal::
// HttpRouteTableLayer. A literal segment indexes into children; the
// parametric slot at this level is the single defaultChild.
type layer struct {
	children     map[string]*layer
	defaultChild *layer

	handler   handler.Handler
	aspects   []handler.Aspect
	exclusive bool

	// Per-layer limits; 0 means "inherit default".
	maxBodySize int64
	readExpiryMS  int64
	writeExpiryMS int64
}

func newLayer() *layer {
	return &layer{}
}

// childOrCreate returns the literal child for seg, creating it if absent.
func (l *layer) childOrCreate(seg string) *layer {
	if l.children == nil {
		l.children = make(map[string]*layer)
	}
	child, ok := l.children[seg]
	if !ok {
		child = newLayer()
		l.children[seg] = child
	}
	return child
}

// defaultChildOrCreate returns the parametric slot at this level, creating
// it if absent. All parametric segments at one level share a single slot
// (the segment name is not part of the trie key — only its position is).
func (l *layer) defaultChildOrCreate() *layer {
	if l.defaultChild == nil {
		l.defaultChild = newLayer()
	}
	return l.defaultChild
}

// descend walks/creates layers for each segment of tmpl and returns the
// terminal layer.
func descend(root *layer, tmpl string) *layer {
	cur := root
	for _, seg := range splitSegments(tmpl) {
		if _, ok := isParamSegment(seg); ok {
			cur = cur.defaultChildOrCreate()
		} else {
			cur = cur.childOrCreate(seg)
		}
	}
	return cur
}
