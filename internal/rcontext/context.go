// Package rcontext implements the Context type: a thread-safe mapping from
// a textual key to an attribute.Attribute, as described by bsrvcore's data
// model. It is unrelated to the stdlib context.Context and carries no
// cancellation semantics — it is a shared, mutable bag of values owned by a
// request, a session, or the server itself.
package rcontext

import (
	"sync"

	"github.com/haomingbai/bsrvcore/internal/attribute"
)

// Context is a readers-writer-locked map from key to Attribute. Many
// readers may proceed in parallel; a writer excludes all others. The zero
// value is ready to use.
type Context struct {
	mu  sync.RWMutex
	vals map[string]attribute.Attribute
}

// New returns an empty Context.
func New() *Context {
	return &Context{vals: make(map[string]attribute.Attribute)}
}

// Get returns the Attribute stored at key, or nil if absent.
func (c *Context) Get(key string) attribute.Attribute {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals[key]
}

// Set installs val at key, replacing any previous value.
func (c *Context) Set(key string, val attribute.Attribute) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vals == nil {
		c.vals = make(map[string]attribute.Attribute)
	}
	c.vals[key] = val
}

// Has reports whether key is present.
func (c *Context) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.vals[key]
	return ok
}

// Delete removes key, if present.
func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.vals, key)
}
