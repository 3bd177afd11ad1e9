package rcontext

import (
	"sync"
	"testing"

	"github.com/haomingbai/bsrvcore/internal/attribute"
)

func TestGetSetHasDelete(t *testing.T) {
	c := New()

	if c.Has("k") {
		t.Fatalf("Has on empty Context = true, want false")
	}
	if got := c.Get("k"); got != nil {
		t.Fatalf("Get on empty Context = %v, want nil", got)
	}

	c.Set("k", attribute.String("v1"))
	if !c.Has("k") {
		t.Fatalf("Has after Set = false, want true")
	}
	if got := c.Get("k"); got == nil || !got.Equals(attribute.String("v1")) {
		t.Fatalf("Get after Set = %v, want v1", got)
	}

	c.Set("k", attribute.String("v2"))
	if got := c.Get("k"); got == nil || !got.Equals(attribute.String("v2")) {
		t.Fatalf("Get after overwrite = %v, want v2", got)
	}

	c.Delete("k")
	if c.Has("k") {
		t.Fatalf("Has after Delete = true, want false")
	}
}

func TestDeleteMissingKeyIsNoOp(t *testing.T) {
	c := New()
	c.Delete("missing")
	if c.Has("missing") {
		t.Fatalf("Has after deleting a missing key = true, want false")
	}
}

func TestZeroValueIsUsableOnSet(t *testing.T) {
	var c Context
	c.Set("k", attribute.String("v"))
	if got := c.Get("k"); got == nil || !got.Equals(attribute.String("v")) {
		t.Fatalf("Get on zero-value Context after Set = %v, want v", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.Set("k", attribute.String("v"))
		}(i)
		go func(i int) {
			defer wg.Done()
			c.Get("k")
		}(i)
	}
	wg.Wait()
}
