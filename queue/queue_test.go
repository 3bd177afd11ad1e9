package queue

import (
	"errors"
	"testing"

	"github.com/haomingbai/bsrvcore/wire"
)

// immediateSequencer runs posted work synchronously on the calling
// goroutine, making the queue's drain order deterministic for tests.
type immediateSequencer struct{}

func (immediateSequencer) Post(fn func()) { fn() }

type recordingConn struct {
	writes []string
	failAt int
	n      int
}

func (c *recordingConn) WriteHeader(h *wire.Response) error {
	c.n++
	if c.failAt != 0 && c.n == c.failAt {
		return errors.New("write failed")
	}
	c.writes = append(c.writes, "header")
	return nil
}

func (c *recordingConn) WriteBody(b []byte) error {
	c.n++
	if c.failAt != 0 && c.n == c.failAt {
		return errors.New("write failed")
	}
	c.writes = append(c.writes, string(b))
	return nil
}

func TestOrderingPreservesEnqueueOrder(t *testing.T) {
	conn := &recordingConn{}
	q := New(immediateSequencer{}, conn)

	q.AddHeader(&wire.Response{})
	q.AddBody([]byte("a"))
	q.AddBody([]byte("b"))

	want := []string{"header", "a", "b"}
	if len(conn.writes) != len(want) {
		t.Fatalf("writes = %v, want %v", conn.writes, want)
	}
	for i := range want {
		if conn.writes[i] != want[i] {
			t.Errorf("writes[%d] = %q, want %q", i, conn.writes[i], want[i])
		}
	}
}

func TestClearMessageFiresWhenDrained(t *testing.T) {
	conn := &recordingConn{}
	q := New(immediateSequencer{}, conn)

	q.AddBody([]byte("x"))

	fired := false
	q.ClearMessage(func() { fired = true })

	if !fired {
		t.Error("ClearMessage callback should fire once the queue is drained")
	}
}

func TestWriteFailureKillsQueueAndReleasesWaiters(t *testing.T) {
	conn := &recordingConn{failAt: 1}
	q := New(immediateSequencer{}, conn)

	q.AddBody([]byte("x"))

	if !q.Dead() {
		t.Fatal("queue should be dead after a write failure")
	}

	fired := false
	q.ClearMessage(func() { fired = true })
	if !fired {
		t.Error("ClearMessage should still fire on a dead queue")
	}
}

func TestEnqueueAfterDeathIsDropped(t *testing.T) {
	conn := &recordingConn{}
	q := New(immediateSequencer{}, conn)
	q.Kill()

	q.AddBody([]byte("x"))

	if len(conn.writes) != 0 {
		t.Errorf("expected no writes after death, got %v", conn.writes)
	}
}
