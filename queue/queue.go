// Package queue implements the Response Queue: an ordered stream of
// header/body chunks written out to a connection on its own sequencer,
// used by handlers that opt into manual connection management to stream a
// long-lived response.
package queue

import (
	"sync"

	"github.com/haomingbai/bsrvcore/wire"
)

// Conn is the slice of the connection driver the Response Queue writes
// through.
type Conn interface {
	WriteHeader(h *wire.Response) error
	WriteBody(b []byte) error
}

// Sequencer serializes work belonging to one connection. The connection
// driver is the usual implementation; the enqueue step of AddHeader/AddBody
// and drainOne always run as posted work on it. The Queue's mutex still
// guards its state, since ClearMessage, Dead and Kill may be called from
// other goroutines.
type Sequencer interface {
	Post(fn func())
}

type msgKind int

const (
	kindHeader msgKind = iota
	kindBody
)

type message struct {
	kind   msgKind
	header *wire.Response
	body   []byte
}

// Queue is the Response Queue.
//
// A reference-counted design would need a weak back-reference to its
// connection to avoid a retain cycle (Connection -> Queue -> Connection).
// Go's tracing garbage collector reclaims reference cycles without help,
// so Queue holds a plain strong reference instead — emulating a weak
// pointer would add complexity for no behavioral payoff.
type Queue struct {
	mu sync.Mutex

	seq  Sequencer
	conn Conn

	pending []message
	writing bool
	dead    bool
	waiters []func()
}

// New returns a Queue that drains through seq and writes to conn.
func New(seq Sequencer, conn Conn) *Queue {
	return &Queue{seq: seq, conn: conn}
}

// AddHeader enqueues a header snapshot for writing.
func (q *Queue) AddHeader(h *wire.Response) {
	q.enqueue(message{kind: kindHeader, header: h})
}

// AddBody enqueues a body chunk for writing.
func (q *Queue) AddBody(b []byte) {
	q.enqueue(message{kind: kindBody, body: b})
}

// enqueue posts the append-and-maybe-start operation to the sequencer.
// Concurrent enqueues from different goroutines land in sequencer arrival
// order, giving the total order the header-before-body invariant depends
// on.
func (q *Queue) enqueue(m message) {
	q.seq.Post(func() {
		q.mu.Lock()
		if q.dead {
			q.mu.Unlock()
			return
		}
		q.pending = append(q.pending, m)
		startNow := !q.writing
		if startNow {
			q.writing = true
		}
		q.mu.Unlock()

		if startNow {
			q.drainOne()
		}
	})
}

// drainOne writes the head of the queue. On completion it dequeues that
// element and, if more remain, posts itself again for the next one. Always
// runs on the sequencer.
func (q *Queue) drainOne() {
	q.mu.Lock()
	if q.dead || len(q.pending) == 0 {
		q.writing = false
		q.mu.Unlock()
		q.notifyWaiters()
		return
	}
	head := q.pending[0]
	q.mu.Unlock()

	var err error
	switch head.kind {
	case kindHeader:
		err = q.conn.WriteHeader(head.header)
	case kindBody:
		err = q.conn.WriteBody(head.body)
	}

	q.mu.Lock()
	if err != nil {
		q.dead = true
		q.pending = nil
		q.writing = false
		q.mu.Unlock()
		q.notifyWaiters()
		return
	}

	q.pending = q.pending[1:]
	more := len(q.pending) > 0
	if !more {
		q.writing = false
	}
	q.mu.Unlock()

	if more {
		q.seq.Post(q.drainOne)
	} else {
		q.notifyWaiters()
	}
}

// ClearMessage arranges for done to run, on the sequencer, once the queue
// is empty or dead — the asynchronous form of "block the state machine
// from advancing until drained". After done runs, no queued bytes remain
// unsent (or the queue is dead and never will send them).
func (q *Queue) ClearMessage(done func()) {
	q.mu.Lock()
	if q.dead || (!q.writing && len(q.pending) == 0) {
		q.mu.Unlock()
		q.seq.Post(done)
		return
	}
	q.waiters = append(q.waiters, done)
	q.mu.Unlock()
}

func (q *Queue) notifyWaiters() {
	q.mu.Lock()
	waiters := q.waiters
	q.waiters = nil
	q.mu.Unlock()

	for _, w := range waiters {
		q.seq.Post(w)
	}
}

// Dead reports whether a write failure has killed the queue.
func (q *Queue) Dead() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dead
}

// Kill marks the queue dead, drops any pending messages, and releases
// ClearMessage waiters without attempting a further write. Used when the
// connection is closed out from under the queue.
func (q *Queue) Kill() {
	q.mu.Lock()
	q.dead = true
	q.pending = nil
	q.writing = false
	q.mu.Unlock()
	q.notifyWaiters()
}
