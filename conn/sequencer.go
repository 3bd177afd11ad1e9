package conn

// sequencer is a single-consumer serial executor: one goroutine drains ops
// in send order, so no two posted functions for the same connection ever
// run concurrently. This stands in for the boost::asio::strand of the C++
// source.
type sequencer struct {
	ops chan func()
}

// sequencerBacklog bounds how many pending operations a connection may
// accumulate. It is generous because the common case is a step reposting
// its own continuation from inside the consumer goroutine itself, which
// must never block waiting for a receive that only the blocked goroutine
// could perform.
const sequencerBacklog = 256

func newSequencer() *sequencer {
	s := &sequencer{ops: make(chan func(), sequencerBacklog)}
	go s.run()
	return s
}

func (s *sequencer) run() {
	for fn := range s.ops {
		fn()
	}
}

// Post enqueues fn. Safe to call from any goroutine, including the
// sequencer's own consumer goroutine mid-step.
func (s *sequencer) Post(fn func()) {
	s.ops <- fn
}
