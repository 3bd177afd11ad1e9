// Package session implements the Session Map: TTL-keyed Context storage
// backed by a map plus an expiry min-heap, with optional cooperative
// background cleanup. The background cleaner posts itself to the worker
// pool and re-arms only while the server is running.
package session

import (
	"container/heap"
	"log/slog"
	"sync"
	"time"

	"github.com/haomingbai/bsrvcore/internal/rcontext"
)

const (
	minSessionTimeout = time.Second
	shortCleanCap      = 8
)

// Scheduler is the narrow slice of the server facade the Session Map needs
// for background cleanup: whether it's still worth running and where to
// post cleanup work. *server.Server satisfies this structurally; session
// never imports package server.
type Scheduler interface {
	IsRunning() bool
	Post(fn func())
}

// Map is a Session Map: id -> Context with a sliding TTL, reaped lazily on
// access and optionally by a background timer.
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
	pq      expiryHeap

	defaultTimeout time.Duration
	cleanerInterval time.Duration
	cleanerOn       bool
	cleanerTimer    *time.Timer

	scheduler Scheduler
	logger    *slog.Logger
}

type entry struct {
	ctx    *rcontext.Context
	expiry time.Time
}

// NewMap returns a Map with a 2 hour default session timeout and a 30
// minute cleaner interval; the cleaner starts disabled.
func NewMap(scheduler Scheduler, logger *slog.Logger) *Map {
	if logger == nil {
		logger = slog.Default()
	}
	return &Map{
		entries:         make(map[string]*entry),
		defaultTimeout:  2 * time.Hour,
		cleanerInterval: 30 * time.Minute,
		scheduler:       scheduler,
		logger:          logger,
	}
}

// Get returns the Context for id, extending its expiry, or creates a fresh
// Context with the default timeout if id is absent or has expired. It
// always returns a non-nil Context; a missing or expired id never errors.
func (m *Map) Get(id string) *rcontext.Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	if e, ok := m.entries[id]; ok && e.expiry.After(now) {
		newExpiry := maxTime(e.expiry, now.Add(m.defaultTimeout))
		if !newExpiry.Equal(e.expiry) {
			heap.Push(&m.pq, keyHeapEntry{id: id, expiry: newExpiry})
			e.expiry = newExpiry
		}
		m.shortClean(now)
		return e.ctx
	}

	ctx := rcontext.New()
	newExpiry := now.Add(maxDuration(minSessionTimeout, m.defaultTimeout))
	m.entries[id] = &entry{ctx: ctx, expiry: newExpiry}
	heap.Push(&m.pq, keyHeapEntry{id: id, expiry: newExpiry})

	m.shortClean(now)
	return ctx
}

// SetTimeout extends id's expiry to now+max(t, 1s), if that is later than
// its current expiry; creates the session otherwise. The boolean return
// is for ergonomic chaining; this call always succeeds.
func (m *Map) SetTimeout(id string, t time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	candidate := now.Add(maxDuration(minSessionTimeout, t))

	if e, ok := m.entries[id]; ok {
		if candidate.After(e.expiry) {
			heap.Push(&m.pq, keyHeapEntry{id: id, expiry: candidate})
			e.expiry = candidate
		}
	} else {
		m.entries[id] = &entry{ctx: rcontext.New(), expiry: candidate}
		heap.Push(&m.pq, keyHeapEntry{id: id, expiry: candidate})
	}

	m.shortClean(now)
	return true
}

// Remove deletes id's Entry, if present. Stale heap entries referring to it
// are filtered out lazily at pop time. Returns false if id was absent.
func (m *Map) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; !ok {
		return false
	}
	delete(m.entries, id)
	return true
}

// shortClean pops up to shortCleanCap expired entries when the heap has
// grown to more than twice the live map size.
func (m *Map) shortClean(now time.Time) {
	if m.pq.Len() <= len(m.entries)*2 {
		return
	}
	cleaned := 0
	for cleaned < shortCleanCap && m.pq.Len() > 0 && !m.pq[0].expiry.After(now) {
		m.popStaleLocked()
		cleaned++
	}
	m.pq.shrinkIfSparse()
}

// thoroughClean pops every expired entry, regardless of count.
func (m *Map) thoroughClean(now time.Time) {
	for m.pq.Len() > 0 && !m.pq[0].expiry.After(now) {
		m.popStaleLocked()
	}
	m.pq.shrinkIfSparse()
}

// popStaleLocked pops the heap's minimum and deletes the corresponding map
// entry only if its expiry still matches the popped value (the staleness
// check: a heap entry is only acted on if its expiry still matches the
// live entry's current expiry).
// Must be called with mu held.
func (m *Map) popStaleLocked() {
	top := heap.Pop(&m.pq).(keyHeapEntry)
	if e, ok := m.entries[top.id]; ok && e.expiry.Equal(top.expiry) {
		delete(m.entries, top.id)
	}
}

// SetDefaultTimeout sets the sliding TTL applied on Get/SetTimeout.
func (m *Map) SetDefaultTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultTimeout = d
}

// SetCleanerInterval sets the background cleaner's firing interval, clamped
// to a 1 second minimum when it next arms.
func (m *Map) SetCleanerInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanerInterval = d
}

// SetBackgroundCleaner enables or disables the background cleaner. Enabling
// arms the recurring timer immediately; disabling cancels any pending
// timer.
func (m *Map) SetBackgroundCleaner(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if enabled == m.cleanerOn {
		return
	}
	m.cleanerOn = enabled

	if enabled {
		m.armCleanerLocked()
	} else if m.cleanerTimer != nil {
		m.cleanerTimer.Stop()
		m.cleanerTimer = nil
	}
}

// armCleanerLocked schedules the next cleaner firing. Must be called with
// mu held.
func (m *Map) armCleanerLocked() {
	if !m.cleanerOn {
		return
	}
	interval := maxDuration(minSessionTimeout, m.cleanerInterval)
	m.cleanerTimer = time.AfterFunc(interval, m.onCleanerFire)
}

// onCleanerFire is the timer callback. It posts the actual cleanup work to
// the scheduler's thread pool (so the timer goroutine holds no lock while
// waiting to be scheduled), and only re-arms if the server is still
// running.
func (m *Map) onCleanerFire() {
	if m.scheduler == nil || !m.scheduler.IsRunning() {
		return
	}
	m.scheduler.Post(func() {
		m.mu.Lock()
		now := time.Now()
		live := len(m.entries)
		if m.pq.Len() > live*8 {
			m.thoroughClean(now)
		} else {
			m.shortClean(now)
		}
		stillOn := m.cleanerOn
		running := m.scheduler != nil && m.scheduler.IsRunning()
		if stillOn && running {
			m.armCleanerLocked()
		}
		m.mu.Unlock()
	})
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
