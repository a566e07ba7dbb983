// Package memory provides memory managers for jxl decoders and encoders.
//
// Every manager here satisfies jxl.MemoryManager. Managers must be safe for
// concurrent use since libjxl allocates from runner threads.
package memory

import (
	"sync"
	"unsafe"
)

// Manager is the allocation contract libjxl calls through
type Manager interface {
	Alloc(size uintptr) unsafe.Pointer
	Free(ptr unsafe.Pointer)
}

// Stats is a snapshot of a Tracker
type Stats struct {
	Allocs   int64
	Frees    int64
	Failures int64
	// Foreign counts frees of addresses the tracker never handed out, double frees included
	Foreign    int64
	BytesInUse uint64
	PeakBytes  uint64
}

// Tracker records every live allocation of the manager it wraps. Each address
// is forwarded to the wrapped Free exactly once, unknown addresses are dropped.
type Tracker struct {
	next    Manager
	metrics *Metrics

	mu    sync.Mutex
	live  map[uintptr]uintptr
	stats Stats
}

// NewTracker wraps next, a nil next allocates with Malloc
func NewTracker(next Manager) *Tracker {
	if next == nil {
		next = Malloc{}
	}
	return &Tracker{next: next, live: map[uintptr]uintptr{}}
}

// WithMetrics reports allocations to m as well
func (t *Tracker) WithMetrics(m *Metrics) *Tracker {
	t.metrics = m
	return t
}

func (t *Tracker) Alloc(size uintptr) unsafe.Pointer {
	ptr := t.next.Alloc(size)
	t.mu.Lock()
	defer t.mu.Unlock()
	if ptr == nil {
		t.stats.Failures++
		t.metrics.failed()
		return nil
	}
	t.live[uintptr(ptr)] = size
	t.stats.Allocs++
	t.stats.BytesInUse += uint64(size)
	t.stats.PeakBytes = max(t.stats.PeakBytes, t.stats.BytesInUse)
	t.metrics.allocated(size)
	return ptr
}

func (t *Tracker) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	t.mu.Lock()
	size, ok := t.live[uintptr(ptr)]
	if !ok {
		t.stats.Foreign++
		t.mu.Unlock()
		return
	}
	delete(t.live, uintptr(ptr))
	t.stats.Frees++
	t.stats.BytesInUse -= uint64(size)
	t.metrics.freed(size)
	t.mu.Unlock()
	t.next.Free(ptr)
}

// Outstanding is the number of allocations not yet freed
func (t *Tracker) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Limit fails allocations that would take the bytes in use past a budget.
// Failed allocations return nil, which libjxl reports as out of memory.
type Limit struct {
	*Tracker
	budget uint64
	mu     sync.Mutex
}

// NewLimit caps next at budget bytes, a nil next allocates with Malloc
func NewLimit(next Manager, budget uint64) *Limit {
	return &Limit{Tracker: NewTracker(next), budget: budget}
}

func (l *Limit) Alloc(size uintptr) unsafe.Pointer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Stats().BytesInUse+uint64(size) > l.budget {
		l.Tracker.mu.Lock()
		l.stats.Failures++
		l.metrics.failed()
		l.Tracker.mu.Unlock()
		return nil
	}
	return l.Tracker.Alloc(size)
}

func (l *Limit) Budget() uint64 {
	return l.budget
}
