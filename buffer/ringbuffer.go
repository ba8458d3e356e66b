// Package buffer keeps the most recent scored spot events in a lock-free
// ring so consumers can replay what they missed without blocking the
// pipeline worker. Each slot is an atomic pointer, so readers see either a
// complete event or the previous one, never a partial write.
package buffer

import (
	"sync/atomic"

	"skccspotter/eligibility"
)

// EventRing is a fixed-capacity circular buffer of scored spot events.
// Writers publish completed *eligibility.SpotEvent values atomically and
// readers walk backwards from the newest sequence number for a snapshot.
type EventRing struct {
	slots    []atomic.Pointer[eligibility.SpotEvent]
	capacity int
	total    atomic.Uint64 // events added, may exceed capacity
}

// NewEventRing allocates a ring holding up to capacity events.
func NewEventRing(capacity int) *EventRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventRing{
		slots:    make([]atomic.Pointer[eligibility.SpotEvent], capacity),
		capacity: capacity,
	}
}

// Add appends an event, assigning a monotonic sequence number so readers
// can skip slots overwritten after wraparound.
func (r *EventRing) Add(ev *eligibility.SpotEvent) {
	seq := r.total.Add(1)
	ev.Seq = seq
	r.slots[(seq-1)%uint64(r.capacity)].Store(ev)
}

// Recent returns up to n events, newest first.
func (r *EventRing) Recent(n int) []*eligibility.SpotEvent {
	if n <= 0 {
		return []*eligibility.SpotEvent{}
	}
	total := r.total.Load()
	available := int(total)
	if available > r.capacity {
		available = r.capacity
	}
	if n > available {
		n = available
	}

	result := make([]*eligibility.SpotEvent, 0, n)
	if total == 0 {
		return result
	}
	minIndex := total - uint64(available)
	for idx := total; idx > minIndex && len(result) < n; {
		idx--
		// The sequence check rejects slots a concurrent writer lapped.
		if ev := r.slots[idx%uint64(r.capacity)].Load(); ev != nil && ev.Seq == idx+1 {
			result = append(result, ev)
		}
	}
	return result
}

// Count returns the total number of events ever added.
func (r *EventRing) Count() int {
	return int(r.total.Load())
}
