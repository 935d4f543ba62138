// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package registry

import (
	"container/heap"
	"time"
)

// wakeupGranularity is the rounding unit for the next-wakeup computation:
// coarse enough to batch near-simultaneous expiries into one tick and stay
// tolerant of low-resolution timers.
const wakeupGranularity = 32 * time.Second

// addrHeap is a container/heap.Interface ordered so the root is the
// soonest-to-expire Address.
type addrHeap []*Address

func (h addrHeap) Len() int           { return len(h) }
func (h addrHeap) Less(i, j int) bool { return h[i].expiry.Before(h[j].expiry) }
func (h addrHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *addrHeap) Push(x any)        { *h = append(*h, x.(*Address)) }
func (h *addrHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// ExpiryQueue is a min-heap of Addresses keyed by expiry deadline. It holds
// non-owning references and must be rebuilt whenever the Registry's sets or
// domains change.
type ExpiryQueue struct {
	heap addrHeap
}

// NewExpiryQueue returns an empty ExpiryQueue.
func NewExpiryQueue() *ExpiryQueue {
	return &ExpiryQueue{}
}

// Rebuild discards the current heap and repopulates it by walking every
// IpSet in reg and pushing each owned Address.
func (q *ExpiryQueue) Rebuild(reg *Registry) {
	q.heap = q.heap[:0]
	for _, s := range reg.All() {
		for _, addr := range s.Addresses() {
			q.heap = append(q.heap, addr)
		}
	}
	heap.Init(&q.heap)
}

// Len returns the number of Addresses currently scheduled.
func (q *ExpiryQueue) Len() int {
	return len(q.heap)
}

// Tick runs the renewal-and-reload pass: while the root is expired, pop it,
// renew it, and push it back; then reload every dirty set exactly once.
func (q *ExpiryQueue) Tick(now time.Time, reg *Registry) {
	for q.heap.Len() > 0 && q.heap[0].IsExpired(now) {
		addr := heap.Pop(&q.heap).(*Address)
		addr.renew()
		heap.Push(&q.heap, addr)
	}
	reg.ReloadDirtySets()
}

// NextWakeup returns the rounded duration until the queue's root expires:
// negative diffs clamp to zero, then round up to the next 32-second
// multiple. ok is false if the queue is empty (no timer should be armed).
func (q *ExpiryQueue) NextWakeup(now time.Time) (d time.Duration, ok bool) {
	if q.heap.Len() == 0 {
		return 0, false
	}

	diff := q.heap[0].TimeDiff(now)
	if diff < 0 {
		diff = 0
	}

	secs := int64(diff / time.Second)
	rounded := ((secs >> 5) + 1) << 5
	return time.Duration(rounded) * time.Second, true
}
