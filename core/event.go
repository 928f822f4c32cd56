package core

import "sync/atomic"

// EdgeEvent records one trigger-line transition as seen by the
// interrupt handler. Low is true when the line went LOW (pulse start;
// the line is active-low).
type EdgeEvent struct {
	Low bool
	At  uint32 // milliseconds, Clock domain
}

const edgeRingSize = 16 // power of two

// EdgeRing is a single-producer/single-consumer ring buffer carrying
// trigger edges from the interrupt handler to the main loop. The
// handler only pushes; the loop only pops. Indices are accessed
// atomically so neither side ever blocks or tears.
type EdgeRing struct {
	buf  [edgeRingSize]EdgeEvent
	head uint32 // next pop, owned by consumer
	tail uint32 // next push, owned by producer
}

// Push appends an event. Called from interrupt context; must not block.
// Returns false if the ring is full and the event was dropped.
func (r *EdgeRing) Push(e EdgeEvent) bool {
	tail := atomic.LoadUint32(&r.tail)
	head := atomic.LoadUint32(&r.head)
	if tail-head >= edgeRingSize {
		return false
	}
	r.buf[tail%edgeRingSize] = e
	atomic.StoreUint32(&r.tail, tail+1)
	return true
}

// Pop removes the oldest event. Called from the main loop only.
func (r *EdgeRing) Pop() (EdgeEvent, bool) {
	head := atomic.LoadUint32(&r.head)
	tail := atomic.LoadUint32(&r.tail)
	if head == tail {
		return EdgeEvent{}, false
	}
	e := r.buf[head%edgeRingSize]
	atomic.StoreUint32(&r.head, head+1)
	return e, true
}

// Len reports the number of buffered events (approximate under concurrency).
func (r *EdgeRing) Len() int {
	return int(atomic.LoadUint32(&r.tail) - atomic.LoadUint32(&r.head))
}
