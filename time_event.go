package mainloop

import (
	"container/heap"
	"time"
)

// timeEvent implements TimeEvent.
type timeEvent struct {
	h       *handle
	cb      TimeCallback
	destroy func(TimeEvent)
	when    time.Time
	seq     uint64 // registration order, breaks expiry ties
	gen     uint64 // incremented by each schedule
	idx     int    // index in loopCore.timers, -1 if disabled
	freed   bool
}

var _ TimeEvent = (*timeEvent)(nil)

func (e *timeEvent) check() {
	if e.freed {
		panic("mainloop: use of freed time event")
	}
}

func (e *timeEvent) When() time.Time {
	if e.idx < 0 {
		return time.Time{}
	}
	return e.when
}

func (e *timeEvent) Restart(when time.Time) {
	e.check()
	e.h.core.schedule(e, when)
}

func (e *timeEvent) SetDestroy(fn func(TimeEvent)) {
	e.check()
	e.destroy = fn
}

func (e *timeEvent) Free() {
	e.check()
	c := e.h.core
	c.unschedule(e)
	e.freed = true
	c.bury(e)
}

func (e *timeEvent) finalize(c *loopCore) {
	e.cb = nil
	if fn := e.destroy; fn != nil {
		e.destroy = nil
		c.invoke(sourceTime, func() { fn(e) })
	}
}

// timerHeap is a min-heap of enabled timers, ordered by expiry then
// registration.
type timerHeap []*timeEvent

// Implement heap.Interface for timerHeap
func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx = i
	h[j].idx = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timeEvent)
	e.idx = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.idx = -1
	*h = old[:n-1]
	return e
}

// schedule (re)arms e, or disables it if when is zero.
func (c *loopCore) schedule(e *timeEvent, when time.Time) {
	e.gen++
	e.when = when
	switch {
	case when.IsZero():
		c.unschedule(e)
	case e.idx >= 0:
		heap.Fix(&c.timers, e.idx)
	default:
		heap.Push(&c.timers, e)
	}
}

func (c *loopCore) unschedule(e *timeEvent) {
	if e.idx >= 0 {
		heap.Remove(&c.timers, e.idx)
	}
}

// nextTimer returns the earliest enabled timer, or nil.
func (c *loopCore) nextTimer() *timeEvent {
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[0]
}
