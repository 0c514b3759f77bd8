package mainloop

import (
	"time"
)

type (
	// API is the capability surface consumers register their event sources
	// against, without depending on the loop implementation. It is obtained
	// via [Loop.API], and passed to every callback.
	//
	// Methods must only be called from the goroutine driving the loop.
	API interface {
		// NewIO watches fd for the given events. The callback fires once per
		// iteration while any of the requested conditions (or a hangup or
		// error) is reported. Panics if fd is negative or cb is nil.
		NewIO(fd int, events IOEvents, cb IOCallback) IOEvent

		// NewTime creates a one-shot timer, expiring at when. A zero when
		// creates the timer disabled. Panics if cb is nil.
		NewTime(when time.Time, cb TimeCallback) TimeEvent

		// NewDefer creates an enabled deferred event, which fires once per
		// iteration until disabled. Panics if cb is nil.
		NewDefer(cb DeferCallback) DeferEvent

		// Once schedules cb to run exactly once, on the next dispatch.
		// Pending callbacks run in the order they were scheduled, and are
		// discarded if the loop is torn down first.
		Once(cb func(API))

		// Quit requests termination, see [Loop.Quit].
		Quit(retval int)

		// Now returns the current time, per the loop clock, see [WithClock].
		Now() time.Time
	}

	// IOEvent is a registered file descriptor watch.
	IOEvent interface {
		// FD returns the watched file descriptor.
		FD() int
		// Events returns the currently requested events.
		Events() IOEvents
		// Enable replaces the requested events. EventNull still reports
		// hangup and error conditions.
		Enable(events IOEvents)
		// SetDestroy sets a callback run once the event has been freed.
		SetDestroy(fn func(IOEvent))
		// Free unregisters the event. It must be called exactly once.
		Free()
	}

	// TimeEvent is a registered timer.
	TimeEvent interface {
		// When returns the expiry time, or the zero time if disabled.
		When() time.Time
		// Restart re-arms the timer to expire at when, or disables it, if
		// when is the zero time.
		Restart(when time.Time)
		// SetDestroy sets a callback run once the event has been freed.
		SetDestroy(fn func(TimeEvent))
		// Free unregisters the event. It must be called exactly once.
		Free()
	}

	// DeferEvent is a registered deferred event.
	DeferEvent interface {
		// Enabled reports whether the event will fire on the next iteration.
		Enabled() bool
		// Enable enables or disables the event.
		Enable(enabled bool)
		// SetDestroy sets a callback run once the event has been freed.
		SetDestroy(fn func(DeferEvent))
		// Free unregisters the event. It must be called exactly once.
		Free()
	}

	// IOCallback is called with the ready events of an IOEvent.
	IOCallback func(api API, e IOEvent, fd int, events IOEvents)

	// TimeCallback is called when a TimeEvent expires, with the time it was
	// scheduled for. The timer is disabled when the callback is called.
	TimeCallback func(api API, e TimeEvent, when time.Time)

	// DeferCallback is called for each iteration while a DeferEvent is
	// enabled.
	DeferCallback func(api API, e DeferEvent)
)

// NewTimeAfter creates a timer expiring after d, relative to the loop clock.
func NewTimeAfter(api API, d time.Duration, cb TimeCallback) TimeEvent {
	return api.NewTime(api.Now().Add(d), cb)
}

// api implements API, on behalf of a handle.
type api struct {
	h *handle
}

var _ API = (*api)(nil)

func (a *api) core() *loopCore {
	if c := a.h.core; c != nil {
		return c
	}
	panic("mainloop: use of loop api after teardown")
}

func (a *api) NewIO(fd int, events IOEvents, cb IOCallback) IOEvent {
	if fd < 0 {
		panic("mainloop: negative file descriptor")
	}
	if cb == nil {
		panic("mainloop: nil io callback")
	}
	c := a.core()
	e := &ioEvent{
		h:      a.h.acquire(),
		fd:     fd,
		events: events,
		cb:     cb,
		idx:    -1,
	}
	c.ios = append(c.ios, e)
	c.rebuild = true
	return e
}

func (a *api) NewTime(when time.Time, cb TimeCallback) TimeEvent {
	if cb == nil {
		panic("mainloop: nil time callback")
	}
	c := a.core()
	c.seq++
	e := &timeEvent{
		h:   a.h.acquire(),
		cb:  cb,
		seq: c.seq,
		idx: -1,
	}
	c.schedule(e, when)
	return e
}

func (a *api) NewDefer(cb DeferCallback) DeferEvent {
	if cb == nil {
		panic("mainloop: nil defer callback")
	}
	c := a.core()
	e := &deferEvent{
		h:       a.h.acquire(),
		cb:      cb,
		enabled: true,
	}
	c.defers = append(c.defers, e)
	c.nEnabledDefer++
	return e
}

func (a *api) Once(cb func(API)) {
	if cb == nil {
		panic("mainloop: nil once callback")
	}
	a.core().onces.Add(cb)
}

func (a *api) Quit(retval int) {
	a.core().requestQuit(retval)
}

func (a *api) Now() time.Time {
	return a.core().now()
}
