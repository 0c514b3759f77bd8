package mainloop

import (
	"container/heap"
	"errors"
	"os"
	"time"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"
)

// loopCore is the loop state proper, reachable only through a handle.
type loopCore struct {
	h        *handle
	api      *api
	log      *loopLogger
	metrics  *loopMetrics
	now      func() time.Time
	pollFunc PollFunc
	waker    *Waker
	state    loopState

	ios    []*ioEvent    // registration order
	defers []*deferEvent // registration order
	timers timerHeap
	onces  *queue.Queue // of func(API)
	due    []dueTimer

	// graveyard holds freed events, pending finalization
	graveyard *queue.Queue // of finalizer

	nEnabledDefer int
	anyDead       bool // ios or defers contain freed events
	reaping       bool
	dispatching   bool

	// pollfds[0] is always the waker, pollIO is parallel to pollfds
	pollfds []unix.PollFd
	pollIO  []*ioEvent
	rebuild bool

	timeout time.Duration
	pollRet int
	quit    bool
	retval  int
	seq     uint64
}

// finalizer is implemented by freed events, to run their destroy callback.
type finalizer interface {
	finalize(c *loopCore)
}

type dueTimer struct {
	e   *timeEvent
	gen uint64
}

// deferPending reports whether deferred work is due, in which case the poll
// must not block.
func (c *loopCore) deferPending() bool {
	return c.nEnabledDefer > 0 || c.onces.Length() > 0
}

func (c *loopCore) requestQuit(retval int) {
	c.quit = true
	c.retval = retval
	if err := c.waker.Wake(); err != nil && !errors.Is(err, ErrLoopClosed) {
		c.log.err(categoryLifecycle).Err(err).Log("failed to wake loop for quit")
	}
}

// observeQuit consumes the pending quit request.
func (c *loopCore) observeQuit() error {
	c.quit = false
	c.state.Store(StateQuit)
	c.log.debug(categoryLifecycle).Int("retval", c.retval).Log("quit observed")
	return ErrQuit
}

// prepareFrom are the states an iteration may start from.
var prepareFrom = [...]LoopState{StatePassive, StateQuit}

func (c *loopCore) prepare(timeout time.Duration) error {
	if !c.state.TransitionAny(prepareFrom[:], StatePrepared) {
		return ErrInvalidState
	}
	if c.quit {
		return c.observeQuit()
	}

	c.reap()

	if c.deferPending() {
		c.timeout = 0
	} else {
		if c.rebuild {
			c.rebuildPollfds()
		}
		c.timeout = c.computeTimeout(timeout)
	}
	return nil
}

func (c *loopCore) computeTimeout(timeout time.Duration) time.Duration {
	t := c.nextTimer()
	if t == nil {
		return timeout
	}
	d := t.when.Sub(c.now())
	if d < 0 {
		d = 0
	}
	if timeout < 0 || d < timeout {
		return d
	}
	return timeout
}

func (c *loopCore) rebuildPollfds() {
	clear(c.pollIO)
	c.pollfds = append(c.pollfds[:0], unix.PollFd{
		Fd:     int32(c.waker.fd()),
		Events: unix.POLLIN,
	})
	c.pollIO = append(c.pollIO[:0], nil)
	for _, e := range c.ios {
		if e.freed {
			e.idx = -1
			continue
		}
		e.idx = len(c.pollfds)
		c.pollfds = append(c.pollfds, unix.PollFd{
			Fd:     int32(e.fd),
			Events: eventsToPoll(e.events),
		})
		c.pollIO = append(c.pollIO, e)
	}
	c.rebuild = false
}

func (c *loopCore) poll() (int, error) {
	if !c.state.TryTransition(StatePrepared, StatePolling) {
		return 0, ErrInvalidState
	}
	if c.quit {
		return 0, c.observeQuit()
	}

	c.pollRet = 0

	if c.deferPending() {
		c.state.Store(StatePolled)
		return 0, nil
	}

	if c.rebuild {
		c.rebuildPollfds()
	}

	timeout := timeoutMillis(c.timeout)
	// a wake that raced the last drain left the flag set without a byte
	if c.waker.pending.Load() != 0 {
		timeout = 0
	}

	start := time.Now()
	n, err := c.pollFunc(c.pollfds, timeout)
	c.metrics.recordPoll(time.Since(start))

	if err != nil {
		if !errors.Is(err, unix.EINTR) {
			c.state.Store(StatePassive)
			var sysErr *os.SyscallError
			if !errors.As(err, &sysErr) {
				err = os.NewSyscallError("poll", err)
			}
			c.log.err(categoryPoll).Err(err).Log("poll failed")
			return 0, err
		}
		n = 0
	}

	// custom poll funcs may not report the waker
	if c.pollfds[0].Revents != 0 || c.waker.pending.Load() != 0 {
		c.pollfds[0].Revents = 0
		if c.waker.drain() {
			c.metrics.recordWakeup()
		}
	}

	c.pollRet = n
	c.state.Store(StatePolled)
	return n, nil
}

func (c *loopCore) dispatch() (int, error) {
	if c.state.Load() != StatePolled {
		return 0, ErrInvalidState
	}
	if c.quit {
		return 0, c.observeQuit()
	}

	var n int
	c.dispatching = true
	if c.deferPending() {
		n = c.dispatchDefer()
	} else {
		n = c.dispatchTimers()
		if !c.quit && c.pollRet > 0 {
			n += c.dispatchIO()
		}
	}
	c.dispatching = false

	c.reap()

	if c.quit {
		return 0, c.observeQuit()
	}

	c.state.Store(StatePassive)
	return n, nil
}

func (c *loopCore) dispatchDefer() (n int) {
	// events (and onces) added during dispatch wait for the next iteration
	for i, m := 0, len(c.defers); i < m && !c.quit; i++ {
		e := c.defers[i]
		if e.freed || !e.enabled {
			continue
		}
		n++
		c.metrics.recordDispatch(sourceDefer)
		c.invoke(sourceDefer, func() { e.cb(c.api, e) })
	}
	for m := c.onces.Length(); m > 0 && !c.quit; m-- {
		fn := c.onces.Remove().(func(API))
		n++
		c.metrics.recordDispatch(sourceOnce)
		c.invoke(sourceOnce, func() { fn(c.api) })
	}
	return n
}

func (c *loopCore) dispatchTimers() (n int) {
	if len(c.timers) == 0 {
		return 0
	}

	now := c.now()
	due := c.due[:0]
	for len(c.timers) != 0 && !c.timers[0].when.After(now) {
		e := heap.Pop(&c.timers).(*timeEvent)
		due = append(due, dueTimer{e: e, gen: e.gen})
	}

	for i, d := range due {
		if c.quit {
			c.rearm(due[i:])
			break
		}
		e := d.e
		// freed or restarted by an earlier callback
		if e.freed || e.gen != d.gen {
			continue
		}
		n++
		c.metrics.recordDispatch(sourceTime)
		when := e.when
		c.invoke(sourceTime, func() { e.cb(c.api, e, when) })
	}

	clear(due)
	c.due = due[:0]
	return n
}

// rearm returns due timers skipped by a quit to the heap, unless they were
// freed or rescheduled in the meantime.
func (c *loopCore) rearm(skipped []dueTimer) {
	for _, d := range skipped {
		if e := d.e; !e.freed && e.gen == d.gen && e.idx < 0 {
			heap.Push(&c.timers, e)
		}
	}
}

func (c *loopCore) dispatchIO() (n int) {
	k := c.pollRet
	for i := 1; i < len(c.pollfds) && k > 0 && !c.quit; i++ {
		pfd := &c.pollfds[i]
		if pfd.Revents == 0 {
			continue
		}
		k--
		revents := pfd.Revents
		pfd.Revents = 0
		e := c.pollIO[i]
		if e == nil || e.freed {
			continue
		}
		events := pollToEvents(revents) & (e.events | EventHangup | EventError)
		if events == EventNull {
			continue
		}
		n++
		c.metrics.recordDispatch(sourceIO)
		c.invoke(sourceIO, func() { e.cb(c.api, e, e.fd, events) })
	}
	return n
}

// invoke runs a callback, recovering and logging any panic.
func (c *loopCore) invoke(source string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.err(categoryDispatch).
				Str("source", source).
				Any("panic", r).
				Log("callback panicked")
		}
	}()
	fn()
}

// bury queues a freed event for finalization, which happens immediately,
// unless the loop is dispatching or already reaping.
func (c *loopCore) bury(e finalizer) {
	c.graveyard.Add(e)
	if !c.dispatching {
		c.reap()
	}
}

// reap removes freed events, runs their destroy callbacks, then releases
// their loop references. The last release may tear down the loop.
func (c *loopCore) reap() {
	if c.reaping {
		return
	}
	c.reaping = true

	var released int
	for c.anyDead || c.graveyard.Length() != 0 {
		if c.anyDead {
			c.anyDead = false
			c.ios = sweep(c.ios)
			c.defers = sweep(c.defers)
		}
		for c.graveyard.Length() != 0 {
			c.graveyard.Remove().(finalizer).finalize(c)
			released++
		}
	}

	c.reaping = false

	h := c.h
	for ; released > 0; released-- {
		h.release()
	}
}

func sweep[E interface{ isFreed() bool }](list []E) []E {
	kept := list[:0]
	for _, e := range list {
		if !e.isFreed() {
			kept = append(kept, e)
		}
	}
	clear(list[len(kept):])
	return kept
}

// free releases the resources of the core, once the last reference has
// been released.
func (c *loopCore) free() error {
	c.log.debug(categoryLifecycle).Log("loop torn down")
	for c.onces.Length() != 0 {
		c.onces.Remove()
	}
	clear(c.pollIO)
	c.pollIO = nil
	c.pollfds = nil
	c.timers = nil
	c.ios = nil
	c.defers = nil
	return c.waker.close()
}
