package mainloop

import (
	"errors"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
)

// Loop is the application's handle to a main loop. The zero value is not
// usable, use [New].
//
// With the exception of [Loop.Wakeup] and [Loop.Waker], methods must only be
// called from the goroutine driving the loop.
type Loop struct {
	h      *handle // nil after Close
	waker  *Waker
	id     string
	retval int // retained by Close
}

// New creates a loop. On failure, no resources are retained.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()

	metrics, err := newLoopMetrics(cfg.meterProvider, id, cfg.name)
	if err != nil {
		return nil, err
	}

	waker, err := newWaker()
	if err != nil {
		return nil, err
	}

	core := &loopCore{
		log: &loopLogger{
			logger:  cfg.logger,
			limiter: cfg.logLimiter,
			id:      id,
			name:    cfg.name,
		},
		metrics:   metrics,
		now:       cfg.clock,
		pollFunc:  cfg.pollFunc,
		waker:     waker,
		onces:     queue.New(),
		graveyard: queue.New(),
		rebuild:   true,
	}

	onTeardown := cfg.onTeardown
	h := newHandle(core, func(c *loopCore) {
		if err := c.free(); err != nil {
			c.log.err(categoryLifecycle).Err(err).Log("failed to release wakeup descriptors")
		}
		if onTeardown != nil {
			onTeardown()
		}
	})
	if h.api == nil {
		panic("mainloop: nil api after construction")
	}
	core.h = h
	core.api = h.api

	core.log.debug(categoryLifecycle).Log("loop created")

	return &Loop{h: h, waker: waker, id: id}, nil
}

// enter acquires a reference for the duration of an operation, which may
// release the last event reference.
func (l *Loop) enter() (*loopCore, error) {
	if l.h == nil {
		return nil, ErrLoopClosed
	}
	l.h.acquire()
	return l.h.core, nil
}

func (l *Loop) leave(c *loopCore) {
	c.h.release()
}

// ID returns the unique identifier of the loop, as attached to log messages
// and metrics.
func (l *Loop) ID() string { return l.id }

// Prepare computes the descriptor set and timeout for the next Poll. The
// timeout bounds how long Poll may block, any negative value (e.g.
// [Infinite]) meaning indefinitely. Returns [ErrQuit] if quit was requested,
// and [ErrInvalidState] unless the previous iteration completed.
func (l *Loop) Prepare(timeout time.Duration) error {
	c, err := l.enter()
	if err != nil {
		return err
	}
	defer l.leave(c)
	return c.prepare(timeout)
}

// Poll waits for readiness, or the prepared timeout, using the configured
// [PollFunc]. It does not block if deferred events are pending. Returns the
// number of ready descriptors, as reported by the PollFunc.
func (l *Loop) Poll() (int, error) {
	c, err := l.enter()
	if err != nil {
		return 0, err
	}
	defer l.leave(c)
	return c.poll()
}

// Dispatch calls the callbacks of every ready event source, returning the
// number dispatched. Expired timers fire in expiry order, then I/O events,
// in registration order. While deferred events are enabled, only those (and
// any pending [API.Once] callbacks) are dispatched.
func (l *Loop) Dispatch() (int, error) {
	c, err := l.enter()
	if err != nil {
		return 0, err
	}
	defer l.leave(c)
	return c.dispatch()
}

// Iterate runs a single Prepare, Poll, Dispatch cycle. If block is false
// Poll will not wait.
func (l *Loop) Iterate(block bool) Outcome {
	c, err := l.enter()
	if err != nil {
		return Failure{Err: err}
	}
	defer l.leave(c)

	timeout := time.Duration(0)
	if block {
		timeout = Infinite
	}

	o := c.iterate(timeout)
	c.metrics.recordIteration(o)
	return o
}

func (c *loopCore) iterate(timeout time.Duration) Outcome {
	if err := c.prepare(timeout); err != nil {
		return c.outcome(err)
	}
	if _, err := c.poll(); err != nil {
		return c.outcome(err)
	}
	n, err := c.dispatch()
	if err != nil {
		return c.outcome(err)
	}
	return Success{Dispatched: n}
}

func (c *loopCore) outcome(err error) Outcome {
	if errors.Is(err, ErrQuit) {
		return Quit{Retval: c.retval}
	}
	return Failure{Err: err}
}

// Run iterates, blocking, until quit is requested, returning the retval
// and true. If an iteration fails, Run returns 0 and false.
func (l *Loop) Run() (int, bool) {
	for {
		switch o := l.Iterate(true).(type) {
		case Quit:
			return o.Retval, true
		case Failure:
			return 0, false
		}
	}
}

// Retval returns the value passed to the most recent quit request.
func (l *Loop) Retval() int {
	if l.h == nil {
		return l.retval
	}
	return l.h.core.retval
}

// Quit requests termination, and wakes the loop. The next Prepare, Poll or
// Dispatch returns [ErrQuit], and no further sources are dispatched. Calling
// Quit again before the request is observed replaces the retval.
func (l *Loop) Quit(retval int) {
	if l.h == nil {
		return
	}
	l.h.core.requestQuit(retval)
}

// Wakeup interrupts a blocked Poll, without requesting termination. Safe for
// concurrent use, see [Waker].
func (l *Loop) Wakeup() {
	_ = l.waker.Wake()
}

// Waker returns the concurrency-safe wakeup handle of the loop, which may
// be retained, and outlives the loop.
func (l *Loop) Waker() *Waker {
	return l.waker
}

// SetPollFunc replaces the readiness source for subsequent polls. A nil fn
// restores [DefaultPoll].
func (l *Loop) SetPollFunc(fn PollFunc) {
	if l.h == nil {
		return
	}
	if fn == nil {
		fn = DefaultPoll
	}
	l.h.core.pollFunc = fn
}

// API returns the capability surface of the loop. Panics if the loop has
// been closed.
func (l *Loop) API() API {
	if l.h == nil {
		panic("mainloop: API called on closed loop")
	}
	return l.h.api
}

// State returns the current phase.
func (l *Loop) State() LoopState {
	if l.h == nil {
		return StatePassive
	}
	return l.h.core.state.Load()
}

// Close releases the application's reference to the loop. The loop is torn
// down once every event created through its API has also been freed. A
// second Close returns [ErrLoopClosed].
func (l *Loop) Close() error {
	h := l.h
	if h == nil {
		return ErrLoopClosed
	}
	l.retval = h.core.retval
	l.h = nil
	h.release()
	return nil
}
