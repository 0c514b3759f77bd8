package mainloop

// ioEvent implements IOEvent.
type ioEvent struct {
	h       *handle
	cb      IOCallback
	destroy func(IOEvent)
	fd      int
	events  IOEvents
	idx     int // index in loopCore.pollfds, -1 if not present
	freed   bool
}

var _ IOEvent = (*ioEvent)(nil)

func (e *ioEvent) check() {
	if e.freed {
		panic("mainloop: use of freed io event")
	}
}

func (e *ioEvent) isFreed() bool { return e.freed }

func (e *ioEvent) FD() int { return e.fd }

func (e *ioEvent) Events() IOEvents { return e.events }

func (e *ioEvent) Enable(events IOEvents) {
	e.check()
	if e.events == events {
		return
	}
	e.events = events
	c := e.h.core
	if !c.rebuild && e.idx >= 0 {
		c.pollfds[e.idx].Events = eventsToPoll(events)
	}
}

func (e *ioEvent) SetDestroy(fn func(IOEvent)) {
	e.check()
	e.destroy = fn
}

func (e *ioEvent) Free() {
	e.check()
	e.freed = true
	c := e.h.core
	c.rebuild = true
	c.anyDead = true
	c.bury(e)
}

func (e *ioEvent) finalize(c *loopCore) {
	e.cb = nil
	if fn := e.destroy; fn != nil {
		e.destroy = nil
		c.invoke(sourceIO, func() { fn(e) })
	}
}
