package mainloop

// deferEvent implements DeferEvent.
type deferEvent struct {
	h       *handle
	cb      DeferCallback
	destroy func(DeferEvent)
	enabled bool
	freed   bool
}

var _ DeferEvent = (*deferEvent)(nil)

func (e *deferEvent) check() {
	if e.freed {
		panic("mainloop: use of freed defer event")
	}
}

func (e *deferEvent) isFreed() bool { return e.freed }

func (e *deferEvent) Enabled() bool { return e.enabled }

func (e *deferEvent) Enable(enabled bool) {
	e.check()
	if e.enabled == enabled {
		return
	}
	e.enabled = enabled
	if enabled {
		e.h.core.nEnabledDefer++
	} else {
		e.h.core.nEnabledDefer--
	}
}

func (e *deferEvent) SetDestroy(fn func(DeferEvent)) {
	e.check()
	e.destroy = fn
}

func (e *deferEvent) Free() {
	e.check()
	c := e.h.core
	if e.enabled {
		e.enabled = false
		c.nEnabledDefer--
	}
	e.freed = true
	c.anyDead = true
	c.bury(e)
}

func (e *deferEvent) finalize(c *loopCore) {
	e.cb = nil
	if fn := e.destroy; fn != nil {
		e.destroy = nil
		c.invoke(sourceDefer, func() { fn(e) })
	}
}
