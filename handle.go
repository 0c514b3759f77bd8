package mainloop

import (
	"sync/atomic"
)

// handle is the shared, reference counted cell through which the loop and
// every event object reach the core. The application's Loop owns one
// reference, and each live event owns one.
//
// core and api are set together by newHandle, and cleared together by the
// teardown, which runs exactly once, when the count reaches zero.
type handle struct {
	refs     atomic.Int32
	core     *loopCore
	api      *api
	teardown func(*loopCore)
}

func newHandle(core *loopCore, teardown func(*loopCore)) *handle {
	h := &handle{core: core, teardown: teardown}
	h.api = &api{h: h}
	h.refs.Store(1)
	return h
}

// acquire adds a reference. The caller must already hold one.
func (h *handle) acquire() *handle {
	if h.refs.Add(1) <= 1 {
		panic("mainloop: acquire of released loop handle")
	}
	return h
}

// release drops a reference, tearing down the core if it was the last.
func (h *handle) release() {
	switch n := h.refs.Add(-1); {
	case n > 0:
	case n == 0:
		core := h.core
		// free the core before invalidating the cached api
		h.teardown(core)
		h.core = nil
		h.api = nil
	default:
		panic("mainloop: loop handle released too many times")
	}
}
