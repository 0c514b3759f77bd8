package mainloop

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestDispatch_TimersInExpiryOrder(t *testing.T) {
	clock, now := fixedClock()
	loop := newTestLoop(t, clock)
	api := loop.API()

	var order []string
	record := func(name string) TimeCallback {
		return func(_ API, e TimeEvent, when time.Time) {
			order = append(order, name)
			assert.True(t, e.When().IsZero(), "fired timer should be disabled")
			assert.False(t, when.After(*now))
		}
	}

	api.NewTime(now.Add(-time.Second), record("b"))
	api.NewTime(now.Add(-2*time.Second), record("a"))
	api.NewTime(now.Add(-time.Second), record("c"))
	late := api.NewTime(now.Add(time.Hour), record("late"))
	disabled := api.NewTime(time.Time{}, record("disabled"))
	assert.True(t, disabled.When().IsZero())

	require.Equal(t, Success{Dispatched: 3}, loop.Iterate(false))
	require.Equal(t, []string{"a", "b", "c"}, order)

	// one-shot
	require.Equal(t, Success{}, loop.Iterate(false))

	late.Restart(now.Add(-time.Millisecond))
	disabled.Restart(*now)
	require.Equal(t, Success{Dispatched: 2}, loop.Iterate(false))
	require.Equal(t, []string{"a", "b", "c", "late", "disabled"}, order)
}

func TestDispatch_TimerBoundsPollTimeout(t *testing.T) {
	clock, now := fixedClock()
	var got []int
	loop := newTestLoop(t, clock, WithPollFunc(func(_ []unix.PollFd, timeout int) (int, error) {
		got = append(got, timeout)
		return 0, nil
	}))
	e := loop.API().NewTime(now.Add(250*time.Millisecond), func(API, TimeEvent, time.Time) {})

	require.Equal(t, Success{}, loop.Iterate(true))
	require.NoError(t, loop.Prepare(time.Second))
	_, err := loop.Poll()
	require.NoError(t, err)
	_, err = loop.Dispatch()
	require.NoError(t, err)
	require.NoError(t, loop.Prepare(100*time.Millisecond))
	_, err = loop.Poll()
	require.NoError(t, err)
	_, err = loop.Dispatch()
	require.NoError(t, err)

	e.Restart(time.Time{})
	require.Equal(t, Success{}, loop.Iterate(true))

	require.Equal(t, []int{250, 250, 100, -1}, got)
}

func TestDispatch_RestartedTimerWaitsForNextIteration(t *testing.T) {
	clock, now := fixedClock()
	loop := newTestLoop(t, clock)
	api := loop.API()

	var order []string
	var second TimeEvent
	api.NewTime(now.Add(-2*time.Second), func(API, TimeEvent, time.Time) {
		order = append(order, "first")
		second.Restart(now.Add(-time.Second))
	})
	second = api.NewTime(now.Add(-time.Second), func(API, TimeEvent, time.Time) {
		order = append(order, "second")
	})

	require.Equal(t, Success{Dispatched: 1}, loop.Iterate(false))
	require.Equal(t, Success{Dispatched: 1}, loop.Iterate(false))
	require.Equal(t, []string{"first", "second"}, order)
}

func TestDispatch_FreedInCallbackNotDispatched(t *testing.T) {
	clock, now := fixedClock()
	loop := newTestLoop(t, clock)
	api := loop.API()

	var (
		fired     []string
		destroyed []string
		second    TimeEvent
	)
	first := api.NewTime(now.Add(-2*time.Second), func(_ API, e TimeEvent, _ time.Time) {
		fired = append(fired, "first")
		second.Free()
		e.Free()
		// finalization is deferred until dispatch completes
		assert.Empty(t, destroyed)
	})
	first.SetDestroy(func(TimeEvent) { destroyed = append(destroyed, "first") })
	second = api.NewTime(now.Add(-time.Second), func(API, TimeEvent, time.Time) {
		fired = append(fired, "second")
	})
	second.SetDestroy(func(TimeEvent) { destroyed = append(destroyed, "second") })

	require.Equal(t, Success{Dispatched: 1}, loop.Iterate(false))
	assert.Equal(t, []string{"first"}, fired)
	assert.Equal(t, []string{"second", "first"}, destroyed)
	assert.Equal(t, int32(1), loop.h.refs.Load())

	require.Equal(t, Success{}, loop.Iterate(false))
	assert.Len(t, destroyed, 2)
}

func TestDispatch_DestroyCallbackMayFreeOtherEvents(t *testing.T) {
	loop := newTestLoop(t)
	api := loop.API()

	var destroyed int
	b := api.NewDefer(func(API, DeferEvent) {})
	b.SetDestroy(func(DeferEvent) { destroyed++ })
	a := api.NewDefer(func(API, DeferEvent) {})
	a.SetDestroy(func(DeferEvent) {
		destroyed++
		b.Free()
	})

	a.Free()
	assert.Equal(t, 2, destroyed)
	assert.Equal(t, int32(1), loop.h.refs.Load())
	require.Equal(t, Success{}, loop.Iterate(false))
}

func TestDispatch_DeferredSuppressesBlocking(t *testing.T) {
	clock, now := fixedClock()
	loop := newTestLoop(t, clock)
	api := loop.API()

	var calls int
	e := api.NewDefer(func(_ API, e DeferEvent) {
		calls++
		if calls == 3 {
			e.Enable(false)
		}
	})
	defer e.Free()
	require.True(t, e.Enabled())

	var timerFired bool
	tm := api.NewTime(now.Add(-time.Second), func(API, TimeEvent, time.Time) { timerFired = true })
	defer tm.Free()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.Equal(t, Success{Dispatched: 1}, loop.Iterate(true))
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 3, calls)
	assert.False(t, e.Enabled())

	// timers resume once deferred work is done
	assert.False(t, timerFired)
	require.Equal(t, Success{Dispatched: 1}, loop.Iterate(false))
	assert.True(t, timerFired)

	e.Enable(true)
	require.Equal(t, Success{Dispatched: 1}, loop.Iterate(true))
	assert.Equal(t, 4, calls)
}

func TestDispatch_DeferredRegisteredDuringDispatch(t *testing.T) {
	loop := newTestLoop(t)
	api := loop.API()

	var order []string
	a := api.NewDefer(func(api API, e DeferEvent) {
		order = append(order, "a")
		e.Enable(false)
		api.NewDefer(func(_ API, e DeferEvent) {
			order = append(order, "b")
			e.Free()
		})
	})
	defer a.Free()

	require.Equal(t, Success{Dispatched: 1}, loop.Iterate(false))
	require.Equal(t, Success{Dispatched: 1}, loop.Iterate(false))
	require.Equal(t, Success{}, loop.Iterate(false))
	require.Equal(t, []string{"a", "b"}, order)
}

func TestDispatch_OnceFIFO(t *testing.T) {
	loop := newTestLoop(t)
	api := loop.API()

	var order []int
	api.Once(func(api API) {
		order = append(order, 1)
		api.Once(func(API) { order = append(order, 3) })
	})
	api.Once(func(API) { order = append(order, 2) })

	require.Equal(t, Success{Dispatched: 2}, loop.Iterate(true))
	require.Equal(t, []int{1, 2}, order)
	require.Equal(t, Success{Dispatched: 1}, loop.Iterate(true))
	require.Equal(t, []int{1, 2, 3}, order)
	require.Equal(t, Success{}, loop.Iterate(false))
	assert.Equal(t, int32(1), loop.h.refs.Load())
}

func TestDispatch_PipeIO(t *testing.T) {
	loop := newTestLoop(t)
	r, w, closeW := newTestPipe(t)

	var got []IOEvents
	e := loop.API().NewIO(r, EventInput, func(_ API, e IOEvent, fd int, events IOEvents) {
		assert.Equal(t, r, fd)
		assert.Equal(t, r, e.FD())
		got = append(got, events)
		if events&EventInput != 0 {
			var buf [16]byte
			_, _ = unix.Read(fd, buf[:])
		}
	})
	defer e.Free()

	require.Equal(t, Success{}, loop.Iterate(false))

	_, err := unix.Write(w, []byte("x"))
	require.NoError(t, err)
	require.Equal(t, Success{Dispatched: 1}, loop.Iterate(false))
	require.Equal(t, []IOEvents{EventInput}, got)

	require.Equal(t, Success{}, loop.Iterate(false))

	// disabled interest
	e.Enable(EventNull)
	assert.Equal(t, EventNull, e.Events())
	_, err = unix.Write(w, []byte("y"))
	require.NoError(t, err)
	require.Equal(t, Success{}, loop.Iterate(false))

	e.Enable(EventInput)
	require.Equal(t, Success{Dispatched: 1}, loop.Iterate(false))
	require.Len(t, got, 2)

	if runtime.GOOS != "linux" {
		return
	}
	closeW()
	e.Enable(EventNull)
	require.Equal(t, Success{Dispatched: 1}, loop.Iterate(false))
	require.Equal(t, EventHangup, got[2])
}

func TestDispatch_IOFreedDuringDispatch(t *testing.T) {
	loop := newTestLoop(t)
	r1, w1, _ := newTestPipe(t)
	r2, w2, _ := newTestPipe(t)

	var (
		calls int
		a, b  IOEvent
	)
	a = loop.API().NewIO(r1, EventInput, func(API, IOEvent, int, IOEvents) {
		calls++
		b.Free()
	})
	defer a.Free()
	b = loop.API().NewIO(r2, EventInput, func(API, IOEvent, int, IOEvents) {
		calls++
	})

	for _, w := range []int{w1, w2} {
		_, err := unix.Write(w, []byte("x"))
		require.NoError(t, err)
	}

	require.Equal(t, Success{Dispatched: 1}, loop.Iterate(false))
	assert.Equal(t, 1, calls)
	assert.Equal(t, int32(2), loop.h.refs.Load())
}
