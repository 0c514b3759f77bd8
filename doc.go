// Package mainloop implements a single-threaded main loop built around the
// classic prepare/poll/dispatch cycle over file descriptors, timers and
// deferred callbacks.
//
// # Architecture
//
// A [Loop] owns the registered event sources and drives iterations. Each
// iteration runs three phases:
//
//  1. [Loop.Prepare] reaps freed events, rebuilds the descriptor set and
//     computes the poll timeout (the earliest timer, or zero if deferred
//     work is pending).
//  2. [Loop.Poll] blocks in the configured [PollFunc] (by default
//     [DefaultPoll], i.e. poll(2)) until readiness, timeout or [Waker.Wake].
//  3. [Loop.Dispatch] invokes the callbacks whose condition fired.
//
// [Loop.Iterate] composes the three phases and reports an [Outcome], one of
// [Success], [Quit] or [Failure]. [Loop.Run] iterates until a quit is
// observed.
//
// # Event Sources
//
// Consumers never see the [Loop] itself. They receive an [API], the
// abstract capability surface, and register against it:
//   - [API.NewIO] watches a file descriptor for [IOEvents]
//   - [API.NewTime] schedules a one-shot timer at an absolute time
//   - [API.NewDefer] registers a callback that fires once per iteration
//     while enabled
//   - [API.Once] queues a callback for the next dispatch only
//
// Every event object holds a reference to the loop's shared handle. The
// loop is torn down exactly once, after [Loop.Close] has been called and
// every event object has been freed.
//
// # Thread Safety
//
// A loop, its [API] and every event object must only be used from the
// goroutine driving the loop. The single exception is the [Waker] returned
// by [Loop.Waker] (and [Loop.Wakeup], which delegates to it), which may be
// used from any goroutine to interrupt a blocked poll.
//
// # Usage
//
//	loop, err := mainloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Close()
//
//	mainloop.NewTimeAfter(loop.API(), 10*time.Millisecond, func(api mainloop.API, e mainloop.TimeEvent, _ time.Time) {
//	    e.Free()
//	    api.Quit(42)
//	})
//
//	if retval, ok := loop.Run(); ok {
//	    os.Exit(retval)
//	}
package mainloop
