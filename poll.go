package mainloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// Infinite may be passed to [Loop.Prepare] to block until readiness or
// wakeup. Any negative duration is treated the same way.
const Infinite time.Duration = -1

// PollFunc is the readiness source used by [Loop.Poll]. It must block until
// at least one of fds is ready, timeout milliseconds elapse (negative means
// forever), or the call is interrupted, then fill in Revents and return the
// number of ready entries.
//
// Implementations may be used to integrate the loop with another loop, or to
// instrument polling. The slice is only valid for the duration of the call.
type PollFunc func(fds []unix.PollFd, timeout int) (int, error)

// DefaultPoll is the PollFunc used unless configured otherwise. It calls
// poll(2) directly.
func DefaultPoll(fds []unix.PollFd, timeout int) (int, error) {
	return unix.Poll(fds, timeout)
}

// timeoutMillis converts a poll timeout to the millisecond form passed to a
// PollFunc, rounding sub-millisecond waits up so a pending timer cannot spin
// the loop.
func timeoutMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	if d > 0 && d < time.Millisecond {
		return 1
	}
	ms := d / time.Millisecond
	if d%time.Millisecond != 0 {
		ms++
	}
	const maxMillis = 1<<31 - 1
	if ms > maxMillis {
		return maxMillis
	}
	return int(ms)
}
