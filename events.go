package mainloop

import (
	"strings"

	"golang.org/x/sys/unix"
)

// IOEvents represents the conditions an I/O event is interested in, or the
// conditions that were reported as ready.
type IOEvents uint32

// EventNull indicates no events.
const EventNull IOEvents = 0

const (
	// EventInput indicates the file descriptor is readable.
	EventInput IOEvents = 1 << iota
	// EventOutput indicates the file descriptor is writable.
	EventOutput
	// EventHangup indicates the peer closed its end. Always reported, never
	// needs to be requested.
	EventHangup
	// EventError indicates an error condition on the file descriptor. Always
	// reported, never needs to be requested.
	EventError
)

// String returns a "|" separated list of the set event names.
func (e IOEvents) String() string {
	if e == EventNull {
		return "null"
	}
	var parts []string
	for _, v := range [...]struct {
		flag IOEvents
		name string
	}{
		{EventInput, "input"},
		{EventOutput, "output"},
		{EventHangup, "hangup"},
		{EventError, "error"},
	} {
		if e&v.flag != 0 {
			parts = append(parts, v.name)
		}
	}
	return strings.Join(parts, "|")
}

// eventsToPoll converts IOEvents to poll(2) request flags.
func eventsToPoll(events IOEvents) int16 {
	var flags int16
	if events&EventInput != 0 {
		flags |= unix.POLLIN | unix.POLLPRI
	}
	if events&EventOutput != 0 {
		flags |= unix.POLLOUT
	}
	if events&EventHangup != 0 {
		flags |= unix.POLLHUP
	}
	if events&EventError != 0 {
		flags |= unix.POLLERR
	}
	return flags
}

// pollToEvents converts poll(2) result flags to IOEvents.
func pollToEvents(revents int16) IOEvents {
	var events IOEvents
	if revents&(unix.POLLIN|unix.POLLPRI) != 0 {
		events |= EventInput
	}
	if revents&unix.POLLOUT != 0 {
		events |= EventOutput
	}
	if revents&unix.POLLHUP != 0 {
		events |= EventHangup
	}
	if revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		events |= EventError
	}
	return events
}
