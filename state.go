package mainloop

import (
	"sync/atomic"
)

// LoopState represents the phase of the current iteration.
//
// State Machine:
//
//	StatePassive  → StatePrepared [Prepare()]
//	StatePrepared → StatePolling  [Poll(), for the duration of the PollFunc]
//	StatePolling  → StatePolled   [Poll() success]
//	StatePolling  → StatePassive  [Poll() failure]
//	StatePolled   → StatePassive  [Dispatch()]
//	any of the above → StateQuit  [quit observed by Prepare/Poll/Dispatch]
//	StateQuit     → StatePrepared [Prepare(), iteration resumed]
//
// The state is atomic so it may be inspected from other goroutines, but only
// the goroutine driving the loop changes it.
type LoopState uint32

const (
	// StatePassive indicates the loop is between iterations.
	StatePassive LoopState = iota
	// StatePrepared indicates Prepare has computed the descriptor set and
	// timeout.
	StatePrepared
	// StatePolling indicates the loop is blocked in the PollFunc.
	StatePolling
	// StatePolled indicates Poll has returned and Dispatch is due.
	StatePolled
	// StateQuit indicates a quit request was observed.
	StateQuit
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StatePassive:
		return "Passive"
	case StatePrepared:
		return "Prepared"
	case StatePolling:
		return "Polling"
	case StatePolled:
		return "Polled"
	case StateQuit:
		return "Quit"
	default:
		return "Unknown"
	}
}

// loopState is an atomic LoopState.
type loopState struct {
	v atomic.Uint32
}

// Load returns the current state atomically.
func (s *loopState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store atomically stores a new state.
func (s *loopState) Store(state LoopState) {
	s.v.Store(uint32(state))
}

// TryTransition attempts to atomically transition from one state to another.
// Returns true if the transition was successful.
func (s *loopState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// TransitionAny attempts to transition from any of validFrom to the target.
// Returns true if the transition was successful.
func (s *loopState) TransitionAny(validFrom []LoopState, to LoopState) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint32(from), uint32(to)) {
			return true
		}
	}
	return false
}
