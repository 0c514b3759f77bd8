package mainloop

import (
	"errors"
	"syscall"
)

// Standard errors.
var (
	// ErrQuit is returned by the phase operations once a quit request has
	// been observed. It is a normal termination signal, not a failure;
	// [Loop.Iterate] reports it as [Quit].
	ErrQuit = errors.New("mainloop: quit requested")

	// ErrInvalidState is returned when a phase operation is called out of
	// order, e.g. Poll without a preceding Prepare.
	ErrInvalidState = errors.New("mainloop: invalid state for operation")

	// ErrLoopClosed is returned when the loop has been closed by its owner,
	// or has been torn down.
	ErrLoopClosed = errors.New("mainloop: loop closed")
)

// Status codes returned by ErrorCode, mirroring the classic C main loop
// conventions.
const (
	// CodeError is the generic failure code.
	CodeError = -1
	// CodeQuit is the code for ErrQuit.
	CodeQuit = -2
)

// ErrorCode maps an error to a negative status code. Syscall failures map to
// the negated errno, ErrQuit maps to CodeQuit, nil maps to 0 and everything
// else maps to CodeError.
func ErrorCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrQuit) {
		return CodeQuit
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && errno != 0 {
		return -int(errno)
	}
	return CodeError
}
