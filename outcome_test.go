package mainloop

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func TestErrorCode(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"quit", ErrQuit, CodeQuit},
		{"wrapped quit", fmt.Errorf("x: %w", ErrQuit), CodeQuit},
		{"errno", unix.EBADF, -int(unix.EBADF)},
		{"syscall error", os.NewSyscallError("poll", unix.EINVAL), -int(unix.EINVAL)},
		{"other", errors.New("other"), CodeError},
		{"closed", ErrLoopClosed, CodeError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := ErrorCode(tc.err); got != tc.want {
				t.Errorf("ErrorCode() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestOutcome(t *testing.T) {
	for _, tc := range []struct {
		outcome Outcome
		str     string
		name    string
	}{
		{Success{Dispatched: 3}, "Success(3)", "success"},
		{Quit{Retval: 42}, "Quit(42)", "quit"},
		{Failure{Err: unix.EBADF}, fmt.Sprintf("Failure(%d: %v)", -int(unix.EBADF), unix.EBADF), "failure"},
	} {
		if got := tc.outcome.String(); got != tc.str {
			t.Errorf("String() = %q, want %q", got, tc.str)
		}
		if got := outcomeName(tc.outcome); got != tc.name {
			t.Errorf("outcomeName() = %q, want %q", got, tc.name)
		}
	}

	f := Failure{}
	if f.Code() != CodeError {
		t.Errorf("Code() = %d", f.Code())
	}
	if f.Error() == "" {
		t.Error("empty error string")
	}
	var err error = Failure{Err: ErrInvalidState}
	if !errors.Is(err, ErrInvalidState) {
		t.Error("expected Failure to unwrap")
	}
}
