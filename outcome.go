package mainloop

import (
	"fmt"
)

// Outcome is the result of one [Loop.Iterate] call. It is exactly one of
// [Success], [Quit] or [Failure]; use a type switch to distinguish them.
//
//	switch o := loop.Iterate(true).(type) {
//	case mainloop.Success:
//	    _ = o.Dispatched
//	case mainloop.Quit:
//	    os.Exit(o.Retval)
//	case mainloop.Failure:
//	    log.Fatal(o.Err)
//	}
type Outcome interface {
	fmt.Stringer
	outcome()
}

// Success reports a completed iteration.
type Success struct {
	// Dispatched is the number of event sources dispatched.
	Dispatched int
}

// Quit reports that a quit request was observed. No further sources were
// dispatched after the request was observed.
type Quit struct {
	// Retval is the value passed to the most recent quit request.
	Retval int
}

// Failure reports that the iteration failed, e.g. because the PollFunc
// returned an error.
type Failure struct {
	Err error
}

var (
	// compile time assertions

	_ Outcome = Success{}
	_ Outcome = Quit{}
	_ Outcome = Failure{}
)

func (Success) outcome() {}
func (Quit) outcome()    {}
func (Failure) outcome() {}

func (x Success) String() string { return fmt.Sprintf("Success(%d)", x.Dispatched) }
func (x Quit) String() string    { return fmt.Sprintf("Quit(%d)", x.Retval) }
func (x Failure) String() string { return fmt.Sprintf("Failure(%d: %v)", x.Code(), x.Err) }

// Code returns the negative status code of the failure, see ErrorCode.
func (x Failure) Code() int {
	if code := ErrorCode(x.Err); code != 0 {
		return code
	}
	return CodeError
}

// Unwrap returns the underlying error for use with [errors.Is] and
// [errors.As].
func (x Failure) Unwrap() error { return x.Err }

// Error implements the error interface, allowing a Failure to be returned
// as-is.
func (x Failure) Error() string {
	if x.Err == nil {
		return "mainloop: iteration failed"
	}
	return x.Err.Error()
}

// outcomeName is used as a metric attribute and log field.
func outcomeName(o Outcome) string {
	switch o.(type) {
	case Success:
		return "success"
	case Quit:
		return "quit"
	default:
		return "failure"
	}
}
