package mainloop

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Waker interrupts a blocked [Loop.Poll]. It is the only part of this
// package that is safe for concurrent use, and it remains safe to call after
// the loop has been torn down (returning [ErrLoopClosed]).
type Waker struct {
	mu      sync.RWMutex // excludes close against in-flight writes
	readFd  int
	writeFd int
	pending atomic.Uint32
	closed  bool
}

func newWaker() (*Waker, error) {
	r, w, err := createWakeFd()
	if err != nil {
		return nil, err
	}
	return &Waker{readFd: r, writeFd: w}, nil
}

// Wake causes the current (or next) poll to return promptly. It does not
// request termination. Multiple calls before the loop observes the first are
// coalesced.
func (x *Waker) Wake() error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return ErrLoopClosed
	}

	if !x.pending.CompareAndSwap(0, 1) {
		return nil
	}

	// native endianness, eventfd requires exactly 8 bytes
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]

	if _, err := writeFD(x.writeFd, buf); err != nil && !errors.Is(err, unix.EAGAIN) {
		x.pending.Store(0)
		return os.NewSyscallError("write", err)
	}
	return nil
}

// fd returns the descriptor the loop polls for wake-ups.
func (x *Waker) fd() int {
	return x.readFd
}

// drain consumes all pending wake-ups, reporting whether there were any.
// The pending flag is reset before reading, so a concurrent Wake is never
// lost, at worst it causes one extra iteration.
func (x *Waker) drain() bool {
	x.pending.Store(0)
	var (
		buf   [8]byte
		woken bool
	)
	for {
		n, err := readFD(x.readFd, buf[:])
		if err != nil || n <= 0 {
			return woken
		}
		woken = true
	}
}

func (x *Waker) close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	err := closeFD(x.readFd)
	if x.writeFd != x.readFd {
		if e := closeFD(x.writeFd); err == nil {
			err = e
		}
	}
	if err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}
