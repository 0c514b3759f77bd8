package mainloop

import (
	"bufio"
	"bytes"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"golang.org/x/sys/unix"
)

// newTestLoop creates a loop, closed on test cleanup.
func newTestLoop(t *testing.T, opts ...LoopOption) *Loop {
	t.Helper()
	loop, err := New(opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { _ = loop.Close() })
	return loop
}

// fixedClock returns a clock option, and a pointer to the time it reports.
func fixedClock() (LoopOption, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	return WithClock(func() time.Time { return now }), &now
}

// newTestPipe returns the read and write ends of a non-blocking pipe, and a
// func to close the write end early. Both are closed on test cleanup.
func newTestPipe(t *testing.T) (int, int, func()) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		t.Fatalf("pipe failed: %v", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatalf("set nonblock failed: %v", err)
		}
	}
	var closeWrite sync.Once
	closeW := func() { closeWrite.Do(func() { _ = unix.Close(fds[1]) }) }
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		closeW()
	})
	return fds[0], fds[1], closeW
}

// logBuffer captures JSON log output.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (x *logBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.Write(p)
}

// lines decodes each logged message.
func (x *logBuffer) lines(t *testing.T) []map[string]any {
	t.Helper()
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(x.buf.Bytes()))
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("invalid log line %q: %v", scanner.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func newTestLogger(w *logBuffer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(w),
			stumpy.WithTimeField(``),
		),
		stumpy.L.WithLevel(level),
	).Logger()
}
