package mainloop

import (
	"io"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Log categories, attached to every message as the "category" field. Error
// level messages are rate limited per category.
const (
	categoryPoll      = "poll"
	categoryDispatch  = "dispatch"
	categoryLifecycle = "lifecycle"
)

// NewJSONLogger returns a logger writing newline delimited JSON to w, for
// use with [WithLogger]. Messages below level are discarded.
func NewJSONLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// loopLogger decorates the configured logger with the loop identity. All
// methods are safe to call with a nil logger.
type loopLogger struct {
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
	id      string
	name    string
}

func (x *loopLogger) debug(category string) *logiface.Builder[logiface.Event] {
	b := x.logger.Debug()
	if !b.Enabled() {
		return nil
	}
	b = b.Str("loop", x.id).Str("category", category)
	if x.name != "" {
		b = b.Str("name", x.name)
	}
	return b
}

// err returns nil (a disabled builder) if the category is currently rate
// limited.
func (x *loopLogger) err(category string) *logiface.Builder[logiface.Event] {
	b := x.logger.Build(logiface.LevelError)
	if !b.Enabled() {
		return nil
	}
	if _, ok := x.limiter.Allow(category); !ok {
		b.Release()
		return nil
	}
	b = b.Str("loop", x.id).Str("category", category)
	if x.name != "" {
		b = b.Str("name", x.name)
	}
	return b
}
