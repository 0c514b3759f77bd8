package mainloop

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope of all loop instruments.
const meterName = "github.com/joeycumines/go-mainloop"

// Dispatch sources, recorded as the "source" attribute of
// mainloop.dispatched.
const (
	sourceIO    = "io"
	sourceTime  = "time"
	sourceDefer = "defer"
	sourceOnce  = "once"
)

// loopMetrics records loop activity using OpenTelemetry instruments. The
// attribute sets are computed once, at construction.
type loopMetrics struct {
	iterations   metric.Int64Counter
	dispatched   metric.Int64Counter
	pollDuration metric.Float64Histogram
	wakeups      metric.Int64Counter

	base     metric.MeasurementOption
	outcomes map[string]metric.MeasurementOption
	sources  map[string]metric.MeasurementOption
}

func newLoopMetrics(provider metric.MeterProvider, id, name string) (*loopMetrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)

	iterations, err := meter.Int64Counter("mainloop.iterations",
		metric.WithDescription("Number of completed loop iterations"),
	)
	if err != nil {
		return nil, err
	}

	dispatched, err := meter.Int64Counter("mainloop.dispatched",
		metric.WithDescription("Number of callbacks dispatched"),
	)
	if err != nil {
		return nil, err
	}

	pollDuration, err := meter.Float64Histogram("mainloop.poll.duration",
		metric.WithDescription("Time spent blocked in the poll function, in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	wakeups, err := meter.Int64Counter("mainloop.wakeups",
		metric.WithDescription("Number of polls interrupted by a wakeup"),
	)
	if err != nil {
		return nil, err
	}

	attrs := []attribute.KeyValue{attribute.String("loop.id", id)}
	if name != "" {
		attrs = append(attrs, attribute.String("loop.name", name))
	}
	with := func(kv attribute.KeyValue) metric.MeasurementOption {
		return metric.WithAttributes(append(attrs[:len(attrs):len(attrs)], kv)...)
	}

	m := &loopMetrics{
		iterations:   iterations,
		dispatched:   dispatched,
		pollDuration: pollDuration,
		wakeups:      wakeups,
		base:         metric.WithAttributes(attrs...),
		outcomes:     make(map[string]metric.MeasurementOption, 3),
		sources:      make(map[string]metric.MeasurementOption, 4),
	}
	for _, v := range [...]string{"success", "quit", "failure"} {
		m.outcomes[v] = with(attribute.String("outcome", v))
	}
	for _, v := range [...]string{sourceIO, sourceTime, sourceDefer, sourceOnce} {
		m.sources[v] = with(attribute.String("source", v))
	}
	return m, nil
}

func (m *loopMetrics) recordIteration(o Outcome) {
	m.iterations.Add(context.Background(), 1, m.outcomes[outcomeName(o)])
}

func (m *loopMetrics) recordDispatch(source string) {
	m.dispatched.Add(context.Background(), 1, m.sources[source])
}

func (m *loopMetrics) recordPoll(d time.Duration) {
	m.pollDuration.Record(context.Background(), float64(d)/float64(time.Millisecond), m.base)
}

func (m *loopMetrics) recordWakeup() {
	m.wakeups.Add(context.Background(), 1, m.base)
}
