// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package mainloop

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"go.opentelemetry.io/otel/metric"
)

// defaultLogRateLimits bounds error level log output per category.
var defaultLogRateLimits = map[time.Duration]int{
	time.Second: 10,
	time.Minute: 100,
}

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	pollFunc      PollFunc
	logger        *logiface.Logger[logiface.Event]
	logLimiter    *catrate.Limiter
	logLimiterSet bool
	meterProvider metric.MeterProvider
	clock         func() time.Time
	onTeardown    func()
	name          string
}

// --- Loop Options ---

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithPollFunc sets the readiness source used by Poll. A nil value selects
// DefaultPoll. See also Loop.SetPollFunc.
func WithPollFunc(fn PollFunc) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.pollFunc = fn
		return nil
	}}
}

// WithLogger attaches a structured logger. A nil logger (the default)
// disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithLogRateLimits overrides the sliding window limits applied to error
// level log messages, per category (e.g. repeated poll failures). An empty
// map disables rate limiting. Longer windows must allow more events, at a
// lower rate, see catrate.NewLimiter.
func WithLogRateLimits(rates map[time.Duration]int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) (err error) {
		opts.logLimiterSet = true
		if len(rates) == 0 {
			opts.logLimiter = nil
			return nil
		}
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("mainloop: invalid log rate limits: %v", r)
			}
		}()
		opts.logLimiter = catrate.NewLimiter(rates)
		return nil
	}}
}

// WithMeterProvider enables OpenTelemetry metrics, recorded using a meter
// from the given provider. Metrics are disabled (noop) by default.
func WithMeterProvider(provider metric.MeterProvider) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.meterProvider = provider
		return nil
	}}
}

// WithClock overrides the time source used for timer expiry, and returned
// by API.Now. Defaults to time.Now.
func WithClock(now func() time.Time) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if now == nil {
			return errors.New("mainloop: nil clock")
		}
		opts.clock = now
		return nil
	}}
}

// WithOnTeardown registers a function called once, after the loop has been
// torn down (the last reference released).
func WithOnTeardown(fn func()) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.onTeardown = fn
		return nil
	}}
}

// WithName sets a human-readable name, attached to log output and metrics.
func WithName(name string) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.name = name
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		pollFunc: DefaultPoll,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.pollFunc == nil {
		cfg.pollFunc = DefaultPoll
	}
	if !cfg.logLimiterSet {
		cfg.logLimiter = catrate.NewLimiter(defaultLogRateLimits)
	}
	return cfg, nil
}
