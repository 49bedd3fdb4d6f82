package gofiber

import (
	"time"

	"github.com/rs/zerolog"
)

// driverOptions holds configuration applied at Driver construction.
type driverOptions struct {
	logger            zerolog.Logger
	preemptionBudget  time.Duration
	idlePollCap       time.Duration
	clock             Clock
}

// DriverOption configures a Driver at construction time.
type DriverOption interface {
	applyDriver(*driverOptions) error
}

type driverOptionFunc struct {
	fn func(*driverOptions) error
}

func (o *driverOptionFunc) applyDriver(opts *driverOptions) error { return o.fn(opts) }

// WithLogger attaches a zerolog.Logger the Driver uses for panics,
// unhandled fiber errors, and poller errors. The zero value is a disabled
// logger, so a Driver created without this option stays silent.
func WithLogger(logger zerolog.Logger) DriverOption {
	return &driverOptionFunc{func(o *driverOptions) error {
		o.logger = logger
		return nil
	}}
}

// WithPreemptionBudget sets how long a fiber may run since its last resume
// before a call to Fiber.Preempt yields it back to the ready queue.
// The default is 20ms, matching the runtime's real-time preemption design.
func WithPreemptionBudget(d time.Duration) DriverOption {
	return &driverOptionFunc{func(o *driverOptions) error {
		o.preemptionBudget = d
		return nil
	}}
}

// WithIdlePollCap bounds how long the Driver's readiness wait may block: it
// is the wait used when no timer is pending, and the upper limit on the
// wait for a later timer.
func WithIdlePollCap(d time.Duration) DriverOption {
	return &driverOptionFunc{func(o *driverOptions) error {
		o.idlePollCap = d
		return nil
	}}
}

// WithClock injects a Clock implementation in place of the wall/monotonic
// clock, for deterministic timer tests.
func WithClock(c Clock) DriverOption {
	return &driverOptionFunc{func(o *driverOptions) error {
		o.clock = c
		return nil
	}}
}

// resolveDriverOptions applies opts over the default configuration.
func resolveDriverOptions(opts []DriverOption) (*driverOptions, error) {
	cfg := &driverOptions{
		logger:           zerolog.Nop(),
		preemptionBudget: 20 * time.Millisecond,
		idlePollCap:      10 * time.Second,
		clock:            realClock{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyDriver(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Clock abstracts wall/monotonic time so timer-driven tests can run without
// real sleeps. Sleep blocks the Driver until d has elapsed on this clock;
// a real clock sleeps in wall time, while a virtual test clock can advance
// its own notion of "now" instantly so timer scenarios run at full CPU
// speed instead of real time.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time     { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
