package gofiber

import (
	"fmt"
	"time"

	"container/heap"

	"github.com/rs/zerolog"
)

// idleWatcher runs fn once the ready queue is empty and the next timer
// deadline (if any) is further away than horizon.
type idleWatcher struct {
	horizon time.Duration
	fn      func()
}

// Driver is the single-threaded event loop that multiplexes Fibers.
// Exactly one Driver goroutine exists for the lifetime of a Run call: the
// goroutine that calls Run is the Driver's own goroutine, and it never
// executes fiber bodies directly — it only resumes fiber goroutines and
// blocks waiting for them to yield back, which is what gives the whole
// runtime its single-active-executor guarantee (see doc.go).
//
// Each tick runs timers, then the ready queue, then an I/O poll, then the
// deferred/microtask queue, in that fixed order. There is deliberately no
// multi-goroutine submission machinery (mutexes, atomic state, a wake pipe
// for cross-thread submission): nothing outside the Driver's own goroutine
// ever submits work, since all work originates from fibers running on the
// Driver's own logical thread.
type Driver struct {
	state DriverState
	clock Clock
	now   time.Time

	ready        []*Fiber
	timers       timerHeap
	nextTimerSeq uint64

	poller      *fastPoller
	pollerReady bool
	readWaiters int // count of fds registered, to decide whether polling is needed at all

	idleWatchers []idleWatcher
	deferred     []func() // end-of-tick queue, drained once per tick

	logger           zerolog.Logger
	preemptionBudget time.Duration
	idlePollCap      time.Duration

	nextFiberID uint64

	root   *Context
	ctxStk []*Context // nesting stack for Fiber.Run; top = current
}

// NewDriver constructs a Driver. Most callers want the package-level Run
// helper instead, which constructs a Driver and its root Context together.
func NewDriver(opts ...DriverOption) (*Driver, error) {
	cfg, err := resolveDriverOptions(opts)
	if err != nil {
		return nil, err
	}
	d := &Driver{
		state:            DriverAwake,
		clock:            cfg.clock,
		logger:           cfg.logger,
		preemptionBudget: cfg.preemptionBudget,
		idlePollCap:      cfg.idlePollCap,
		nextFiberID:      1,
	}
	d.now = d.clock.Now()
	return d, nil
}

// Run creates a Driver and its root Context, spawns entry as the root
// fiber, drives the event loop until every fiber in the root context has
// terminated, and returns the root fiber's result. A failed root fiber has
// no awaiter, so its own error also lands in the root context's unhandled
// sink. If that sink holds more than one error, Run returns a nil value
// and an AggregateError of all of them. If it holds exactly one and the
// root fiber itself completed without error, that error is returned
// alongside the root fiber's value.
func Run(entry func(*Fiber) (any, error), opts ...DriverOption) (any, error) {
	d, err := NewDriver(opts...)
	if err != nil {
		return nil, err
	}
	ctx := newContext(d, nil)
	if err := ctx.Activate(); err != nil {
		return nil, err
	}
	d.root = ctx
	d.ctxStk = []*Context{ctx}

	root := d.spawn(ctx, entry)
	d.ready = append(d.ready, root)
	root.status = FiberReady

	d.state = DriverRunning
	d.loop()

	if len(ctx.unhandledErrs) > 1 {
		return nil, &AggregateError{Errors: ctx.unhandledErrs}
	}
	if root.resultErr == nil && len(ctx.unhandledErrs) == 1 {
		return root.resultValue, ctx.unhandledErrs[0]
	}
	return root.resultValue, root.resultErr
}

// loop runs tick() until the root context has no more live fibers.
func (d *Driver) loop() {
	for !d.root.isDone() {
		d.tick()
	}
	d.state = DriverTerminated
	if d.pollerReady {
		if err := d.poller.close(); err != nil {
			d.logger.Warn().Err(err).Msg("poller close failed")
		}
	}
}

// tick runs one iteration of the scheduling algorithm: timers due now move
// to the ready queue, then every fiber currently in the ready queue runs
// until it next suspends, then (if nothing is ready) the Driver blocks in
// the I/O readiness poll for up to the next timer deadline, then the
// end-of-tick deferred queue drains.
func (d *Driver) tick() {
	d.now = d.clock.Now()
	d.runTimers()

	// Drain the ready queue snapshot from the start of this tick; fibers
	// that re-enqueue themselves (explicit yield, preemption) run on a
	// later tick, preserving FIFO fairness within a tick.
	batch := d.ready
	d.ready = nil
	for _, f := range batch {
		d.resumeFiber(f, resumeSignal{})
	}

	if len(d.ready) == 0 && !d.root.isDone() {
		d.pollOnce()
	}

	d.runIdleWatchers()
	d.drainDeferred()
}

// runTimers moves every timer whose deadline has passed into the ready queue.
func (d *Driver) runTimers() {
	for len(d.timers) > 0 {
		deadline, ok := d.timers.peekDeadline()
		if !ok || deadline.After(d.now) {
			break
		}
		entry := heap.Pop(&d.timers).(*timerEntry)
		f := entry.fiber
		if f.status == FiberSuspended {
			f.status = FiberReady
			d.ready = append(d.ready, f)
		}
	}
}

// calculateTimeout returns how long the Driver may block in the readiness
// poll: capped at the next timer deadline, or idlePollCap if no timer is
// pending. Sub-millisecond remainders round up to 1ms so a near-due timer
// never gets rounded down into a longer poll than it should.
func (d *Driver) calculateTimeout() int {
	deadline, ok := d.timers.peekDeadline()
	if !ok {
		return int(d.idlePollCap / time.Millisecond)
	}
	remaining := deadline.Sub(d.now)
	if remaining <= 0 {
		return 0
	}
	ms := remaining / time.Millisecond
	if remaining%time.Millisecond != 0 {
		ms++
	}
	if cap := d.idlePollCap / time.Millisecond; ms > cap {
		ms = cap
	}
	return int(ms)
}

// pollOnce blocks in the platform readiness poll (if any fds are
// registered) for up to calculateTimeout, or simply sleeps until the next
// timer deadline when no fds are registered at all.
func (d *Driver) pollOnce() {
	timeout := d.calculateTimeout()
	if d.readWaiters == 0 {
		if timeout > 0 {
			d.state = DriverSleeping
			d.clock.Sleep(time.Duration(timeout) * time.Millisecond)
			d.state = DriverRunning
		}
		return
	}
	d.state = DriverSleeping
	waiters, events, err := d.poller.pollIO(timeout)
	d.state = DriverRunning
	if err != nil {
		d.logger.Warn().Err(err).Msg("poller error")
		return
	}
	for i, w := range waiters {
		f := w.fiber
		f.ioEvents = events[i]
		if f.status == FiberSuspended {
			f.status = FiberReady
			d.ready = append(d.ready, f)
		}
	}
}

// runIdleWatchers fires, while the ready queue is empty, every idle
// watcher whose horizon does not reach the next timer deadline (or every
// watcher, if no timer is pending).
func (d *Driver) runIdleWatchers() {
	if len(d.ready) != 0 || len(d.idleWatchers) == 0 {
		return
	}
	deadline, hasTimer := d.timers.peekDeadline()
	for _, w := range d.idleWatchers {
		if hasTimer && deadline.Sub(d.now) < w.horizon {
			continue
		}
		d.safeCall(w.fn)
	}
}

// drainDeferred runs the end-of-tick deferred/microtask queue. Callbacks
// scheduled by a callback running in this drain are appended to the same
// slice and run within the same drain pass, bounded by budget so a
// callback that keeps rescheduling itself cannot starve the next tick.
func (d *Driver) drainDeferred() {
	const budget = 1024
	n := 0
	for len(d.deferred) > 0 && n < budget {
		fn := d.deferred[0]
		d.deferred = d.deferred[1:]
		d.safeCall(fn)
		n++
	}
}

// ScheduleDeferred appends fn to the Driver's end-of-tick queue.
func (d *Driver) ScheduleDeferred(fn func()) {
	d.deferred = append(d.deferred, fn)
}

// OnIdle registers a callback invoked when the ready queue is empty and no
// timer is due within horizon.
func (d *Driver) OnIdle(horizon time.Duration, fn func()) {
	d.idleWatchers = append(d.idleWatchers, idleWatcher{horizon: horizon, fn: fn})
}

func (d *Driver) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Msg("deferred callback panicked")
		}
	}()
	fn()
}

// ensurePoller lazily initializes the platform poller on first registration.
func (d *Driver) ensurePoller() error {
	if d.pollerReady {
		return nil
	}
	d.poller = &fastPoller{}
	if err := d.poller.init(); err != nil {
		return err
	}
	d.pollerReady = true
	return nil
}

// currentContext returns the innermost active Context.
func (d *Driver) currentContext() *Context {
	return d.ctxStk[len(d.ctxStk)-1]
}

func (d *Driver) pushContext(c *Context) {
	d.ctxStk = append(d.ctxStk, c)
}

func (d *Driver) popContext() {
	d.ctxStk = d.ctxStk[:len(d.ctxStk)-1]
}

func (d *Driver) newFiberID() uint64 {
	id := d.nextFiberID
	d.nextFiberID++
	return id
}

// resumeSignal is sent to a fiber goroutine to resume it.
type resumeSignal struct {
	err error
}

// yieldKind classifies why a fiber's goroutine handed control back to the Driver.
type yieldKind int

const (
	ySuspend yieldKind = iota
	yDone
)

// yieldSignal is sent by a fiber goroutine back to the Driver.
type yieldSignal struct {
	kind yieldKind
}

// resumeFiber sends in on f's resume channel and blocks until f yields or
// completes, updating Driver bookkeeping from the result. This is the only
// place the Driver ever "runs" a fiber.
func (d *Driver) resumeFiber(f *Fiber, in resumeSignal) {
	f.status = FiberRunning
	f.lastResumed = d.now
	f.resumeCh <- in
	sig := <-f.yieldCh
	switch sig.kind {
	case yDone:
		d.completeFiber(f)
	case ySuspend:
		// The fiber already pushed itself onto whatever structure it is
		// waiting on (timer heap, ready queue, a channel's parked queue,
		// a future's waiter list, the poller) before signaling; nothing
		// further to do here beyond having left status as set by the
		// fiber itself.
	}
}

// completeFiber finalizes a terminated fiber: wakes its awaiters, and
// routes an unobserved error to its Context's unhandled sink.
func (d *Driver) completeFiber(f *Fiber) {
	f.ctx.removeFiber(f)
	observed := false
	waiters := f.waiters
	f.waiters = nil
	for _, w := range waiters {
		observed = true
		w.awaitResult = f.resultValue
		w.awaitErr = f.resultErr
		if w.status == FiberSuspended {
			w.status = FiberReady
			d.ready = append(d.ready, w)
		}
	}
	if f.resultErr != nil && !observed {
		f.ctx.reportUnhandled(f.resultErr)
	}
}

// String aids debugging/logging.
func (d *Driver) String() string {
	return fmt.Sprintf("Driver{state=%s ready=%d timers=%d}", d.state, len(d.ready), len(d.timers))
}
