package gofiber

import (
	"container/heap"
	"runtime/debug"
	"time"
)

// Fiber is a suspendable unit of execution. Every Fiber runs on its own
// goroutine, but the Driver ensures only one Fiber's body ever executes at
// a time: the Driver resumes a Fiber by sending on resumeCh and blocks
// receiving from yieldCh until that Fiber next suspends or terminates.
// Between those two events, the running Fiber's goroutine may freely read
// and mutate Driver- and Context-owned state without synchronization,
// because the Driver is provably idle until the receive returns.
type Fiber struct {
	id     uint64
	driver *Driver
	ctx    *Context

	status FiberStatus

	resumeCh chan resumeSignal
	yieldCh  chan yieldSignal

	entry func(*Fiber) (any, error)

	resultValue any
	resultErr   error

	// waiters are fibers parked in Await(f), delivered this fiber's
	// result (the same value/error to every one of them) once it
	// terminates.
	waiters []*Fiber

	// awaitResult/awaitErr are filled in by whichever fiber this one is
	// currently awaiting, just before this fiber is moved back to ready.
	awaitResult any
	awaitErr    error
	// awaitClosed is set by Channel.Close when it wakes a parked reader
	// with no value to deliver, distinguishing that case from a nil
	// awaitErr that accompanies a genuine handed-off value.
	awaitClosed bool

	// ioEvents is filled in by the Driver's poller dispatch just before
	// a fiber parked in Readable/Writable is moved back to ready.
	ioEvents IOEvents

	deferred []func() // LIFO cleanup stack

	startedAt   time.Time
	lastResumed time.Time

	awaiting *Fiber // set while parked in Await, for deadlock-cycle detection
}

// ID returns the fiber's identity, stable for its lifetime and unique
// within the Driver that created it.
func (f *Fiber) ID() uint64 { return f.id }

// Status returns the fiber's current tagged state.
func (f *Fiber) Status() FiberStatus { return f.status }

// spawn creates a Fiber bound to ctx running entry, and starts its
// goroutine, which immediately blocks waiting for its first resume.
func (d *Driver) spawn(ctx *Context, entry func(*Fiber) (any, error)) *Fiber {
	f := &Fiber{
		id:       d.newFiberID(),
		driver:   d,
		ctx:      ctx,
		status:   FiberPending,
		resumeCh: make(chan resumeSignal),
		yieldCh:  make(chan yieldSignal),
		entry:    entry,
	}
	ctx.addFiber(f)
	go f.body()
	return f
}

// body is the fiber's goroutine entry point: it waits for the initial
// resume, runs entry, runs deferred cleanups, and reports completion.
func (f *Fiber) body() {
	<-f.resumeCh
	f.startedAt = f.driver.now

	var (
		val any
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r, Stack: debug.Stack()}
				fiberEvent(f.driver.logger, f).Interface("panic", r).Msg("fiber panicked")
			}
		}()
		val, err = f.entry(f)
	}()

	f.runDeferred()

	f.resultValue, f.resultErr = val, err
	if err != nil {
		f.status = FiberFailed
	} else {
		f.status = FiberCompleted
	}
	f.yieldCh <- yieldSignal{kind: yDone}
}

// runDeferred invokes the LIFO defer stack exactly once, on the terminal
// path (normal return, error return, or panic), isolating each callback's
// panic so one misbehaving cleanup doesn't skip the rest.
func (f *Fiber) runDeferred() {
	for i := len(f.deferred) - 1; i >= 0; i-- {
		fn := f.deferred[i]
		func() {
			defer func() {
				if r := recover(); r != nil {
					f.driver.logger.Error().Interface("panic", r).Uint64("fiber_id", f.id).Msg("deferred cleanup panicked")
				}
			}()
			fn()
		}()
	}
	f.deferred = nil
}

// park hands control back to the Driver, recording why, and blocks until
// resumed. The caller must already have placed f wherever it needs to wait
// (a timer heap, a channel's parked queue, the ready queue, a poller
// registration) before calling park.
func (f *Fiber) park() resumeSignal {
	f.yieldCh <- yieldSignal{kind: ySuspend}
	return <-f.resumeCh
}

// Go spawns a new Fiber running entry within f's Context, and schedules it
// onto the ready queue. The returned Fiber can be awaited, and is itself a
// future.
func (f *Fiber) Go(entry func(*Fiber) (any, error)) *Fiber {
	child := f.driver.spawn(f.ctx, entry)
	child.status = FiberReady
	f.driver.ready = append(f.driver.ready, child)
	return child
}

// Run spawns a nested Context, runs entry as its sole initial fiber, and
// blocks the calling fiber until every fiber in that nested context has
// terminated, returning the nested root fiber's result the same way the
// package-level Run does for the outermost context.
func (f *Fiber) Run(entry func(*Fiber) (any, error)) (any, error) {
	ctx := newContext(f.driver, f.ctx)
	if err := ctx.Activate(); err != nil {
		return nil, err
	}
	f.driver.pushContext(ctx)
	defer f.driver.popContext()

	root := f.driver.spawn(ctx, entry)
	root.status = FiberReady
	f.driver.ready = append(f.driver.ready, root)

	for !ctx.isDone() {
		f.Yield()
	}

	if len(ctx.unhandledErrs) > 1 {
		return nil, &AggregateError{Errors: ctx.unhandledErrs}
	}
	if root.resultErr == nil && len(ctx.unhandledErrs) == 1 {
		return root.resultValue, ctx.unhandledErrs[0]
	}
	return root.resultValue, root.resultErr
}

// Yield suspends the calling fiber and re-enqueues it at the tail of the
// ready queue, giving every other ready fiber a turn first.
func (f *Fiber) Yield() {
	f.status = FiberReady
	f.driver.ready = append(f.driver.ready, f)
	f.park()
}

// Sleep suspends the calling fiber until d has elapsed. d <= 0 behaves
// like Yield.
func (f *Fiber) Sleep(d time.Duration) {
	if d <= 0 {
		f.Yield()
		return
	}
	f.status = FiberSuspended
	seq := f.driver.nextTimerSeq
	f.driver.nextTimerSeq++
	heap.Push(&f.driver.timers, &timerEntry{deadline: f.driver.now.Add(d), seq: seq, fiber: f})
	f.park()
}

// Preempt voluntarily yields only if the fiber has been running longer
// than the Driver's configured preemption budget, and is a no-op
// otherwise. Long CPU-bound loops should call this periodically so they
// don't starve the rest of the ready queue. Preempt reads the clock fresh
// rather than using the Driver's tick-cached now, since a single resume
// that never yields would otherwise never observe elapsed time at all —
// the cached now only advances at the start of the next tick, which this
// fiber's own uninterrupted resume is what's preventing.
func (f *Fiber) Preempt() {
	if f.driver.clock.Now().Sub(f.lastResumed) >= f.driver.preemptionBudget {
		f.Yield()
	}
}

// Defer pushes fn onto the fiber's LIFO cleanup stack, invoked exactly
// once, in reverse registration order, on the fiber's terminal path.
func (f *Fiber) Defer(fn func()) {
	f.deferred = append(f.deferred, fn)
}

// AwaitAll awaits every fiber in fibers, returning their results in the
// same order. If more than one failed, the returned error is an
// AggregateError collecting every failure; if exactly one failed, that
// error is returned directly.
func (f *Fiber) AwaitAll(fibers ...*Fiber) ([]any, error) {
	results := make([]any, len(fibers))
	var errs []error
	for i, child := range fibers {
		v, err := f.Await(child)
		results[i] = v
		if err != nil {
			errs = append(errs, err)
		}
	}
	switch len(errs) {
	case 0:
		return results, nil
	case 1:
		return results, errs[0]
	default:
		return results, &AggregateError{Errors: errs}
	}
}

// Await suspends the calling fiber until other terminates, then returns
// other's result value and error — the same pair is returned to every
// fiber that awaits other, however many there are. If other has already
// terminated, Await returns immediately without suspending. A cycle of
// fibers awaiting one another (A awaits B awaits ... awaits A) is
// detected and reported as a DeadlockError instead of hanging forever.
func (f *Fiber) Await(other *Fiber) (any, error) {
	if other.status.Terminal() {
		return other.resultValue, other.resultErr
	}
	if cycle := detectCycle(f, other); cycle != nil {
		return nil, &DeadlockError{Cycle: cycle}
	}
	f.status = FiberSuspended
	f.awaiting = other
	other.waiters = append(other.waiters, f)
	f.park()
	f.awaiting = nil
	return f.awaitResult, f.awaitErr
}

// detectCycle walks the awaiting-chain starting at target to see whether
// it eventually reaches from, which would mean from awaiting target closes
// a cycle. Returns the cycle of fiber IDs if one is found.
func detectCycle(from, target *Fiber) []uint64 {
	seen := map[uint64]bool{from.id: true}
	cycle := []uint64{from.id}
	cur := target
	for cur != nil {
		if seen[cur.id] {
			return cycle
		}
		seen[cur.id] = true
		cycle = append(cycle, cur.id)
		cur = cur.awaiting
	}
	return nil
}

// Readable suspends the calling fiber until fd is ready for reading,
// returning the observed event set.
func (f *Fiber) Readable(fd int) (IOEvents, error) {
	return f.waitIO(fd, EventRead)
}

// Writable suspends the calling fiber until fd is ready for writing,
// returning the observed event set.
func (f *Fiber) Writable(fd int) (IOEvents, error) {
	return f.waitIO(fd, EventWrite)
}

func (f *Fiber) waitIO(fd int, want IOEvents) (IOEvents, error) {
	if err := f.driver.ensurePoller(); err != nil {
		return 0, err
	}
	if err := f.driver.poller.registerFD(fd, want, fdWaiter{fiber: f, events: want}); err != nil {
		return 0, err
	}
	f.driver.readWaiters++
	f.status = FiberSuspended
	f.park()
	f.driver.readWaiters--
	_ = f.driver.poller.unregisterFD(fd)
	return f.ioEvents, nil
}

// Idle suspends the calling fiber until the Driver's ready queue (aside
// from this fiber) is empty and, if any timer is pending, the next timer
// deadline is further away than horizon. It reports whether it actually
// had to wait before that condition held.
func (f *Fiber) Idle(horizon time.Duration) bool {
	waited := false
	for {
		if len(f.driver.ready) == 0 {
			deadline, hasTimer := f.driver.timers.peekDeadline()
			if !hasTimer || deadline.Sub(f.driver.now) >= horizon {
				return waited
			}
		}
		waited = true
		f.Yield()
	}
}
