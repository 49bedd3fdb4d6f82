package gofiber

// WaitGroup is a fiber-aware counter with a FIFO waiter queue, analogous to
// sync.WaitGroup but suspending fibers instead of blocking goroutines.
// Once Wait has observed a zero counter, a later Add reopens the group:
// any fiber calling Wait again parks until the counter returns to zero.
type WaitGroup struct {
	driver  *Driver
	counter int
	waiters []*Fiber
}

// NewWaitGroup creates an empty WaitGroup bound to the fiber's Driver.
func NewWaitGroup(f *Fiber) *WaitGroup {
	return &WaitGroup{driver: f.driver}
}

// Add adjusts the counter by delta, which may be negative. It never parks.
// Decrementing the counter below zero is a usage error: Add returns a
// *UsageError and leaves the counter unchanged rather than letting it go
// negative.
func (wg *WaitGroup) Add(delta int) error {
	if wg.counter+delta < 0 {
		return &UsageError{Message: "waitgroup counter decremented below zero"}
	}
	wg.counter += delta
	if wg.counter <= 0 {
		waiters := wg.waiters
		wg.waiters = nil
		for _, w := range waiters {
			if w.status == FiberSuspended {
				w.status = FiberReady
				wg.driver.ready = append(wg.driver.ready, w)
			}
		}
	}
	return nil
}

// Done decrements the counter by one, equivalent to Add(-1).
func (wg *WaitGroup) Done() error { return wg.Add(-1) }

// Wait parks the calling fiber until the counter reaches zero. If the
// counter is already zero, Wait returns immediately without suspending.
func (wg *WaitGroup) Wait(f *Fiber) {
	if wg.counter <= 0 {
		return
	}
	f.status = FiberSuspended
	wg.waiters = append(wg.waiters, f)
	f.park()
}
