package gofiber

// Selectable is anything Select can wait on: a Channel or a Publisher
// Subscription. WillBlock reports whether an immediate operation on it
// would suspend the calling fiber; registerWaiter/unregisterWaiter let
// Select park on all of them at once and be woken by whichever becomes
// ready first.
type Selectable interface {
	WillBlock() bool
	registerWaiter(f *Fiber)
	unregisterWaiter(f *Fiber)
}

// Select returns the index of the first selectable in options that would
// not block, parking the calling fiber only if every option would
// currently block. Once one becomes ready, Select returns its index; the
// caller is responsible for performing the actual Read/Write against it
// (Select only identifies which one is ready, to avoid committing to an
// operation on behalf of the caller).
func Select(f *Fiber, options ...Selectable) (int, error) {
	if len(options) == 0 {
		return -1, ErrNoSelectables
	}
	for {
		for i, opt := range options {
			if !opt.WillBlock() {
				return i, nil
			}
		}
		for _, opt := range options {
			opt.registerWaiter(f)
		}
		f.status = FiberSuspended
		f.park()
		for _, opt := range options {
			opt.unregisterWaiter(f)
		}
	}
}
