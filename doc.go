// Package gofiber provides a single-threaded cooperative fiber runtime:
// many suspendable Fibers are multiplexed onto one logical thread of
// execution by a Driver, the way PHP's phasync library schedules fibers
// onto a single event loop.
//
// # Architecture
//
// A [Driver] owns a ready queue, a timer heap, platform I/O readiness
// polling, idle watchers, and an end-of-tick deferred queue. [Fiber]s are
// spawned within a [Context], which scopes their lifetime and collects any
// unhandled error from fibers it owns. [Channel], [Publisher], [WaitGroup],
// and [Select] are the coordination primitives fibers use to suspend and
// resume each other; every Fiber is itself awaitable as a future.
//
// # Concurrency model
//
// Exactly one fiber's body ever executes at a time, even though each fiber
// is implemented as its own goroutine: the Driver resumes a fiber by
// sending on its resume channel and then blocks receiving on its yield
// channel until that fiber suspends or terminates. Because the Driver does
// nothing else while blocked this way, no locks are required to access
// Driver-owned state (the ready queue, timer heap, parked-waiter lists)
// from inside the currently-running fiber's goroutine.
//
// # Platform support
//
// I/O readiness is polled using platform-native mechanisms: epoll on
// Linux, kqueue on Darwin, and an IOCP-backed poller on Windows.
//
// # Usage
//
//	result, err := gofiber.Run(func(f *gofiber.Fiber) (any, error) {
//	    child := f.Go(func(f *gofiber.Fiber) (any, error) {
//	        f.Sleep(100 * time.Millisecond)
//	        return "done", nil
//	    })
//	    return f.Await(child)
//	})
package gofiber
