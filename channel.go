package gofiber

// Channel is a buffered or unbuffered rendezvous point between fibers.
// Writers and readers park in FIFO order: when a channel has buffer
// capacity free, Write appends immediately; otherwise it parks until a
// reader arrives. Symmetrically, Read pops a buffered value immediately,
// or hands off directly from a parked writer, or parks until a writer
// arrives. A buffered channel never has both a parked reader and a parked
// writer at the same time, since either side drains the buffer before
// parking the other.
type Channel[T any] struct {
	driver   *Driver
	creator  *Fiber
	activated bool

	capacity int
	buffer   []T

	parkedReaders []*Fiber
	parkedWriters []parkedWrite[T]
	selectWaiters []*Fiber

	isClosed bool

	// writerRefs and readerRefs track caller-held Writer/Reader handles by
	// weak pointer, so this channel can tell when every handle on one side
	// has become unreachable and perform the garbage-collection close
	// described on NewWriter/NewReader, without requiring an explicit Close.
	writerRefs     *weakRegistry[Writer[T]]
	readerRefs     *weakRegistry[Reader[T]]
	writerRefsSeen bool
	readerRefsSeen bool
}

// Writer is a caller-held handle for writing to a Channel. A fiber that
// only ever writes through a Writer, and lets its last reference to that
// Writer go out of scope without an explicit Close, causes any parked
// reader to observe the channel as closed on the next scavenge pass — the
// garbage-collection close from spec §4.4's "last writer reference gone"
// rule. That pass runs only at the start of a Read or Write on the
// channel, so a reader already parked on a channel that sees no further
// Read or Write is not woken by it.
type Writer[T any] struct{ ch *Channel[T] }

// NewWriter returns a new write-side handle on c, registered for
// garbage-collection tracking.
func (c *Channel[T]) NewWriter() *Writer[T] {
	if c.writerRefs == nil {
		c.writerRefs = newWeakRegistry[Writer[T]]()
	}
	w := &Writer[T]{ch: c}
	c.writerRefs.register(w)
	c.writerRefsSeen = true
	return w
}

// Write writes v through this handle's channel.
func (w *Writer[T]) Write(f *Fiber, v T) error { return w.ch.Write(f, v) }

// closed has a value receiver for the same reason as Subscription's: the
// weakRegistry constraint is checked against Writer[T] itself, not
// *Writer[T].
func (w Writer[T]) closed() bool { return w.ch.isClosed }

// Reader is a caller-held handle for reading from a Channel. Symmetric to
// Writer: the last Reader reference going out of scope causes any parked
// writer to fail, per spec §4.4's "last reader reference gone" rule, on
// the next scavenge pass, which likewise runs only inside a Read or Write.
type Reader[T any] struct{ ch *Channel[T] }

// NewReader returns a new read-side handle on c, registered for
// garbage-collection tracking.
func (c *Channel[T]) NewReader() *Reader[T] {
	if c.readerRefs == nil {
		c.readerRefs = newWeakRegistry[Reader[T]]()
	}
	r := &Reader[T]{ch: c}
	c.readerRefs.register(r)
	c.readerRefsSeen = true
	return r
}

// Read reads from this handle's channel.
func (r *Reader[T]) Read(f *Fiber) (v T, ok bool, err error) { return r.ch.Read(f) }

func (r Reader[T]) closed() bool { return r.ch.isClosed }

// scavengeRefs sweeps the writer-side and reader-side handle registries
// and performs the garbage-collection close once every handle on either
// side has become unreachable. A channel that never hands out a Writer or
// Reader handle (the common case of calling Write/Read directly) never
// registers anything here and this is a no-op.
func (c *Channel[T]) scavengeRefs() {
	if c.isClosed {
		return
	}
	if c.writerRefs != nil {
		c.writerRefs.scavenge(20)
		if c.writerRefsSeen && len(c.writerRefs.data) == 0 {
			c.gcClose()
			return
		}
	}
	if c.readerRefs != nil {
		c.readerRefs.scavenge(20)
		if c.readerRefsSeen && len(c.readerRefs.data) == 0 {
			c.gcClose()
		}
	}
}

type parkedWrite[T any] struct {
	fiber *Fiber
	value T
}

// NewChannel creates a Channel with the given buffer capacity (0 for an
// unbuffered rendezvous channel), owned by the Context of the fiber that
// creates it.
func NewChannel[T any](f *Fiber, capacity int) *Channel[T] {
	return &Channel[T]{driver: f.driver, creator: f, capacity: capacity}
}

// checkActivation enforces the misuse rule: a Write or Read by the
// creating fiber fails with a UsageError until some other fiber has
// written to or read from the channel, which can only happen after the
// creator has yielded. The creator's yield alone does not activate the
// channel: a creator that yields and then uses a channel no other fiber
// has touched still gets the UsageError. This catches the common bug of a
// fiber creating a channel and immediately blocking on it itself with no
// other fiber ever able to run to unblock it. This is the newer, throwing
// semantics; the legacy silent pass-through behavior is not implemented.
func (c *Channel[T]) checkActivation(f *Fiber) error {
	if !c.activated {
		if f == c.creator {
			return &UsageError{Message: "channel activated from within its creating fiber before yielding"}
		}
		c.activated = true
	}
	return nil
}

// Write sends v on the channel. If a reader is already parked, v is handed
// to it directly and the calling fiber yields once before returning. If
// buffer space is free, Write returns immediately; otherwise it parks the
// calling fiber until a reader arrives or the channel closes.
func (c *Channel[T]) Write(f *Fiber, v T) error {
	if c.isClosed {
		return &ClosedError{Resource: "channel"}
	}
	if err := c.checkActivation(f); err != nil {
		return err
	}
	c.scavengeRefs()
	if c.isClosed {
		return &ClosedError{Resource: "channel"}
	}

	if len(c.parkedReaders) > 0 {
		reader := c.parkedReaders[0]
		c.parkedReaders = c.parkedReaders[1:]
		reader.awaitResult = v
		reader.awaitErr = nil
		if reader.status == FiberSuspended {
			reader.status = FiberReady
			c.driver.ready = append(c.driver.ready, reader)
		}
		c.wakeSelectWaiters()
		// Yield so the reader's resumption is observed before this
		// writer proceeds, preserving tick-order FIFO delivery.
		f.Yield()
		return nil
	}

	if len(c.buffer) < c.capacity {
		c.buffer = append(c.buffer, v)
		c.wakeSelectWaiters()
		return nil
	}

	f.status = FiberSuspended
	f.awaitErr = nil
	c.parkedWriters = append(c.parkedWriters, parkedWrite[T]{fiber: f, value: v})
	// A parked writer with a pending value makes the channel non-blocking
	// for a reader (WillBlock checks parkedWriters), so any Select waiting
	// on this channel needs to be woken to re-check, the same as the
	// buffered-append path above.
	c.wakeSelectWaiters()
	f.park()
	if f.awaitErr != nil {
		return f.awaitErr
	}
	return nil
}

// Read receives a value from the channel. ok is false only when the
// channel is closed and drained (buffer empty, no parked writer): the zero
// value of T is returned in that case.
func (c *Channel[T]) Read(f *Fiber) (v T, ok bool, err error) {
	if err := c.checkActivation(f); err != nil {
		return v, false, err
	}
	c.scavengeRefs()

	if len(c.buffer) > 0 {
		v = c.buffer[0]
		c.buffer = c.buffer[1:]
		c.wakeOneWriter()
		return v, true, nil
	}

	if len(c.parkedWriters) > 0 {
		pw := c.parkedWriters[0]
		c.parkedWriters = c.parkedWriters[1:]
		if pw.fiber.status == FiberSuspended {
			pw.fiber.status = FiberReady
			c.driver.ready = append(c.driver.ready, pw.fiber)
		}
		return pw.value, true, nil
	}

	if c.isClosed {
		return v, false, nil
	}

	f.status = FiberSuspended
	f.awaitClosed = false
	c.parkedReaders = append(c.parkedReaders, f)
	f.park()
	if f.awaitClosed {
		return v, false, nil
	}
	return f.awaitResult.(T), true, nil
}

// wakeOneWriter moves one buffer slot's worth of capacity to the head
// parked writer, if any, after a Read drained the buffer by one.
func (c *Channel[T]) wakeOneWriter() {
	if len(c.parkedWriters) == 0 {
		return
	}
	pw := c.parkedWriters[0]
	c.parkedWriters = c.parkedWriters[1:]
	c.buffer = append(c.buffer, pw.value)
	if pw.fiber.status == FiberSuspended {
		pw.fiber.status = FiberReady
		c.driver.ready = append(c.driver.ready, pw.fiber)
	}
}

// Close closes the channel: pending buffered values remain readable, but
// any parked writer is woken with a ClosedError and any parked reader
// receives ok=false once the buffer (and any already-handed-off values)
// are drained.
func (c *Channel[T]) Close() error {
	if c.isClosed {
		return &ClosedError{Resource: "channel"}
	}
	c.gcClose()
	return nil
}

// gcClose performs the same state transition and wakeups as an explicit
// Close, shared with the garbage-collection close that scavengeRefs
// triggers once every Writer or every Reader handle has become
// unreachable. Both directions converge on the same fully-closed state:
// a writer-side collection wakes parked readers with the closed sentinel,
// a reader-side collection fails parked writers, and either one leaves
// the channel closed for everything that follows, same as an explicit
// Close.
func (c *Channel[T]) gcClose() {
	c.isClosed = true
	for _, pw := range c.parkedWriters {
		pw.fiber.awaitErr = &ClosedError{Resource: "channel"}
		if pw.fiber.status == FiberSuspended {
			pw.fiber.status = FiberReady
			c.driver.ready = append(c.driver.ready, pw.fiber)
		}
	}
	c.parkedWriters = nil
	for _, r := range c.parkedReaders {
		r.awaitErr = nil
		r.awaitResult = nil
		r.awaitClosed = true
		if r.status == FiberSuspended {
			r.status = FiberReady
			c.driver.ready = append(c.driver.ready, r)
		}
	}
	c.parkedReaders = nil
	c.wakeSelectWaiters()
}

// WillBlock reports whether an immediate Read would have to park the
// calling fiber, for use with Select.
func (c *Channel[T]) WillBlock() bool {
	return len(c.buffer) == 0 && len(c.parkedWriters) == 0 && !c.isClosed
}

func (c *Channel[T]) closed() bool { return c.isClosed }

// registerWaiter and unregisterWaiter implement Selectable: f is woken (but
// not handed a value — Select re-checks WillBlock and performs the real
// Read itself) whenever the channel's readability might have changed.
func (c *Channel[T]) registerWaiter(f *Fiber) {
	c.selectWaiters = append(c.selectWaiters, f)
}

func (c *Channel[T]) unregisterWaiter(f *Fiber) {
	for i, w := range c.selectWaiters {
		if w == f {
			c.selectWaiters = append(c.selectWaiters[:i], c.selectWaiters[i+1:]...)
			return
		}
	}
}

func (c *Channel[T]) wakeSelectWaiters() {
	waiters := c.selectWaiters
	c.selectWaiters = nil
	for _, w := range waiters {
		if w.status == FiberSuspended {
			w.status = FiberReady
			c.driver.ready = append(c.driver.ready, w)
		}
	}
}
