package gofiber

// Publisher is a one-writer/many-reader broadcast primitive. Each
// Subscription has its own cursor into the publisher's backlog; a slow
// subscriber applies backpressure to the writer once its unread backlog
// exceeds the high-water mark, but one subscriber falling behind (or
// unsubscribing early) never starves the others.
type Publisher[T any] struct {
	driver    *Driver
	creator   *Fiber
	activated bool

	highWater int
	backlog   []T
	baseSeq   int // backlog[i] has sequence number baseSeq+i

	subs *weakRegistry[Subscription[T]]

	parkedWriter *Fiber

	isClosed bool
}

// Subscription is one reader's view of a Publisher's broadcast stream.
type Subscription[T any] struct {
	pub    *Publisher[T]
	cursor int // next sequence number this subscription hasn't read yet

	parked        *Fiber
	selectWaiters []*Fiber
	done          bool
}

// WillBlock reports whether an immediate Read would have to park the
// calling fiber, for use with Select.
func (s *Subscription[T]) WillBlock() bool {
	idx := s.cursor - s.pub.baseSeq
	return !(idx >= 0 && idx < len(s.pub.backlog)) && !s.pub.isClosed
}

func (s *Subscription[T]) registerWaiter(f *Fiber) {
	s.selectWaiters = append(s.selectWaiters, f)
}

func (s *Subscription[T]) unregisterWaiter(f *Fiber) {
	for i, w := range s.selectWaiters {
		if w == f {
			s.selectWaiters = append(s.selectWaiters[:i], s.selectWaiters[i+1:]...)
			return
		}
	}
}

func (s *Subscription[T]) wakeSelectWaiters() {
	waiters := s.selectWaiters
	s.selectWaiters = nil
	for _, w := range waiters {
		if w.status == FiberSuspended {
			w.status = FiberReady
			s.pub.driver.ready = append(s.pub.driver.ready, w)
		}
	}
}

// NewPublisher creates a Publisher owned by the Context of the fiber that
// creates it. highWater bounds how far a subscriber may fall behind before
// Write parks the writer to apply backpressure.
func NewPublisher[T any](f *Fiber, highWater int) *Publisher[T] {
	return &Publisher[T]{
		driver:    f.driver,
		creator:   f,
		highWater: highWater,
		subs:      newWeakRegistry[Subscription[T]](),
	}
}

func (p *Publisher[T]) checkActivation(f *Fiber) error {
	if !p.activated {
		if f == p.creator {
			return &UsageError{Message: "publisher activated from within its creating fiber before yielding"}
		}
		p.activated = true
	}
	return nil
}

// Subscribe returns a new Subscription that observes every value written
// from this point forward.
func (p *Publisher[T]) Subscribe() *Subscription[T] {
	sub := &Subscription[T]{pub: p, cursor: p.baseSeq + len(p.backlog)}
	p.subs.register(sub)
	return sub
}

// Write broadcasts v to every live subscription. If any subscription's
// unread backlog would exceed highWater, Write parks the calling fiber
// until that subscription catches up or unsubscribes, but never waits on a
// subscription that has already unsubscribed or been garbage collected.
func (p *Publisher[T]) Write(f *Fiber, v T) error {
	if p.isClosed {
		return &ClosedError{Resource: "publisher"}
	}
	if err := p.checkActivation(f); err != nil {
		return err
	}

	p.backlog = append(p.backlog, v)
	p.wakeSubscribers()
	p.subs.scavenge(20)

	if p.highWater > 0 && p.maxBacklogFor() > p.highWater {
		f.status = FiberSuspended
		p.parkedWriter = f
		f.park()
		p.parkedWriter = nil
	}

	p.trimBacklog()
	return nil
}

// maxBacklogFor returns the largest unread-backlog size across live
// subscriptions.
func (p *Publisher[T]) maxBacklogFor() int {
	best := 0
	for id := range p.subs.data {
		sub := wp_value(p.subs, id)
		if sub == nil || sub.done {
			continue
		}
		n := (p.baseSeq + len(p.backlog)) - sub.cursor
		if n > best {
			best = n
		}
	}
	return best
}

// wakeSubscribers resumes any subscription fiber parked waiting for new data.
func (p *Publisher[T]) wakeSubscribers() {
	for id := range p.subs.data {
		sub := wp_value(p.subs, id)
		if sub == nil || sub.done {
			continue
		}
		if sub.parked != nil && sub.parked.status == FiberSuspended {
			f := sub.parked
			sub.parked = nil
			f.status = FiberReady
			p.driver.ready = append(p.driver.ready, f)
		}
		sub.wakeSelectWaiters()
	}
}

// trimBacklog drops entries every live subscription has already read, and
// wakes the parked writer once backpressure has eased.
func (p *Publisher[T]) trimBacklog() {
	minCursor := p.baseSeq + len(p.backlog)
	hasLive := false
	for id := range p.subs.data {
		sub := wp_value(p.subs, id)
		if sub == nil || sub.done {
			continue
		}
		hasLive = true
		if sub.cursor < minCursor {
			minCursor = sub.cursor
		}
	}
	if !hasLive {
		minCursor = p.baseSeq + len(p.backlog)
	}
	if minCursor > p.baseSeq {
		drop := minCursor - p.baseSeq
		if drop > len(p.backlog) {
			drop = len(p.backlog)
		}
		p.backlog = p.backlog[drop:]
		p.baseSeq += drop
	}
	if p.parkedWriter != nil && p.maxBacklogFor() <= p.highWater && p.parkedWriter.status == FiberSuspended {
		w := p.parkedWriter
		w.status = FiberReady
		p.driver.ready = append(p.driver.ready, w)
	}
}

// Close closes the publisher; every live subscription observes end-of-stream
// once it has drained any remaining backlog.
func (p *Publisher[T]) Close() error {
	if p.isClosed {
		return &ClosedError{Resource: "publisher"}
	}
	p.isClosed = true
	p.wakeSubscribers()
	return nil
}

func (p *Publisher[T]) closed() bool { return p.isClosed }

// Read receives the next value for this subscription, parking the calling
// fiber until the publisher writes one or closes. ok is false once the
// subscription has drained the backlog of a closed publisher.
func (s *Subscription[T]) Read(f *Fiber) (v T, ok bool, err error) {
	// A read by any fiber other than the creator proves the creator has
	// yielded since creating the publisher, so it activates it.
	if f != s.pub.creator {
		s.pub.activated = true
	}
	for {
		idx := s.cursor - s.pub.baseSeq
		if idx >= 0 && idx < len(s.pub.backlog) {
			v = s.pub.backlog[idx]
			s.cursor++
			s.pub.trimBacklog()
			return v, true, nil
		}
		if s.pub.isClosed {
			return v, false, nil
		}
		f.status = FiberSuspended
		s.parked = f
		f.park()
	}
}

// Unsubscribe stops this subscription from applying backpressure to the
// publisher and releases it from the publisher's registry on the next
// scavenge pass, the same outcome as simply dropping the last reference to
// it.
func (s *Subscription[T]) Unsubscribe() {
	s.done = true
	s.pub.trimBacklog()
}

// closed has a value receiver, not a pointer receiver: weakRegistry's type
// constraint requires Subscription[T] itself (not *Subscription[T]) to
// satisfy scavengable, since it stores weak.Pointer[Subscription[T]].
func (s Subscription[T]) closed() bool { return s.done }

// wp_value is a tiny helper that looks a weak-pointer-tracked value back up
// by id, returning nil if it has been garbage collected.
func wp_value[T scavengable](r *weakRegistry[T], id uint64) *T {
	wp, ok := r.data[id]
	if !ok {
		return nil
	}
	return wp.Value()
}
