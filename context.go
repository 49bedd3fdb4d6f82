package gofiber

// Context scopes the lifetime of a group of Fibers. A Context is done once
// every Fiber spawned within it (directly, via Fiber.Go, or via the nested
// Fiber.Run it owns) has reached a terminal state. Any fiber error that no
// fiber was waiting for in Await at the moment the failing fiber
// terminated is collected into the Context's single unhandled-exception
// sink instead of vanishing silently; an Await made after that still
// returns the error but does not remove it from the sink.
//
// Scheduler state is reachable through an explicit handle threaded
// through the call graph rather than hidden process-wide state: every
// Context is created by, and only reachable from, the Driver or Fiber
// that owns it.
type Context struct {
	driver *Driver
	parent *Context

	fibers map[*Fiber]struct{}

	// activated is one-shot: a Context is created inert and becomes live
	// only once Activate succeeds. A second Activate call is a usage error.
	activated bool

	unhandledErrs []error

	values map[any]any
}

func newContext(d *Driver, parent *Context) *Context {
	return &Context{
		driver: d,
		parent: parent,
		fibers: make(map[*Fiber]struct{}),
	}
}

// Activate transitions the Context from created-inert to live. It is
// one-shot: calling it a second time on the same Context returns a
// *UsageError instead of silently succeeding. Run and Fiber.Run call this
// for the Context they create; a Context obtained any other way must be
// activated before any fiber is spawned into it.
func (c *Context) Activate() error {
	if c.activated {
		return &UsageError{Message: "context activated twice"}
	}
	c.activated = true
	return nil
}

func (c *Context) addFiber(f *Fiber) {
	c.fibers[f] = struct{}{}
}

func (c *Context) removeFiber(f *Fiber) {
	delete(c.fibers, f)
}

// isDone reports whether every fiber ever spawned in this Context has
// reached a terminal state.
func (c *Context) isDone() bool {
	return len(c.fibers) == 0
}

// reportUnhandled records an error that no awaiter was waiting for when its
// fiber terminated.
func (c *Context) reportUnhandled(err error) {
	c.unhandledErrs = append(c.unhandledErrs, err)
	c.driver.logger.Error().Err(err).Msg("unhandled fiber error")
}

// Value looks up a key set with SetValue in this Context or any ancestor,
// nearest scope first.
func (c *Context) Value(key any) (any, bool) {
	for cur := c; cur != nil; cur = cur.parent {
		if cur.values != nil {
			if v, ok := cur.values[key]; ok {
				return v, true
			}
		}
	}
	return nil, false
}

// SetValue attaches a key/value pair to this Context, visible to this
// Context and any nested Context created under it.
func (c *Context) SetValue(key, value any) {
	if c.values == nil {
		c.values = make(map[any]any)
	}
	c.values[key] = value
}

// Context returns the Context the calling fiber belongs to.
func (f *Fiber) Context() *Context { return f.ctx }
