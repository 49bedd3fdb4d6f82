package gofiber

// FiberStatus is the tagged state of a Fiber. Exactly one active fiber is
// ever in FiberRunning at a time across an entire Driver, since the Driver
// blocks on the running fiber's yield channel until it suspends or
// terminates (see fiber.go) — no lock is required to read or write a
// Fiber's status field, because the only goroutine ever observing or
// mutating it outside the fiber's own body is the Driver, and the Driver
// only does so while that fiber is provably not running.
type FiberStatus int

const (
	// FiberPending is the state of a Fiber between creation and its first resume.
	FiberPending FiberStatus = iota
	// FiberReady means the fiber is sitting in the Driver's ready queue.
	FiberReady
	// FiberRunning means the fiber's body is currently executing.
	FiberRunning
	// FiberSuspended means the fiber has yielded control and is parked
	// somewhere (a timer, an I/O wait, a channel, a future, a wait group).
	FiberSuspended
	// FiberCompleted means the fiber's body returned a value without error.
	FiberCompleted
	// FiberFailed means the fiber's body returned an error or panicked.
	FiberFailed
)

func (s FiberStatus) String() string {
	switch s {
	case FiberPending:
		return "Pending"
	case FiberReady:
		return "Ready"
	case FiberRunning:
		return "Running"
	case FiberSuspended:
		return "Suspended"
	case FiberCompleted:
		return "Completed"
	case FiberFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is a state a Fiber never leaves.
func (s FiberStatus) Terminal() bool {
	return s == FiberCompleted || s == FiberFailed
}

// DriverState is the lifecycle state of a Driver.
//
// State transitions:
//
//	Awake -> Running        [Run]
//	Running -> Sleeping     [tick blocks in the readiness poll]
//	Sleeping -> Running     [tick wakes from the readiness poll]
//	Running -> Terminated   [the root context goes terminal]
//
// No code path enters DriverTerminating.
//
// These values carry no enforced numeric ordering: there is exactly one
// goroutine ever inspecting or mutating DriverState (the Driver's own),
// so there is no CAS/backward-compatibility concern to encode in the
// constant values.
type DriverState int

const (
	DriverAwake DriverState = iota
	DriverRunning
	DriverSleeping
	DriverTerminating
	DriverTerminated
)

func (s DriverState) String() string {
	switch s {
	case DriverAwake:
		return "Awake"
	case DriverRunning:
		return "Running"
	case DriverSleeping:
		return "Sleeping"
	case DriverTerminating:
		return "Terminating"
	case DriverTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}
