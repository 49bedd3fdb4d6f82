package gofiber

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsRootFiberResult(t *testing.T) {
	v, err := Run(func(f *Fiber) (any, error) {
		return 42, nil
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

// Scenario 1 (spec §8): 5000 fibers each sleeping 0.01s inside one run
// complete in well under 0.5s of wall time, since the virtual clock
// advances on Sleep rather than blocking the test.
func TestFiveThousandSleepersCompletePromptly(t *testing.T) {
	const n = 5000
	start := time.Now()
	v, err := Run(func(f *Fiber) (any, error) {
		done := NewWaitGroup(f)
		done.Add(n)
		for i := 0; i < n; i++ {
			f.Go(func(f *Fiber) (any, error) {
				f.Sleep(10 * time.Millisecond)
				done.Done()
				return nil, nil
			})
		}
		done.Wait(f)
		return "ok", nil
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

// Scenario 3 (spec §8): a child fiber that sleeps then returns an error
// causes Run to surface that error to its caller.
func TestChildFiberErrorSurfacesWhenUnobserved(t *testing.T) {
	boom := errors.New("boom")
	_, err := Run(func(f *Fiber) (any, error) {
		f.Go(func(f *Fiber) (any, error) {
			f.Sleep(time.Second)
			return nil, boom
		})
		f.Sleep(2 * time.Second)
		return "root done", nil
	}, WithClock(newVirtualClock()))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestAwaitDeliversResultImmediatelyOnceTerminal(t *testing.T) {
	v, err := Run(func(f *Fiber) (any, error) {
		child := f.Go(func(f *Fiber) (any, error) {
			return "child result", nil
		})
		f.Yield()
		f.Yield()
		return f.Await(child)
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	assert.Equal(t, "child result", v)
}

func TestAwaitDeliversSameErrorToEveryWaiter(t *testing.T) {
	boom := errors.New("shared failure")
	v, err := Run(func(f *Fiber) (any, error) {
		child := f.Go(func(f *Fiber) (any, error) {
			return nil, boom
		})
		_, err1 := f.Await(child)
		_, err2 := f.Await(child)
		return []error{err1, err2}, nil
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	errs := v.([]error)
	assert.ErrorIs(t, errs[0], boom)
	assert.ErrorIs(t, errs[1], boom)
}

func TestSelfAwaitIsReportedAsDeadlock(t *testing.T) {
	_, err := Run(func(f *Fiber) (any, error) {
		return f.Await(f)
	}, WithClock(newVirtualClock()))
	require.Error(t, err)
	var de *DeadlockError
	assert.ErrorAs(t, err, &de)
}

// Scenario 5 (spec §8): two fibers awaiting each other in a cycle both fail
// with a deadlock error, and so does an outside await on either of them.
func TestCircularAwaitFailsBothFibersWithDeadlock(t *testing.T) {
	v, err := Run(func(f *Fiber) (any, error) {
		var f1, f2 *Fiber
		f1 = f.Go(func(f *Fiber) (any, error) {
			f.Yield()
			return f.Await(f2)
		})
		f2 = f.Go(func(f *Fiber) (any, error) {
			return f.Await(f1)
		})
		_, err1 := f.Await(f1)
		_, err2 := f.Await(f2)
		return []error{err1, err2}, nil
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	errs := v.([]error)
	var de1, de2 *DeadlockError
	require.ErrorAs(t, errs[0], &de1)
	require.ErrorAs(t, errs[1], &de2)
}

func TestDeferRunsLIFOExactlyOnce(t *testing.T) {
	var order []string
	_, err := Run(func(f *Fiber) (any, error) {
		f.Defer(func() { order = append(order, "first") })
		f.Defer(func() { order = append(order, "second") })
		f.Defer(func() { order = append(order, "third") })
		return nil, nil
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestDeferRunsOnErrorPathToo(t *testing.T) {
	var ran bool
	boom := errors.New("fail")
	_, err := Run(func(f *Fiber) (any, error) {
		f.Defer(func() { ran = true })
		return nil, boom
	}, WithClock(newVirtualClock()))
	require.ErrorIs(t, err, boom)
	assert.True(t, ran)
}

func TestPreemptYieldsOnlyPastBudget(t *testing.T) {
	clock := newVirtualClock()
	var order []string
	_, err := Run(func(f *Fiber) (any, error) {
		f.Go(func(f *Fiber) (any, error) {
			order = append(order, "other")
			return nil, nil
		})
		// Not yet past budget: Preempt is a no-op, "root" logs before "other".
		f.Preempt()
		order = append(order, "root")
		clock.now = clock.now.Add(time.Hour)
		// Now past budget: Preempt yields, letting anything ready run first.
		f.Preempt()
		order = append(order, "root-after-preempt")
		return nil, nil
	}, WithClock(clock))
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "other", "root-after-preempt"}, order)
}

func TestYieldGivesOtherFibersATurn(t *testing.T) {
	var order []string
	_, err := Run(func(f *Fiber) (any, error) {
		f.Go(func(f *Fiber) (any, error) {
			order = append(order, "child")
			return nil, nil
		})
		order = append(order, "root-before-yield")
		f.Yield()
		order = append(order, "root-after-yield")
		return nil, nil
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	assert.Equal(t, []string{"root-before-yield", "child", "root-after-yield"}, order)
}

func TestAwaitAllCollectsResultsAndAggregatesErrors(t *testing.T) {
	e1 := errors.New("e1")
	e2 := errors.New("e2")
	var results []any
	var awaitErr error
	_, err := Run(func(f *Fiber) (any, error) {
		a := f.Go(func(f *Fiber) (any, error) { return 1, nil })
		b := f.Go(func(f *Fiber) (any, error) { return nil, e1 })
		c := f.Go(func(f *Fiber) (any, error) { return nil, e2 })
		results, awaitErr = f.AwaitAll(a, b, c)
		return nil, nil
	}, WithClock(newVirtualClock()))
	// b and c fail in the same tick as a, while AwaitAll is still parked on
	// a, so no fiber is awaiting them when they terminate: both also land in
	// the root context's unhandled sink and Run aggregates them.
	var runAgg *AggregateError
	require.ErrorAs(t, err, &runAgg)
	assert.Len(t, runAgg.Errors, 2)
	assert.Equal(t, 1, results[0])
	var agg *AggregateError
	require.ErrorAs(t, awaitErr, &agg)
	assert.Len(t, agg.Errors, 2)
}

func TestNestedRunBlocksCallerUntilNestedContextTerminal(t *testing.T) {
	var order []string
	var nestedRunErr error
	_, err := Run(func(f *Fiber) (any, error) {
		f.Go(func(f *Fiber) (any, error) {
			f.Sleep(5 * time.Millisecond)
			order = append(order, "outer-sibling")
			return nil, nil
		})
		_, nestedRunErr = f.Run(func(f *Fiber) (any, error) {
			f.Sleep(time.Millisecond)
			order = append(order, "nested")
			return nil, nil
		})
		order = append(order, "after-nested-run")
		return nil, nil
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	require.NoError(t, nestedRunErr)
	assert.Equal(t, []string{"nested", "after-nested-run", "outer-sibling"}, order)
}

func TestRootFiberPanicWrapsIntoPanicError(t *testing.T) {
	_, err := Run(func(f *Fiber) (any, error) {
		panic("root blew up")
	}, WithClock(newVirtualClock()))
	require.Error(t, err)
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "root blew up", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
}

// An unobserved child's panic reaches Run the same way an unobserved
// returned error does: wrapped in a PanicError, surfaced via the
// Context's unhandled-error sink.
func TestUnobservedChildPanicSurfacesAtRun(t *testing.T) {
	_, err := Run(func(f *Fiber) (any, error) {
		f.Go(func(f *Fiber) (any, error) {
			panic("child blew up")
		})
		f.Yield()
		f.Yield()
		return "root ok", nil
	}, WithClock(newVirtualClock()))
	require.Error(t, err)
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "child blew up", panicErr.Value)
}
