package gofiber

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitGroupReturnsImmediatelyWhenAlreadyZero(t *testing.T) {
	var waited bool
	_, err := Run(func(f *Fiber) (any, error) {
		wg := NewWaitGroup(f)
		wg.Wait(f)
		waited = true
		return nil, nil
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	assert.True(t, waited)
}

// Scenario 4 (spec §8): add() x3, three fibers each sleep then done(); wait()
// returns only after every one of them has completed.
func TestWaitGroupWaitReturnsAfterAllThreeDone(t *testing.T) {
	var doneCount int
	_, err := Run(func(f *Fiber) (any, error) {
		wg := NewWaitGroup(f)
		wg.Add(3)
		for i := 0; i < 3; i++ {
			f.Go(func(f *Fiber) (any, error) {
				f.Sleep(100 * time.Millisecond)
				doneCount++
				wg.Done()
				return nil, nil
			})
		}
		wg.Wait(f)
		return doneCount, nil
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	assert.Equal(t, 3, doneCount)
}

func TestWaitGroupDecrementBelowZeroIsUsageError(t *testing.T) {
	var doneErr error
	var counterAfter int
	_, err := Run(func(f *Fiber) (any, error) {
		wg := NewWaitGroup(f)
		doneErr = wg.Done()
		counterAfter = wg.counter
		return nil, nil
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	var usageErr *UsageError
	require.ErrorAs(t, doneErr, &usageErr)
	assert.Equal(t, 0, counterAfter)
}

func TestWaitGroupReopensAfterObservingZero(t *testing.T) {
	var secondWaitReturned bool
	_, err := Run(func(f *Fiber) (any, error) {
		wg := NewWaitGroup(f)
		wg.Wait(f) // counter already zero, returns immediately

		wg.Add(1)
		f.Go(func(f *Fiber) (any, error) {
			f.Sleep(10 * time.Millisecond)
			wg.Done()
			return nil, nil
		})
		wg.Wait(f)
		secondWaitReturned = true
		return nil, nil
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	assert.True(t, secondWaitReturned)
}

func TestWaitGroupWakesWaitersInFIFOOrder(t *testing.T) {
	var order []int
	_, err := Run(func(f *Fiber) (any, error) {
		wg := NewWaitGroup(f)
		wg.Add(1)
		for i := 0; i < 3; i++ {
			idx := i
			f.Go(func(f *Fiber) (any, error) {
				wg.Wait(f)
				order = append(order, idx)
				return nil, nil
			})
		}
		f.Yield()
		f.Yield()
		f.Yield()
		f.Yield()
		wg.Done()
		f.Yield()
		f.Yield()
		return nil, nil
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, order)
}
