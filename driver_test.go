package gofiber

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleDeferredRunsAtEndOfTick(t *testing.T) {
	var order []string
	_, err := Run(func(f *Fiber) (any, error) {
		f.driver.ScheduleDeferred(func() { order = append(order, "deferred") })
		order = append(order, "body")
		return nil, nil
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	assert.Equal(t, []string{"body", "deferred"}, order)
}

func TestDeferredCallbackSchedulingAnotherRunsSameDrain(t *testing.T) {
	var order []string
	_, err := Run(func(f *Fiber) (any, error) {
		f.driver.ScheduleDeferred(func() {
			order = append(order, "first")
			f.driver.ScheduleDeferred(func() { order = append(order, "second") })
		})
		return nil, nil
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestDeferredCallbackPanicDoesNotStopTheDrain(t *testing.T) {
	var order []string
	_, err := Run(func(f *Fiber) (any, error) {
		f.driver.ScheduleDeferred(func() { panic("boom") })
		f.driver.ScheduleDeferred(func() { order = append(order, "after-panic") })
		return nil, nil
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	assert.Equal(t, []string{"after-panic"}, order)
}

func TestOnIdleFiresWhenReadyQueueDrainsAndNoNearTimer(t *testing.T) {
	var fired bool
	_, err := Run(func(f *Fiber) (any, error) {
		f.driver.OnIdle(time.Second, func() { fired = true })
		f.Sleep(5 * time.Second)
		return nil, nil
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	assert.True(t, fired)
}

func TestDriverStringDoesNotPanic(t *testing.T) {
	d, err := NewDriver(WithClock(newVirtualClock()))
	require.NoError(t, err)
	assert.Contains(t, d.String(), "Driver{")
}
