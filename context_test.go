package gofiber

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextValueVisibleToNestedRun(t *testing.T) {
	var seen any
	var ok bool
	_, err := Run(func(f *Fiber) (any, error) {
		f.Context().SetValue("k", "v")
		_, nestedErr := f.Run(func(f *Fiber) (any, error) {
			seen, ok = f.Context().Value("k")
			return nil, nil
		})
		return nil, nestedErr
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", seen)
}

// Fiber.Go does not create a nested Context — only Fiber.Run does — so a
// value set on the shared Context is visible to a Go-spawned sibling too.
func TestContextValueVisibleToGoSpawnedSibling(t *testing.T) {
	var ok bool
	_, err := Run(func(f *Fiber) (any, error) {
		f.Context().SetValue("k", "v")
		sibling := f.Go(func(f *Fiber) (any, error) {
			_, ok = f.Context().Value("k")
			return nil, nil
		})
		_, awaitErr := f.Await(sibling)
		return nil, awaitErr
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestContextUnhandledErrorFromUnobservedFiberSurfacesAtRun(t *testing.T) {
	boom := errors.New("unobserved")
	_, err := Run(func(f *Fiber) (any, error) {
		f.Go(func(f *Fiber) (any, error) {
			return nil, boom
		})
		f.Yield()
		f.Yield()
		return "root ok", nil
	}, WithClock(newVirtualClock()))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestContextDoubleActivateIsUsageError(t *testing.T) {
	ctx := newContext(nil, nil)
	require.NoError(t, ctx.Activate())
	err := ctx.Activate()
	var usageErr *UsageError
	require.ErrorAs(t, err, &usageErr)
}

func TestNestedRunActivatesItsOwnContextOnce(t *testing.T) {
	_, err := Run(func(f *Fiber) (any, error) {
		_, nestedErr := f.Run(func(f *Fiber) (any, error) {
			return nil, nil
		})
		return nil, nestedErr
	}, WithClock(newVirtualClock()))
	require.NoError(t, err)
}

func TestContextMultipleUnhandledErrorsAggregate(t *testing.T) {
	e1 := errors.New("e1")
	e2 := errors.New("e2")
	_, err := Run(func(f *Fiber) (any, error) {
		f.Go(func(f *Fiber) (any, error) { return nil, e1 })
		f.Go(func(f *Fiber) (any, error) { return nil, e2 })
		f.Yield()
		f.Yield()
		f.Yield()
		return "root ok", nil
	}, WithClock(newVirtualClock()))
	require.Error(t, err)
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 2)
}
