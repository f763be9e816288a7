// ABOUTME: Tests for the memoization cells and window cache.
// ABOUTME: Loads happen once, failures are retried, Reset invalidates.

package report

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/fieldops/internal/tzclock"
)

func TestCell_LoadsOnce(t *testing.T) {
	var c Cell[StorageMode]
	loads := 0
	load := func() (StorageMode, error) {
		loads++
		return StorageNaive, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(load)
			assert.NoError(t, err)
			assert.Equal(t, StorageNaive, v)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, loads)

	c.Reset()
	_, ok := c.Peek()
	assert.False(t, ok)

	_, _ = c.Get(load)
	assert.Equal(t, 2, loads)
}

func TestCell_DoesNotCacheErrors(t *testing.T) {
	var c Cell[StorageMode]
	fail := errors.New("schema unavailable")

	_, err := c.Get(func() (StorageMode, error) { return "", fail })
	assert.ErrorIs(t, err, fail)

	v, err := c.Get(func() (StorageMode, error) { return StorageTZAware, nil })
	assert.NoError(t, err)
	assert.Equal(t, StorageTZAware, v)
}

func TestWindowCache(t *testing.T) {
	c := NewWindowCache(8)
	p := NewPlanner(newYork(t))
	d := tzclock.MustParseDate("2025-10-06")
	plans := 0
	plan := func(mode Mode, storage StorageMode) func() Window {
		return func() Window {
			plans++
			return p.Plan(d, mode, storage)
		}
	}

	first := c.GetOrPlan(d, ModeClamp, StorageNaive, plan(ModeClamp, StorageNaive))
	again := c.GetOrPlan(d, ModeClamp, StorageNaive, plan(ModeClamp, StorageNaive))
	assert.Equal(t, first, again)
	assert.Equal(t, 1, plans)

	c.GetOrPlan(d, ModeIntersect, StorageNaive, plan(ModeIntersect, StorageNaive))
	assert.Equal(t, 2, plans)
	assert.Equal(t, 2, c.Len())

	c.Reset()
	assert.Equal(t, 0, c.Len())
}

func TestWindowCache_EvictsLeastRecentDates(t *testing.T) {
	c := NewWindowCache(8)
	p := NewPlanner(newYork(t))
	first := tzclock.MustParseDate("2025-01-01")

	plans := 0
	for i := 0; i < 100; i++ {
		d := tzclock.AddCalendarDays(first, i)
		c.GetOrPlan(d, ModeIntersect, StorageTZAware, func() Window {
			plans++
			return p.Plan(d, ModeIntersect, StorageTZAware)
		})
		// keep the first date hot
		c.GetOrPlan(first, ModeIntersect, StorageTZAware, func() Window {
			plans++
			return p.Plan(first, ModeIntersect, StorageTZAware)
		})
	}
	assert.Equal(t, 8, c.Len())
	assert.Equal(t, 100, plans, "the hot date is planned once")
}
