package matching

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerAllocateAndConflict(t *testing.T) {
	l := NewLedger()
	id := uuid.New()
	l.Set(id, decimal.NewFromInt(1000))

	rem, err := l.Allocate(id, decimal.NewFromInt(400))
	require.NoError(t, err)
	assert.True(t, rem.Equal(decimal.NewFromInt(600)))

	// Over-allocation is rejected, not clamped.
	_, err = l.Allocate(id, decimal.NewFromInt(700))
	assert.ErrorIs(t, err, ErrAllocationConflict)
	assert.True(t, l.Remaining(id).Equal(decimal.NewFromInt(600)))

	rem, err = l.Allocate(id, decimal.NewFromInt(600))
	require.NoError(t, err)
	assert.True(t, rem.IsZero())
}

func TestLedgerUnknownInvoice(t *testing.T) {
	l := NewLedger()
	assert.True(t, l.Remaining(uuid.New()).IsZero())
	_, err := l.Allocate(uuid.New(), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrAllocationConflict)
}

func TestLedgerRelease(t *testing.T) {
	l := NewLedger()
	id := uuid.New()
	l.Set(id, decimal.NewFromInt(100))

	_, err := l.Allocate(id, decimal.NewFromInt(100))
	require.NoError(t, err)
	l.Release(id, decimal.NewFromInt(100))
	assert.True(t, l.Remaining(id).Equal(decimal.NewFromInt(100)))
}

// Concurrent partial allocations never push remaining due below zero.
func TestLedgerConcurrentAllocations(t *testing.T) {
	l := NewLedger()
	id := uuid.New()
	l.Set(id, decimal.NewFromInt(500))

	var wg sync.WaitGroup
	successes := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Allocate(id, decimal.NewFromInt(100)); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	assert.Equal(t, 5, count)
	assert.True(t, l.Remaining(id).IsZero())
}
