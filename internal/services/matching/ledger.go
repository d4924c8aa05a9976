package matching

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger tracks remaining due per invoice and serializes allocations
// with one lock per invoice, so concurrent partial payments can never
// push remaining due below zero. Cross-invoice allocations do not
// contend.
type Ledger struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*ledgerEntry
}

type ledgerEntry struct {
	mu        sync.Mutex
	remaining decimal.Decimal
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[uuid.UUID]*ledgerEntry)}
}

// Set seeds the remaining due for an invoice. Called while building a
// run, before any allocation.
func (l *Ledger) Set(id uuid.UUID, remaining decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[id] = &ledgerEntry{remaining: remaining}
}

// Remaining returns the current remaining due, or zero for an unknown
// invoice.
func (l *Ledger) Remaining(id uuid.UUID) decimal.Decimal {
	l.mu.RLock()
	e := l.entries[id]
	l.mu.RUnlock()
	if e == nil {
		return decimal.Zero
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remaining
}

// Allocate reserves amount against the invoice. Returns the remaining
// due after allocation, or ErrAllocationConflict when the amount
// exceeds what is left; the balance is never clamped.
func (l *Ledger) Allocate(id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	l.mu.RLock()
	e := l.entries[id]
	l.mu.RUnlock()
	if e == nil {
		return decimal.Zero, ErrAllocationConflict
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if amount.GreaterThan(e.remaining) {
		return e.remaining, ErrAllocationConflict
	}
	e.remaining = e.remaining.Sub(amount)
	return e.remaining, nil
}

// Release returns a previously allocated amount, used when an earlier
// automatic decision is superseded during a re-run.
func (l *Ledger) Release(id uuid.UUID, amount decimal.Decimal) {
	l.mu.RLock()
	e := l.entries[id]
	l.mu.RUnlock()
	if e == nil {
		return
	}
	e.mu.Lock()
	e.remaining = e.remaining.Add(amount)
	e.mu.Unlock()
}
