package reconciliation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/services/matching"
)

// Commit-time allocation checks run against current DB state, not the
// run ledger, so a concurrent claim on the same invoice is caught here.
func TestVerifyAllocationEnforcesRemainingDue(t *testing.T) {
	amt := func(s string) decimal.Decimal {
		d, _ := decimal.NewFromString(s)
		return d
	}

	tests := []struct {
		name      string
		invoice   string
		allocated string
		amount    string
		wantErr   bool
	}{
		{"fits exactly", "1000.00", "0", "1000.00", false},
		{"partial fits", "1000.00", "400.00", "600.00", false},
		{"over-allocates by a cent", "1000.00", "400.00", "600.01", true},
		{"already exhausted", "1000.00", "1000.00", "0.01", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifyAllocation(amt(tt.invoice), amt(tt.allocated), amt(tt.amount))
			if tt.wantErr {
				assert.ErrorIs(t, err, matching.ErrAllocationConflict)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// Only matched transactions can be confirmed; anything else has no
// match to settle.
func TestConfirmableStatuses(t *testing.T) {
	assert.True(t, confirmable(models.TxStatusAutoMatched))
	assert.True(t, confirmable(models.TxStatusManualMatched))

	for _, status := range []string{
		models.TxStatusPending,
		models.TxStatusNeedsReview,
		models.TxStatusNoMatch,
		models.TxStatusFailed,
		models.TxStatusConfirmed,
		models.TxStatusExternal,
	} {
		assert.False(t, confirmable(status), status)
	}
}
