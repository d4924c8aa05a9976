package matching

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"bank-reconciliation-backend/internal/models"
)

func testInvoice(kind, name, cui string, amount string, due time.Time) *models.Invoice {
	amt, _ := decimal.NewFromString(amount)
	return &models.Invoice{
		ID:               uuid.New(),
		InvoiceNumber:    uuid.New().String(),
		Kind:             kind,
		CounterpartyName: name,
		CounterpartyCUI:  cui,
		Amount:           amt,
		Currency:         "RON",
		Status:           models.InvoiceStatusOpen,
		IssueDate:        due.AddDate(0, 0, -30),
		DueDate:          due,
	}
}

func testTx(name, cui string, amount string, posted time.Time) *models.BankTransaction {
	amt, _ := decimal.NewFromString(amount)
	return &models.BankTransaction{
		ID:                  uuid.New(),
		Direction:           models.DirectionInflow,
		PostedDate:          posted,
		Amount:              amt,
		Currency:            "RON",
		RawCounterpartyName: name,
		RawCounterpartyCUI:  cui,
		Status:              models.TxStatusPending,
	}
}

func candidateFor(inv *models.Invoice) *Candidate {
	cands := NewIndex([]*models.Invoice{inv}, 0.6).byKind[inv.Kind]
	return cands[0]
}

func TestScoreFullSignalStack(t *testing.T) {
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	inv := testInvoice(models.InvoiceKindIssued, "Electromontaj SA", "RO40123456", "1000.00", due)
	tx := testTx("Electromontaj SA", "40123456", "1000.00", due.AddDate(0, 0, 5))

	s := scoreCandidate(factsFor(tx), candidateFor(inv), inv.Amount)

	assert.Equal(t, weightTaxID, s.TaxID)
	assert.InDelta(t, weightName, s.Name, 1e-9)
	assert.Equal(t, weightAmountExact, s.Amount)
	assert.Equal(t, weightDate, s.Date)
	assert.Equal(t, 1.0, s.Total) // clamped
}

func TestScoreNameWeightShiftsWithoutTaxID(t *testing.T) {
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	inv := testInvoice(models.InvoiceKindIssued, "Electromontaj S.A.", "RO40123456", "500.00", due)
	tx := testTx("Electromontaj SA", "", "500.00", due.AddDate(0, 0, 10))

	s := scoreCandidate(factsFor(tx), candidateFor(inv), inv.Amount)

	assert.Zero(t, s.TaxID)
	// Identity weight rides entirely on the name when no CUI exists.
	assert.InDelta(t, weightTaxID+weightName, s.Name, 1e-9)
	assert.GreaterOrEqual(t, s.Total, 0.75)
}

func TestScoreAmountToleranceBand(t *testing.T) {
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	inv := testInvoice(models.InvoiceKindIssued, "Acme SRL", "RO11223344", "1000.00", due)
	c := candidateFor(inv)

	tests := []struct {
		name   string
		amount string
		want   float64
	}{
		{"exact", "1000.00", weightAmountExact},
		{"within half percent", "1004.00", weightAmountNear},
		{"at half percent", "1005.00", weightAmountNear},
		{"outside tolerance", "1010.00", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := testTx("Acme SRL", "11223344", tt.amount, due)
			s := scoreCandidate(factsFor(tx), c, inv.Amount)
			assert.Equal(t, tt.want, s.Amount)
		})
	}
}

func TestScoreDateDecay(t *testing.T) {
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	inv := testInvoice(models.InvoiceKindIssued, "Acme SRL", "RO11223344", "1000.00", due)
	// Issue date would dominate proximity here; push it out of range.
	inv.IssueDate = due.AddDate(-1, 0, 0)
	c := candidateFor(inv)

	score := func(daysAfterDue int) float64 {
		tx := testTx("Acme SRL", "11223344", "1000.00", due.AddDate(0, 0, daysAfterDue))
		return scoreCandidate(factsFor(tx), c, inv.Amount).Date
	}

	assert.Equal(t, weightDate, score(0))
	assert.Equal(t, weightDate, score(45))
	assert.InDelta(t, weightDate/2, score(67), 0.002)
	assert.Equal(t, 0.0, score(90))
	assert.Equal(t, 0.0, score(400))
	// Symmetric around the reference date.
	assert.Equal(t, score(30), score(-30))
}

func TestScoreDeterministic(t *testing.T) {
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	inv := testInvoice(models.InvoiceKindIssued, "Hidroconstructia SA", "RO15678901", "742.50", due)
	tx := testTx("HIDROCONSTRUCTIA S.A.", "RO 1567 8901", "742.50", due.AddDate(0, 0, 12))
	c := candidateFor(inv)
	f := factsFor(tx)

	first := scoreCandidate(f, c, inv.Amount)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, scoreCandidate(f, c, inv.Amount))
	}
}
