package matching

import (
	"time"

	"github.com/shopspring/decimal"

	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/normalize"
)

// Signal weights. When the transaction carries no usable tax id the
// identity weight shifts onto name similarity, which is then the only
// counterparty signal available.
const (
	weightTaxID       = 0.50
	weightName        = 0.20
	weightAmountExact = 0.25
	weightAmountNear  = 0.20
	weightDate        = 0.10
)

// Date proximity: full credit within 45 days, linear decay to zero at 90.
const (
	dateFullDays = 45
	dateZeroDays = 90
)

// amountTolerance is the relative band for the near-equality bonus.
var amountTolerance = decimal.NewFromFloat(0.005)

// Score is the confidence in [0,1] with its contributing signals.
// Deterministic given the same normalized inputs.
type Score struct {
	Total  float64 `json:"total"`
	TaxID  float64 `json:"tax_id"`
	Name   float64 `json:"name"`
	Amount float64 `json:"amount"`
	Date   float64 `json:"date"`
}

// txFacts is the normalized view of one bank transaction, computed once
// per matching attempt.
type txFacts struct {
	cui    string
	name   string
	amount decimal.Decimal
	posted time.Time
}

func factsFor(tx *models.BankTransaction) txFacts {
	name := normalize.Name(tx.RawCounterpartyName)
	if name == "" {
		name = normalize.Name(tx.Description)
	}
	return txFacts{
		cui:    normalize.CUI(tx.RawCounterpartyCUI),
		name:   name,
		amount: tx.Amount.Abs(),
		posted: tx.PostedDate,
	}
}

// scoreCandidate scores one transaction/invoice pair. remaining is the
// invoice's due amount net of prior allocations; the amount signal is
// computed against it so partial payments still score.
func scoreCandidate(f txFacts, c *Candidate, remaining decimal.Decimal) Score {
	var s Score

	nameWeight := weightName
	if f.cui == "" {
		nameWeight += weightTaxID
	} else if f.cui == c.CUI {
		s.TaxID = weightTaxID
	}
	s.Name = normalize.Similarity(f.name, c.Name) * nameWeight

	diff := f.amount.Sub(remaining).Abs()
	switch {
	case diff.IsZero():
		s.Amount = weightAmountExact
	case remaining.IsPositive() && diff.LessThanOrEqual(remaining.Mul(amountTolerance)):
		s.Amount = weightAmountNear
	}

	s.Date = dateScore(f.posted, c.Invoice.DueDate, c.Invoice.IssueDate)

	total := s.TaxID + s.Name + s.Amount + s.Date
	if total > 1 {
		total = 1
	}
	if total < 0 {
		total = 0
	}
	s.Total = total
	return s
}

func dateScore(posted time.Time, dates ...time.Time) float64 {
	best := -1.0
	for _, d := range dates {
		if d.IsZero() {
			continue
		}
		days := posted.Sub(d).Hours() / 24
		if days < 0 {
			days = -days
		}
		if best < 0 || days < best {
			best = days
		}
	}
	switch {
	case best < 0 || best >= dateZeroDays:
		return 0
	case best <= dateFullDays:
		return weightDate
	default:
		return weightDate * (dateZeroDays - best) / (dateZeroDays - dateFullDays)
	}
}
