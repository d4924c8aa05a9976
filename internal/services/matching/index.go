package matching

import (
	"context"
	"sort"

	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/normalize"
)

// Candidate pairs an open invoice with its normalized identity fields,
// computed once at index build time.
type Candidate struct {
	Invoice *models.Invoice
	CUI     string
	Name    string
}

// CandidateSource yields eligible invoices for one transaction. The
// in-memory Index never fails; remote-backed sources may, and the
// engine retries those with backoff.
type CandidateSource interface {
	FindCandidates(ctx context.Context, tx *models.BankTransaction) ([]*Candidate, error)
}

// Index is an in-memory candidate lookup over open and partially paid
// invoices, keyed by normalized CUI with a name-similarity fallback.
// Build it once per run; it is read-only afterwards and safe for
// concurrent use.
type Index struct {
	byCUI     map[string][]*Candidate
	byKind    map[string][]*Candidate
	nameFloor float64
}

func NewIndex(invoices []*models.Invoice, nameFloor float64) *Index {
	ix := &Index{
		byCUI:     make(map[string][]*Candidate),
		byKind:    make(map[string][]*Candidate),
		nameFloor: nameFloor,
	}
	for _, inv := range invoices {
		if inv.Status != models.InvoiceStatusOpen && inv.Status != models.InvoiceStatusPartial {
			continue
		}
		c := &Candidate{
			Invoice: inv,
			CUI:     normalize.CUI(inv.CounterpartyCUI),
			Name:    normalize.Name(inv.CounterpartyName),
		}
		if c.CUI != "" {
			ix.byCUI[c.CUI] = append(ix.byCUI[c.CUI], c)
		}
		ix.byKind[inv.Kind] = append(ix.byKind[inv.Kind], c)
	}
	for _, cands := range ix.byCUI {
		sortCandidates(cands)
	}
	for _, cands := range ix.byKind {
		sortCandidates(cands)
	}
	return ix
}

// kindFor maps transaction direction to the invoice side it can settle:
// money in collects issued invoices, money out pays received ones.
func kindFor(direction string) string {
	if direction == models.DirectionInflow {
		return models.InvoiceKindIssued
	}
	return models.InvoiceKindReceived
}

// FindCandidates returns eligible invoices for the transaction: equal
// normalized CUI when the transaction has one, otherwise name
// similarity above the floor. Empty result is not an error.
func (ix *Index) FindCandidates(_ context.Context, tx *models.BankTransaction) ([]*Candidate, error) {
	f := factsFor(tx)
	kind := kindFor(tx.Direction)

	if f.cui != "" {
		var out []*Candidate
		for _, c := range ix.byCUI[f.cui] {
			if c.Invoice.Kind == kind && currencyOK(tx.Currency, c.Invoice.Currency) {
				out = append(out, c)
			}
		}
		return out, nil
	}

	if f.name == "" {
		return nil, nil
	}
	var out []*Candidate
	for _, c := range ix.byKind[kind] {
		if !currencyOK(tx.Currency, c.Invoice.Currency) {
			continue
		}
		if normalize.Similarity(f.name, c.Name) >= ix.nameFloor {
			out = append(out, c)
		}
	}
	return out, nil
}

func currencyOK(a, b string) bool {
	return a == "" || b == "" || a == b
}

func sortCandidates(cands []*Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		if !cands[i].Invoice.DueDate.Equal(cands[j].Invoice.DueDate) {
			return cands[i].Invoice.DueDate.Before(cands[j].Invoice.DueDate)
		}
		return cands[i].Invoice.ID.String() < cands[j].Invoice.ID.String()
	})
}
