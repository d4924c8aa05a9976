// Package proposal assembles draft payment and collection proposals
// from match decisions. Grouping is pure; nothing here touches storage
// or marks anything settled.
package proposal

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/normalize"
)

// Item is one transaction entering a grouping run, with counterparty
// identity already resolved. For matched transactions the identity
// comes from the invoice; for review-flagged ones, from the statement
// line itself.
type Item struct {
	TransactionID    uuid.UUID
	CounterpartyCUI  string
	CounterpartyName string
	Amount           decimal.Decimal
	Currency         string
	Matched          bool
}

// Group batches items into one draft proposal per counterparty. The
// normalized tax id is the authoritative grouping key; items without
// one fall back to the normalized name and are never merged with a
// keyed counterparty even when names look alike. Currencies never mix:
// a counterparty settling in two currencies yields two proposals.
// Output order is deterministic.
func Group(kind string, items []Item) []models.Proposal {
	type bucket struct {
		props *models.Proposal
		txIDs []uuid.UUID
	}
	buckets := make(map[string]*bucket)
	var order []string

	for _, it := range items {
		cui := normalize.CUI(it.CounterpartyCUI)
		key := it.Currency + "|cui:" + cui
		if cui == "" {
			key = it.Currency + "|name:" + normalize.Name(it.CounterpartyName)
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				props: &models.Proposal{
					ID:               uuid.New(),
					Kind:             kind,
					CounterpartyCUI:  cui,
					CounterpartyName: it.CounterpartyName,
					TotalAmount:      decimal.Zero,
					Currency:         it.Currency,
					Status:           models.ProposalStatusDraft,
					CreatedAt:        time.Now(),
				},
			}
			buckets[key] = b
			order = append(order, key)
		}
		b.props.TotalAmount = b.props.TotalAmount.Add(it.Amount.Abs())
		b.txIDs = append(b.txIDs, it.TransactionID)
		if !it.Matched {
			b.props.ReviewCount++
		}
	}

	sort.Strings(order)
	out := make([]models.Proposal, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		sort.Slice(b.txIDs, func(i, j int) bool {
			return b.txIDs[i].String() < b.txIDs[j].String()
		})
		b.props.TransactionIDs = marshalIDs(b.txIDs)
		out = append(out, *b.props)
	}
	return out
}

func marshalIDs(ids []uuid.UUID) datatypes.JSON {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	b, _ := json.Marshal(strs)
	return datatypes.JSON(b)
}

// KindForDirection maps transaction direction to proposal kind:
// inflows collect, outflows pay.
func KindForDirection(direction string) string {
	if direction == models.DirectionInflow {
		return models.ProposalKindCollection
	}
	return models.ProposalKindPayment
}
