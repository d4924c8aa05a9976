package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	ProposalKindPayment    = "payment"
	ProposalKindCollection = "collection"
)

const (
	ProposalStatusDraft     = "draft"
	ProposalStatusConfirmed = "confirmed"
)

// Proposal batches matched (or review-flagged) transactions for one
// counterparty. Always created as a draft; confirmation is an explicit
// operator action, never done by the grouper.
type Proposal struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind             string    `gorm:"index"`
	CounterpartyCUI  string    `gorm:"index"`
	CounterpartyName string
	TotalAmount      decimal.Decimal `gorm:"type:numeric(14,2)"`
	Currency         string
	TransactionIDs   datatypes.JSON
	ReviewCount      int
	Status           string `gorm:"index"`
	ConfirmedAt      *time.Time
	CreatedAt        time.Time
}
