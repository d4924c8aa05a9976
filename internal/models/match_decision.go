package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	MatchedByAutomatic = "automatic"
	MatchedByManual    = "manual"
)

// MatchDecision is the persisted outcome of one matching attempt.
// Corrections supersede the row rather than mutating it, so the
// decision history stays auditable.
type MatchDecision struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TransactionID uuid.UUID  `gorm:"index"`
	InvoiceID     *uuid.UUID `gorm:"index"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2)"`
	Score         float64
	MatchedBy     string
	Breakdown     datatypes.JSON
	SupersededAt  *time.Time `gorm:"index"`
	CreatedAt     time.Time
}

func (d *MatchDecision) Active() bool {
	return d.SupersededAt == nil
}
