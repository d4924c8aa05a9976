package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Transaction direction relative to our accounts.
const (
	DirectionInflow  = "inflow"
	DirectionOutflow = "outflow"
)

// Match statuses a transaction moves through.
const (
	TxStatusPending       = "pending"
	TxStatusAutoMatched   = "auto_matched"
	TxStatusManualMatched = "manual_matched"
	TxStatusNeedsReview   = "needs_review"
	TxStatusNoMatch       = "no_match"
	TxStatusFailed        = "failed"
	TxStatusConfirmed     = "confirmed"
	TxStatusExternal      = "external"
)

type BankTransaction struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UploadBatchID       uuid.UUID       `gorm:"index"`
	Direction           string          `gorm:"index"`
	PostedDate          time.Time       `gorm:"column:posted_date"`
	Amount              decimal.Decimal `gorm:"type:numeric(14,2);index"`
	Currency            string
	RawCounterpartyName string
	RawCounterpartyCUI  string
	Reference           string
	Description         string
	Status              string `gorm:"index"`
	MatchedInvoiceID    *uuid.UUID
	ConfidenceScore     float64
	MatchDetails        datatypes.JSON
	MatchError          string
	CreatedAt           time.Time
}
