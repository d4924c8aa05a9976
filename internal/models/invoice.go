package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice kinds: issued invoices await collection (inflow),
// received invoices await payment (outflow).
const (
	InvoiceKindIssued   = "issued"
	InvoiceKindReceived = "received"
)

const (
	InvoiceStatusOpen      = "open"
	InvoiceStatusPartial   = "partial"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusCancelled = "cancelled"
)

type Invoice struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	InvoiceNumber    string          `gorm:"uniqueIndex"`
	Kind             string          `gorm:"index"`
	CounterpartyName string          `gorm:"index"`
	CounterpartyCUI  string          `gorm:"index"`
	Amount           decimal.Decimal `gorm:"type:numeric(14,2);index"`
	Currency         string
	Status           string `gorm:"index"`
	IssueDate        time.Time
	DueDate          time.Time
	PaidAt           *time.Time
	CreatedAt        time.Time
}
