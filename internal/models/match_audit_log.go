package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchAuditLog records every decision change per transaction:
// automatic matches, supersessions on re-run, and manual overrides.
type MatchAuditLog struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	TransactionID   uuid.UUID `gorm:"index"`
	Action          string
	PreviousInvoice *uuid.UUID
	NewInvoice      *uuid.UUID
	Score           float64
	PerformedBy     string
	Reason          string
	CreatedAt       time.Time
}
