package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/models"
)

type MatchDecisionRepository struct {
	db *gorm.DB
}

func NewMatchDecisionRepository(db *gorm.DB) *MatchDecisionRepository {
	return &MatchDecisionRepository{db: db}
}

func (r *MatchDecisionRepository) Create(d *models.MatchDecision) error {
	return r.db.Create(d).Error
}

// ActiveByTransaction returns the live decision for a transaction, or
// nil when none exists.
func (r *MatchDecisionRepository) ActiveByTransaction(txID uuid.UUID) (*models.MatchDecision, error) {
	var d models.MatchDecision
	err := r.db.
		Where("transaction_id = ? AND superseded_at IS NULL", txID).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Supersede retires a decision without deleting it, keeping the audit
// trail intact.
func (r *MatchDecisionRepository) Supersede(id uuid.UUID) error {
	now := time.Now()
	return r.db.Model(&models.MatchDecision{}).
		Where("id = ? AND superseded_at IS NULL", id).
		Update("superseded_at", now).Error
}

type allocationRow struct {
	InvoiceID uuid.UUID
	Total     decimal.Decimal
}

// ActiveAllocations sums live allocations per invoice, optionally
// excluding the transactions about to be re-matched so their prior
// allocations do not count against themselves.
func (r *MatchDecisionRepository) ActiveAllocations(excludeTxIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	query := r.db.Model(&models.MatchDecision{}).
		Select("invoice_id, COALESCE(SUM(amount),0) as total").
		Where("superseded_at IS NULL AND invoice_id IS NOT NULL").
		Group("invoice_id")
	if len(excludeTxIDs) > 0 {
		query = query.Where("transaction_id NOT IN ?", excludeTxIDs)
	}

	var rows []allocationRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, row := range rows {
		out[row.InvoiceID] = row.Total
	}
	return out, nil
}

// AllocatedTo sums live allocations against one invoice, excluding the
// given transaction's own decision. Run it inside the same DB
// transaction that holds the invoice row lock.
func (r *MatchDecisionRepository) AllocatedTo(invoiceID, excludeTxID uuid.UUID) (decimal.Decimal, error) {
	var row struct{ Total decimal.Decimal }
	err := r.db.Model(&models.MatchDecision{}).
		Select("COALESCE(SUM(amount),0) as total").
		Where("superseded_at IS NULL AND invoice_id = ? AND transaction_id <> ?", invoiceID, excludeTxID).
		Scan(&row).Error
	return row.Total, err
}

// ActiveInWindow lists live decisions whose transactions fall in the
// given direction and posted-date window. Used by proposal generation.
func (r *MatchDecisionRepository) ActiveInWindow(direction string, from, to time.Time) ([]models.MatchDecision, error) {
	var decisions []models.MatchDecision
	err := r.db.
		Joins("JOIN bank_transactions ON bank_transactions.id = match_decisions.transaction_id").
		Where("match_decisions.superseded_at IS NULL").
		Where("bank_transactions.direction = ?", direction).
		Where("bank_transactions.posted_date BETWEEN ? AND ?", from, to).
		Find(&decisions).Error
	return decisions, err
}
