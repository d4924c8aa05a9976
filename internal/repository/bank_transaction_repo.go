package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/models"
)

type BankTransactionRepository struct {
	db *gorm.DB
}

func NewBankTransactionRepository(db *gorm.DB) *BankTransactionRepository {
	return &BankTransactionRepository{db: db}
}

func (r *BankTransactionRepository) Create(tx *models.BankTransaction) error {
	return r.db.Create(tx).Error
}

func (r *BankTransactionRepository) GetByID(id uuid.UUID) (*models.BankTransaction, error) {
	var tx models.BankTransaction
	if err := r.db.First(&tx, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *BankTransactionRepository) Save(tx *models.BankTransaction) error {
	return r.db.Save(tx).Error
}

// MatchableForBatch returns the transactions an automatic run may
// touch. Manual matches, confirmed and external transactions stay out.
func (r *BankTransactionRepository) MatchableForBatch(batchID uuid.UUID) ([]models.BankTransaction, error) {
	var txs []models.BankTransaction
	err := r.db.
		Where("upload_batch_id = ?", batchID).
		Where("status NOT IN ?", []string{
			models.TxStatusManualMatched,
			models.TxStatusConfirmed,
			models.TxStatusExternal,
		}).
		Order("id ASC").
		Find(&txs).Error
	return txs, err
}

// ListByBatch pages through a batch with an id cursor, optionally
// filtered by status or a description/amount search.
func (r *BankTransactionRepository) ListByBatch(
	batchID uuid.UUID,
	status string,
	cursor string,
	limit int,
	search string,
) ([]models.BankTransaction, string, bool, error) {
	var txs []models.BankTransaction
	query := r.db.
		Where("upload_batch_id = ?", batchID).
		Order("id ASC").
		Limit(limit + 1)

	if status != "" && status != "all" {
		query = query.Where("status = ?", status)
	}
	if cursor != "" {
		query = query.Where("id > ?", cursor)
	}
	if search != "" {
		like := "%" + search + "%"
		query = query.Where(
			"description ILIKE ? OR raw_counterparty_name ILIKE ? OR CAST(amount AS TEXT) LIKE ?",
			like, like, like,
		)
	}

	if err := query.Find(&txs).Error; err != nil {
		return nil, "", false, err
	}

	hasMore := false
	var nextCursor string
	if len(txs) > limit {
		hasMore = true
		nextCursor = txs[limit-1].ID.String()
		txs = txs[:limit]
	}
	return txs, nextCursor, hasMore, nil
}
