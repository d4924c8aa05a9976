package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/models"
)

type ProposalRepository struct {
	db *gorm.DB
}

func NewProposalRepository(db *gorm.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

func (r *ProposalRepository) Create(p *models.Proposal) error {
	return r.db.Create(p).Error
}

func (r *ProposalRepository) GetByID(id uuid.UUID) (*models.Proposal, error) {
	var p models.Proposal
	if err := r.db.First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProposalRepository) List(kind, status string) ([]models.Proposal, error) {
	query := r.db.Model(&models.Proposal{}).Order("created_at DESC")
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var proposals []models.Proposal
	err := query.Find(&proposals).Error
	return proposals, err
}

// Confirm moves a draft to confirmed. Only drafts can be confirmed;
// the update is a no-op otherwise and the caller sees zero rows.
func (r *ProposalRepository) Confirm(id uuid.UUID) (int64, error) {
	now := time.Now()
	result := r.db.Model(&models.Proposal{}).
		Where("id = ? AND status = ?", id, models.ProposalStatusDraft).
		Updates(map[string]interface{}{
			"status":       models.ProposalStatusConfirmed,
			"confirmed_at": now,
		})
	return result.RowsAffected, result.Error
}
