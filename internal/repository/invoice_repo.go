package repository

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bank-reconciliation-backend/internal/models"
)

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) DB() *gorm.DB {
	return r.db
}

// GetOpen returns every invoice still awaiting money: open or
// partially paid. Cancelled and paid invoices never become candidates.
func (r *InvoiceRepository) GetOpen() ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.
		Where("status IN ?", []string{models.InvoiceStatusOpen, models.InvoiceStatusPartial}).
		Find(&invoices).Error
	return invoices, err
}

func (r *InvoiceRepository) GetByID(id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// GetByIDForUpdate locks the invoice row until the surrounding DB
// transaction commits. Allocation checks against the row stay valid
// for the rest of the commit.
func (r *InvoiceRepository) GetByIDForUpdate(id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&invoice, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// Create inserts an invoice, ignoring duplicates on invoice number.
func (r *InvoiceRepository) Create(inv *models.Invoice) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(inv).Error
}

// SetStatus updates payment status; paid invoices also get a paid_at
// timestamp.
func (r *InvoiceRepository) SetStatus(id uuid.UUID, status string) error {
	updates := map[string]interface{}{"status": status}
	if status == models.InvoiceStatusPaid {
		updates["paid_at"] = time.Now()
	}
	return r.db.Model(&models.Invoice{}).Where("id = ?", id).Updates(updates).Error
}

// Search is the admin manual-match lookup with optional filters.
func (r *InvoiceRepository) Search(query string, statuses []string) ([]models.Invoice, error) {
	var invoices []models.Invoice

	dbQuery := r.db.Model(&models.Invoice{})
	if query != "" {
		like := "%" + strings.ToLower(query) + "%"
		dbQuery = dbQuery.Where(
			"LOWER(counterparty_name) LIKE ? OR counterparty_cui LIKE ?", like, like)
	}
	if len(statuses) > 0 {
		dbQuery = dbQuery.Where("status IN ?", statuses)
	}

	err := dbQuery.Order("due_date ASC").Find(&invoices).Error
	return invoices, err
}
