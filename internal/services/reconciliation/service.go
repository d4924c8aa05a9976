// Package reconciliation orchestrates batch matching runs: it loads
// open invoices into a candidate index, drives the matching engine,
// and commits decisions, audit rows, and invoice status updates.
package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
	"bank-reconciliation-backend/internal/services/matching"
	"bank-reconciliation-backend/internal/services/proposal"
)

type ReconciliationService struct {
	invoiceRepo     *repository.InvoiceRepository
	transactionRepo *repository.BankTransactionRepository
	decisionRepo    *repository.MatchDecisionRepository
	proposalRepo    *repository.ProposalRepository
	db              *gorm.DB
	matchCfg        matching.Config

	progressCache sync.Map // batchID -> *Progress
}

type Progress struct {
	ProcessedCount int
	Total          int
	Status         string
}

func NewReconciliationService(
	invoiceRepo *repository.InvoiceRepository,
	transactionRepo *repository.BankTransactionRepository,
	decisionRepo *repository.MatchDecisionRepository,
	proposalRepo *repository.ProposalRepository,
	matchCfg matching.Config,
) *ReconciliationService {
	return &ReconciliationService{
		invoiceRepo:     invoiceRepo,
		transactionRepo: transactionRepo,
		decisionRepo:    decisionRepo,
		proposalRepo:    proposalRepo,
		db:              invoiceRepo.DB(),
		matchCfg:        matchCfg,
	}
}

// CreateBatch creates a new ReconciliationBatch in DB.
func (s *ReconciliationService) CreateBatch(filename string) *models.ReconciliationBatch {
	batch := &models.ReconciliationBatch{
		ID:        uuid.New(),
		Filename:  filename,
		Status:    "processing",
		StartedAt: time.Now(),
		CreatedAt: time.Now(),
	}
	s.db.Create(batch)
	return batch
}

// CreateTransaction inserts one statement line. Direction falls out of
// the amount sign when the feed does not state it.
func (s *ReconciliationService) CreateTransaction(
	batchID uuid.UUID,
	counterpartyName, counterpartyCUI, description, reference string,
	amount decimal.Decimal,
	currency string,
	posted time.Time,
) *models.BankTransaction {
	direction := models.DirectionInflow
	if amount.IsNegative() {
		direction = models.DirectionOutflow
	}
	tx := &models.BankTransaction{
		ID:                  uuid.New(),
		UploadBatchID:       batchID,
		Direction:           direction,
		PostedDate:          posted,
		Amount:              amount,
		Currency:            currency,
		RawCounterpartyName: counterpartyName,
		RawCounterpartyCUI:  counterpartyCUI,
		Reference:           reference,
		Description:         description,
		Status:              models.TxStatusPending,
		CreatedAt:           time.Now(),
	}
	s.db.Create(tx)
	return tx
}

// RunMatching executes one automatic matching run over a batch.
// Per-transaction failures are committed as such; the run itself only
// errors when it cannot even load its inputs.
func (s *ReconciliationService) RunMatching(ctx context.Context, batchID uuid.UUID) (*matching.BatchResult, error) {
	txRows, err := s.transactionRepo.MatchableForBatch(batchID)
	if err != nil {
		return nil, err
	}
	txs := make([]*models.BankTransaction, len(txRows))
	txIDs := make([]uuid.UUID, len(txRows))
	for i := range txRows {
		txs[i] = &txRows[i]
		txIDs[i] = txRows[i].ID
	}

	invoices, err := s.invoiceRepo.GetOpen()
	if err != nil {
		return nil, err
	}
	invPtrs := make([]*models.Invoice, len(invoices))
	for i := range invoices {
		invPtrs[i] = &invoices[i]
	}

	// Allocations held by the transactions being re-matched are
	// released for this run; their prior decisions get superseded if
	// the outcome changes.
	allocated, err := s.decisionRepo.ActiveAllocations(txIDs)
	if err != nil {
		return nil, err
	}
	ledger := matching.NewLedger()
	for i := range invoices {
		remaining := invoices[i].Amount
		if used, ok := allocated[invoices[i].ID]; ok {
			remaining = remaining.Sub(used)
		}
		ledger.Set(invoices[i].ID, remaining)
	}

	index := matching.NewIndex(invPtrs, s.matchCfg.NameFloor)
	engine := matching.NewEngine(s.matchCfg, index, ledger)

	result := engine.Run(ctx, txs)

	byID := make(map[uuid.UUID]*models.BankTransaction, len(txs))
	for _, tx := range txs {
		byID[tx.ID] = tx
	}
	for _, r := range result.Results {
		if err := s.commitResult(byID[r.TransactionID], r); err != nil {
			log.Println("commit failed for transaction", r.TransactionID, ":", err)
		}
	}

	s.db.Model(&models.ReconciliationBatch{}).
		Where("id = ?", batchID).
		Updates(map[string]interface{}{
			"auto_matched_count": result.AutoMatched + result.Unchanged,
			"needs_review_count": result.NeedsReview,
			"unmatched_count":    result.NoMatch,
			"failed_count":       result.Failed,
		})

	return result, nil
}

// commitResult persists one engine outcome in a single DB transaction:
// decision row, transaction status, audit entry, and invoice payment
// status. Automatic matches re-verify the allocation under a row lock,
// since a concurrent run or manual match may have claimed the invoice
// between scoring and commit.
func (s *ReconciliationService) commitResult(tx *models.BankTransaction, r matching.Result) error {
	if tx == nil || r.Outcome == matching.OutcomeSkipped || r.Outcome == matching.OutcomeUnchanged {
		return nil
	}

	err := s.db.Transaction(func(dbtx *gorm.DB) error {
		invoices := repository.NewInvoiceRepository(dbtx)
		transactions := repository.NewBankTransactionRepository(dbtx)
		decisions := repository.NewMatchDecisionRepository(dbtx)

		prior, err := decisions.ActiveByTransaction(tx.ID)
		if err != nil {
			return err
		}

		switch r.Outcome {
		case matching.OutcomeAutoMatched:
			invoice, err := invoices.GetByIDForUpdate(*r.InvoiceID)
			if err != nil {
				return err
			}
			allocated, err := decisions.AllocatedTo(invoice.ID, tx.ID)
			if err != nil {
				return err
			}
			amount := tx.Amount.Abs()
			if err := verifyAllocation(invoice.Amount, allocated, amount); err != nil {
				return err
			}

			if prior != nil {
				if err := decisions.Supersede(prior.ID); err != nil {
					return err
				}
			}
			breakdown, _ := json.Marshal(r.Score)
			decision := &models.MatchDecision{
				ID:            uuid.New(),
				TransactionID: tx.ID,
				InvoiceID:     r.InvoiceID,
				Amount:        amount,
				Score:         r.Score.Total,
				MatchedBy:     models.MatchedByAutomatic,
				Breakdown:     datatypes.JSON(breakdown),
				CreatedAt:     time.Now(),
			}
			if err := decisions.Create(decision); err != nil {
				return err
			}

			tx.Status = models.TxStatusAutoMatched
			tx.MatchedInvoiceID = r.InvoiceID
			tx.ConfidenceScore = r.Score.Total
			tx.MatchDetails = datatypes.JSON(breakdown)
			tx.MatchError = ""
			if err := transactions.Save(tx); err != nil {
				return err
			}

			s.audit(dbtx, tx.ID, "auto_match", priorInvoice(prior), r.InvoiceID, r.Score.Total, "system", "")

			status := models.InvoiceStatusPartial
			if invoice.Amount.Sub(allocated).Sub(amount).IsZero() {
				status = models.InvoiceStatusPaid
			}
			return invoices.SetStatus(invoice.ID, status)

		case matching.OutcomeNeedsReview, matching.OutcomeNoMatch:
			// Re-running over an unchanged no-match keeps the existing
			// decision row instead of churning the audit trail.
			unchanged := prior != nil && prior.InvoiceID == nil && prior.Score == r.Score.Total
			candidates, _ := json.Marshal(r.Candidates)
			if !unchanged {
				if prior != nil {
					if err := decisions.Supersede(prior.ID); err != nil {
						return err
					}
				}
				decision := &models.MatchDecision{
					ID:            uuid.New(),
					TransactionID: tx.ID,
					InvoiceID:     nil,
					Amount:        tx.Amount.Abs(),
					Score:         r.Score.Total,
					MatchedBy:     models.MatchedByAutomatic,
					Breakdown:     datatypes.JSON(candidates),
					CreatedAt:     time.Now(),
				}
				if err := decisions.Create(decision); err != nil {
					return err
				}
			}

			if r.Outcome == matching.OutcomeNeedsReview {
				tx.Status = models.TxStatusNeedsReview
			} else {
				tx.Status = models.TxStatusNoMatch
			}
			tx.MatchedInvoiceID = nil
			tx.ConfidenceScore = r.Score.Total
			tx.MatchDetails = datatypes.JSON(candidates)
			if r.Err != nil {
				tx.MatchError = r.Err.Error()
			} else {
				tx.MatchError = ""
			}
			return transactions.Save(tx)

		case matching.OutcomeFailed:
			tx.Status = models.TxStatusFailed
			tx.MatchedInvoiceID = nil
			if r.Err != nil {
				tx.MatchError = r.Err.Error()
			}
			return transactions.Save(tx)
		}
		return nil
	})

	if errors.Is(err, matching.ErrAllocationConflict) {
		// Lost the race at commit time; fail this transaction alone,
		// the way an engine-level conflict would.
		tx.Status = models.TxStatusFailed
		tx.MatchedInvoiceID = nil
		tx.ConfidenceScore = 0
		tx.MatchError = err.Error()
		return s.transactionRepo.Save(tx)
	}
	return err
}

// verifyAllocation enforces the remaining-due invariant at commit time,
// against current DB state rather than the run ledger's snapshot.
func verifyAllocation(invoiceAmount, allocated, amount decimal.Decimal) error {
	if amount.GreaterThan(invoiceAmount.Sub(allocated)) {
		return matching.ErrAllocationConflict
	}
	return nil
}

func priorInvoice(d *models.MatchDecision) *uuid.UUID {
	if d == nil {
		return nil
	}
	return d.InvoiceID
}

func (s *ReconciliationService) audit(db *gorm.DB, txID uuid.UUID, action string, prev, next *uuid.UUID, score float64, by, reason string) {
	entry := &models.MatchAuditLog{
		ID:              uuid.New(),
		TransactionID:   txID,
		Action:          action,
		PreviousInvoice: prev,
		NewInvoice:      next,
		Score:           score,
		PerformedBy:     by,
		Reason:          reason,
		CreatedAt:       time.Now(),
	}
	if err := db.Create(entry).Error; err != nil {
		log.Println("audit write failed:", err)
	}
}

// ManualMatch records an operator decision. It always wins over an
// automatic one, but the remaining-due invariant still holds: an
// over-allocating manual match is rejected, not clamped. The whole
// decision commits atomically under the invoice row lock.
func (s *ReconciliationService) ManualMatch(txID, invoiceID uuid.UUID, performedBy string) (*models.BankTransaction, error) {
	var tx *models.BankTransaction
	err := s.db.Transaction(func(dbtx *gorm.DB) error {
		invoices := repository.NewInvoiceRepository(dbtx)
		transactions := repository.NewBankTransactionRepository(dbtx)
		decisions := repository.NewMatchDecisionRepository(dbtx)

		var err error
		tx, err = transactions.GetByID(txID)
		if err != nil {
			return err
		}
		invoice, err := invoices.GetByIDForUpdate(invoiceID)
		if err != nil {
			return err
		}
		allocated, err := decisions.AllocatedTo(invoiceID, txID)
		if err != nil {
			return err
		}
		amount := tx.Amount.Abs()
		if err := verifyAllocation(invoice.Amount, allocated, amount); err != nil {
			return err
		}

		prior, err := decisions.ActiveByTransaction(txID)
		if err != nil {
			return err
		}
		if prior != nil {
			if err := decisions.Supersede(prior.ID); err != nil {
				return err
			}
		}

		decision := &models.MatchDecision{
			ID:            uuid.New(),
			TransactionID: txID,
			InvoiceID:     &invoiceID,
			Amount:        amount,
			Score:         1,
			MatchedBy:     models.MatchedByManual,
			CreatedAt:     time.Now(),
		}
		if err := decisions.Create(decision); err != nil {
			return err
		}

		tx.Status = models.TxStatusManualMatched
		tx.MatchedInvoiceID = &invoiceID
		tx.ConfidenceScore = 1
		tx.MatchError = ""
		if err := transactions.Save(tx); err != nil {
			return err
		}

		s.audit(dbtx, txID, "manual_match", priorInvoice(prior), &invoiceID, 1, performedBy, "")

		status := models.InvoiceStatusPartial
		if invoice.Amount.Sub(allocated).Sub(amount).IsZero() {
			status = models.InvoiceStatusPaid
		}
		return invoices.SetStatus(invoiceID, status)
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ErrNotMatched rejects settling a transaction that has no live match.
var ErrNotMatched = errors.New("reconciliation: transaction has no match to confirm")

func confirmable(status string) bool {
	return status == models.TxStatusAutoMatched || status == models.TxStatusManualMatched
}

// ConfirmTransaction settles a suggested match after operator review.
// Only matched transactions can be confirmed.
func (s *ReconciliationService) ConfirmTransaction(txID uuid.UUID) (*models.BankTransaction, error) {
	tx, err := s.transactionRepo.GetByID(txID)
	if err != nil {
		return nil, err
	}
	if !confirmable(tx.Status) {
		return nil, ErrNotMatched
	}
	tx.Status = models.TxStatusConfirmed
	if err := s.transactionRepo.Save(tx); err != nil {
		return nil, err
	}
	s.audit(s.db, txID, "confirm", tx.MatchedInvoiceID, tx.MatchedInvoiceID, tx.ConfidenceScore, "operator", "")
	return tx, nil
}

// RejectTransaction throws out the suggested match; the prior decision
// is superseded, not deleted.
func (s *ReconciliationService) RejectTransaction(txID uuid.UUID, reason string) (*models.BankTransaction, error) {
	tx, err := s.transactionRepo.GetByID(txID)
	if err != nil {
		return nil, err
	}
	prior, err := s.decisionRepo.ActiveByTransaction(txID)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		if err := s.decisionRepo.Supersede(prior.ID); err != nil {
			return nil, err
		}
	}

	previous := tx.MatchedInvoiceID
	tx.Status = models.TxStatusNoMatch
	tx.MatchedInvoiceID = nil
	tx.ConfidenceScore = 0
	if err := s.transactionRepo.Save(tx); err != nil {
		return nil, err
	}
	s.audit(s.db, txID, "reject", previous, nil, 0, "operator", reason)
	return tx, nil
}

// MarkTransactionExternal flags a statement line as out of ledger
// scope (e.g. an internal transfer); matching runs skip it afterwards.
func (s *ReconciliationService) MarkTransactionExternal(txID uuid.UUID) (*models.BankTransaction, error) {
	tx, err := s.transactionRepo.GetByID(txID)
	if err != nil {
		return nil, err
	}
	prior, err := s.decisionRepo.ActiveByTransaction(txID)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		if err := s.decisionRepo.Supersede(prior.ID); err != nil {
			return nil, err
		}
	}

	previous := tx.MatchedInvoiceID
	tx.Status = models.TxStatusExternal
	tx.MatchedInvoiceID = nil
	tx.ConfidenceScore = 0
	if err := s.transactionRepo.Save(tx); err != nil {
		return nil, err
	}
	s.audit(s.db, txID, "mark_external", previous, nil, 0, "operator", "")
	return tx, nil
}

// BulkConfirmAutoMatched settles every auto-matched transaction in a
// batch in one update.
func (s *ReconciliationService) BulkConfirmAutoMatched(batchID uuid.UUID) (int64, error) {
	result := s.db.Model(&models.BankTransaction{}).
		Where("upload_batch_id = ? AND status = ?", batchID, models.TxStatusAutoMatched).
		Update("status", models.TxStatusConfirmed)
	return result.RowsAffected, result.Error
}

// GenerateProposals groups live decisions (and review-flagged
// transactions when requested) for a direction and window into draft
// proposals, one per counterparty. Drafts are never auto-confirmed.
func (s *ReconciliationService) GenerateProposals(direction string, from, to time.Time, includeReview bool) ([]models.Proposal, error) {
	decisions, err := s.decisionRepo.ActiveInWindow(direction, from, to)
	if err != nil {
		return nil, err
	}

	var items []proposal.Item
	for _, d := range decisions {
		if d.InvoiceID == nil {
			continue
		}
		invoice, err := s.invoiceRepo.GetByID(*d.InvoiceID)
		if err != nil {
			continue
		}
		items = append(items, proposal.Item{
			TransactionID:    d.TransactionID,
			CounterpartyCUI:  invoice.CounterpartyCUI,
			CounterpartyName: invoice.CounterpartyName,
			Amount:           d.Amount,
			Currency:         invoice.Currency,
			Matched:          true,
		})
	}

	if includeReview {
		var reviewTxs []models.BankTransaction
		err := s.db.
			Where("direction = ? AND status = ?", direction, models.TxStatusNeedsReview).
			Where("posted_date BETWEEN ? AND ?", from, to).
			Find(&reviewTxs).Error
		if err != nil {
			return nil, err
		}
		for _, tx := range reviewTxs {
			items = append(items, proposal.Item{
				TransactionID:    tx.ID,
				CounterpartyCUI:  tx.RawCounterpartyCUI,
				CounterpartyName: tx.RawCounterpartyName,
				Amount:           tx.Amount,
				Currency:         tx.Currency,
				Matched:          false,
			})
		}
	}

	proposals := proposal.Group(proposal.KindForDirection(direction), items)
	for i := range proposals {
		if err := s.proposalRepo.Create(&proposals[i]); err != nil {
			return nil, err
		}
	}
	return proposals, nil
}

func (s *ReconciliationService) ListProposals(kind, status string) ([]models.Proposal, error) {
	return s.proposalRepo.List(kind, status)
}

// ConfirmProposal is the explicit operator action that settles a
// draft's constituent transactions.
func (s *ReconciliationService) ConfirmProposal(id uuid.UUID) (*models.Proposal, error) {
	rows, err := s.proposalRepo.Confirm(id)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	p, err := s.proposalRepo.GetByID(id)
	if err != nil {
		return nil, err
	}

	var txIDs []string
	if err := json.Unmarshal(p.TransactionIDs, &txIDs); err == nil {
		s.db.Model(&models.BankTransaction{}).
			Where("id IN ? AND status IN ?", txIDs, []string{
				models.TxStatusAutoMatched,
				models.TxStatusManualMatched,
			}).
			Update("status", models.TxStatusConfirmed)
	}
	return p, nil
}

// CreateInvoice inserts one invoice, ignoring duplicate numbers.
func (s *ReconciliationService) CreateInvoice(
	invoiceNumber, kind, name, cui string,
	amount decimal.Decimal,
	currency, status string,
	issueDate, dueDate time.Time,
) *models.Invoice {
	inv := &models.Invoice{
		ID:               uuid.New(),
		InvoiceNumber:    invoiceNumber,
		Kind:             kind,
		CounterpartyName: name,
		CounterpartyCUI:  cui,
		Amount:           amount,
		Currency:         currency,
		Status:           status,
		IssueDate:        issueDate,
		DueDate:          dueDate,
		CreatedAt:        time.Now(),
	}
	if err := s.invoiceRepo.Create(inv); err != nil {
		log.Println("invoice insert failed:", err)
	}
	return inv
}

// GetProgress prefers the in-memory progress of a running ingest over
// the batch row, which is only updated every N transactions.
func (s *ReconciliationService) GetProgress(batchID uuid.UUID) (*Progress, bool) {
	if val, ok := s.progressCache.Load(batchID); ok {
		return val.(*Progress), true
	}
	return nil, false
}

func (s *ReconciliationService) GetBatch(batchID uuid.UUID) (*models.ReconciliationBatch, error) {
	var batch models.ReconciliationBatch
	if err := s.db.First(&batch, "id = ?", batchID).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (s *ReconciliationService) ListTransactions(
	batchID uuid.UUID,
	status, cursor string,
	limit int,
	search string,
) ([]models.BankTransaction, string, bool, error) {
	return s.transactionRepo.ListByBatch(batchID, status, cursor, limit, search)
}

type BatchStats struct {
	Total       int64           `json:"total"`
	TotalAmount decimal.Decimal `json:"total_amount"`

	AutoMatchedCount int64           `json:"auto_matched_count"`
	AutoMatchedSum   decimal.Decimal `json:"auto_matched_sum"`

	NeedsReviewCount int64           `json:"needs_review_count"`
	NeedsReviewSum   decimal.Decimal `json:"needs_review_sum"`

	NoMatchCount int64           `json:"no_match_count"`
	NoMatchSum   decimal.Decimal `json:"no_match_sum"`

	FailedCount int64           `json:"failed_count"`
	FailedSum   decimal.Decimal `json:"failed_sum"`

	ConfirmedCount int64           `json:"confirmed_count"`
	ConfirmedSum   decimal.Decimal `json:"confirmed_sum"`
}

type statRow struct {
	Status string
	Count  int64
	Sum    decimal.Decimal
}

func (s *ReconciliationService) GetBatchStats(batchID uuid.UUID) (BatchStats, error) {
	stats := BatchStats{
		TotalAmount:    decimal.Zero,
		AutoMatchedSum: decimal.Zero,
		NeedsReviewSum: decimal.Zero,
		NoMatchSum:     decimal.Zero,
		FailedSum:      decimal.Zero,
		ConfirmedSum:   decimal.Zero,
	}
	var rows []statRow

	err := s.db.Model(&models.BankTransaction{}).
		Where("upload_batch_id = ?", batchID).
		Select("status, COUNT(*) as count, COALESCE(SUM(amount),0) as sum").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return stats, err
	}

	for _, r := range rows {
		stats.Total += r.Count
		stats.TotalAmount = stats.TotalAmount.Add(r.Sum)

		switch r.Status {
		case models.TxStatusAutoMatched, models.TxStatusManualMatched:
			stats.AutoMatchedCount += r.Count
			stats.AutoMatchedSum = stats.AutoMatchedSum.Add(r.Sum)
		case models.TxStatusNeedsReview:
			stats.NeedsReviewCount = r.Count
			stats.NeedsReviewSum = r.Sum
		case models.TxStatusNoMatch:
			stats.NoMatchCount = r.Count
			stats.NoMatchSum = r.Sum
		case models.TxStatusFailed:
			stats.FailedCount = r.Count
			stats.FailedSum = r.Sum
		case models.TxStatusConfirmed:
			stats.ConfirmedCount = r.Count
			stats.ConfirmedSum = r.Sum
		}
	}
	return stats, nil
}

// UpdateBatchProgress updates the processed count in a batch.
func (s *ReconciliationService) UpdateBatchProgress(id uuid.UUID, count int) error {
	s.progressCache.Store(id, &Progress{ProcessedCount: count, Status: "processing"})
	return s.db.Model(&models.ReconciliationBatch{}).
		Where("id = ?", id).
		Update("processed_count", count).
		Error
}

// MarkBatchCompleted sets batch status to completed.
func (s *ReconciliationService) MarkBatchCompleted(batchID uuid.UUID, count int) error {
	s.progressCache.Store(batchID, &Progress{ProcessedCount: count, Total: count, Status: "completed"})
	return s.db.Model(&models.ReconciliationBatch{}).
		Where("id = ?", batchID).
		Updates(map[string]interface{}{
			"processed_count":    count,
			"total_transactions": count,
			"status":             "completed",
			"completed_at":       time.Now(),
		}).Error
}

func (s *ReconciliationService) InvoiceRepo() *repository.InvoiceRepository {
	return s.invoiceRepo
}

func (s *ReconciliationService) DB() *gorm.DB {
	return s.db
}
