package handler

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-reconciliation-backend/internal/models"
	service "bank-reconciliation-backend/internal/services/reconciliation"
)

type ReconciliationHandler struct {
	service *service.ReconciliationService
}

func NewReconciliationHandler(s *service.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{service: s}
}

// Upload ingests a bank statement CSV, creates a batch, and processes
// it in the background. Expected columns:
// posted_date, counterparty_name, counterparty_cui, description, reference, amount, currency
func (h *ReconciliationHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}

	batch := h.service.CreateBatch(header.Filename)

	// The upload stays open until ingestion finishes; closing it here
	// would yank the file out from under the goroutine.
	go func() {
		defer file.Close()
		h.processCSV(batch.ID, file)
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"batch_id": batch.ID.String(),
		"status":   "processing",
	})
}

func (h *ReconciliationHandler) processCSV(batchID uuid.UUID, reader io.Reader) {
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1

	// Skip header
	_, _ = csvReader.Read()

	count := 0
	for {
		record, skip, done := nextRecord(csvReader)
		if done {
			break
		}
		if skip {
			continue
		}
		if len(record) < 6 || strings.Join(record, "") == "" {
			continue
		}

		posted, err := parseDate(strings.TrimSpace(record[0]))
		if err != nil {
			continue
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(record[5]))
		if err != nil {
			continue
		}
		currency := "RON"
		if len(record) > 6 && strings.TrimSpace(record[6]) != "" {
			currency = strings.TrimSpace(record[6])
		}

		h.service.CreateTransaction(
			batchID,
			strings.TrimSpace(record[1]),
			strings.TrimSpace(record[2]),
			strings.TrimSpace(record[3]),
			strings.TrimSpace(record[4]),
			amount,
			currency,
			posted,
		)
		count++

		if count%100 == 0 {
			h.service.UpdateBatchProgress(batchID, count)
		}
	}

	h.service.MarkBatchCompleted(batchID, count)

	// Kick off the automatic run once ingestion is done.
	if _, err := h.service.RunMatching(context.Background(), batchID); err != nil {
		log.Println("automatic matching failed for batch", batchID, ":", err)
	}
}

// RunMatching re-runs automatic matching over a batch. Safe to repeat:
// manual decisions are untouched and unchanged matches stay put.
func (h *ReconciliationHandler) RunMatching(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("batchId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch ID"})
		return
	}

	result, err := h.service.RunMatching(c.Request.Context(), batchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"auto_matched": result.AutoMatched,
		"unchanged":    result.Unchanged,
		"needs_review": result.NeedsReview,
		"no_match":     result.NoMatch,
		"skipped":      result.Skipped,
		"failed":       result.Failed,
	})
}

func (h *ReconciliationHandler) GetBatchProgress(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("batchId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch ID"})
		return
	}
	if p, ok := h.service.GetProgress(batchID); ok {
		c.JSON(http.StatusOK, gin.H{
			"processed_count": p.ProcessedCount,
			"total":           p.Total,
			"status":          p.Status,
		})
		return
	}
	batch, err := h.service.GetBatch(batchID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"processed_count": batch.ProcessedCount,
		"total":           batch.TotalTransactions,
		"status":          batch.Status,
	})
}

func (h *ReconciliationHandler) ListTransactions(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("batchId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch ID"})
		return
	}

	status := c.Query("status")
	cursor := c.Query("cursor")
	search := c.Query("search")
	limit := 50

	items, nextCursor, hasMore, err := h.service.ListTransactions(batchID, status, cursor, limit, search)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stats, _ := h.service.GetBatchStats(batchID)

	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
		"stats":       stats,
	})
}

func (h *ReconciliationHandler) ConfirmTransaction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	tx, err := h.service.ConfirmTransaction(id)
	if errors.Is(err, service.ErrNotMatched) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction confirmed", "transaction": tx})
}

func (h *ReconciliationHandler) RejectTransaction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	var payload struct {
		Reason string `json:"reason"`
	}
	_ = c.BindJSON(&payload)

	tx, err := h.service.RejectTransaction(id, payload.Reason)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction rejected", "transaction": tx})
}

func (h *ReconciliationHandler) ManualMatchTransaction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	var payload struct {
		InvoiceID   string `json:"invoice_id"`
		PerformedBy string `json:"performed_by"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	invoiceID, err := uuid.Parse(payload.InvoiceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice ID"})
		return
	}
	performedBy := payload.PerformedBy
	if performedBy == "" {
		performedBy = "operator"
	}

	tx, err := h.service.ManualMatch(id, invoiceID, performedBy)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction manually matched", "transaction": tx})
}

func (h *ReconciliationHandler) MarkTransactionExternal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	tx, err := h.service.MarkTransactionExternal(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction marked as external", "transaction": tx})
}

func (h *ReconciliationHandler) BulkConfirmAutoMatched(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("batchId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch ID"})
		return
	}

	count, err := h.service.BulkConfirmAutoMatched(batchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":              "bulk confirm completed",
		"transactions_updated": count,
	})
}

func (h *ReconciliationHandler) SearchInvoices(c *gin.Context) {
	query := c.Query("q")
	var statuses []string
	if s := c.Query("statuses"); s != "" {
		statuses = strings.Split(s, ",")
	}

	invoices, err := h.service.InvoiceRepo().Search(query, statuses)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": invoices})
}

func (h *ReconciliationHandler) CreateInvoice(c *gin.Context) {
	var payload struct {
		InvoiceNumber   string `json:"invoice_number"`
		Kind            string `json:"kind"`
		CounterpartyCUI string `json:"counterparty_cui"`
		CustomerName    string `json:"customer_name"`
		Amount          string `json:"amount"`
		Currency        string `json:"currency"`
		Status          string `json:"status"`
		IssueDate       string `json:"issue_date"`
		DueDate         string `json:"due_date"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil || !amount.IsPositive() || payload.CustomerName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer name or amount"})
		return
	}

	dueDate, err := parseDate(payload.DueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due date"})
		return
	}
	issueDate := dueDate
	if payload.IssueDate != "" {
		if d, err := parseDate(payload.IssueDate); err == nil {
			issueDate = d
		}
	}

	invoiceNumber := payload.InvoiceNumber
	if invoiceNumber == "" {
		invoiceNumber = uuid.New().String()
	}
	kind := payload.Kind
	if kind == "" {
		kind = models.InvoiceKindIssued
	}
	status := payload.Status
	if status == "" {
		status = models.InvoiceStatusOpen
	}
	currency := payload.Currency
	if currency == "" {
		currency = "RON"
	}

	invoice := h.service.CreateInvoice(
		invoiceNumber, kind, payload.CustomerName, payload.CounterpartyCUI,
		amount, currency, status, issueDate, dueDate,
	)
	c.JSON(http.StatusOK, gin.H{"message": "invoice created", "invoice": invoice})
}

// UploadInvoices ingests an invoice CSV. Expected columns:
// invoice_number, kind, counterparty_name, counterparty_cui, amount, currency, status, issue_date, due_date
func (h *ReconciliationHandler) UploadInvoices(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	log.Println("Received file:", header.Filename, "size:", header.Size)

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	// Skip header
	if _, err := reader.Read(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read CSV header"})
		return
	}

	inserted := 0
	rowNum := 0
	for {
		record, skip, done := nextRecord(reader)
		rowNum++
		if done {
			break
		}
		if skip {
			log.Printf("skipping row %d: malformed", rowNum)
			continue
		}
		if len(record) < 9 {
			log.Printf("skipping row %d: insufficient columns", rowNum)
			continue
		}

		invoiceNumber := strings.TrimSpace(record[0])
		if invoiceNumber == "" {
			invoiceNumber = uuid.New().String()
		}
		kind := strings.TrimSpace(record[1])
		if kind != models.InvoiceKindIssued && kind != models.InvoiceKindReceived {
			log.Printf("skipping row %d: invalid kind %q", rowNum, kind)
			continue
		}
		name := strings.TrimSpace(record[2])
		cui := strings.TrimSpace(record[3])
		amount, err := decimal.NewFromString(strings.TrimSpace(record[4]))
		if err != nil || !amount.IsPositive() || name == "" {
			log.Printf("skipping row %d: invalid name or amount", rowNum)
			continue
		}
		currency := strings.TrimSpace(record[5])
		if currency == "" {
			currency = "RON"
		}
		status := strings.TrimSpace(record[6])
		if status == "" {
			status = models.InvoiceStatusOpen
		}
		issueDate, err := parseDate(strings.TrimSpace(record[7]))
		if err != nil {
			log.Printf("skipping row %d: invalid issue date", rowNum)
			continue
		}
		dueDate, err := parseDate(strings.TrimSpace(record[8]))
		if err != nil {
			log.Printf("skipping row %d: invalid due date", rowNum)
			continue
		}

		h.service.CreateInvoice(invoiceNumber, kind, name, cui, amount, currency, status, issueDate, dueDate)
		inserted++
	}

	c.JSON(http.StatusOK, gin.H{
		"file":          header.Filename,
		"invoicesAdded": inserted,
	})
}

// nextRecord reads one CSV row. Malformed rows are recoverable and get
// skipped; any other reader failure ends the ingest so a broken stream
// cannot spin the loop forever.
func nextRecord(r *csv.Reader) (record []string, skip, done bool) {
	record, err := r.Read()
	if err == io.EOF {
		return nil, false, true
	}
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, true, false
		}
		log.Println("csv read aborted:", err)
		return nil, false, true
	}
	return record, false, false
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		d, err = time.Parse("02-01-2006", s)
	}
	return d, err
}
