package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	handler "bank-reconciliation-backend/internal/handlers"
	"bank-reconciliation-backend/internal/repository"
	"bank-reconciliation-backend/internal/services/matching"
	service "bank-reconciliation-backend/internal/services/reconciliation"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB, matchCfg matching.Config) {
	invoiceRepo := repository.NewInvoiceRepository(db)
	transactionRepo := repository.NewBankTransactionRepository(db)
	decisionRepo := repository.NewMatchDecisionRepository(db)
	proposalRepo := repository.NewProposalRepository(db)

	reconService := service.NewReconciliationService(
		invoiceRepo,
		transactionRepo,
		decisionRepo,
		proposalRepo,
		matchCfg,
	)

	reconHandler := handler.NewReconciliationHandler(reconService)
	proposalHandler := handler.NewProposalHandler(reconService)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Reconciliation batch routes
	recon := api.Group("/reconciliation")
	recon.POST("/upload", reconHandler.Upload)
	recon.GET("/:batchId", reconHandler.GetBatchProgress)
	recon.GET("/:batchId/transactions", reconHandler.ListTransactions)
	recon.POST("/:batchId/match", reconHandler.RunMatching)
	recon.POST("/:batchId/bulk-confirm", reconHandler.BulkConfirmAutoMatched)

	// Transaction-level routes
	tx := api.Group("/transactions")
	tx.POST("/:id/confirm", reconHandler.ConfirmTransaction)
	tx.POST("/:id/reject", reconHandler.RejectTransaction)
	tx.POST("/:id/match", reconHandler.ManualMatchTransaction)
	tx.POST("/:id/external", reconHandler.MarkTransactionExternal)

	// Invoice routes
	invoices := api.Group("/invoices")
	{
		invoices.POST("", reconHandler.CreateInvoice)
		invoices.POST("/upload", reconHandler.UploadInvoices)
		invoices.GET("/search", reconHandler.SearchInvoices)
	}

	// Proposal routes
	proposals := api.Group("/proposals")
	{
		proposals.POST("/generate", proposalHandler.Generate)
		proposals.GET("", proposalHandler.List)
		proposals.POST("/:id/confirm", proposalHandler.Confirm)
	}
}
