package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bank-reconciliation-backend/internal/models"
	service "bank-reconciliation-backend/internal/services/reconciliation"
)

type ProposalHandler struct {
	service *service.ReconciliationService
}

func NewProposalHandler(s *service.ReconciliationService) *ProposalHandler {
	return &ProposalHandler{service: s}
}

// Generate builds draft proposals for a direction and posted-date
// window. Drafts only; confirmation is a separate explicit call.
func (h *ProposalHandler) Generate(c *gin.Context) {
	var payload struct {
		Direction     string `json:"direction"`
		From          string `json:"from"`
		To            string `json:"to"`
		IncludeReview bool   `json:"include_review"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if payload.Direction != models.DirectionInflow && payload.Direction != models.DirectionOutflow {
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be inflow or outflow"})
		return
	}

	from, err := time.Parse("2006-01-02", payload.From)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
		return
	}
	to, err := time.Parse("2006-01-02", payload.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
		return
	}

	proposals, err := h.service.GenerateProposals(payload.Direction, from, to, payload.IncludeReview)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposals": proposals})
}

func (h *ProposalHandler) List(c *gin.Context) {
	proposals, err := h.service.ListProposals(c.Query("kind"), c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": proposals})
}

// Confirm executes a draft proposal, settling its transactions.
func (h *ProposalHandler) Confirm(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal ID"})
		return
	}

	p, err := h.service.ConfirmProposal(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "draft proposal not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "proposal confirmed", "proposal": p})
}
