package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "tributary/internal/errors"
	"tributary/internal/services"
)

// ReviewHandler handles the human review surface: approvals, rejections and
// category corrections on staged transactions.
type ReviewHandler struct {
	pipelineService    services.PipelineServicer
	categorizerService services.CategorizerServicer
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(pipelineService services.PipelineServicer, categorizerService services.CategorizerServicer) *ReviewHandler {
	return &ReviewHandler{pipelineService: pipelineService, categorizerService: categorizerService}
}

// ApproveTransaction approves one staged transaction, creating its ledger
// event and reconciling it against the linked budget. Approving twice is a
// no-op returning the existing event.
func (h *ReviewHandler) ApproveTransaction(c *gin.Context) {
	ownerID, err := getOwnerID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.pipelineService.ApproveTransaction(ownerID, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyApproved {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// RejectTransactionRequest represents the request payload for a rejection.
type RejectTransactionRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// RejectTransaction rejects one staged transaction.
func (h *ReviewHandler) RejectTransaction(c *gin.Context) {
	ownerID, err := getOwnerID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req RejectTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	if err := h.pipelineService.RejectTransaction(ownerID, id, req.Reason); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

// ApproveBatchRequest represents the request payload for a bulk approval.
// An empty transaction list approves everything still pending.
type ApproveBatchRequest struct {
	TransactionIDs []string `json:"transaction_ids" binding:"omitempty,dive,uuid"`
}

// ApproveBatch approves staged transactions in bulk, continuing past
// individual failures and reporting aggregate counts.
func (h *ReviewHandler) ApproveBatch(c *gin.Context) {
	ownerID, err := getOwnerID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	batchID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ApproveBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.pipelineService.ApproveBatch(ownerID, batchID, req.TransactionIDs)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CorrectCategoryRequest represents the request payload for a category
// correction.
type CorrectCategoryRequest struct {
	Category string `json:"category" binding:"required,min=1,max=100"`
}

// CorrectCategory overrides the category of one staged transaction and
// feeds the correction into the learning loop.
func (h *ReviewHandler) CorrectCategory(c *gin.Context) {
	ownerID, err := getOwnerID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CorrectCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.categorizerService.RecordCorrection(ownerID, id, req.Category)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
