package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "tributary/internal/errors"
	"tributary/internal/models"
	"tributary/internal/pagination"
	"tributary/internal/provider"
	"tributary/internal/services"
)

// ImportHandler handles import pipeline requests.
type ImportHandler struct {
	pipelineService services.PipelineServicer
}

// NewImportHandler creates a new ImportHandler.
func NewImportHandler(pipelineService services.PipelineServicer) *ImportHandler {
	return &ImportHandler{pipelineService: pipelineService}
}

// ExecuteImportRequest represents the request payload for starting an import.
type ExecuteImportRequest struct {
	AccessToken    string    `json:"access_token" binding:"required"`
	AccountIDs     []string  `json:"account_ids" binding:"required,min=1,dive,required"`
	FromDate       time.Time `json:"from_date" binding:"required"`
	ToDate         time.Time `json:"to_date" binding:"required"`
	AutoCategorize *bool     `json:"auto_categorize"`
}

// ExecuteImport runs the import pipeline for the requested accounts and
// date range. The response batch is ready for review; categorization may
// still be running in the background.
func (h *ImportHandler) ExecuteImport(c *gin.Context) {
	ownerID, err := getOwnerID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ExecuteImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	if req.ToDate.Before(req.FromDate) {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "to_date must not precede from_date"))
		return
	}

	autoCategorize := true
	if req.AutoCategorize != nil {
		autoCategorize = *req.AutoCategorize
	}

	batch, err := h.pipelineService.ExecuteImport(c.Request.Context(), services.ImportRequest{
		OwnerID: ownerID,
		Connection: provider.Connection{
			AccessToken: req.AccessToken,
			AccountIDs:  req.AccountIDs,
		},
		FromDate:       req.FromDate,
		ToDate:         req.ToDate,
		AutoCategorize: autoCategorize,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"batch": batch})
}

// GetBatch returns one import batch with its counters and status.
func (h *ImportHandler) GetBatch(c *gin.Context) {
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

	batch, err := h.pipelineService.GetBatch(ownerID, batchID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"batch": batch})
}

// GetBatchTransactions returns the staged transactions of a batch,
// paginated.
func (h *ImportHandler) GetBatchTransactions(c *gin.Context) {
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

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	resp, err := h.pipelineService.GetStagedTransactionsForBatch(ownerID, batchID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// StreamProgress streams pipeline progress and error updates for one batch
// as server-sent events until the batch reaches a terminal status or the
// client disconnects.
func (h *ImportHandler) StreamProgress(c *gin.Context) {
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

	batch, err := h.pipelineService.GetBatch(ownerID, batchID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	progress, errs, cancel := h.pipelineService.Subscribe()
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	// Replay the current state so late subscribers see where the batch is.
	c.SSEvent("progress", services.ProgressUpdate{
		BatchID: batch.ID,
		Stage:   string(batch.Status),
		Message: "current status",
	})
	c.Writer.Flush()

	if isTerminalBatchStatus(batch.Status) {
		return
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case update, ok := <-progress:
			if !ok {
				return false
			}
			if update.BatchID != batchID {
				return true
			}
			c.SSEvent("progress", update)
			return !isTerminalBatchStatus(models.BatchStatus(update.Stage))
		case update, ok := <-errs:
			if !ok {
				return false
			}
			if update.BatchID != batchID {
				return true
			}
			c.SSEvent("error", update)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func isTerminalBatchStatus(status models.BatchStatus) bool {
	switch status {
	case models.BatchStatusCompleted, models.BatchStatusError, models.BatchStatusRejected:
		return true
	}
	return false
}
