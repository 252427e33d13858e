package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "tributary/internal/errors"
	"tributary/internal/pagination"
	"tributary/internal/services"
	"tributary/internal/uuid"
)

// EventHandler handles the immutable ledger event surface.
type EventHandler struct {
	eventService services.EventServicer
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(eventService services.EventServicer) *EventHandler {
	return &EventHandler{eventService: eventService}
}

// GetEvents lists the caller's economic events, paginated.
func (h *EventHandler) GetEvents(c *gin.Context) {
	ownerID, err := getOwnerID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	resp, err := h.eventService.ListEvents(ownerID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetEventByID returns one economic event.
func (h *EventHandler) GetEventByID(c *gin.Context) {
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

	event, err := h.eventService.GetEventByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	if event.CreatedBy != ownerID {
		respondWithError(c, apperrors.ErrEventNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"event": event})
}

// CreateCorrectionRequest represents the request payload for a corrective
// event. The original event is never edited; the correction references it.
type CreateCorrectionRequest struct {
	Reason   string   `json:"reason" binding:"required,min=1,max=500"`
	Quantity *float64 `json:"quantity" binding:"omitempty,gt=0"`
	Note     string   `json:"note" binding:"omitempty,max=500"`
}

// CreateCorrection records a corrective event for an existing event.
func (h *EventHandler) CreateCorrection(c *gin.Context) {
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

	var req CreateCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	correction, err := h.eventService.CreateCorrection(id, req.Reason, req.Quantity, req.Note, ownerID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"event": correction})
}

// ExportEvents serves the downstream-accounting surface behind the pipeline
// API key. The owner is named explicitly since there is no JWT on this
// group.
func (h *EventHandler) ExportEvents(c *gin.Context) {
	ownerID := c.Query("owner_id")
	if !uuid.IsValid(ownerID) {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid owner_id"))
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	resp, err := h.eventService.ListEvents(ownerID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
