package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "tributary/internal/errors"
	"tributary/internal/models"
	"tributary/internal/pagination"
	"tributary/internal/services"
)

// BudgetHandler handles budget and budget-linkage requests.
type BudgetHandler struct {
	budgetService services.BudgetServicer
}

// NewBudgetHandler creates a new BudgetHandler.
func NewBudgetHandler(budgetService services.BudgetServicer) *BudgetHandler {
	return &BudgetHandler{budgetService: budgetService}
}

// BudgetCategoryRequest represents one allocation bucket in a budget
// creation request.
type BudgetCategoryRequest struct {
	Name          string  `json:"name" binding:"required,min=1,max=100"`
	PlannedAmount float64 `json:"planned_amount" binding:"required,gt=0"`
}

// CreateBudgetRequest represents the request payload for creating a budget.
type CreateBudgetRequest struct {
	Name       string                  `json:"name" binding:"required,min=1,max=100"`
	Period     models.BudgetPeriod     `json:"period" binding:"required,budget_period"`
	StartDate  time.Time               `json:"start_date" binding:"required"`
	EndDate    *time.Time              `json:"end_date"`
	Categories []BudgetCategoryRequest `json:"categories" binding:"required,min=1,dive"`
}

// CreateBudget handles the creation of a new budget with its categories.
func (h *BudgetHandler) CreateBudget(c *gin.Context) {
	ownerID, err := getOwnerID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	categories := make([]services.BudgetCategoryInput, 0, len(req.Categories))
	for _, cat := range req.Categories {
		categories = append(categories, services.BudgetCategoryInput{
			Name:          cat.Name,
			PlannedAmount: cat.PlannedAmount,
		})
	}

	budget, err := h.budgetService.CreateBudget(ownerID, req.Name, req.Period, req.StartDate, req.EndDate, categories)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"budget": budget})
}

// GetBudgets handles listing budgets for the authenticated owner.
func (h *BudgetHandler) GetBudgets(c *gin.Context) {
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

	resp, err := h.budgetService.ListBudgets(ownerID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetBudgetByID returns one budget with its categories.
func (h *BudgetHandler) GetBudgetByID(c *gin.Context) {
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

	budget, err := h.budgetService.GetBudget(ownerID, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"budget": budget})
}

// GetBudgetHealth returns the spend-against-plan classification for one
// budget.
func (h *BudgetHandler) GetBudgetHealth(c *gin.Context) {
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

	health, err := h.budgetService.GetBudgetHealth(ownerID, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, health)
}

// LinkTransactionRequest represents the request payload for pointing a
// staged transaction at a budget category.
type LinkTransactionRequest struct {
	BudgetID         string `json:"budget_id" binding:"required,uuid"`
	BudgetCategoryID string `json:"budget_category_id" binding:"required,uuid"`
}

// LinkTransaction sets the budget linkage on a pending staged transaction.
func (h *BudgetHandler) LinkTransaction(c *gin.Context) {
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

	var req LinkTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	if err := h.budgetService.LinkTransaction(ownerID, id, req.BudgetID, req.BudgetCategoryID); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "linked"})
}
