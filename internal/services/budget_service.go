package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "tributary/internal/errors"
	"tributary/internal/models"
	"tributary/internal/pagination"
)

// BudgetCategoryInput describes one allocation bucket at budget creation.
type BudgetCategoryInput struct {
	Name          string
	PlannedAmount float64
}

type budgetService struct {
	db *gorm.DB
}

// NewBudgetService creates a budget service backed by the given database.
func NewBudgetService(db *gorm.DB) BudgetServicer {
	return &budgetService{db: db}
}

// CreateBudget creates a budget with its allocation categories in one
// transaction.
func (s *budgetService) CreateBudget(ownerID, name string, period models.BudgetPeriod, startDate time.Time, endDate *time.Time, categories []BudgetCategoryInput) (*models.Budget, error) {
	budget := &models.Budget{
		OwnerID:   ownerID,
		Name:      name,
		Period:    period,
		StartDate: startDate,
		EndDate:   endDate,
		IsActive:  true,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(budget).Error; err != nil {
			return err
		}
		for _, in := range categories {
			category := &models.BudgetCategory{
				BudgetID:      budget.ID,
				OwnerID:       ownerID,
				Name:          in.Name,
				PlannedAmount: in.PlannedAmount,
			}
			if err := tx.Create(category).Error; err != nil {
				return err
			}
			budget.Categories = append(budget.Categories, *category)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return budget, nil
}

// GetBudget returns one budget with its categories.
func (s *budgetService) GetBudget(ownerID, budgetID string) (*models.Budget, error) {
	var budget models.Budget
	err := s.db.Preload("Categories").
		Where("id = ? AND owner_id = ?", budgetID, ownerID).
		First(&budget).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &budget, nil
}

// ListBudgets lists the owner's budgets, paginated, newest first.
func (s *budgetService) ListBudgets(ownerID string, page pagination.PageRequest) (*pagination.PageResponse[models.Budget], error) {
	page.Defaults()

	query := s.db.Model(&models.Budget{}).Where("owner_id = ?", ownerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var budgets []models.Budget
	err := query.Preload("Categories").
		Order("created_at DESC").
		Scopes(pagination.Paginate(page)).
		Find(&budgets).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	resp := pagination.NewPageResponse(budgets, page.Page, page.PageSize, total)
	return &resp, nil
}

// GetBudgetHealth classifies the budget by actual spend against the planned
// total across all of its categories.
func (s *budgetService) GetBudgetHealth(ownerID, budgetID string) (*BudgetHealth, error) {
	budget, err := s.GetBudget(ownerID, budgetID)
	if err != nil {
		return nil, err
	}

	var planned, actual float64
	for _, c := range budget.Categories {
		planned += c.PlannedAmount
		actual += c.ActualAmount
	}

	return &BudgetHealth{
		BudgetID:      budgetID,
		PlannedAmount: planned,
		ActualAmount:  actual,
		Variance:      actual - planned,
		Status:        classifyBudgetHealth(planned, actual),
	}, nil
}

// LinkTransaction sets the budget linkage on a pending staged transaction
// so approval can reconcile it. The category must belong to the budget and
// both must belong to the caller.
func (s *budgetService) LinkTransaction(ownerID, stagedTransactionID, budgetID, budgetCategoryID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var staged models.StagedTransaction
		err := tx.Where("id = ? AND owner_id = ?", stagedTransactionID, ownerID).First(&staged).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrStagedTransactionNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if staged.ReviewStatus != models.ReviewStatusPending {
			return apperrors.ErrInvalidReviewTransition
		}

		var category models.BudgetCategory
		err = tx.Where("id = ? AND budget_id = ? AND owner_id = ?", budgetCategoryID, budgetID, ownerID).
			First(&category).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrBudgetCategoryNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		return tx.Model(&staged).Updates(map[string]interface{}{
			"budget_id":          budgetID,
			"budget_category_id": budgetCategoryID,
		}).Error
	})
}
