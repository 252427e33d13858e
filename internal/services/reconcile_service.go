package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "tributary/internal/errors"
	"tributary/internal/models"
)

// Health thresholds over the whole budget, as ratios of actual to planned.
const (
	healthWarningRatio  = 1.10
	healthCriticalRatio = 1.20
)

// reconcilerService applies newly created ledger events to budget
// allocations. The budget rows own the running totals; the reconciler only
// reads the previous actual and writes the accumulated value back.
type reconcilerService struct {
	db *gorm.DB
}

// NewReconcilerService creates a new ReconcilerServicer.
func NewReconcilerService(db *gorm.DB) ReconcilerServicer {
	return &reconcilerService{db: db}
}

// Reconcile applies the staged transaction's amount to its linked budget
// category inside the caller's transaction. Missing linkage is a soft skip;
// a linked but missing category is a hard failure so spend is never silently
// attributed to a non-existent bucket.
func (s *reconcilerService) Reconcile(db *gorm.DB, staged *models.StagedTransaction, eventID string) (*ReconciliationResult, error) {
	if staged.BudgetID == nil || staged.BudgetCategoryID == nil {
		return &ReconciliationResult{
			Reconciled:   false,
			ReconciledAt: time.Now(),
		}, nil
	}

	var category models.BudgetCategory
	if err := db.Where("id = ? AND budget_id = ?", *staged.BudgetCategoryID, *staged.BudgetID).
		First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.WithMessage(apperrors.ErrBudgetCategoryNotFound,
				"budget category "+*staged.BudgetCategoryID+" not found, refusing to attribute spend")
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	previousActual := category.ActualAmount
	amountAdded := staged.Amount
	newActual := previousActual + amountAdded

	if err := db.Model(&category).Update("actual_amount", newActual).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	health, err := s.budgetHealth(db, *staged.BudgetID)
	if err != nil {
		return nil, err
	}

	return &ReconciliationResult{
		BudgetCategoryID: category.ID,
		PreviousActual:   previousActual,
		NewActual:        newActual,
		AmountAdded:      amountAdded,
		VarianceBefore:   previousActual - category.PlannedAmount,
		VarianceAfter:    newActual - category.PlannedAmount,
		HealthStatus:     health,
		Reconciled:       true,
		ReconciledAt:     time.Now(),
	}, nil
}

// budgetHealth classifies the whole budget, not just the one category:
// healthy at or below 110% of the planned total, warning up to 120%,
// critical beyond.
func (s *reconcilerService) budgetHealth(db *gorm.DB, budgetID string) (models.HealthStatus, error) {
	type totals struct {
		Planned float64
		Actual  float64
	}
	var t totals
	if err := db.Model(&models.BudgetCategory{}).
		Select("COALESCE(SUM(planned_amount), 0) AS planned, COALESCE(SUM(actual_amount), 0) AS actual").
		Where("budget_id = ?", budgetID).
		Scan(&t).Error; err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return classifyBudgetHealth(t.Planned, t.Actual), nil
}

// classifyBudgetHealth bands actual spend against the planned total. An
// unplanned budget is always healthy.
func classifyBudgetHealth(planned, actual float64) models.HealthStatus {
	if planned <= 0 {
		return models.HealthStatusHealthy
	}
	ratio := actual / planned
	switch {
	case ratio <= healthWarningRatio:
		return models.HealthStatusHealthy
	case ratio <= healthCriticalRatio:
		return models.HealthStatusWarning
	default:
		return models.HealthStatusCritical
	}
}
