// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("transaction_kind", validateTransactionKind)
		_ = v.RegisterValidation("review_status", validateReviewStatus)
		_ = v.RegisterValidation("batch_status", validateBatchStatus)
		_ = v.RegisterValidation("budget_period", validateBudgetPeriod)
		_ = v.RegisterValidation("event_type", validateEventType)
	}
}

func validateTransactionKind(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debit", "credit", "fee", "transfer":
		return true
	}
	return false
}

func validateReviewStatus(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "pending", "approved", "rejected", "needs_attention":
		return true
	}
	return false
}

func validateBatchStatus(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "created", "fetching", "normalizing", "deduplicating", "staging",
		"categorizing", "reviewing", "approving", "completed", "error", "rejected":
		return true
	}
	return false
}

func validateBudgetPeriod(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "monthly", "yearly":
		return true
	}
	return false
}

func validateEventType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "transfer", "retire":
		return true
	}
	return false
}
