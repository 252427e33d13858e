// Package errors provides custom error types for the tributary API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrForbidden    = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Import batch errors.
var (
	ErrBatchNotFound           = &AppError{Code: "BATCH_NOT_FOUND", Message: "Import batch not found", StatusCode: http.StatusNotFound}
	ErrInvalidStatusTransition = &AppError{Code: "INVALID_STATUS_TRANSITION", Message: "Batch status cannot move backwards", StatusCode: http.StatusConflict}
	ErrFetchFailed             = &AppError{Code: "FETCH_FAILED", Message: "Fetching transactions from the aggregator failed", StatusCode: http.StatusBadGateway}
	ErrImportAlreadyInProgress = &AppError{Code: "IMPORT_IN_PROGRESS", Message: "An import is already running for this owner", StatusCode: http.StatusConflict}
)

// Staged transaction / review errors.
var (
	ErrStagedTransactionNotFound = &AppError{Code: "STAGED_TRANSACTION_NOT_FOUND", Message: "Staged transaction not found", StatusCode: http.StatusNotFound}
	ErrInvalidReviewTransition   = &AppError{Code: "INVALID_REVIEW_TRANSITION", Message: "Review status cannot change once terminal", StatusCode: http.StatusConflict}
	ErrDuplicateTransaction      = &AppError{Code: "DUPLICATE_TRANSACTION", Message: "A transaction flagged as duplicate cannot be approved", StatusCode: http.StatusBadRequest}
)

// Economic event errors.
var (
	ErrTransactionNotApproved = &AppError{Code: "TRANSACTION_NOT_APPROVED", Message: "Only approved transactions can become ledger events", StatusCode: http.StatusBadRequest}
	ErrEventAlreadyCreated    = &AppError{Code: "EVENT_ALREADY_CREATED", Message: "A ledger event already exists for this transaction", StatusCode: http.StatusConflict}
	ErrEventNotFound          = &AppError{Code: "EVENT_NOT_FOUND", Message: "Economic event not found", StatusCode: http.StatusNotFound}
	ErrEventAlreadyCorrected  = &AppError{Code: "EVENT_ALREADY_CORRECTED", Message: "This event has already been corrected", StatusCode: http.StatusConflict}
)

// Budget / reconciliation errors.
var (
	ErrBudgetNotFound         = &AppError{Code: "BUDGET_NOT_FOUND", Message: "Budget not found", StatusCode: http.StatusNotFound}
	ErrBudgetCategoryNotFound = &AppError{Code: "BUDGET_CATEGORY_NOT_FOUND", Message: "Budget category not found", StatusCode: http.StatusNotFound}
)

// Classification errors.
var (
	ErrClassifierUnavailable = &AppError{Code: "CLASSIFIER_UNAVAILABLE", Message: "The external classifier is unavailable", StatusCode: http.StatusServiceUnavailable}
)
