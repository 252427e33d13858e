package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"tributary/internal/jobs"
	"tributary/internal/models"
	"tributary/internal/pagination"
	"tributary/internal/provider"
)

// DuplicateMatch is the outcome of running one external transaction through
// the duplicate detection tiers.
type DuplicateMatch struct {
	IsDuplicate bool    `json:"is_duplicate"`
	Confidence  float64 `json:"confidence"` // 0-100
	MatchTier   string  `json:"match_tier"` // exact | hash | fuzzy | none
}

// DuplicateDetection pairs a raw transaction with its match result, used
// when filtering a whole batch.
type DuplicateDetection struct {
	Transaction models.ExternalTransaction
	Match       DuplicateMatch
}

// DuplicateServicer defines the contract for duplicate detection.
// Detection and registration are separate: callers must register a
// transaction once it is accepted so future detections see it.
type DuplicateServicer interface {
	Detect(ownerID string, tx models.ExternalTransaction) (*DuplicateMatch, error)
	Register(ownerID string, tx models.ExternalTransaction) error
	RegisterTx(db *gorm.DB, ownerID string, tx models.ExternalTransaction) error
	// FilterBatch splits a batch into fresh transactions and duplicates,
	// catching both externally-registered and within-batch duplicates.
	FilterBatch(ownerID string, txs []models.ExternalTransaction) (fresh []models.ExternalTransaction, duplicates []DuplicateDetection, err error)
}

// CategorySuggestion is a confidence-scored category assignment.
type CategorySuggestion struct {
	Category   string                `json:"category"`
	Confidence float64               `json:"confidence"` // 0-100
	Reasoning  string                `json:"reasoning,omitempty"`
	Source     models.CategorySource `json:"source"`
}

// CorrectionResult reports what the learning loop did with one correction.
type CorrectionResult struct {
	MerchantName   string `json:"merchant_name"`
	Category       string `json:"category"`
	PatternUpdated bool   `json:"pattern_updated"`
	// RuleEligible signals that an auto-categorization rule may be created
	// for this merchant. Rule creation itself is an external policy call.
	RuleEligible bool `json:"rule_eligible"`
}

// CategorizerServicer defines the contract for transaction categorization
// and the correction learning loop.
type CategorizerServicer interface {
	// CategorizeBatch assigns categories to every uncategorized staged
	// transaction in the batch: pattern table first, then the external
	// classifier, then the keyword fallback on classifier failure.
	CategorizeBatch(ctx context.Context, batchID string) error
	// SuggestCategory runs the merchant/keyword pattern table only.
	SuggestCategory(merchantName, description string) *CategorySuggestion
	// RecordCorrection absorbs a human category override for learning.
	RecordCorrection(ownerID, stagedTransactionID, correctedCategory string) (*CorrectionResult, error)
}

// EventServicer defines the contract for converting approved staged
// transactions into immutable ledger events.
type EventServicer interface {
	// CreateFromStaged creates the event inside the caller's transaction
	// and links it to the staged row. The staged transaction must be
	// approved and not yet converted.
	CreateFromStaged(db *gorm.DB, staged *models.StagedTransaction, createdBy string) (*models.EconomicEvent, error)
	// CreateMultipleFromStaged tolerates individual failures: it skips
	// and continues, returning only the events actually created.
	CreateMultipleFromStaged(stagedIDs []string, createdBy string) ([]models.EconomicEvent, error)
	// CreateCorrection records a corrective event referencing the
	// original; the original's economic fields are never edited.
	CreateCorrection(originalEventID, reason string, quantity *float64, note, createdBy string) (*models.EconomicEvent, error)
	GetEventByID(eventID string) (*models.EconomicEvent, error)
	ListEvents(createdBy string, page pagination.PageRequest) (*pagination.PageResponse[models.EconomicEvent], error)
}

// ReconciliationResult is the output of applying an event to a budget.
type ReconciliationResult struct {
	BudgetCategoryID string              `json:"budget_category_id,omitempty"`
	PreviousActual   float64             `json:"previous_actual"`
	NewActual        float64             `json:"new_actual"`
	AmountAdded      float64             `json:"amount_added"`
	VarianceBefore   float64             `json:"variance_before"`
	VarianceAfter    float64             `json:"variance_after"`
	HealthStatus     models.HealthStatus `json:"health_status,omitempty"`
	Reconciled       bool                `json:"reconciled"`
	ReconciledAt     time.Time           `json:"reconciled_at"`
}

// ReconcilerServicer applies newly created events to budget allocations.
type ReconcilerServicer interface {
	// Reconcile runs inside the caller's transaction. A staged transaction
	// without budget linkage yields a non-reconciled result, not an error;
	// a linked but missing category is a hard failure.
	Reconcile(db *gorm.DB, staged *models.StagedTransaction, eventID string) (*ReconciliationResult, error)
}

// BudgetHealth summarizes a budget's spend against plan.
type BudgetHealth struct {
	BudgetID      string              `json:"budget_id"`
	PlannedAmount float64             `json:"planned_amount"`
	ActualAmount  float64             `json:"actual_amount"`
	Variance      float64             `json:"variance"`
	Status        models.HealthStatus `json:"status"`
}

// BudgetServicer manages budgets and their allocation categories, and the
// linkage from staged transactions into them.
type BudgetServicer interface {
	CreateBudget(ownerID, name string, period models.BudgetPeriod, startDate time.Time, endDate *time.Time, categories []BudgetCategoryInput) (*models.Budget, error)
	GetBudget(ownerID, budgetID string) (*models.Budget, error)
	ListBudgets(ownerID string, page pagination.PageRequest) (*pagination.PageResponse[models.Budget], error)
	GetBudgetHealth(ownerID, budgetID string) (*BudgetHealth, error)
	// LinkTransaction points a pending staged transaction at a budget
	// category so approval can reconcile it.
	LinkTransaction(ownerID, stagedTransactionID, budgetID, budgetCategoryID string) error
}

// ImportRequest describes one import run.
type ImportRequest struct {
	OwnerID        string
	Connection     provider.Connection
	FromDate       time.Time
	ToDate         time.Time
	AutoCategorize bool
}

// ProgressUpdate is one entry on the pipeline progress stream.
type ProgressUpdate struct {
	BatchID string `json:"batch_id"`
	Stage   string `json:"stage"`
	Percent int    `json:"percent"` // 0-100
	Message string `json:"message"`
}

// ErrorUpdate is one entry on the pipeline error stream.
type ErrorUpdate struct {
	BatchID string `json:"batch_id"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// ApprovalResult reports one approved staged transaction with its event and
// reconciliation outcome.
type ApprovalResult struct {
	Transaction    *models.StagedTransaction `json:"transaction"`
	Event          *models.EconomicEvent     `json:"event,omitempty"`
	Reconciliation *ReconciliationResult     `json:"reconciliation,omitempty"`
	// AlreadyApproved marks an idempotent no-op call.
	AlreadyApproved bool `json:"already_approved"`
}

// BulkApprovalResult aggregates a batch approval. Individual failures never
// roll back individual successes.
type BulkApprovalResult struct {
	Approved int      `json:"approved"`
	Failed   int      `json:"failed"`
	EventIDs []string `json:"event_ids"`
	Errors   []string `json:"errors,omitempty"`
}

// PipelineServicer sequences fetch, normalize, deduplicate, stage and
// categorize, and owns the review/approval operations.
type PipelineServicer interface {
	ExecuteImport(ctx context.Context, req ImportRequest) (*models.ImportBatch, error)
	GetBatch(ownerID, batchID string) (*models.ImportBatch, error)
	GetStagedTransactionsForBatch(ownerID, batchID string, page pagination.PageRequest) (*pagination.PageResponse[models.StagedTransaction], error)
	ApproveTransaction(ownerID, stagedTransactionID string) (*ApprovalResult, error)
	RejectTransaction(ownerID, stagedTransactionID, reason string) error
	// ApproveBatch approves the given staged transactions, or every
	// pending one in the batch when ids is empty.
	ApproveBatch(ownerID, batchID string, ids []string) (*BulkApprovalResult, error)
	// Subscribe returns progress and error streams for UI consumption
	// plus a cancel function that releases the subscription.
	Subscribe() (<-chan ProgressUpdate, <-chan ErrorUpdate, func())
	// CategorizeJobHandler returns the queue-side handler for background
	// categorization jobs.
	CategorizeJobHandler() jobs.JobHandler
}
