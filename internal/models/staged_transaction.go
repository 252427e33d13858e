package models

import "time"

// TransactionKind represents the inferred direction of a staged transaction
type TransactionKind string

const (
	TransactionKindDebit    TransactionKind = "debit"
	TransactionKindCredit   TransactionKind = "credit"
	TransactionKindFee      TransactionKind = "fee"
	TransactionKindTransfer TransactionKind = "transfer"
)

// ReviewStatus represents the human review state of a staged transaction
type ReviewStatus string

const (
	ReviewStatusPending        ReviewStatus = "pending"
	ReviewStatusApproved       ReviewStatus = "approved"
	ReviewStatusRejected       ReviewStatus = "rejected"
	ReviewStatusNeedsAttention ReviewStatus = "needs_attention"
)

// CategorySource records where a category suggestion came from
type CategorySource string

const (
	CategorySourceRule       CategorySource = "rule"
	CategorySourceLearned    CategorySource = "learned"
	CategorySourceClassifier CategorySource = "classifier"
	CategorySourceManual     CategorySource = "manual"
)

// StagedTransaction is the mutable review unit produced by an import run.
// Review status only moves pending -> {approved, rejected, needs_attention}
// and needs_attention -> rejected; once EconomicEventID is set it is never
// cleared or reassigned; a staged transaction flagged as a duplicate must
// never reach approved.
type StagedTransaction struct {
	Base
	BatchID string `gorm:"type:uuid;not null;index" json:"batch_id"`
	OwnerID string `gorm:"type:uuid;not null;index" json:"owner_id"`

	// External reference back to the aggregator
	ExternalID        string `gorm:"not null;index" json:"external_id"`
	ExternalAccountID string `gorm:"not null" json:"external_account_id"`

	Kind         TransactionKind `gorm:"not null" json:"kind"`
	Amount       float64         `gorm:"not null" json:"amount"` // absolute value; Kind carries direction
	Currency     string          `gorm:"not null;default:'USD'" json:"currency"`
	Date         time.Time       `gorm:"not null" json:"date"`
	Description  string          `json:"description"`
	MerchantName string          `json:"merchant_name,omitempty"`

	Category           string         `json:"category"`
	CategoryConfidence float64        `json:"category_confidence"` // 0-100
	CategorySource     CategorySource `json:"category_source,omitempty"`

	IsDuplicate         bool    `gorm:"default:false" json:"is_duplicate"`
	DuplicateConfidence float64 `json:"duplicate_confidence"`

	ReviewStatus ReviewStatus `gorm:"not null;default:'pending';index" json:"review_status"`
	ReviewNote   string       `json:"review_note,omitempty"`

	// Set exactly once, on approval
	EconomicEventID *string `gorm:"type:uuid" json:"economic_event_id,omitempty"`

	// Budget linkage supplied externally
	BudgetID         *string `gorm:"type:uuid" json:"budget_id,omitempty"`
	BudgetCategoryID *string `gorm:"type:uuid" json:"budget_category_id,omitempty"`

	// Original aggregator record, preserved verbatim for audit
	RawPayload JSONMap `gorm:"type:text" json:"raw_payload"`

	// Relationships
	Batch ImportBatch `gorm:"foreignKey:BatchID" json:"-"`
}

// CanTransitionTo reports whether the review status may move to target.
// needs_attention marks flagged rows, typically duplicates; they can still
// be dismissed but never approved.
func (s *StagedTransaction) CanTransitionTo(target ReviewStatus) bool {
	switch s.ReviewStatus {
	case ReviewStatusPending:
		switch target {
		case ReviewStatusApproved, ReviewStatusRejected, ReviewStatusNeedsAttention:
			return true
		}
	case ReviewStatusNeedsAttention:
		return target == ReviewStatusRejected
	}
	return false
}
