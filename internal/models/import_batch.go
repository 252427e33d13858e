package models

import "time"

// BatchStatus represents where an import batch is in the pipeline.
type BatchStatus string

const (
	BatchStatusCreated       BatchStatus = "created"
	BatchStatusFetching      BatchStatus = "fetching"
	BatchStatusNormalizing   BatchStatus = "normalizing"
	BatchStatusDeduplicating BatchStatus = "deduplicating"
	BatchStatusStaging       BatchStatus = "staging"
	BatchStatusCategorizing  BatchStatus = "categorizing"
	BatchStatusReviewing     BatchStatus = "reviewing"
	BatchStatusApproving     BatchStatus = "approving"
	BatchStatusCompleted     BatchStatus = "completed"
	BatchStatusError         BatchStatus = "error"
	BatchStatusRejected      BatchStatus = "rejected"
)

// batchStageOrder gives each pipeline stage an ordinal so status can only
// advance forward. Terminal statuses sit past the end of the stage list.
var batchStageOrder = map[BatchStatus]int{
	BatchStatusCreated:       0,
	BatchStatusFetching:      1,
	BatchStatusNormalizing:   2,
	BatchStatusDeduplicating: 3,
	BatchStatusStaging:       4,
	BatchStatusCategorizing:  5,
	BatchStatusReviewing:     6,
	BatchStatusApproving:     7,
	BatchStatusCompleted:     8,
}

// ImportBatch groups one fetch-and-stage run over an account/date scope.
// Invariant: NewTransactions + DuplicateTransactions == TotalTransactions.
type ImportBatch struct {
	Base
	OwnerID    string      `gorm:"type:uuid;not null;index" json:"owner_id"`
	AccountIDs StringSlice `gorm:"type:text" json:"account_ids"`
	FromDate   time.Time   `gorm:"not null" json:"from_date"`
	ToDate     time.Time   `gorm:"not null" json:"to_date"`

	TotalTransactions     int `gorm:"default:0" json:"total_transactions"`
	NewTransactions       int `gorm:"default:0" json:"new_transactions"`
	DuplicateTransactions int `gorm:"default:0" json:"duplicate_transactions"`
	ErrorCount            int `gorm:"default:0" json:"error_count"`

	ApprovedCount int `gorm:"default:0" json:"approved_count"`
	RejectedCount int `gorm:"default:0" json:"rejected_count"`

	Status       BatchStatus `gorm:"not null;default:'created';index" json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`

	AutoCategorize bool       `gorm:"default:true" json:"auto_categorize"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`

	// Relationships
	StagedTransactions []StagedTransaction `gorm:"foreignKey:BatchID" json:"staged_transactions,omitempty"`
}

// CanAdvanceTo reports whether the batch status may move to target. Status
// only advances forward through the stage list; error and rejected are
// reachable terminals from any non-terminal stage.
func (b *ImportBatch) CanAdvanceTo(target BatchStatus) bool {
	if b.Status == BatchStatusCompleted || b.Status == BatchStatusError || b.Status == BatchStatusRejected {
		return false
	}
	if target == BatchStatusError || target == BatchStatusRejected {
		return true
	}
	cur, ok := batchStageOrder[b.Status]
	if !ok {
		return false
	}
	next, ok := batchStageOrder[target]
	if !ok {
		return false
	}
	return next > cur
}
