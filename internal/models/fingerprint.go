package models

import "time"

// TransactionFingerprint is one row of the duplicate registry. A transaction
// is registered after it is accepted so future detections can see it: the
// external ID serves exact matching, the content hash serves tier-2 matching,
// and the remaining columns serve fuzzy candidate lookup. The registry is
// owner-scoped; the same external transaction may be registered by several
// owners.
type TransactionFingerprint struct {
	Base
	OwnerID     string    `gorm:"type:uuid;not null;index;uniqueIndex:uq_transaction_fingerprints_owner_external" json:"owner_id"`
	ExternalID  string    `gorm:"not null;uniqueIndex:uq_transaction_fingerprints_owner_external" json:"external_id"`
	AccountID   string    `gorm:"not null;index" json:"account_id"`
	ContentHash string    `gorm:"not null;index" json:"content_hash"` // sha256 of account|amount|date|description
	Amount      float64   `gorm:"not null" json:"amount"`
	Date        time.Time `gorm:"not null" json:"date"`
	Description string    `json:"description"`
}
