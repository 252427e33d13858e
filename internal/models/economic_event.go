package models

import "time"

// EventType classifies the economic effect of a ledger event.
type EventType string

const (
	// EventTypeTransfer records a resource moving between two agents.
	EventTypeTransfer EventType = "transfer"
	// EventTypeRetire records a resource being consumed rather than
	// transferred (bank fees, charges, interest).
	EventTypeRetire EventType = "retire"
)

// EventState tracks the lifecycle of an event after creation. Economic
// fields never change; a correction is a new event referencing the original.
type EventState string

const (
	EventStateValidated EventState = "validated"
	EventStateDisputed  EventState = "disputed"
	EventStateCorrected EventState = "corrected"
)

// Metadata keys every event created from a staged transaction must carry.
// They form the reconciliation trail back to the external source.
const (
	MetaExternalTransactionID = "external_transaction_id"
	MetaExternalAccountID     = "external_account_id"
	MetaCategory              = "category"
	MetaCategoryConfidence    = "category_confidence"
	MetaCategorySource        = "category_source"
	MetaBudgetID              = "budget_id"
	MetaBudgetCategoryID      = "budget_category_id"
	MetaImportBatchID         = "import_batch_id"
	MetaMerchantName          = "merchant_name"
	MetaRawPayload            = "raw_payload"
)

// EconomicEvent is the terminal, append-only ledger artifact. Rows are never
// updated except for the State field, and never deleted.
type EconomicEvent struct {
	Base
	EventType EventType `gorm:"not null" json:"event_type"`
	Occurred  time.Time `gorm:"not null" json:"occurred"`

	Provider string `gorm:"not null" json:"provider"`
	Receiver string `gorm:"not null" json:"receiver"`

	Quantity float64 `gorm:"not null" json:"quantity"`
	Unit     string  `gorm:"not null;default:'USD'" json:"unit"`
	Action   string  `gorm:"not null" json:"action"`
	Note     string  `json:"note,omitempty"`

	Metadata JSONMap `gorm:"type:text" json:"metadata"`

	State     EventState `gorm:"not null;default:'validated'" json:"state"`
	CreatedBy string     `gorm:"not null" json:"created_by"`

	// Set only on corrective events
	CorrectsEventID  *string `gorm:"type:uuid" json:"corrects_event_id,omitempty"`
	CorrectionReason string  `json:"correction_reason,omitempty"`
}
