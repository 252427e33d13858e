package models

// RuleMatchType represents how a transaction rule matches its field.
type RuleMatchType string

const (
	RuleMatchExact       RuleMatchType = "exact"
	RuleMatchContains    RuleMatchType = "contains"
	RuleMatchStartsWith  RuleMatchType = "starts_with"
	RuleMatchRegex       RuleMatchType = "regex"
	RuleMatchMerchant    RuleMatchType = "merchant"
	RuleMatchAmountRange RuleMatchType = "amount_range"
)

// RuleField names the staged-transaction field a rule matches against.
type RuleField string

const (
	RuleFieldDescription RuleField = "description"
	RuleFieldMerchant    RuleField = "merchant"
	RuleFieldAmount      RuleField = "amount"
)

// TransactionRule is a learned or authored auto-categorization rule.
// Rules flagged eligible by the correction learning loop are created
// disabled; enabling them is an external policy decision.
type TransactionRule struct {
	Base
	OwnerID   string        `gorm:"type:uuid;index" json:"owner_id"`
	MatchType RuleMatchType `gorm:"not null" json:"match_type"`
	Field     RuleField     `gorm:"not null;default:'description'" json:"field"`
	Value     string        `gorm:"not null" json:"value"`

	// For amount_range rules
	AmountMin *float64 `json:"amount_min,omitempty"`
	AmountMax *float64 `json:"amount_max,omitempty"`

	Category string `gorm:"not null" json:"category"`
	Priority int    `gorm:"default:0" json:"priority"`
	IsActive bool   `gorm:"default:false" json:"is_active"`

	// Accuracy tracking
	MatchCount   int `gorm:"default:0" json:"match_count"`
	CorrectCount int `gorm:"default:0" json:"correct_count"`
}
