package models

// PatternSource records whether a merchant pattern was seeded or learned
// from human corrections.
type PatternSource string

const (
	PatternSourceSeed    PatternSource = "seed"
	PatternSourceLearned PatternSource = "learned"
)

// MerchantPattern maps a normalized merchant or keyword to a category. The
// table is seeded with common merchant defaults and grown by the correction
// learning loop.
type MerchantPattern struct {
	Base
	Pattern         string        `gorm:"not null;uniqueIndex" json:"pattern"` // lowercased merchant/keyword
	Category        string        `gorm:"not null" json:"category"`
	Confidence      float64       `gorm:"not null;default:75" json:"confidence"`
	Source          PatternSource `gorm:"not null;default:'seed'" json:"source"`
	CorrectionCount int           `gorm:"default:0" json:"correction_count"`
}
