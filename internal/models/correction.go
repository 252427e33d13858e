package models

// CorrectionRecord captures a human override of a suggested category. The
// correction stream feeds both few-shot prompting of the external classifier
// and the merchant pattern learning loop.
type CorrectionRecord struct {
	Base
	OwnerID           string `gorm:"type:uuid;not null;index" json:"owner_id"`
	MerchantName      string `gorm:"index" json:"merchant_name"`
	Description       string `json:"description"`
	OriginalCategory  string `json:"original_category"`
	CorrectedCategory string `gorm:"not null" json:"corrected_category"`
}
