// Package classifier defines the external batch-classification boundary.
// The concrete model behind it is a black box; callers must tolerate
// partial or erroring responses and fall back to local rules.
package classifier

import (
	"context"

	"tributary/internal/models"
)

// Suggestion is one classification result for a staged transaction.
type Suggestion struct {
	TransactionID string   `json:"transaction_id"`
	Category      string   `json:"category"`
	Confidence    float64  `json:"confidence"` // 0-100
	Reasoning     string   `json:"reasoning,omitempty"`
	Alternatives  []string `json:"alternatives,omitempty"`
}

// BatchClassifier classifies a batch of staged transactions against a fixed
// category list. Recent human corrections are passed along as few-shot
// examples. A response may cover only a subset of the input.
type BatchClassifier interface {
	ClassifyBatch(ctx context.Context, transactions []models.StagedTransaction, categories []string, examples []models.CorrectionRecord) ([]Suggestion, error)
}
