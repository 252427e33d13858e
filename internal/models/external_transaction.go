package models

import "time"

// ExternalTransaction is a raw transaction record as returned by the bank
// aggregator. It is immutable once fetched and is never persisted directly;
// the normalizer converts it into a StagedTransaction, preserving the raw
// payload verbatim for audit.
type ExternalTransaction struct {
	ExternalID   string    `json:"external_id"`
	AccountID    string    `json:"account_id"`
	Amount       float64   `json:"amount"` // signed: negative = money out
	Currency     string    `json:"currency"`
	Date         time.Time `json:"date"`
	Description  string    `json:"description"`
	MerchantName string    `json:"merchant_name,omitempty"`
}
