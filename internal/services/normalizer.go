package services

import (
	"math"
	"strings"

	"tributary/internal/models"
)

// NormalizedTransaction is the canonical form of one raw aggregator record:
// an absolute amount with the inferred kind carrying the directionality.
type NormalizedTransaction struct {
	Raw    models.ExternalTransaction
	Kind   models.TransactionKind
	Amount float64 // absolute value
}

var (
	feeKeywords      = []string{"fee", "charge", "interest"}
	transferKeywords = []string{"transfer", "move", "xfer"}
)

// InferKind infers the transaction kind from the description and signed
// amount. Rule order matters: fee keywords win over transfer keywords, and
// only when neither matches does the sign decide debit vs credit.
func InferKind(description string, amount float64) models.TransactionKind {
	desc := strings.ToLower(description)

	for _, kw := range feeKeywords {
		if strings.Contains(desc, kw) {
			return models.TransactionKindFee
		}
	}
	for _, kw := range transferKeywords {
		if strings.Contains(desc, kw) {
			return models.TransactionKindTransfer
		}
	}
	if amount < 0 {
		return models.TransactionKindDebit
	}
	return models.TransactionKindCredit
}

// Normalize converts one raw external transaction into canonical form.
// Pure function; no side effects.
func Normalize(raw models.ExternalTransaction) NormalizedTransaction {
	return NormalizedTransaction{
		Raw:    raw,
		Kind:   InferKind(raw.Description, raw.Amount),
		Amount: math.Abs(raw.Amount),
	}
}

// NormalizeAll normalizes a whole fetch result in order.
func NormalizeAll(raws []models.ExternalTransaction) []NormalizedTransaction {
	out := make([]NormalizedTransaction, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Normalize(raw))
	}
	return out
}
