package services

import (
	"testing"

	"tributary/internal/models"
)

func TestInferKind(t *testing.T) {
	cases := []struct {
		name        string
		description string
		amount      float64
		want        models.TransactionKind
	}{
		{"atm_fee", "ATM Fee", -2.50, models.TransactionKindFee},
		{"service_charge", "Monthly Service Charge", -12.00, models.TransactionKindFee},
		{"interest", "Interest payment", 1.23, models.TransactionKindFee},
		{"transfer", "Transfer to savings", -200, models.TransactionKindTransfer},
		{"xfer", "XFER 4821", -50, models.TransactionKindTransfer},
		{"fee_wins_over_transfer", "Transfer fee", -5, models.TransactionKindFee},
		{"negative_is_debit", "Grocery store", -42.10, models.TransactionKindDebit},
		{"positive_is_credit", "Paycheck deposit", 1500, models.TransactionKindCredit},
		{"zero_is_credit", "Adjustment", 0, models.TransactionKindCredit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := InferKind(tc.description, tc.amount)
			if got != tc.want {
				t.Errorf("InferKind(%q, %v) = %s, want %s", tc.description, tc.amount, got, tc.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Run("takes_absolute_amount", func(t *testing.T) {
		raw := models.ExternalTransaction{Description: "Grocery store", Amount: -42.10}
		n := Normalize(raw)
		if n.Amount != 42.10 {
			t.Errorf("expected amount 42.10, got %v", n.Amount)
		}
		if n.Kind != models.TransactionKindDebit {
			t.Errorf("expected debit, got %s", n.Kind)
		}
		if n.Raw.Amount != -42.10 {
			t.Error("raw record must keep the signed amount")
		}
	})

	t.Run("normalize_all_preserves_order", func(t *testing.T) {
		raws := []models.ExternalTransaction{
			{ExternalID: "a", Amount: -1},
			{ExternalID: "b", Amount: 2},
			{ExternalID: "c", Amount: -3},
		}
		out := NormalizeAll(raws)
		if len(out) != 3 {
			t.Fatalf("expected 3 results, got %d", len(out))
		}
		for i, n := range out {
			if n.Raw.ExternalID != raws[i].ExternalID {
				t.Errorf("position %d: expected %s, got %s", i, raws[i].ExternalID, n.Raw.ExternalID)
			}
		}
	})
}
