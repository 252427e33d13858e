package models

import "testing"

func TestCanAdvanceTo(t *testing.T) {
	tests := []struct {
		name   string
		from   BatchStatus
		to     BatchStatus
		expect bool
	}{
		{"created_to_fetching", BatchStatusCreated, BatchStatusFetching, true},
		{"fetching_to_normalizing", BatchStatusFetching, BatchStatusNormalizing, true},
		{"created_to_completed_jump", BatchStatusCreated, BatchStatusCompleted, true},
		{"reviewing_to_approving", BatchStatusReviewing, BatchStatusApproving, true},
		{"reviewing_to_completed", BatchStatusReviewing, BatchStatusCompleted, true},
		{"fetching_back_to_created", BatchStatusFetching, BatchStatusCreated, false},
		{"staging_back_to_normalizing", BatchStatusStaging, BatchStatusNormalizing, false},
		{"same_stage", BatchStatusStaging, BatchStatusStaging, false},
		{"any_stage_to_error", BatchStatusDeduplicating, BatchStatusError, true},
		{"any_stage_to_rejected", BatchStatusReviewing, BatchStatusRejected, true},
		{"completed_is_terminal", BatchStatusCompleted, BatchStatusError, false},
		{"error_is_terminal", BatchStatusError, BatchStatusFetching, false},
		{"rejected_is_terminal", BatchStatusRejected, BatchStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &ImportBatch{Status: tt.from}
			if got := b.CanAdvanceTo(tt.to); got != tt.expect {
				t.Errorf("CanAdvanceTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.expect)
			}
		})
	}
}
