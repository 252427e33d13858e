package models

import "testing"

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name   string
		from   ReviewStatus
		to     ReviewStatus
		expect bool
	}{
		{"pending_to_approved", ReviewStatusPending, ReviewStatusApproved, true},
		{"pending_to_rejected", ReviewStatusPending, ReviewStatusRejected, true},
		{"pending_to_needs_attention", ReviewStatusPending, ReviewStatusNeedsAttention, true},
		{"pending_to_pending", ReviewStatusPending, ReviewStatusPending, false},
		{"approved_is_terminal", ReviewStatusApproved, ReviewStatusRejected, false},
		{"rejected_is_terminal", ReviewStatusRejected, ReviewStatusApproved, false},
		{"needs_attention_can_be_rejected", ReviewStatusNeedsAttention, ReviewStatusRejected, true},
		{"needs_attention_cannot_be_approved", ReviewStatusNeedsAttention, ReviewStatusApproved, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &StagedTransaction{ReviewStatus: tt.from}
			if got := s.CanTransitionTo(tt.to); got != tt.expect {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.expect)
			}
		})
	}
}
