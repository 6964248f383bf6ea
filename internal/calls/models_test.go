package calls

import (
	"testing"
	"time"
)

func TestTransferAttempt_Phase(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		t    TransferAttempt
		want Phase
	}{
		{"dialing", TransferAttempt{Status: TransferConsulting}, PhaseConsultDialing},
		{"answered", TransferAttempt{Status: TransferConsulting, AnsweredAt: &now}, PhaseConsultActive},
		{"bridged", TransferAttempt{Status: TransferConsulting, AgentBridgedAt: &now}, PhaseConsultActive},
		{"completed", TransferAttempt{Status: TransferCompleted}, PhaseDone},
		{"canceled", TransferAttempt{Status: TransferCanceled}, PhaseDone},
		{"failed", TransferAttempt{Status: TransferFailed}, PhaseError},
		{"empty", TransferAttempt{}, PhaseIdle},
	}
	for _, tc := range cases {
		if got := tc.t.Phase(); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestTransferStatus_Terminal(t *testing.T) {
	if TransferConsulting.Terminal() {
		t.Fatalf("consulting is not terminal")
	}
	for _, s := range []TransferStatus{TransferCompleted, TransferCanceled, TransferFailed} {
		if !s.Terminal() {
			t.Fatalf("expected %s terminal", s)
		}
	}
}
