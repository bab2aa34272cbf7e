package orders

import (
	"strings"
	"testing"
)

func TestFindTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusPendingPayment, StatusPaymentConfirmed, true},
		{StatusPaymentConfirmed, StatusProcessing, true},
		{StatusProcessing, StatusDelivered, true},
		{StatusDelivered, StatusCompleted, true},
		{StatusCompleted, StatusReturnRequested, true},
		{StatusPendingPayment, StatusCancelled, true},
		{StatusPaymentConfirmed, StatusCancelled, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusShipped, StatusCancelled, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPendingPayment, false},
		{StatusPaymentConfirmed, StatusPaymentConfirmed, false},
	}
	for _, tt := range tests {
		if got := Lifecycle.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestCheckEvaluatesGuard(t *testing.T) {
	if err := Lifecycle.Check(StatusPendingPayment, StatusPaymentConfirmed, map[string]any{"total": 10.0}); err != nil {
		t.Fatalf("expected guard to pass, got %v", err)
	}
	err := Lifecycle.Check(StatusPendingPayment, StatusPaymentConfirmed, map[string]any{"total": -0.5})
	if err == nil || !strings.Contains(err.Error(), "blocked by guard") {
		t.Fatalf("expected guard to block, got %v", err)
	}
	err = Lifecycle.Check(StatusCompleted, StatusPaymentConfirmed, nil)
	if err == nil || !strings.Contains(err.Error(), "invalid transition") {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestGuardCompileError(t *testing.T) {
	sm := &StateMachine{Transitions: []*Transition{{From: []string{"a"}, To: "b", Guard: "record.total >="}}}
	if err := sm.Check("a", "b", map[string]any{"total": 1}); err == nil || !strings.Contains(err.Error(), "compile guard") {
		t.Fatalf("expected compile error, got %v", err)
	}
}
