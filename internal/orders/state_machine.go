package orders

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Order statuses.
const (
	StatusPendingPayment   = "pending_payment"
	StatusPaymentConfirmed = "payment_confirmed"
	StatusProcessing       = "processing"
	StatusShipped          = "shipped"
	StatusDelivered        = "delivered"
	StatusCompleted        = "completed"
	StatusCancelled        = "cancelled"
	StatusReturnRequested  = "return_requested"
)

// Transition is one allowed status change. Guard, when set, is an expr
// expression over `record` that must evaluate to true.
type Transition struct {
	From  []string
	To    string
	Guard string

	mu       sync.Mutex
	compiled *vm.Program
}

type StateMachine struct {
	Initial     string
	Transitions []*Transition
}

// Lifecycle is the order state machine.
var Lifecycle = &StateMachine{
	Initial: StatusPendingPayment,
	Transitions: []*Transition{
		{From: []string{StatusPendingPayment}, To: StatusPaymentConfirmed, Guard: "record.total >= 0"},
		{From: []string{StatusPaymentConfirmed}, To: StatusProcessing},
		{From: []string{StatusProcessing}, To: StatusShipped},
		{From: []string{StatusProcessing, StatusShipped}, To: StatusDelivered},
		{From: []string{StatusDelivered}, To: StatusCompleted},
		{From: []string{StatusPendingPayment, StatusPaymentConfirmed, StatusProcessing}, To: StatusCancelled},
		{From: []string{StatusDelivered, StatusCompleted}, To: StatusReturnRequested},
	},
}

// FindTransition returns the transition from -> to, or nil.
func (sm *StateMachine) FindTransition(from, to string) *Transition {
	for _, t := range sm.Transitions {
		if t.To != to {
			continue
		}
		for _, f := range t.From {
			if f == from {
				return t
			}
		}
	}
	return nil
}

// CanTransition reports whether from -> to is a declared transition,
// ignoring guards.
func (sm *StateMachine) CanTransition(from, to string) bool {
	return sm.FindTransition(from, to) != nil
}

// Check validates from -> to for record, evaluating the guard if present.
func (sm *StateMachine) Check(from, to string, record map[string]any) error {
	t := sm.FindTransition(from, to)
	if t == nil {
		return fmt.Errorf("invalid transition from '%s' to '%s'", from, to)
	}
	if t.Guard == "" {
		return nil
	}
	allowed, err := t.evaluate(map[string]any{"record": record})
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("transition from '%s' to '%s' blocked by guard", from, to)
	}
	return nil
}

func (t *Transition) evaluate(env map[string]any) (bool, error) {
	t.mu.Lock()
	prog := t.compiled
	if prog == nil {
		compiled, err := expr.Compile(t.Guard, expr.AsBool())
		if err != nil {
			t.mu.Unlock()
			return false, fmt.Errorf("compile guard: %w", err)
		}
		t.compiled = compiled
		prog = compiled
	}
	t.mu.Unlock()

	result, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("evaluate guard: %w", err)
	}
	allowed, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("guard did not return bool")
	}
	return allowed, nil
}
