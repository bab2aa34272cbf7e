package audit

import (
	"context"
	"time"
)

// Event types written by the service.
const (
	TypeSQLBlocked       = "sql_blocked"
	TypeRawSQLExecuted   = "raw_sql_executed"
	TypeOrderCreated     = "order_created"
	TypePaymentConfirmed = "payment_confirmed"
	TypeOrderCancelled   = "order_cancelled"
	TypeLoginFailed      = "login_failed"
)

type Event struct {
	RequestID string
	EventType string
	Actor     string
	Route     string
	IP        string
	Detail    map[string]any
	CreatedAt time.Time
}

// Recorder accepts events for best-effort persistence. Record never blocks
// on the database and never reports failure to the caller.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// Noop drops every event. Used when auditing is disabled and in tests.
type Noop struct{}

func (Noop) Record(context.Context, Event) {}
