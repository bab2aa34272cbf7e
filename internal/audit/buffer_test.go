package audit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"crudgate/internal/store"
)

type recordedStmt struct {
	sql  string
	args []any
}

type fakeTx struct {
	stmts *[]recordedStmt
	fail  string
}

func (t fakeTx) Query(_ context.Context, sql string, args ...any) ([]map[string]any, error) {
	*t.stmts = append(*t.stmts, recordedStmt{sql: sql, args: args})
	if t.fail != "" && strings.Contains(sql, t.fail) {
		return nil, errors.New("insert failed")
	}
	return nil, nil
}

type fakeTransactor struct {
	mu    sync.Mutex
	stmts []recordedStmt
	txs   int
	fail  string
}

func (f *fakeTransactor) ExecuteTransaction(ctx context.Context, fn store.TxFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs++
	return fn(ctx, fakeTx{stmts: &f.stmts, fail: f.fail})
}

func TestBufferFlushBatchesEvents(t *testing.T) {
	db := &fakeTransactor{}
	b := NewBuffer(db, zap.NewNop(), 100, time.Hour)
	defer b.Stop()

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b.Record(context.Background(), Event{RequestID: "r1", EventType: TypeSQLBlocked, Actor: "u1", Route: "/api_dinamico",
		IP: "10.0.0.1", Detail: map[string]any{"pattern": "drop_table"}, CreatedAt: at})
	b.Record(context.Background(), Event{RequestID: "r2", EventType: TypeOrderCreated, CreatedAt: at})

	if b.Pending() != 2 {
		t.Fatalf("expected 2 pending events, got %d", b.Pending())
	}
	b.Flush()

	if b.Pending() != 0 {
		t.Fatalf("expected empty buffer after flush, got %d", b.Pending())
	}
	if db.txs != 1 {
		t.Fatalf("expected one transaction, got %d", db.txs)
	}
	if len(db.stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(db.stmts))
	}
	insert := db.stmts[1]
	if !strings.HasPrefix(insert.sql, "INSERT INTO _audit_events (request_id,event_type,actor,route,ip,detail,created_at) VALUES ($1,") {
		t.Fatalf("unexpected insert: %s", insert.sql)
	}
	if !strings.Contains(insert.sql, "($8,$9,$10,$11,$12,$13,$14)") {
		t.Fatalf("expected second tuple to continue numbering: %s", insert.sql)
	}
	if len(insert.args) != 14 {
		t.Fatalf("expected 14 args, got %d", len(insert.args))
	}
	if insert.args[5] != `{"pattern":"drop_table"}` {
		t.Fatalf("expected JSON detail, got %#v", insert.args[5])
	}
	if insert.args[12] != nil {
		t.Fatalf("expected nil detail for second event, got %#v", insert.args[12])
	}
}

func TestBufferFlushFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	db := &fakeTransactor{fail: "INSERT"}
	b := NewBuffer(db, zap.New(core), 100, time.Hour)

	b.Record(context.Background(), Event{EventType: TypeLoginFailed})
	b.Flush()

	if logs.FilterMessage("audit flush failed").Len() != 1 {
		t.Fatalf("expected flush failure to be logged, got %v", logs.All())
	}
	if b.Pending() != 0 {
		t.Fatal("failed batch should be dropped, not retried")
	}
	b.Stop()
}

func TestBufferStopFlushesOnce(t *testing.T) {
	db := &fakeTransactor{}
	b := NewBuffer(db, nil, 100, time.Hour)

	b.Record(context.Background(), Event{EventType: TypeOrderCancelled})
	b.Stop()
	b.Stop()

	if db.txs != 1 {
		t.Fatalf("expected a single flush on stop, got %d", db.txs)
	}
}

func TestBufferFlushesWhenFull(t *testing.T) {
	db := &fakeTransactor{}
	b := NewBuffer(db, nil, 2, time.Hour)
	defer b.Stop()

	b.Record(context.Background(), Event{EventType: TypeOrderCreated})
	b.Record(context.Background(), Event{EventType: TypeOrderCreated})

	deadline := time.Now().Add(2 * time.Second)
	for b.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.Pending() != 0 {
		t.Fatal("expected background flush once the buffer filled up")
	}
}

func TestRecordStampsCreatedAt(t *testing.T) {
	db := &fakeTransactor{}
	b := NewBuffer(db, nil, 100, time.Hour)
	defer b.Stop()

	b.Record(context.Background(), Event{EventType: TypeOrderCreated})
	b.mu.Lock()
	stamped := !b.events[0].CreatedAt.IsZero()
	b.mu.Unlock()
	if !stamped {
		t.Fatal("expected CreatedAt to be set")
	}
}
