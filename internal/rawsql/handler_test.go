package rawsql

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"crudgate/internal/audit"
	"crudgate/internal/engine"
)

type fakeExecutor struct {
	rows  []map[string]any
	err   error
	calls []string
}

func (f *fakeExecutor) ExecuteQuery(_ context.Context, sql string, args ...any) ([]map[string]any, error) {
	f.calls = append(f.calls, sql)
	return f.rows, f.err
}

type memoryRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *memoryRecorder) Record(_ context.Context, e audit.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func setup(exec *fakeExecutor, rec audit.Recorder, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler(zap.NewNop())})
	h := NewHandler(exec, rec, func(*fiber.Ctx) string { return "user-1" }, logger)
	RegisterRoutes(app, h)
	return app
}

func post(t *testing.T, app *fiber.App, body string) (int, string) {
	t.Helper()
	req, _ := http.NewRequest("POST", "/api_dinamico", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func TestExecuteBlockedStatement(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	exec := &fakeExecutor{}
	rec := &memoryRecorder{}
	app := setup(exec, rec, zap.New(core))

	status, body := post(t, app, `{"sql":"DROP TABLE customers"}`)
	if status != 403 {
		t.Fatalf("expected 403, got %d: %s", status, body)
	}
	if len(exec.calls) != 0 {
		t.Fatalf("blocked SQL must not execute, got %v", exec.calls)
	}
	if logs.FilterMessage("security: blocked raw sql").Len() != 1 {
		t.Fatal("expected a security log entry")
	}
	if len(rec.events) != 1 || rec.events[0].EventType != audit.TypeSQLBlocked || rec.events[0].Actor != "user-1" {
		t.Fatalf("expected one sql_blocked audit event, got %+v", rec.events)
	}
}

func TestExecuteRunsVerbatim(t *testing.T) {
	exec := &fakeExecutor{rows: []map[string]any{{"n": 1}}}
	rec := &memoryRecorder{}
	app := setup(exec, rec, nil)

	status, body := post(t, app, `{"sql":"  SELECT 1 AS n  "}`)
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if len(exec.calls) != 1 || exec.calls[0] != "SELECT 1 AS n" {
		t.Fatalf("unexpected executed SQL: %v", exec.calls)
	}
	var rows []map[string]any
	if err := json.Unmarshal([]byte(body), &rows); err != nil || len(rows) != 1 {
		t.Fatalf("expected one row, got %s", body)
	}
	if len(rec.events) != 1 || rec.events[0].EventType != audit.TypeRawSQLExecuted {
		t.Fatalf("expected raw_sql_executed event, got %+v", rec.events)
	}
}

func TestExecuteErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		msg    string
	}{
		{"empty sql", `{"sql":"   "}`, nil, 400, "SQL query is required"},
		{"bad json", `{"sql":`, nil, 400, "Invalid JSON body"},
		{"database error", `{"sql":"SELECT * FROM nope"}`,
			&pgconn.PgError{Code: "42P01", Message: `relation "nope" does not exist`}, 400, "relation does not exist"},
		{"connection error", `{"sql":"SELECT 1"}`, errors.New("dial tcp 10.1.1.1:5432: refused"), 500, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setup(&fakeExecutor{err: tt.err}, nil, nil)
			status, body := post(t, app, tt.body)
			if status != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, status, body)
			}
			var resp engine.ErrorResponse
			json.Unmarshal([]byte(body), &resp)
			if resp.Error != tt.msg {
				t.Fatalf("expected %q, got %q", tt.msg, resp.Error)
			}
		})
	}
}
