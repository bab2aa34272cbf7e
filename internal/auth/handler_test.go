package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"crudgate/internal/audit"
	"crudgate/internal/config"
	"crudgate/internal/engine"
)

type fakeUsers struct {
	rows []map[string]any
	err  error
	sql  string
	args []any
}

func (f *fakeUsers) ExecuteQuery(_ context.Context, sql string, args ...any) ([]map[string]any, error) {
	f.sql = sql
	f.args = args
	return f.rows, f.err
}

type captureRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *captureRecorder) Record(_ context.Context, e audit.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func newLoginApp(t *testing.T, db engine.Executor, rec audit.Recorder) *fiber.App {
	t.Helper()
	cfg := config.AuthConfig{JWTSecret: "s3cret", TokenTTL: 2 * time.Hour, UsersTable: "users"}
	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler(zap.NewNop())})
	RegisterRoutes(app, NewHandler(db, cfg, rec, zap.NewNop()))
	return app
}

func login(t *testing.T, app *fiber.App, body string) (int, string) {
	t.Helper()
	req, _ := http.NewRequest("POST", "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return send(t, app, req)
}

func userRow(t *testing.T, password string, extra map[string]any) map[string]any {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	row := map[string]any{"id": int64(42), "email": "ana@example.com", "password_hash": hash}
	for k, v := range extra {
		row[k] = v
	}
	return row
}

func TestLoginSuccess(t *testing.T) {
	db := &fakeUsers{rows: []map[string]any{userRow(t, "pw", map[string]any{"roles": []any{"admin", "staff"}})}}
	app := newLoginApp(t, db, nil)

	status, body := login(t, app, `{"email":"ana@example.com","password":"pw"}`)
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if db.sql != `SELECT * FROM "users" WHERE email = $1 LIMIT 1` {
		t.Fatalf("unexpected SQL: %s", db.sql)
	}
	if len(db.args) != 1 || db.args[0] != "ana@example.com" {
		t.Fatalf("unexpected args: %v", db.args)
	}

	var resp TokenResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TokenType != "Bearer" || resp.ExpiresIn != 7200 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	claims, err := ParseAccessToken(resp.AccessToken, "s3cret")
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.Subject != "42" || len(claims.Roles) != 2 || claims.Roles[1] != "staff" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestLoginSingleRoleColumn(t *testing.T) {
	db := &fakeUsers{rows: []map[string]any{userRow(t, "pw", map[string]any{"role": "cashier"})}}
	app := newLoginApp(t, db, nil)

	_, body := login(t, app, `{"email":"ana@example.com","password":"pw"}`)
	var resp TokenResponse
	json.Unmarshal([]byte(body), &resp)
	claims, err := ParseAccessToken(resp.AccessToken, "s3cret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "cashier" {
		t.Fatalf("expected [cashier], got %v", claims.Roles)
	}
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name   string
		rows   []map[string]any
		body   string
		status int
		audit  bool
	}{
		{"wrong password", []map[string]any{userRow(t, "pw", nil)}, `{"email":"ana@example.com","password":"nope"}`, 401, true},
		{"unknown user", nil, `{"email":"who@example.com","password":"pw"}`, 401, true},
		{"disabled", []map[string]any{userRow(t, "pw", map[string]any{"active": false})}, `{"email":"ana@example.com","password":"pw"}`, 401, true},
		{"missing fields", nil, `{"email":"ana@example.com"}`, 401, false},
		{"bad json", nil, `{"email":`, 400, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &captureRecorder{}
			app := newLoginApp(t, &fakeUsers{rows: tt.rows}, rec)

			status, body := login(t, app, tt.body)
			if status != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, status, body)
			}
			if tt.audit {
				if len(rec.events) != 1 || rec.events[0].EventType != audit.TypeLoginFailed {
					t.Fatalf("expected one login_failed event, got %+v", rec.events)
				}
			} else if len(rec.events) != 0 {
				t.Fatalf("expected no audit events, got %+v", rec.events)
			}
		})
	}
}

func TestLoginDatabaseError(t *testing.T) {
	app := newLoginApp(t, &fakeUsers{err: errors.New("pool closed")}, nil)
	status, body := login(t, app, `{"email":"ana@example.com","password":"pw"}`)
	if status != 500 {
		t.Fatalf("expected 500, got %d", status)
	}
	if strings.Contains(body, "pool closed") {
		t.Fatalf("internal error leaked: %s", body)
	}
}
