//go:build integration

package engine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap/zaptest"

	"crudgate/internal/config"
	"crudgate/internal/engine"
	"crudgate/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{
		Host:     "localhost",
		Port:     5433,
		User:     "crudgate",
		Password: "crudgate",
		Name:     "crudgate",
		PoolSize: 2,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("connect to test db: %v", err)
	}
	_, err = s.Pool.Exec(ctx, `
DROP TABLE IF EXISTS customers CASCADE;
CREATE TABLE customers (
    id SERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    city TEXT,
    score INT NOT NULL DEFAULT 0,
    deleted_at TIMESTAMPTZ
);`)
	if err != nil {
		s.Close()
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func testApp(t *testing.T, s *store.Store) *fiber.App {
	t.Helper()
	logger := zaptest.NewLogger(t)
	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler(logger)})
	h := engine.NewHandler(s, logger)
	app.Get("/health", h.Health)
	engine.RegisterCrudRoutes(app, h)
	return app
}

func crud(t *testing.T, app *fiber.App, body any) (int, []byte) {
	t.Helper()
	b, _ := json.Marshal(body)
	req, err := http.NewRequest("POST", "/api_crud", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func rows(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	if string(data) == `""` {
		return nil
	}
	var out []map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("expected row array, got %s", data)
	}
	return out
}

func TestCrudAgainstPostgres(t *testing.T) {
	s := testStore(t)
	app := testApp(t, s)

	status, data := crud(t, app, map[string]any{
		"action": "batch_create", "table": "customers",
		"payload": []any{
			map[string]any{"name": "Ana", "city": "Lisbon", "score": 7},
			map[string]any{"name": "Bruno", "city": "Porto", "score": 3},
			map[string]any{"name": "Carla", "city": "Lisbon", "score": 9},
		},
	})
	if status != 200 || len(rows(t, data)) != 3 {
		t.Fatalf("batch create: %d %s", status, data)
	}

	status, data = crud(t, app, map[string]any{
		"action": "list", "table": "customers",
		"search_field1": "city", "search_value1": "Lisbon",
		"search_field2": "score", "search_value2": "5", "search_operator2": "gt",
		"sort_column": "name",
	})
	got := rows(t, data)
	if status != 200 || len(got) != 2 || got[0]["name"] != "Ana" || got[1]["name"] != "Carla" {
		t.Fatalf("list: %d %s", status, data)
	}
	anaID := got[0]["id"]

	status, data = crud(t, app, map[string]any{
		"action": "update", "table": "customers",
		"payload": map[string]any{"id": anaID, "city": "Braga"},
	})
	if status != 200 || rows(t, data)[0]["city"] != "Braga" {
		t.Fatalf("update: %d %s", status, data)
	}

	status, data = crud(t, app, map[string]any{
		"action": "aggregate", "table": "customers",
		"aggregates":  []any{map[string]any{"function": "sum", "field": "score"}},
		"group_by":    []any{"city"},
		"sort_column": "city",
	})
	agg := rows(t, data)
	if status != 200 || len(agg) != 3 {
		t.Fatalf("aggregate: %d %s", status, data)
	}

	status, data = crud(t, app, map[string]any{"action": "list", "table": "no_such_table"})
	if status != 400 {
		t.Fatalf("expected 400 for missing relation, got %d %s", status, data)
	}
	if bytes.Contains(data, []byte("no_such_table")) {
		t.Fatalf("relation name leaked: %s", data)
	}
}

func TestSoftDeleteIsIdempotent(t *testing.T) {
	s := testStore(t)
	app := testApp(t, s)

	_, data := crud(t, app, map[string]any{
		"action": "create", "table": "customers", "payload": map[string]any{"name": "Ana"},
	})
	id := rows(t, data)[0]["id"]

	for i := 0; i < 2; i++ {
		status, data := crud(t, app, map[string]any{
			"action": "delete", "table": "customers", "payload": map[string]any{"id": id},
		})
		if status != 200 || rows(t, data)[0]["deleted_at"] == nil {
			t.Fatalf("delete %d: %d %s", i+1, status, data)
		}
	}

	all, _ := s.ExecuteQuery(context.Background(), "SELECT COUNT(*) AS n FROM customers")
	if all[0]["n"].(int64) != 1 {
		t.Fatalf("soft delete must keep the row, got %v", all[0]["n"])
	}

	status, data := crud(t, app, map[string]any{
		"action": "count", "table": "customers", "auto_exclude_deleted": true,
	})
	if status != 200 {
		t.Fatalf("count: %d %s", status, data)
	}
	if n := rows(t, data)[0]["count"]; n != float64(0) {
		t.Fatalf("expected 0 live rows, got %v", n)
	}
}

func TestHealthAgainstPostgres(t *testing.T) {
	app := testApp(t, testStore(t))
	req, _ := http.NewRequest("GET", "/health", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
