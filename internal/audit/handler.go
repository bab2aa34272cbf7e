package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Querier runs one statement and returns its rows.
type Querier interface {
	ExecuteQuery(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
}

// Handler exposes the audit trail to operators.
type Handler struct {
	db Querier
}

func NewHandler(db Querier) *Handler {
	return &Handler{db: db}
}

// List handles GET /_audit with optional event_type, actor, route, from and
// to filters and page/per_page pagination.
func (h *Handler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var conditions []string
	var args []any
	for _, f := range []struct{ param, expr string }{
		{"event_type", "event_type = $%d"},
		{"actor", "actor = $%d"},
		{"route", "route = $%d"},
		{"request_id", "request_id = $%d"},
		{"from", "created_at >= $%d"},
		{"to", "created_at <= $%d"},
	} {
		if v := c.Query(f.param); v != "" {
			args = append(args, v)
			conditions = append(conditions, fmt.Sprintf(f.expr, len(args)))
		}
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 100 {
		perPage = 100
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	countRows, err := h.db.ExecuteQuery(ctx, "SELECT COUNT(*)::int AS count FROM _audit_events"+where, args...)
	if err != nil {
		return fmt.Errorf("count audit events: %w", err)
	}
	var total any = 0
	if len(countRows) > 0 {
		total = countRows[0]["count"]
	}

	dataSQL := fmt.Sprintf(
		"SELECT id, request_id, event_type, actor, route, ip, detail, created_at FROM _audit_events%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, len(args)+1, len(args)+2,
	)
	rows, err := h.db.ExecuteQuery(ctx, dataSQL, append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return fmt.Errorf("list audit events: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"pagination": fiber.Map{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

// RegisterRoutes mounts the audit trail behind mw.
func RegisterRoutes(app fiber.Router, h *Handler, mw ...fiber.Handler) {
	handlers := append(append([]fiber.Handler{}, mw...), h.List)
	app.Get("/_audit", handlers...)
}

// Prune deletes events older than retentionDays and returns how many went.
func Prune(ctx context.Context, db Querier, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention must be at least one day, got %d", retentionDays)
	}
	rows, err := db.ExecuteQuery(ctx,
		"DELETE FROM _audit_events WHERE created_at < NOW() - make_interval(days => $1) RETURNING id",
		retentionDays)
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	return len(rows), nil
}
