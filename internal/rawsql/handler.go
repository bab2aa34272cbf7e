package rawsql

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"crudgate/internal/audit"
	"crudgate/internal/engine"
)

// Principal resolves the caller recorded by the auth middleware. Kept as a
// function so this package does not import auth.
type Principal func(c *fiber.Ctx) string

type Handler struct {
	exec     engine.Executor
	recorder audit.Recorder
	actor    Principal
	logger   *zap.Logger
}

func NewHandler(exec engine.Executor, recorder audit.Recorder, actor Principal, logger *zap.Logger) *Handler {
	if recorder == nil {
		recorder = audit.Noop{}
	}
	if actor == nil {
		actor = func(*fiber.Ctx) string { return "" }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{exec: exec, recorder: recorder, actor: actor, logger: logger}
}

// Execute handles POST /api_dinamico {sql}
func (h *Handler) Execute(c *fiber.Ctx) error {
	var body struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}
	sql := strings.TrimSpace(body.SQL)
	if sql == "" {
		return engine.InvalidPayloadError("SQL query is required")
	}

	actor := h.actor(c)
	requestID := engine.RequestID(c)

	if p := Check(sql); p != nil {
		h.logger.Warn("security: blocked raw sql",
			zap.String("pattern", p.Name),
			zap.String("actor", actor),
			zap.String("ip", c.IP()),
			zap.String("sql", sql),
			zap.String("request_id", requestID),
		)
		h.recorder.Record(c.UserContext(), audit.Event{
			RequestID: requestID,
			EventType: audit.TypeSQLBlocked,
			Actor:     actor,
			Route:     c.Path(),
			IP:        c.IP(),
			Detail:    map[string]any{"pattern": p.Name, "sql": sql},
		})
		return engine.NewAppError(engine.CodeForbiddenSQL, fiber.StatusForbidden,
			fmt.Sprintf("Statement not allowed (%s)", p.Name))
	}

	h.logger.Info("executing raw sql",
		zap.String("actor", actor),
		zap.String("sql", sql),
		zap.String("request_id", requestID),
	)

	rows, err := h.exec.ExecuteQuery(c.UserContext(), sql)
	if err != nil {
		h.logger.Error("raw sql failed", zap.Error(err), zap.String("sql", sql), zap.String("request_id", requestID))
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return engine.InvalidPayloadError(engine.SanitizeMessage(pgErr.Message))
		}
		return fmt.Errorf("raw sql: %w", err)
	}

	h.recorder.Record(c.UserContext(), audit.Event{
		RequestID: requestID,
		EventType: audit.TypeRawSQLExecuted,
		Actor:     actor,
		Route:     c.Path(),
		IP:        c.IP(),
		Detail:    map[string]any{"rows": len(rows)},
	})
	return engine.RespondRows(c, rows)
}

// RegisterRoutes mounts the gateway behind mw, which must include the
// elevated-role check.
func RegisterRoutes(app fiber.Router, h *Handler, mw ...fiber.Handler) {
	handlers := append(append([]fiber.Handler{}, mw...), h.Execute)
	app.Post("/api_dinamico", handlers...)
}
