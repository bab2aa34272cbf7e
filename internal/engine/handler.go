package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Executor runs a single parameterized statement and returns its rows.
type Executor interface {
	ExecuteQuery(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
}

type Handler struct {
	exec   Executor
	logger *zap.Logger
}

func NewHandler(exec Executor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{exec: exec, logger: logger}
}

// Crud handles POST /api_crud
func (h *Handler) Crud(c *fiber.Ctx) error {
	op, err := ParseRequest(c.Body())
	if err != nil {
		return err
	}

	cq, err := op.Compile()
	if err != nil {
		return err
	}

	rows, err := h.exec.ExecuteQuery(c.UserContext(), cq.SQL, cq.Params...)
	if err != nil {
		return fmt.Errorf("%s: %w", op.Action(), err)
	}

	h.logger.Debug("crud request served",
		zap.String("action", string(op.Action())),
		zap.Int("rows", len(rows)),
		zap.String("request_id", RequestID(c)),
	)
	return RespondRows(c, rows)
}

// RespondRows writes rows as a JSON array. An empty result is sent as an
// empty JSON string, which existing clients test for.
func RespondRows(c *fiber.Ctx, rows []map[string]any) error {
	if len(rows) == 0 {
		return c.JSON("")
	}
	return c.JSON(rows)
}

const schemaSQL = `SELECT c.column_name, c.data_type, c.is_nullable, c.column_default,
       c.character_maximum_length, fk.foreign_table, fk.foreign_column
FROM information_schema.columns c
LEFT JOIN (
    SELECT kcu.column_name, ccu.table_name AS foreign_table, ccu.column_name AS foreign_column
    FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage kcu
      ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
    JOIN information_schema.constraint_column_usage ccu
      ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
    WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public' AND tc.table_name = $1
) fk ON fk.column_name = c.column_name
WHERE c.table_schema = 'public' AND c.table_name = $1
ORDER BY c.ordinal_position`

const tablesSQL = `SELECT table_name FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
ORDER BY table_name`

// Schema handles POST /api_schema {table_name}
func (h *Handler) Schema(c *fiber.Ctx) error {
	var body struct {
		TableName string `json:"table_name"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return InvalidPayloadError("Invalid JSON body")
	}
	if body.TableName == "" {
		return MissingTableError()
	}
	if !IsIdentifier(body.TableName) {
		return InvalidIdentifierError(body.TableName)
	}

	rows, err := h.exec.ExecuteQuery(c.UserContext(), schemaSQL, body.TableName)
	if err != nil {
		return fmt.Errorf("describe table: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(rows)
}

// Tables handles GET /api_tables
func (h *Handler) Tables(c *fiber.Ctx) error {
	rows, err := h.exec.ExecuteQuery(c.UserContext(), tablesSQL)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, ok := row["table_name"].(string); ok {
			names = append(names, name)
		}
	}
	return c.JSON(names)
}

// Health handles GET /health. A failed ping reports 503 so load balancers
// stop routing to the instance.
func (h *Handler) Health(c *fiber.Ctx) error {
	status, db, code := "ok", "connected", fiber.StatusOK
	if _, err := h.exec.ExecuteQuery(c.UserContext(), "SELECT 1"); err != nil {
		h.logger.Warn("health check ping failed", zap.Error(err))
		status, db, code = "degraded", "disconnected", fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"db":        db,
	})
}

// RequestID returns the id the requestid middleware attached to the response.
func RequestID(c *fiber.Ctx) string {
	return c.GetRespHeader(fiber.HeaderXRequestID)
}

// ErrorHandler is the fiber error handler shared by every route. The full
// error is logged; the client only gets the classified message.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		status, msg := Classify(err)
		fields := []zap.Field{
			zap.Error(err),
			zap.Int("status", status),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("request_id", RequestID(c)),
		}
		if status >= fiber.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Info("request rejected", fields...)
		}
		return c.Status(status).JSON(ErrorResponse{Error: msg})
	}
}
