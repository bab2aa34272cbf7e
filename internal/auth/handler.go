package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"crudgate/internal/audit"
	"crudgate/internal/config"
	"crudgate/internal/engine"
)

// Handler handles authentication endpoints.
type Handler struct {
	db       engine.Executor
	cfg      config.AuthConfig
	recorder audit.Recorder
	logger   *zap.Logger
}

func NewHandler(db engine.Executor, cfg config.AuthConfig, recorder audit.Recorder, logger *zap.Logger) *Handler {
	if recorder == nil {
		recorder = audit.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{db: db, cfg: cfg, recorder: recorder, logger: logger}
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return engine.InvalidPayloadError("Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.UnauthorizedError("Email and password are required")
	}

	user, err := h.findUserByEmail(c, body.Email)
	if err != nil {
		return err
	}
	if user == nil {
		h.loginFailed(c, body.Email, "unknown user")
		return engine.UnauthorizedError("Invalid email or password")
	}

	if active, ok := user["active"].(bool); ok && !active {
		h.loginFailed(c, body.Email, "disabled")
		return engine.UnauthorizedError("Account is disabled")
	}

	passwordHash, _ := user["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		h.loginFailed(c, body.Email, "bad password")
		return engine.UnauthorizedError("Invalid email or password")
	}

	ttl := h.cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	token, err := GenerateAccessToken(fmt.Sprint(user["id"]), extractRoles(user), h.cfg.JWTSecret, ttl)
	if err != nil {
		return err
	}

	return c.JSON(TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl / time.Second),
	})
}

// RegisterRoutes mounts /auth/* ahead of the auth middleware. mw is where
// the rate limiter goes.
func RegisterRoutes(app fiber.Router, h *Handler, mw ...fiber.Handler) {
	group := app.Group("/auth", mw...)
	group.Post("/login", h.Login)
}

func (h *Handler) findUserByEmail(c *fiber.Ctx, email string) (map[string]any, error) {
	table, err := engine.QuoteIdent(h.cfg.UsersTable)
	if err != nil {
		return nil, err
	}
	rows, err := h.db.ExecuteQuery(c.UserContext(),
		"SELECT * FROM "+table+" WHERE email = $1 LIMIT 1", email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (h *Handler) loginFailed(c *fiber.Ctx, email, reason string) {
	h.logger.Info("login failed", zap.String("email", email), zap.String("reason", reason), zap.String("ip", c.IP()))
	h.recorder.Record(c.UserContext(), audit.Event{
		RequestID: engine.RequestID(c),
		EventType: audit.TypeLoginFailed,
		Actor:     email,
		Route:     c.Path(),
		IP:        c.IP(),
		Detail:    map[string]any{"reason": reason},
	})
}

// extractRoles reads a roles array column, falling back to a single role
// column.
func extractRoles(user map[string]any) []string {
	switch roles := user["roles"].(type) {
	case []string:
		return roles
	case []any:
		result := make([]string, 0, len(roles))
		for _, r := range roles {
			if s, ok := r.(string); ok {
				result = append(result, s)
			}
		}
		return result
	}
	if role, ok := user["role"].(string); ok && role != "" {
		return []string{role}
	}
	return []string{}
}
