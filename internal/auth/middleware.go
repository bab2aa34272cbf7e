package auth

import (
	"crypto/subtle"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"

	"crudgate/internal/config"
	"crudgate/internal/engine"
)

const (
	MethodBearer = "bearer"
	MethodAPIKey = "api_key"

	principalKey = "principal"
	apiKeyHeader = "X-API-Key"
)

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Roles   []string
	Method  string
}

// HasAnyRole reports whether p holds at least one of roles.
func (p *Principal) HasAnyRole(roles []string) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if slices.Contains(p.Roles, r) {
			return true
		}
	}
	return false
}

// Authenticate accepts a bearer JWT or, for legacy clients, the static API
// key in X-API-Key. The key authenticates as cfg.APIKeyRole.
func Authenticate(cfg config.AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if header := c.Get(fiber.HeaderAuthorization); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return engine.UnauthorizedError("Invalid auth header format")
			}
			claims, err := ParseAccessToken(strings.TrimSpace(parts[1]), cfg.JWTSecret)
			if err != nil {
				return engine.UnauthorizedError("Invalid or expired token")
			}
			c.Locals(principalKey, &Principal{Subject: claims.Subject, Roles: claims.Roles, Method: MethodBearer})
			return c.Next()
		}

		if key := c.Get(apiKeyHeader); key != "" {
			if cfg.APIKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) != 1 {
				return engine.UnauthorizedError("Invalid API key")
			}
			c.Locals(principalKey, &Principal{Subject: "api-key", Roles: []string{cfg.APIKeyRole}, Method: MethodAPIKey})
			return c.Next()
		}

		return engine.UnauthorizedError("Missing auth token")
	}
}

// RequireRole rejects callers holding none of roles.
func RequireRole(roles []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := GetPrincipal(c)
		if p == nil {
			return engine.UnauthorizedError("Missing auth token")
		}
		if !p.HasAnyRole(roles) {
			return engine.ForbiddenError("Insufficient role for this endpoint")
		}
		return c.Next()
	}
}

// OriginCheck rejects requests whose Origin header is not allowed. Requests
// without an Origin (server-to-server) pass.
func OriginCheck(allowed []string) fiber.Handler {
	allowAll := slices.Contains(allowed, "*")
	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		if origin == "" || allowAll || slices.Contains(allowed, origin) {
			return c.Next()
		}
		return engine.ForbiddenError("Origin not allowed")
	}
}

// GetPrincipal extracts the Principal from a Fiber context.
func GetPrincipal(c *fiber.Ctx) *Principal {
	p, _ := c.Locals(principalKey).(*Principal)
	return p
}

// Subject returns the caller's subject, or "" when unauthenticated.
func Subject(c *fiber.Ctx) string {
	if p := GetPrincipal(c); p != nil {
		return p.Subject
	}
	return ""
}
