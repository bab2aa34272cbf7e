package auth

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"crudgate/internal/config"
	"crudgate/internal/engine"
)

var testAuthConfig = config.AuthConfig{
	JWTSecret:   "s3cret",
	APIKey:      "legacy-key",
	APIKeyRole:  "admin",
	RawSQLRoles: []string{"admin"},
}

func newProtectedApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler(zap.NewNop())})
	app.Use(Authenticate(testAuthConfig))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		p := GetPrincipal(c)
		return c.SendString(p.Method + ":" + Subject(c))
	})
	app.Get("/admin", RequireRole(testAuthConfig.RawSQLRoles), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func send(t *testing.T, app *fiber.App, req *http.Request) (int, string) {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestAuthenticateBearer(t *testing.T) {
	app := newProtectedApp()
	token, _ := GenerateAccessToken("u-7", []string{"staff"}, "s3cret", time.Hour)

	req, _ := http.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	status, body := send(t, app, req)
	if status != 200 || body != "bearer:u-7" {
		t.Fatalf("expected 200 bearer:u-7, got %d %s", status, body)
	}

	req, _ = http.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if status, _ := send(t, app, req); status != 403 {
		t.Fatalf("expected 403 for staff on admin route, got %d", status)
	}
}

func TestAuthenticateAPIKey(t *testing.T) {
	app := newProtectedApp()

	req, _ := http.NewRequest("GET", "/admin", nil)
	req.Header.Set("X-API-Key", "legacy-key")
	if status, body := send(t, app, req); status != 200 {
		t.Fatalf("expected 200 for api key, got %d %s", status, body)
	}

	req, _ = http.NewRequest("GET", "/whoami", nil)
	req.Header.Set("X-API-Key", "legacy-key")
	if _, body := send(t, app, req); body != "api_key:api-key" {
		t.Fatalf("unexpected principal: %s", body)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	app := newProtectedApp()
	tests := []struct {
		name   string
		header string
		value  string
	}{
		{"missing", "", ""},
		{"wrong key", "X-API-Key", "nope"},
		{"bad format", "Authorization", "Token abc"},
		{"bad token", "Authorization", "Bearer abc.def.ghi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "/whoami", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			if status, _ := send(t, app, req); status != 401 {
				t.Fatalf("expected 401, got %d", status)
			}
		})
	}
}

func TestAPIKeyDisabledWhenUnset(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler(zap.NewNop())})
	app.Use(Authenticate(config.AuthConfig{JWTSecret: "s3cret"}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req, _ := http.NewRequest("GET", "/", nil)
	req.Header.Set("X-API-Key", "")
	if status, _ := send(t, app, req); status != 401 {
		t.Fatalf("expected 401, got %d", status)
	}
	req.Header.Set("X-API-Key", "anything")
	if status, _ := send(t, app, req); status != 401 {
		t.Fatalf("expected 401 when no key is configured, got %d", status)
	}
}

func TestOriginCheck(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler(zap.NewNop())})
	app.Use(OriginCheck([]string{"https://app.example.com"}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	tests := []struct {
		origin string
		want   int
	}{
		{"", 200},
		{"https://app.example.com", 200},
		{"https://evil.example.com", 403},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest("GET", "/", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if status, _ := send(t, app, req); status != tt.want {
			t.Fatalf("origin %q: expected %d, got %d", tt.origin, tt.want, status)
		}
	}

	open := fiber.New()
	open.Use(OriginCheck([]string{"*"}))
	open.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	req, _ := http.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://anywhere.test")
	if status, _ := send(t, open, req); status != 200 {
		t.Fatalf("wildcard should allow any origin, got %d", status)
	}
}
