package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"crudgate/internal/audit"
	"crudgate/internal/auth"
	"crudgate/internal/config"
	"crudgate/internal/engine"
	"crudgate/internal/orders"
	"crudgate/internal/rawsql"
	"crudgate/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("config loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("db", fmt.Sprintf("%s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)))

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database, log.Named("store"))
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatal("failed to bootstrap system tables", zap.Error(err))
	}

	// 4. Audit trail
	var recorder audit.Recorder = audit.Noop{}
	var buffer *audit.Buffer
	if cfg.Audit.Enabled {
		buffer = audit.NewBuffer(db, log.Named("audit"), cfg.Audit.BufferSize,
			time.Duration(cfg.Audit.FlushIntervalMs)*time.Millisecond)
		recorder = buffer
	}

	// 5. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler(log.Named("http")),
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: cfg.Log.Development,
	}))
	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency} ${respHeader:X-Request-ID}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: joinOrigins(cfg.Server.AllowedOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key",
	}))
	app.Use(auth.OriginCheck(cfg.Server.AllowedOrigins))

	// 6. Health check and auth routes (no auth required)
	crudHandler := engine.NewHandler(db, log.Named("engine"))
	app.Get("/health", crudHandler.Health)

	limiter := auth.NewRateLimiter(cfg.RateLimit)
	authHandler := auth.NewHandler(db, cfg.Auth, recorder, log.Named("auth"))
	auth.RegisterRoutes(app, authHandler, limiter.Middleware())

	// 7. Auth middleware for all protected routes
	authMW := auth.Authenticate(cfg.Auth)
	elevatedMW := auth.RequireRole(cfg.Auth.RawSQLRoles)

	// 8. Generic CRUD, schema and table listing
	engine.RegisterCrudRoutes(app, crudHandler, authMW)

	// 9. Raw SQL gateway (elevated role required)
	rawHandler := rawsql.NewHandler(db, recorder, auth.Subject, log.Named("rawsql"))
	rawsql.RegisterRoutes(app, rawHandler, authMW, elevatedMW)

	// 10. Order transactions
	orderHandler := orders.NewHandler(db, recorder, auth.Subject, log.Named("orders"))
	orders.RegisterRoutes(app, orderHandler, authMW)

	// 11. Audit trail listing (elevated role required)
	audit.RegisterRoutes(app, audit.NewHandler(db), authMW, elevatedMW)

	// 12. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		log.Info("starting server", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			log.Error("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
	if buffer != nil {
		buffer.Stop()
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func joinOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ", ")
}
