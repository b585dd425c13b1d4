package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/melkiimultic/primitiveBank/internal/adapter/handler"
	"github.com/melkiimultic/primitiveBank/internal/adapter/middleware"
	"github.com/melkiimultic/primitiveBank/internal/adapter/storage"
	"github.com/melkiimultic/primitiveBank/internal/adapter/storage/memory"
	"github.com/melkiimultic/primitiveBank/internal/core/config"
	"github.com/melkiimultic/primitiveBank/internal/core/metrics"
	"github.com/melkiimultic/primitiveBank/internal/core/security"
	"github.com/melkiimultic/primitiveBank/internal/core/service"
	"github.com/melkiimultic/primitiveBank/internal/core/worker"
)

func main() {
	cfg := config.LoadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var accountStore service.AccountStore
	var userStore service.UserStore

	dbPool, err := storage.ConnectDB(ctx, cfg.DatabaseURL)
	switch {
	case err == nil:
		if err := storage.Migrate(ctx, dbPool); err != nil {
			slog.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
		accountStore = storage.NewAccountStore(dbPool, cfg.WebhookURL)
		userStore = storage.NewUserStore(dbPool)
		slog.Info("connected to postgres")
	case cfg.DatabaseURL == "":
		// No database configured: run on the in-memory store. State is
		// lost on restart; meant for local development only.
		accountStore = memory.NewAccountStore()
		userStore = memory.NewUserStore()
		slog.Warn("DATABASE_URL not set, using in-memory store")
	default:
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector(logger)
	metricsServer := collector.StartServer(cfg.MetricsAddr)

	tokens := security.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	accountService := service.NewAccountService(accountStore, cfg.LockTimeout, collector, logger)
	userService := service.NewUserService(userStore, accountStore, tokens, logger)

	accountHandler := &handler.AccountHandler{Service: accountService}
	userHandler := &handler.UserHandler{Service: userService}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Post("/users", userHandler.Register)
	app.Post("/auth", userHandler.Login)

	private := app.Use(middleware.Protected(tokens, userService))
	private.Get("/users/me", userHandler.Me)
	private.Put("/users/me/info", userHandler.UpdateInfo)
	private.Delete("/users/me", userHandler.DeleteMe)

	private.Post("/accounts/create", accountHandler.CreateAccount)
	private.Get("/accounts", accountHandler.ListAccounts)
	private.Get("/accounts/:id/transactions", accountHandler.GetHistory)
	private.Delete("/accounts/close/:id", accountHandler.CloseAccount)

	if dbPool != nil {
		private.Post("/accounts/fund", middleware.Idempotency(dbPool), accountHandler.Fund)
		private.Post("/accounts/transfer", middleware.Idempotency(dbPool), accountHandler.Transfer)
		worker.StartWebhookWorker(ctx, dbPool, cfg.WebhookSecret)
	} else {
		private.Post("/accounts/fund", accountHandler.Fund)
		private.Post("/accounts/transfer", accountHandler.Transfer)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "env", cfg.Env, "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	<-stop
	slog.Info("shutting down server")
	cancel()

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	if err := metricsServer.Shutdown(context.Background()); err != nil {
		slog.Error("metrics server shutdown failed", "error", err)
	}
	if dbPool != nil {
		dbPool.Close()
		slog.Info("database connection closed")
	}

	slog.Info("server exited")
}
