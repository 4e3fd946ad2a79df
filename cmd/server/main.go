package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/wastebroker/ops-platform/internal/config"
	"github.com/wastebroker/ops-platform/internal/database"
	"github.com/wastebroker/ops-platform/internal/handlers"
	"github.com/wastebroker/ops-platform/internal/logger"
	"github.com/wastebroker/ops-platform/internal/reconcile"
	"github.com/wastebroker/ops-platform/internal/services"
)

func main() {
	// Load configuration (reads .env if present)
	cfg := config.Load()

	logger.Init(cfg.LogLevel, cfg.Environment)
	log := logger.WithComponent("server")

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Run migrations
	if err := database.RunMigrations(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Invoice document storage is optional; intake without a document still works
	documents := initDocumentStore(cfg)

	engine := reconcile.NewService(reconcile.NewPostgresTransactor(db), reconcile.Config{
		DateWindowDays:      cfg.Reconciliation.DateWindowDays,
		MaxDescriptionRunes: cfg.Reconciliation.MaxDescriptionRunes,
		Defaults: reconcile.SettingsDefaults{
			FuzzyMatchThreshold:      cfg.Reconciliation.DefaultFuzzyThreshold,
			PriceTolerancePercentage: cfg.Reconciliation.DefaultPriceTolerance,
			AutoApproveExactMatches:  cfg.Reconciliation.DefaultAutoApproveExact,
		},
	})
	intake := services.NewInvoiceIntake(
		services.NewPostgresIntakeTransactor(db),
		documents,
		engine.Resolver(),
		engine,
		cfg.DocumentURLTTL,
	)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    int(cfg.Reconciliation.MaxUploadBytes) + 1<<20,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	handlers.New(cfg, engine, intake).Register(app)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// initDocumentStore returns nil when S3 is not configured. The nil is an
// untyped interface so intake can detect it.
func initDocumentStore(cfg *config.Config) services.DocumentStore {
	log := logger.WithComponent("storage")

	if !cfg.StorageEnabled() {
		log.Warn().Msg("S3 credentials not configured, invoice documents disabled")
		return nil
	}

	storage, err := services.NewS3DocumentStore(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize storage service")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := storage.EnsureBucket(ctx); err != nil {
		log.Warn().Err(err).Str("bucket", cfg.S3Bucket).Msg("failed to ensure S3 bucket exists")
	}

	log.Info().Str("bucket", cfg.S3Bucket).Msg("invoice document storage initialized")
	return storage
}
