package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"

	"github.com/provanto/provanto/internal/config"
	"github.com/provanto/provanto/internal/conflict"
	"github.com/provanto/provanto/internal/database"
	"github.com/provanto/provanto/internal/handlers"
	"github.com/provanto/provanto/internal/jobs"
	"github.com/provanto/provanto/internal/kpi"
	"github.com/provanto/provanto/internal/middleware"
	"github.com/provanto/provanto/internal/notify"
)

const version = "1.0.0"

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting Provanto deviation engine...")

	// Initialize JWT authentication middleware
	if cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is not set")
	}

	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	jwtAuthMiddleware := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/auth/login",
			"/ws/*",
		},
	})
	log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)

	// Initialize database connection
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run database migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Initialize default database records
	if err := database.InitializeDefaults(); err != nil {
		log.Fatalf("Failed to initialize database defaults: %v", err)
	}

	// Apply per-tenant threshold overrides from file if configured
	if cfg.ThresholdOverridesPath != "" {
		applied, err := database.LoadThresholdOverridesFile(database.GetDB(), cfg.ThresholdOverridesPath)
		if err != nil {
			log.Fatalf("Failed to load threshold overrides from %s: %v", cfg.ThresholdOverridesPath, err)
		}
		log.Printf("Applied %d threshold overrides from %s", applied, cfg.ThresholdOverridesPath)
	}

	// Pick the notification channel: Slack when configured, process log otherwise
	var notifier notify.Notifier
	if cfg.SlackBotToken != "" {
		notifier = notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackConflictsChannel)
		log.Printf("Slack notifications enabled, channel %s", cfg.SlackConflictsChannel)
	} else {
		notifier = notify.LogNotifier{}
		log.Printf("Slack not configured, notifications go to the process log")
	}

	// Conflict service with the live event feed attached
	conflictService := conflict.NewService(database.GetDB())
	feedHub := handlers.NewFeedHub()
	conflictService.SetEventSink(feedHub)

	// Periodic jobs
	escalationSweep := jobs.NewEscalationSweep(database.GetDB(), conflictService, notifier)
	escalationSweep.SetRunBudget(cfg.JobRunBudget)
	autoResolveSweep := jobs.NewAutoResolveSweep(database.GetDB(), conflictService)
	autoResolveSweep.SetRunBudget(cfg.JobRunBudget)
	forecastGenerator := jobs.NewForecastGenerator(database.GetDB())
	forecastGenerator.SetRunBudget(cfg.JobRunBudget)

	stop := make(chan struct{})
	go escalationSweep.Start(cfg.EscalationInterval, stop)
	go autoResolveSweep.Start(cfg.AutoResolveInterval, stop)
	go forecastGenerator.Start(cfg.ForecastInterval, stop)
	log.Printf("Jobs scheduled: escalation every %s, auto-resolve every %s, forecast every %s",
		cfg.EscalationInterval, cfg.AutoResolveInterval, cfg.ForecastInterval)

	// KPI service
	kpiService := kpi.NewService(database.GetDB())

	// HTTP handlers
	httpHandler := handlers.NewHTTPHandler(version)
	apiHandler := handlers.NewAPIHandler(conflictService, kpiService, escalationSweep, autoResolveSweep, forecastGenerator)
	authHandler := handlers.NewAuthHandler(jwtAuthMiddleware, cfg.JWTExpiryHours)

	mux := http.NewServeMux()
	httpHandler.SetupRoutes(mux)
	apiHandler.SetupRoutes(mux)
	authHandler.SetupRoutes(mux)
	feedHub.SetupRoutes(mux)

	// Wrap all routes with request IDs, CORS, then JWT authentication
	corsMiddleware := middleware.NewCORSMiddleware() // Allow all origins
	handler := middleware.RequestIDMiddleware(corsMiddleware.Wrap(jwtAuthMiddleware.Wrap(mux)))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)
	log.Printf("API base URL: http://localhost:%d/api", cfg.HTTPPort)
	log.Printf("Conflict feed: ws://localhost:%d/ws/conflicts", cfg.HTTPPort)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Received shutdown signal, cleaning up...")
	close(stop)

	if err := httpServer.Close(); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}
	if err := database.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
	log.Println("Shutdown complete")
}
