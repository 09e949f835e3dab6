package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreybb/courier/api"
	"github.com/coreybb/courier/config"
	"github.com/coreybb/courier/datastore"
	"github.com/coreybb/courier/ingestion"
	"github.com/coreybb/courier/models"
	"github.com/coreybb/courier/webhooks"
	_ "github.com/lib/pq"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration failed: %v", err)
	}

	db, err := setupDatabase(cfg)
	if err != nil {
		log.Fatalf("Database setup failed: %v", err)
	}
	defer db.Close()

	userRepo := datastore.NewUserRepository(db)
	sourceRepo := datastore.NewSourceRepository(db)
	newsletterRepo := datastore.NewNewsletterRepository(db)
	skippedRepo := datastore.NewSkippedNewsletterRepository(db)
	quotaRepo := datastore.NewQuotaRepository(db, models.PlanLimits{
		MaxSourcesPerUser:    cfg.FreeMaxSourcesPerUser,
		MaxNewslettersPerDay: cfg.FreeMaxNewslettersPerDay,
	})

	orchestrator := ingestion.NewOrchestrator(
		ingestion.NewRequestNormalizer(),
		ingestion.NewSignatureVerifier(cfg.WebhookSigningKey, cfg.IsProduction()),
		ingestion.NewRecipientResolver(userRepo, cfg.InboundEmailDomain, cfg.DefaultRecipientUserID),
		ingestion.NewSourceResolver(sourceRepo, quotaRepo),
		quotaRepo,
		newsletterRepo,
		skippedRepo,
		ingestion.NewContentProcessor(),
	)

	inboundEmailHandler := webhooks.NewInboundEmailHandler(orchestrator)
	router := api.SetupRoutes(inboundEmailHandler)

	if !cfg.IsProduction() {
		log.Printf("WARN: Environment is %q, webhook signature verification is disabled.", cfg.Environment)
	}

	startServer(cfg.Port, router)
}

func setupDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection successful")
	return db, nil
}

func startServer(port string, router http.Handler) {
	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownSignal
	log.Println("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}

	log.Println("Server gracefully stopped")
}
