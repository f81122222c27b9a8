package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/remitbridge-transfer-orchestrator/internal/api_gateway"
	"github.com/remitbridge-transfer-orchestrator/internal/api_gateway/service"
	"github.com/remitbridge-transfer-orchestrator/internal/config"
	"github.com/remitbridge-transfer-orchestrator/internal/data/mongo"
	"github.com/remitbridge-transfer-orchestrator/internal/data/postgres"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/logger"
	"github.com/remitbridge-transfer-orchestrator/internal/orchestrator"
	"github.com/remitbridge-transfer-orchestrator/internal/platform/messaging/consumers"
	"github.com/remitbridge-transfer-orchestrator/internal/platform/messaging/producers"
	"github.com/remitbridge-transfer-orchestrator/internal/platform/persistence"
	"github.com/remitbridge-transfer-orchestrator/internal/providers/checkout"
	"github.com/remitbridge-transfer-orchestrator/internal/providers/fxrates"
	"github.com/remitbridge-transfer-orchestrator/internal/providers/price"
	"github.com/remitbridge-transfer-orchestrator/internal/rates"
	"github.com/remitbridge-transfer-orchestrator/internal/realtime"
	"github.com/remitbridge-transfer-orchestrator/internal/reconciler"
	"github.com/remitbridge-transfer-orchestrator/internal/retry"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	if err := cfg.RequireWebhookSecret(); err != nil {
		log.Error("Missing webhook configuration", "error", err)
		os.Exit(1)
	}

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	transferRepo := mongo.NewTransferRepository(log, mongoDB.Database(), cfg.MongoDB.TransfersCollection)
	if err := transferRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to ensure transfer indexes", "error", err)
		os.Exit(1)
	}
	retryRepo := postgres.NewRetryRepository(log, postgresDB)

	// Initialize Kafka producers (commands to the processor, status events to every gateway)
	commandProducer, err := producers.NewTransferCommandProducer(log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize transfer command producer", "error", err)
		os.Exit(1)
	}
	statusProducer, err := producers.NewStatusEventProducer(log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize status event producer", "error", err)
		os.Exit(1)
	}

	// Rate caches back quotes at creation and the rates endpoint
	priceCache := rates.NewPriceCache(log,
		price.NewOracle(cfg.Rates.OracleURL, cfg.Rates.AssetID, cfg.Rates.HTTPTimeout),
		cfg.Rates.BridgeTTL,
		cfg.Rates.BridgeFallback,
	)
	localRates := rates.NewLocalRateCache(log, fxrates.NewClient(cfg.Rates.FXURL, cfg.Rates.HTTPTimeout), cfg.Rates.LocalTTL)
	go priceCache.Run(appCtx)

	// The gateway creates, enqueues and resumes; stages run in the processor
	orch := orchestrator.New(log, orchestrator.Dependencies{
		Repository: transferRepo,
		Publisher:  statusProducer,
		Commands:   commandProducer,
		Bridge:     priceCache,
		Local:      localRates,
	}, orchestrator.Settings{
		Fees: transfer.FeeSchedule{
			NetworkFeeUSD:       cfg.Fees.NetworkFeeUSD,
			PlatformFeePercent:  cfg.Fees.PlatformFeePercent,
			BenchmarkFeePercent: cfg.Fees.BenchmarkFeePercent,
		},
		MaxRetries: cfg.Retry.MaxRetries,
	})
	scheduler := retry.NewScheduler(log, &cfg.Retry, retryRepo, transferRepo, orch)
	rec := reconciler.New(log, transferRepo, statusProducer, orch, scheduler, checkout.NewVerifier(cfg.Checkout.WebhookSecret))

	// Status events reach this instance's subscribers through its own group
	hub := realtime.NewHub(log)
	statusGroup := fmt.Sprintf("%s-%s", cfg.Kafka.StatusGroupPrefix, uuid.NewString())
	statusConsumer := consumers.NewKafkaConsumer(log, &cfg.Kafka, cfg.Kafka.StatusTopic, statusGroup, kafka.LastOffset)
	bridge := realtime.NewBridge(log, statusConsumer, hub)
	if err := bridge.Start(appCtx); err != nil {
		log.Error("Failed to start status bridge", "error", err)
		os.Exit(1)
	}

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, api_gateway.Services{
		Transfers: service.NewTransferService(log, orch, scheduler),
		Rates:     service.NewRateService(priceCache, localRates),
		Webhooks:  rec,
		Hub:       hub,
	})
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	if err = bridge.Close(); err != nil {
		log.Error("Error closing status bridge", "error", err)
	}

	if err = commandProducer.Close(); err != nil {
		log.Error("Error closing command producer", "error", err)
	}
	if err = statusProducer.Close(); err != nil {
		log.Error("Error closing status event producer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
