package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/remitbridge-transfer-orchestrator/internal/config"
	"github.com/remitbridge-transfer-orchestrator/internal/data/mongo"
	"github.com/remitbridge-transfer-orchestrator/internal/data/postgres"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/logger"
	"github.com/remitbridge-transfer-orchestrator/internal/orchestrator"
	"github.com/remitbridge-transfer-orchestrator/internal/platform/messaging/consumers"
	"github.com/remitbridge-transfer-orchestrator/internal/platform/messaging/producers"
	"github.com/remitbridge-transfer-orchestrator/internal/platform/persistence"
	"github.com/remitbridge-transfer-orchestrator/internal/providers/fxrates"
	"github.com/remitbridge-transfer-orchestrator/internal/providers/ledger"
	"github.com/remitbridge-transfer-orchestrator/internal/providers/mpesa"
	"github.com/remitbridge-transfer-orchestrator/internal/providers/price"
	"github.com/remitbridge-transfer-orchestrator/internal/rates"
	"github.com/remitbridge-transfer-orchestrator/internal/reconciler"
	"github.com/remitbridge-transfer-orchestrator/internal/retry"
	"github.com/remitbridge-transfer-orchestrator/internal/transfer_processor/consumer"
	"github.com/remitbridge-transfer-orchestrator/internal/transfer_processor/service"
	"github.com/remitbridge-transfer-orchestrator/internal/transfer_processor/sweeper"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("transfer_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Transfer Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Provider credentials are checked before anything connects
	if err := cfg.RequireProviders(); err != nil {
		log.Error("Missing provider configuration", "error", err)
		os.Exit(1)
	}

	// Initialize databases with app context; the retry schema is migrated here
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

	// Initialize Kafka producers
	statusProducer, err := producers.NewStatusEventProducer(log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize status event producer", "error", err)
		os.Exit(1)
	}
	commandProducer, err := producers.NewTransferCommandProducer(log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize transfer command producer", "error", err)
		os.Exit(1)
	}
	dlqProducer, err := producers.NewDLQProducer(log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	// A nil *DLQProducer must not become a non-nil interface value
	var deadLetters producers.DeadLetterPublisher
	if dlqProducer != nil {
		deadLetters = dlqProducer
	}

	// Rate caches
	priceCache := rates.NewPriceCache(log,
		price.NewOracle(cfg.Rates.OracleURL, cfg.Rates.AssetID, cfg.Rates.HTTPTimeout),
		cfg.Rates.BridgeTTL,
		cfg.Rates.BridgeFallback,
	)
	localRates := rates.NewLocalRateCache(log, fxrates.NewClient(cfg.Rates.FXURL, cfg.Rates.HTTPTimeout), cfg.Rates.LocalTTL)

	// Orchestrator and its payout-failure path
	orch := orchestrator.New(log, orchestrator.Dependencies{
		Repository: transferRepo,
		Publisher:  statusProducer,
		Commands:   commandProducer,
		Bridge:     priceCache,
		Local:      localRates,
		Ledger:     ledger.NewClient(cfg.Ledger.BaseURL, cfg.Ledger.APIKey, cfg.Ledger.PartnerAddress, cfg.Ledger.Timeout),
		Payouts:    mpesa.NewClient(cfg.MPesa),
	}, orchestrator.Settings{
		Fees: transfer.FeeSchedule{
			NetworkFeeUSD:       cfg.Fees.NetworkFeeUSD,
			PlatformFeePercent:  cfg.Fees.PlatformFeePercent,
			BenchmarkFeePercent: cfg.Fees.BenchmarkFeePercent,
		},
		MaxRetries: cfg.Retry.MaxRetries,
	})
	scheduler := retry.NewScheduler(log, &cfg.Retry, retryRepo, transferRepo, orch)
	rec := reconciler.New(log, transferRepo, statusProducer, orch, scheduler, nil)
	orch.SetPayoutFailureHandler(rec)

	// Processing pipeline
	workerPool, err := service.NewWorkerPoolProcessingService(
		service.NewProcessingService(log, orch),
		service.WorkerPoolConfig{Size: cfg.WorkerPool.Size},
		log,
	)
	if err != nil {
		log.Error("Failed to initialize worker pool", "error", err)
		os.Exit(1)
	}
	commandHandler := consumer.NewCommandHandler(log, workerPool, deadLetters)

	retryPoller, err := retry.NewPoller(log, &cfg.Retry, cfg.WorkerPool.Size, retryRepo, orch)
	if err != nil {
		log.Error("Failed to initialize retry poller", "error", err)
		os.Exit(1)
	}
	stuckSweeper := sweeper.NewSweeper(log, &cfg.Retry, transferRepo, commandProducer, scheduler)

	// One reader per partition; commands for a transfer share a key and so
	// a partition, and each reader handles its messages in order.
	readers := cfg.Kafka.NumPartitions
	if readers < 1 {
		readers = 1
	}
	kafkaConsumers := make([]*consumers.KafkaConsumer, 0, readers)
	for i := 0; i < readers; i++ {
		kafkaConsumers = append(kafkaConsumers,
			consumers.NewKafkaConsumer(log, &cfg.Kafka, cfg.Kafka.CommandTopic, cfg.Kafka.ConsumerGroup, cfg.Kafka.StartOffset))
	}

	// Create error channel for service errors
	errChan := make(chan error, readers)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	log.Info("Starting Kafka consumers",
		"topic", cfg.Kafka.CommandTopic,
		"group", cfg.Kafka.ConsumerGroup,
		"readers", readers,
	)
	for _, c := range kafkaConsumers {
		if err := c.Subscribe(appCtx, commandHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("kafka consumer error: %w", err)
		}
	}

	background := []func(context.Context){priceCache.Run, retryPoller.Start, stuckSweeper.Start}
	for _, run := range background {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(appCtx)
		}(run)
	}

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Wait for all goroutines to finish
	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	retryPoller.Shutdown()
	workerPool.Shutdown()

	// Close Kafka consumers
	for _, c := range kafkaConsumers {
		if err = c.Close(); err != nil {
			log.Error("Error closing Kafka consumer", "error", err)
		}
	}

	// Close Kafka producers
	if dlqProducer != nil {
		if err = dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}
	if err = commandProducer.Close(); err != nil {
		log.Error("Error closing command producer", "error", err)
	}
	if err = statusProducer.Close(); err != nil {
		log.Error("Error closing status event producer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serviceErr != nil {
		log.Error("Transfer Processor shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Transfer Processor shutdown completed with errors")
	} else {
		log.Info("Transfer Processor shutdown completed successfully")
	}
}
