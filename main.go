// main.go
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"bus-booking/cmd"
	"bus-booking/internal/data/memstore"
	"bus-booking/internal/data/repository"
	"bus-booking/internal/events"
	"bus-booking/internal/gateway"
	"bus-booking/internal/usecase"
	"bus-booking/internal/wire"
	"bus-booking/pkg/database"
	"bus-booking/pkg/lock"
	"bus-booking/pkg/utils"

	"go.uber.org/zap"
)

func main() {
	// Load config
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(config.App.LogPath, config.App.Name, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.String("store", config.App.Store),
		zap.Bool("debug", config.App.Debug),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var repos *repository.Repository
	switch config.App.Store {
	case "memory":
		logger.Warn("Using in-memory store; state is lost on restart")
		repos = memstore.New(logger).Repository()
	default:
		db, err := database.InitDB(config.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		logger.Info("Database connected successfully")

		if config.Database.Migrate {
			if err := database.Migrate(ctx, db); err != nil {
				logger.Fatal("Failed to run migrations", zap.Error(err))
			}
		}
		repos = repository.NewRepository(db, logger)
	}

	sealer, err := utils.NewSealer(config.Payout.SealKey)
	if err != nil {
		logger.Fatal("Invalid payout seal key", zap.Error(err))
	}

	// Outbound events
	var sink events.Sink = events.NewLogSink(logger)
	if len(config.Kafka.Brokers) > 0 {
		kafkaSink, err := events.NewKafkaSink(config.Kafka.Brokers, config.Kafka.TopicPrefix, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Kafka", zap.Error(err))
		}
		sink = kafkaSink
	}
	dispatcher := events.NewDispatcher(sink, config.Kafka.Buffer, logger)

	// Sweep election
	var locker lock.Locker = lock.NewLocal()
	if config.Redis.URL != "" {
		client, err := lock.Connect(ctx, config.Redis.URL)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer client.Close()
		locker = lock.NewRedis(client, logger)
	}

	payChangu := gateway.NewClient(config.Gateway, logger)

	// Wire all dependencies
	app := wire.Wiring(repos, config, usecase.Deps{
		Payments: payChangu,
		Payouts:  payChangu,
		Events:   dispatcher,
		Sealer:   sealer,
		Locker:   locker,
	}, logger)

	go app.Service.Sweep.Run(ctx)

	// Start server
	if err := cmd.APIServer(ctx, app.Router, config.App.Port, logger); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dispatcher.Close(closeCtx); err != nil {
		logger.Warn("Event dispatcher did not drain", zap.Error(err))
	}
	logger.Info("Application stopped")
}
