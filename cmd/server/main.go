package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/graphintel/insight-engine/internal/config"
	"github.com/graphintel/insight-engine/internal/database"
	"github.com/graphintel/insight-engine/internal/engine"
	"github.com/graphintel/insight-engine/internal/graph"
	"github.com/graphintel/insight-engine/internal/handlers"
	"github.com/graphintel/insight-engine/internal/kafka"
	"github.com/graphintel/insight-engine/internal/metrics"
	"github.com/graphintel/insight-engine/internal/neo4j"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))

	logger.Info("Starting Insight Engine Service",
		"version", "1.0.0",
		"environment", cfg.Environment)

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector()

	// Initialize database connection
	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run database migrations
	if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		logger.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// Initialize repository
	repo := database.NewRepository(db, logger)

	// Initialize Neo4j client
	neo4jClient, err := neo4j.NewClient(cfg.Neo4j, logger)
	if err != nil {
		logger.Error("Failed to connect to Neo4j", "error", err)
		os.Exit(1)
	}
	defer neo4jClient.Close()

	// Initialize Kafka producer
	kafkaProducer, err := kafka.NewProducer(*cfg, logger)
	if err != nil {
		logger.Error("Failed to create Kafka producer", "error", err)
		os.Exit(1)
	}
	defer kafkaProducer.Close()

	// Initialize graph intelligence engine
	loader := graph.NewLoader(neo4jClient, graph.NewWeightModel(), logger)
	insightEngine := engine.New(
		loader,
		cfg.Engine,
		repo,
		kafkaProducer,
		metricsCollector,
		nil,
		logger,
	)

	// Initialize Kafka consumer
	kafkaConsumer, err := kafka.NewConsumer(insightEngine, *cfg, logger)
	if err != nil {
		logger.Error("Failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}

	// Initialize HTTP handlers
	httpHandlers := handlers.NewHTTPHandlers(insightEngine, repo, *cfg, logger)

	// Setup HTTP router
	router := mux.NewRouter()
	httpHandlers.RegisterRoutes(router)

	// Add Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	// Start Kafka consumer
	if err := kafkaConsumer.Start(); err != nil {
		logger.Error("Failed to start Kafka consumer", "error", err)
		os.Exit(1)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	// Graceful shutdown
	logger.Info("Starting graceful shutdown")

	if err := kafkaConsumer.Stop(); err != nil {
		logger.Error("Kafka consumer shutdown failed", "error", err)
	}

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer httpCancel()
	if err := httpSrv.Shutdown(httpCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	logger.Info("Insight Engine Service shutdown completed")
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
