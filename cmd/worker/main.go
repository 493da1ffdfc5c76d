/**
 * OCR Worker - Main Entry Point
 *
 * Consumes OCR jobs from Redis and runs every page through:
 *   geometry correction -> preprocessing -> special regions
 *   -> engine ensemble (cached) -> normalization -> entity extraction
 * Results are persisted to PostgreSQL, one row per page.
 *
 * Queue backends:
 * - redis: BRPOP list consumer (ids on QUEUE_NAME, envelopes in QUEUE_NAME:data)
 * - asynq: task type "ocr:process-document" on QUEUE_NAME
 */

package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/raspverry/ai-ocr/internal/config"
	"github.com/raspverry/ai-ocr/internal/engine"
	"github.com/raspverry/ai-ocr/internal/ensemble"
	"github.com/raspverry/ai-ocr/internal/logging"
	"github.com/raspverry/ai-ocr/internal/pipeline"
	"github.com/raspverry/ai-ocr/internal/processor"
	"github.com/raspverry/ai-ocr/internal/queue"
	"github.com/raspverry/ai-ocr/internal/storage"
)

// consumer is implemented by both queue backends
type consumer interface {
	Start() error
	Stop() error
}

func main() {
	logger := logging.NewLogger("Worker")
	defer logging.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Info(".env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.SetLevel(cfg.LogLevel)

	logger.Info("OCR worker starting",
		"queue", cfg.QueueName,
		"backend", cfg.QueueBackend,
		"workers", cfg.WorkerConcurrency,
		"pageWorkers", cfg.PageWorkers,
		"engines", cfg.Engines,
		"cache", cfg.CacheBackend)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	engines, err := engine.DefaultRegistry().Build(cfg)
	if err != nil {
		logger.Error("Failed to build recognition engines", "error", err)
		os.Exit(1)
	}
	defer closeEngines(engines, logger)

	cache, err := ensemble.NewCacheFromConfig(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize result cache", "error", err)
		os.Exit(1)
	}
	if closer, ok := cache.(io.Closer); ok {
		defer closer.Close()
	}

	db, err := storage.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("Failed to prepare database schema", "error", err)
		os.Exit(1)
	}

	objects, err := storage.NewObjectSourceFromConfig(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize object storage", "error", err)
		os.Exit(1)
	}

	coordinator := ensemble.NewCoordinator(engines, cache, ensemble.OptionsFromConfig(cfg), logging.NewLogger("Ensemble"))
	proc, err := processor.NewDocumentProcessor(pipeline.NewProcessor(cfg, coordinator), db, objects)
	if err != nil {
		logger.Error("Failed to initialize job processor", "error", err)
		os.Exit(1)
	}

	var c consumer
	switch cfg.QueueBackend {
	case "asynq":
		c, err = queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
	default:
		c, err = queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
	}
	if err != nil {
		logger.Error("Failed to initialize queue consumer", "error", err)
		os.Exit(1)
	}
	if err := c.Start(); err != nil {
		logger.Error("Failed to start queue consumer", "error", err)
		os.Exit(1)
	}
	logger.Info("OCR worker is ready, waiting for jobs")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal, shutting down", "signal", sig.String())

	if err := c.Stop(); err != nil {
		logger.Warn("Error stopping queue consumer", "error", err)
	}
	logger.Info("Shutdown complete")
}

func closeEngines(engines []engine.Engine, logger *logging.Logger) {
	for _, e := range engines {
		if closer, ok := e.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logger.Warn("Failed to close engine", "engine", e.Name(), "error", err)
			}
		}
	}
}
