// Command enqueue submits image files, or a file URL, as one OCR job.
//
//	enqueue -lang jpn -type receipt page1.png page2.png
//	enqueue -url s3://scans/invoice.png
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/raspverry/ai-ocr/internal/logging"
	"github.com/raspverry/ai-ocr/internal/queue"
)

func main() {
	_ = godotenv.Load()
	logger := logging.NewLogger("Enqueue")
	defer logging.Sync()

	var (
		redisURL   = flag.String("redis", envOr("REDIS_URL", "redis://localhost:6379"), "Redis URL")
		queueName  = flag.String("queue", envOr("QUEUE_NAME", queue.DefaultQueueName), "queue name")
		backend    = flag.String("backend", envOr("QUEUE_BACKEND", "redis"), "queue backend: redis or asynq")
		language   = flag.String("lang", "", "language hint (jpn, kor, eng, chi_sim, chi_tra)")
		docType    = flag.String("type", "", "document type (receipt, invoice, form, handwritten)")
		fileURL    = flag.String("url", "", "http(s):// or s3:// URL of the page image")
		userID     = flag.String("user", "cli", "user id")
		maxRetries = flag.Int("retries", 3, "maximum retries")
	)
	flag.Parse()

	payload := queue.JobPayload{
		UserID:       *userID,
		Language:     *language,
		DocumentType: *docType,
		FileURL:      *fileURL,
	}
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Error("Failed to read page", "path", path, "error", err)
			os.Exit(1)
		}
		payload.Pages = append(payload.Pages, data)
		if payload.Filename == "" {
			payload.Filename = filepath.Base(path)
			payload.MimeType = http.DetectContentType(data)
		}
	}
	if payload.Filename == "" && *fileURL != "" {
		payload.Filename = filepath.Base(*fileURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	jobID, err := enqueue(ctx, *backend, *redisURL, *queueName, *maxRetries, payload)
	if err != nil {
		logger.Error("Failed to enqueue job", "error", err)
		os.Exit(1)
	}
	logger.Info("Job enqueued", "jobId", jobID, "pages", len(payload.Pages), "queue", *queueName)
	fmt.Println(jobID)
}

func enqueue(ctx context.Context, backend, redisURL, queueName string, maxRetries int, payload queue.JobPayload) (string, error) {
	switch backend {
	case "asynq":
		producer, err := queue.NewProducer(redisURL, queueName, maxRetries, 0)
		if err != nil {
			return "", err
		}
		defer producer.Close()
		return producer.Enqueue(ctx, payload)
	case "redis":
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return "", fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(opt)
		defer client.Close()
		return queue.NewRedisProducer(client, queueName, maxRetries).Enqueue(ctx, payload)
	default:
		return "", fmt.Errorf("unknown queue backend %q", backend)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
