/**
 * Asynq queue consumer for the OCR worker
 *
 * Alternative to the list consumer when jobs are produced through asynq:
 * retries, backoff and dead-lettering are left to asynq.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/raspverry/ai-ocr/internal/logging"
	"github.com/raspverry/ai-ocr/internal/processor"
)

// Consumer handles OCR tasks from asynq
type Consumer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner *jobRunner
	config *ConsumerConfig
	logger *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.JobProcessor
	ProcessingTimeout int64 // milliseconds, default 300000
}

// retryDelay backs off exponentially from 5s, capped at a minute
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n > 4 {
		return time.Minute
	}
	return min(time.Duration(5*(1<<uint(n)))*time.Second, time.Minute)
}

// NewConsumer creates a new asynq consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("AsynqConsumer")
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: retryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err)
			}),
		},
	)

	c := &Consumer{
		server: server,
		mux:    asynq.NewServeMux(),
		runner: newJobRunner(cfg.Processor, cfg.ProcessingTimeout, logger),
		config: cfg,
		logger: logger,
	}
	c.mux.HandleFunc(TaskProcessDocument, c.handleProcessDocument)
	return c, nil
}

// Start runs the asynq server in the background
func (c *Consumer) Start() error {
	c.logger.Info("Starting queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)
	return c.server.Start(c.mux)
}

// Stop waits for active tasks and stops the server
func (c *Consumer) Stop() error {
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

// handleProcessDocument processes one OCR task. Malformed payloads are not
// retried.
func (c *Consumer) handleProcessDocument(ctx context.Context, task *asynq.Task) error {
	var job JobPayload
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}
	if err := validatePayload(&job); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	result, err := c.runner.run(ctx, &job)
	if err != nil {
		return fmt.Errorf("document processing failed: %w", err)
	}
	// tasks built outside a server have no result writer
	if rw := task.ResultWriter(); rw != nil {
		data, _ := json.Marshal(result)
		if _, err := rw.Write(data); err != nil {
			c.logger.Warn("Failed to write task result", "jobId", job.JobID, "error", err)
		}
	}
	return nil
}

// Producer enqueues OCR tasks through asynq
type Producer struct {
	client     *asynq.Client
	queueName  string
	maxRetries int
	timeout    time.Duration
}

// NewProducer creates a producer for queueName
func NewProducer(redisURL, queueName string, maxRetries int, timeout time.Duration) (*Producer, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if queueName == "" {
		queueName = DefaultQueueName
	}
	return &Producer{
		client:     asynq.NewClient(redisOpt),
		queueName:  queueName,
		maxRetries: maxRetries,
		timeout:    timeout,
	}, nil
}

// NewTask builds the asynq task of a job. A missing job id is filled with a
// new UUID.
func NewTask(payload JobPayload) (*asynq.Task, string, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.NewString()
	}
	if err := validatePayload(&payload); err != nil {
		return nil, "", err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal job: %w", err)
	}
	return asynq.NewTask(TaskProcessDocument, data), payload.JobID, nil
}

// Enqueue submits a job and returns its id
func (p *Producer) Enqueue(ctx context.Context, payload JobPayload) (string, error) {
	task, jobID, err := NewTask(payload)
	if err != nil {
		return "", err
	}
	opts := []asynq.Option{
		asynq.Queue(p.queueName),
		asynq.TaskID(jobID),
		asynq.MaxRetry(p.maxRetries),
		asynq.Retention(24 * time.Hour),
	}
	if p.timeout > 0 {
		opts = append(opts, asynq.Timeout(p.timeout))
	}
	if _, err := p.client.EnqueueContext(ctx, task, opts...); err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}
	return jobID, nil
}

// Close closes the asynq client
func (p *Producer) Close() error {
	return p.client.Close()
}
