/**
 * Redis list queue consumer for the OCR worker
 *
 * Jobs are ids pushed onto a list; the envelope lives in the "<queue>:data"
 * hash. Status is tracked in the ":processing", ":completed" and ":failed"
 * sets, results in ":results" / ":errors", and every transition is published
 * on ":events".
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/raspverry/ai-ocr/internal/logging"
	"github.com/raspverry/ai-ocr/internal/processor"
)

// DefaultQueueName is the list OCR jobs are pushed onto
const DefaultQueueName = "ocr:jobs"

var errNoJob = stderrors.New("no jobs available")

// RedisConsumer handles job consumption from a Redis list
type RedisConsumer struct {
	client redis.UniversalClient
	runner *jobRunner
	config *RedisConsumerConfig
	logger *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.JobProcessor
	ProcessingTimeout int64 // milliseconds, default 300000
	// PollTimeout bounds each BRPOP, default 5s
	PollTimeout time.Duration
}

// NewRedisConsumer connects to Redis and creates a consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisConsumerWithClient(client, cfg)
}

// NewRedisConsumerWithClient creates a consumer over an existing client
func NewRedisConsumerWithClient(client redis.UniversalClient, cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueueName
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}

	logger := logging.NewLogger("RedisConsumer")
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisConsumer{
		client: client,
		runner: newJobRunner(cfg.Processor, cfg.ProcessingTimeout, logger),
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (c *RedisConsumer) key(suffix string) string {
	return c.config.QueueName + ":" + suffix
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)
	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	return nil
}

// Stop waits for running jobs and closes the client
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping queue consumer")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	c.logger.Debug("Worker started", "worker", id)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Worker stopping", "worker", id)
			return
		default:
		}
		if err := c.processNextJob(c.ctx); err != nil {
			if stderrors.Is(err, errNoJob) || c.ctx.Err() != nil {
				continue
			}
			c.logger.Error("Worker error", "worker", id, "error", err)
			select {
			case <-time.After(time.Second):
			case <-c.ctx.Done():
			}
		}
	}
}

// processNextJob pops one job id and handles it
func (c *RedisConsumer) processNextJob(ctx context.Context) error {
	result, err := c.client.BRPop(ctx, c.config.PollTimeout, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return errNoJob
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}
	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}
	return c.handle(ctx, result[1])
}

func (c *RedisConsumer) handle(ctx context.Context, id string) error {
	raw, err := c.client.HGet(ctx, c.key("data"), id).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data for %s: %w", id, err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		c.markFailed(ctx, id, map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	if err := validatePayload(&job.Payload); err != nil {
		c.markFailed(ctx, id, map[string]interface{}{"error": err.Error()})
		return err
	}

	c.client.SAdd(ctx, c.key("processing"), id)
	c.publish(ctx, job.Payload.JobID, "processing")

	// a job is not dropped halfway when the consumer stops
	res, err := c.runner.run(context.WithoutCancel(ctx), &job.Payload)
	if err != nil {
		job.Attempts++
		if job.Attempts < job.MaxRetries {
			updated, _ := json.Marshal(job)
			c.client.SRem(ctx, c.key("processing"), id)
			c.client.HSet(ctx, c.key("data"), id, updated)
			c.client.LPush(ctx, c.config.QueueName, id)
			c.logger.Warn("Job re-queued for retry", "jobId", job.Payload.JobID, "attempt", job.Attempts, "maxRetries", job.MaxRetries)
			return nil
		}
		c.markFailed(ctx, id, map[string]interface{}{
			"error":    err.Error(),
			"attempts": job.Attempts,
		})
		c.publish(ctx, job.Payload.JobID, "failed")
		return nil
	}

	data, _ := json.Marshal(res)
	c.client.SRem(ctx, c.key("processing"), id)
	c.client.SAdd(ctx, c.key("completed"), id)
	c.client.HSet(ctx, c.key("results"), id, data)
	c.publish(ctx, job.Payload.JobID, "completed")
	return nil
}

func (c *RedisConsumer) markFailed(ctx context.Context, id string, details map[string]interface{}) {
	data, _ := json.Marshal(details)
	c.client.SRem(ctx, c.key("processing"), id)
	c.client.SAdd(ctx, c.key("failed"), id)
	c.client.HSet(ctx, c.key("errors"), id, data)
}

// publish announces a status transition for live listeners
func (c *RedisConsumer) publish(ctx context.Context, jobID, status string) {
	event := map[string]interface{}{
		"event":     "job:" + status,
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	data, _ := json.Marshal(event)
	c.client.Publish(ctx, c.key("events"), data)
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	pipe := c.client.Pipeline()
	waiting := pipe.LLen(ctx, c.config.QueueName)
	processing := pipe.SCard(ctx, c.key("processing"))
	completed := pipe.SCard(ctx, c.key("completed"))
	failed := pipe.SCard(ctx, c.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}

// RedisProducer pushes jobs onto a Redis list queue
type RedisProducer struct {
	client     redis.UniversalClient
	queueName  string
	maxRetries int
}

// NewRedisProducer creates a producer for queueName
func NewRedisProducer(client redis.UniversalClient, queueName string, maxRetries int) *RedisProducer {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	return &RedisProducer{client: client, queueName: queueName, maxRetries: maxRetries}
}

// Enqueue stores the envelope and pushes its id. A missing job id is filled
// with a new UUID, which is returned.
func (p *RedisProducer) Enqueue(ctx context.Context, payload JobPayload) (string, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.NewString()
	}
	if err := validatePayload(&payload); err != nil {
		return "", err
	}
	job := RedisJobData{
		ID:         payload.JobID,
		Type:       TaskProcessDocument,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: p.maxRetries,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, p.queueName+":data", job.ID, data)
	pipe.LPush(ctx, p.queueName, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job.ID, nil
}
