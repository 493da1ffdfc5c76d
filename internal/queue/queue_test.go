package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raspverry/ai-ocr/internal/errors"
	"github.com/raspverry/ai-ocr/internal/logging"
	"github.com/raspverry/ai-ocr/internal/processor"
	"github.com/raspverry/ai-ocr/internal/storage"
)

type fakeProcessor struct {
	mu      sync.Mutex
	updates []storage.JobUpdate
	jobs    []*processor.ProcessRequest
	err     error
	block   bool
}

func (f *fakeProcessor) ProcessJob(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, req)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &processor.ProcessResult{JobID: req.JobID, Text: "done", Confidence: 0.9, PageCount: len(req.Pages)}, nil
}

func (f *fakeProcessor) UpdateJobStatus(_ context.Context, update *storage.JobUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, *update)
	return nil
}

func (f *fakeProcessor) statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, u := range f.updates {
		out = append(out, u.Status)
	}
	return out
}

func (f *fakeProcessor) last() storage.JobUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[len(f.updates)-1]
}

func TestJobPayloadPages(t *testing.T) {
	t.Run("base64", func(t *testing.T) {
		var p JobPayload
		require.NoError(t, json.Unmarshal([]byte(`{"jobId":"j1","pages":["aGVsbG8=","AQI="],"language":"kor"}`), &p))
		assert.Equal(t, [][]byte{[]byte("hello"), {1, 2}}, p.Pages)
		assert.Equal(t, "kor", p.Language)
	})

	t.Run("node buffer", func(t *testing.T) {
		var p JobPayload
		require.NoError(t, json.Unmarshal([]byte(`{"jobId":"j1","pages":[{"type":"Buffer","data":[104,105]}]}`), &p))
		assert.Equal(t, [][]byte{[]byte("hi")}, p.Pages)
	})

	t.Run("invalid", func(t *testing.T) {
		for _, raw := range []string{
			`{"pages":["***"]}`,
			`{"pages":[{"type":"Blob","data":[1]}]}`,
			`{"pages":[{"type":"Buffer","data":[300]}]}`,
			`{"pages":[{"type":"Buffer"}]}`,
			`{"pages":[42]}`,
		} {
			var p JobPayload
			assert.Error(t, json.Unmarshal([]byte(raw), &p), raw)
		}
	})

	t.Run("written as base64", func(t *testing.T) {
		data, err := json.Marshal(JobPayload{JobID: "j1", Pages: [][]byte{[]byte("hello")}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"jobId":"j1","userId":"","filename":"","pages":["aGVsbG8="]}`, string(data))

		var back JobPayload
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, [][]byte{[]byte("hello")}, back.Pages)
	})
}

func TestNewTask(t *testing.T) {
	task, id, err := NewTask(JobPayload{Filename: "a.png", FileURL: "s3://bucket/a.png"})
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)
	assert.Equal(t, TaskProcessDocument, task.Type())

	var p JobPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, id, p.JobID)
	assert.Equal(t, "s3://bucket/a.png", p.FileURL)

	_, _, err = NewTask(JobPayload{JobID: "x"})
	assert.Error(t, err, "a job needs pages or a file URL")
}

func newTestConsumer(proc processor.JobProcessor, timeoutMs int64) *Consumer {
	return &Consumer{
		runner: newJobRunner(proc, timeoutMs, logging.NewNop()),
		config: &ConsumerConfig{QueueName: DefaultQueueName},
		logger: logging.NewNop(),
	}
}

func TestHandleProcessDocument(t *testing.T) {
	payload, err := json.Marshal(JobPayload{JobID: "job-1", Filename: "scan.png", Pages: [][]byte{{1}}})
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		proc := &fakeProcessor{}
		err := newTestConsumer(proc, 0).handleProcessDocument(context.Background(), asynq.NewTask(TaskProcessDocument, payload))
		require.NoError(t, err)
		assert.Equal(t, []string{processor.StatusProcessing}, proc.statuses())
		require.Len(t, proc.jobs, 1)
		assert.Equal(t, "scan.png", proc.jobs[0].Filename)
		assert.Equal(t, [][]byte{{1}}, proc.jobs[0].Pages)
	})

	t.Run("failure is recorded", func(t *testing.T) {
		proc := &fakeProcessor{err: errors.NewAllEnginesFailedError(map[string]string{"tesseract": "down"})}
		err := newTestConsumer(proc, 0).handleProcessDocument(context.Background(), asynq.NewTask(TaskProcessDocument, payload))
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrorAllEnginesFailed))
		assert.Equal(t, []string{processor.StatusProcessing, processor.StatusFailed}, proc.statuses())
		assert.Equal(t, string(errors.ErrorAllEnginesFailed), proc.last().ErrorCode)
	})

	t.Run("timeout", func(t *testing.T) {
		proc := &fakeProcessor{block: true}
		err := newTestConsumer(proc, 30).handleProcessDocument(context.Background(), asynq.NewTask(TaskProcessDocument, payload))
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrorProcessingTimeout))
		assert.Equal(t, string(errors.ErrorProcessingTimeout), proc.last().ErrorCode)
	})

	t.Run("malformed payload is not retried", func(t *testing.T) {
		proc := &fakeProcessor{}
		c := newTestConsumer(proc, 0)
		err := c.handleProcessDocument(context.Background(), asynq.NewTask(TaskProcessDocument, []byte("{")))
		assert.True(t, stderrors.Is(err, asynq.SkipRetry))

		err = c.handleProcessDocument(context.Background(), asynq.NewTask(TaskProcessDocument, []byte(`{"jobId":"x"}`)))
		assert.True(t, stderrors.Is(err, asynq.SkipRetry))
		assert.Empty(t, proc.jobs)
	})
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 5*time.Second, retryDelay(0, nil, nil))
	assert.Equal(t, 20*time.Second, retryDelay(2, nil, nil))
	assert.Equal(t, time.Minute, retryDelay(4, nil, nil))
	assert.Equal(t, time.Minute, retryDelay(30, nil, nil))
}

func TestRedisQueueRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	defer client.Close()

	ctx := context.Background()
	queue := fmt.Sprintf("ocr:test:%d", time.Now().UnixNano())
	defer client.Del(ctx, queue, queue+":data", queue+":processing", queue+":completed",
		queue+":failed", queue+":results", queue+":errors")

	id, err := NewRedisProducer(client, queue, 1).Enqueue(ctx, JobPayload{Filename: "a.png", Pages: [][]byte{{1, 2}}})
	require.NoError(t, err)

	proc := &fakeProcessor{}
	consumer, err := NewRedisConsumerWithClient(client, &RedisConsumerConfig{
		QueueName:   queue,
		Processor:   proc,
		PollTimeout: time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, consumer.processNextJob(ctx))

	assert.True(t, client.SIsMember(ctx, queue+":completed", id).Val())
	stats, err := consumer.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats["waiting"])
	assert.Equal(t, int64(1), stats["completed"])

	assert.ErrorIs(t, consumer.processNextJob(ctx), errNoJob)
}
