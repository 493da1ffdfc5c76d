package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/raspverry/ai-ocr/internal/errors"
	"github.com/raspverry/ai-ocr/internal/logging"
	"github.com/raspverry/ai-ocr/internal/processor"
	"github.com/raspverry/ai-ocr/internal/storage"
)

// DefaultProcessingTimeout bounds a single job
const DefaultProcessingTimeout = 5 * time.Minute

// jobRunner is the job handling both consumers share
type jobRunner struct {
	processor processor.JobProcessor
	timeout   time.Duration
	logger    *logging.Logger
}

func newJobRunner(proc processor.JobProcessor, timeoutMs int64, logger *logging.Logger) *jobRunner {
	timeout := DefaultProcessingTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	return &jobRunner{processor: proc, timeout: timeout, logger: logger}
}

// run marks the job as processing, processes it under the job timeout and
// records a failure. Completion is recorded by the processor itself.
func (r *jobRunner) run(ctx context.Context, job *JobPayload) (*processor.ProcessResult, error) {
	start := time.Now()
	log := r.logger.With("jobId", job.JobID)

	if err := r.processor.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:    job.JobID,
		UserID:   job.UserID,
		Filename: job.Filename,
		MimeType: job.MimeType,
		Status:   processor.StatusProcessing,
		Metadata: job.Metadata,
	}); err != nil {
		log.Warn("Failed to update status to processing", "error", err)
	}

	jobCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	log.Info("Processing job", "filename", job.Filename, "pages", len(job.Pages), "timeout", r.timeout)
	result, err := r.processor.ProcessJob(jobCtx, job.Request())
	duration := time.Since(start)
	if err == nil {
		log.Info("Job completed", "durationMs", duration.Milliseconds(), "confidence", result.Confidence)
		return result, nil
	}

	if stderrors.Is(jobCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = errors.NewProcessingTimeoutError(job.JobID, r.timeout, err)
		log.Error("Job timed out", "durationMs", duration.Milliseconds(), "timeout", r.timeout)
	} else {
		log.Error("Job failed", "durationMs", duration.Milliseconds(), "error", err)
	}
	r.recordFailure(ctx, job.JobID, duration, err)
	return nil, err
}

func (r *jobRunner) recordFailure(ctx context.Context, jobID string, duration time.Duration, cause error) {
	update := &storage.JobUpdate{
		JobID:            jobID,
		Status:           processor.StatusFailed,
		ProcessingTimeMs: duration.Milliseconds(),
		ErrorCode:        "PROCESSING_ERROR",
		ErrorMessage:     cause.Error(),
	}
	var pe *errors.ProcessingError
	if stderrors.As(cause, &pe) {
		update.ErrorCode = string(pe.Code)
	}
	// the job context may be gone; the failure still has to be written
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.processor.UpdateJobStatus(writeCtx, update); err != nil {
		r.logger.Warn("Failed to update status to failed", "jobId", jobID, "error", err)
	}
}

func validatePayload(job *JobPayload) error {
	if job.JobID == "" {
		return fmt.Errorf("job payload has no jobId")
	}
	if len(job.Pages) == 0 && job.FileURL == "" {
		return fmt.Errorf("job %s has neither pages nor fileUrl", job.JobID)
	}
	return nil
}
