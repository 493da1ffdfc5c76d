/**
 * Job processor for the OCR worker
 *
 * Turns a queued job into page inputs, runs them through the page pipeline
 * and persists the outcome:
 *   payload pages | fileUrl (http, s3) -> decode -> ProcessDocument
 *   -> job row + one row per page
 *
 * A job fails only when no page could be decoded or every page failed.
 */

package processor

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/raspverry/ai-ocr/internal/errors"
	"github.com/raspverry/ai-ocr/internal/logging"
	"github.com/raspverry/ai-ocr/internal/pipeline"
	"github.com/raspverry/ai-ocr/internal/storage"
)

// Job statuses
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DefaultDPI is assumed for pages that do not say otherwise
const DefaultDPI = 300

// JobProcessor is what the queue consumers drive
type JobProcessor interface {
	ProcessJob(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// ResultStore persists jobs and their pages
type ResultStore interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
	SavePageResults(ctx context.Context, jobID string, pages []storage.PageRecord) error
}

// Fetcher downloads a job file referenced by URL
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// ProcessRequest represents an OCR job
type ProcessRequest struct {
	JobID        string
	UserID       string
	Filename     string
	MimeType     string
	Language     string
	DocumentType string
	// Pages holds encoded page images in page order
	Pages    [][]byte
	FileURL  string
	Metadata map[string]interface{}
}

// ProcessResult represents the processing result of a job
type ProcessResult struct {
	JobID            string   `json:"jobId"`
	Text             string   `json:"text"`
	Language         string   `json:"language"`
	Confidence       float64  `json:"confidence"`
	PageCount        int      `json:"pageCount"`
	FailedPages      []int    `json:"failedPages,omitempty"`
	Engines          []string `json:"engines"`
	ProcessingTimeMs int64    `json:"processingTimeMs"`

	Document *pipeline.DocumentResult `json:"-"`
}

// DocumentProcessor handles OCR jobs
type DocumentProcessor struct {
	pages   *pipeline.Processor
	store   ResultStore
	fetcher Fetcher
	logger  *logging.Logger
}

// NewDocumentProcessor creates a job processor. store may be nil to skip
// persistence and fetcher may be nil for jobs that always carry their pages.
func NewDocumentProcessor(pages *pipeline.Processor, store ResultStore, fetcher Fetcher) (*DocumentProcessor, error) {
	if pages == nil {
		return nil, fmt.Errorf("page processor is required")
	}
	return &DocumentProcessor{
		pages:   pages,
		store:   store,
		fetcher: fetcher,
		logger:  logging.NewLogger("Processor"),
	}, nil
}

// ProcessJob runs a job end to end
func (p *DocumentProcessor) ProcessJob(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	if req == nil || req.JobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}
	start := time.Now()
	log := p.logger.With("jobId", req.JobID)

	data, err := p.loadPages(ctx, req)
	if err != nil {
		return nil, err
	}

	inputs := make([]pipeline.PageInput, 0, len(data))
	var undecodable []int
	for i, raw := range data {
		in, err := pipeline.DecodePage(raw, i+1, DefaultDPI)
		if err != nil {
			log.Warn("Skipping undecodable page", "page", i+1, "error", err)
			undecodable = append(undecodable, i+1)
			continue
		}
		inputs = append(inputs, in)
	}
	if len(inputs) == 0 {
		return nil, errors.NewImageDecodeError(req.JobID, 1, fmt.Errorf("none of %d pages could be decoded", len(data)))
	}

	opts := pipeline.DefaultOptions()
	opts.Language = req.Language
	opts.DocumentType = req.DocumentType

	log.Info("Processing job", "pages", len(inputs), "language", req.Language, "documentType", req.DocumentType)
	doc, err := p.pages.ProcessDocument(ctx, inputs, opts)
	if err != nil {
		var pe *errors.ProcessingError
		if stderrors.As(err, &pe) && pe.JobID == "" {
			pe.WithJobID(req.JobID)
		}
		return nil, err
	}

	result := summarize(req.JobID, doc)
	result.PageCount = len(data)
	result.FailedPages = mergePages(undecodable, doc.Failed)
	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	if err := p.persist(ctx, req, result); err != nil {
		return nil, err
	}

	log.Info("Job processed",
		"pages", result.PageCount,
		"failedPages", len(result.FailedPages),
		"confidence", result.Confidence,
		"durationMs", result.ProcessingTimeMs)
	return result, nil
}

// UpdateJobStatus writes a status change when a store is configured
func (p *DocumentProcessor) UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error {
	if p.store == nil {
		return nil
	}
	return p.store.UpdateJobStatus(ctx, update)
}

func (p *DocumentProcessor) loadPages(ctx context.Context, req *ProcessRequest) ([][]byte, error) {
	if len(req.Pages) > 0 {
		return req.Pages, nil
	}
	if req.FileURL == "" {
		return nil, errors.NewOCRFailedError(req.JobID, "load", fmt.Errorf("no pages or file URL provided"))
	}
	if !isImageType(req.MimeType) {
		return nil, errors.NewUnsupportedFormatError(req.JobID, req.MimeType)
	}
	if p.fetcher == nil {
		return nil, errors.NewOCRFailedError(req.JobID, "load", fmt.Errorf("no file source configured for %s", req.FileURL))
	}
	p.logger.Debug("Downloading job file", "jobId", req.JobID, "url", req.FileURL)
	data, err := p.fetcher.Fetch(ctx, req.FileURL)
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}

// isImageType accepts image MIME types; an empty type is sniffed on decode
func isImageType(mimeType string) bool {
	if mimeType == "" {
		return true
	}
	if strings.HasPrefix(mimeType, "image/") {
		return true
	}
	if mimeType == "application/octet-stream" {
		return true
	}
	return false
}

func (p *DocumentProcessor) persist(ctx context.Context, req *ProcessRequest, result *ProcessResult) error {
	if p.store == nil {
		return nil
	}
	records, err := pageRecords(req.JobID, result.Document)
	if err != nil {
		return errors.NewStorageFailedError(req.JobID, err)
	}
	if err := p.store.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:    req.JobID,
		UserID:   req.UserID,
		Filename: req.Filename,
		MimeType: req.MimeType,
		Status:   StatusProcessing,
		Metadata: req.Metadata,
	}); err != nil {
		return err
	}
	if err := p.store.SavePageResults(ctx, req.JobID, records); err != nil {
		return err
	}
	return p.store.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:            req.JobID,
		Status:           StatusCompleted,
		Language:         result.Language,
		Confidence:       result.Confidence,
		PageCount:        result.PageCount,
		FailedPages:      nonNil(result.FailedPages),
		ProcessingTimeMs: result.ProcessingTimeMs,
	})
}

// summarize folds page results into the job result. The job language is the
// one most recognized pages agree on.
func summarize(jobID string, doc *pipeline.DocumentResult) *ProcessResult {
	result := &ProcessResult{
		JobID:      jobID,
		Text:       doc.Text(),
		Confidence: doc.Confidence(),
		Engines:    []string{},
		Document:   doc,
	}

	votes := make(map[string]int)
	var order []string
	seen := make(map[string]bool)
	for _, page := range doc.Pages {
		if page == nil || page.Text == "" {
			continue
		}
		if page.Language != "" {
			if votes[page.Language] == 0 {
				order = append(order, page.Language)
			}
			votes[page.Language]++
		}
		for _, e := range page.Engines {
			if !seen[e] {
				seen[e] = true
				result.Engines = append(result.Engines, e)
			}
		}
	}
	for _, lang := range order {
		if votes[lang] > votes[result.Language] {
			result.Language = lang
		}
	}
	return result
}

func pageRecords(jobID string, doc *pipeline.DocumentResult) ([]storage.PageRecord, error) {
	records := make([]storage.PageRecord, 0, len(doc.Pages))
	for _, page := range doc.Pages {
		if page == nil {
			continue
		}
		items, err := json.Marshal(page.SpecialItems)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal special items of page %d: %w", page.PageNum, err)
		}
		var entities json.RawMessage
		if page.Entities != nil {
			if entities, err = json.Marshal(page.Entities); err != nil {
				return nil, fmt.Errorf("failed to marshal entities of page %d: %w", page.PageNum, err)
			}
		}
		records = append(records, storage.PageRecord{
			JobID:            jobID,
			PageNum:          page.PageNum,
			Text:             page.Text,
			Language:         page.Language,
			Confidence:       page.Confidence,
			DocumentType:     page.DocumentType,
			Engines:          page.Engines,
			SpecialItems:     items,
			Entities:         entities,
			Cached:           page.Cached,
			ProcessingTimeMs: page.ProcessingTimeMs,
		})
	}
	return records, nil
}

// mergePages merges two ascending page lists
func mergePages(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		default:
			out = append(out, b[j])
			j++
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func nonNil(pages []int) []int {
	if pages == nil {
		return []int{}
	}
	return pages
}
