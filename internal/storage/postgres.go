/**
 * PostgreSQL Client for the OCR worker
 *
 * Persists job status and one row per recognized page.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/raspverry/ai-ocr/internal/errors"
)

// Schema creates the tables the worker writes to
const Schema = `
CREATE SCHEMA IF NOT EXISTS ocr;

CREATE TABLE IF NOT EXISTS ocr.jobs (
	id                 UUID PRIMARY KEY,
	user_id            TEXT NOT NULL DEFAULT 'anonymous',
	filename           TEXT NOT NULL DEFAULT 'unknown',
	mime_type          TEXT,
	status             TEXT NOT NULL,
	language           TEXT,
	confidence         NUMERIC(5,4),
	page_count         INTEGER,
	failed_pages       INTEGER[],
	processing_time_ms BIGINT,
	error_code         TEXT,
	error_message      TEXT,
	metadata           JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ocr.page_results (
	id                 UUID PRIMARY KEY,
	job_id             UUID NOT NULL REFERENCES ocr.jobs(id) ON DELETE CASCADE,
	page_num           INTEGER NOT NULL,
	text               TEXT NOT NULL,
	language           TEXT,
	confidence         NUMERIC(5,4) NOT NULL,
	document_type      TEXT,
	engines            TEXT[] NOT NULL DEFAULT '{}',
	special_items      JSONB,
	entities           JSONB,
	cached             BOOLEAN NOT NULL DEFAULT FALSE,
	processing_time_ms BIGINT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (job_id, page_num)
);
`

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update. Zero values leave the stored
// column untouched.
type JobUpdate struct {
	JobID            string
	UserID           string
	Filename         string
	MimeType         string
	Status           string
	Language         string
	Confidence       float64
	PageCount        int
	FailedPages      []int
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// JobRecord is a stored job
type JobRecord struct {
	ID               string
	UserID           string
	Filename         string
	MimeType         string
	Status           string
	Language         string
	Confidence       float64
	PageCount        int
	FailedPages      []int
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PageRecord is one stored page result. SpecialItems and Entities hold JSON.
type PageRecord struct {
	JobID            string
	PageNum          int
	Text             string
	Language         string
	Confidence       float64
	DocumentType     string
	Engines          []string
	SpecialItems     json.RawMessage
	Entities         json.RawMessage
	Cached           bool
	ProcessingTimeMs int64
}

// sanitizeConfidence clamps confidence to [0, 1] and rounds it to the 4
// decimals of the NUMERIC(5,4) columns (0.9632000000000001 → 0.9632).
func sanitizeConfidence(confidence float64) float64 {
	if math.IsNaN(confidence) || confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return math.Round(confidence*10000) / 10000
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the worker tables when they are missing
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func intsToInt64(in []int) []int64 {
	if in == nil {
		return nil
	}
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}

// UpdateJobStatus upserts the job row. The worker may see a job before the
// producer's row exists, so the first update creates it.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}
	if _, err := uuid.Parse(update.JobID); err != nil {
		return fmt.Errorf("job ID %q is not a UUID: %w", update.JobID, err)
	}

	confidence := sanitizeConfidence(update.Confidence)

	metadata := update.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var failed interface{}
	if update.FailedPages != nil {
		failed = pq.Array(intsToInt64(update.FailedPages))
	}

	query := `
		INSERT INTO ocr.jobs (
			id, user_id, filename, mime_type, status, language,
			confidence, page_count, failed_pages, processing_time_ms,
			error_code, error_message, metadata, created_at, updated_at
		) VALUES (
			$1::uuid, COALESCE(NULLIF($2, ''), 'anonymous'), COALESCE(NULLIF($3, ''), 'unknown'),
			NULLIF($4, ''), $5, NULLIF($6, ''),
			NULLIF($7::NUMERIC(5,4), 0), NULLIF($8, 0), $9, NULLIF($10, 0),
			NULLIF($11, ''), NULLIF($12, ''), $13::jsonb, NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			user_id = CASE WHEN $2 = '' THEN ocr.jobs.user_id ELSE EXCLUDED.user_id END,
			filename = CASE WHEN $3 = '' THEN ocr.jobs.filename ELSE EXCLUDED.filename END,
			mime_type = COALESCE(EXCLUDED.mime_type, ocr.jobs.mime_type),
			language = COALESCE(EXCLUDED.language, ocr.jobs.language),
			confidence = COALESCE(EXCLUDED.confidence, ocr.jobs.confidence),
			page_count = COALESCE(EXCLUDED.page_count, ocr.jobs.page_count),
			failed_pages = COALESCE(EXCLUDED.failed_pages, ocr.jobs.failed_pages),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, ocr.jobs.processing_time_ms),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = ocr.jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,            // $1
		update.UserID,           // $2
		update.Filename,         // $3
		update.MimeType,         // $4
		update.Status,           // $5
		update.Language,         // $6
		confidence,              // $7
		update.PageCount,        // $8
		failed,                  // $9
		update.ProcessingTimeMs, // $10
		update.ErrorCode,        // $11
		update.ErrorMessage,     // $12
		metadataJSON,            // $13
	).Scan(&returnedID)
	if err != nil {
		return errors.NewStorageFailedError(update.JobID,
			fmt.Errorf("failed to update job status (status=%s, confidence=%.4f): %w", update.Status, confidence, err))
	}
	return nil
}

// SavePageResults replaces the stored pages of a job in one transaction, so
// a retried job never leaves rows from an earlier attempt behind.
func (p *PostgresClient) SavePageResults(ctx context.Context, jobID string, pages []PageRecord) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageFailedError(jobID, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM ocr.page_results WHERE job_id = $1::uuid`, jobID); err != nil {
		return errors.NewStorageFailedError(jobID, fmt.Errorf("failed to clear page results: %w", err))
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ocr.page_results (
			id, job_id, page_num, text, language, confidence, document_type,
			engines, special_items, entities, cached, processing_time_ms, created_at
		) VALUES ($1, $2::uuid, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8, $9::jsonb, $10::jsonb, $11, $12, NOW())
	`)
	if err != nil {
		return errors.NewStorageFailedError(jobID, fmt.Errorf("failed to prepare page insert: %w", err))
	}
	defer stmt.Close()

	for _, page := range pages {
		engines := page.Engines
		if engines == nil {
			engines = []string{}
		}
		_, err = stmt.ExecContext(ctx,
			uuid.NewString(),
			jobID,
			page.PageNum,
			page.Text,
			page.Language,
			sanitizeConfidence(page.Confidence),
			page.DocumentType,
			pq.Array(engines),
			nullJSON(page.SpecialItems),
			nullJSON(page.Entities),
			page.Cached,
			page.ProcessingTimeMs,
		)
		if err != nil {
			return errors.NewStorageFailedError(jobID, fmt.Errorf("failed to insert page %d: %w", page.PageNum, err))
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.NewStorageFailedError(jobID, fmt.Errorf("failed to commit page results: %w", err))
	}
	return nil
}

func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, user_id, filename, mime_type, status, language,
			confidence, page_count, failed_pages, processing_time_ms,
			error_code, error_message, metadata, created_at, updated_at
		FROM ocr.jobs
		WHERE id = $1::uuid
	`

	var (
		rec                         JobRecord
		mimeType, language          sql.NullString
		errorCode, errorMessage     sql.NullString
		confidence                  sql.NullFloat64
		pageCount, processingTimeMs sql.NullInt64
		failedPages                 pq.Int64Array
		metadataJSON                []byte
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&rec.ID, &rec.UserID, &rec.Filename, &mimeType, &rec.Status, &language,
		&confidence, &pageCount, &failedPages, &processingTimeMs,
		&errorCode, &errorMessage, &metadataJSON, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	rec.MimeType = mimeType.String
	rec.Language = language.String
	rec.Confidence = confidence.Float64
	rec.PageCount = int(pageCount.Int64)
	rec.ProcessingTimeMs = processingTimeMs.Int64
	rec.ErrorCode = errorCode.String
	rec.ErrorMessage = errorMessage.String
	for _, v := range failedPages {
		rec.FailedPages = append(rec.FailedPages, int(v))
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &rec, nil
}

// GetPageResults returns the stored pages of a job in page order
func (p *PostgresClient) GetPageResults(ctx context.Context, jobID string) ([]PageRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT page_num, text, language, confidence, document_type, engines,
			special_items, entities, cached, processing_time_ms
		FROM ocr.page_results
		WHERE job_id = $1::uuid
		ORDER BY page_num
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query page results: %w", err)
	}
	defer rows.Close()

	var out []PageRecord
	for rows.Next() {
		var (
			rec                    PageRecord
			language, docType      sql.NullString
			engines                pq.StringArray
			specialItems, entities []byte
			processingTimeMs       sql.NullInt64
		)
		if err := rows.Scan(&rec.PageNum, &rec.Text, &language, &rec.Confidence, &docType, &engines,
			&specialItems, &entities, &rec.Cached, &processingTimeMs); err != nil {
			return nil, fmt.Errorf("failed to scan page result: %w", err)
		}
		rec.JobID = jobID
		rec.Language = language.String
		rec.DocumentType = docType.String
		rec.Engines = []string(engines)
		rec.SpecialItems = specialItems
		rec.Entities = entities
		rec.ProcessingTimeMs = processingTimeMs.Int64
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
