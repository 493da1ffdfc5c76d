package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/raspverry/ai-ocr/internal/processor"
)

// TaskProcessDocument is the asynq task type of OCR jobs
const TaskProcessDocument = "ocr:process-document"

// RedisJobData represents a job envelope on the Redis list queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// JobPayload contains the OCR job itself. Pages are encoded images; on the
// wire each is a base64 string or a Node.js Buffer object.
type JobPayload struct {
	JobID        string                 `json:"jobId"`
	UserID       string                 `json:"userId"`
	Filename     string                 `json:"filename"`
	MimeType     string                 `json:"mimeType,omitempty"`
	Language     string                 `json:"language,omitempty"`
	DocumentType string                 `json:"documentType,omitempty"`
	FileURL      string                 `json:"fileUrl,omitempty"`
	Pages        [][]byte               `json:"-"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// MarshalJSON writes pages as base64 strings
func (p JobPayload) MarshalJSON() ([]byte, error) {
	type Alias JobPayload
	pages := make([]string, len(p.Pages))
	for i, page := range p.Pages {
		pages[i] = base64.StdEncoding.EncodeToString(page)
	}
	return json.Marshal(&struct {
		Pages []string `json:"pages,omitempty"`
		Alias
	}{
		Pages: pages,
		Alias: Alias(p),
	})
}

// UnmarshalJSON accepts pages as base64 strings or Buffer objects
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type Alias JobPayload
	aux := &struct {
		Pages []interface{} `json:"pages,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	p.Pages = nil
	for i, raw := range aux.Pages {
		page, err := decodePage(raw)
		if err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
		p.Pages = append(p.Pages, page)
	}
	return nil
}

func decodePage(raw interface{}) ([]byte, error) {
	switch v := raw.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 page: %w", err)
		}
		return decoded, nil

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return nil, fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("Buffer object missing 'data' array")
		}
		out := make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return nil, fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			out[i] = byte(byteVal)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("page must be either base64 string or Buffer object, got %T", v)
	}
}

// Request converts the payload for the job processor
func (p *JobPayload) Request() *processor.ProcessRequest {
	return &processor.ProcessRequest{
		JobID:        p.JobID,
		UserID:       p.UserID,
		Filename:     p.Filename,
		MimeType:     p.MimeType,
		Language:     p.Language,
		DocumentType: p.DocumentType,
		Pages:        p.Pages,
		FileURL:      p.FileURL,
		Metadata:     p.Metadata,
	}
}
