/**
 * Azure Read Client - asynchronous OCR over REST
 *
 * Submits a page to the Computer Vision Read API and polls the operation
 * returned in the Operation-Location header until it completes.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raspverry/ai-ocr/internal/errors"
	"github.com/raspverry/ai-ocr/internal/logging"
)

const (
	azureReadPath         = "/vision/v3.2/read/analyze"
	defaultAzurePollEvery = 500 * time.Millisecond
)

// AzureReadClient handles communication with the Azure Read API
type AzureReadClient struct {
	endpoint     string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *logging.Logger
}

// ReadOperation is the body returned when polling an analyze operation
type ReadOperation struct {
	Status        string         `json:"status"` // "notStarted", "running", "succeeded", "failed"
	AnalyzeResult *AnalyzeResult `json:"analyzeResult,omitempty"`
}

// AnalyzeResult contains one entry per page
type AnalyzeResult struct {
	ReadResults []ReadResult `json:"readResults"`
}

// ReadResult is the text of one page
type ReadResult struct {
	Page     int        `json:"page"`
	Language string     `json:"language,omitempty"`
	Width    float64    `json:"width"`
	Height   float64    `json:"height"`
	Lines    []ReadLine `json:"lines"`
}

// ReadLine is a recognized line with its words
type ReadLine struct {
	Text        string     `json:"text"`
	BoundingBox []float64  `json:"boundingBox"`
	Words       []ReadWord `json:"words"`
}

// ReadWord is a recognized word and its confidence in [0,1]
type ReadWord struct {
	Text        string    `json:"text"`
	BoundingBox []float64 `json:"boundingBox"`
	Confidence  float64   `json:"confidence"`
}

// NewAzureReadClient creates a new Azure Read client
func NewAzureReadClient(endpoint, apiKey string) *AzureReadClient {
	return &AzureReadClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		pollInterval: defaultAzurePollEvery,
		logger:       logging.NewLogger("AzureReadClient"),
	}
}

// WithPollInterval returns the client polling at d instead
func (c *AzureReadClient) WithPollInterval(d time.Duration) *AzureReadClient {
	c.pollInterval = d
	return c
}

// Analyze submits an image and waits for the read operation to finish
func (c *AzureReadClient) Analyze(ctx context.Context, image []byte, language string) (*AnalyzeResult, error) {
	location, err := c.submit(ctx, image, language)
	if err != nil {
		return nil, err
	}
	return c.WaitForResult(ctx, location)
}

func (c *AzureReadClient) submit(ctx context.Context, image []byte, language string) (string, error) {
	endpoint := c.endpoint + azureReadPath
	if language != "" {
		endpoint += "?language=" + url.QueryEscape(language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request to Azure Read failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return "", errors.NewAPICallFailedError("azure_read", resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}
	location := resp.Header.Get("Operation-Location")
	if location == "" {
		return "", fmt.Errorf("azure read response has no Operation-Location header")
	}

	c.logger.Debug("Read operation submitted", "operation", location, "imageSize", len(image))
	return location, nil
}

// GetOperation fetches the current state of a read operation
func (c *AzureReadClient) GetOperation(ctx context.Context, location string) (*ReadOperation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewAPICallFailedError("azure_read", resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}

	var op ReadOperation
	if err := json.Unmarshal(body, &op); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}
	return &op, nil
}

// WaitForResult polls the operation until it succeeds, fails or ctx ends
func (c *AzureReadClient) WaitForResult(ctx context.Context, location string) (*AnalyzeResult, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled while waiting for read operation: %w", ctx.Err())

		case <-ticker.C:
			op, err := c.GetOperation(ctx, location)
			if err != nil {
				c.logger.Warn("Failed to get read operation status", "operation", location, "error", err)
				continue
			}

			switch op.Status {
			case "succeeded":
				if op.AnalyzeResult == nil {
					return &AnalyzeResult{}, nil
				}
				return op.AnalyzeResult, nil

			case "failed":
				return nil, fmt.Errorf("read operation failed")

			case "notStarted", "running":
				continue

			default:
				c.logger.Warn("Unknown read operation status", "status", op.Status)
			}
		}
	}
}
