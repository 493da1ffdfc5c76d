/**
 * Page sources for the OCR worker
 *
 * Jobs may reference their file instead of carrying it. ObjectSource fetches
 * http(s):// URLs with retry and backoff, and s3://bucket/key URLs through
 * the AWS SDK (any S3-compatible endpoint works with S3_ENDPOINT).
 */

package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/raspverry/ai-ocr/internal/config"
	"github.com/raspverry/ai-ocr/internal/errors"
	"github.com/raspverry/ai-ocr/internal/logging"
)

const (
	defaultMaxFileSize = 100 * 1024 * 1024
	downloadRetries    = 3
	initialBackoff     = 500 * time.Millisecond
	maxBackoff         = 8 * time.Second
)

// s3API is the part of the S3 client ObjectSource uses
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ObjectSource downloads job files
type ObjectSource struct {
	http        *http.Client
	s3          s3API
	maxFileSize int64
	backoff     time.Duration
	logger      *logging.Logger
}

// NewObjectSource creates a source for http(s) URLs only
func NewObjectSource(httpClient *http.Client) *ObjectSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &ObjectSource{
		http:        httpClient,
		maxFileSize: defaultMaxFileSize,
		backoff:     initialBackoff,
		logger:      logging.NewLogger("ObjectSource"),
	}
}

// NewObjectSourceFromConfig adds an S3 client built from the S3_* settings
func NewObjectSourceFromConfig(ctx context.Context, cfg *config.Config) (*ObjectSource, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.S3Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		})
	}

	src := NewObjectSource(nil)
	src.s3 = s3.NewFromConfig(awsCfg, s3Opts...)
	return src, nil
}

// WithS3 returns a copy reading s3:// URLs through client
func (o *ObjectSource) WithS3(client s3API) *ObjectSource {
	cp := *o
	cp.s3 = client
	return &cp
}

// WithMaxFileSize returns a copy refusing files larger than n bytes
func (o *ObjectSource) WithMaxFileSize(n int64) *ObjectSource {
	cp := *o
	cp.maxFileSize = n
	return &cp
}

// Fetch downloads the file behind rawURL
func (o *ObjectSource) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.NewStorageFailedError("", fmt.Errorf("invalid file URL %q: %w", rawURL, err))
	}
	switch u.Scheme {
	case "s3":
		return o.fetchS3(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case "http", "https":
		return o.fetchHTTP(ctx, rawURL)
	default:
		return nil, errors.NewStorageFailedError("", fmt.Errorf("unsupported file URL scheme %q", u.Scheme))
	}
}

func (o *ObjectSource) fetchS3(ctx context.Context, bucket, key string) ([]byte, error) {
	if o.s3 == nil {
		return nil, errors.NewStorageFailedError("", fmt.Errorf("s3 is not configured"))
	}
	if bucket == "" || key == "" {
		return nil, errors.NewStorageFailedError("", fmt.Errorf("s3 URL needs a bucket and a key"))
	}
	out, err := o.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.NewStorageFailedError("", fmt.Errorf("s3 download: %w", err))
	}
	defer out.Body.Close()
	data, err := o.readLimited(out.Body)
	if err != nil {
		return nil, errors.NewStorageFailedError("", fmt.Errorf("s3 download read: %w", err))
	}
	return data, nil
}

func (o *ObjectSource) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	backoff := o.backoff
	for attempt := 1; attempt <= downloadRetries; attempt++ {
		data, retry, err := o.downloadOnce(ctx, rawURL)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retry || attempt == downloadRetries {
			break
		}
		o.logger.Warn("Download attempt failed", "url", rawURL, "attempt", attempt, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff = min(backoff*2, maxBackoff)
	}
	return nil, errors.NewStorageFailedError("", fmt.Errorf("failed to download %s: %w", rawURL, lastErr))
}

// downloadOnce reports whether a failed attempt is worth retrying
func (o *ObjectSource) downloadOnce(ctx context.Context, rawURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retry, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if o.maxFileSize > 0 && resp.ContentLength > o.maxFileSize {
		return nil, false, fmt.Errorf("file size exceeds maximum: %d > %d bytes", resp.ContentLength, o.maxFileSize)
	}
	data, err := o.readLimited(resp.Body)
	if err != nil {
		return nil, true, err
	}
	return data, false, nil
}

func (o *ObjectSource) readLimited(r io.Reader) ([]byte, error) {
	if o.maxFileSize <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, o.maxFileSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > o.maxFileSize {
		return nil, fmt.Errorf("file size exceeds maximum of %d bytes", o.maxFileSize)
	}
	return data, nil
}
