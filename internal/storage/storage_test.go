package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raspverry/ai-ocr/internal/errors"
)

func TestSanitizeConfidence(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.9632000000000001, 0.9632},
		{0.12345, 0.1235},
		{-0.2, 0},
		{1.7, 1},
		{0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeConfidence(tt.in))
		})
	}
}

type fakeS3 struct {
	objects map[string][]byte
	calls   []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := *in.Bucket + "/" + *in.Key
	f.calls = append(f.calls, key)
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", key)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestObjectSourceS3(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"scans/2024/page-1.png": []byte("png")}}
	src := NewObjectSource(nil).WithS3(fake)

	data, err := src.Fetch(context.Background(), "s3://scans/2024/page-1.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
	assert.Equal(t, []string{"scans/2024/page-1.png"}, fake.calls)

	_, err = src.Fetch(context.Background(), "s3://scans/missing.png")
	assert.True(t, errors.IsCode(err, errors.ErrorStorageFailed))

	_, err = src.Fetch(context.Background(), "s3://scans")
	assert.Error(t, err)

	_, err = src.WithMaxFileSize(2).Fetch(context.Background(), "s3://scans/2024/page-1.png")
	assert.Error(t, err)

	_, err = NewObjectSource(nil).Fetch(context.Background(), "s3://scans/2024/page-1.png")
	assert.Error(t, err, "s3 is not configured")
}

func TestObjectSourceHTTP(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/flaky":
			if hits.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("image bytes"))
		case "/big":
			w.Write(bytes.Repeat([]byte("x"), 64))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src := NewObjectSource(srv.Client())
	src.backoff = time.Millisecond

	data, err := src.Fetch(context.Background(), srv.URL+"/flaky")
	require.NoError(t, err)
	assert.Equal(t, "image bytes", string(data))
	assert.Equal(t, int32(2), hits.Load(), "a 503 is retried")

	_, err = src.Fetch(context.Background(), srv.URL+"/missing")
	assert.True(t, errors.IsCode(err, errors.ErrorStorageFailed))

	_, err = src.WithMaxFileSize(16).Fetch(context.Background(), srv.URL+"/big")
	assert.Error(t, err)

	_, err = src.Fetch(context.Background(), "ftp://example.com/a.png")
	assert.True(t, errors.IsCode(err, errors.ErrorStorageFailed))
}

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	client, err := NewPostgresClient(dsn)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.EnsureSchema(ctx))

	jobID := uuid.NewString()
	require.NoError(t, client.UpdateJobStatus(ctx, &JobUpdate{
		JobID: jobID, UserID: "u1", Filename: "scan.png", Status: "processing",
		Metadata: map[string]interface{}{"source": "test"},
	}))

	items, _ := json.Marshal(map[string]interface{}{"hasStamps": true, "regions": []interface{}{}})
	pages := []PageRecord{
		{PageNum: 1, Text: "株式会社テスト", Language: "jpn", Confidence: 0.9632000000000001, Engines: []string{"tesseract"}, SpecialItems: items},
		{PageNum: 2, Text: "", Language: "jpn"},
	}
	require.NoError(t, client.SavePageResults(ctx, jobID, pages))
	// saving again replaces the rows
	require.NoError(t, client.SavePageResults(ctx, jobID, pages))

	require.NoError(t, client.UpdateJobStatus(ctx, &JobUpdate{
		JobID: jobID, Status: "completed", Language: "jpn", Confidence: 0.9632000000000001,
		PageCount: 2, FailedPages: []int{2}, ProcessingTimeMs: 1200,
	}))

	job, err := client.GetJobByID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "completed", job.Status)
	assert.Equal(t, "u1", job.UserID, "later updates keep earlier fields")
	assert.Equal(t, "scan.png", job.Filename)
	assert.Equal(t, 0.9632, job.Confidence)
	assert.Equal(t, []int{2}, job.FailedPages)
	assert.Equal(t, "test", job.Metadata["source"])

	stored, err := client.GetPageResults(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "株式会社テスト", stored[0].Text)
	assert.Equal(t, 0.9632, stored[0].Confidence)
	assert.Equal(t, []string{"tesseract"}, stored[0].Engines)
	assert.JSONEq(t, string(items), string(stored[0].SpecialItems))
	assert.Empty(t, stored[1].Engines)
}
