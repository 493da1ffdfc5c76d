package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raspverry/ai-ocr/internal/config"
	"github.com/raspverry/ai-ocr/internal/engine"
	"github.com/raspverry/ai-ocr/internal/ensemble"
	"github.com/raspverry/ai-ocr/internal/errors"
	"github.com/raspverry/ai-ocr/internal/imaging"
	"github.com/raspverry/ai-ocr/internal/logging"
	"github.com/raspverry/ai-ocr/internal/pipeline"
	"github.com/raspverry/ai-ocr/internal/preprocess"
	"github.com/raspverry/ai-ocr/internal/storage"
)

type memoryStore struct {
	mu      sync.Mutex
	updates []storage.JobUpdate
	pages   map[string][]storage.PageRecord
	failOn  string
}

func (m *memoryStore) UpdateJobStatus(_ context.Context, update *storage.JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == update.Status {
		return errors.NewStorageFailedError(update.JobID, fmt.Errorf("database down"))
	}
	m.updates = append(m.updates, *update)
	return nil
}

func (m *memoryStore) SavePageResults(_ context.Context, jobID string, pages []storage.PageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pages == nil {
		m.pages = make(map[string][]storage.PageRecord)
	}
	m.pages[jobID] = pages
	return nil
}

type mapFetcher map[string][]byte

func (f mapFetcher) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	data, ok := f[rawURL]
	if !ok {
		return nil, errors.NewStorageFailedError("", fmt.Errorf("not found: %s", rawURL))
	}
	return data, nil
}

func newPages(engines ...engine.Engine) *pipeline.Processor {
	cfg := config.Default()
	coordinator := ensemble.NewCoordinator(engines, ensemble.NewMemoryCache(), ensemble.OptionsFromConfig(cfg), logging.NewNop())
	return pipeline.NewProcessor(cfg, coordinator).
		WithPreprocess(preprocess.NewPipeline(cfg.Params, logging.NewNop()).WithMinShortSide(1))
}

func pagePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	data, err := imaging.EncodePNG(imaging.NewWhiteNRGBA(w, h))
	require.NoError(t, err)
	return data
}

func TestProcessJobPersistsPages(t *testing.T) {
	store := &memoryStore{}
	proc, err := NewDocumentProcessor(newPages(engine.NewStatic("static", "Total ¥1500", "jpn", 0.9)), store, nil)
	require.NoError(t, err)

	req := &ProcessRequest{
		JobID:    "6f1c2b1e-8a4d-4a53-9a4f-0c1f6b9d2e11",
		UserID:   "u1",
		Filename: "receipt.png",
		MimeType: "image/png",
		Language: "ja",
		Pages:    [][]byte{pagePNG(t, 40, 60), []byte("garbage"), pagePNG(t, 50, 60)},
	}
	res, err := proc.ProcessJob(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 3, res.PageCount)
	assert.Equal(t, []int{2}, res.FailedPages)
	assert.Equal(t, "jpn", res.Language)
	assert.Equal(t, []string{"static"}, res.Engines)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
	assert.Equal(t, "Total ¥1,500\n\nTotal ¥1,500", res.Text)

	records := store.pages[req.JobID]
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].PageNum)
	assert.Equal(t, 3, records[1].PageNum)
	assert.Equal(t, "Total ¥1,500", records[0].Text)

	var items map[string]interface{}
	require.NoError(t, json.Unmarshal(records[0].SpecialItems, &items))
	assert.Contains(t, items, "regions")
	var entities map[string][]string
	require.NoError(t, json.Unmarshal(records[0].Entities, &entities))
	assert.Equal(t, []string{"¥1,500"}, entities["amounts"])

	require.Len(t, store.updates, 2)
	assert.Equal(t, StatusProcessing, store.updates[0].Status)
	assert.Equal(t, "receipt.png", store.updates[0].Filename)
	done := store.updates[1]
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 3, done.PageCount)
	assert.Equal(t, []int{2}, done.FailedPages)
}

func TestProcessJobFromURL(t *testing.T) {
	fetcher := mapFetcher{"s3://scans/a.png": pagePNG(t, 40, 40)}
	proc, err := NewDocumentProcessor(newPages(engine.NewStatic("static", "hello", "eng", 0.95)), nil, fetcher)
	require.NoError(t, err)

	res, err := proc.ProcessJob(context.Background(), &ProcessRequest{JobID: "j1", FileURL: "s3://scans/a.png", MimeType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Text)
	assert.Equal(t, 1, res.PageCount)
	assert.Empty(t, res.FailedPages)

	_, err = proc.ProcessJob(context.Background(), &ProcessRequest{JobID: "j2", FileURL: "s3://scans/missing.png"})
	assert.True(t, errors.IsCode(err, errors.ErrorStorageFailed))

	_, err = proc.ProcessJob(context.Background(), &ProcessRequest{JobID: "j3", FileURL: "s3://scans/a.pdf", MimeType: "application/pdf"})
	assert.True(t, errors.IsCode(err, errors.ErrorUnsupportedFormat))
}

func TestProcessJobFailures(t *testing.T) {
	proc, err := NewDocumentProcessor(newPages(engine.NewFailing("a", fmt.Errorf("down"))), &memoryStore{}, nil)
	require.NoError(t, err)

	_, err = proc.ProcessJob(context.Background(), &ProcessRequest{JobID: "j1", Pages: [][]byte{pagePNG(t, 30, 30)}})
	assert.True(t, errors.IsCode(err, errors.ErrorAllEnginesFailed))
	var pe *errors.ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "j1", pe.JobID)

	_, err = proc.ProcessJob(context.Background(), &ProcessRequest{JobID: "j2", Pages: [][]byte{[]byte("x")}})
	assert.True(t, errors.IsCode(err, errors.ErrorImageDecode))

	_, err = proc.ProcessJob(context.Background(), &ProcessRequest{JobID: "j3"})
	assert.True(t, errors.IsCode(err, errors.ErrorOCRFailed))

	_, err = proc.ProcessJob(context.Background(), &ProcessRequest{})
	assert.Error(t, err)
}

func TestProcessJobStoreFailure(t *testing.T) {
	store := &memoryStore{failOn: StatusCompleted}
	proc, err := NewDocumentProcessor(newPages(engine.NewStatic("static", "hello", "eng", 0.95)), store, nil)
	require.NoError(t, err)

	_, err = proc.ProcessJob(context.Background(), &ProcessRequest{JobID: "j1", Pages: [][]byte{pagePNG(t, 30, 30)}})
	assert.True(t, errors.IsCode(err, errors.ErrorStorageFailed))
}

func TestSummarizeLanguageVote(t *testing.T) {
	doc := &pipeline.DocumentResult{Pages: []*pipeline.PageResult{
		{PageNum: 1, Text: "a", Language: "eng", Engines: []string{"tesseract"}},
		{PageNum: 2, Text: "b", Language: "kor", Engines: []string{"vision_llm", "tesseract"}},
		{PageNum: 3, Text: "c", Language: "kor", Engines: []string{"vision_llm"}},
		{PageNum: 4, Text: "", Language: "jpn"},
	}}
	res := summarize("j", doc)
	assert.Equal(t, "kor", res.Language)
	assert.Equal(t, []string{"tesseract", "vision_llm"}, res.Engines)
}

func TestMergePages(t *testing.T) {
	assert.Equal(t, []int{1, 2, 4, 5}, mergePages([]int{2, 5}, []int{1, 4}))
	assert.Nil(t, mergePages(nil, nil))
	assert.Equal(t, []int{3}, mergePages(nil, []int{3}))
}
