package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raspverry/ai-ocr/internal/config"
	"github.com/raspverry/ai-ocr/internal/engine"
	"github.com/raspverry/ai-ocr/internal/ensemble"
	"github.com/raspverry/ai-ocr/internal/errors"
	"github.com/raspverry/ai-ocr/internal/imaging"
	"github.com/raspverry/ai-ocr/internal/logging"
	"github.com/raspverry/ai-ocr/internal/preprocess"
	"github.com/raspverry/ai-ocr/internal/regions"
)

var stampRed = color.NRGBA{R: 220, G: 20, B: 20, A: 255}

func newProcessor(engines ...engine.Engine) *Processor {
	cfg := config.Default()
	coordinator := ensemble.NewCoordinator(engines, ensemble.NewMemoryCache(), ensemble.OptionsFromConfig(cfg), logging.NewNop())
	p := NewProcessor(cfg, coordinator)
	return p.WithPreprocess(preprocess.NewPipeline(cfg.Params, logging.NewNop()).WithMinShortSide(1))
}

// widthRecognizer reports the width of the page it was given and fails on
// the widths listed in fail
type widthRecognizer struct {
	fail map[int]bool
}

func (w widthRecognizer) Recognize(_ context.Context, data []byte, _ string) (*ensemble.Recognition, error) {
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, err
	}
	width := img.Bounds().Dx()
	if w.fail[width] {
		return &ensemble.Recognition{Result: &engine.Result{Language: "fra", Engine: ensemble.Name}},
			errors.NewAllEnginesFailedError(map[string]string{"fake": "down"})
	}
	res := &engine.Result{Text: fmt.Sprintf("page width %d", width), Language: "fra", Confidence: 0.8, Engine: "fake"}
	return &ensemble.Recognition{
		Result:   res,
		Outcomes: []ensemble.Outcome{{Engine: "fake", Result: res}},
	}, nil
}

func newWidthProcessor(fail map[int]bool) *Processor {
	cfg := config.Default()
	cfg.PageWorkers = 3
	p := NewProcessor(cfg, widthRecognizer{fail: fail})
	return p.WithPreprocess(preprocess.NewPipeline(cfg.Params, logging.NewNop()).WithMinShortSide(1))
}

func blankPage(w, h int) PageInput {
	return PageInput{Image: imaging.NewWhiteNRGBA(w, h), DPI: 300}
}

func TestProcessPageRotatedStampedPage(t *testing.T) {
	page := imaging.NewWhiteNRGBA(150, 150)
	imaging.FillRect(page, image.Rect(15, 18, 135, 22), color.Black)
	imaging.FillRect(page, image.Rect(15, 38, 135, 42), color.Black)
	imaging.DrawRing(page, 75, 100, 34, 8, stampRed)
	rotated := imaging.RotateClockwise(page, 180)

	p := newProcessor(engine.NewStatic("static", "ABC", "eng", 0.9))
	res, err := p.ProcessPage(context.Background(), PageInput{Image: rotated, DPI: 300, PageNum: 1}, Options{
		Language:      "eng",
		DetectRegions: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Geometry.Orientation)
	assert.Equal(t, "ABC", res.Text)
	assert.Equal(t, "eng", res.Language)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
	assert.Equal(t, []string{"static"}, res.Engines)
	assert.Equal(t, 1, res.PageNum)

	require.True(t, res.SpecialItems.HasStamps)
	stamps := res.SpecialItems.OfType(regions.TypeStamp)
	require.NotEmpty(t, stamps)
	assert.Greater(t, stamps[0].Confidence, 0.5)
}

func TestProcessPageAllEnginesFailed(t *testing.T) {
	p := newProcessor(engine.NewFailing("a", fmt.Errorf("down")), engine.NewFailing("b", fmt.Errorf("down")))
	res, err := p.ProcessPage(context.Background(), blankPage(80, 80), Options{Language: "jpn", SkipGeometry: true})

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrorAllEnginesFailed))
	require.NotNil(t, res)
	assert.Empty(t, res.Text)
	assert.Zero(t, res.Confidence)
	assert.Equal(t, "jpn", res.Language)
	assert.Empty(t, res.Engines)
	assert.NotNil(t, res.SpecialItems)
}

func TestProcessPageSecondRunIsCached(t *testing.T) {
	p := newProcessor(engine.NewStatic("static", "cached", "eng", 0.9))
	opts := Options{Language: "eng", SkipGeometry: true}

	first, err := p.ProcessPage(context.Background(), blankPage(60, 60), opts)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := p.ProcessPage(context.Background(), blankPage(60, 60), opts)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)
}

func TestProcessPageNormalizesAndExtracts(t *testing.T) {
	text := "invoice from Acme Ud. total $1500 due 1/5/2024. contact billing@Acme.COM"
	p := newProcessor(engine.NewStatic("static", text, "eng", 0.95))

	res, err := p.ProcessPage(context.Background(), blankPage(60, 60), Options{
		Language:        "en",
		SkipGeometry:    true,
		ExtractEntities: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Invoice from Acme Ltd. total $1,500 due 01/05/2024. Contact billing@acme.com", res.Text)
	require.NotNil(t, res.Entities)
	assert.Equal(t, []string{"$1,500"}, res.Entities.Amounts)
	assert.Equal(t, []string{"billing@acme.com"}, res.Entities.Emails)
	assert.Equal(t, []string{"01/05/2024"}, res.Entities.Dates)
}

func TestProcessPageDocumentType(t *testing.T) {
	p := newWidthProcessor(nil)

	res, err := p.ProcessPage(context.Background(), blankPage(60, 150), Options{SkipGeometry: true, InferDocumentType: true})
	require.NoError(t, err)
	assert.Equal(t, preprocess.DocumentReceipt, res.DocumentType)

	res, err = p.ProcessPage(context.Background(), blankPage(60, 150), Options{
		SkipGeometry:      true,
		InferDocumentType: true,
		DocumentType:      preprocess.DocumentInvoice,
	})
	require.NoError(t, err)
	assert.Equal(t, preprocess.DocumentInvoice, res.DocumentType, "a given type is kept")

	res, err = p.ProcessPage(context.Background(), blankPage(60, 150), Options{SkipGeometry: true})
	require.NoError(t, err)
	assert.Empty(t, res.DocumentType)
}

func TestProcessPageErrors(t *testing.T) {
	p := newWidthProcessor(nil)

	_, err := p.ProcessPage(context.Background(), PageInput{PageNum: 3}, Options{})
	assert.True(t, errors.IsCode(err, errors.ErrorOCRFailed))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := p.ProcessPage(ctx, blankPage(40, 40), DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestDecodePage(t *testing.T) {
	data, err := imaging.EncodePNG(imaging.NewWhiteNRGBA(30, 20))
	require.NoError(t, err)

	in, err := DecodePage(data, 2, 300)
	require.NoError(t, err)
	assert.Equal(t, 2, in.PageNum)
	assert.Equal(t, image.Rect(0, 0, 30, 20), in.Image.Bounds())

	_, err = DecodePage([]byte("not an image"), 4, 300)
	assert.True(t, errors.IsCode(err, errors.ErrorImageDecode))
}

func TestProcessDocumentKeepsPageOrder(t *testing.T) {
	p := newWidthProcessor(nil)
	var pages []PageInput
	for i := 0; i < 7; i++ {
		in := blankPage(40+10*i, 40)
		in.PageNum = i + 1
		pages = append(pages, in)
	}

	doc, err := p.ProcessDocument(context.Background(), pages, Options{SkipGeometry: true})
	require.NoError(t, err)
	require.Len(t, doc.Pages, 7)
	for i, res := range doc.Pages {
		assert.Equal(t, i+1, res.PageNum)
		assert.Equal(t, fmt.Sprintf("page width %d", 40+10*i), res.Text)
	}
	assert.Empty(t, doc.Failed)
	assert.InDelta(t, 0.8, doc.Confidence(), 1e-9)
	assert.Contains(t, doc.Text(), "page width 40\n\npage width 50")
}

func TestProcessDocumentPartialFailure(t *testing.T) {
	p := newWidthProcessor(map[int]bool{50: true})
	pages := []PageInput{blankPage(40, 40), blankPage(50, 40), blankPage(60, 40)}
	for i := range pages {
		pages[i].PageNum = i + 1
	}

	doc, err := p.ProcessDocument(context.Background(), pages, Options{SkipGeometry: true})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, doc.Failed)
	assert.Empty(t, doc.Pages[1].Text)
	assert.Equal(t, "page width 60", doc.Pages[2].Text)

	p = newWidthProcessor(map[int]bool{40: true, 50: true})
	doc, err = p.ProcessDocument(context.Background(), pages[:2], Options{SkipGeometry: true})
	assert.True(t, errors.IsCode(err, errors.ErrorAllEnginesFailed))
	require.NotNil(t, doc)
	assert.Equal(t, []int{1, 2}, doc.Failed)
}

func TestProcessDocumentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc, err := newWidthProcessor(nil).ProcessDocument(ctx, []PageInput{blankPage(40, 40)}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, doc)

	doc, err = newWidthProcessor(nil).ProcessDocument(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, doc.Pages)
}
