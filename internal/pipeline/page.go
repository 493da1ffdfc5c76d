/**
 * Page processing
 *
 * ProcessPage runs the whole chain for one page:
 *   geometry correction -> (special regions || preprocessing + ensemble)
 *   -> normalization -> entity extraction
 *
 * Geometry, preprocessing and region failures degrade the result instead of
 * failing it. Only total engine failure and cancellation are errors.
 */

package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raspverry/ai-ocr/internal/config"
	"github.com/raspverry/ai-ocr/internal/engine"
	"github.com/raspverry/ai-ocr/internal/ensemble"
	"github.com/raspverry/ai-ocr/internal/errors"
	"github.com/raspverry/ai-ocr/internal/geometry"
	"github.com/raspverry/ai-ocr/internal/imaging"
	"github.com/raspverry/ai-ocr/internal/logging"
	"github.com/raspverry/ai-ocr/internal/normalize"
	"github.com/raspverry/ai-ocr/internal/preprocess"
	"github.com/raspverry/ai-ocr/internal/regions"
)

// Recognizer turns an encoded page into an arbitrated result
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, languageHint string) (*ensemble.Recognition, error)
}

// Processor processes pages
type Processor struct {
	corrector       *geometry.Corrector
	preprocess      *preprocess.Pipeline
	detector        *regions.Detector
	recognizer      Recognizer
	normalizer      *normalize.Normalizer
	defaultLanguage string
	pageWorkers     int
	logger          *logging.Logger
}

// NewProcessor wires the page stages from cfg around a recognizer
func NewProcessor(cfg *config.Config, recognizer Recognizer) *Processor {
	workers := cfg.PageWorkers
	if workers < 1 {
		workers = 1
	}
	return &Processor{
		corrector:       geometry.NewCorrector(geometry.DefaultSkewOptions(), logging.NewLogger("Geometry")),
		preprocess:      preprocess.NewPipeline(cfg.Params, logging.NewLogger("Preprocess")),
		detector:        regions.NewDetector(regions.DefaultOptions(), logging.NewLogger("Regions")),
		recognizer:      recognizer,
		normalizer:      normalize.New(logging.NewLogger("Normalizer")),
		defaultLanguage: engine.NormalizeLanguage(cfg.DefaultLanguage),
		pageWorkers:     workers,
		logger:          logging.NewLogger("Pipeline"),
	}
}

// WithPreprocess returns a copy using another preprocessing pipeline
func (p *Processor) WithPreprocess(pp *preprocess.Pipeline) *Processor {
	cp := *p
	cp.preprocess = pp
	return &cp
}

// ProcessPage recognizes one page. When every engine fails the returned
// error is ALL_ENGINES_FAILED and the result carries empty text with zero
// confidence. A cancelled context returns no result.
func (p *Processor) ProcessPage(ctx context.Context, in PageInput, opts Options) (*PageResult, error) {
	if in.Image == nil {
		return nil, errors.NewOCRFailedError("", "input", fmt.Errorf("page %d has no image", in.PageNum))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	lang := engine.NormalizeLanguage(opts.Language)

	img := in.Image
	var est geometry.Estimate
	if !opts.SkipGeometry {
		img, est = p.corrector.Correct(img)
	}

	var (
		items   *regions.SpecialItems
		regErr  error
		docType = opts.DocumentType
	)
	if docType == "" && opts.InferDocumentType {
		if opts.DetectRegions {
			items, regErr = p.detector.Detect(ctx, img)
			if regErr != nil {
				return nil, regErr
			}
		}
		b := img.Bounds()
		docType = preprocess.InferDocumentType(b.Dx(), b.Dy(), traits(items))
		p.logger.Debug("Inferred document type", "page", in.PageNum, "documentType", docType)
	}

	var (
		rec    *ensemble.Recognition
		recErr error
		g      errgroup.Group
	)
	if opts.DetectRegions && items == nil {
		g.Go(func() error {
			items, regErr = p.detector.Detect(ctx, img)
			return nil
		})
	}
	g.Go(func() error {
		rec, recErr = p.recognize(ctx, img, lang, docType)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if regErr != nil {
		return nil, regErr
	}
	if items == nil {
		items = regions.NewSpecialItems()
	}

	result := &PageResult{
		PageNum:      in.PageNum,
		SpecialItems: items,
		Geometry:     est,
		DocumentType: docType,
		Engines:      []string{},
	}
	if recErr != nil && !errors.IsCode(recErr, errors.ErrorAllEnginesFailed) {
		return nil, recErr
	}
	if rec != nil && rec.Result != nil {
		result.Language = rec.Result.Language
		result.Confidence = engine.ClampConfidence(rec.Result.Confidence)
		result.Cached = rec.Cached
		if engines := rec.Engines(); len(engines) > 0 {
			result.Engines = engines
		}
		result.Text = p.normalizer.Normalize(rec.Result.Text, rec.Result.Language)
	}
	if opts.ExtractEntities && result.Text != "" {
		result.Entities = p.normalizer.Extract(result.Text, result.Language)
	}
	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	if recErr != nil {
		p.logger.Warn("No engine recognized the page", "page", in.PageNum, "error", recErr)
		return result, recErr
	}
	p.logger.Info("Page processed",
		"page", in.PageNum,
		"language", result.Language,
		"confidence", result.Confidence,
		"documentType", docType,
		"regions", len(items.Regions),
		"cached", result.Cached,
		"durationMs", result.ProcessingTimeMs)
	return result, nil
}

// recognize preprocesses the page and hands it to the recognizer
func (p *Processor) recognize(ctx context.Context, img image.Image, lang, docType string) (*ensemble.Recognition, error) {
	ppLang := lang
	if ppLang == "" {
		ppLang = p.defaultLanguage
	}
	gray, err := p.preprocess.Process(img, ppLang, docType)
	if err != nil {
		p.logger.Warn("Preprocessing failed, recognizing the plain page", "error", err)
	}
	encoded, err := imaging.EncodePNG(gray)
	if err != nil {
		return nil, errors.NewOCRFailedError("", "encode", err)
	}
	return p.recognizer.Recognize(ctx, encoded, lang)
}

func traits(items *regions.SpecialItems) preprocess.PageTraits {
	if items == nil {
		return preprocess.PageTraits{}
	}
	return preprocess.PageTraits{
		HasHandwriting: items.HasHandwriting,
		HasTable:       items.HasTable,
		HasStamps:      items.HasStamps,
	}
}
