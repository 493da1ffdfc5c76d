package engine

import (
	"context"
	"fmt"
	"math"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/raspverry/ai-ocr/internal/config"
	"github.com/raspverry/ai-ocr/internal/errors"
	"github.com/raspverry/ai-ocr/internal/logging"
)

// DocumentAIConfig identifies the Document AI OCR processor
type DocumentAIConfig struct {
	ProjectID       string
	Location        string
	ProcessorID     string
	CredentialsFile string
}

type processFunc func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.Document, error)

// DocumentAI recognizes text with a Google Document AI OCR processor
type DocumentAI struct {
	name    string
	process processFunc
	closer  func() error
	logger  *logging.Logger
}

// NewDocumentAI connects to the regional Document AI endpoint
func NewDocumentAI(ctx context.Context, cfg DocumentAIConfig) (*DocumentAI, error) {
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, errors.NewInvalidConfigError("GOOGLE_PROCESSOR_ID", "documentai needs GOOGLE_PROJECT_ID and GOOGLE_PROCESSOR_ID")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}

	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Document AI client: %w", err)
	}

	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s", cfg.ProjectID, cfg.Location, cfg.ProcessorID)
	process := func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.Document, error) {
		req.Name = name
		resp, err := client.ProcessDocument(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp.GetDocument(), nil
	}
	return &DocumentAI{
		name:    NameDocumentAI,
		process: process,
		closer:  client.Close,
		logger:  logging.NewLogger("DocumentAI"),
	}, nil
}

// NewDocumentAIFromConfig builds the engine from the GOOGLE_* settings
func NewDocumentAIFromConfig(cfg *config.Config) (Engine, error) {
	return NewDocumentAI(context.Background(), DocumentAIConfig{
		ProjectID:       cfg.GoogleProjectID,
		Location:        cfg.GoogleLocation,
		ProcessorID:     cfg.GoogleProcessorID,
		CredentialsFile: cfg.GoogleCredentialsFile,
	})
}

// Name implements Engine
func (d *DocumentAI) Name() string { return d.name }

// Close releases the gRPC connection
func (d *DocumentAI) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer()
}

// Recognize implements Engine
func (d *DocumentAI) Recognize(ctx context.Context, image []byte, languageHint string) (*Result, error) {
	req := &documentaipb.ProcessRequest{
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  image,
				MimeType: "image/png",
			},
		},
		SkipHumanReview: true,
	}
	if tag := bcp47(languageHint); tag != "" {
		req.ProcessOptions = &documentaipb.ProcessOptions{
			OcrConfig: &documentaipb.OcrConfig{
				Hints: &documentaipb.OcrConfig_Hints{LanguageHints: []string{tag}},
			},
		}
	}

	doc, err := d.process(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to process document: %w", err)
	}
	result := resultFromDocument(d.name, doc, languageHint)
	d.logger.Debug("Document AI recognition complete",
		"language", result.Language,
		"confidence", result.Confidence,
		"lines", len(result.Regions))
	return result, nil
}

// resultFromDocument maps a processed document onto a Result. Confidence is
// the mean token confidence, the language the most confident detected page
// language, regions the page lines.
func resultFromDocument(engine string, doc *documentaipb.Document, languageHint string) *Result {
	if doc == nil {
		return newResult(engine, "", languageHint, 0, nil)
	}
	var (
		sum      float64
		n        int
		lang     string
		langConf float32 = -1
		regions  []Region
	)
	for _, page := range doc.GetPages() {
		for _, tok := range page.GetTokens() {
			sum += float64(tok.GetLayout().GetConfidence())
			n++
		}
		for _, dl := range page.GetDetectedLanguages() {
			if dl.GetConfidence() > langConf {
				lang, langConf = dl.GetLanguageCode(), dl.GetConfidence()
			}
		}
		w, h := float64(page.GetDimension().GetWidth()), float64(page.GetDimension().GetHeight())
		for _, line := range page.GetLines() {
			regions = append(regions, Region{
				Text:       strings.TrimSpace(textFromLayout(line.GetLayout(), doc.GetText())),
				BBox:       polyBox(line.GetLayout().GetBoundingPoly(), w, h),
				Confidence: float64(line.GetLayout().GetConfidence()),
			})
		}
	}
	confidence := 0.0
	if n > 0 {
		confidence = sum / float64(n)
	}
	if lang == "" {
		lang = languageHint
	}
	return newResult(engine, strings.TrimSpace(doc.GetText()), lang, confidence, regions)
}

// textFromLayout concatenates the text anchor segments of a layout
func textFromLayout(layout *documentaipb.Document_Page_Layout, fullText string) string {
	if layout == nil || layout.GetTextAnchor() == nil {
		return ""
	}
	runes := []rune(fullText)
	var sb strings.Builder
	for _, seg := range layout.GetTextAnchor().GetTextSegments() {
		start := min(max(int(seg.GetStartIndex()), 0), len(runes))
		end := min(max(int(seg.GetEndIndex()), start), len(runes))
		sb.WriteString(string(runes[start:end]))
	}
	return sb.String()
}

// polyBox bounds a polygon in pixels, scaling normalized vertices by the page size
func polyBox(poly *documentaipb.BoundingPoly, w, h float64) [4]int {
	var xs, ys []float64
	if vs := poly.GetVertices(); len(vs) > 0 {
		for _, v := range vs {
			xs = append(xs, float64(v.GetX()))
			ys = append(ys, float64(v.GetY()))
		}
	} else {
		for _, v := range poly.GetNormalizedVertices() {
			xs = append(xs, float64(v.GetX())*w)
			ys = append(ys, float64(v.GetY())*h)
		}
	}
	if len(xs) == 0 {
		return [4]int{}
	}
	x1, y1, x2, y2 := xs[0], ys[0], xs[0], ys[0]
	for i := range xs {
		x1, x2 = math.Min(x1, xs[i]), math.Max(x2, xs[i])
		y1, y2 = math.Min(y1, ys[i]), math.Max(y2, ys[i])
	}
	return [4]int{int(math.Floor(x1)), int(math.Floor(y1)), int(math.Ceil(x2)), int(math.Ceil(y2))}
}
