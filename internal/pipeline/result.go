package pipeline

import (
	"image"

	"github.com/raspverry/ai-ocr/internal/errors"
	"github.com/raspverry/ai-ocr/internal/geometry"
	"github.com/raspverry/ai-ocr/internal/imaging"
	"github.com/raspverry/ai-ocr/internal/normalize"
	"github.com/raspverry/ai-ocr/internal/regions"
)

// PageInput is one page to recognize
type PageInput struct {
	Image   image.Image
	DPI     int
	PageNum int
}

// DecodePage decodes an encoded page image
func DecodePage(data []byte, pageNum, dpi int) (PageInput, error) {
	img, err := imaging.Decode(data)
	if err != nil {
		return PageInput{}, errors.NewImageDecodeError("", pageNum, err)
	}
	return PageInput{Image: img, DPI: dpi, PageNum: pageNum}, nil
}

// Options control how a page is processed
type Options struct {
	// Language is the recognition hint; empty lets the engines decide
	Language string
	// DocumentType selects preprocessing presets (receipt, invoice, ...)
	DocumentType string
	// InferDocumentType guesses DocumentType from the page when it is empty
	InferDocumentType bool
	SkipGeometry      bool
	DetectRegions     bool
	ExtractEntities   bool
}

// DefaultOptions enables region detection, document-type inference and
// entity extraction
func DefaultOptions() Options {
	return Options{
		InferDocumentType: true,
		DetectRegions:     true,
		ExtractEntities:   true,
	}
}

// PageResult is the outcome of processing one page
type PageResult struct {
	PageNum          int                   `json:"pageNum"`
	Text             string                `json:"text"`
	Language         string                `json:"language"`
	Confidence       float64               `json:"confidence"`
	SpecialItems     *regions.SpecialItems `json:"specialItems"`
	Entities         *normalize.Entities   `json:"entities,omitempty"`
	Geometry         geometry.Estimate     `json:"geometry"`
	DocumentType     string                `json:"documentType,omitempty"`
	Engines          []string              `json:"engines"`
	Cached           bool                  `json:"cached"`
	ProcessingTimeMs int64                 `json:"processingTimeMs"`
}
