/**
 * Recognition engines
 *
 * Every backend (local Tesseract, Google Document AI, Azure Read, a vision
 * LLM, the fixed-output static engine) implements Engine. Engines report
 * failure as an error; the ensemble turns that into an exclusion.
 */

package engine

import (
	"context"
	"strings"
)

// Engine recognizes the text on one encoded page image
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, languageHint string) (*Result, error)
}

// Region is a recognized text span with its box (x1, y1, x2, y2)
type Region struct {
	Text       string  `json:"text"`
	BBox       [4]int  `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

// Result is what one engine, or the ensemble, recognized on a page
type Result struct {
	Text       string   `json:"text"`
	Language   string   `json:"language"`
	Confidence float64  `json:"confidence"`
	Engine     string   `json:"engine"`
	Regions    []Region `json:"regions,omitempty"`
}

// Empty reports whether the result carries no text
func (r *Result) Empty() bool {
	return r == nil || strings.TrimSpace(r.Text) == ""
}

// WithoutRegions returns a copy with the regions dropped
func (r *Result) WithoutRegions() *Result {
	cp := *r
	cp.Regions = nil
	return &cp
}

// ClampConfidence limits a confidence to [0,1]; NaN becomes 0
func ClampConfidence(c float64) float64 {
	if !(c > 0) {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// newResult builds a result with a normalized language and clamped confidence
func newResult(engine, text, language string, confidence float64, regions []Region) *Result {
	for i := range regions {
		regions[i].Confidence = ClampConfidence(regions[i].Confidence)
	}
	return &Result{
		Text:       text,
		Language:   NormalizeLanguage(language),
		Confidence: ClampConfidence(confidence),
		Engine:     engine,
		Regions:    regions,
	}
}
