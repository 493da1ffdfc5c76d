package engine

import (
	"context"

	"github.com/raspverry/ai-ocr/internal/config"
)

// Static returns the same text for every page. It backs smoke runs and tests.
type Static struct {
	name       string
	text       string
	language   string
	confidence float64
	err        error
}

// NewStatic creates a static engine
func NewStatic(name, text, language string, confidence float64) *Static {
	return &Static{name: name, text: text, language: language, confidence: confidence}
}

// NewFailing creates a static engine whose every call fails with err
func NewFailing(name string, err error) *Static {
	return &Static{name: name, err: err}
}

// NewStaticFromConfig builds the static engine from STATIC_TEXT and STATIC_CONFIDENCE
func NewStaticFromConfig(cfg *config.Config) (Engine, error) {
	return NewStatic(NameStatic, cfg.StaticText, cfg.DefaultLanguage, cfg.StaticConfidence), nil
}

// Name implements Engine
func (s *Static) Name() string { return s.name }

// Recognize implements Engine. The language hint wins over the configured
// language when given.
func (s *Static) Recognize(ctx context.Context, _ []byte, languageHint string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	lang := s.language
	if languageHint != "" {
		lang = languageHint
	}
	return newResult(s.name, s.text, lang, s.confidence, nil), nil
}
