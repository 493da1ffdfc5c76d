/**
 * Tesseract OCR - local, offline recognition
 *
 * One gosseract client per call: the underlying TessBaseAPI is not safe for
 * concurrent use. Word confidences come from hOCR.
 */

package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/otiai10/gosseract/v2"

	"github.com/raspverry/ai-ocr/internal/config"
	"github.com/raspverry/ai-ocr/internal/logging"
)

// Tesseract recognizes text with the local Tesseract library
type Tesseract struct {
	tessdataPrefix  string
	defaultLanguage string
	logger          *logging.Logger
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	// TessdataPrefix overrides the trained data directory when set
	TessdataPrefix  string
	DefaultLanguage string
}

// NewTesseract creates a Tesseract engine
func NewTesseract(cfg TesseractConfig) *Tesseract {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = LangJapanese
	}
	return &Tesseract{
		tessdataPrefix:  cfg.TessdataPrefix,
		defaultLanguage: cfg.DefaultLanguage,
		logger:          logging.NewLogger("Tesseract"),
	}
}

// NewTesseractFromConfig builds the engine from the worker configuration.
// TESSERACT_PATH is used as the tessdata prefix when it names a directory.
func NewTesseractFromConfig(cfg *config.Config) (Engine, error) {
	prefix := ""
	if fi, err := os.Stat(cfg.TesseractPath); err == nil && fi.IsDir() {
		prefix = cfg.TesseractPath
	}
	return NewTesseract(TesseractConfig{TessdataPrefix: prefix, DefaultLanguage: cfg.DefaultLanguage}), nil
}

// Name implements Engine
func (t *Tesseract) Name() string { return NameTesseract }

// pageSegMode picks single-block segmentation for CJK and Korean pages and
// automatic segmentation otherwise
func pageSegMode(language string) gosseract.PageSegMode {
	switch NormalizeLanguage(language) {
	case LangJapanese, LangKorean, LangChineseSimplified, LangChineseTraditional:
		return gosseract.PSM_SINGLE_BLOCK
	}
	return gosseract.PSM_AUTO
}

// Recognize implements Engine
func (t *Tesseract) Recognize(ctx context.Context, image []byte, languageHint string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lang := NormalizeLanguage(languageHint)
	if lang == "" {
		lang = t.defaultLanguage
	}

	type outcome struct {
		hocr string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		h, err := t.run(image, lang)
		done <- outcome{h, err}
	}()

	var out outcome
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out = <-done:
	}
	if out.err != nil {
		return nil, out.err
	}

	lines, err := parseHOCR([]byte(out.hocr))
	if err != nil {
		return nil, err
	}
	result := newResult(NameTesseract, hocrText(lines), lang, hocrConfidence(lines), hocrRegions(lines))
	t.logger.Debug("Tesseract recognition complete",
		"language", lang,
		"confidence", result.Confidence,
		"words", len(result.Regions))
	return result, nil
}

func (t *Tesseract) run(image []byte, lang string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if t.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.tessdataPrefix); err != nil {
			return "", fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("failed to set language %s: %w", lang, err)
	}
	if err := client.SetPageSegMode(pageSegMode(lang)); err != nil {
		return "", fmt.Errorf("failed to set page segmentation: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}
	hocr, err := client.HOCRText()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}
	return hocr, nil
}
