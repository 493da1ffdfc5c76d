/**
 * Image conditioning for recognition
 *
 * Turns a geometry-corrected page into the grayscale image the engines see.
 * Parameters come from the language/document-type table resolved at load
 * time, so every stage here is a plain function of its inputs.
 */

package preprocess

import (
	"fmt"
	"image"

	"github.com/raspverry/ai-ocr/internal/config"
	"github.com/raspverry/ai-ocr/internal/imaging"
	"github.com/raspverry/ai-ocr/internal/logging"
)

// DefaultMinShortSide is the shorter side pages are upscaled to
const DefaultMinShortSide = 600

const (
	denoiseTemplate = 7
	denoiseSearch   = 21
	edgeCannyLow    = 50
	edgeCannyHigh   = 150
	sharpenSigma    = 3
)

// Pipeline conditions page images for recognition
type Pipeline struct {
	params       *config.ParamTable
	minShortSide int
	logger       *logging.Logger
}

// NewPipeline creates a pipeline over a resolved parameter table
func NewPipeline(params *config.ParamTable, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{params: params, minShortSide: DefaultMinShortSide, logger: logger}
}

// WithMinShortSide returns a copy of the pipeline upscaling to n instead
func (p *Pipeline) WithMinShortSide(n int) *Pipeline {
	cp := *p
	cp.minShortSide = n
	return &cp
}

// Params returns the parameters used for a language and document type
func (p *Pipeline) Params(language, documentType string) config.PreprocessParams {
	return p.params.Lookup(language, documentType)
}

// Process upscales small pages and runs the conditioning stages. If a stage
// panics the upscaled grayscale page is returned together with the error.
func (p *Pipeline) Process(img image.Image, language, documentType string) (out *image.Gray, err error) {
	upscaled := imaging.Upscale(img, p.minShortSide)
	if upscaled.Bounds().Size() != img.Bounds().Size() {
		p.logger.Debug("Upscaled page",
			"from", img.Bounds().Size().String(),
			"to", upscaled.Bounds().Size().String())
	}
	gray := imaging.ToGray(upscaled)

	defer func() {
		if r := recover(); r != nil {
			out, err = gray, fmt.Errorf("preprocessing panicked: %v", r)
		}
	}()

	params := p.Params(language, documentType)
	p.logger.Debug("Preprocessing page",
		"language", language,
		"documentType", documentType,
		"binarization", params.Binarization)
	return Apply(gray, params), nil
}

// Apply runs the conditioning stages on a grayscale image:
// blur, non-local-means denoise, contrast, binarization, edge reinforcement,
// a 2×2 opening and unsharp masking. Identical input gives identical output.
func Apply(gray *image.Gray, params config.PreprocessParams) *image.Gray {
	blurred := gray
	if params.BlurKernel >= 3 {
		blurred = imaging.GaussianBlur(gray, params.BlurKernel)
	}

	denoised := blurred
	if params.DenoiseH > 0 {
		denoised = imaging.NLMeans(blurred, params.DenoiseH, denoiseTemplate, denoiseSearch)
	}

	contrasted := imaging.ConvertScale(denoised, params.Contrast, 0)

	var binary *image.Gray
	switch params.Binarization {
	case config.BinarizeFixed:
		binary = imaging.Threshold(contrasted, clampByte(params.Threshold), false)
	default:
		block := params.BlockSize
		if block%2 == 0 {
			block++
		}
		binary = imaging.AdaptiveThreshold(contrasted, block, params.CValue, false)
	}

	enhanced := binary
	if params.EdgeEnhancement > 1 {
		edges := imaging.Canny(contrasted, edgeCannyLow, edgeCannyHigh)
		enhanced = imaging.AddWeighted(binary, 1, edges, params.EdgeEnhancement-1, 0)
	}

	opened := imaging.Open(enhanced, imaging.RectKernel(2, 2))

	if params.Sharpness > 1 {
		return imaging.UnsharpMask(opened, params.Sharpness, sharpenSigma)
	}
	return opened
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
