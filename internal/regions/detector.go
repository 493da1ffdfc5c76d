/**
 * Special region detection
 *
 * Finds the page areas that need special care during recognition:
 * - stamps (round hanko seals and red rectangular stamps)
 * - handwriting (irregular stroke widths)
 * - tables (dense horizontal and vertical rulings)
 * - strikethrough (horizontal lines drawn across text)
 *
 * Detectors share one preparation pass and run concurrently. Each one is
 * isolated: a failure yields no regions for that detector only.
 */

package regions

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/sync/errgroup"

	"github.com/raspverry/ai-ocr/internal/imaging"
	"github.com/raspverry/ai-ocr/internal/logging"
)

// Options select detectors and tune the shared preparation
type Options struct {
	Stamps        bool
	Handwriting   bool
	Tables        bool
	Strikethrough bool
	// DenoiseH is the non-local-means strength applied before binarization
	DenoiseH float64
	// DenoiseSearch is the non-local-means search window
	DenoiseSearch int
}

// DefaultOptions enables every detector
func DefaultOptions() Options {
	return Options{
		Stamps:        true,
		Handwriting:   true,
		Tables:        true,
		Strikethrough: true,
		DenoiseH:      10,
		DenoiseSearch: 11,
	}
}

// Detector finds special regions on colour page images
type Detector struct {
	opts   Options
	logger *logging.Logger
}

// NewDetector creates a detector
func NewDetector(opts Options, logger *logging.Logger) *Detector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Detector{opts: opts, logger: logger}
}

// prepared holds the views every detector works from
type prepared struct {
	colour *image.NRGBA
	gray   *image.Gray
	// binary is the inverted Otsu mask: ink is 255
	binary *image.Gray
	edges  *image.Gray
	// redRaw is the unfiltered red mask, red the same after a 5×5 opening
	redRaw *image.Gray
	red    *image.Gray
}

func (d *Detector) prepare(img image.Image) *prepared {
	colour := imaging.ToNRGBA(img)
	gray := imaging.ToGray(colour)
	denoised := imaging.NLMeans(gray, d.opts.DenoiseH, 7, d.opts.DenoiseSearch)
	redRaw := imaging.RedMask(colour, imaging.DefaultRedRange)
	return &prepared{
		colour: colour,
		gray:   gray,
		binary: imaging.OtsuBinarize(denoised, true),
		edges:  imaging.Canny(denoised, 50, 150),
		redRaw: redRaw,
		red:    imaging.Open(redRaw, imaging.RectKernel(5, 5)),
	}
}

type detectorFunc func(*prepared) []Region

// Detect runs the enabled detectors. Results are ordered stamps,
// handwriting, tables, strikethrough regardless of completion order. Only
// context cancellation is reported as an error.
func (d *Detector) Detect(ctx context.Context, img image.Image) (*SpecialItems, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := d.prepare(img)

	named := []struct {
		name    string
		enabled bool
		fn      detectorFunc
	}{
		{TypeStamp, d.opts.Stamps, detectStamps},
		{TypeHandwriting, d.opts.Handwriting, detectHandwriting},
		{TypeTable, d.opts.Tables, detectTables},
		{TypeStrikethrough, d.opts.Strikethrough, detectStrikethrough},
	}

	found := make([][]Region, len(named))
	g, gctx := errgroup.WithContext(ctx)
	for i, det := range named {
		i, det := i, det
		if !det.enabled {
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			found[i] = d.run(det.name, det.fn, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items := NewSpecialItems()
	for _, regions := range found {
		items.Add(regions...)
	}
	d.logger.Debug("Special regions detected",
		"stamps", items.HasStamps,
		"handwriting", items.HasHandwriting,
		"table", items.HasTable,
		"strikethrough", items.HasStrikethrough,
		"regions", len(items.Regions))
	return items, nil
}

func (d *Detector) run(name string, fn detectorFunc, p *prepared) (regions []Region) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("Region detector failed", "detector", name, "error", fmt.Sprint(r))
			regions = nil
		}
	}()
	return fn(p)
}

// clampConfidence keeps detector scores in [0,1]
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
