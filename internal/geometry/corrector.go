package geometry

import (
	"fmt"
	"image"

	"github.com/raspverry/ai-ocr/internal/imaging"
	"github.com/raspverry/ai-ocr/internal/logging"
)

// Estimate records what geometry correction found on a page
type Estimate struct {
	Orientation int           `json:"orientation"`
	SkewAngle   float64       `json:"skewAngle"`
	Bounds      *imaging.Quad `json:"bounds,omitempty"`
}

// Corrector runs orientation, skew and bounds correction in order
type Corrector struct {
	skew   SkewOptions
	logger *logging.Logger
}

// NewCorrector creates a corrector with the given skew options
func NewCorrector(skew SkewOptions, logger *logging.Logger) *Corrector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Corrector{skew: skew, logger: logger}
}

// Correct applies every stage. A stage that fails or panics is skipped and
// the image from the previous stage carries on.
func (c *Corrector) Correct(img image.Image) (image.Image, Estimate) {
	var est Estimate

	c.stage("orientation", func() {
		o := DetectOrientation(imaging.ToGray(img))
		img = CorrectOrientation(img, o)
		est.Orientation = o
	})

	c.stage("skew", func() {
		a := DetectSkew(imaging.ToGray(img), c.skew)
		img = CorrectSkew(img, a)
		est.SkewAngle = a
	})

	c.stage("bounds", func() {
		out, quad, err := Rectify(img)
		if err != nil {
			c.logger.Debug("Document bounds not applied", "error", err)
			return
		}
		est.Bounds = &quad
		img = out
	})

	if est.Orientation == 0 && est.SkewAngle == 0 {
		c.logger.Debug("No orientation or skew signal")
	}
	return img, est
}

func (c *Corrector) stage(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("Geometry stage failed", "stage", name, "error", fmt.Sprint(r))
		}
	}()
	fn()
}
