package geometry

import (
	"image"
	"image/color"
	"math"

	"github.com/raspverry/ai-ocr/internal/imaging"
)

// SkewOptions tune line detection for DetectSkew
type SkewOptions struct {
	Blur      int
	CannyLow  float64
	CannyHigh float64
	Threshold int
	MinLength float64
	MaxGap    int
	// MaxAngle drops segments steeper than this many degrees from horizontal
	MaxAngle float64
}

// DefaultSkewOptions returns the tuned defaults
func DefaultSkewOptions() SkewOptions {
	return SkewOptions{
		Blur:      9,
		CannyLow:  50,
		CannyHigh: 150,
		Threshold: 100,
		MinLength: 100,
		MaxGap:    10,
		MaxAngle:  80,
	}
}

const minSkewCorrection = 0.1

// DetectSkew returns the dominant angle of near-horizontal line segments in
// degrees, bucketed to 0.5° and folded into (-45, 45]. A negative angle
// means lines rise to the right. No segments means 0.
func DetectSkew(gray *image.Gray, opt SkewOptions) float64 {
	blurred := imaging.GaussianBlur(gray, opt.Blur)
	edges := imaging.Canny(blurred, opt.CannyLow, opt.CannyHigh)
	segments := imaging.HoughLinesP(edges, imaging.HoughLineOptions{
		Threshold: opt.Threshold,
		MinLength: opt.MinLength,
		MaxGap:    opt.MaxGap,
	})

	var buckets []float64
	for _, s := range segments {
		a := s.AngleDeg()
		// direction does not matter for a line
		if a > 90 {
			a -= 180
		} else if a <= -90 {
			a += 180
		}
		if math.Abs(a) > opt.MaxAngle {
			continue
		}
		if a <= -45 {
			a += 90
		} else if a > 45 {
			a -= 90
		}
		buckets = append(buckets, math.RoundToEven(a*2)/2)
	}
	if len(buckets) == 0 {
		return 0
	}
	return mostFrequent(buckets)
}

// CorrectSkew rotates img by angle degrees (positive is counter-clockwise)
// about its centre on an enlarged white canvas. Angles below 0.1° in
// magnitude return img itself.
func CorrectSkew(img image.Image, angle float64) image.Image {
	if math.Abs(angle) < minSkewCorrection {
		return img
	}
	return imaging.Rotate(img, angle, color.White)
}
