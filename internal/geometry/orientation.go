/**
 * Page geometry correction
 *
 * Three best-effort stages run in order on every page:
 * - orientation: coarse 90° multiples from the direction of text lines
 * - skew: fine rotation from the dominant near-horizontal line angle
 * - bounds: perspective rectification of a photographed page
 *
 * A stage without signal leaves the image untouched.
 */

package geometry

import (
	"image"
	"math"

	"github.com/raspverry/ai-ocr/internal/imaging"
)

const (
	orientationBlur      = 5
	orientationBlock     = 11
	orientationC         = 2
	textLineMinAreaRatio = 0.001
	orientationBucket    = 5.0
)

// DetectOrientation estimates the page orientation (0, 90, 180 or 270) from
// the dominant angle of text-line blobs. No blobs means 0.
func DetectOrientation(gray *image.Gray) int {
	blurred := imaging.GaussianBlur(gray, orientationBlur)
	binary := imaging.AdaptiveThreshold(blurred, orientationBlock, orientationC, true)
	lines := imaging.Dilate(binary, imaging.RectKernel(30, 5), 1)

	minArea := float64(gray.Rect.Dx()*gray.Rect.Dy()) * textLineMinAreaRatio
	var buckets []float64
	for _, c := range imaging.ExternalContours(lines) {
		if c.Area() <= minArea {
			continue
		}
		rect := imaging.MinAreaRect(c.Pts())
		angle := imaging.FoldAngle(rect.Angle)
		buckets = append(buckets, math.RoundToEven(angle/orientationBucket)*orientationBucket)
	}
	if len(buckets) == 0 {
		return 0
	}
	return orientationFromBucket(mostFrequent(buckets))
}

// orientationFromBucket maps the dominant text-line angle to a page rotation
func orientationFromBucket(b float64) int {
	switch {
	case b >= -10 && b <= 10:
		return 0
	case b >= 40 && b <= 50:
		return 90
	case b >= -50 && b <= -40:
		return 270
	case b >= 80 || b <= -80:
		return 180
	default:
		return 0
	}
}

// mostFrequent returns the value seen most often, the earliest on ties
func mostFrequent(values []float64) float64 {
	counts := make(map[float64]int, len(values))
	best, bestN := 0.0, 0
	for _, v := range values {
		counts[v]++
	}
	for _, v := range values {
		if n := counts[v]; n > bestN {
			best, bestN = v, n
		}
	}
	return best
}

// CorrectOrientation undoes a detected orientation: 90 rotates the page 90°
// clockwise, 270 rotates it counter-clockwise, 180 turns it over. Other
// values return img itself.
func CorrectOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 90, 180, 270:
		return imaging.RotateClockwise(img, orientation)
	default:
		return img
	}
}
