package geometry

import (
	"fmt"
	"image"
	"math"

	"github.com/raspverry/ai-ocr/internal/imaging"
)

const (
	boundsBlur          = 5
	boundsCannyLow      = 75
	boundsCannyHigh     = 200
	approxEpsilonFactor = 0.02
	fullFrameAreaRatio  = 0.5
	keepAreaRatio       = 0.75
	// outlines smaller than this are page content (a text block, a stamp), not a photographed sheet
	minDocumentRatio    = 0.4
)

// FullFrame returns the quad covering the whole w×h image
func FullFrame(w, h int) imaging.Quad {
	fw, fh := float64(w), float64(h)
	return imaging.Quad{{X: 0, Y: 0}, {X: fw, Y: 0}, {X: fw, Y: fh}, {X: 0, Y: fh}}
}

// DetectBounds locates the document outline: the largest external contour
// of the closed edge map, simplified to a polygon. A quadrilateral is
// returned ordered from top-left. Other shapes give the full frame when
// they cover more than half of it, else their minimum-area rectangle.
func DetectBounds(gray *image.Gray) imaging.Quad {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	blurred := imaging.GaussianBlur(gray, boundsBlur)
	edges := imaging.Canny(blurred, boundsCannyLow, boundsCannyHigh)
	closed := imaging.Close(edges, imaging.RectKernel(5, 5))

	contours := imaging.ExternalContours(closed)
	idx := imaging.LargestContour(contours)
	if idx < 0 {
		return FullFrame(w, h)
	}
	largest := contours[idx]
	pts := largest.Pts()
	approx := imaging.ApproxPolyDP(pts, approxEpsilonFactor*largest.Perimeter())
	if len(approx) == 4 {
		return imaging.OrderQuad([4]imaging.Pt(approx))
	}
	if largest.Area() > float64(w*h)*fullFrameAreaRatio {
		return FullFrame(w, h)
	}
	return imaging.OrderQuad(imaging.MinAreaRect(pts).Corners())
}

// Rectify crops and flattens the document found by DetectBounds. When the
// outline covers at least 75% of the frame, or less than 40% of it, img
// itself is returned. The detected quad is returned either way.
func Rectify(img image.Image) (out image.Image, quad imaging.Quad, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = img, fmt.Errorf("rectify panicked: %v", r)
		}
	}()

	b := img.Bounds()
	quad = DetectBounds(imaging.ToGray(img))
	frame := float64(b.Dx() * b.Dy())
	if area := quad.Area(); area >= frame*keepAreaRatio || area < frame*minDocumentRatio {
		return img, quad, nil
	}

	fw, fh := quad.Size()
	w, h := int(fw), int(fh)
	if w < 2 || h < 2 || math.IsNaN(fw) || math.IsNaN(fh) {
		return img, quad, fmt.Errorf("degenerate document bounds %v", quad)
	}
	warped, err := imaging.WarpPerspective(img, quad, w, h)
	if err != nil {
		return img, quad, fmt.Errorf("failed to warp document: %w", err)
	}
	return warped, quad, nil
}
