package regions

import (
	"image"
	"math"

	"github.com/raspverry/ai-ocr/internal/imaging"
)

const (
	stampMinRadius       = 30
	stampMaxRadius       = 150
	stampMinDist         = 50
	stampCannyHigh       = 100
	stampAccThreshold    = 30
	stampRedRatio        = 0.6
	stampCircularity     = 0.7
	stampRedConfidence   = 0.9
	stampRectConfidence  = 0.85
	stampMinAspect       = 0.5
	stampMaxAspect       = 2.0
	stampMinAreaFraction = 0.8
	stampMaxAreaFraction = 1.5
)

type stampHit struct {
	cx, cy, r float64
}

// detectStamps looks for round seals with a circle transform and for red
// rectangular stamps among the red ink blobs. A circle is a stamp when its
// box is mostly red or the largest shape inside it is round. Red blobs that
// overlap an already found seal are skipped.
func detectStamps(p *prepared) []Region {
	var regions []Region
	var hits []stampHit

	circles := imaging.HoughCircles(p.gray, imaging.HoughCircleOptions{
		MinDist:      stampMinDist,
		CannyHigh:    stampCannyHigh,
		AccThreshold: stampAccThreshold,
		MinRadius:    stampMinRadius,
		MaxRadius:    stampMaxRadius,
	})
	for _, c := range circles {
		x, y, r := int(math.Round(c.X)), int(math.Round(c.Y)), int(math.Round(c.R))
		roi := image.Rect(x-r, y-r, x+r, y+r).Intersect(p.gray.Rect)
		if roi.Empty() {
			continue
		}
		red := imaging.Ratio(p.redRaw, roi) > stampRedRatio
		circ := circularity(imaging.Crop(p.binary, roi))
		if !red && circ <= stampCircularity {
			continue
		}
		conf := circ
		if red {
			conf = math.Max(stampRedConfidence, circ)
		}
		regions = append(regions, Region{Type: TypeStamp, BBox: bbox(roi), Confidence: clampConfidence(conf)})
		hits = append(hits, stampHit{cx: c.X, cy: c.Y, r: c.R})
	}

	minArea := math.Pi * stampMinRadius * stampMinRadius * stampMinAreaFraction
	maxArea := math.Pi * stampMaxRadius * stampMaxRadius * stampMaxAreaFraction
	for _, c := range imaging.ExternalContours(p.red) {
		area := c.Area()
		if area < minArea || area > maxArea {
			continue
		}
		w, h := c.Box.Dx(), c.Box.Dy()
		if h == 0 {
			continue
		}
		aspect := float64(w) / float64(h)
		if aspect < stampMinAspect || aspect > stampMaxAspect {
			continue
		}
		centre := c.Center()
		r := float64(max(w, h)) / 2
		if overlapsStamp(hits, centre.X, centre.Y, r) {
			continue
		}
		regions = append(regions, Region{Type: TypeStamp, BBox: bbox(c.Box), Confidence: stampRectConfidence})
		hits = append(hits, stampHit{cx: centre.X, cy: centre.Y, r: r})
	}
	return regions
}

func overlapsStamp(hits []stampHit, x, y, r float64) bool {
	for _, h := range hits {
		if math.Hypot(h.cx-x, h.cy-y) < h.r+r {
			return true
		}
	}
	return false
}

// circularity is 4πA/P² of the largest blob in mask, at most 1
func circularity(mask *image.Gray) float64 {
	contours := imaging.ExternalContours(mask)
	i := imaging.LargestContour(contours)
	if i < 0 {
		return 0
	}
	perimeter := contours[i].Perimeter()
	if perimeter == 0 {
		return 0
	}
	return math.Min(1, 4*math.Pi*contours[i].Area()/(perimeter*perimeter))
}
