package regions

import (
	"image"
	"math"

	"github.com/raspverry/ai-ocr/internal/imaging"
)

const (
	handwritingMeanWidth = 1.5
	handwritingVariation = 0.5
	handwritingMinArea   = 500
	handwritingMaxBox    = 50000
	handwritingMinAspect = 0.2
	handwritingMaxAspect = 5.0
	handwritingBaseConf  = 0.6
)

// strokeStats measures stroke width along the skeleton of an ink mask:
// the mean distance-to-background at skeleton pixels and its coefficient of
// variation. ok is false when the mask has no skeleton.
func strokeStats(mask *image.Gray) (mean, cv float64, ok bool) {
	skel := imaging.Skeletonize(mask)
	dist := imaging.DistanceTransform(mask)
	w := mask.Rect.Dx()

	var sum, sumSq float64
	n := 0
	for y := 0; y < skel.Rect.Dy(); y++ {
		for x := 0; x < w; x++ {
			if skel.Pix[y*skel.Stride+x] == 0 {
				continue
			}
			d := dist[y*w+x]
			sum += d
			sumSq += d * d
			n++
		}
	}
	if n == 0 {
		return 0, 0, false
	}
	mean = sum / float64(n)
	if mean == 0 {
		return 0, 0, false
	}
	std := math.Sqrt(math.Max(0, sumSq/float64(n)-mean*mean))
	return mean, std / mean, true
}

func irregularStrokes(mean, cv float64) bool {
	return mean > handwritingMeanWidth || cv > handwritingVariation
}

// detectHandwriting flags pages whose strokes vary in width the way pen
// strokes do, then reports the ink clusters that show the same trait.
func detectHandwriting(p *prepared) []Region {
	mean, cv, ok := strokeStats(p.binary)
	if !ok || !irregularStrokes(mean, cv) {
		return nil
	}

	var regions []Region
	clusters := imaging.Dilate(p.binary, imaging.RectKernel(5, 5), 2)
	for _, c := range imaging.ExternalContours(clusters) {
		if c.Area() < handwritingMinArea {
			continue
		}
		w, h := c.Box.Dx(), c.Box.Dy()
		if h == 0 || w*h > handwritingMaxBox {
			continue
		}
		aspect := float64(w) / float64(h)
		if aspect < handwritingMinAspect || aspect > handwritingMaxAspect {
			continue
		}
		m, v, ok := strokeStats(imaging.Crop(p.binary, c.Box))
		if !ok || !irregularStrokes(m, v) {
			continue
		}
		regions = append(regions, Region{
			Type:       TypeHandwriting,
			BBox:       bbox(c.Box),
			Confidence: clampConfidence(handwritingBaseConf + v),
		})
	}
	return regions
}
