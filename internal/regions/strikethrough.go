package regions

import (
	"image"
	"math"
	"sort"

	"github.com/raspverry/ai-ocr/internal/imaging"
)

const (
	strikeHoughThreshold = 50
	strikeMinLength      = 50
	strikeMaxGap         = 10
	strikeMaxTilt        = 20.0
	strikeMinThickness   = 2.0
	strikeMaxThickness   = 10.0
	strikeMargin         = 10
	strikeMinDensity     = 0.1
	strikeBaseConf       = 0.7
	strikeMaxRun         = 21
	strikeMergeIoU       = 0.5
)

// detectStrikethrough finds near-horizontal lines of pen-stroke thickness
// that sit in inked areas. Both edges of one stroke produce a segment, so
// boxes overlapping an earlier hit by more than half are merged into it.
func detectStrikethrough(p *prepared) []Region {
	segments := imaging.HoughLinesP(p.edges, imaging.HoughLineOptions{
		Threshold: strikeHoughThreshold,
		MinLength: strikeMinLength,
		MaxGap:    strikeMaxGap,
	})

	var regions []Region
	for _, s := range segments {
		angle := math.Abs(s.AngleDeg())
		if angle >= strikeMaxTilt && angle <= 180-strikeMaxTilt {
			continue
		}
		thickness := strokeThickness(p.binary, p.edges, s)
		if thickness < strikeMinThickness || thickness > strikeMaxThickness {
			continue
		}
		box := image.Rect(
			min(s.X1, s.X2)-strikeMargin, min(s.Y1, s.Y2)-strikeMargin,
			max(s.X1, s.X2)+strikeMargin, max(s.Y1, s.Y2)+strikeMargin,
		).Intersect(p.binary.Rect)
		density := imaging.Ratio(p.binary, box)
		if density <= strikeMinDensity {
			continue
		}
		if mergesInto(regions, box) {
			continue
		}
		regions = append(regions, Region{
			Type:       TypeStrikethrough,
			BBox:       bbox(box),
			Confidence: clampConfidence(strikeBaseConf + density),
		})
	}
	return regions
}

func mergesInto(regions []Region, box image.Rectangle) bool {
	for _, r := range regions {
		if iou(r.Rect(), box) > strikeMergeIoU {
			return true
		}
	}
	return false
}

func iou(a, b image.Rectangle) float64 {
	in := a.Intersect(b)
	if in.Empty() {
		return 0
	}
	ia := float64(in.Dx() * in.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}

// strokeThickness is the median ink run across a segment, sampled where the
// segment's own edge is present so glyphs it crosses do not count. At each
// sample it snaps to the nearest ink pixel within two pixels of the line and
// counts the perpendicular ink run, capped at strikeMaxRun.
func strokeThickness(mask, edges *image.Gray, s imaging.LineSegment) float64 {
	length := s.Length()
	if length == 0 {
		return 0
	}
	dx := float64(s.X2-s.X1) / length
	dy := float64(s.Y2-s.Y1) / length
	nx, ny := -dy, dx

	on := func(img *image.Gray, px, py float64, o int) bool {
		x := int(math.Round(px + float64(o)*nx))
		y := int(math.Round(py + float64(o)*ny))
		if x < 0 || y < 0 || x >= img.Rect.Dx() || y >= img.Rect.Dy() {
			return false
		}
		return img.Pix[y*img.Stride+x] != 0
	}
	ink := func(px, py float64, o int) bool { return on(mask, px, py, o) }

	reach := strikeMaxRun / 2
	steps := int(length)
	runs := make([]int, 0, steps+1)
	for i := 0; i <= steps; i++ {
		px := float64(s.X1) + float64(i)*dx
		py := float64(s.Y1) + float64(i)*dy
		if !on(edges, px, py, 0) && !on(edges, px, py, 1) && !on(edges, px, py, -1) {
			continue
		}

		start, found := 0, false
		for _, o := range []int{0, 1, -1, 2, -2} {
			if ink(px, py, o) {
				start, found = o, true
				break
			}
		}
		if !found {
			runs = append(runs, 0)
			continue
		}
		lo, hi := start, start
		for lo-1 >= start-reach && ink(px, py, lo-1) {
			lo--
		}
		for hi+1 <= start+reach && ink(px, py, hi+1) {
			hi++
		}
		runs = append(runs, hi-lo+1)
	}
	n := len(runs)
	if n == 0 {
		return 0
	}
	sort.Ints(runs)
	if n%2 == 1 {
		return float64(runs[n/2])
	}
	return float64(runs[n/2-1]+runs[n/2]) / 2
}
