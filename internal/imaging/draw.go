package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

// FillRect paints r on img
func FillRect(img draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// DrawLine paints a segment of the given thickness with round caps
func DrawLine(img draw.Image, x1, y1, x2, y2 int, thickness float64, c color.Color) {
	b := img.Bounds()
	half := math.Max(thickness/2, 0.5)
	a := Pt{float64(x1), float64(y1)}
	e := Pt{float64(x2), float64(y2)}
	pad := int(math.Ceil(half))
	box := image.Rect(min(x1, x2)-pad, min(y1, y2)-pad, max(x1, x2)+pad+1, max(y1, y2)+pad+1).Intersect(b)
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			if segmentDistance(Pt{float64(x), float64(y)}, a, e) <= half {
				img.Set(x, y, c)
			}
		}
	}
}

// DrawRing paints an annulus of the given thickness centred on the circle of radius r
func DrawRing(img draw.Image, cx, cy int, r, thickness float64, c color.Color) {
	paintDisc(img, cx, cy, r+thickness/2, r-thickness/2, c)
}

// FillCircle paints a solid disc
func FillCircle(img draw.Image, cx, cy int, r float64, c color.Color) {
	paintDisc(img, cx, cy, r, -1, c)
}

func paintDisc(img draw.Image, cx, cy int, outer, inner float64, c color.Color) {
	b := img.Bounds()
	o := int(math.Ceil(outer))
	box := image.Rect(cx-o, cy-o, cx+o+1, cy+o+1).Intersect(b)
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			d := math.Hypot(float64(x-cx), float64(y-cy))
			if d <= outer && d >= inner {
				img.Set(x, y, c)
			}
		}
	}
}

// FillPolygon paints the pixels whose centres lie inside the polygon (even-odd rule)
func FillPolygon(img draw.Image, poly []Pt, c color.Color) {
	if len(poly) < 3 {
		return
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		fy := float64(y)
		for x := b.Min.X; x < b.Max.X; x++ {
			fx := float64(x)
			inside := false
			for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
				pi, pj := poly[i], poly[j]
				if (pi.Y > fy) != (pj.Y > fy) && fx < (pj.X-pi.X)*(fy-pi.Y)/(pj.Y-pi.Y)+pi.X {
					inside = !inside
				}
			}
			if inside {
				img.Set(x, y, c)
			}
		}
	}
}
