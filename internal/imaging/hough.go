package imaging

import (
	"image"
	"math"
	"sort"
)

// LineSegment is a detected straight segment in pixel coordinates
type LineSegment struct {
	X1, Y1, X2, Y2 int
}

// Length of the segment
func (l LineSegment) Length() float64 {
	return math.Hypot(float64(l.X2-l.X1), float64(l.Y2-l.Y1))
}

// AngleDeg is atan2(dy, dx) in degrees, in (-180, 180]
func (l LineSegment) AngleDeg() float64 {
	return math.Atan2(float64(l.Y2-l.Y1), float64(l.X2-l.X1)) * 180 / math.Pi
}

// HoughLineOptions tune HoughLinesP
type HoughLineOptions struct {
	Threshold int
	MinLength float64
	MaxGap    int
}

const (
	houghThetaStep = 0.5
	maxHoughPeaks  = 5000
)

type houghPeak struct {
	votes int
	theta int
	rho   int
}

// HoughLinesP finds line segments on a binary edge map. Candidate lines are
// the local maxima of a (theta, rho) vote accumulator at 0.5° × 1 px
// resolution, visited strongest first. Each line is walked across the image
// collecting unused edge pixels within one pixel of it; runs separated by
// more than MaxGap are split and runs of at least MinLength are reported and
// consume their pixels. The result is deterministic.
func HoughLinesP(edges *image.Gray, opt HoughLineOptions) []LineSegment {
	w, h := edges.Rect.Dx(), edges.Rect.Dy()
	if w == 0 || h == 0 {
		return nil
	}
	nTheta := int(180 / houghThetaStep)
	cosT := make([]float64, nTheta)
	sinT := make([]float64, nTheta)
	for t := range cosT {
		rad := float64(t) * houghThetaStep * math.Pi / 180
		cosT[t], sinT[t] = math.Cos(rad), math.Sin(rad)
	}
	maxRho := int(math.Ceil(math.Hypot(float64(w), float64(h))))
	nRho := 2*maxRho + 1
	acc := make([]int32, nTheta*nRho)

	points := 0
	for y := 0; y < h; y++ {
		row := edges.Pix[y*edges.Stride : y*edges.Stride+w]
		for x, v := range row {
			if v == 0 {
				continue
			}
			points++
			fx, fy := float64(x), float64(y)
			for t := 0; t < nTheta; t++ {
				r := int(math.Round(fx*cosT[t]+fy*sinT[t])) + maxRho
				acc[t*nRho+r]++
			}
		}
	}
	if points == 0 {
		return nil
	}

	var peaks []houghPeak
	for t := 0; t < nTheta; t++ {
		for r := 0; r < nRho; r++ {
			v := acc[t*nRho+r]
			if int(v) < opt.Threshold || v == 0 {
				continue
			}
			if isPeak(acc, nTheta, nRho, t, r) {
				peaks = append(peaks, houghPeak{votes: int(v), theta: t, rho: r - maxRho})
			}
		}
	}
	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].votes > peaks[j].votes })
	if len(peaks) > maxHoughPeaks {
		peaks = peaks[:maxHoughPeaks]
	}

	used := make([]bool, w*h)
	var segments []LineSegment
	for _, pk := range peaks {
		segments = append(segments, walkLine(edges, used, cosT[pk.theta], sinT[pk.theta], float64(pk.rho), opt)...)
	}
	return segments
}

// isPeak reports whether acc[t,r] is a 3×3 local maximum. Ties are broken
// towards the earlier cell so a plateau yields one peak.
func isPeak(acc []int32, nTheta, nRho, t, r int) bool {
	v := acc[t*nRho+r]
	for dt := -1; dt <= 1; dt++ {
		tt := t + dt
		if tt < 0 || tt >= nTheta {
			continue
		}
		for dr := -1; dr <= 1; dr++ {
			rr := r + dr
			if (dt == 0 && dr == 0) || rr < 0 || rr >= nRho {
				continue
			}
			n := acc[tt*nRho+rr]
			if n > v || (n == v && (dt < 0 || (dt == 0 && dr < 0))) {
				return false
			}
		}
	}
	return true
}

func walkLine(edges *image.Gray, used []bool, c, s, rho float64, opt HoughLineOptions) []LineSegment {
	w, h := edges.Rect.Dx(), edges.Rect.Dy()
	// foot of the normal and unit direction along the line
	px, py := rho*c, rho*s
	dx, dy := -s, c
	span := math.Hypot(float64(w), float64(h))

	var out []LineSegment
	var run []int
	var first, last image.Point
	gap := 0

	flush := func() {
		if len(run) > 0 {
			seg := LineSegment{X1: first.X, Y1: first.Y, X2: last.X, Y2: last.Y}
			if seg.Length() >= opt.MinLength {
				for _, i := range run {
					used[i] = true
				}
				out = append(out, seg)
			}
		}
		run = run[:0]
		gap = 0
	}

	for t := -span; t <= span; t++ {
		lx, ly := px+t*dx, py+t*dy
		if lx < -1 || ly < -1 || lx > float64(w) || ly > float64(h) {
			if len(run) > 0 {
				flush()
			}
			continue
		}
		hit := false
		for n := -1.0; n <= 1; n++ {
			x := int(math.Round(lx + n*c))
			y := int(math.Round(ly + n*s))
			if x < 0 || y < 0 || x >= w || y >= h {
				continue
			}
			i := y*w + x
			if used[i] || edges.Pix[y*edges.Stride+x] == 0 {
				continue
			}
			if !hit {
				if len(run) == 0 {
					first = image.Point{X: x, Y: y}
				}
				last = image.Point{X: x, Y: y}
				hit = true
			}
			run = append(run, i)
		}
		if hit {
			gap = 0
			continue
		}
		if len(run) > 0 {
			gap++
			if gap > opt.MaxGap {
				flush()
			}
		}
	}
	flush()
	return out
}

// Circle is a detected circle
type Circle struct {
	X, Y, R float64
	Votes   int
}

// HoughCircleOptions tune HoughCircles
type HoughCircleOptions struct {
	MinDist      float64
	CannyHigh    float64
	AccThreshold int
	MinRadius    int
	MaxRadius    int
}

// HoughCircles finds circles with the gradient method: every edge pixel
// votes for centres along both directions of its gradient for each radius
// in range, centres are accumulator local maxima above AccThreshold at
// least MinDist apart, and the radius is the most supported distance from
// the centre to the edge pixels.
func HoughCircles(gray *image.Gray, opt HoughCircleOptions) []Circle {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	if opt.MinRadius < 1 {
		opt.MinRadius = 1
	}
	if w < 3 || h < 3 || opt.MaxRadius < opt.MinRadius {
		return nil
	}
	edges := Canny(gray, opt.CannyHigh/2, opt.CannyHigh)
	gx, gy := Sobel(gray)

	acc := make([]int32, w*h)
	var edgePts []image.Point
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if edges.Pix[y*edges.Stride+x] == 0 {
				continue
			}
			m := math.Hypot(gx[i], gy[i])
			if m == 0 {
				continue
			}
			edgePts = append(edgePts, image.Point{X: x, Y: y})
			ux, uy := gx[i]/m, gy[i]/m
			for _, sign := range [2]float64{1, -1} {
				lastIdx := -1
				for r := opt.MinRadius; r <= opt.MaxRadius; r++ {
					cx := int(math.Round(float64(x) + sign*ux*float64(r)))
					cy := int(math.Round(float64(y) + sign*uy*float64(r)))
					if cx < 0 || cy < 0 || cx >= w || cy >= h {
						break
					}
					if j := cy*w + cx; j != lastIdx {
						acc[j]++
						lastIdx = j
					}
				}
			}
		}
	}

	type centre struct {
		x, y, votes int
	}
	var centres []centre
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := acc[y*w+x]
			if int(v) <= opt.AccThreshold {
				continue
			}
			if v > acc[y*w+x-1] && v >= acc[y*w+x+1] && v > acc[(y-1)*w+x] && v >= acc[(y+1)*w+x] {
				centres = append(centres, centre{x, y, int(v)})
			}
		}
	}
	sort.SliceStable(centres, func(i, j int) bool { return centres[i].votes > centres[j].votes })

	var circles []Circle
	hist := make([]int, opt.MaxRadius+2)
	for _, c := range centres {
		tooClose := false
		for _, k := range circles {
			if math.Hypot(k.X-float64(c.x), k.Y-float64(c.y)) < opt.MinDist {
				tooClose = true
				break
			}
		}
		if tooClose {
			continue
		}
		for i := range hist {
			hist[i] = 0
		}
		for _, p := range edgePts {
			d := int(math.Round(math.Hypot(float64(p.X-c.x), float64(p.Y-c.y))))
			if d >= opt.MinRadius && d <= opt.MaxRadius {
				hist[d]++
			}
		}
		bestR, bestN := 0, 0
		for r := opt.MinRadius; r <= opt.MaxRadius; r++ {
			// one pixel of slack on each side for rasterised outlines
			n := hist[r] + hist[r-1] + hist[r+1]
			if n > bestN {
				bestR, bestN = r, n
			}
		}
		if bestN < opt.AccThreshold {
			continue
		}
		circles = append(circles, Circle{X: float64(c.x), Y: float64(c.y), R: float64(bestR), Votes: c.votes})
	}
	return circles
}
