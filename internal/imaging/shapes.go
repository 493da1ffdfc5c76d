package imaging

import (
	"math"
	"sort"
)

// Pt is a point in pixel coordinates (y grows downwards)
type Pt struct {
	X, Y float64
}

func (p Pt) sub(q Pt) Pt { return Pt{p.X - q.X, p.Y - q.Y} }

func (p Pt) dist(q Pt) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

func cross(o, a, b Pt) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// ConvexHull returns the hull of pts using the monotone chain algorithm.
// Collinear points are dropped.
func ConvexHull(pts []Pt) []Pt {
	if len(pts) < 3 {
		return append([]Pt(nil), pts...)
	}
	ps := append([]Pt(nil), pts...)
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].X != ps[j].X {
			return ps[i].X < ps[j].X
		}
		return ps[i].Y < ps[j].Y
	})
	hull := make([]Pt, 0, 2*len(ps))
	for _, p := range ps {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(ps) - 2; i >= 0; i-- {
		p := ps[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// RotatedRect is a rectangle of size W×H centred on Center whose W side
// runs at Angle degrees from the x axis
type RotatedRect struct {
	Center Pt
	W, H   float64
	Angle  float64
}

// Area of the rectangle
func (r RotatedRect) Area() float64 { return r.W * r.H }

// Corners returns the four corners in drawing order
func (r RotatedRect) Corners() [4]Pt {
	rad := r.Angle * math.Pi / 180
	ux, uy := math.Cos(rad), math.Sin(rad)
	vx, vy := -uy, ux
	hw, hh := r.W/2, r.H/2
	c := r.Center
	return [4]Pt{
		{c.X - ux*hw - vx*hh, c.Y - uy*hw - vy*hh},
		{c.X + ux*hw - vx*hh, c.Y + uy*hw - vy*hh},
		{c.X + ux*hw + vx*hh, c.Y + uy*hw + vy*hh},
		{c.X - ux*hw + vx*hh, c.Y - uy*hw + vy*hh},
	}
}

// MinAreaRect finds the smallest enclosing rectangle with rotating calipers
// over the convex hull. The angle is that of the hull edge the rectangle is
// flush with.
func MinAreaRect(pts []Pt) RotatedRect {
	hull := ConvexHull(pts)
	switch len(hull) {
	case 0:
		return RotatedRect{}
	case 1:
		return RotatedRect{Center: hull[0]}
	case 2:
		d := hull[1].sub(hull[0])
		return RotatedRect{
			Center: Pt{(hull[0].X + hull[1].X) / 2, (hull[0].Y + hull[1].Y) / 2},
			W:      math.Hypot(d.X, d.Y),
			Angle:  math.Atan2(d.Y, d.X) * 180 / math.Pi,
		}
	}

	best := RotatedRect{W: math.Inf(1), H: math.Inf(1)}
	for i := range hull {
		a, b := hull[i], hull[(i+1)%len(hull)]
		d := b.sub(a)
		l := math.Hypot(d.X, d.Y)
		if l == 0 {
			continue
		}
		ux, uy := d.X/l, d.Y/l
		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			q := p.sub(a)
			u := q.X*ux + q.Y*uy
			v := -q.X*uy + q.Y*ux
			minU, maxU = math.Min(minU, u), math.Max(maxU, u)
			minV, maxV = math.Min(minV, v), math.Max(maxV, v)
		}
		w, h := maxU-minU, maxV-minV
		if w*h < best.W*best.H {
			cu, cv := (minU+maxU)/2, (minV+maxV)/2
			best = RotatedRect{
				Center: Pt{a.X + cu*ux - cv*uy, a.Y + cu*uy + cv*ux},
				W:      w,
				H:      h,
				Angle:  math.Atan2(uy, ux) * 180 / math.Pi,
			}
		}
	}
	return best
}

// FoldAngle reduces an angle in degrees modulo 90 into [-45, 45)
func FoldAngle(deg float64) float64 {
	f := deg - 90*math.Floor((deg+45)/90)
	if f >= 45 {
		f -= 90
	}
	return f
}

// ArcLength is the length of the polyline, closed back to the first point when closed is set
func ArcLength(pts []Pt, closed bool) float64 {
	if len(pts) < 2 {
		return 0
	}
	var l float64
	for i := 1; i < len(pts); i++ {
		l += pts[i].dist(pts[i-1])
	}
	if closed {
		l += pts[len(pts)-1].dist(pts[0])
	}
	return l
}

// PolygonArea is the unsigned shoelace area
func PolygonArea(pts []Pt) float64 {
	if len(pts) < 3 {
		return 0
	}
	var s float64
	for i := range pts {
		j := (i + 1) % len(pts)
		s += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(s) / 2
}

// ApproxPolyDP simplifies a closed curve with Douglas-Peucker at tolerance
// epsilon. The curve is split at its first point and the point farthest
// from it, and each half is simplified independently.
func ApproxPolyDP(pts []Pt, epsilon float64) []Pt {
	n := len(pts)
	if n < 3 {
		return append([]Pt(nil), pts...)
	}
	far, farD := 0, -1.0
	for i, p := range pts {
		if d := p.dist(pts[0]); d > farD {
			far, farD = i, d
		}
	}
	if far == 0 {
		return []Pt{pts[0]}
	}
	first := douglasPeucker(pts[:far+1], epsilon)
	second := douglasPeucker(append(append([]Pt(nil), pts[far:]...), pts[0]), epsilon)
	out := append([]Pt(nil), first[:len(first)-1]...)
	out = append(out, second[:len(second)-1]...)
	return out
}

func douglasPeucker(pts []Pt, epsilon float64) []Pt {
	if len(pts) < 3 {
		return append([]Pt(nil), pts...)
	}
	a, b := pts[0], pts[len(pts)-1]
	idx, maxD := 0, -1.0
	for i := 1; i < len(pts)-1; i++ {
		if d := segmentDistance(pts[i], a, b); d > maxD {
			idx, maxD = i, d
		}
	}
	if maxD <= epsilon {
		return []Pt{a, b}
	}
	left := douglasPeucker(pts[:idx+1], epsilon)
	right := douglasPeucker(pts[idx:], epsilon)
	return append(left[:len(left)-1], right...)
}

func segmentDistance(p, a, b Pt) float64 {
	d := b.sub(a)
	l2 := d.X*d.X + d.Y*d.Y
	if l2 == 0 {
		return p.dist(a)
	}
	t := ((p.X-a.X)*d.X + (p.Y-a.Y)*d.Y) / l2
	t = math.Max(0, math.Min(1, t))
	return p.dist(Pt{a.X + t*d.X, a.Y + t*d.Y})
}

// Quad holds four corners ordered top-left, top-right, bottom-right, bottom-left
type Quad [4]Pt

// OrderQuad sorts four points by angle around their centroid, which for a
// convex quadrilateral in image coordinates yields top-left first and then
// clockwise.
func OrderQuad(pts [4]Pt) Quad {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X / 4
		cy += p.Y / 4
	}
	q := pts
	sort.SliceStable(q[:], func(i, j int) bool {
		return math.Atan2(q[i].Y-cy, q[i].X-cx) < math.Atan2(q[j].Y-cy, q[j].X-cx)
	})
	return Quad(q)
}

// Area of the quadrilateral
func (q Quad) Area() float64 { return PolygonArea(q[:]) }

// Size returns the longer of each pair of opposite edges as width and height
func (q Quad) Size() (w, h float64) {
	w = math.Max(q[0].dist(q[1]), q[3].dist(q[2]))
	h = math.Max(q[0].dist(q[3]), q[1].dist(q[2]))
	return w, h
}
