package imaging

import (
	"image"
	"sort"
)

// Contour is the outer boundary of one 8-connected foreground blob
type Contour struct {
	// Points is the closed boundary traced clockwise from the top-left pixel
	Points []image.Point
	// Box is the bounding rectangle of the blob (Max exclusive)
	Box image.Rectangle
	// Pixels is the number of foreground pixels enclosed, holes included
	Pixels int
}

// Area is the polygon area enclosed by the traced boundary
func (c Contour) Area() float64 {
	return PolygonArea(toPts(c.Points))
}

// Perimeter is the closed arc length of the boundary
func (c Contour) Perimeter() float64 {
	return ArcLength(toPts(c.Points), true)
}

// Pts returns the boundary as float points
func (c Contour) Pts() []Pt {
	return toPts(c.Points)
}

// Center is the middle of the bounding box
func (c Contour) Center() Pt {
	return Pt{X: float64(c.Box.Min.X+c.Box.Max.X) / 2, Y: float64(c.Box.Min.Y+c.Box.Max.Y) / 2}
}

func toPts(ps []image.Point) []Pt {
	out := make([]Pt, len(ps))
	for i, p := range ps {
		out[i] = Pt{X: float64(p.X), Y: float64(p.Y)}
	}
	return out
}

// FillHoles sets every background pixel not 4-connected to the image border
// to foreground.
func FillHoles(mask *image.Gray) *image.Gray {
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	outside := make([]bool, w*h)
	stack := make([]int, 0, 1024)
	push := func(x, y int) {
		i := y*w + x
		if mask.Pix[y*mask.Stride+x] == 0 && !outside[i] {
			outside[i] = true
			stack = append(stack, i)
		}
	}
	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		if x > 0 {
			push(x-1, y)
		}
		if x < w-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < h-1 {
			push(x, y+1)
		}
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for i := range outside {
		if !outside[i] {
			dst.Pix[i] = 255
		}
	}
	return dst
}

// Label assigns 8-connected component labels (1..n) in raster order.
// It returns the label image and the pixel count per label (index 0 unused).
func Label(mask *image.Gray) ([]int32, []int) {
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	labels := make([]int32, w*h)
	sizes := []int{0}
	stack := make([]int, 0, 1024)
	var next int32
	for start := range labels {
		if mask.Pix[(start/w)*mask.Stride+start%w] == 0 || labels[start] != 0 {
			continue
		}
		next++
		labels[start] = next
		count := 0
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			count++
			x, y := i%w, i/w
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					j := ny*w + nx
					if labels[j] == 0 && mask.Pix[ny*mask.Stride+nx] != 0 {
						labels[j] = next
						stack = append(stack, j)
					}
				}
			}
		}
		sizes = append(sizes, count)
	}
	return labels, sizes
}

// clockwise neighbour offsets starting east (y grows downwards)
var ring = [8]image.Point{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}

func ringIndex(d image.Point) int {
	for i, r := range ring {
		if r == d {
			return i
		}
	}
	return 0
}

// ExternalContours returns the outer boundary of every blob in mask. Blobs
// nested inside another blob's hole are not reported, matching
// external-only contour retrieval. Order is raster order of each blob's
// top-left pixel.
func ExternalContours(mask *image.Gray) []Contour {
	filled := FillHoles(mask)
	w, h := filled.Rect.Dx(), filled.Rect.Dy()
	labels, sizes := Label(filled)

	contours := make([]Contour, 0, len(sizes)-1)
	seen := make([]bool, len(sizes))
	for i, l := range labels {
		if l == 0 || seen[l] {
			continue
		}
		seen[l] = true
		start := image.Point{X: i % w, Y: i / w}
		pts := traceBoundary(labels, w, h, start, l)
		contours = append(contours, Contour{
			Points: pts,
			Box:    boundsOf(pts),
			Pixels: sizes[l],
		})
	}
	return contours
}

// traceBoundary follows the outer boundary of the blob labelled l using
// Moore-neighbour tracing. The walk stops when it is about to leave the
// start pixel towards the same neighbour it took first.
func traceBoundary(labels []int32, w, h int, start image.Point, l int32) []image.Point {
	inside := func(p image.Point) bool {
		return p.X >= 0 && p.Y >= 0 && p.X < w && p.Y < h && labels[p.Y*w+p.X] == l
	}

	pts := []image.Point{start}
	// start is the first blob pixel in raster order, so its west neighbour is background
	back := 4
	cur := start
	var first image.Point
	haveFirst := false
	limit := 4*w*h + 8
	for steps := 0; steps < limit; steps++ {
		found := false
		var next image.Point
		var nextBack int
		for k := 1; k <= 8; k++ {
			d := (back + k) % 8
			cand := cur.Add(ring[d])
			if inside(cand) {
				prev := cur.Add(ring[(d+7)%8])
				next = cand
				nextBack = ringIndex(prev.Sub(cand))
				found = true
				break
			}
		}
		if !found {
			return pts
		}
		if !haveFirst {
			first = next
			haveFirst = true
		} else if cur == start && next == first {
			break
		}
		cur = next
		back = nextBack
		pts = append(pts, cur)
	}
	// the final point is the start pixel again
	if len(pts) > 1 && pts[len(pts)-1] == start {
		pts = pts[:len(pts)-1]
	}
	return pts
}

func boundsOf(pts []image.Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		if p.X < r.Min.X {
			r.Min.X = p.X
		}
		if p.Y < r.Min.Y {
			r.Min.Y = p.Y
		}
		if p.X > r.Max.X {
			r.Max.X = p.X
		}
		if p.Y > r.Max.Y {
			r.Max.Y = p.Y
		}
	}
	r.Max = r.Max.Add(image.Point{X: 1, Y: 1})
	return r
}

// LargestContour returns the index of the contour with the largest area, -1 when empty
func LargestContour(cs []Contour) int {
	best, idx := -1.0, -1
	for i, c := range cs {
		if a := c.Area(); a > best {
			best, idx = a, i
		}
	}
	return idx
}

// SortByArea orders contours by decreasing area, stable for equal areas
func SortByArea(cs []Contour) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Area() > cs[j].Area() })
}
