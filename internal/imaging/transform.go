package imaging

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// ErrSingular is returned when a perspective transform cannot be solved
var ErrSingular = errors.New("singular transform")

// RotateClockwise rotates by a multiple of 90° clockwise without resampling.
// Other angles return a copy.
func RotateClockwise(img image.Image, degrees int) *image.NRGBA {
	switch ((degrees % 360) + 360) % 360 {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return imaging.Clone(img)
	}
}

// Rotate turns img counter-clockwise by deg degrees about its centre using
// bilinear sampling. The canvas grows to hold the whole rotated page and the
// uncovered area is filled with fill.
func Rotate(img image.Image, deg float64, fill color.Color) *image.NRGBA {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	rad := deg * math.Pi / 180
	alpha, beta := math.Cos(rad), math.Sin(rad)
	nw := int(math.Round(h*math.Abs(beta) + w*math.Abs(alpha)))
	nh := int(math.Round(h*math.Abs(alpha) + w*math.Abs(beta)))
	nw, nh = max(nw, 1), max(nh, 1)

	dst := imaging.New(nw, nh, fill)
	cx, cy := float64(b.Min.X)+w/2, float64(b.Min.Y)+h/2
	ncx, ncy := float64(nw)/2, float64(nh)/2
	s2d := f64.Aff3{
		alpha, beta, ncx - alpha*cx - beta*cy,
		-beta, alpha, ncy + beta*cx - alpha*cy,
	}
	draw.BiLinear.Transform(dst, s2d, img, b, draw.Over, nil)
	return dst
}

// homography solves for the 3×3 matrix (h33 = 1) mapping each from[i] to to[i]
func homography(from, to [4]Pt) ([9]float64, error) {
	var a [8][9]float64
	for i := 0; i < 4; i++ {
		x, y := from[i].X, from[i].Y
		u, v := to[i].X, to[i].Y
		a[2*i] = [9]float64{x, y, 1, 0, 0, 0, -u * x, -u * y, u}
		a[2*i+1] = [9]float64{0, 0, 0, x, y, 1, -v * x, -v * y, v}
	}
	// Gaussian elimination with partial pivoting on the augmented system
	for col := 0; col < 8; col++ {
		pivot := col
		for r := col + 1; r < 8; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-10 {
			return [9]float64{}, ErrSingular
		}
		a[col], a[pivot] = a[pivot], a[col]
		for r := 0; r < 8; r++ {
			if r == col {
				continue
			}
			f := a[r][col] / a[col][col]
			for k := col; k < 9; k++ {
				a[r][k] -= f * a[col][k]
			}
		}
	}
	var m [9]float64
	for i := 0; i < 8; i++ {
		m[i] = a[i][8] / a[i][i]
	}
	m[8] = 1
	return m, nil
}

// WarpPerspective maps the quadrilateral q of img onto a w×h upright
// rectangle with bilinear sampling.
func WarpPerspective(img image.Image, q Quad, w, h int) (*image.NRGBA, error) {
	if w < 1 || h < 1 {
		return nil, ErrSingular
	}
	dstQuad := [4]Pt{{0, 0}, {float64(w - 1), 0}, {float64(w - 1), float64(h - 1)}, {0, float64(h - 1)}}
	// inverse mapping: destination pixel to source position
	m, err := homography(dstQuad, [4]Pt(q))
	if err != nil {
		return nil, err
	}
	src := imaging.Clone(img)
	sw, sh := src.Rect.Dx(), src.Rect.Dy()
	dst := imaging.New(w, h, color.White)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx, fy := float64(x), float64(y)
			den := m[6]*fx + m[7]*fy + m[8]
			if den == 0 {
				continue
			}
			sx := (m[0]*fx + m[1]*fy + m[2]) / den
			sy := (m[3]*fx + m[4]*fy + m[5]) / den
			if sx < -0.5 || sy < -0.5 || sx > float64(sw)-0.5 || sy > float64(sh)-0.5 {
				continue
			}
			sampleBilinear(src, sx, sy, dst.Pix[y*dst.Stride+4*x:y*dst.Stride+4*x+4])
		}
	}
	return dst, nil
}

func sampleBilinear(src *image.NRGBA, x, y float64, out []uint8) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	fx, fy := x-float64(x0), y-float64(y0)
	clampX := func(v int) int { return min(max(v, 0), w-1) }
	clampY := func(v int) int { return min(max(v, 0), h-1) }
	xa, xb := clampX(x0), clampX(x0+1)
	ya, yb := clampY(y0), clampY(y0+1)
	for c := 0; c < 4; c++ {
		p00 := float64(src.Pix[ya*src.Stride+4*xa+c])
		p10 := float64(src.Pix[ya*src.Stride+4*xb+c])
		p01 := float64(src.Pix[yb*src.Stride+4*xa+c])
		p11 := float64(src.Pix[yb*src.Stride+4*xb+c])
		top := p00 + (p10-p00)*fx
		bot := p01 + (p11-p01)*fx
		out[c] = saturate(top + (bot-top)*fy)
	}
}

// Upscale enlarges img with Lanczos resampling so its shorter side is at
// least minSide. Images already large enough are returned as is.
func Upscale(img image.Image, minSide int) image.Image {
	b := img.Bounds()
	short := min(b.Dx(), b.Dy())
	if short == 0 || short >= minSide {
		return img
	}
	scale := float64(minSide) / float64(short)
	nw := int(math.Round(float64(b.Dx()) * scale))
	nh := int(math.Round(float64(b.Dy()) * scale))
	return imaging.Resize(img, nw, nh, imaging.Lanczos)
}
