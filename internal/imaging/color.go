package imaging

import (
	"image"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// RedRange bounds "red" in HSV. Hue is in degrees [0,360), saturation and
// value in [0,1]. Red wraps around zero, so a hue matches when it is at most
// HueLow or at least HueHigh.
type RedRange struct {
	HueLow, HueHigh float64
	MinSat, MinVal  float64
}

// DefaultRedRange matches stamp ink: hue within 20° of pure red on the low
// side or from 320°, saturation and value at least 100/255.
var DefaultRedRange = RedRange{HueLow: 20, HueHigh: 320, MinSat: 100.0 / 255, MinVal: 100.0 / 255}

func (r RedRange) match(c colorful.Color) bool {
	h, s, v := c.Hsv()
	return (h <= r.HueLow || h >= r.HueHigh) && s >= r.MinSat && v >= r.MinVal
}

// RedMask marks pixels whose colour falls in rng with 255
func RedMask(img image.Image, rng RedRange) *image.Gray {
	src := ToNRGBA(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		si := y * src.Stride
		for x := 0; x < w; x++ {
			c := colorful.Color{
				R: float64(src.Pix[si]) / 255,
				G: float64(src.Pix[si+1]) / 255,
				B: float64(src.Pix[si+2]) / 255,
			}
			if src.Pix[si+3] != 0 && rng.match(c) {
				dst.Pix[y*dst.Stride+x] = 255
			}
			si += 4
		}
	}
	return dst
}

// Ratio is the fraction of non-zero mask pixels inside r (clipped)
func Ratio(mask *image.Gray, r image.Rectangle) float64 {
	r = r.Intersect(mask.Rect)
	if r.Empty() {
		return 0
	}
	return float64(CountNonZeroIn(mask, r)) / float64(r.Dx()*r.Dy())
}
