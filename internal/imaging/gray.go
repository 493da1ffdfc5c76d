// Package imaging holds the raster primitives the page pipeline is built
// from. Single-channel work happens on *image.Gray; binary masks are
// *image.Gray holding only 0 and 255. No function mutates its input.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"

	"github.com/disintegration/imaging"
)

// ToGray converts any image to an 8-bit grayscale copy whose bounds start at (0,0).
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			si := src.PixOffset(b.Min.X, b.Min.Y+y)
			di := y * dst.Stride
			for x := 0; x < b.Dx(); x++ {
				r, g, bl := src.Pix[si], src.Pix[si+1], src.Pix[si+2]
				dst.Pix[di+x] = luma(uint32(r), uint32(g), uint32(bl))
				si += 4
			}
		}
	default:
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	}
	return dst
}

// luma uses the ITU-R BT.601 weights, matching color.GrayModel
func luma(r, g, b uint32) uint8 {
	return uint8((19595*r + 38470*g + 7471*b + 1<<15) >> 16)
}

// ToNRGBA returns an NRGBA copy of img with bounds starting at (0,0)
func ToNRGBA(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// Clone copies a gray image
func Clone(src *image.Gray) *image.Gray {
	dst := image.NewGray(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}

// NewFilled returns a w×h gray image set to v
func NewFilled(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	if v != 0 {
		for i := range img.Pix {
			img.Pix[i] = v
		}
	}
	return img
}

// NewWhiteNRGBA returns an opaque white colour canvas
func NewWhiteNRGBA(w, h int) *image.NRGBA {
	return imaging.New(w, h, color.White)
}

// Equal reports whether two gray images have identical size and pixels
func Equal(a, b *image.Gray) bool {
	if a.Rect.Dx() != b.Rect.Dx() || a.Rect.Dy() != b.Rect.Dy() {
		return false
	}
	w, h := a.Rect.Dx(), a.Rect.Dy()
	for y := 0; y < h; y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+w]
		rb := b.Pix[y*b.Stride : y*b.Stride+w]
		if !bytes.Equal(ra, rb) {
			return false
		}
	}
	return true
}

// CountNonZero counts non-zero pixels
func CountNonZero(img *image.Gray) int {
	n := 0
	for _, v := range img.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// CountNonZeroIn counts non-zero pixels inside r, clipped to the image
func CountNonZeroIn(img *image.Gray, r image.Rectangle) int {
	r = r.Intersect(img.Rect)
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := img.Pix[img.PixOffset(r.Min.X, y):img.PixOffset(r.Max.X, y)]
		for _, v := range row {
			if v != 0 {
				n++
			}
		}
	}
	return n
}

// MeanStd returns the mean and population standard deviation of the pixels
func MeanStd(img *image.Gray) (float64, float64) {
	if len(img.Pix) == 0 {
		return 0, 0
	}
	var sum, sq float64
	for _, v := range img.Pix {
		f := float64(v)
		sum += f
		sq += f * f
	}
	n := float64(len(img.Pix))
	mean := sum / n
	variance := sq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// Invert returns 255-v for every pixel
func Invert(src *image.Gray) *image.Gray {
	dst := Clone(src)
	for i, v := range dst.Pix {
		dst.Pix[i] = 255 - v
	}
	return dst
}

// Or combines two masks of equal size
func Or(a, b *image.Gray) *image.Gray {
	dst := Clone(a)
	for i, v := range b.Pix {
		if v > dst.Pix[i] {
			dst.Pix[i] = v
		}
	}
	return dst
}

// And keeps pixels set in both masks
func And(a, b *image.Gray) *image.Gray {
	dst := Clone(a)
	for i, v := range b.Pix {
		if v < dst.Pix[i] {
			dst.Pix[i] = v
		}
	}
	return dst
}

// Subtract computes a-b saturating at zero
func Subtract(a, b *image.Gray) *image.Gray {
	dst := Clone(a)
	for i, v := range b.Pix {
		if dst.Pix[i] > v {
			dst.Pix[i] -= v
		} else {
			dst.Pix[i] = 0
		}
	}
	return dst
}

// AddWeighted computes saturate(a*wa + b*wb + gamma)
func AddWeighted(a *image.Gray, wa float64, b *image.Gray, wb float64, gamma float64) *image.Gray {
	dst := image.NewGray(a.Rect)
	for i := range a.Pix {
		dst.Pix[i] = saturate(float64(a.Pix[i])*wa + float64(b.Pix[i])*wb + gamma)
	}
	return dst
}

// ConvertScale computes saturate(|src*alpha + beta|)
func ConvertScale(src *image.Gray, alpha, beta float64) *image.Gray {
	dst := image.NewGray(src.Rect)
	for i, v := range src.Pix {
		f := float64(v)*alpha + beta
		if f < 0 {
			f = -f
		}
		dst.Pix[i] = saturate(f)
	}
	return dst
}

// Crop copies the part of src inside r, clipped to the image, to a new image at (0,0)
func Crop(src *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(src.Rect)
	dst := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+r.Dx()], src.Pix[src.PixOffset(r.Min.X, r.Min.Y+y):])
	}
	return dst
}

// saturate rounds half away from zero and clamps to [0,255]
func saturate(f float64) uint8 {
	if f <= 0 {
		return 0
	}
	if f >= 255 {
		return 255
	}
	return uint8(f + 0.5)
}

// Decode reads PNG, JPEG, GIF, TIFF or BMP data, applying EXIF orientation.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// EncodePNG serializes img losslessly. The encoding is deterministic for a given image.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WritePNG writes img as PNG
func WritePNG(w io.Writer, img image.Image) error {
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}
