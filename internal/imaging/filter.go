package imaging

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// GaussianKernel returns a normalized 1-D kernel of the given odd size. A
// non-positive sigma is derived from the size the way OpenCV does it.
func GaussianKernel(size int, sigma float64) []float64 {
	if size < 1 {
		size = 1
	}
	if size%2 == 0 {
		size++
	}
	if sigma <= 0 {
		sigma = 0.3*(float64(size-1)*0.5-1) + 0.8
	}
	k := make([]float64, size)
	half := size / 2
	var sum float64
	for i := range k {
		d := float64(i - half)
		k[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// reflect101 maps an out-of-range coordinate back into [0,n) mirroring
// around the edge pixel (OpenCV's default border).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// convolveSeparable applies kx along rows then ky along columns in float64
func convolveSeparable(src *image.Gray, kx, ky []float64) []float64 {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	tmp := make([]float64, w*h)
	hx := len(kx) / 2
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for x := 0; x < w; x++ {
			var acc float64
			for i, kv := range kx {
				acc += kv * float64(row[reflect101(x+i-hx, w)])
			}
			tmp[y*w+x] = acc
		}
	}
	out := make([]float64, w*h)
	hy := len(ky) / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for i, kv := range ky {
				acc += kv * tmp[reflect101(y+i-hy, h)*w+x]
			}
			out[y*w+x] = acc
		}
	}
	return out
}

func fromFloat(vals []float64, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range vals {
		dst.Pix[i] = saturate(v)
	}
	return dst
}

// GaussianBlur blurs with a square kernel of the given size (made odd).
// Sizes below 3 return a copy.
func GaussianBlur(src *image.Gray, size int) *image.Gray {
	if size < 3 {
		return Clone(src)
	}
	k := GaussianKernel(size, 0)
	return fromFloat(convolveSeparable(src, k, k), src.Rect.Dx(), src.Rect.Dy())
}

// GaussianBlurSigma blurs with the given sigma using imaging's separable filter.
func GaussianBlurSigma(src *image.Gray, sigma float64) *image.Gray {
	if sigma <= 0 {
		return Clone(src)
	}
	return ToGray(imaging.Blur(src, sigma))
}

// UnsharpMask computes amount*src - (amount-1)*blur(src, sigma)
func UnsharpMask(src *image.Gray, amount, sigma float64) *image.Gray {
	blurred := GaussianBlurSigma(src, sigma)
	return AddWeighted(src, amount, blurred, -(amount - 1), 0)
}

// Threshold sets pixels above t to 255 (0 when inverse)
func Threshold(src *image.Gray, t uint8, inverse bool) *image.Gray {
	dst := image.NewGray(src.Rect)
	on, off := uint8(255), uint8(0)
	if inverse {
		on, off = 0, 255
	}
	for i, v := range src.Pix {
		if v > t {
			dst.Pix[i] = on
		} else {
			dst.Pix[i] = off
		}
	}
	return dst
}

// OtsuThreshold returns the threshold maximizing between-class variance.
// An image with a single grey level yields 0, so a blank white page
// thresholds to an empty inverted mask.
func OtsuThreshold(src *image.Gray) uint8 {
	var hist [256]int
	for _, v := range src.Pix {
		hist[v]++
	}
	total := len(src.Pix)
	if total == 0 {
		return 0
	}

	var sum float64
	levels := 0
	for i, c := range hist {
		sum += float64(i * c)
		if c > 0 {
			levels++
		}
	}
	if levels <= 1 {
		return 0
	}

	var sumB float64
	wB := 0
	best := 0.0
	threshold := 0
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = t
		}
	}
	return uint8(threshold)
}

// OtsuBinarize thresholds with the Otsu level
func OtsuBinarize(src *image.Gray, inverse bool) *image.Gray {
	return Threshold(src, OtsuThreshold(src), inverse)
}

// AdaptiveThreshold compares each pixel with the Gaussian-weighted mean of
// its blockSize neighbourhood minus c. Pixels above the local level become
// 255 (0 when inverse).
func AdaptiveThreshold(src *image.Gray, blockSize int, c float64, inverse bool) *image.Gray {
	if blockSize < 3 {
		blockSize = 3
	}
	if blockSize%2 == 0 {
		blockSize++
	}
	k := GaussianKernel(blockSize, 0)
	mean := convolveSeparable(src, k, k)
	dst := image.NewGray(src.Rect)
	on, off := uint8(255), uint8(0)
	if inverse {
		on, off = 0, 255
	}
	for i, v := range src.Pix {
		// The local level is rounded like an 8-bit blurred image would be.
		level := float64(saturate(mean[i])) - c
		if float64(v) > level {
			dst.Pix[i] = on
		} else {
			dst.Pix[i] = off
		}
	}
	return dst
}

// Sobel returns the 3×3 horizontal and vertical derivatives
func Sobel(src *image.Gray) (gx, gy []float64) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	gx = make([]float64, w*h)
	gy = make([]float64, w*h)
	at := func(x, y int) float64 {
		return float64(src.Pix[reflect101(y, h)*src.Stride+reflect101(x, w)])
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			tl, tc, tr := at(x-1, y-1), at(x, y-1), at(x+1, y-1)
			ml, mr := at(x-1, y), at(x+1, y)
			bl, bc, br := at(x-1, y+1), at(x, y+1), at(x+1, y+1)
			gx[y*w+x] = (tr + 2*mr + br) - (tl + 2*ml + bl)
			gy[y*w+x] = (bl + 2*bc + br) - (tl + 2*tc + tr)
		}
	}
	return gx, gy
}

// Canny detects edges with L1 gradient magnitude, non-maximum suppression
// and hysteresis between low and high.
func Canny(src *image.Gray, low, high float64) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w < 3 || h < 3 {
		return dst
	}
	if low > high {
		low, high = high, low
	}
	gx, gy := Sobel(src)
	mag := make([]float64, w*h)
	for i := range mag {
		mag[i] = math.Abs(gx[i]) + math.Abs(gy[i])
	}

	const (
		none   = 0
		weak   = 1
		strong = 2
	)
	state := make([]uint8, w*h)
	tan22 := math.Tan(22.5 * math.Pi / 180)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m <= low {
				continue
			}
			ax, ay := math.Abs(gx[i]), math.Abs(gy[i])
			var n1, n2 float64
			switch {
			case ay <= ax*tan22:
				n1, n2 = mag[i-1], mag[i+1]
			case ax <= ay*tan22:
				n1, n2 = mag[i-w], mag[i+w]
			case (gx[i] > 0) == (gy[i] > 0):
				n1, n2 = mag[i-w-1], mag[i+w+1]
			default:
				n1, n2 = mag[i-w+1], mag[i+w-1]
			}
			if m > n1 && m >= n2 {
				if m > high {
					state[i] = strong
				} else {
					state[i] = weak
				}
			}
		}
	}

	stack := make([]int, 0, 1024)
	for i, s := range state {
		if s == strong {
			dst.Pix[i] = 255
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == weak && dst.Pix[j] == 0 {
					dst.Pix[j] = 255
					stack = append(stack, j)
				}
			}
		}
	}
	return dst
}
