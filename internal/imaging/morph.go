package imaging

import "image"

// Kernel is a structuring element anchored at its centre
type Kernel struct {
	W, H int
	mask []bool
	rect bool
}

// RectKernel returns a full w×h rectangle
func RectKernel(w, h int) Kernel {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	m := make([]bool, w*h)
	for i := range m {
		m[i] = true
	}
	return Kernel{W: w, H: h, mask: m, rect: true}
}

// CrossKernel returns a size×size cross (size is made odd)
func CrossKernel(size int) Kernel {
	if size%2 == 0 {
		size++
	}
	m := make([]bool, size*size)
	c := size / 2
	for i := 0; i < size; i++ {
		m[c*size+i] = true
		m[i*size+c] = true
	}
	return Kernel{W: size, H: size, mask: m}
}

// Dilate replaces each pixel with the maximum under the reflected kernel,
// iterations times, so that Open and Close do not shift even-sized shapes.
// Pixels outside the image do not take part.
func Dilate(src *image.Gray, k Kernel, iterations int) *image.Gray {
	out := src
	for i := 0; i < max(iterations, 1); i++ {
		out = morph(out, k, true)
	}
	if out == src {
		return Clone(src)
	}
	return out
}

// Erode replaces each pixel with the minimum under the kernel, iterations times.
func Erode(src *image.Gray, k Kernel, iterations int) *image.Gray {
	out := src
	for i := 0; i < max(iterations, 1); i++ {
		out = morph(out, k, false)
	}
	if out == src {
		return Clone(src)
	}
	return out
}

// Open is erosion followed by dilation
func Open(src *image.Gray, k Kernel) *image.Gray {
	return Dilate(Erode(src, k, 1), k, 1)
}

// Close is dilation followed by erosion
func Close(src *image.Gray, k Kernel) *image.Gray {
	return Erode(Dilate(src, k, 1), k, 1)
}

func morph(src *image.Gray, k Kernel, dilate bool) *image.Gray {
	if k.rect {
		rows := morphLine(src, k.W, true, dilate)
		return morphLine(rows, k.H, false, dilate)
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	ax, ay := k.W/2, k.H/2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var v uint8
			if !dilate {
				v = 255
			}
			for ky := 0; ky < k.H; ky++ {
				sy := y + ky - ay
				if dilate {
					sy = y - ky + ay
				}
				if sy < 0 || sy >= h {
					continue
				}
				for kx := 0; kx < k.W; kx++ {
					if !k.mask[ky*k.W+kx] {
						continue
					}
					sx := x + kx - ax
					if dilate {
						sx = x - kx + ax
					}
					if sx < 0 || sx >= w {
						continue
					}
					p := src.Pix[sy*src.Stride+sx]
					if dilate && p > v {
						v = p
					} else if !dilate && p < v {
						v = p
					}
				}
			}
			dst.Pix[y*dst.Stride+x] = v
		}
	}
	return dst
}

// morphLine runs a 1-D max/min filter of the given length along rows or columns
func morphLine(src *image.Gray, length int, horizontal, dilate bool) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	anchor := length / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var v uint8
			if !dilate {
				v = 255
			}
			for i := 0; i < length; i++ {
				off := i - anchor
				if dilate {
					off = -off
				}
				sx, sy := x, y
				if horizontal {
					sx = x + off
					if sx < 0 || sx >= w {
						continue
					}
				} else {
					sy = y + off
					if sy < 0 || sy >= h {
						continue
					}
				}
				p := src.Pix[sy*src.Stride+sx]
				if dilate && p > v {
					v = p
				} else if !dilate && p < v {
					v = p
				}
			}
			dst.Pix[y*dst.Stride+x] = v
		}
	}
	return dst
}
