package imaging

import (
	"image"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// NLMeans denoises with non-local means: every pixel becomes the weighted
// mean of the pixels in its searchSize window, weighted by
// exp(-d/h²) where d is the mean squared difference between the two
// templateSize patches. Patch distances are computed per offset with
// integral images. Rows are split into bands processed concurrently; each
// pixel is accumulated in a fixed order so the output is deterministic.
func NLMeans(src *image.Gray, h float64, templateSize, searchSize int) *image.Gray {
	if h <= 0 {
		return Clone(src)
	}
	w, ht := src.Rect.Dx(), src.Rect.Dy()
	if w == 0 || ht == 0 {
		return Clone(src)
	}
	tr := max(templateSize/2, 0)
	sr := max(searchSize/2, 0)
	m := tr + sr

	pw := w + 2*m
	padded := make([]int32, pw*(ht+2*m))
	for y := -m; y < ht+m; y++ {
		sy := reflect101(y, ht)
		for x := -m; x < w+m; x++ {
			padded[(y+m)*pw+x+m] = int32(src.Pix[sy*src.Stride+reflect101(x, w)])
		}
	}

	area := float64((2*tr + 1) * (2*tr + 1))
	lut := make([]float64, 255*255+1)
	for i := range lut {
		lut[i] = math.Exp(-float64(i) / (h * h))
	}

	dst := image.NewGray(image.Rect(0, 0, w, ht))
	bands := min(runtime.NumCPU(), ht)
	step := (ht + bands - 1) / bands
	var g errgroup.Group
	for y0 := 0; y0 < ht; y0 += step {
		y0 := y0
		y1 := min(y0+step, ht)
		g.Go(func() error {
			nlmBand(padded, pw, m, tr, sr, w, y0, y1, area, lut, dst)
			return nil
		})
	}
	_ = g.Wait()
	return dst
}

func nlmBand(padded []int32, pw, m, tr, sr, w, y0, y1 int, area float64, lut []float64, dst *image.Gray) {
	rows := y1 - y0
	// integral image over the band plus the template margin, one extra row and column of zeros
	iw := w + 2*tr + 1
	ih := rows + 2*tr + 1
	integral := make([]int64, iw*ih)
	sumW := make([]float64, rows*w)
	sumV := make([]float64, rows*w)

	for oy := -sr; oy <= sr; oy++ {
		for ox := -sr; ox <= sr; ox++ {
			for y := 1; y < ih; y++ {
				py := y0 + y - 1 - tr + m
				var rowSum int64
				for x := 1; x < iw; x++ {
					px := x - 1 - tr + m
					d := int64(padded[py*pw+px] - padded[(py+oy)*pw+px+ox])
					rowSum += d * d
					integral[y*iw+x] = integral[(y-1)*iw+x] + rowSum
				}
			}
			k := 2*tr + 1
			for y := 0; y < rows; y++ {
				for x := 0; x < w; x++ {
					ssd := integral[(y+k)*iw+x+k] - integral[y*iw+x+k] - integral[(y+k)*iw+x] + integral[y*iw+x]
					idx := int(float64(ssd)/area + 0.5)
					if idx >= len(lut) {
						idx = len(lut) - 1
					}
					wt := lut[idx]
					i := y*w + x
					sumW[i] += wt
					sumV[i] += wt * float64(padded[(y0+y+m+oy)*pw+x+m+ox])
				}
			}
		}
	}
	for y := 0; y < rows; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			dst.Pix[(y0+y)*dst.Stride+x] = saturate(sumV[i] / sumW[i])
		}
	}
}
