package imaging

import (
	"image"
	"math"
)

// DistanceTransform returns, for every non-zero pixel of mask, the exact
// Euclidean distance to the nearest zero pixel (Felzenszwalb-Huttenlocher).
// Zero pixels get 0. A mask without zero pixels yields +Inf everywhere.
func DistanceTransform(mask *image.Gray) []float64 {
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	inf := math.Inf(1)
	d := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask.Pix[y*mask.Stride+x] != 0 {
				d[y*w+x] = inf
			}
		}
	}

	n := max(w, h)
	f := make([]float64, n)
	out := make([]float64, n)
	v := make([]int, n)
	z := make([]float64, n+1)

	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			f[y] = d[y*w+x]
		}
		edt1D(f[:h], out[:h], v, z)
		for y := 0; y < h; y++ {
			d[y*w+x] = out[y]
		}
	}
	for y := 0; y < h; y++ {
		copy(f[:w], d[y*w:y*w+w])
		edt1D(f[:w], out[:w], v, z)
		for x := 0; x < w; x++ {
			d[y*w+x] = math.Sqrt(out[x])
		}
	}
	return d
}

// edt1D computes the squared distance transform of a sampled function
func edt1D(f, out []float64, v []int, z []float64) {
	n := len(f)
	k := -1
	for q := 0; q < n; q++ {
		if math.IsInf(f[q], 1) {
			continue
		}
		if k < 0 {
			k = 0
			v[0] = q
			z[0] = math.Inf(-1)
			z[1] = math.Inf(1)
			continue
		}
		s := intersect(f, v[k], q)
		for s <= z[k] {
			k--
			s = intersect(f, v[k], q)
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}
	if k < 0 {
		for i := range out {
			out[i] = math.Inf(1)
		}
		return
	}
	j := 0
	for q := 0; q < n; q++ {
		for z[j+1] < float64(q) {
			j++
		}
		dq := float64(q - v[j])
		out[q] = dq*dq + f[v[j]]
	}
}

func intersect(f []float64, p, q int) float64 {
	return ((f[q] + float64(q*q)) - (f[p] + float64(p*p))) / float64(2*q-2*p)
}

// Skeletonize thins a binary mask to its morphological skeleton by repeated
// erosion with a 3×3 cross, collecting what each opening removes.
func Skeletonize(mask *image.Gray) *image.Gray {
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	skel := image.NewGray(image.Rect(0, 0, w, h))
	cross := CrossKernel(3)
	cur := mask
	for i := 0; i <= max(w, h); i++ {
		eroded := Erode(cur, cross, 1)
		opened := Dilate(eroded, cross, 1)
		skel = Or(skel, Subtract(cur, opened))
		cur = eroded
		if CountNonZero(cur) == 0 {
			break
		}
	}
	return skel
}
