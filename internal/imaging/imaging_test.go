package imaging

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func halfAndHalf(w, h int, left, right uint8) *image.Gray {
	img := NewFilled(w, h, right)
	FillRect(img, image.Rect(0, 0, w/2, h), color.Gray{Y: left})
	return img
}

func TestGrayHelpers(t *testing.T) {
	img := halfAndHalf(10, 4, 50, 200)

	mean, std := MeanStd(img)
	assert.InDelta(t, 125.0, mean, 1e-9)
	assert.InDelta(t, 75.0, std, 1e-9)

	inv := Invert(img)
	assert.Equal(t, uint8(205), inv.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(50), img.GrayAt(0, 0).Y, "input is not mutated")

	crop := Crop(img, image.Rect(3, 1, 7, 3))
	assert.Equal(t, image.Rect(0, 0, 4, 2), crop.Rect)
	assert.Equal(t, uint8(50), crop.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(200), crop.GrayAt(3, 1).Y)

	assert.Equal(t, uint8(255), ConvertScale(img, 2, 0).GrayAt(9, 0).Y)
	assert.Equal(t, uint8(100), ConvertScale(img, 2, 0).GrayAt(0, 0).Y)
	assert.True(t, Equal(img, Clone(img)))
}

func TestOtsuSplitsBimodalImage(t *testing.T) {
	img := halfAndHalf(20, 10, 50, 200)
	level := OtsuThreshold(img)
	assert.GreaterOrEqual(t, level, uint8(50))
	assert.Less(t, level, uint8(200))

	mask := OtsuBinarize(img, true)
	assert.Equal(t, 100, CountNonZero(mask))
	assert.Equal(t, uint8(255), mask.GrayAt(0, 0).Y, "dark half is foreground when inverted")

	uniform := NewFilled(8, 8, 255)
	assert.Zero(t, CountNonZero(OtsuBinarize(uniform, true)))
}

func TestAdaptiveThresholdUniformImage(t *testing.T) {
	uniform := NewFilled(30, 30, 255)
	assert.Zero(t, CountNonZero(AdaptiveThreshold(uniform, 11, 2, true)))
	assert.Equal(t, 900, CountNonZero(AdaptiveThreshold(uniform, 11, 2, false)))
}

func TestCannyFindsStepEdge(t *testing.T) {
	assert.Zero(t, CountNonZero(Canny(NewFilled(20, 20, 128), 50, 150)))

	edges := Canny(halfAndHalf(20, 20, 0, 255), 50, 150)
	assert.Positive(t, CountNonZero(edges))
	for y := 2; y < 18; y++ {
		assert.Zero(t, edges.GrayAt(2, y).Y)
		assert.Zero(t, edges.GrayAt(17, y).Y)
	}
}

func TestMorphology(t *testing.T) {
	dot := NewFilled(9, 9, 0)
	dot.SetGray(4, 4, color.Gray{Y: 255})

	assert.Equal(t, 9, CountNonZero(Dilate(dot, RectKernel(3, 3), 1)))
	assert.Equal(t, 25, CountNonZero(Dilate(dot, RectKernel(3, 3), 2)))
	assert.Equal(t, 5, CountNonZero(Dilate(dot, CrossKernel(3), 1)))
	assert.Zero(t, CountNonZero(Open(dot, RectKernel(2, 2))), "opening removes isolated pixels")

	bar := NewFilled(20, 20, 0)
	FillRect(bar, image.Rect(2, 8, 18, 12), color.Gray{Y: 255})
	assert.Equal(t, CountNonZero(bar), CountNonZero(Open(bar, RectKernel(2, 2))))
	assert.Zero(t, CountNonZero(Erode(bar, RectKernel(1, 5), 1)))
	assert.Equal(t, 16*4, CountNonZero(bar), "input untouched")
}

func TestExternalContours(t *testing.T) {
	mask := NewFilled(60, 60, 0)
	FillRect(mask, image.Rect(10, 10, 30, 30), color.Gray{Y: 255})
	FillRect(mask, image.Rect(40, 40, 43, 43), color.Gray{Y: 255})

	contours := ExternalContours(mask)
	require.Len(t, contours, 2)

	square := contours[0]
	assert.Equal(t, image.Rect(10, 10, 30, 30), square.Box)
	assert.Equal(t, 400, square.Pixels)
	assert.InDelta(t, 361.0, square.Area(), 1e-9)
	assert.InDelta(t, 76.0, square.Perimeter(), 1e-9)
	assert.Equal(t, 0, LargestContour(contours))

	approx := ApproxPolyDP(square.Pts(), 0.02*square.Perimeter())
	assert.Len(t, approx, 4)
}

func TestExternalContoursIgnoresHoles(t *testing.T) {
	ring := NewFilled(100, 100, 0)
	DrawRing(ring, 50, 50, 20, 4, color.Gray{Y: 255})
	FillCircle(ring, 50, 50, 3, color.Gray{Y: 255})

	contours := ExternalContours(ring)
	require.Len(t, contours, 1, "the dot inside the ring is not an external contour")
	c := contours[0]
	assert.Greater(t, c.Pixels, CountNonZero(ring))

	circularity := 4 * math.Pi * c.Area() / (c.Perimeter() * c.Perimeter())
	assert.Greater(t, circularity, 0.8)
}

func TestSinglePixelContour(t *testing.T) {
	mask := NewFilled(5, 5, 0)
	mask.SetGray(2, 2, color.Gray{Y: 255})
	contours := ExternalContours(mask)
	require.Len(t, contours, 1)
	assert.Equal(t, []image.Point{{2, 2}}, contours[0].Points)
	assert.Zero(t, contours[0].Area())
}

func TestMinAreaRectAndFoldAngle(t *testing.T) {
	want := RotatedRect{Center: Pt{50, 50}, W: 40, H: 10, Angle: 30}
	corners := want.Corners()

	got := MinAreaRect(corners[:])
	assert.InDelta(t, 400.0, got.Area(), 1e-6)
	assert.InDelta(t, 50.0, got.Center.X, 1e-6)
	assert.InDelta(t, 50.0, got.Center.Y, 1e-6)
	assert.InDelta(t, 30.0, FoldAngle(got.Angle), 1e-6)

	testCases := []struct {
		in, want float64
	}{
		{0, 0}, {30, 30}, {45, -45}, {-45, -45}, {-60, 30}, {120, 30}, {89, -1}, {-90, 0}, {180, 0},
	}
	for _, tc := range testCases {
		assert.InDelta(t, tc.want, FoldAngle(tc.in), 1e-9, "fold %v", tc.in)
	}
}

func TestOrderQuad(t *testing.T) {
	q := OrderQuad([4]Pt{{100, 80}, {0, 0}, {0, 80}, {100, 0}})
	assert.Equal(t, Quad{{0, 0}, {100, 0}, {100, 80}, {0, 80}}, q)
	assert.InDelta(t, 8000.0, q.Area(), 1e-9)
	w, h := q.Size()
	assert.Equal(t, 100.0, w)
	assert.Equal(t, 80.0, h)
}

func TestHoughLinesPFindsHorizontalLine(t *testing.T) {
	edges := NewFilled(200, 100, 0)
	DrawLine(edges, 20, 50, 180, 50, 1, color.Gray{Y: 255})

	segments := HoughLinesP(edges, HoughLineOptions{Threshold: 50, MinLength: 50, MaxGap: 5})
	require.NotEmpty(t, segments)
	assert.GreaterOrEqual(t, segments[0].Length(), 150.0)
	assert.InDelta(t, 0, math.Sin(segments[0].AngleDeg()*math.Pi/180), 0.02)

	assert.Empty(t, HoughLinesP(NewFilled(50, 50, 0), HoughLineOptions{Threshold: 10}))
}

func TestHoughLinesPIsDeterministic(t *testing.T) {
	edges := NewFilled(160, 160, 0)
	DrawLine(edges, 10, 20, 150, 60, 1, color.Gray{Y: 255})
	DrawLine(edges, 10, 100, 150, 100, 1, color.Gray{Y: 255})
	opt := HoughLineOptions{Threshold: 40, MinLength: 40, MaxGap: 10}
	assert.Equal(t, HoughLinesP(edges, opt), HoughLinesP(edges, opt))
}

func TestHoughCirclesFindsRing(t *testing.T) {
	img := NewFilled(200, 200, 255)
	DrawRing(img, 100, 100, 50, 4, color.Gray{Y: 0})

	circles := HoughCircles(img, HoughCircleOptions{MinDist: 50, CannyHigh: 100, AccThreshold: 30, MinRadius: 30, MaxRadius: 150})
	require.NotEmpty(t, circles)
	assert.InDelta(t, 100.0, circles[0].X, 3)
	assert.InDelta(t, 100.0, circles[0].Y, 3)
	assert.InDelta(t, 50.0, circles[0].R, 4)

	assert.Empty(t, HoughCircles(NewFilled(200, 200, 255), HoughCircleOptions{MinDist: 50, CannyHigh: 100, AccThreshold: 30, MinRadius: 30, MaxRadius: 150}))
}

func TestRotateClockwiseRoundTrip(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	FillRect(img, img.Rect, color.White)
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})

	rotated := RotateClockwise(img, 90)
	assert.Equal(t, image.Rect(0, 0, 2, 3), rotated.Rect)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, rotated.NRGBAAt(1, 0), "top-left moves to top-right")

	back := RotateClockwise(rotated, 270)
	assert.Equal(t, img.Pix, back.Pix)
	assert.Equal(t, img.Pix, RotateClockwise(RotateClockwise(img, 180), 180).Pix)
}

func TestRotateExpandsCanvas(t *testing.T) {
	img := NewFilled(40, 20, 0)
	rotated := Rotate(img, 90, color.White)
	assert.Equal(t, 20, rotated.Rect.Dx())
	assert.Equal(t, 40, rotated.Rect.Dy())

	tilted := Rotate(img, 10, color.White)
	assert.Equal(t, int(math.Round(20*math.Sin(10*math.Pi/180)+40*math.Cos(10*math.Pi/180))), tilted.Rect.Dx())
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, tilted.NRGBAAt(0, 0), "uncovered corners are filled")
}

func TestWarpPerspectiveIdentity(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 16, 12))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 3)
	}
	q := Quad{{0, 0}, {15, 0}, {15, 11}, {0, 11}}
	out, err := WarpPerspective(img, q, 16, 12)
	require.NoError(t, err)
	assert.True(t, Equal(img, ToGray(out)))

	_, err = WarpPerspective(img, Quad{{0, 0}, {0, 0}, {0, 0}, {0, 0}}, 16, 12)
	assert.ErrorIs(t, err, ErrSingular)
}

func TestDistanceTransform(t *testing.T) {
	mask := NewFilled(11, 11, 0)
	FillRect(mask, image.Rect(3, 3, 8, 8), color.Gray{Y: 255})
	d := DistanceTransform(mask)
	assert.Equal(t, 0.0, d[0])
	assert.InDelta(t, 1.0, d[3*11+3], 1e-9)
	assert.InDelta(t, 3.0, d[5*11+5], 1e-9)
}

func TestSkeletonizeThinsStrokes(t *testing.T) {
	bar := NewFilled(40, 20, 0)
	FillRect(bar, image.Rect(5, 7, 35, 12), color.Gray{Y: 255})
	skel := Skeletonize(bar)
	assert.Positive(t, CountNonZero(skel))
	assert.Less(t, CountNonZero(skel), CountNonZero(bar)/2)
	assert.Zero(t, CountNonZero(Skeletonize(NewFilled(10, 10, 0))))
}

func TestNLMeans(t *testing.T) {
	uniform := NewFilled(30, 20, 90)
	assert.True(t, Equal(uniform, NLMeans(uniform, 10, 7, 21)))

	noisy := NewFilled(40, 30, 200)
	for i := range noisy.Pix {
		if i%7 == 0 {
			noisy.Pix[i] = 170
		}
	}
	a := NLMeans(noisy, 10, 7, 11)
	b := NLMeans(noisy, 10, 7, 11)
	assert.True(t, Equal(a, b), "output is deterministic")
	_, stdIn := MeanStd(noisy)
	_, stdOut := MeanStd(a)
	assert.Less(t, stdOut, stdIn)
}

func TestRedMask(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	FillRect(img, image.Rect(0, 0, 5, 10), color.NRGBA{R: 220, G: 20, B: 20, A: 255})
	FillRect(img, image.Rect(5, 0, 10, 5), color.NRGBA{B: 220, A: 255})
	FillRect(img, image.Rect(5, 5, 10, 10), color.NRGBA{R: 60, A: 255})

	mask := RedMask(img, DefaultRedRange)
	assert.Equal(t, 50, CountNonZero(mask), "dark red and blue are excluded")
	assert.Equal(t, 1.0, Ratio(mask, image.Rect(0, 0, 5, 10)))
	assert.Equal(t, 0.5, Ratio(mask, mask.Rect))
}

func TestUpscale(t *testing.T) {
	small := NewFilled(100, 50, 255)
	up := Upscale(small, 600)
	assert.Equal(t, 1200, up.Bounds().Dx())
	assert.Equal(t, 600, up.Bounds().Dy())

	big := NewFilled(700, 800, 255)
	assert.Same(t, big, Upscale(big, 600))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	img := halfAndHalf(8, 8, 10, 240)
	data, err := EncodePNG(img)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, Equal(img, ToGray(decoded)))

	_, err = Decode([]byte("not an image"))
	assert.Error(t, err)
}
