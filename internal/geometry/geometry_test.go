package geometry

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raspverry/ai-ocr/internal/imaging"
)

func whitePage(w, h int) *image.NRGBA {
	return imaging.NewWhiteNRGBA(w, h)
}

// drawLines draws parallel text-line stand-ins of the given angle (degrees,
// y down) starting at x=40 every 60 px.
func drawLines(img *image.NRGBA, angle float64, startY, count int, length float64) {
	rad := angle * math.Pi / 180
	for i := 0; i < count; i++ {
		x1, y1 := 40, startY+60*i
		x2 := x1 + int(math.Round(length*math.Cos(rad)))
		y2 := y1 + int(math.Round(length*math.Sin(rad)))
		imaging.DrawLine(img, x1, y1, x2, y2, 3, color.Black)
	}
}

func TestOrientationFromBucket(t *testing.T) {
	testCases := []struct {
		bucket float64
		want   int
	}{
		{0, 0}, {10, 0}, {-10, 0}, {15, 0}, {-25, 0},
		{40, 90}, {45, 90}, {50, 90},
		{-40, 270}, {-45, 270}, {-50, 270},
		{80, 180}, {-85, 180}, {90, 180},
		{60, 0}, {-70, 0},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, orientationFromBucket(tc.bucket), "bucket %v", tc.bucket)
	}
}

func TestMostFrequentPrefersFirstOnTies(t *testing.T) {
	assert.Equal(t, 5.0, mostFrequent([]float64{5, 0, 0, 5}))
	assert.Equal(t, 0.0, mostFrequent([]float64{5, 0, 0}))
}

func TestDetectOrientation(t *testing.T) {
	t.Run("blank page", func(t *testing.T) {
		assert.Equal(t, 0, DetectOrientation(imaging.NewFilled(200, 200, 255)))
	})

	t.Run("horizontal lines", func(t *testing.T) {
		page := whitePage(400, 400)
		drawLines(page, 0, 40, 5, 250)
		assert.Equal(t, 0, DetectOrientation(imaging.ToGray(page)))
	})

	t.Run("lines at +40 degrees", func(t *testing.T) {
		page := whitePage(400, 400)
		drawLines(page, 40, 20, 5, 150)
		assert.Equal(t, 90, DetectOrientation(imaging.ToGray(page)))
	})

	t.Run("lines at -40 degrees", func(t *testing.T) {
		page := whitePage(400, 400)
		drawLines(page, -40, 120, 5, 150)
		assert.Equal(t, 270, DetectOrientation(imaging.ToGray(page)))
	})
}

func TestCorrectOrientationRoundTrip(t *testing.T) {
	page := whitePage(30, 20)
	imaging.FillRect(page, image.Rect(0, 0, 5, 5), color.Black)

	assert.Same(t, page, CorrectOrientation(page, 0))
	assert.Same(t, page, CorrectOrientation(page, 45), "non right-angle values are ignored")

	turned := CorrectOrientation(page, 90)
	assert.Equal(t, image.Rect(0, 0, 20, 30), turned.Bounds())
	back := CorrectOrientation(turned, 270).(*image.NRGBA)
	assert.Equal(t, page.Pix, back.Pix)

	flipped := CorrectOrientation(CorrectOrientation(page, 180), 180).(*image.NRGBA)
	assert.Equal(t, page.Pix, flipped.Pix)
}

func TestSkewOnAlignedPageIsNoOp(t *testing.T) {
	page := whitePage(400, 300)
	for y := 60; y <= 240; y += 60 {
		imaging.DrawLine(page, 50, y, 350, y, 3, color.Black)
	}
	angle := DetectSkew(imaging.ToGray(page), DefaultSkewOptions())
	assert.Equal(t, 0.0, angle)
	assert.Same(t, page, CorrectSkew(page, angle))
	assert.Same(t, page, CorrectSkew(page, 0.05))

	assert.Equal(t, 0.0, DetectSkew(imaging.NewFilled(300, 300, 255), DefaultSkewOptions()))
}

func TestSkewDetectionAndCorrection(t *testing.T) {
	page := whitePage(400, 300)
	rise := int(math.Round(300 * math.Tan(3*math.Pi/180)))
	for y := 60; y <= 240; y += 60 {
		imaging.DrawLine(page, 50, y, 350, y-rise, 3, color.Black)
	}

	angle := DetectSkew(imaging.ToGray(page), DefaultSkewOptions())
	assert.InDelta(t, -3.0, angle, 0.6, "lines rising to the right give a negative angle")

	corrected := CorrectSkew(page, angle)
	assert.Greater(t, corrected.Bounds().Dx(), page.Bounds().Dx(), "canvas grows to fit the rotation")
	assert.InDelta(t, 0.0, DetectSkew(imaging.ToGray(corrected), DefaultSkewOptions()), 0.6)
}

func TestRectifyKeepsFullFrameContent(t *testing.T) {
	blank := whitePage(200, 150)
	out, quad, err := Rectify(blank)
	require.NoError(t, err)
	assert.Same(t, blank, out)
	assert.Equal(t, FullFrame(200, 150), quad)

	framed := whitePage(200, 150)
	imaging.FillRect(framed, image.Rect(2, 2, 198, 5), color.Black)
	imaging.FillRect(framed, image.Rect(2, 145, 198, 148), color.Black)
	imaging.FillRect(framed, image.Rect(2, 2, 5, 148), color.Black)
	imaging.FillRect(framed, image.Rect(195, 2, 198, 148), color.Black)
	out, _, err = Rectify(framed)
	require.NoError(t, err)
	assert.Same(t, framed, out)
}

func TestRectifyFlattensPhotographedPage(t *testing.T) {
	photo := image.NewNRGBA(image.Rect(0, 0, 300, 300))
	imaging.FillRect(photo, photo.Rect, color.Gray{Y: 40})
	imaging.FillPolygon(photo, []imaging.Pt{{X: 60, Y: 50}, {X: 240, Y: 50}, {X: 250, Y: 260}, {X: 50, Y: 250}}, color.White)

	out, quad, err := Rectify(photo)
	require.NoError(t, err)
	assert.InDelta(t, 60, quad[0].X, 8)
	assert.InDelta(t, 50, quad[0].Y, 8)
	assert.InDelta(t, 250, quad[2].X, 8)
	assert.InDelta(t, 260, quad[2].Y, 8)

	assert.InDelta(t, 203, out.Bounds().Dx(), 12)
	assert.InDelta(t, 213, out.Bounds().Dy(), 12)
	mean, _ := imaging.MeanStd(imaging.ToGray(out))
	assert.Greater(t, mean, 180.0, "the dark background is cropped away")
}

func TestCorrectorOnBlankPage(t *testing.T) {
	page := whitePage(120, 90)
	out, est := NewCorrector(DefaultSkewOptions(), nil).Correct(page)
	assert.Same(t, page, out)
	assert.Equal(t, 0, est.Orientation)
	assert.Equal(t, 0.0, est.SkewAngle)
	require.NotNil(t, est.Bounds)
	assert.Equal(t, FullFrame(120, 90), *est.Bounds)
}

func TestCorrectorStraightensSkewedPage(t *testing.T) {
	page := whitePage(400, 300)
	rise := int(math.Round(300 * math.Tan(3*math.Pi/180)))
	for y := 60; y <= 240; y += 60 {
		imaging.DrawLine(page, 50, y, 350, y-rise, 3, color.Black)
	}
	out, est := NewCorrector(DefaultSkewOptions(), nil).Correct(page)
	assert.Equal(t, 0, est.Orientation)
	assert.InDelta(t, -3.0, est.SkewAngle, 0.6)
	assert.NotSame(t, page, out)
}
