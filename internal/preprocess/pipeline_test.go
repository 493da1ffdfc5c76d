package preprocess

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raspverry/ai-ocr/internal/config"
	"github.com/raspverry/ai-ocr/internal/imaging"
)

func loadTable(t *testing.T) *config.ParamTable {
	t.Helper()
	table, err := config.LoadParamTable("")
	require.NoError(t, err)
	return table
}

func textPage(w, h int) *image.NRGBA {
	page := imaging.NewWhiteNRGBA(w, h)
	for y := 15; y < h-10; y += 20 {
		for x := 10; x < w-20; x += 14 {
			imaging.FillRect(page, image.Rect(x, y, x+8, y+10), color.Gray{Y: 30})
		}
	}
	return page
}

func TestApplyFixedThreshold(t *testing.T) {
	gray := imaging.NewFilled(40, 40, 200)
	imaging.FillRect(gray, image.Rect(0, 0, 20, 40), color.Gray{Y: 50})

	params := config.PreprocessParams{
		Binarization: config.BinarizeFixed,
		Threshold:    128,
		BlockSize:    11,
		Contrast:     1,
	}
	out := Apply(gray, params)
	assert.Equal(t, gray.Rect, out.Rect)
	assert.Equal(t, 800, imaging.CountNonZero(out))
	assert.Equal(t, uint8(0), out.GrayAt(5, 5).Y)
	assert.Equal(t, uint8(255), out.GrayAt(35, 5).Y)
	assert.Equal(t, uint8(50), gray.GrayAt(5, 5).Y, "input is not modified")
}

func TestApplyIsDeterministic(t *testing.T) {
	table := loadTable(t)
	gray := imaging.ToGray(textPage(120, 90))

	for _, lang := range table.Languages() {
		t.Run(lang, func(t *testing.T) {
			params := table.Lookup(lang, DocumentReceipt)
			a := Apply(gray, params)
			b := Apply(gray, params)
			assert.True(t, imaging.Equal(a, b))
		})
	}
}

func TestApplyKeepsTextDark(t *testing.T) {
	table := loadTable(t)
	gray := imaging.ToGray(textPage(120, 90))
	params := table.Lookup("eng", "")
	params.Sharpness = 1

	out := Apply(gray, params)
	assert.Less(t, out.GrayAt(14, 20).Y, uint8(128), "inside a glyph")
	assert.Equal(t, uint8(255), out.GrayAt(5, 5).Y, "page margin")
}

func TestProcessUpscalesSmallPages(t *testing.T) {
	p := NewPipeline(loadTable(t), nil).WithMinShortSide(120)

	out, err := p.Process(textPage(100, 60), "jpn", "")
	require.NoError(t, err)
	assert.Equal(t, 200, out.Rect.Dx())
	assert.Equal(t, 120, out.Rect.Dy())

	large, err := p.Process(textPage(150, 130), "jpn", "")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 150, 130), large.Rect)
}

func TestParamsFallBackToEnglish(t *testing.T) {
	table := loadTable(t)
	p := NewPipeline(table, nil)
	assert.Equal(t, table.Lookup("eng", ""), p.Params("fra", ""))
	assert.Equal(t, table.Lookup("kor", DocumentForm), p.Params("kor", DocumentForm))
}

func TestInferDocumentType(t *testing.T) {
	testCases := []struct {
		name   string
		w, h   int
		traits PageTraits
		want   string
	}{
		{"narrow receipt", 300, 900, PageTraits{}, DocumentReceipt},
		{"portrait page", 800, 1100, PageTraits{}, DocumentForm},
		{"slightly wide", 1300, 1000, PageTraits{}, DocumentInvoice},
		{"very wide", 2000, 1000, PageTraits{}, DocumentInvoice},
		{"handwriting", 800, 1100, PageTraits{HasHandwriting: true}, DocumentHandwritten},
		{"portrait with table", 800, 1100, PageTraits{HasTable: true}, DocumentInvoice},
		{"table and stamp", 800, 1100, PageTraits{HasTable: true, HasStamps: true}, DocumentInvoice},
		{"receipt with stamp", 300, 900, PageTraits{HasStamps: true}, DocumentReceipt},
		{"empty page", 0, 0, PageTraits{}, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, InferDocumentType(tc.w, tc.h, tc.traits))
		})
	}
}
