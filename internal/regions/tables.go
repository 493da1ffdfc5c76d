package regions

import (
	"github.com/raspverry/ai-ocr/internal/imaging"
)

const (
	tableRuleLength = 30
	tableMinArea    = 5000
	tableMinAspect  = 0.5
	tableMaxAspect  = 5.0
	tableMinDensity = 0.05
	tableConfidence = 0.9
)

// detectTables stretches edges along both axes so rulings join up, merges
// the result into blobs and keeps the large, reasonably proportioned ones
// that are dense enough in rulings.
func detectTables(p *prepared) []Region {
	horizontal := imaging.Dilate(p.edges, imaging.RectKernel(tableRuleLength, 1), 1)
	vertical := imaging.Dilate(p.edges, imaging.RectKernel(1, tableRuleLength), 1)
	rulings := imaging.Or(horizontal, vertical)
	blobs := imaging.Dilate(rulings, imaging.RectKernel(5, 5), 2)

	var regions []Region
	for _, c := range imaging.ExternalContours(blobs) {
		if c.Area() < tableMinArea {
			continue
		}
		w, h := c.Box.Dx(), c.Box.Dy()
		if h == 0 {
			continue
		}
		aspect := float64(w) / float64(h)
		if aspect < tableMinAspect || aspect > tableMaxAspect {
			continue
		}
		if imaging.Ratio(rulings, c.Box) <= tableMinDensity {
			continue
		}
		regions = append(regions, Region{Type: TypeTable, BBox: bbox(c.Box), Confidence: tableConfidence})
	}
	return regions
}
