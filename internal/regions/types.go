package regions

import "image"

// Region types
const (
	TypeStamp         = "stamp"
	TypeHandwriting   = "handwriting"
	TypeStrikethrough = "strikethrough"
	TypeTable         = "table"
)

// Region is one detected special area. BBox is x1, y1, x2, y2 with the
// second corner exclusive.
type Region struct {
	Type       string  `json:"type"`
	BBox       [4]int  `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

// Rect returns the bounding box as a rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.BBox[0], r.BBox[1], r.BBox[2], r.BBox[3])
}

func bbox(r image.Rectangle) [4]int {
	return [4]int{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y}
}

// SpecialItems summarizes the special regions found on a page
type SpecialItems struct {
	HasStamps        bool     `json:"hasStamps"`
	HasHandwriting   bool     `json:"hasHandwriting"`
	HasTable         bool     `json:"hasTable"`
	HasStrikethrough bool     `json:"hasStrikethrough"`
	Regions          []Region `json:"regions"`
}

// NewSpecialItems returns an empty result that encodes regions as []
func NewSpecialItems() *SpecialItems {
	return &SpecialItems{Regions: []Region{}}
}

// Add appends regions and raises the matching flags
func (s *SpecialItems) Add(regions ...Region) {
	for _, r := range regions {
		switch r.Type {
		case TypeStamp:
			s.HasStamps = true
		case TypeHandwriting:
			s.HasHandwriting = true
		case TypeTable:
			s.HasTable = true
		case TypeStrikethrough:
			s.HasStrikethrough = true
		}
		s.Regions = append(s.Regions, r)
	}
}

// OfType returns the regions of one type in detection order
func (s *SpecialItems) OfType(t string) []Region {
	var out []Region
	for _, r := range s.Regions {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// Empty reports whether nothing was found
func (s *SpecialItems) Empty() bool {
	return len(s.Regions) == 0
}
