package document

import (
	"fmt"
	"math"

	"github.com/mmdatafocus/admission_billing/utils"
)

var ErrInvalidInput = utils.ErrorInvalidInput

// Geometry is the physical page layout, in points.
type Geometry struct {
	PageWidth    float64
	PageHeight   float64
	MarginTop    float64
	MarginBottom float64
	MarginSide   float64
}

// A4 portrait with room for a letterhead.
var A4 = Geometry{PageWidth: 595, PageHeight: 842, MarginTop: 120, MarginBottom: 80, MarginSide: 20}

func (g Geometry) ContentHeight() float64 { return g.PageHeight - g.MarginTop - g.MarginBottom }

func (g Geometry) ContentWidth() float64 { return g.PageWidth - 2*g.MarginSide }

func (g Geometry) validate() error {
	if g.PageWidth <= 0 || g.PageHeight <= 0 {
		return fmt.Errorf("page size %vx%v: %w", g.PageWidth, g.PageHeight, ErrInvalidInput)
	}
	if g.MarginTop < 0 || g.MarginBottom < 0 || g.MarginSide < 0 {
		return fmt.Errorf("negative margin: %w", ErrInvalidInput)
	}
	if g.ContentHeight() <= 0 || g.ContentWidth() <= 0 {
		return fmt.Errorf("margins leave no content area: %w", ErrInvalidInput)
	}
	return nil
}

// Scale is page points per source pixel for a bitmap srcWidth pixels wide.
func (g Geometry) Scale(srcWidth int) (float64, error) {
	if srcWidth <= 0 {
		return 0, fmt.Errorf("source width %d: %w", srcWidth, ErrInvalidInput)
	}
	return g.PageWidth / float64(srcWidth), nil
}

// BandHeight is the number of source rows that fit one page's content area.
func (g Geometry) BandHeight(srcWidth int) (int, error) {
	if err := g.validate(); err != nil {
		return 0, err
	}
	scale, err := g.Scale(srcWidth)
	if err != nil {
		return 0, err
	}
	band := int(math.Floor(g.ContentHeight() / scale))
	if band <= 0 {
		return 0, fmt.Errorf("content area holds no source rows at width %d: %w", srcWidth, ErrInvalidInput)
	}
	return band, nil
}

// Band is the half-open source row range [Start, End) shown on one page.
type Band struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (b Band) Rows() int { return b.End - b.Start }

// Bands partitions [0, height) into consecutive slices of bandHeight rows, the
// last one clipped. A zero height still yields one empty band.
func Bands(height, bandHeight int) []Band {
	if height <= 0 || bandHeight <= 0 {
		return []Band{{Start: 0, End: 0}}
	}
	bands := make([]Band, 0, (height+bandHeight-1)/bandHeight)
	for cursor := 0; cursor < height; cursor += bandHeight {
		bands = append(bands, Band{Start: cursor, End: min(cursor+bandHeight, height)})
	}
	return bands
}
