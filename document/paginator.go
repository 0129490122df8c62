package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/disintegration/imaging"
)

// Page is one rendered output page.
type Page struct {
	Number int
	Band   Band
	Image  *image.NRGBA
}

// Paginator slices a tall rendered bitmap into fixed-size pages, each with the
// header image drawn under the content band.
type Paginator struct {
	Geometry Geometry
	// RenderScale is output pixels per point. Zero means 1.
	RenderScale float64
	// Header covers the whole page; nil leaves a white page.
	Header image.Image
}

func NewPaginator(g Geometry, renderScale float64, header image.Image) *Paginator {
	return &Paginator{Geometry: g, RenderScale: renderScale, Header: header}
}

func (p *Paginator) px(points float64) int {
	s := p.RenderScale
	if s <= 0 {
		s = 1
	}
	return int(math.Round(points * s))
}

// Paginate returns every page or an error, never a partial set.
func (p *Paginator) Paginate(ctx context.Context, src image.Image) ([]Page, error) {
	if src == nil {
		return nil, fmt.Errorf("nil source bitmap: %w", ErrInvalidInput)
	}
	bounds := src.Bounds()
	bandHeight, err := p.Geometry.BandHeight(bounds.Dx())
	if err != nil {
		return nil, err
	}
	scale, _ := p.Geometry.Scale(bounds.Dx())

	background := p.background()
	contentX := p.px(p.Geometry.MarginSide)
	contentY := p.px(p.Geometry.MarginTop)
	contentW := p.px(p.Geometry.ContentWidth())

	bands := Bands(bounds.Dy(), bandHeight)
	pages := make([]Page, 0, len(bands))
	for i, band := range bands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		canvas := imaging.Clone(background)
		if rows := band.Rows(); rows > 0 {
			slice := imaging.Crop(src, image.Rect(bounds.Min.X, bounds.Min.Y+band.Start, bounds.Max.X, bounds.Min.Y+band.End))
			// partial bands keep their natural height
			contentH := p.px(float64(rows) * scale)
			if contentH > 0 && contentW > 0 {
				fitted := imaging.Resize(slice, contentW, contentH, imaging.Lanczos)
				canvas = imaging.Overlay(canvas, fitted, image.Pt(contentX, contentY), 1.0)
			}
		}
		pages = append(pages, Page{Number: i + 1, Band: band, Image: canvas})
	}
	return pages, nil
}

func (p *Paginator) background() *image.NRGBA {
	w, h := p.px(p.Geometry.PageWidth), p.px(p.Geometry.PageHeight)
	canvas := imaging.New(w, h, color.White)
	if p.Header == nil {
		return canvas
	}
	header := imaging.Resize(p.Header, w, h, imaging.Lanczos)
	return imaging.Paste(canvas, header, image.Pt(0, 0))
}

// EncodePNG encodes a page for upload.
func EncodePNG(page Page) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, page.Image, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode page %d: %w", page.Number, err)
	}
	return buf.Bytes(), nil
}

// DecodeImage reads a PNG/JPEG/GIF/BMP/TIFF bitmap, applying EXIF orientation.
// The header is checked first so a bitmap over maxPixels is never allocated;
// maxPixels <= 0 disables the check.
func DecodeImage(r io.Reader, maxPixels int) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %v: %w", err, ErrInvalidInput)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("image is %dx%d: %w", cfg.Width, cfg.Height, ErrInvalidInput)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("image is %dx%d, over the %d pixel limit: %w", cfg.Width, cfg.Height, maxPixels, ErrInvalidInput)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %v: %w", err, ErrInvalidInput)
	}
	return img, nil
}

// LoadHeader opens a header image from disk; an empty path means no header.
func LoadHeader(path string) (image.Image, error) {
	if path == "" {
		return nil, nil
	}
	return imaging.Open(path)
}
