package config

import (
	"os"
	"strings"
)

// InvoiceLayout is the physical page geometry used for invoice export, in points.
type InvoiceLayout struct {
	PageWidth    float64
	PageHeight   float64
	MarginTop    float64
	MarginBottom float64
	MarginSide   float64
	// RenderScale is output pixels per point.
	RenderScale float64
	HeaderPath  string
	// MaxSourcePixels caps width*height of an uploaded bitmap before it is decoded.
	MaxSourcePixels int
}

// GetInvoiceLayout reads INVOICE_* overrides; defaults are A4 portrait.
func GetInvoiceLayout() InvoiceLayout {
	return InvoiceLayout{
		PageWidth:    floatFromEnv("INVOICE_PAGE_WIDTH", 595),
		PageHeight:   floatFromEnv("INVOICE_PAGE_HEIGHT", 842),
		MarginTop:    floatFromEnv("INVOICE_MARGIN_TOP", 120),
		MarginBottom: floatFromEnv("INVOICE_MARGIN_BOTTOM", 80),
		MarginSide:   floatFromEnv("INVOICE_MARGIN_SIDE", 20),
		RenderScale:  floatFromEnv("INVOICE_RENDER_DPI_SCALE", 2),
		HeaderPath:   strings.TrimSpace(os.Getenv("INVOICE_HEADER_PATH")),
		// roughly 40 A4 pages at the default render scale
		MaxSourcePixels: intFromEnv("INVOICE_MAX_PIXELS", 40_000_000),
	}
}
