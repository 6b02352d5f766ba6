// Package document turns submitted files into content the extraction model accepts.
package document

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// RendererConfig holds PDF rendering settings
type RendererConfig struct {
	// MaxPages caps how many pages are read; 0 means no cap
	MaxPages int
	// DPI for page rasters
	DPI float64
	// JPEGQuality for page rasters
	JPEGQuality int
	// TextOnlyWhenPossible skips the raster for pages that already yield text
	TextOnlyWhenPossible bool
}

// PDFRenderer implements port.DocumentRenderer with MuPDF
type PDFRenderer struct {
	cfg    RendererConfig
	logger *zap.Logger
}

// NewPDFRenderer creates a new PDF renderer
func NewPDFRenderer(cfg RendererConfig, logger *zap.Logger) *PDFRenderer {
	if cfg.DPI <= 0 {
		cfg.DPI = 150
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 85
	}
	return &PDFRenderer{cfg: cfg, logger: logger}
}

// Pages extracts each page's text and a JPEG raster of the page.
// Blank rasters are dropped so an empty PDF yields no content.
func (r *PDFRenderer) Pages(data []byte) ([]port.PageContent, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	count := total
	if r.cfg.MaxPages > 0 && count > r.cfg.MaxPages {
		r.logger.Warn("PDF page count over limit, truncating",
			zap.Int("pages", total),
			zap.Int("max_pages", r.cfg.MaxPages))
		count = r.cfg.MaxPages
	}

	pages := make([]port.PageContent, 0, count)
	for n := 0; n < count; n++ {
		page := port.PageContent{Number: n + 1}

		text, err := doc.Text(n)
		if err != nil {
			r.logger.Warn("Failed to extract page text", zap.Int("page", n+1), zap.Error(err))
		}
		page.Text = strings.TrimSpace(text)

		if page.Text == "" || !r.cfg.TextOnlyWhenPossible {
			img, err := r.rasterize(doc, n)
			if err != nil {
				r.logger.Warn("Failed to render page", zap.Int("page", n+1), zap.Error(err))
			} else if img != nil {
				page.MIMEType = "image/jpeg"
				page.Image = img
			}
		}

		pages = append(pages, page)
	}

	r.logger.Debug("PDF rendered", zap.Int("pages", len(pages)))
	return pages, nil
}

func (r *PDFRenderer) rasterize(doc *fitz.Document, n int) ([]byte, error) {
	img, err := doc.ImageDPI(n, r.cfg.DPI)
	if err != nil {
		return nil, err
	}
	if isBlank(img) {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.cfg.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// isBlank reports whether every pixel matches the top-left one within tolerance.
// It stops at the first differing pixel, so marked pages return early.
func isBlank(img image.Image) bool {
	b := img.Bounds()
	if b.Empty() {
		return true
	}

	const tolerance = 0x0800
	r0, g0, b0, _ := img.At(b.Min.X, b.Min.Y).RGBA()

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if diff(r, r0) > tolerance || diff(g, g0) > tolerance || diff(bl, b0) > tolerance {
				return false
			}
		}
	}
	return true
}

func diff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// Verify interface compliance
var _ port.DocumentRenderer = (*PDFRenderer)(nil)
