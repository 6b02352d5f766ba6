package document

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestImageNormalizer_PassesThroughPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(4, 4, color.White)))

	mime, out, err := NewImageNormalizer(0).Normalize(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, buf.Bytes(), out)
}

func TestImageNormalizer_ReencodesGIF(t *testing.T) {
	var buf bytes.Buffer
	palette := image.NewPaletted(image.Rect(0, 0, 4, 4), []color.Color{color.Black, color.White})
	require.NoError(t, gif.Encode(&buf, palette, nil))

	mime, out, err := NewImageNormalizer(90).Normalize(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, []byte{0xFF, 0xD8}, out[:2])
}

func TestImageNormalizer_RejectsGarbage(t *testing.T) {
	_, _, err := NewImageNormalizer(0).Normalize([]byte("definitely not an image"))
	assert.Error(t, err)

	_, _, err = NewImageNormalizer(0).Normalize(nil)
	assert.Error(t, err)
}

func TestIsHEIC(t *testing.T) {
	assert.True(t, IsHEIC(append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)))
	assert.True(t, IsHEIC(append([]byte{0, 0, 0, 24}, []byte("ftypmif10000")...)))
	assert.False(t, IsHEIC(append([]byte{0, 0, 0, 24}, []byte("ftypisom0000")...)))
	assert.False(t, IsHEIC([]byte("short")))
}

func TestIsBlank(t *testing.T) {
	assert.True(t, isBlank(solidImage(100, 100, color.White)))

	marked := solidImage(100, 100, color.White)
	for x := 0; x < 100; x++ {
		marked.Set(x, 50, color.Black)
	}
	assert.False(t, isBlank(marked))
}

func TestIsBlank_ThinLineOnA4Page(t *testing.T) {
	page := solidImage(1240, 1754, color.White)
	for y := 900; y < 903; y++ {
		for x := 100; x <= 1140; x++ {
			page.Set(x, y, color.Black)
		}
	}
	assert.False(t, isBlank(page))

	dot := solidImage(1240, 1754, color.White)
	dot.Set(617, 1001, color.Black)
	assert.False(t, isBlank(dot))
}

// minimalPDF builds a one-page PDF with correct xref offsets
func minimalPDF(text string) []byte {
	stream := fmt.Sprintf("BT /F1 24 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return []byte(b.String())
}

func TestPDFRenderer_Pages(t *testing.T) {
	r := NewPDFRenderer(RendererConfig{DPI: 72}, zap.NewNop())

	pages, err := r.Pages(minimalPDF("Factura 2024-001 ACME"))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Number)
	assert.Contains(t, pages[0].Text, "ACME")
	assert.Equal(t, "image/jpeg", pages[0].MIMEType)
	assert.NotEmpty(t, pages[0].Image)

	r = NewPDFRenderer(RendererConfig{DPI: 72, TextOnlyWhenPossible: true}, zap.NewNop())
	pages, err = r.Pages(minimalPDF("Factura"))
	require.NoError(t, err)
	assert.Empty(t, pages[0].Image)
}

func TestPDFRenderer_RejectsNonPDF(t *testing.T) {
	_, err := NewPDFRenderer(RendererConfig{}, zap.NewNop()).Pages([]byte("not a pdf"))
	assert.Error(t, err)
}
