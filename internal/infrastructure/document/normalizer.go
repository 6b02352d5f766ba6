package document

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"net/http"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/gen2brain/heic"
)

// ImageNormalizer implements port.ImageNormalizer.
// JPEG and PNG pass through untouched; HEIC/HEIF phone photos and other
// decodable formats are re-encoded as JPEG.
type ImageNormalizer struct {
	quality int
}

// NewImageNormalizer creates a new image normalizer
func NewImageNormalizer(quality int) *ImageNormalizer {
	if quality <= 0 {
		quality = 85
	}
	return &ImageNormalizer{quality: quality}
}

// Normalize returns the MIME type and bytes to send to the model
func (n *ImageNormalizer) Normalize(data []byte) (string, []byte, error) {
	if len(data) == 0 {
		return "", nil, fmt.Errorf("image is empty")
	}

	switch ct := http.DetectContentType(data); ct {
	case "image/jpeg", "image/png":
		return ct, data, nil
	}

	var img image.Image
	var err error
	if IsHEIC(data) {
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			return "", nil, fmt.Errorf("failed to decode HEIC image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return "", nil, fmt.Errorf("unsupported image format (JPEG, PNG, GIF, HEIC accepted): %w", err)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: n.quality}); err != nil {
		return "", nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return "image/jpeg", buf.Bytes(), nil
}

// IsHEIC checks the ISO-BMFF ftyp brand used by HEIC/HEIF files
func IsHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "hevc", "hevx", "heim", "heis", "mif1", "msf1":
		return true
	}
	return false
}

// Verify interface compliance
var _ port.ImageNormalizer = (*ImageNormalizer)(nil)
