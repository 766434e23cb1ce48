// Package imaging prepares seed images for provider submission. Providers
// that take inline bytes get a base64 data URI; decoding and re-encoding
// also strips EXIF metadata, so an image captured in a rotated orientation
// is submitted with its pixels already in display order.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
)

const jpegQuality = 90

// Normalize decodes the source bytes (JPEG or PNG) and re-encodes them as a
// plain JPEG with no metadata.
func Normalize(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEncoding, err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEncoding, err)
	}
	return buf.Bytes(), nil
}

// DataURI wraps raw bytes in a base64 data URI.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// SourceImageDataURI normalizes a seed image and returns it as a JPEG data
// URI ready for inline embedding in a provider request.
func SourceImageDataURI(data []byte) (string, error) {
	normalized, err := Normalize(data)
	if err != nil {
		return "", err
	}
	return DataURI("image/jpeg", normalized), nil
}
