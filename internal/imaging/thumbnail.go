package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/nfnt/resize"
)

const (
	DefaultPreviewSize = 256
	previewQuality     = 85
)

// Thumbnail shrinks img to fit in a maxSide x maxSide box, keeping its aspect
// ratio. Images already inside the box are returned unchanged.
func Thumbnail(img image.Image, maxSide uint) image.Image {
	return resize.Thumbnail(maxSide, maxSide, img, resize.Lanczos3)
}

// PreviewJPEG renders a JPEG thumbnail of img for display next to a result.
func PreviewJPEG(img image.Image, maxSide uint) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("preview: nil image")
	}
	if maxSide == 0 {
		maxSide = DefaultPreviewSize
	}
	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, Thumbnail(img, maxSide), &jpeg.Options{Quality: previewQuality}); err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	return buf.Bytes(), nil
}
