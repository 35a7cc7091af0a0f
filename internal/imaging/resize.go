package imaging

import (
	"image"

	"golang.org/x/image/draw"
)

// ResizeBilinear scales img to width x height. Every output pixel is the
// bilinear blend of the four source pixels nearest to its centre, sampled with
// half-pixel centres, regardless of the scale factor.
func ResizeBilinear(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
