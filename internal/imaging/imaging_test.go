package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResizeBilinearTargetSize(t *testing.T) {
	for _, size := range [][2]int{{1, 1}, {50, 50}, {640, 480}, {37, 301}} {
		src := image.NewRGBA(image.Rect(0, 0, size[0], size[1]))
		dst := ResizeBilinear(src, 128, 128)
		assert.Equal(t, image.Rect(0, 0, 128, 128), dst.Bounds(), "source %v", size)
	}
}

func TestResizeBilinearKeepsUniformColour(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 300, 200))
	fill := color.RGBA{R: 200, G: 100, B: 50, A: 255}
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			src.SetRGBA(x, y, fill)
		}
	}

	dst := ResizeBilinear(src, 128, 128)
	for _, p := range []image.Point{{0, 0}, {64, 64}, {127, 127}} {
		assert.Equal(t, fill, dst.RGBAAt(p.X, p.Y), "pixel %v", p)
	}
}

func TestResizeBilinearInterpolatesBetweenNeighbours(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.SetRGBA(0, 0, color.RGBA{A: 255})
	src.SetRGBA(1, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	dst := ResizeBilinear(src, 4, 1)
	values := make([]float64, 4)
	for x := range values {
		values[x] = float64(dst.RGBAAt(x, 0).R)
	}

	assert.InDelta(t, 0, values[0], 1)
	assert.InDelta(t, 64, values[1], 2)
	assert.InDelta(t, 191, values[2], 2)
	assert.InDelta(t, 255, values[3], 1)
}

func TestResizeBilinearHonoursSourceOrigin(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 20, 14, 24))
	for y := 20; y < 24; y++ {
		for x := 10; x < 14; x++ {
			src.SetRGBA(x, y, color.RGBA{G: 255, A: 255})
		}
	}
	dst := ResizeBilinear(src, 8, 8)
	assert.Equal(t, uint8(255), dst.RGBAAt(0, 0).G)
	assert.Equal(t, uint8(255), dst.RGBAAt(7, 7).G)
}

func TestPreviewJPEGFitsBox(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1024, 512))
	data, err := PreviewJPEG(src, 256)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 256, decoded.Bounds().Dx())
	assert.Equal(t, 128, decoded.Bounds().Dy())
}

func TestPreviewJPEGRejectsNilImage(t *testing.T) {
	_, err := PreviewJPEG(nil, 0)
	assert.Error(t, err)
}
