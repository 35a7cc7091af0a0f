package model

import (
	"errors"
	"fmt"
	"image"

	"github.com/Brownie44l1/smile-api/internal/backends"
	"github.com/Brownie44l1/smile-api/internal/imaging"
)

// Preprocess converts an image of any size into a tensor of the given shape:
// bilinear resize to 128x128, then every channel divided by 255.
func Preprocess(img image.Image, shape backends.Shape) (*backends.Tensor, error) {
	if img == nil {
		return nil, preprocessError(errors.New("nil image"))
	}
	bounds := img.Bounds()
	if bounds.Dx() < 1 || bounds.Dy() < 1 {
		return nil, preprocessError(fmt.Errorf("image has zero dimension %dx%d", bounds.Dx(), bounds.Dy()))
	}
	layout, err := shape.ImageLayout()
	if err != nil {
		return nil, preprocessError(err)
	}

	resized := imaging.ResizeBilinear(img, backends.ImageSize, backends.ImageSize)

	width, height := backends.ImageSize, backends.ImageSize
	plane := width * height
	inputData := make([]float32, backends.Channels*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			offset := resized.PixOffset(x, y)
			rNorm := float32(resized.Pix[offset]) / 255.0
			gNorm := float32(resized.Pix[offset+1]) / 255.0
			bNorm := float32(resized.Pix[offset+2]) / 255.0

			pixelIndex := y*width + x
			switch layout {
			case backends.LayoutNCHW:
				inputData[pixelIndex] = rNorm
				inputData[plane+pixelIndex] = gNorm
				inputData[2*plane+pixelIndex] = bNorm
			default:
				inputData[3*pixelIndex] = rNorm
				inputData[3*pixelIndex+1] = gNorm
				inputData[3*pixelIndex+2] = bNorm
			}
		}
	}

	tensor, err := backends.NewTensor(shape, inputData)
	if err != nil {
		return nil, preprocessError(err)
	}
	return tensor, nil
}
