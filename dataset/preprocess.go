package dataset

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/tsawler/go-latent/tensor"
)

// DecodeImage decodes a JPEG or PNG image, resizes it to size×size with
// nearest-neighbour sampling and returns a [3, size, size] tensor in [0, 1].
func DecodeImage(r io.Reader, size int) (*tensor.Tensor, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return ImageToTensor(img, size)
}

// ImageToTensor converts img to CHW float32 data of the given square size
func ImageToTensor(img image.Image, size int) (*tensor.Tensor, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid target size %d", size)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}

	scaleX := float64(width) / float64(size)
	scaleY := float64(height) / float64(size)
	plane := size * size
	data := make([]float32, 3*plane)

	for y := 0; y < size; y++ {
		srcY := int(float64(y) * scaleY)
		if srcY >= height {
			srcY = height - 1
		}
		for x := 0; x < size; x++ {
			srcX := int(float64(x) * scaleX)
			if srcX >= width {
				srcX = width - 1
			}

			r, g, b, _ := img.At(bounds.Min.X+srcX, bounds.Min.Y+srcY).RGBA()
			idx := y*size + x
			data[idx] = float32(r) / 65535.0
			data[plane+idx] = float32(g) / 65535.0
			data[2*plane+idx] = float32(b) / 65535.0
		}
	}

	return tensor.NewTensor([]int{3, size, size}, tensor.CPU, data)
}
