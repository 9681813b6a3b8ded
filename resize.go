package dcgan_go

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"gorgonia.org/tensor"
)

// ResizeBatch Bilinear resize of every image in batch [N, H, W, 3] (values in [-1, 1]) to [N, size, size, 3]
func ResizeBatch(images *tensor.Dense, size int) (*tensor.Dense, error) {
	if images == nil || images.Dims() != 4 || images.Shape()[3] != 3 {
		var shape tensor.Shape
		if images != nil {
			shape = images.Shape()
		}
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("image batch must have shape [N, H, W, 3], but got %v", shape))
	}
	if size < 1 {
		return nil, fmt.Errorf("target size must be positive, but got %d", size)
	}
	data, ok := images.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("image batch must hold float64 values, but holds %T", images.Data())
	}
	shape := images.Shape()
	n, h, w := shape[0], shape[1], shape[2]
	perImage := h * w * 3
	if h == size && w == size {
		return tensor.New(tensor.WithShape(n, size, size, 3), tensor.WithBacking(append([]float64(nil), data...))), nil
	}
	out := make([]float64, n*size*size*3)
	dst := image.NewRGBA64(image.Rect(0, 0, size, size))
	for i := 0; i < n; i++ {
		src := floatsToRGBA64(data[i*perImage:(i+1)*perImage], h, w)
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		rgba64ToFloats(dst, out[i*size*size*3:(i+1)*size*size*3])
	}
	return tensor.New(tensor.WithShape(n, size, size, 3), tensor.WithBacking(out)), nil
}

// floatsToRGBA64 Maps HWC values from [-1, 1] onto 16-bit image
func floatsToRGBA64(data []float64, h, w int) *image.RGBA64 {
	img := image.NewRGBA64(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			offset := (y*w + x) * 3
			img.SetRGBA64(x, y, color.RGBA64{
				R: to16(data[offset]),
				G: to16(data[offset+1]),
				B: to16(data[offset+2]),
				A: math.MaxUint16,
			})
		}
	}
	return img
}

// rgba64ToFloats Inverse of floatsToRGBA64; dst must hold H*W*3 values
func rgba64ToFloats(img *image.RGBA64, dst []float64) {
	bounds := img.Bounds()
	w := bounds.Dx()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.RGBA64At(x, y)
			offset := ((y-bounds.Min.Y)*w + (x - bounds.Min.X)) * 3
			dst[offset] = from16(c.R)
			dst[offset+1] = from16(c.G)
			dst[offset+2] = from16(c.B)
		}
	}
}

func to16(v float64) uint16 {
	scaled := math.Round((v + 1) / 2 * math.MaxUint16)
	if scaled < 0 || math.IsNaN(scaled) {
		return 0
	}
	if scaled > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(scaled)
}

func from16(v uint16) float64 {
	return float64(v)/math.MaxUint16*2 - 1
}
