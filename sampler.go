package dcgan_go

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ImageWriter Receiver of sampled images
type ImageWriter interface {
	WriteImage(name string, img image.Image) error
}

// PNGDirWriter Writes images as PNG files into directory (created on demand)
type PNGDirWriter struct {
	Dir string
}

// WriteImage See ImageWriter
func (w *PNGDirWriter) WriteImage(name string, img image.Image) error {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return errors.Wrap(err, "Can't create output directory")
	}
	f, err := os.Create(filepath.Join(w.Dir, name))
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't create '%s'", name))
	}
	if err = png.Encode(f, img); err != nil {
		f.Close()
		return errors.Wrap(err, fmt.Sprintf("Can't encode '%s'", name))
	}
	return f.Close()
}

// Sample Generates n images with generator's feedforward only. No training state is touched
func Sample(gan *GAN, n int) ([]*image.RGBA, error) {
	if n < 0 {
		return nil, fmt.Errorf("number of samples can't be negative, but got %d", n)
	}
	images := make([]*image.RGBA, 0, n)
	for len(images) < n {
		batch, err := gan.Generate(gan.Noise())
		if err != nil {
			return nil, errors.Wrap(err, "Can't generate batch")
		}
		converted, err := DenseToImages(batch)
		if err != nil {
			return nil, err
		}
		for _, img := range converted {
			if len(images) == n {
				break
			}
			images = append(images, img)
		}
	}
	return images, nil
}

// SampleToWriter Generates n images and hands them to writer as 0.png, 1.png, ...
func SampleToWriter(gan *GAN, n int, writer ImageWriter) error {
	images, err := Sample(gan, n)
	if err != nil {
		return err
	}
	for i, img := range images {
		if err = writer.WriteImage(fmt.Sprintf("%d.png", i), img); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't write sample %d", i))
		}
	}
	return nil
}

// DenseToImages Converts batch [B, H, W, 3] from [-1, 1] to 8-bit images via (x+1)/2*255
func DenseToImages(batch *tensor.Dense) ([]*image.RGBA, error) {
	if batch == nil || batch.Dims() != 4 || batch.Shape()[3] != 3 {
		var shape tensor.Shape
		if batch != nil {
			shape = batch.Shape()
		}
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("image batch must have shape [B, H, W, 3], but got %v", shape))
	}
	data, ok := batch.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("image batch must hold float64 values, but holds %T", batch.Data())
	}
	shape := batch.Shape()
	b, h, w := shape[0], shape[1], shape[2]
	images := make([]*image.RGBA, b)
	for i := 0; i < b; i++ {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				offset := ((i*h+y)*w + x) * 3
				img.SetRGBA(x, y, color.RGBA{
					R: toPixel(data[offset]),
					G: toPixel(data[offset+1]),
					B: toPixel(data[offset+2]),
					A: 255,
				})
			}
		}
		images[i] = img
	}
	return images, nil
}

func toPixel(v float64) uint8 {
	scaled := math.Round((v + 1) / 2 * 255)
	if scaled < 0 || math.IsNaN(scaled) {
		return 0
	}
	if scaled > 255 {
		return 255
	}
	return uint8(scaled)
}
