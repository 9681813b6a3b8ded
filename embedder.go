package dcgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// Embedder Maps batch of images [N, H, W, 3] (values in [-1, 1]) to activations: one row per image
type Embedder interface {
	Embed(images *tensor.Dense) (*mat.Dense, error)
}

// DefaultPoolGrid Default number of pooling cells along each spatial axis of PooledPixelEmbedder
const DefaultPoolGrid = 8

// PooledPixelEmbedder Deterministic embedder without pretrained model: every image is average-pooled
// into Grid x Grid cells per channel, so activation vector has Grid*Grid*3 components
type PooledPixelEmbedder struct {
	Grid int
}

// NewPooledPixelEmbedder Constructor for PooledPixelEmbedder
func NewPooledPixelEmbedder(grid int) *PooledPixelEmbedder {
	if grid < 1 {
		grid = DefaultPoolGrid
	}
	return &PooledPixelEmbedder{Grid: grid}
}

// Embed See Embedder
func (emb *PooledPixelEmbedder) Embed(images *tensor.Dense) (*mat.Dense, error) {
	if images == nil || images.Dims() != 4 || images.Shape()[3] != 3 {
		var shape tensor.Shape
		if images != nil {
			shape = images.Shape()
		}
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("image batch must have shape [N, H, W, 3], but got %v", shape))
	}
	data, ok := images.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("image batch must hold float64 values, but holds %T", images.Data())
	}
	shape := images.Shape()
	n, h, w := shape[0], shape[1], shape[2]
	grid := emb.Grid
	if grid > h || grid > w {
		return nil, fmt.Errorf("pooling grid %d is larger than image %dx%d", grid, h, w)
	}
	features := grid * grid * 3
	out := mat.NewDense(n, features, nil)
	counts := make([]float64, grid*grid)
	row := make([]float64, features)
	for i := 0; i < n; i++ {
		for j := range row {
			row[j] = 0
		}
		for j := range counts {
			counts[j] = 0
		}
		img := data[i*h*w*3 : (i+1)*h*w*3]
		for y := 0; y < h; y++ {
			cy := y * grid / h
			for x := 0; x < w; x++ {
				cell := cy*grid + x*grid/w
				counts[cell]++
				offset := (y*w + x) * 3
				for c := 0; c < 3; c++ {
					row[cell*3+c] += img[offset+c]
				}
			}
		}
		for cell, cnt := range counts {
			for c := 0; c < 3; c++ {
				row[cell*3+c] /= cnt
			}
		}
		out.SetRow(i, row)
	}
	return out, nil
}

// ErrEmbedderUnavailable Pretrained embedder can't be used in this build or environment
var ErrEmbedderUnavailable = errors.New("pretrained embedder unavailable")

// InceptionConfig Settings of ONNX Runtime embedder over Inception-v3 (pool layer activations)
//
// ModelPath - path to ONNX file
// LibraryPath - path to onnxruntime shared library (empty means library's default)
// InputName, OutputName - names of graph's input and pooled activations' output
// ChannelsFirst - whether model expects NCHW input
//
type InceptionConfig struct {
	ModelPath     string
	LibraryPath   string
	InputName     string
	OutputName    string
	ChannelsFirst bool
}

// DefaultInceptionConfig Names used by common Inception-v3 ONNX exports
func DefaultInceptionConfig(modelPath string) InceptionConfig {
	return InceptionConfig{
		ModelPath:     modelPath,
		InputName:     "input",
		OutputName:    "pool",
		ChannelsFirst: true,
	}
}
