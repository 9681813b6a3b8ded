//go:build ort

package dcgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// InceptionEmbedder Embedder backed by ONNX Runtime session
type InceptionEmbedder struct {
	cfg     InceptionConfig
	session *ort.DynamicAdvancedSession
}

// NewInceptionEmbedder Initializes ONNX Runtime environment and loads model
func NewInceptionEmbedder(cfg InceptionConfig) (*InceptionEmbedder, error) {
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(ErrEmbedderUnavailable, fmt.Sprintf("can't initialize onnxruntime: %s", err))
		}
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "Can't create session options")
	}
	defer opts.Destroy()
	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, []string{cfg.InputName}, []string{cfg.OutputName}, opts)
	if err != nil {
		return nil, errors.Wrap(ErrEmbedderUnavailable, fmt.Sprintf("can't load '%s': %s", cfg.ModelPath, err))
	}
	return &InceptionEmbedder{
		cfg:     cfg,
		session: session,
	}, nil
}

// Embed See Embedder
func (emb *InceptionEmbedder) Embed(images *tensor.Dense) (*mat.Dense, error) {
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
	input := make([]float32, len(data))
	var inputShape ort.Shape
	if emb.cfg.ChannelsFirst {
		inputShape = ort.NewShape(int64(n), 3, int64(h), int64(w))
		for i := 0; i < n; i++ {
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					for c := 0; c < 3; c++ {
						input[((i*3+c)*h+y)*w+x] = float32(data[((i*h+y)*w+x)*3+c])
					}
				}
			}
		}
	} else {
		inputShape = ort.NewShape(int64(n), int64(h), int64(w), 3)
		for i, v := range data {
			input[i] = float32(v)
		}
	}
	inputTensor, err := ort.NewTensor(inputShape, input)
	if err != nil {
		return nil, errors.Wrap(err, "Can't create input tensor")
	}
	defer inputTensor.Destroy()

	outputs := make([]ort.Value, 1)
	if err = emb.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, errors.Wrap(err, "Can't run inception session")
	}
	defer outputs[0].Destroy()
	activations, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unsupported output tensor type %T", outputs[0])
	}
	values := activations.GetData()
	if len(values)%n != 0 {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("%d activations can't be split between %d images", len(values), n))
	}
	features := len(values) / n
	out := mat.NewDense(n, features, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < features; j++ {
			out.Set(i, j, float64(values[i*features+j]))
		}
	}
	return out, nil
}

// Close Destroys session
func (emb *InceptionEmbedder) Close() error {
	if emb.session == nil {
		return nil
	}
	err := emb.session.Destroy()
	emb.session = nil
	return err
}
