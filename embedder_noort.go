//go:build !ort

package dcgan_go

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// InceptionEmbedder Placeholder for builds without onnxruntime (build with -tags ort)
type InceptionEmbedder struct{}

// NewInceptionEmbedder Always fails: onnxruntime support is not compiled in
func NewInceptionEmbedder(cfg InceptionConfig) (*InceptionEmbedder, error) {
	return nil, errors.Wrap(ErrEmbedderUnavailable, "built without onnxruntime support (use -tags ort)")
}

// Embed Always fails
func (emb *InceptionEmbedder) Embed(images *tensor.Dense) (*mat.Dense, error) {
	return nil, ErrEmbedderUnavailable
}

// Close Does nothing
func (emb *InceptionEmbedder) Close() error {
	return nil
}
