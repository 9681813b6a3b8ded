package dcgan_go

import (
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// ActivationFunc Just an alias to Gorgonia'a api_gen.go - https://github.com/gorgonia/gorgonia/blob/master/api_gen.go#L1
type ActivationFunc func(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)

func NoActivation(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) { return a, nil }
func Tanh(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)         { return gorgonia.Tanh(a) }
func Sigmoid(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)      { return gorgonia.Sigmoid(a) }
func Rectify(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)      { return gorgonia.Rectify(a) }

// LeakyRectify Leaky ReLU: max(x, 0) + alpha*min(x, 0)
//
// Alpha is taken from the first option with non-zero Alpha field. Default is DefaultLeakyAlpha.
//
func LeakyRectify(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) {
	alpha := DefaultLeakyAlpha
	for i := range opts {
		if opts[i].Alpha != 0 {
			alpha = opts[i].Alpha
			break
		}
	}
	rectified, err := gorgonia.Rectify(a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do relu(x)")
	}
	// x - relu(x) is min(x, 0)
	negPart, err := gorgonia.Sub(a, rectified)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x-relu(x))")
	}
	scaled, err := gorgonia.Mul(negPart, gorgonia.NewConstant(alpha))
	if err != nil {
		return nil, errors.Wrap(err, "Can't do alpha*min(x,0)")
	}
	return gorgonia.Add(rectified, scaled)
}

// Options Struct for holding options for certain activation functions.
type Options struct {
	// Negative slope for LeakyRectify
	Alpha float64
}
