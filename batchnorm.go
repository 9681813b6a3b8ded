package dcgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// DefaultBatchNormEpsilon Variance epsilon of batch normalization
const DefaultBatchNormEpsilon = 1e-3

// BatchNorm2D Normalizes [N, C, H, W] input per channel with statistics of the current batch, then applies scale and shift.
//
// scale, shift - learnables of shape [1, C, 1, 1]
// Statistics are always taken from the batch itself, so output depends only on input and learnables.
//
func BatchNorm2D(x, scale, shift *gorgonia.Node, epsilon float64) (*gorgonia.Node, error) {
	shp := x.Shape()
	if len(shp) != 4 {
		return nil, fmt.Errorf("Batch normalization expects 4D [N, C, H, W] input, but got shape %v", shp)
	}
	channels := shp[1]
	paramShape := tensor.Shape{1, channels, 1, 1}
	if !scale.Shape().Eq(paramShape) || !shift.Shape().Eq(paramShape) {
		return nil, fmt.Errorf("Batch normalization expects scale and shift of shape %v, but got %v and %v", paramShape, scale.Shape(), shift.Shape())
	}
	broadcastAxes := []byte{0, 2, 3}

	mean, err := channelMean(x)
	if err != nil {
		return nil, errors.Wrap(err, "Can't evaluate batch mean")
	}
	centered, err := gorgonia.BroadcastSub(x, mean, nil, broadcastAxes)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x-mean)")
	}
	sqr, err := gorgonia.Square(centered)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x-mean)^2")
	}
	variance, err := channelMean(sqr)
	if err != nil {
		return nil, errors.Wrap(err, "Can't evaluate batch variance")
	}
	varEps, err := gorgonia.Add(variance, gorgonia.NewConstant(epsilon))
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (var+eps)")
	}
	std, err := gorgonia.Sqrt(varEps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do sqrt(var+eps)")
	}
	normalized, err := gorgonia.BroadcastHadamardDiv(centered, std, nil, broadcastAxes)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x-mean)/std")
	}
	scaled, err := gorgonia.BroadcastHadamardProd(normalized, scale, nil, broadcastAxes)
	if err != nil {
		return nil, errors.Wrap(err, "Can't apply scale")
	}
	shifted, err := gorgonia.BroadcastAdd(scaled, shift, nil, broadcastAxes)
	if err != nil {
		return nil, errors.Wrap(err, "Can't apply shift")
	}
	return shifted, nil
}

// channelMean Mean of [N, C, H, W] over N, H and W, reshaped to [1, C, 1, 1]
func channelMean(x *gorgonia.Node) (*gorgonia.Node, error) {
	channels := x.Shape()[1]
	// Equal sized groups, so mean of means is the overall mean
	overW, err := gorgonia.Mean(x, 3)
	if err != nil {
		return nil, err
	}
	overH, err := gorgonia.Mean(overW, 2)
	if err != nil {
		return nil, err
	}
	overN, err := gorgonia.Mean(overH, 0)
	if err != nil {
		return nil, err
	}
	return gorgonia.Reshape(overN, tensor.Shape{1, channels, 1, 1})
}
