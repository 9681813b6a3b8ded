package dcgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer Just an alias to Weight+Bias+BatchNorm+ActivationFunc combo
//
// ReshapeDims - per-sample dimensions for LayerReshape (batch size is prepended in Fwd)
// TransposeAxes - axes permutation for LayerTranspose
// ScaleNode, ShiftNode - when both are set, batch normalization is applied to the non-activated output
//
type Layer struct {
	WeightNode        *gorgonia.Node
	BiasNode          *gorgonia.Node
	ScaleNode         *gorgonia.Node
	ShiftNode         *gorgonia.Node
	Activation        ActivationFunc
	ActivationOptions Options
	Type              LayerType

	KernelHeight  int
	KernelWidth   int
	Padding       []int
	Stride        []int
	Dilation      []int
	ReshapeDims   []int
	TransposeAxes []int
}

type LayerType uint16

const (
	LayerLinear = LayerType(iota)
	LayerFlatten
	LayerConvolutional
	LayerReshape
	LayerUpsample
	LayerTranspose
)

func (lt LayerType) String() string {
	switch lt {
	case LayerLinear:
		return "linear"
	case LayerFlatten:
		return "flatten"
	case LayerConvolutional:
		return "conv2d"
	case LayerReshape:
		return "reshape"
	case LayerUpsample:
		return "upsample"
	case LayerTranspose:
		return "transpose"
	default:
		return fmt.Sprintf("layer_type_%d", uint16(lt))
	}
}

var (
	allowedNoWeights = []LayerType{LayerFlatten, LayerReshape, LayerUpsample, LayerTranspose}
)

func noWeightsAllowed(checkType LayerType) bool {
	return checkLayerType(checkType, allowedNoWeights...)
}

func checkLayerType(checkType LayerType, t ...LayerType) bool {
	for _, typeOf := range t {
		if checkType == typeOf {
			return true
		}
	}
	return false
}

// Learnables Returns learnable nodes of the layer
func (l *Layer) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, 4)
	for _, n := range []*gorgonia.Node{l.WeightNode, l.BiasNode, l.ScaleNode, l.ShiftNode} {
		if n != nil {
			learnables = append(learnables, n)
		}
	}
	return learnables
}

// Fwd Feedforward input through the layer. Activation is not applied.
//
// batchSize - batch size. If it's >= 2 then broadcast function will be applied for bias
// input - input node
//
func (l *Layer) Fwd(batchSize int, input *gorgonia.Node) (*gorgonia.Node, error) {
	if l.WeightNode == nil && !noWeightsAllowed(l.Type) {
		return nil, fmt.Errorf("Layer of type '%s' has nil weight node", l.Type)
	}
	var out *gorgonia.Node
	var err error
	switch l.Type {
	case LayerLinear:
		tOp, err := gorgonia.Transpose(l.WeightNode)
		if err != nil {
			return nil, errors.Wrap(err, "Can't transpose weights")
		}
		out, err = gorgonia.Mul(input, tOp)
		if err != nil {
			return nil, errors.Wrap(err, "Can't multiply input and weights")
		}
	case LayerConvolutional:
		out, err = gorgonia.Conv2d(input, l.WeightNode, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, l.Stride, l.Dilation)
		if err != nil {
			return nil, errors.Wrap(err, "Can't convolve[2D] input by kernel")
		}
	case LayerFlatten:
		out, err = gorgonia.Reshape(input, tensor.Shape{batchSize, input.Shape().TotalSize() / batchSize})
		if err != nil {
			return nil, errors.Wrap(err, "Can't flatten input")
		}
	case LayerReshape:
		dims := append(tensor.Shape{batchSize}, l.ReshapeDims...)
		out, err = gorgonia.Reshape(input, dims)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't reshape input to %v", dims))
		}
	case LayerUpsample:
		out, err = upsampleNearest2x(input)
		if err != nil {
			return nil, errors.Wrap(err, "Can't upsample input")
		}
	case LayerTranspose:
		out, err = gorgonia.Transpose(input, l.TransposeAxes...)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't transpose input with axes %v", l.TransposeAxes))
		}
	default:
		return nil, fmt.Errorf("Layer's type '%d' (uint16) is not handled", l.Type)
	}

	if l.BiasNode != nil {
		// Bias is [1, out] for linear layers and [1, C, 1, 1] for feature maps
		pattern := []byte{0}
		if out.Dims() == 4 {
			pattern = []byte{0, 2, 3}
		}
		out, err = gorgonia.BroadcastAdd(out, l.BiasNode, nil, pattern)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't add [in broadcast term with batch_size = %d] bias to non-activated output", batchSize))
		}
	}

	if l.ScaleNode != nil && l.ShiftNode != nil {
		out, err = BatchNorm2D(out, l.ScaleNode, l.ShiftNode, DefaultBatchNormEpsilon)
		if err != nil {
			return nil, errors.Wrap(err, "Can't normalize non-activated output")
		}
	}
	return out, nil
}

// upsampleNearest2x Doubles both spatial dimensions of [N, C, H, W] input by repeating every pixel 2x2 times.
func upsampleNearest2x(input *gorgonia.Node) (*gorgonia.Node, error) {
	shp := input.Shape()
	if len(shp) != 4 {
		return nil, fmt.Errorf("Upsampling expects 4D [N, C, H, W] input, but got shape %v", shp)
	}
	n, c, h, w := shp[0], shp[1], shp[2], shp[3]

	flat, err := gorgonia.Reshape(input, tensor.Shape{n * c * h * w, 1})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape input to column")
	}
	// Every pixel is repeated twice along width
	wide, err := gorgonia.Concat(1, flat, flat)
	if err != nil {
		return nil, errors.Wrap(err, "Can't repeat columns")
	}
	rows, err := gorgonia.Reshape(wide, tensor.Shape{n * c * h, 2 * w})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape widened input to rows")
	}
	// Every row is repeated twice along height
	tall, err := gorgonia.Concat(1, rows, rows)
	if err != nil {
		return nil, errors.Wrap(err, "Can't repeat rows")
	}
	return gorgonia.Reshape(tall, tensor.Shape{n, c, 2 * h, 2 * w})
}
