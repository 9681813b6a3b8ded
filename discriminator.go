package dcgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var (
	// ErrShapeMismatch Tensor fed into a network (or loss) has unexpected shape
	ErrShapeMismatch = errors.New("shape mismatch")
)

// DiscriminatorNet Abstraction for discriminator part of GAN. It's simple neural network actually.
//
// Maps images [B, H, W, 3] to scores [B, 1] in (0, 1).
// Four 5x5 stride-2 convolutions (first is not normalized, others are), each followed by leaky ReLU,
// then flatten and dense projection activated by sigmoid.
//
type DiscriminatorNet struct {
	private   *Network
	imageSize int
}

// Discriminator Defines discriminator's learnables on the provided graph
//
// name - prefix for learnables' names (should be unique in the graph)
//
func Discriminator(g *gorgonia.ExprGraph, cfg Config, name string) *DiscriminatorNet {
	layers := make([]*Layer, 0, numUpsamplingStages+3)
	// NHWC => NCHW
	layers = append(layers, &Layer{
		Type:          LayerTranspose,
		TransposeAxes: []int{0, 3, 1, 2},
		Activation:    NoActivation,
	})
	inChannels := 3
	for stage := 0; stage < numUpsamplingStages; stage++ {
		outChannels := cfg.filters(stage)
		conv := &Layer{
			WeightNode:        convKernel(g, cfg, outChannels, inChannels, fmt.Sprintf("%s_w%d", name, stage)),
			Type:              LayerConvolutional,
			KernelHeight:      5,
			KernelWidth:       5,
			Padding:           []int{2, 2},
			Stride:            []int{2, 2},
			Dilation:          []int{1, 1},
			Activation:        LeakyRectify,
			ActivationOptions: Options{Alpha: cfg.LeakyAlpha},
		}
		if stage == 0 {
			conv.BiasNode = channelBias(g, outChannels, fmt.Sprintf("%s_b%d", name, stage))
		} else {
			conv.ScaleNode = batchNormScale(g, outChannels, fmt.Sprintf("%s_gamma%d", name, stage))
			conv.ShiftNode = batchNormShift(g, outChannels, fmt.Sprintf("%s_beta%d", name, stage))
		}
		layers = append(layers, conv)
		inChannels = outChannels
	}
	s := cfg.startSize()
	denseW := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, inChannels*s*s), gorgonia.WithName(fmt.Sprintf("%s_w%d", name, numUpsamplingStages)), gorgonia.WithInit(gorgonia.Gaussian(0, cfg.InitStdDev)))
	denseB := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, 1), gorgonia.WithName(fmt.Sprintf("%s_b%d", name, numUpsamplingStages)), gorgonia.WithInit(gorgonia.Zeroes()))
	layers = append(layers,
		&Layer{
			Type:       LayerFlatten,
			Activation: NoActivation,
		},
		&Layer{
			WeightNode: denseW,
			BiasNode:   denseB,
			Type:       LayerLinear,
			Activation: Sigmoid,
		},
	)
	return &DiscriminatorNet{
		private: &Network{
			Name:   name,
			Layers: layers,
		},
		imageSize: cfg.ImageSize,
	}
}

// Learnables Returns learnables nodes
func (net *DiscriminatorNet) Learnables() gorgonia.Nodes {
	return net.private.Learnables()
}

// Fwd Initializates feedforward for provided input and returns scores node [B, 1]
//
// input - images node of shape [batchSize, H, W, 3]
// batchSize - batch size
// tag - distinguishes several applications of the same discriminator in one graph (e.g. "real" and "fake")
//
func (net *DiscriminatorNet) Fwd(input *gorgonia.Node, batchSize int, tag string) (*gorgonia.Node, error) {
	want := tensor.Shape{batchSize, net.imageSize, net.imageSize, 3}
	if !input.Shape().Eq(want) {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("[Discriminator] input must have shape %v, but got %v", want, input.Shape()))
	}
	out, err := net.private.Fwd(input, batchSize, tag)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator]")
	}
	return out, nil
}

// Loss Sum of cross entropies: real scores against label 1 and fake scores against label 0
func (net *DiscriminatorNet) Loss(realScores, fakeScores *gorgonia.Node) (*gorgonia.Node, error) {
	if !realScores.Shape().Eq(fakeScores.Shape()) {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("[Discriminator] real scores have shape %v, but fake scores have shape %v", realScores.Shape(), fakeScores.Shape()))
	}
	realLoss, err := BinaryCrossEntropyToLabel(realScores, 1)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator] Can't define loss on real samples")
	}
	fakeLoss, err := BinaryCrossEntropyToLabel(fakeScores, 0)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator] Can't define loss on fake samples")
	}
	total, err := gorgonia.Add(realLoss, fakeLoss)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator] Can't do (real_loss+fake_loss)")
	}
	return total, nil
}

// mirror Defines a copy of discriminator on another graph. Copy's learnables get names with provided suffix and current values of the source.
// The copy is never trained by itself: its values are expected to be synchronized with the source (see syncMirror).
func (net *DiscriminatorNet) mirror(g *gorgonia.ExprGraph, suffix string) (*DiscriminatorNet, error) {
	copied := &DiscriminatorNet{
		private: &Network{
			Name:   net.private.Name + suffix,
			Layers: make([]*Layer, len(net.private.Layers)),
		},
		imageSize: net.imageSize,
	}
	clone := func(n *gorgonia.Node) *gorgonia.Node {
		if n == nil {
			return nil
		}
		return gorgonia.NewTensor(g, gorgonia.Float64, n.Dims(), gorgonia.WithShape(n.Shape()...), gorgonia.WithName(n.Name()+suffix), gorgonia.WithValue(n.Value()))
	}
	for i, l := range net.private.Layers {
		if l.WeightNode == nil && !noWeightsAllowed(l.Type) {
			return nil, fmt.Errorf("Discriminator's Layer %d has nil weight node", i)
		}
		copied.private.Layers[i] = &Layer{
			WeightNode:        clone(l.WeightNode),
			BiasNode:          clone(l.BiasNode),
			ScaleNode:         clone(l.ScaleNode),
			ShiftNode:         clone(l.ShiftNode),
			Activation:        l.Activation,
			ActivationOptions: l.ActivationOptions,
			Type:              l.Type,
			KernelHeight:      l.KernelHeight,
			KernelWidth:       l.KernelWidth,
			Padding:           l.Padding,
			Stride:            l.Stride,
			Dilation:          l.Dilation,
			ReshapeDims:       l.ReshapeDims,
			TransposeAxes:     l.TransposeAxes,
		}
	}
	return copied, nil
}
