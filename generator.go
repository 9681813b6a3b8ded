package dcgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GeneratorNet Abstraction for generator part of GAN.
//
// Maps latent vectors [B, Z] to images [B, H, W, 3] bounded by tanh.
// Dense projection to a [8F, s, s] feature map is followed by four stages: nearest 2x upsampling + 5x5 convolution.
// Every stage except the last one is batch normalized and rectified, the last one is activated by tanh.
//
type GeneratorNet struct {
	private   *Network
	latentDim int
	imageSize int
}

// Generator Defines generator's learnables on the provided graph
//
// name - prefix for learnables' names (should be unique in the graph)
//
func Generator(g *gorgonia.ExprGraph, cfg Config, name string) *GeneratorNet {
	s := cfg.startSize()
	projected := cfg.filters(numUpsamplingStages - 1)

	layers := make([]*Layer, 0, 2+2*numUpsamplingStages+1)
	denseW := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(projected*s*s, cfg.LatentDim), gorgonia.WithName(name+"_w0"), gorgonia.WithInit(gorgonia.GlorotN(1.0)))
	layers = append(layers,
		&Layer{
			WeightNode: denseW,
			Type:       LayerLinear,
			Activation: NoActivation,
		},
		&Layer{
			Type:        LayerReshape,
			ReshapeDims: []int{projected, s, s},
			ScaleNode:   batchNormScale(g, projected, fmt.Sprintf("%s_gamma0", name)),
			ShiftNode:   batchNormShift(g, projected, fmt.Sprintf("%s_beta0", name)),
			Activation:  Rectify,
		},
	)

	inChannels := projected
	for stage := 1; stage <= numUpsamplingStages; stage++ {
		last := stage == numUpsamplingStages
		outChannels := 3
		if !last {
			outChannels = cfg.filters(numUpsamplingStages - 1 - stage)
		}
		conv := &Layer{
			WeightNode:   convKernel(g, cfg, outChannels, inChannels, fmt.Sprintf("%s_w%d", name, stage)),
			Type:         LayerConvolutional,
			KernelHeight: 5,
			KernelWidth:  5,
			Padding:      []int{2, 2},
			Stride:       []int{1, 1},
			Dilation:     []int{1, 1},
		}
		if last {
			conv.BiasNode = channelBias(g, outChannels, fmt.Sprintf("%s_b%d", name, stage))
			conv.Activation = Tanh
		} else {
			conv.ScaleNode = batchNormScale(g, outChannels, fmt.Sprintf("%s_gamma%d", name, stage))
			conv.ShiftNode = batchNormShift(g, outChannels, fmt.Sprintf("%s_beta%d", name, stage))
			conv.Activation = Rectify
		}
		layers = append(layers,
			&Layer{
				Type:       LayerUpsample,
				Activation: NoActivation,
			},
			conv,
		)
		inChannels = outChannels
	}
	// NCHW => NHWC
	layers = append(layers, &Layer{
		Type:          LayerTranspose,
		TransposeAxes: []int{0, 2, 3, 1},
		Activation:    NoActivation,
	})

	return &GeneratorNet{
		private: &Network{
			Name:   name,
			Layers: layers,
		},
		latentDim: cfg.LatentDim,
		imageSize: cfg.ImageSize,
	}
}

// Learnables Returns learnables nodes
func (net *GeneratorNet) Learnables() gorgonia.Nodes {
	return net.private.Learnables()
}

// Fwd Initializates feedforward for provided input and returns generated images node [B, H, W, 3]
//
// input - latent vectors node of shape [batchSize, Z]
// batchSize - batch size
//
func (net *GeneratorNet) Fwd(input *gorgonia.Node, batchSize int) (*gorgonia.Node, error) {
	want := tensor.Shape{batchSize, net.latentDim}
	if !input.Shape().Eq(want) {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("[Generator] latent input must have shape %v, but got %v", want, input.Shape()))
	}
	out, err := net.private.Fwd(input, batchSize, "")
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	return out, nil
}

// Loss Non-saturating generator objective: cross entropy of discriminator's scores on fakes against label 1
func (net *GeneratorNet) Loss(fakeScores *gorgonia.Node) (*gorgonia.Node, error) {
	loss, err := BinaryCrossEntropyToLabel(fakeScores, 1)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator] Can't define loss")
	}
	return loss, nil
}

func convKernel(g *gorgonia.ExprGraph, cfg Config, outChannels, inChannels int, name string) *gorgonia.Node {
	return gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(outChannels, inChannels, 5, 5), gorgonia.WithName(name), gorgonia.WithInit(gorgonia.Gaussian(0, cfg.InitStdDev)))
}

func channelBias(g *gorgonia.ExprGraph, channels int, name string) *gorgonia.Node {
	return gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(1, channels, 1, 1), gorgonia.WithName(name), gorgonia.WithInit(gorgonia.Zeroes()))
}

func batchNormScale(g *gorgonia.ExprGraph, channels int, name string) *gorgonia.Node {
	return gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(1, channels, 1, 1), gorgonia.WithName(name), gorgonia.WithInit(gorgonia.Ones()))
}

func batchNormShift(g *gorgonia.ExprGraph, channels int, name string) *gorgonia.Node {
	return gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(1, channels, 1, 1), gorgonia.WithName(name), gorgonia.WithInit(gorgonia.Zeroes()))
}
