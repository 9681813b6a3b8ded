package dcgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// Network Abstraction for neural network.
//
// Name - prefix for names of intermediate nodes
// Layers - simple sequence of layers
//
// The same Network could be applied to several inputs of the same graph: learnables are shared between all of them.
//
type Network struct {
	Name   string
	Layers []*Layer
}

// Learnables Returns learnables nodes
func (net *Network) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, 4*len(net.Layers))
	for _, l := range net.Layers {
		if l != nil {
			learnables = append(learnables, l.Learnables()...)
		}
	}
	return learnables
}

// Fwd Initializates feedforward for provided input and returns activated output of the last layer
//
// input - Input node
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
// tag - suffix for names of intermediate nodes, so several applications of the network could be distinguished
//
func (net *Network) Fwd(input *gorgonia.Node, batchSize int, tag string) (*gorgonia.Node, error) {
	networkName := "network"
	if net.Name != "" {
		networkName = net.Name
	}
	if tag != "" {
		networkName = networkName + "_" + tag
	}

	if len(net.Layers) == 0 {
		return nil, fmt.Errorf("Network must have one layer atleast")
	}

	lastActivatedLayer := input
	for i := range net.Layers {
		if net.Layers[i] == nil {
			return nil, fmt.Errorf("Network's layer #%d is nil", i)
		}
		if net.Layers[i].WeightNode == nil && !noWeightsAllowed(net.Layers[i].Type) {
			return nil, fmt.Errorf("Network's layer's #%d WeightNode is nil", i)
		}
		// Feedforward input through i-th layer
		layerNonActivated, err := net.Layers[i].Fwd(batchSize, lastActivatedLayer)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[Network, Layer #%d] Can't feedforward input before activation", i))
		}
		gorgonia.WithName(fmt.Sprintf("%s_%d", networkName, i))(layerNonActivated)
		activation := net.Layers[i].Activation
		if activation == nil {
			activation = NoActivation
		}
		// Activate i-th layer's output
		layerActivated, err := activation(layerNonActivated, net.Layers[i].ActivationOptions)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't apply activation function to non-activated output of Network's layer #%d", i))
		}
		if layerActivated != layerNonActivated {
			gorgonia.WithName(fmt.Sprintf("%s_activated_%d", networkName, i))(layerActivated)
		}
		lastActivatedLayer = layerActivated
	}
	return lastActivatedLayer, nil
}
