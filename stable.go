package dcgan_go

import (
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// LogFloor Smallest argument ever passed to a logarithm by StableLog and StableLogNode
const LogFloor = 1e-5

// StableLog Returns log(max(x, LogFloor)). It never returns -Inf.
func StableLog(x float64) float64 {
	if math.IsNaN(x) {
		return x
	}
	return math.Log(math.Max(x, LogFloor))
}

// StableLogNode Same contract as StableLog but on the graph.
//
// max(x, floor) is expressed as floor + relu(x - floor), so the gradient flows only where x > floor.
//
func StableLogNode(x *gorgonia.Node) (*gorgonia.Node, error) {
	floor := gorgonia.NewConstant(LogFloor)
	shifted, err := gorgonia.Sub(x, floor)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x-floor)")
	}
	rectified, err := gorgonia.Rectify(shifted)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do relu(x-floor)")
	}
	clamped, err := gorgonia.Add(rectified, floor)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (relu(x-floor)+floor)")
	}
	return gorgonia.Log(clamped)
}
