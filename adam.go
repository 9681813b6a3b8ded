package dcgan_go

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Moments Adam's running estimates for a single learnable
type Moments struct {
	Name   string
	First  []float64
	Second []float64
}

// OptimizerState Everything AdamSolver needs to continue training after restart
type OptimizerState struct {
	Iter    int
	Moments []Moments
}

// AdamSolver Adaptive moment estimation (https://arxiv.org/abs/1412.6980) for float64 learnables.
//
// Satisfies gorgonia.Solver. Unlike gorgonia's own Adam, moments are exported via State/SetState,
// so they could be stored into checkpoints.
// Moments are bound to learnables by position: Step must be called with the same ordered set of learnables every time.
//
type AdamSolver struct {
	LearnRate float64
	Beta1     float64
	Beta2     float64
	Epsilon   float64

	iter    int
	moments []Moments
}

// NewAdamSolver Constructor for AdamSolver
func NewAdamSolver(learnRate, beta1, beta2, epsilon float64) *AdamSolver {
	return &AdamSolver{
		LearnRate: learnRate,
		Beta1:     beta1,
		Beta2:     beta2,
		Epsilon:   epsilon,
	}
}

// Step Applies gradients of provided learnables to their values in-place
func (s *AdamSolver) Step(model []gorgonia.ValueGrad) error {
	if s.moments == nil {
		s.moments = make([]Moments, len(model))
	}
	if len(model) != len(s.moments) {
		return fmt.Errorf("Adam has moments for %d learnables, but got %d learnables", len(s.moments), len(model))
	}
	s.iter++
	t := float64(s.iter)
	// Bias correction is folded into step size
	stepSize := s.LearnRate * math.Sqrt(1-math.Pow(s.Beta2, t)) / (1 - math.Pow(s.Beta1, t))

	for i, vg := range model {
		weights, err := float64Data(vg.Value())
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't access value of learnable #%d", i))
		}
		gradValue, err := vg.Grad()
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't access gradient of learnable #%d", i))
		}
		grads, err := float64Data(gradValue)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't access gradient of learnable #%d", i))
		}
		if len(grads) != len(weights) {
			return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("learnable #%d has %d values, but %d gradients", i, len(weights), len(grads)))
		}

		m := &s.moments[i]
		if n, ok := vg.(*gorgonia.Node); ok {
			if m.Name == "" {
				m.Name = n.Name()
			} else if m.Name != n.Name() {
				return fmt.Errorf("Adam's moments #%d belong to '%s', but learnable is '%s'", i, m.Name, n.Name())
			}
		}
		if m.First == nil {
			m.First = make([]float64, len(weights))
			m.Second = make([]float64, len(weights))
		}
		if len(m.First) != len(weights) || len(m.Second) != len(weights) {
			return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("moments of learnable #%d have %d values, but learnable has %d", i, len(m.First), len(weights)))
		}
		for j, g := range grads {
			m.First[j] = s.Beta1*m.First[j] + (1-s.Beta1)*g
			m.Second[j] = s.Beta2*m.Second[j] + (1-s.Beta2)*g*g
			weights[j] -= stepSize * m.First[j] / (math.Sqrt(m.Second[j]) + s.Epsilon)
			grads[j] = 0
		}
	}
	return nil
}

// Iterations Returns number of applied steps
func (s *AdamSolver) Iterations() int {
	return s.iter
}

// State Returns deep copy of solver's state
func (s *AdamSolver) State() OptimizerState {
	state := OptimizerState{
		Iter:    s.iter,
		Moments: make([]Moments, len(s.moments)),
	}
	for i, m := range s.moments {
		state.Moments[i] = Moments{
			Name:   m.Name,
			First:  append([]float64(nil), m.First...),
			Second: append([]float64(nil), m.Second...),
		}
	}
	return state
}

// SetState Replaces solver's state with deep copy of provided one
func (s *AdamSolver) SetState(state OptimizerState) error {
	if state.Iter < 0 {
		return fmt.Errorf("Adam's iteration counter can't be negative, but got %d", state.Iter)
	}
	moments := make([]Moments, len(state.Moments))
	for i, m := range state.Moments {
		if len(m.First) != len(m.Second) {
			return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("moments of '%s' have %d and %d values", m.Name, len(m.First), len(m.Second)))
		}
		moments[i] = Moments{
			Name:   m.Name,
			First:  append([]float64(nil), m.First...),
			Second: append([]float64(nil), m.Second...),
		}
	}
	if len(moments) == 0 {
		moments = nil
	}
	s.iter = state.Iter
	s.moments = moments
	return nil
}

// float64Data Returns backing slice of float64 dense tensor
func float64Data(v gorgonia.Value) ([]float64, error) {
	dense, ok := v.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("expected *tensor.Dense, but got %T", v)
	}
	data, ok := dense.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("expected float64 data, but got %T", dense.Data())
	}
	return data, nil
}
