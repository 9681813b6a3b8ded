package dcgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Tape Tape machine over a training graph plus solver for its learnables.
//
// Every run of the machine is a Recording: forward pass, cost and gradients of the learnables.
// Recording's gradients are either applied by the solver or discarded; in both cases Release must be called.
//
type Tape struct {
	name       string
	vm         gorgonia.VM
	learnables gorgonia.Nodes
	solver     gorgonia.Solver
	active     bool
}

// NewTape Compiles tape machine for the graph. Gradients of learnables must be already defined by gorgonia.Grad
func NewTape(name string, g *gorgonia.ExprGraph, learnables gorgonia.Nodes, solver gorgonia.Solver) *Tape {
	return &Tape{
		name:       name,
		vm:         gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(learnables...)),
		learnables: learnables,
		solver:     solver,
	}
}

// Recording Result of a single run of the Tape. Lives until Release.
type Recording struct {
	tape     *Tape
	applied  bool
	released bool
}

// Record Runs forward and backward passes. Only one Recording of the Tape could be alive at a time.
func (t *Tape) Record() (*Recording, error) {
	if t.active {
		return nil, fmt.Errorf("Tape '%s' already has unreleased recording", t.name)
	}
	if err := t.vm.RunAll(); err != nil {
		t.vm.Reset()
		return nil, errors.Wrap(err, fmt.Sprintf("Can't run tape '%s'", t.name))
	}
	t.active = true
	return &Recording{tape: t}, nil
}

// Apply Applies recorded gradients to the learnables via solver
func (r *Recording) Apply() error {
	if r.released {
		return fmt.Errorf("Recording of tape '%s' is already released", r.tape.name)
	}
	if r.applied {
		return fmt.Errorf("Recording of tape '%s' is already applied", r.tape.name)
	}
	if err := r.tape.solver.Step(gorgonia.NodesToValueGrads(r.tape.learnables)); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't do solver step for tape '%s'", r.tape.name))
	}
	r.applied = true
	return nil
}

// Applied Returns true if gradients were applied
func (r *Recording) Applied() bool {
	return r.applied
}

// Release Discards gradients which were not applied and resets the machine. Safe to call more than once.
func (r *Recording) Release() {
	if r.released {
		return
	}
	r.released = true
	if !r.applied {
		zeroGrads(r.tape.learnables)
	}
	r.tape.vm.Reset()
	r.tape.active = false
}

// Close Releases tape machine
func (t *Tape) Close() error {
	return t.vm.Close()
}

func zeroGrads(nodes gorgonia.Nodes) {
	for _, n := range nodes {
		grad, err := n.Grad()
		if err != nil {
			continue
		}
		if dense, ok := grad.(*tensor.Dense); ok {
			dense.Zero()
		}
	}
}
