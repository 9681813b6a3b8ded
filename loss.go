package dcgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

type LossReduction uint16

const (
	LossReductionSum = LossReduction(iota)
	LossReductionMean
)

// BinaryCrossEntropyLoss See ref. https://en.wikipedia.org/wiki/Cross_entropy#Cross-entropy_loss_function_and_logistic_regression
// Pretty the same as CrossEntropyLoss. BUT for C=2, where C - number of classes
// In case of binary variation of cross entropy loss: sample could belong to 0 or 1 only.
//
// a - predicted probabilities
// b - target labels (same shape as a)
// Both log(a) and log(1-a) are evaluated with StableLogNode, so probabilities of exactly 0 or 1 are fine.
// Default reduction is 'mean'
//
func BinaryCrossEntropyLoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	if !a.Shape().Eq(b.Shape()) {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("predictions have shape %v, but targets have shape %v", a.Shape(), b.Shape()))
	}
	logMain, err := StableLogNode(a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(A)")
	}
	hprodMain, err := gorgonia.HadamardProd(logMain, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (log(A).*B)")
	}

	onesTensor := gorgonia.NewTensor(a.Graph(), a.Dtype(), a.Dims(), gorgonia.WithShape(a.Shape()...), gorgonia.WithInit(gorgonia.Ones()))
	oneMinusA, err := gorgonia.Sub(onesTensor, a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-A)")
	}
	logBin, err := StableLogNode(oneMinusA)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(1-A)")
	}
	oneMinusB, err := gorgonia.Sub(onesTensor, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-B)")
	}
	hprodBin, err := gorgonia.HadamardProd(logBin, oneMinusB)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (log(1-A).*(1-B))")
	}
	sum, err := gorgonia.Add(hprodMain, hprodBin)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	neg, err := gorgonia.Neg(sum)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do -1*x")
	}

	reductionDefault := LossReductionMean
	if len(reduction) != 0 {
		reductionDefault = reduction[0]
	}
	switch reductionDefault {
	case LossReductionSum:
		return gorgonia.Sum(neg)
	case LossReductionMean:
		return gorgonia.Mean(neg)
	default:
		return nil, fmt.Errorf("Reduction type %d is not supported", reductionDefault)
	}
}

// BinaryCrossEntropyToLabel Binary cross entropy of predictions against a constant label (0 or 1) for every sample
func BinaryCrossEntropyToLabel(a *gorgonia.Node, label float64, reduction ...LossReduction) (*gorgonia.Node, error) {
	init := gorgonia.Zeroes()
	if label != 0 {
		init = gorgonia.ValuesOf(label)
	}
	target := gorgonia.NewTensor(a.Graph(), a.Dtype(), a.Dims(), gorgonia.WithShape(a.Shape()...), gorgonia.WithInit(init), gorgonia.WithName(fmt.Sprintf("%s_target_%g", a.Name(), label)))
	return BinaryCrossEntropyLoss(a, target, reduction...)
}

// BinaryCrossEntropy Plain-Go counterpart of BinaryCrossEntropyToLabel with mean reduction. Used for reporting.
func BinaryCrossEntropy(predictions []float64, label float64) float64 {
	if len(predictions) == 0 {
		return 0
	}
	total := 0.0
	for _, p := range predictions {
		total -= label*StableLog(p) + (1-label)*StableLog(1-p)
	}
	return total / float64(len(predictions))
}
