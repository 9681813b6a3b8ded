package dcgan_go

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"
)

// Evaluator Scores generated batch against real one. Lower is better
type Evaluator interface {
	Score(real, generated *tensor.Dense) (float64, error)
}

// FeatureDistanceEvaluator Fréchet distance between activations of real and generated images
//
// Both batches are resized to InputSize x InputSize and embedded by Embedder.
// Distance treats activations of each batch as Gaussian: ||mu_r - mu_g||^2 + tr(S_r + S_g - 2*(S_r*S_g)^(1/2)).
//
type FeatureDistanceEvaluator struct {
	Embedder  Embedder
	InputSize int
}

// NewFeatureDistanceEvaluator Evaluator for classifier with 299x299 input
func NewFeatureDistanceEvaluator(embedder Embedder) *FeatureDistanceEvaluator {
	return &FeatureDistanceEvaluator{
		Embedder:  embedder,
		InputSize: InceptionImageSize,
	}
}

// Score See Evaluator
func (ev *FeatureDistanceEvaluator) Score(real, generated *tensor.Dense) (float64, error) {
	if ev.Embedder == nil {
		return math.NaN(), fmt.Errorf("Evaluator has no embedder")
	}
	embedded := make([]*mat.Dense, 2)
	for i, batch := range []*tensor.Dense{real, generated} {
		resized, err := ResizeBatch(batch, ev.InputSize)
		if err != nil {
			return math.NaN(), errors.Wrap(err, "Can't resize batch")
		}
		embedded[i], err = ev.Embedder.Embed(resized)
		if err != nil {
			return math.NaN(), errors.Wrap(err, "Can't embed batch")
		}
	}
	return FrechetDistance(embedded[0], embedded[1])
}

// FrechetDistance Distance between two sets of activations (rows are samples). Needs at least 2 samples per set
func FrechetDistance(real, generated mat.Matrix) (float64, error) {
	realRows, realCols := real.Dims()
	genRows, genCols := generated.Dims()
	if realRows < 2 || genRows < 2 {
		return math.NaN(), fmt.Errorf("Fréchet distance needs at least 2 samples per set, but got %d and %d", realRows, genRows)
	}
	if realCols != genCols {
		return math.NaN(), errors.Wrap(ErrShapeMismatch, fmt.Sprintf("real activations have %d features, but generated have %d", realCols, genCols))
	}

	muReal := columnMeans(real)
	muGen := columnMeans(generated)
	meanTerm := 0.0
	for i := range muReal {
		d := muReal[i] - muGen[i]
		meanTerm += d * d
	}

	var covReal, covGen mat.SymDense
	stat.CovarianceMatrix(&covReal, real, nil)
	stat.CovarianceMatrix(&covGen, generated, nil)

	// tr((S_r*S_g)^(1/2)) == tr((S_r^(1/2) * S_g * S_r^(1/2))^(1/2)), and the latter matrix is symmetric
	sqrtReal, err := sqrtSym(&covReal)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "Can't take square root of real covariance")
	}
	var tmp, inner mat.Dense
	tmp.Mul(sqrtReal, &covGen)
	inner.Mul(&tmp, sqrtReal)
	innerEig, err := symEigenvalues(symmetrize(&inner))
	if err != nil {
		return math.NaN(), errors.Wrap(err, "Can't decompose covariances product")
	}
	traceSqrt := 0.0
	for _, v := range innerEig {
		traceSqrt += math.Sqrt(math.Max(v, 0))
	}

	dist := meanTerm + mat.Trace(&covReal) + mat.Trace(&covGen) - 2*traceSqrt
	if dist < 0 {
		dist = 0
	}
	return dist, nil
}

func columnMeans(m mat.Matrix) []float64 {
	rows, cols := m.Dims()
	means := make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)
		means[j] = stat.Mean(col, nil)
	}
	return means
}

// sqrtSym Principal square root of positive semi-definite matrix. Negative round-off eigenvalues are treated as zeros
func sqrtSym(a *mat.SymDense) (*mat.SymDense, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(a, true); !ok {
		return nil, fmt.Errorf("eigen decomposition did not converge")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	n := len(values)
	scaled := mat.NewDense(n, n, nil)
	scaled.Copy(&vectors)
	for j, v := range values {
		s := math.Sqrt(math.Max(v, 0))
		for i := 0; i < n; i++ {
			scaled.Set(i, j, scaled.At(i, j)*s)
		}
	}
	var root mat.Dense
	root.Mul(scaled, vectors.T())
	return symmetrize(&root), nil
}

func symEigenvalues(a *mat.SymDense) ([]float64, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(a, false); !ok {
		return nil, fmt.Errorf("eigen decomposition did not converge")
	}
	return eig.Values(nil), nil
}

// symmetrize (A + A^T) / 2
func symmetrize(a *mat.Dense) *mat.SymDense {
	n, _ := a.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, (a.At(i, j)+a.At(j, i))/2)
		}
	}
	return sym
}
