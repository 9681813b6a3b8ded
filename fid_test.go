package dcgan_go

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func TestFeatureDistanceSameBatch(t *testing.T) {
	batch := randomImages(rand.New(rand.NewSource(11)), 4, 16)
	ev := NewFeatureDistanceEvaluator(NewPooledPixelEmbedder(DefaultPoolGrid))
	score, err := ev.Score(batch, batch)
	if err != nil {
		t.Fatal(err)
	}
	if score < 0 || score > 1e-6 {
		t.Errorf("Distance between identical batches should be ~0, but got %g", score)
	}
}

func TestFeatureDistanceDifferentBatches(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	real := randomImages(rng, 4, 16)
	fake := randomImages(rng, 4, 16)
	ev := NewFeatureDistanceEvaluator(NewPooledPixelEmbedder(4))
	score, err := ev.Score(real, fake)
	if err != nil {
		t.Fatal(err)
	}
	if score <= 0 || math.IsNaN(score) {
		t.Errorf("Distance between different batches should be positive, but got %g", score)
	}
}

func TestFrechetDistanceShiftedMean(t *testing.T) {
	real := mat.NewDense(4, 2, []float64{
		1, 2,
		-1, 0,
		2, -2,
		0, 1,
	})
	shifted := mat.NewDense(4, 2, nil)
	for i := 0; i < 4; i++ {
		shifted.Set(i, 0, real.At(i, 0)+3)
		shifted.Set(i, 1, real.At(i, 1)-4)
	}
	// Same covariance, so only ||mu_r - mu_g||^2 = 9 + 16 is left
	d, err := FrechetDistance(real, shifted)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(d-25) > 1e-9 {
		t.Errorf("Distance should be 25, but got %f", d)
	}
}

func TestFrechetDistanceScaledCovariance(t *testing.T) {
	real := mat.NewDense(2, 1, []float64{-1, 1})
	scaled := mat.NewDense(2, 1, []float64{-2, 2})
	// var_r = 2, var_g = 8: 2 + 8 - 2*sqrt(16) = 2
	d, err := FrechetDistance(real, scaled)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(d-2) > 1e-9 {
		t.Errorf("Distance should be 2, but got %f", d)
	}
}

func TestFrechetDistanceErrors(t *testing.T) {
	single := mat.NewDense(1, 3, []float64{1, 2, 3})
	pair := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	narrow := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	if _, err := FrechetDistance(single, pair); err == nil {
		t.Error("Single sample should be rejected")
	}
	if _, err := FrechetDistance(pair, narrow); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Error should be ErrShapeMismatch, but got %v", err)
	}
}

func TestPooledPixelEmbedder(t *testing.T) {
	batch := randomImages(rand.New(rand.NewSource(13)), 3, 8)
	emb := NewPooledPixelEmbedder(2)
	features, err := emb.Embed(batch)
	if err != nil {
		t.Fatal(err)
	}
	rows, cols := features.Dims()
	if rows != 3 || cols != 12 {
		t.Fatalf("Features should be 3x12, but got %dx%d", rows, cols)
	}
	// Mean of cell means equals mean of the image per channel
	data := batch.Data().([]float64)
	for c := 0; c < 3; c++ {
		want := 0.0
		for p := 0; p < 64; p++ {
			want += data[p*3+c]
		}
		want /= 64
		got := 0.0
		for cell := 0; cell < 4; cell++ {
			got += features.At(0, cell*3+c)
		}
		got /= 4
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("Channel %d mean should be %f, but got %f", c, want, got)
		}
	}
}
