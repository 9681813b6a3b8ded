package dcgan_go

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// tinyConfig Smallest model which still has every stage of the full one
func tinyConfig() Config {
	cfg := DefaultConfig()
	cfg.LatentDim = 8
	cfg.BatchSize = 2
	cfg.ImageSize = 16
	cfg.BaseFilters = 2
	cfg.NumEpochs = 1
	cfg.Seed = 42
	cfg.Logger = DiscardLogger()
	return cfg
}

func randomImages(rng *rand.Rand, n, size int) *tensor.Dense {
	data := make([]float64, n*size*size*3)
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	return tensor.New(tensor.WithShape(n, size, size, 3), tensor.WithBacking(data))
}

func newTestGAN(t *testing.T, cfg Config) *GAN {
	t.Helper()
	gan, err := NewGAN(cfg)
	if err != nil {
		t.Fatalf("Can't create GAN: %s", err)
	}
	t.Cleanup(func() { gan.Close() })
	return gan
}

func flattenParams(t *testing.T, records []ParamRecord) []float64 {
	t.Helper()
	flat := []float64{}
	for _, rec := range records {
		flat = append(flat, rec.Data...)
	}
	return flat
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGeneratorOutput(t *testing.T) {
	cfg := tinyConfig()
	gan := newTestGAN(t, cfg)
	images, err := gan.Generate(gan.Noise())
	if err != nil {
		t.Fatal(err)
	}
	want := tensor.Shape{cfg.BatchSize, cfg.ImageSize, cfg.ImageSize, 3}
	if !images.Shape().Eq(want) {
		t.Fatalf("Generated shape should be %v, but got %v", want, images.Shape())
	}
	for i, v := range images.Data().([]float64) {
		if v < -1 || v > 1 || math.IsNaN(v) {
			t.Fatalf("Generated value #%d should be in [-1, 1], but got %f", i, v)
		}
	}
}

func TestGeneratorIdempotence(t *testing.T) {
	gan := newTestGAN(t, tinyConfig())
	noise := gan.Noise()
	first, err := gan.Generate(noise)
	if err != nil {
		t.Fatal(err)
	}
	second, err := gan.Generate(noise)
	if err != nil {
		t.Fatal(err)
	}
	if !equalFloats(first.Data().([]float64), second.Data().([]float64)) {
		t.Error("Generator's output should not change for the same parameters and input")
	}
}

func TestDiscriminatorOutput(t *testing.T) {
	cfg := tinyConfig()
	gan := newTestGAN(t, cfg)
	images := randomImages(rand.New(rand.NewSource(1)), cfg.BatchSize, cfg.ImageSize)
	scores, err := gan.Discriminate(images)
	if err != nil {
		t.Fatal(err)
	}
	if !scores.Shape().Eq(tensor.Shape{cfg.BatchSize, 1}) {
		t.Fatalf("Scores shape should be [%d 1], but got %v", cfg.BatchSize, scores.Shape())
	}
	for i, v := range scores.Data().([]float64) {
		if v <= 0 || v >= 1 {
			t.Errorf("Score #%d should be in (0, 1), but got %f", i, v)
		}
	}
	again, err := gan.Discriminate(images)
	if err != nil {
		t.Fatal(err)
	}
	if !equalFloats(scores.Data().([]float64), again.Data().([]float64)) {
		t.Error("Discriminator's output should not change for the same parameters and input")
	}
}

func TestShapeMismatch(t *testing.T) {
	cfg := tinyConfig()
	gan := newTestGAN(t, cfg)
	rng := rand.New(rand.NewSource(1))
	cases := []struct {
		name string
		run  func() error
	}{
		{"discriminate wrong batch", func() error {
			_, err := gan.Discriminate(randomImages(rng, cfg.BatchSize+1, cfg.ImageSize))
			return err
		}},
		{"discriminate wrong size", func() error {
			_, err := gan.Discriminate(randomImages(rng, cfg.BatchSize, cfg.ImageSize*2))
			return err
		}},
		{"discriminate wrong channels", func() error {
			_, err := gan.Discriminate(tensor.New(tensor.WithShape(cfg.BatchSize, cfg.ImageSize, cfg.ImageSize, 1), tensor.WithBacking(make([]float64, cfg.BatchSize*cfg.ImageSize*cfg.ImageSize))))
			return err
		}},
		{"generate wrong latent", func() error {
			_, err := gan.Generate(UniformRandDense(rng, cfg.BatchSize, cfg.LatentDim+1, -1, 1))
			return err
		}},
		{"step wrong real batch", func() error {
			_, err := gan.Step(0, randomImages(rng, cfg.BatchSize, cfg.ImageSize/2))
			return err
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.run()
			if !errors.Is(err, ErrShapeMismatch) {
				t.Errorf("Error should be ErrShapeMismatch, but got %v", err)
			}
		})
	}
}

func TestUpdateCadence(t *testing.T) {
	cfg := tinyConfig()
	cfg.NumGenUpdates = 2
	gan := newTestGAN(t, cfg)
	rng := rand.New(rand.NewSource(7))

	for iteration := 0; iteration < 10; iteration++ {
		before, err := gan.Snapshot()
		if err != nil {
			t.Fatal(err)
		}
		res, err := gan.Step(iteration, randomImages(rng, cfg.BatchSize, cfg.ImageSize))
		if err != nil {
			t.Fatalf("Iteration %d: %s", iteration, err)
		}
		after, err := gan.Snapshot()
		if err != nil {
			t.Fatal(err)
		}
		genChanged := !equalFloats(flattenParams(t, before.Generator), flattenParams(t, after.Generator))
		discChanged := !equalFloats(flattenParams(t, before.Discriminator), flattenParams(t, after.Discriminator))
		wantDisc := iteration%2 == 0
		if !genChanged {
			t.Errorf("Iteration %d: generator should be updated", iteration)
		}
		if discChanged != wantDisc {
			t.Errorf("Iteration %d: discriminator updated = %t, but should be %t", iteration, discChanged, wantDisc)
		}
		if res.DiscriminatorUpdated != wantDisc {
			t.Errorf("Iteration %d: step reports discriminator updated = %t, but should be %t", iteration, res.DiscriminatorUpdated, wantDisc)
		}
		if math.IsNaN(res.GeneratorLoss) || math.IsNaN(res.DiscriminatorLoss) {
			t.Errorf("Iteration %d: losses should be finite, got %f and %f", iteration, res.GeneratorLoss, res.DiscriminatorLoss)
		}
	}
	if gan.solverGenerator.Iterations() != 10 {
		t.Errorf("Generator's solver should do 10 steps, but did %d", gan.solverGenerator.Iterations())
	}
	if gan.solverDiscriminator.Iterations() != 5 {
		t.Errorf("Discriminator's solver should do 5 steps, but did %d", gan.solverDiscriminator.Iterations())
	}
}

func TestMirrorFollowsDiscriminator(t *testing.T) {
	cfg := tinyConfig()
	gan := newTestGAN(t, cfg)
	rng := rand.New(rand.NewSource(3))
	if _, err := gan.Step(0, randomImages(rng, cfg.BatchSize, cfg.ImageSize)); err != nil {
		t.Fatal(err)
	}
	if err := gan.syncMirror(); err != nil {
		t.Fatal(err)
	}
	src, err := recordParams(gan.DiscriminatorLearnables())
	if err != nil {
		t.Fatal(err)
	}
	dst, err := recordParams(gan.modifiedDiscriminator.Learnables())
	if err != nil {
		t.Fatal(err)
	}
	if !equalFloats(flattenParams(t, src), flattenParams(t, dst)) {
		t.Error("Mirror should hold discriminator's values after synchronization")
	}
}

func TestRestoreAfterStepFails(t *testing.T) {
	cfg := tinyConfig()
	gan := newTestGAN(t, cfg)
	snap, err := gan.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if _, err = gan.Step(0, randomImages(rand.New(rand.NewSource(1)), cfg.BatchSize, cfg.ImageSize)); err != nil {
		t.Fatal(err)
	}
	if err = gan.Restore(snap); err == nil {
		t.Error("Restore after training step should fail")
	}
}

func TestNewGANInvalidDevice(t *testing.T) {
	cfg := tinyConfig()
	cfg.Device = "GPU:0"
	_, err := NewGAN(cfg)
	if !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("Error should be ErrInvalidDevice, but got %v", err)
	}
}

func TestLearnables(t *testing.T) {
	gan := newTestGAN(t, tinyConfig())
	snap, err := gan.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	gen := gan.GeneratorLearnables()
	disc := gan.DiscriminatorLearnables()
	if len(gen) == 0 || len(gen) != len(snap.Generator) {
		t.Errorf("Generator should have %d learnables, but got %d", len(snap.Generator), len(gen))
	}
	if len(disc) == 0 || len(disc) != len(snap.Discriminator) {
		t.Errorf("Discriminator should have %d learnables, but got %d", len(snap.Discriminator), len(disc))
	}
	names := map[string]bool{}
	for _, n := range append(append(gorgonia.Nodes{}, gen...), disc...) {
		if names[n.Name()] {
			t.Errorf("Learnable '%s' is shared between parts", n.Name())
		}
		names[n.Name()] = true
	}
}
