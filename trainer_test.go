package dcgan_go

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// countingSource Yields fixed number of random batches per epoch
type countingSource struct {
	rng     *rand.Rand
	batches int
	batch   int
	size    int
	served  int
	resets  int
}

func (src *countingSource) Next() (*tensor.Dense, error) {
	if src.served == src.batches {
		return nil, io.EOF
	}
	src.served++
	return randomImages(src.rng, src.batch, src.size), nil
}

func (src *countingSource) Reset() error {
	src.served = 0
	src.resets++
	return nil
}

type failingSource struct{}

func (failingSource) Next() (*tensor.Dense, error) { return nil, fmt.Errorf("disk is gone") }
func (failingSource) Reset() error                 { return nil }

// constantEvaluator Records how many times it was asked
type constantEvaluator struct {
	value float64
	calls int
}

func (ev *constantEvaluator) Score(real, generated *tensor.Dense) (float64, error) {
	ev.calls++
	return ev.value, nil
}

func newTestTrainer(t *testing.T, cfg Config, checkpoints *CheckpointManager, evaluator Evaluator) *Trainer {
	t.Helper()
	trainer, err := NewTrainer(cfg, newTestGAN(t, cfg), checkpoints, evaluator)
	if err != nil {
		t.Fatal(err)
	}
	return trainer
}

func TestEpochExhaustion(t *testing.T) {
	cfg := tinyConfig()
	src := &countingSource{rng: rand.New(rand.NewSource(1)), batches: 3, batch: cfg.BatchSize, size: cfg.ImageSize}

	t.Run("with evaluation", func(t *testing.T) {
		ev := &constantEvaluator{value: 2.5}
		trainer := newTestTrainer(t, cfg, nil, ev)
		src.Reset()
		summary, err := trainer.TrainEpoch(src)
		if err != nil {
			t.Fatal(err)
		}
		if summary.Iterations != 3 {
			t.Errorf("Epoch should have 3 iterations, but got %d", summary.Iterations)
		}
		// Only iteration 0 is divisible by EvalEvery
		if summary.Evaluations != 1 || ev.calls != 1 {
			t.Errorf("Epoch should have 1 evaluation, but got %d (%d calls)", summary.Evaluations, ev.calls)
		}
		if summary.MeanFID != 2.5 {
			t.Errorf("Mean score should be 2.5, but got %f", summary.MeanFID)
		}
		if trainer.History().Len() != 3 {
			t.Errorf("History should have 3 entries, but got %d", trainer.History().Len())
		}
	})

	t.Run("without evaluation", func(t *testing.T) {
		trainer := newTestTrainer(t, cfg, nil, nil)
		src.Reset()
		summary, err := trainer.TrainEpoch(src)
		if err != nil {
			t.Fatal(err)
		}
		if summary.Iterations != 3 {
			t.Errorf("Epoch should have 3 iterations, but got %d", summary.Iterations)
		}
		if summary.Evaluations != 0 {
			t.Errorf("Epoch should have no evaluations, but got %d", summary.Evaluations)
		}
		if !math.IsNaN(summary.MeanFID) {
			t.Errorf("Mean score should be NaN when nothing was evaluated, but got %f", summary.MeanFID)
		}
	})

	t.Run("with feature distance", func(t *testing.T) {
		trainer := newTestTrainer(t, cfg, nil, NewFeatureDistanceEvaluator(NewPooledPixelEmbedder(4)))
		src.Reset()
		summary, err := trainer.TrainEpoch(src)
		if err != nil {
			t.Fatal(err)
		}
		if math.IsNaN(summary.MeanFID) || math.IsInf(summary.MeanFID, 0) || summary.MeanFID < 0 {
			t.Errorf("Mean FID should be finite and non-negative, but got %f", summary.MeanFID)
		}
	})
}

func TestTrainerCheckpoints(t *testing.T) {
	cfg := tinyConfig()
	cfg.SaveEvery = 2
	cfg.NumEpochs = 2
	manager, err := NewCheckpointManager(t.TempDir(), 10)
	if err != nil {
		t.Fatal(err)
	}
	trainer := newTestTrainer(t, cfg, manager, nil)
	src := &countingSource{rng: rand.New(rand.NewSource(2)), batches: 3, batch: cfg.BatchSize, size: cfg.ImageSize}
	summaries, err := trainer.Train(src)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 || src.resets != 2 {
		t.Fatalf("Should run 2 epochs with 2 resets, but got %d epochs and %d resets", len(summaries), src.resets)
	}
	ids, err := manager.Checkpoints()
	if err != nil {
		t.Fatal(err)
	}
	// Iterations 0 and 2 plus forced save, per epoch
	if len(ids) != 6 {
		t.Errorf("Should save 6 checkpoints, but got %v", ids)
	}
	if summaries[1].Checkpoint == "" {
		t.Error("Epoch summary should refer to forced checkpoint")
	}

	restoring := newTestTrainer(t, cfg, manager, nil)
	restored, err := restoring.RestoreLatest()
	if err != nil {
		t.Fatal(err)
	}
	if !restored {
		t.Error("Latest checkpoint should be restored")
	}
}

func TestTrainerRestoreWithoutCheckpoints(t *testing.T) {
	manager, err := NewCheckpointManager(t.TempDir(), 3)
	if err != nil {
		t.Fatal(err)
	}
	trainer := newTestTrainer(t, tinyConfig(), manager, nil)
	restored, err := trainer.RestoreLatest()
	if err != nil {
		t.Fatalf("Missing checkpoint should not be an error, but got %s", err)
	}
	if restored {
		t.Error("Nothing should be restored")
	}
}

func TestTrainerFailures(t *testing.T) {
	cfg := tinyConfig()

	t.Run("source error", func(t *testing.T) {
		trainer := newTestTrainer(t, cfg, nil, nil)
		if _, err := trainer.TrainEpoch(failingSource{}); err == nil {
			t.Error("Source error should be propagated")
		}
	})

	t.Run("mismatched batch", func(t *testing.T) {
		trainer := newTestTrainer(t, cfg, nil, nil)
		src := &countingSource{rng: rand.New(rand.NewSource(3)), batches: 2, batch: cfg.BatchSize + 1, size: cfg.ImageSize}
		_, err := trainer.TrainEpoch(src)
		if !errors.Is(err, ErrShapeMismatch) {
			t.Errorf("Error should be ErrShapeMismatch, but got %v", err)
		}
	})

	t.Run("invalid device", func(t *testing.T) {
		gan := newTestGAN(t, cfg)
		bad := cfg
		bad.Device = "TPU:0"
		if _, err := NewTrainer(bad, gan, nil, nil); !errors.Is(err, ErrInvalidDevice) {
			t.Errorf("Error should be ErrInvalidDevice, but got %v", err)
		}
	})
}
