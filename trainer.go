package dcgan_go

import (
	"fmt"
	"io"
	"log"
	"math"
	"time"

	"github.com/pkg/errors"
)

// EpochSummary Outcome of single epoch
type EpochSummary struct {
	Epoch      int
	Iterations int
	// Number of iterations which were evaluated
	Evaluations int
	// Mean of evaluation scores. NaN when nothing was evaluated during epoch
	MeanFID float64
	// Losses of the last iteration
	GeneratorLoss     float64
	DiscriminatorLoss float64
	// Path of checkpoint saved at epoch end (empty when checkpoints are disabled)
	Checkpoint string
}

// Trainer Drives adversarial training: fetches batches, steps GAN, saves checkpoints and evaluates periodically
type Trainer struct {
	cfg         Config
	gan         *GAN
	checkpoints *CheckpointManager
	evaluator   Evaluator
	history     *History
	log         *log.Logger
	epoch       int
}

// NewTrainer Creates trainer.
//
// gan - model to train
// checkpoints - where to persist state (nil disables saving)
// evaluator - quality metric (nil disables evaluation)
//
func NewTrainer(cfg Config, gan *GAN, checkpoints *CheckpointManager, evaluator Evaluator) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gan == nil {
		return nil, fmt.Errorf("Can't create trainer without GAN")
	}
	if gan.BatchSize() != cfg.BatchSize {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("GAN is built for batch size %d, but trainer is configured for %d", gan.BatchSize(), cfg.BatchSize))
	}
	return &Trainer{
		cfg:         cfg,
		gan:         gan,
		checkpoints: checkpoints,
		evaluator:   evaluator,
		history:     &History{},
		log:         cfg.logger(),
	}, nil
}

// History Returns losses and scores observed so far
func (t *Trainer) History() *History {
	return t.history
}

// RestoreLatest Loads the latest checkpoint into GAN. Returns false (and no error) when there is nothing to restore
func (t *Trainer) RestoreLatest() (bool, error) {
	if t.checkpoints == nil {
		return false, nil
	}
	snap, err := t.checkpoints.RestoreLatest()
	if err != nil {
		if errors.Is(err, ErrCheckpointNotFound) {
			t.log.Printf("No checkpoint in '%s', starting from scratch\n", t.checkpoints.Dir())
			return false, nil
		}
		return false, err
	}
	if err = t.gan.Restore(snap); err != nil {
		return false, errors.Wrap(ErrCheckpointCorrupted, fmt.Sprintf("checkpoint %d doesn't fit the model: %s", snap.ID, err))
	}
	t.log.Printf("Restored checkpoint %d\n", snap.ID)
	return true, nil
}

// Train Runs NumEpochs epochs, source is reset before each of them
func (t *Trainer) Train(source BatchSource) ([]EpochSummary, error) {
	summaries := make([]EpochSummary, 0, t.cfg.NumEpochs)
	for e := 0; e < t.cfg.NumEpochs; e++ {
		if err := source.Reset(); err != nil {
			return summaries, errors.Wrap(err, "Can't reset batch source")
		}
		summary, err := t.TrainEpoch(source)
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// TrainEpoch Iterates until source is exhausted (io.EOF). Iteration counter starts from zero every epoch
func (t *Trainer) TrainEpoch(source BatchSource) (EpochSummary, error) {
	summary := EpochSummary{
		Epoch:   t.epoch,
		MeanFID: math.NaN(),
	}
	st := time.Now()
	fidSum := 0.0
	for iteration := 0; ; iteration++ {
		real, err := source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, errors.Wrap(err, fmt.Sprintf("Can't fetch batch for iteration %d", iteration))
		}
		res, err := t.gan.Step(iteration, real)
		if err != nil {
			return summary, errors.Wrap(err, fmt.Sprintf("Can't do step on iteration %d", iteration))
		}
		summary.Iterations++
		summary.GeneratorLoss = res.GeneratorLoss
		summary.DiscriminatorLoss = res.DiscriminatorLoss

		if t.checkpoints != nil && iteration%t.cfg.SaveEvery == 0 {
			if _, err = t.save(); err != nil {
				return summary, err
			}
		}
		fid := math.NaN()
		if t.evaluator != nil && iteration%t.cfg.EvalEvery == 0 {
			fid, err = t.evaluator.Score(real, res.Fake)
			if err != nil {
				return summary, errors.Wrap(err, fmt.Sprintf("Can't evaluate iteration %d", iteration))
			}
			fidSum += fid
			summary.Evaluations++
			t.log.Printf("Epoch #%d, iteration #%d: FID = %.4f\n", t.epoch, iteration, fid)
		}
		t.history.Add(HistoryEntry{
			Epoch:             t.epoch,
			Iteration:         iteration,
			GeneratorLoss:     res.GeneratorLoss,
			DiscriminatorLoss: res.DiscriminatorLoss,
			FID:               fid,
		})
		if iteration%t.cfg.LogEvery == 0 {
			t.log.Printf("Epoch #%d, iteration #%d: generator loss = %.6f, discriminator loss = %.6f, discriminator updated = %t\n", t.epoch, iteration, res.GeneratorLoss, res.DiscriminatorLoss, res.DiscriminatorUpdated)
		}
	}
	if summary.Evaluations > 0 {
		summary.MeanFID = fidSum / float64(summary.Evaluations)
	}
	t.log.Printf("Epoch #%d done in %v: %d iterations, mean FID = %.4f over %d evaluations\n", t.epoch, time.Since(st), summary.Iterations, summary.MeanFID, summary.Evaluations)
	if t.checkpoints != nil {
		path, err := t.save()
		if err != nil {
			return summary, err
		}
		summary.Checkpoint = path
	}
	t.epoch++
	return summary, nil
}

func (t *Trainer) save() (string, error) {
	snap, err := t.gan.Snapshot()
	if err != nil {
		return "", errors.Wrap(err, "Can't snapshot GAN")
	}
	path, err := t.checkpoints.Save(snap)
	if err != nil {
		return "", errors.Wrap(err, "Can't save checkpoint")
	}
	t.log.Printf("Saved checkpoint %d to '%s'\n", snap.ID, path)
	return path, nil
}
