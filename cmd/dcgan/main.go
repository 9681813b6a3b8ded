package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	dcgan "github.com/LdDl/dcgan-go"
)

func main() {
	cfg := dcgan.DefaultConfig()
	mode := string(cfg.Mode)
	flag.StringVar(&cfg.ImgDir, "img-dir", cfg.ImgDir, "Directory with training images (jpg, png)")
	flag.StringVar(&cfg.OutDir, "out-dir", cfg.OutDir, "Directory for samples and plots")
	flag.StringVar(&cfg.CheckpointDir, "checkpoint-dir", cfg.CheckpointDir, "Directory for checkpoints")
	flag.StringVar(&mode, "mode", mode, "Mode: train or test")
	flag.BoolVar(&cfg.RestoreCheckpoint, "restore-checkpoint", false, "Restore the latest checkpoint before training")
	flag.IntVar(&cfg.LatentDim, "z-dim", cfg.LatentDim, "Latent space dimensionality")
	flag.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Batch size")
	flag.IntVar(&cfg.NumDataThreads, "num-data-threads", cfg.NumDataThreads, "Number of image decoding goroutines")
	flag.IntVar(&cfg.NumEpochs, "num-epochs", cfg.NumEpochs, "Number of epochs")
	flag.Float64Var(&cfg.LearnRate, "learn-rate", cfg.LearnRate, "Learning rate")
	flag.Float64Var(&cfg.Beta1, "beta1", cfg.Beta1, "Adam's first moment decay")
	flag.IntVar(&cfg.NumGenUpdates, "num-gen-updates", cfg.NumGenUpdates, "Generator updates per discriminator update")
	flag.IntVar(&cfg.LogEvery, "log-every", cfg.LogEvery, "Log losses every N iterations")
	flag.IntVar(&cfg.SaveEvery, "save-every", cfg.SaveEvery, "Save checkpoint every N iterations")
	flag.IntVar(&cfg.EvalEvery, "eval-every", cfg.EvalEvery, "Evaluate FID every N iterations")
	flag.StringVar(&cfg.Device, "device", cfg.Device, "Compute device")
	flag.IntVar(&cfg.ScaleModel, "scale-model", cfg.ScaleModel, "Width multiplier of hidden channels")
	flag.Int64Var(&cfg.Seed, "seed", 0, "Random seed (0 means current time)")
	numSamples := flag.Int("num-samples", 0, "Number of images to sample in test mode (0 means batch size)")
	inceptionModel := flag.String("inception-model", "", "Path to Inception-v3 ONNX file (requires -tags ort). Pooled pixels are used when empty")
	flag.Parse()
	cfg.Mode = dcgan.Mode(mode)
	cfg.Logger = log.New(os.Stdout, "", log.LstdFlags)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %s\n", err)
		os.Exit(1)
	}
	fmt.Println("Configuration:", cfg)

	var err error
	switch cfg.Mode {
	case dcgan.ModeTrain:
		err = train(cfg, *inceptionModel)
	case dcgan.ModeTest:
		n := *numSamples
		if n <= 0 {
			n = cfg.BatchSize
		}
		err = test(cfg, n)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func train(cfg dcgan.Config, inceptionModel string) error {
	source, err := dcgan.NewImageDirSource(cfg)
	if err != nil {
		return err
	}
	defer source.Close()

	var embedder dcgan.Embedder = dcgan.NewPooledPixelEmbedder(dcgan.DefaultPoolGrid)
	if inceptionModel == "" {
		cfg.Logger.Printf("No Inception model provided: FID is computed on %dx%d pooled pixel features and is not comparable to Inception FID\n", dcgan.DefaultPoolGrid, dcgan.DefaultPoolGrid)
	} else {
		inception, err := dcgan.NewInceptionEmbedder(dcgan.DefaultInceptionConfig(inceptionModel))
		if err != nil {
			return err
		}
		defer inception.Close()
		embedder = inception
	}

	model, err := dcgan.NewGAN(cfg)
	if err != nil {
		return err
	}
	defer model.Close()

	checkpoints, err := dcgan.NewCheckpointManager(cfg.CheckpointDir, cfg.KeepCheckpoints)
	if err != nil {
		return err
	}
	trainer, err := dcgan.NewTrainer(cfg, model, checkpoints, dcgan.NewFeatureDistanceEvaluator(embedder))
	if err != nil {
		return err
	}
	if cfg.RestoreCheckpoint {
		if _, err = trainer.RestoreLatest(); err != nil {
			return err
		}
	}
	summaries, err := trainer.Train(source)
	if err != nil {
		return err
	}
	for _, s := range summaries {
		fmt.Printf("Epoch #%d: iterations = %d, mean FID = %.4f\n", s.Epoch, s.Iterations, s.MeanFID)
	}
	if err = os.MkdirAll(cfg.OutDir, 0755); err != nil {
		return err
	}
	return trainer.History().Plot(filepath.Join(cfg.OutDir, "losses.png"))
}

func test(cfg dcgan.Config, numSamples int) error {
	model, err := dcgan.NewGAN(cfg)
	if err != nil {
		return err
	}
	defer model.Close()

	checkpoints, err := dcgan.NewCheckpointManager(cfg.CheckpointDir, cfg.KeepCheckpoints)
	if err != nil {
		return err
	}
	trainer, err := dcgan.NewTrainer(cfg, model, checkpoints, nil)
	if err != nil {
		return err
	}
	if _, err = trainer.RestoreLatest(); err != nil {
		return err
	}
	if err = dcgan.SampleToWriter(model, numSamples, &dcgan.PNGDirWriter{Dir: cfg.OutDir}); err != nil {
		return err
	}
	fmt.Printf("Wrote %d samples to '%s'\n", numSamples, cfg.OutDir)
	return nil
}
