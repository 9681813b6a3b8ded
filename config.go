package dcgan_go

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/pkg/errors"
)

// Mode What the binary should do: train networks or sample images
type Mode string

const (
	ModeTrain = Mode("train")
	ModeTest  = Mode("test")
)

const (
	// DefaultLeakyAlpha Negative slope of discriminator's leaky ReLU
	DefaultLeakyAlpha = 0.02
	// DefaultInitStdDev Standard deviation of N(0, std) kernel initializer
	DefaultInitStdDev = 0.02
	// InceptionImageSize Spatial size expected by the feature extractor
	InceptionImageSize = 299
	// numUpsamplingStages Number of resolution doubling (halving) stages of generator (discriminator)
	numUpsamplingStages = 4
)

var (
	// ErrInvalidConfig Configuration values are out of their domain
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config Parameters of the whole training/sampling process. Parsed once at start and passed into constructors.
type Config struct {
	ImgDir        string
	OutDir        string
	CheckpointDir string
	Mode          Mode

	RestoreCheckpoint bool

	// Dimensionality of latent space
	LatentDim int
	BatchSize int
	// Number of goroutines loading and decoding images
	NumDataThreads int
	NumEpochs      int

	LearnRate   float64
	Beta1       float64
	Beta2       float64
	AdamEpsilon float64

	// Discriminator is updated once per NumGenUpdates generator updates
	NumGenUpdates int
	LogEvery      int
	SaveEvery     int
	EvalEvery     int
	// How many recent checkpoints are kept on disk
	KeepCheckpoints int

	// Compute device identifier, e.g. "CPU:0"
	Device string
	// Width multiplier of hidden channels
	ScaleModel int
	// Channels of the widest (first) discriminator stage before ScaleModel multiplication
	BaseFilters int
	// Height and width of images
	ImageSize  int
	LeakyAlpha float64
	InitStdDev float64

	// Seed for latent noise. Zero means seed from current time
	Seed int64

	Logger *log.Logger
}

// DefaultConfig Returns configuration with default values of every option
func DefaultConfig() Config {
	return Config{
		ImgDir:          "./data/celebA",
		OutDir:          "./output",
		CheckpointDir:   "./checkpoints",
		Mode:            ModeTrain,
		LatentDim:       100,
		BatchSize:       128,
		NumDataThreads:  2,
		NumEpochs:       10,
		LearnRate:       0.0002,
		Beta1:           0.5,
		Beta2:           0.999,
		AdamEpsilon:     1e-7,
		NumGenUpdates:   2,
		LogEvery:        7,
		SaveEvery:       500,
		EvalEvery:       500,
		KeepCheckpoints: 3,
		Device:          "CPU:0",
		ScaleModel:      1,
		BaseFilters:     64,
		ImageSize:       64,
		LeakyAlpha:      DefaultLeakyAlpha,
		InitStdDev:      DefaultInitStdDev,
	}
}

// Validate Checks every option. Returned errors are ErrInvalidConfig or ErrInvalidDevice
func (cfg Config) Validate() error {
	if cfg.Mode != ModeTrain && cfg.Mode != ModeTest {
		return errors.Wrapf(ErrInvalidConfig, "mode must be '%s' or '%s', but got '%s'", ModeTrain, ModeTest, cfg.Mode)
	}
	positive := []struct {
		name  string
		value int
	}{
		{"latent dimensionality", cfg.LatentDim},
		{"batch size", cfg.BatchSize},
		{"number of data threads", cfg.NumDataThreads},
		{"number of epochs", cfg.NumEpochs},
		{"generator updates per discriminator update", cfg.NumGenUpdates},
		{"log interval", cfg.LogEvery},
		{"checkpoint interval", cfg.SaveEvery},
		{"evaluation interval", cfg.EvalEvery},
		{"checkpoints to keep", cfg.KeepCheckpoints},
		{"model scale", cfg.ScaleModel},
		{"base filters", cfg.BaseFilters},
		{"image size", cfg.ImageSize},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "%s must be positive, but got %d", p.name, p.value)
		}
	}
	if cfg.BatchSize < 2 {
		return errors.Wrapf(ErrInvalidConfig, "batch size must be at least 2 for batch normalization, but got %d", cfg.BatchSize)
	}
	stride := 1 << numUpsamplingStages
	if cfg.ImageSize%stride != 0 {
		return errors.Wrapf(ErrInvalidConfig, "image size must be divisible by %d, but got %d", stride, cfg.ImageSize)
	}
	if cfg.LearnRate <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "learning rate must be positive, but got %g", cfg.LearnRate)
	}
	if cfg.Beta1 < 0 || cfg.Beta1 >= 1 || cfg.Beta2 < 0 || cfg.Beta2 >= 1 {
		return errors.Wrapf(ErrInvalidConfig, "Adam betas must be in [0, 1), but got %g and %g", cfg.Beta1, cfg.Beta2)
	}
	if cfg.AdamEpsilon <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "Adam epsilon must be positive, but got %g", cfg.AdamEpsilon)
	}
	if cfg.LeakyAlpha < 0 || cfg.LeakyAlpha >= 1 {
		return errors.Wrapf(ErrInvalidConfig, "leaky ReLU slope must be in [0, 1), but got %g", cfg.LeakyAlpha)
	}
	if cfg.InitStdDev <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "initializer deviation must be positive, but got %g", cfg.InitStdDev)
	}
	if _, err := ParseDevice(cfg.Device); err != nil {
		return err
	}
	return nil
}

// logger Returns configured logger or stdout one
func (cfg Config) logger() *log.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return log.New(os.Stdout, "", log.LstdFlags)
}

// DiscardLogger Logger which writes nowhere
func DiscardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// startSize Spatial size of generator's first feature map
func (cfg Config) startSize() int {
	return cfg.ImageSize >> numUpsamplingStages
}

// filters Channels of the i-th discriminator stage (generator uses them in reverse)
func (cfg Config) filters(stage int) int {
	return cfg.BaseFilters * cfg.ScaleModel * (1 << stage)
}

func (cfg Config) String() string {
	return fmt.Sprintf("mode=%s device=%s z=%d batch=%d epochs=%d lr=%g beta1=%g gen_updates=%d image=%dx%d scale=%d",
		cfg.Mode, cfg.Device, cfg.LatentDim, cfg.BatchSize, cfg.NumEpochs, cfg.LearnRate, cfg.Beta1, cfg.NumGenUpdates, cfg.ImageSize, cfg.ImageSize, cfg.ScaleModel)
}
