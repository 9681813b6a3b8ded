package dcgan_go

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GAN DCGAN made of two evaluation graphs.
//
// Generator graph: latent input => generator => mirror of discriminator => generator's loss. Only generator's learnables get gradients there.
// Discriminator graph: real input and fake input => discriminator (shared learnables) => discriminator's loss.
//
// generatorPart - reference to Generator
// discriminatorPart - reference to Discriminator
// modifiedDiscriminator - copy of Discriminator living on generator graph. Its values are synchronized with discriminatorPart before every step and never trained
//
type GAN struct {
	cfg       Config
	batchSize int
	rng       *rand.Rand

	generatorPart         *GeneratorNet
	discriminatorPart     *DiscriminatorNet
	modifiedDiscriminator *DiscriminatorNet

	genGraph  *gorgonia.ExprGraph
	discGraph *gorgonia.ExprGraph

	inputGenerator *gorgonia.Node
	inputReal      *gorgonia.Node
	inputFake      *gorgonia.Node

	generatedSamples  gorgonia.Value
	mirrorScores      gorgonia.Value
	costGenerator     gorgonia.Value
	realScores        gorgonia.Value
	fakeScores        gorgonia.Value
	costDiscriminator gorgonia.Value

	// Forward-only machines: compiled before losses were defined, so they do not compute gradients
	vmGenerator     gorgonia.VM
	vmDiscriminator gorgonia.VM

	tapeGenerator     *Tape
	tapeDiscriminator *Tape

	solverGenerator     *AdamSolver
	solverDiscriminator *AdamSolver

	steps int
}

// StepResult Outcome of single training step
type StepResult struct {
	GeneratorLoss     float64
	DiscriminatorLoss float64
	// Whether discriminator's gradients were applied on this step
	DiscriminatorUpdated bool
	// Generated batch [B, H, W, 3] which has been fed to discriminator
	Fake *tensor.Dense
}

// NewGAN Defines both graphs, their gradients, machines and solvers
func NewGAN(cfg Config) (*GAN, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gan := &GAN{
		cfg:       cfg,
		batchSize: cfg.BatchSize,
		rng:       rand.New(rand.NewSource(seed)),
		genGraph:  gorgonia.NewGraph(),
		discGraph: gorgonia.NewGraph(),
	}
	B := cfg.BatchSize

	// Generator on its own evaluation graph
	gan.generatorPart = Generator(gan.genGraph, cfg, "generator")
	gan.inputGenerator = gorgonia.NewMatrix(gan.genGraph, gorgonia.Float64, gorgonia.WithShape(B, cfg.LatentDim), gorgonia.WithName("generator_input"))
	generatorOut, err := gan.generatorPart.Fwd(gan.inputGenerator, B)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define generator feedforward")
	}
	gorgonia.Read(generatorOut, &gan.generatedSamples)
	gan.vmGenerator = gorgonia.NewTapeMachine(gan.genGraph)

	// Discriminator on its own evaluation graph: real branch first, so forward-only machine covers it only
	gan.discriminatorPart = Discriminator(gan.discGraph, cfg, "discriminator")
	gan.inputReal = gorgonia.NewTensor(gan.discGraph, gorgonia.Float64, 4, gorgonia.WithShape(B, cfg.ImageSize, cfg.ImageSize, 3), gorgonia.WithName("discriminator_real_input"))
	realOut, err := gan.discriminatorPart.Fwd(gan.inputReal, B, "real")
	if err != nil {
		return nil, errors.Wrap(err, "Can't define discriminator feedforward on real samples")
	}
	gorgonia.Read(realOut, &gan.realScores)
	gan.vmDiscriminator = gorgonia.NewTapeMachine(gan.discGraph)

	gan.inputFake = gorgonia.NewTensor(gan.discGraph, gorgonia.Float64, 4, gorgonia.WithShape(B, cfg.ImageSize, cfg.ImageSize, 3), gorgonia.WithName("discriminator_fake_input"))
	fakeOut, err := gan.discriminatorPart.Fwd(gan.inputFake, B, "fake")
	if err != nil {
		return nil, errors.Wrap(err, "Can't define discriminator feedforward on fake samples")
	}
	gorgonia.Read(fakeOut, &gan.fakeScores)
	costDiscriminator, err := gan.discriminatorPart.Loss(realOut, fakeOut)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define discriminator loss")
	}
	gorgonia.Read(costDiscriminator, &gan.costDiscriminator)
	if _, err = gorgonia.Grad(costDiscriminator, gan.discriminatorPart.Learnables()...); err != nil {
		return nil, errors.Wrap(err, "Can't define discriminator gradients")
	}

	// Discriminator part for generator graph
	gan.modifiedDiscriminator, err = gan.discriminatorPart.mirror(gan.genGraph, "_gan")
	if err != nil {
		return nil, errors.Wrap(err, "Can't mirror discriminator onto generator graph")
	}
	mirrorOut, err := gan.modifiedDiscriminator.Fwd(generatorOut, B, "")
	if err != nil {
		return nil, errors.Wrap(err, "Can't define mirrored discriminator feedforward")
	}
	gorgonia.Read(mirrorOut, &gan.mirrorScores)
	costGenerator, err := gan.generatorPart.Loss(mirrorOut)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define generator loss")
	}
	gorgonia.Read(costGenerator, &gan.costGenerator)
	if _, err = gorgonia.Grad(costGenerator, gan.generatorPart.Learnables()...); err != nil {
		return nil, errors.Wrap(err, "Can't define generator gradients")
	}

	gan.solverGenerator = NewAdamSolver(cfg.LearnRate, cfg.Beta1, cfg.Beta2, cfg.AdamEpsilon)
	gan.solverDiscriminator = NewAdamSolver(cfg.LearnRate, cfg.Beta1, cfg.Beta2, cfg.AdamEpsilon)
	gan.tapeGenerator = NewTape("generator", gan.genGraph, gan.generatorPart.Learnables(), gan.solverGenerator)
	gan.tapeDiscriminator = NewTape("discriminator", gan.discGraph, gan.discriminatorPart.Learnables(), gan.solverDiscriminator)
	return gan, nil
}

// Config Returns configuration GAN has been built with
func (gan *GAN) Config() Config {
	return gan.cfg
}

// BatchSize Returns batch size both graphs are built for
func (gan *GAN) BatchSize() int {
	return gan.batchSize
}

// GeneratorLearnables Returns learnables nodes of generator part
func (gan *GAN) GeneratorLearnables() gorgonia.Nodes {
	return gan.generatorPart.Learnables()
}

// DiscriminatorLearnables Returns learnables nodes of discriminator part
func (gan *GAN) DiscriminatorLearnables() gorgonia.Nodes {
	return gan.discriminatorPart.Learnables()
}

// Noise Returns fresh batch of latent vectors [B, Z] drawn uniformly from [-1, 1]
func (gan *GAN) Noise() *tensor.Dense {
	return UniformRandDense(gan.rng, gan.batchSize, gan.cfg.LatentDim, -1, 1)
}

// Generate Feedforward of generator only. Returns images [B, H, W, 3] in [-1, 1]
func (gan *GAN) Generate(noise *tensor.Dense) (*tensor.Dense, error) {
	if err := gan.checkNoise(noise); err != nil {
		return nil, err
	}
	if err := gorgonia.Let(gan.inputGenerator, noise); err != nil {
		return nil, errors.Wrap(err, "Can't init generator input")
	}
	defer gan.vmGenerator.Reset()
	if err := gan.vmGenerator.RunAll(); err != nil {
		return nil, errors.Wrap(err, "Can't run generator")
	}
	return cloneDense(gan.generatedSamples)
}

// Discriminate Feedforward of discriminator only. Returns scores [B, 1] in (0, 1)
func (gan *GAN) Discriminate(images *tensor.Dense) (*tensor.Dense, error) {
	if err := gan.checkImages(images); err != nil {
		return nil, err
	}
	if err := gorgonia.Let(gan.inputReal, images); err != nil {
		return nil, errors.Wrap(err, "Can't init discriminator input")
	}
	defer gan.vmDiscriminator.Reset()
	if err := gan.vmDiscriminator.RunAll(); err != nil {
		return nil, errors.Wrap(err, "Can't run discriminator")
	}
	return cloneDense(gan.realScores)
}

// Step Does single adversarial training step on fresh latent batch.
//
// iteration - index of the step inside epoch; discriminator is updated only when iteration % NumGenUpdates == 0
// real - batch of real images [B, H, W, 3]
//
// Order: generator forward => discriminator on real => discriminator on fake => losses => gradients => generator update => conditional discriminator update.
// Both recordings are released before return.
//
func (gan *GAN) Step(iteration int, real *tensor.Dense) (StepResult, error) {
	return gan.StepWithNoise(iteration, real, gan.Noise())
}

// StepWithNoise Same as Step, but latent batch [B, Z] is provided by caller
func (gan *GAN) StepWithNoise(iteration int, real, noise *tensor.Dense) (StepResult, error) {
	if err := gan.checkImages(real); err != nil {
		return StepResult{}, err
	}
	if err := gan.checkNoise(noise); err != nil {
		return StepResult{}, err
	}

	// Generator recording sees discriminator as it is before this step
	if err := gan.syncMirror(); err != nil {
		return StepResult{}, err
	}
	if err := gorgonia.Let(gan.inputGenerator, noise); err != nil {
		return StepResult{}, errors.Wrap(err, "Can't init generator input")
	}
	genRec, err := gan.tapeGenerator.Record()
	if err != nil {
		return StepResult{}, err
	}
	defer genRec.Release()

	fake, err := cloneDense(gan.generatedSamples)
	if err != nil {
		return StepResult{}, errors.Wrap(err, "Can't read generated samples")
	}
	if !fake.Shape().Eq(real.Shape()) {
		return StepResult{}, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("generated batch has shape %v, but real batch has shape %v", fake.Shape(), real.Shape()))
	}
	if err = gorgonia.Let(gan.inputFake, fake); err != nil {
		return StepResult{}, errors.Wrap(err, "Can't init discriminator fake input")
	}
	if err = gorgonia.Let(gan.inputReal, real); err != nil {
		return StepResult{}, errors.Wrap(err, "Can't init discriminator real input")
	}
	discRec, err := gan.tapeDiscriminator.Record()
	if err != nil {
		return StepResult{}, err
	}
	defer discRec.Release()

	result := StepResult{Fake: fake}
	if result.GeneratorLoss, err = scalarValue(gan.costGenerator); err != nil {
		return StepResult{}, errors.Wrap(err, "Can't read generator loss")
	}
	if result.DiscriminatorLoss, err = scalarValue(gan.costDiscriminator); err != nil {
		return StepResult{}, errors.Wrap(err, "Can't read discriminator loss")
	}

	if err = genRec.Apply(); err != nil {
		return StepResult{}, err
	}
	if iteration%gan.cfg.NumGenUpdates == 0 {
		if err = discRec.Apply(); err != nil {
			return StepResult{}, err
		}
		result.DiscriminatorUpdated = true
	} else {
		discRec.Release()
	}
	gan.steps++
	return result, nil
}

// Close Releases all machines
func (gan *GAN) Close() error {
	var first error
	for _, closeFn := range []func() error{gan.vmGenerator.Close, gan.vmDiscriminator.Close, gan.tapeGenerator.Close, gan.tapeDiscriminator.Close} {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Snapshot Returns deep copy of all learnables and both optimizers' states
func (gan *GAN) Snapshot() (*Snapshot, error) {
	genParams, err := recordParams(gan.generatorPart.Learnables())
	if err != nil {
		return nil, errors.Wrap(err, "Can't snapshot generator")
	}
	discParams, err := recordParams(gan.discriminatorPart.Learnables())
	if err != nil {
		return nil, errors.Wrap(err, "Can't snapshot discriminator")
	}
	return &Snapshot{
		Generator:              genParams,
		Discriminator:          discParams,
		GeneratorOptimizer:     gan.solverGenerator.State(),
		DiscriminatorOptimizer: gan.solverDiscriminator.State(),
	}, nil
}

// Restore Loads learnables and optimizers' states from snapshot. Allowed only before the first training step
func (gan *GAN) Restore(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("Can't restore from nil snapshot")
	}
	if gan.steps > 0 {
		return fmt.Errorf("Can't restore snapshot after %d training steps", gan.steps)
	}
	if err := restoreParams(gan.generatorPart.Learnables(), snap.Generator); err != nil {
		return errors.Wrap(err, "Can't restore generator")
	}
	if err := restoreParams(gan.discriminatorPart.Learnables(), snap.Discriminator); err != nil {
		return errors.Wrap(err, "Can't restore discriminator")
	}
	if err := gan.solverGenerator.SetState(snap.GeneratorOptimizer); err != nil {
		return errors.Wrap(err, "Can't restore generator's optimizer")
	}
	if err := gan.solverDiscriminator.SetState(snap.DiscriminatorOptimizer); err != nil {
		return errors.Wrap(err, "Can't restore discriminator's optimizer")
	}
	return gan.syncMirror()
}

// syncMirror Binds current discriminator's values to its copy on generator graph
func (gan *GAN) syncMirror() error {
	src := gan.discriminatorPart.Learnables()
	dst := gan.modifiedDiscriminator.Learnables()
	if len(src) != len(dst) {
		return fmt.Errorf("Discriminator has %d learnables, but its mirror has %d", len(src), len(dst))
	}
	for i := range src {
		if err := gorgonia.Let(dst[i], src[i].Value()); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't bind value of '%s' to '%s'", src[i].Name(), dst[i].Name()))
		}
	}
	return nil
}

func (gan *GAN) checkNoise(noise *tensor.Dense) error {
	if noise == nil {
		return errors.Wrap(ErrShapeMismatch, "latent batch is nil")
	}
	want := tensor.Shape{gan.batchSize, gan.cfg.LatentDim}
	if !noise.Shape().Eq(want) {
		return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("latent batch must have shape %v, but got %v", want, noise.Shape()))
	}
	return nil
}

func (gan *GAN) checkImages(images *tensor.Dense) error {
	if images == nil {
		return errors.Wrap(ErrShapeMismatch, "image batch is nil")
	}
	want := tensor.Shape{gan.batchSize, gan.cfg.ImageSize, gan.cfg.ImageSize, 3}
	if !images.Shape().Eq(want) {
		return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("image batch must have shape %v, but got %v", want, images.Shape()))
	}
	if _, ok := images.Data().([]float64); !ok {
		return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("image batch must hold float64 values, but holds %T", images.Data()))
	}
	return nil
}

// cloneDense Returns contiguous copy of dense value
func cloneDense(v gorgonia.Value) (*tensor.Dense, error) {
	dense, ok := v.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("expected *tensor.Dense, but got %T", v)
	}
	if dense.IsMaterializable() {
		materialized, ok := dense.Materialize().(*tensor.Dense)
		if !ok {
			return nil, fmt.Errorf("can't materialize view of shape %v", dense.Shape())
		}
		return materialized, nil
	}
	return dense.Clone().(*tensor.Dense), nil
}

// scalarValue Extracts float64 from scalar value (or single-element tensor)
func scalarValue(v gorgonia.Value) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("value is not computed yet")
	}
	switch data := v.Data().(type) {
	case float64:
		return data, nil
	case []float64:
		if len(data) == 1 {
			return data[0], nil
		}
		return 0, fmt.Errorf("expected scalar, but got %d values", len(data))
	default:
		return 0, fmt.Errorf("expected float64 scalar, but got %T", data)
	}
}
