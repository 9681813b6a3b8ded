package dcgan_go

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// BatchSource Provider of real image batches [B, H, W, 3].
//
// Next returns io.EOF once epoch's data is exhausted. Reset rewinds source for the next epoch.
//
type BatchSource interface {
	Next() (*tensor.Dense, error)
	Reset() error
}

// TrainSet In-memory BatchSource. Images are served sequentially; incomplete tail batch is dropped
type TrainSet struct {
	TrainData  *tensor.Dense
	DataLength int
	BatchSize  int

	cursor int
}

// NewTrainSet Wraps images [N, H, W, 3] into batches of provided size
func NewTrainSet(images *tensor.Dense, batchSize int) (*TrainSet, error) {
	if images == nil || images.Dims() != 4 || images.Shape()[3] != 3 {
		var shape tensor.Shape
		if images != nil {
			shape = images.Shape()
		}
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("train set must have shape [N, H, W, 3], but got %v", shape))
	}
	if _, ok := images.Data().([]float64); !ok {
		return nil, fmt.Errorf("train set must hold float64 values, but holds %T", images.Data())
	}
	if batchSize < 1 {
		return nil, errors.Wrap(ErrInvalidConfig, fmt.Sprintf("batch size must be positive, but got %d", batchSize))
	}
	return &TrainSet{
		TrainData:  images,
		DataLength: images.Shape()[0],
		BatchSize:  batchSize,
	}, nil
}

// NumBatches Returns number of complete batches per epoch
func (ts *TrainSet) NumBatches() int {
	return ts.DataLength / ts.BatchSize
}

// Next Returns copy of the next batch or io.EOF
func (ts *TrainSet) Next() (*tensor.Dense, error) {
	if ts.cursor+ts.BatchSize > ts.DataLength {
		return nil, io.EOF
	}
	shape := ts.TrainData.Shape()
	perImage := shape[1] * shape[2] * shape[3]
	data := ts.TrainData.Data().([]float64)
	start := ts.cursor * perImage
	end := (ts.cursor + ts.BatchSize) * perImage
	batch := tensor.New(
		tensor.WithShape(ts.BatchSize, shape[1], shape[2], shape[3]),
		tensor.WithBacking(append([]float64(nil), data[start:end]...)),
	)
	ts.cursor += ts.BatchSize
	return batch, nil
}

// Reset Rewinds to the first batch
func (ts *TrainSet) Reset() error {
	ts.cursor = 0
	return nil
}
