package dcgan_go

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"gorgonia.org/tensor"
)

// ErrNoImages Directory has no decodable image files
var ErrNoImages = errors.New("no images found")

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

type decodedBatch struct {
	batch *tensor.Dense
	err   error
}

// ImageDirSource BatchSource over directory of JPEG/PNG images.
//
// Every epoch file order is shuffled, then NumDataThreads workers decode whole batches ahead of consumption.
// Images are center cropped, resized to ImageSize x ImageSize and scaled to [-1, 1]. Incomplete tail batch is dropped.
// Batches arrive in order of completion.
//
type ImageDirSource struct {
	files      []string
	batchSize  int
	imageSize  int
	numThreads int
	rng        *rand.Rand

	results chan decodedBatch
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewImageDirSource Lists images under cfg.ImgDir (recursively)
func NewImageDirSource(cfg Config) (*ImageDirSource, error) {
	files := []string{}
	err := filepath.WalkDir(cfg.ImgDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if imageExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't list images in '%s'", cfg.ImgDir))
	}
	if len(files) < cfg.BatchSize {
		return nil, errors.Wrap(ErrNoImages, fmt.Sprintf("'%s' has %d images, but batch needs %d", cfg.ImgDir, len(files), cfg.BatchSize))
	}
	sort.Strings(files)
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &ImageDirSource{
		files:      files,
		batchSize:  cfg.BatchSize,
		imageSize:  cfg.ImageSize,
		numThreads: cfg.NumDataThreads,
		rng:        rand.New(rand.NewSource(seed)),
	}, nil
}

// NumBatches Returns number of complete batches per epoch
func (src *ImageDirSource) NumBatches() int {
	return len(src.files) / src.batchSize
}

// Next See BatchSource
func (src *ImageDirSource) Next() (*tensor.Dense, error) {
	if src.results == nil {
		if err := src.Reset(); err != nil {
			return nil, err
		}
	}
	res, ok := <-src.results
	if !ok {
		return nil, io.EOF
	}
	return res.batch, res.err
}

// Reset Stops current epoch's workers, shuffles files and starts new epoch
func (src *ImageDirSource) Reset() error {
	src.stop()
	src.rng.Shuffle(len(src.files), func(i, j int) {
		src.files[i], src.files[j] = src.files[j], src.files[i]
	})
	order := append([]string(nil), src.files...)
	numBatches := len(order) / src.batchSize

	jobs := make(chan int)
	results := make(chan decodedBatch, src.numThreads)
	done := make(chan struct{})
	src.results = results
	src.done = done

	go func() {
		defer close(jobs)
		for i := 0; i < numBatches; i++ {
			select {
			case jobs <- i:
			case <-done:
				return
			}
		}
	}()
	src.wg.Add(src.numThreads)
	for w := 0; w < src.numThreads; w++ {
		go func() {
			defer src.wg.Done()
			for idx := range jobs {
				batch, err := src.decodeBatch(order[idx*src.batchSize : (idx+1)*src.batchSize])
				select {
				case results <- decodedBatch{batch: batch, err: err}:
				case <-done:
					return
				}
			}
		}()
	}
	go func(wg *sync.WaitGroup) {
		wg.Wait()
		close(results)
	}(&src.wg)
	return nil
}

// Close Stops workers
func (src *ImageDirSource) Close() error {
	src.stop()
	return nil
}

func (src *ImageDirSource) stop() {
	if src.done == nil {
		return
	}
	close(src.done)
	// Workers blocked on full results channel leave via done
	for range src.results {
	}
	src.done = nil
	src.results = nil
}

func (src *ImageDirSource) decodeBatch(files []string) (*tensor.Dense, error) {
	perImage := src.imageSize * src.imageSize * 3
	data := make([]float64, len(files)*perImage)
	for i, fname := range files {
		if err := decodeImageInto(fname, src.imageSize, data[i*perImage:(i+1)*perImage]); err != nil {
			return nil, err
		}
	}
	return tensor.New(tensor.WithShape(len(files), src.imageSize, src.imageSize, 3), tensor.WithBacking(data)), nil
}

// decodeImageInto Decodes file, center crops it to square, resizes to size x size and writes HWC values in [-1, 1] into dst
func decodeImageInto(fname string, size int, dst []float64) error {
	f, err := os.Open(fname)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't open '%s'", fname))
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't decode '%s'", fname))
	}
	resized := image.NewRGBA64(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, centerSquare(img.Bounds()), draw.Src, nil)
	rgba64ToFloats(resized, dst)
	return nil
}

func centerSquare(r image.Rectangle) image.Rectangle {
	side := r.Dx()
	if r.Dy() < side {
		side = r.Dy()
	}
	x0 := r.Min.X + (r.Dx()-side)/2
	y0 := r.Min.Y + (r.Dy()-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}
