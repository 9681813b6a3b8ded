package dcgan_go

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

func TestTrainSetDropsTail(t *testing.T) {
	images := randomImages(rand.New(rand.NewSource(1)), 7, 4)
	ts, err := NewTrainSet(images, 2)
	if err != nil {
		t.Fatal(err)
	}
	if ts.NumBatches() != 3 {
		t.Fatalf("Should have 3 batches, but got %d", ts.NumBatches())
	}
	for epoch := 0; epoch < 2; epoch++ {
		count := 0
		for {
			batch, err := ts.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatal(err)
			}
			if !batch.Shape().Eq(tensor.Shape{2, 4, 4, 3}) {
				t.Fatalf("Batch shape should be [2 4 4 3], but got %v", batch.Shape())
			}
			if count == 1 {
				want := images.Data().([]float64)[2*4*4*3 : 4*4*4*3]
				if !equalFloats(batch.Data().([]float64), want) {
					t.Error("Second batch should hold images #2 and #3")
				}
			}
			count++
		}
		if count != 3 {
			t.Errorf("Epoch %d should have 3 batches, but got %d", epoch, count)
		}
		if err := ts.Reset(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestNewTrainSetRejectsBadShape(t *testing.T) {
	bad := tensor.New(tensor.WithShape(2, 4, 4, 1), tensor.WithBacking(make([]float64, 32)))
	if _, err := NewTrainSet(bad, 2); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Error should be ErrShapeMismatch, but got %v", err)
	}
}

func writeTestPNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err = png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestImageDirSource(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	writeTestPNG(t, filepath.Join(dir, "a.png"), 20, 10, color.RGBA{R: 255, A: 255})
	writeTestPNG(t, filepath.Join(dir, "b.PNG"), 8, 8, color.RGBA{G: 255, A: 255})
	writeTestPNG(t, filepath.Join(dir, "c.png"), 10, 30, color.RGBA{B: 255, A: 255})
	writeTestPNG(t, filepath.Join(nested, "d.png"), 16, 16, color.RGBA{A: 255})
	writeTestPNG(t, filepath.Join(nested, "e.png"), 5, 5, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	writeTestFile(t, filepath.Join(dir, "notes.txt"), "not an image")

	cfg := tinyConfig()
	cfg.ImgDir = dir
	cfg.ImageSize = 16
	cfg.NumDataThreads = 3
	src, err := NewImageDirSource(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	if src.NumBatches() != 2 {
		t.Fatalf("5 images should give 2 batches, but got %d", src.NumBatches())
	}

	for epoch := 0; epoch < 2; epoch++ {
		if err = src.Reset(); err != nil {
			t.Fatal(err)
		}
		count := 0
		for {
			batch, err := src.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatal(err)
			}
			if !batch.Shape().Eq(tensor.Shape{cfg.BatchSize, 16, 16, 3}) {
				t.Fatalf("Batch shape should be [%d 16 16 3], but got %v", cfg.BatchSize, batch.Shape())
			}
			for _, v := range batch.Data().([]float64) {
				if v < -1 || v > 1 {
					t.Fatalf("Value should be in [-1, 1], but got %f", v)
				}
			}
			count++
		}
		if count != 2 {
			t.Errorf("Epoch %d should have 2 batches, but got %d", epoch, count)
		}
	}
}

func TestImageDirSourceResetMidEpoch(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png", "e.png", "f.png"} {
		writeTestPNG(t, filepath.Join(dir, name), 4, 4, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	}
	cfg := tinyConfig()
	cfg.ImgDir = dir
	src, err := NewImageDirSource(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	if _, err = src.Next(); err != nil {
		t.Fatal(err)
	}
	if err = src.Reset(); err != nil {
		t.Fatal(err)
	}
	count := 0
	for {
		_, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		count++
	}
	if count != 3 {
		t.Errorf("Epoch after reset should have 3 batches, but got %d", count)
	}
}

func TestImageDirSourceNotEnoughImages(t *testing.T) {
	dir := t.TempDir()
	writeTestPNG(t, filepath.Join(dir, "a.png"), 4, 4, color.RGBA{A: 255})
	cfg := tinyConfig()
	cfg.ImgDir = dir
	if _, err := NewImageDirSource(cfg); !errors.Is(err, ErrNoImages) {
		t.Errorf("Error should be ErrNoImages, but got %v", err)
	}
}
