package dcgan_go

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestHistoryPlot(t *testing.T) {
	cases := []struct {
		name string
		fid  []float64
	}{
		{"without scores", []float64{math.NaN(), math.NaN(), math.NaN()}},
		{"with sparse scores", []float64{12.5, math.NaN(), 9.0}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := &History{}
			for i, fid := range c.fid {
				h.Add(HistoryEntry{Iteration: i, GeneratorLoss: 0.7 + float64(i), DiscriminatorLoss: math.Inf(1), FID: fid})
			}
			fname := filepath.Join(t.TempDir(), "history.png")
			if err := h.Plot(fname); err != nil {
				t.Fatal(err)
			}
			info, err := os.Stat(fname)
			if err != nil {
				t.Fatal(err)
			}
			if info.Size() == 0 {
				t.Error("Plot file should not be empty")
			}
		})
	}
}

func TestPlotSeriesLengthMismatch(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "bad.png")
	err := PlotSeries([]float64{0, 1, 2}, []Series{{Name: "short", Y: []float64{1, 2}}}, "x", "y", fname)
	if err == nil {
		t.Error("Series shorter than X should be rejected")
	}
	if _, statErr := os.Stat(fname); !os.IsNotExist(statErr) {
		t.Error("Nothing should be written for rejected series")
	}
}
