package dcgan_go

import (
	"fmt"
	"image/color"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gorgonia.org/tensor"
)

// UniformRandDense Return reference to tensor.Dense filled with pseudo-random float64 values in range [low, high)
//
// rng - source of randomness
// batchSize - Simply batch size
// n - Number of elements in each batch
// Resulting dense will have batchSize*n elements
//
func UniformRandDense(rng *rand.Rand, batchSize, n int, low, high float64) *tensor.Dense {
	data := make([]float64, batchSize*n)
	for i := range data {
		data[i] = low + (high-low)*rng.Float64()
	}
	return tensor.New(tensor.WithShape(batchSize, n), tensor.WithBacking(data))
}

// Series Named curve for PlotSeries
type Series struct {
	Name string
	Y    []float64
}

var seriesColors = []color.Color{
	color.RGBA{R: 255, B: 128, A: 255},
	color.RGBA{G: 128, B: 255, A: 255},
	color.RGBA{R: 32, G: 160, B: 32, A: 255},
	color.RGBA{R: 128, G: 128, B: 128, A: 255},
}

// PlotSeries Plot chart for several y(x) curves sharing the same X axis. NaN and infinite points are skipped
func PlotSeries(x []float64, series []Series, xLabel, yLabel, fname string) error {
	p := plot.New()
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())
	for i, s := range series {
		if len(s.Y) != len(x) {
			return fmt.Errorf("X and Y(X) of '%s' must have same number of elements, but X has %d elements and Y(X) has %d elements", s.Name, len(x), len(s.Y))
		}
		points := make(plotter.XYs, 0, len(x))
		for j := range x {
			if math.IsNaN(s.Y[j]) || math.IsInf(s.Y[j], 0) {
				continue
			}
			points = append(points, plotter.XY{X: x[j], Y: s.Y[j]})
		}
		if len(points) == 0 {
			continue
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't init new line for '%s'", s.Name))
		}
		line.Color = seriesColors[i%len(seriesColors)]
		p.Add(line)
		p.Legend.Add(s.Name, line)
	}
	// Save the plot to a PNG file.
	if err := p.Save(8*vg.Inch, 4*vg.Inch, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}
