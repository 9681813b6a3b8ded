package dcgan_go

import (
	"math"
)

// HistoryEntry Losses (and optional score) observed at a single training iteration
type HistoryEntry struct {
	Epoch             int
	Iteration         int
	GeneratorLoss     float64
	DiscriminatorLoss float64
	// NaN when iteration has not been evaluated
	FID float64
}

// History Progress of training run. Never persisted
type History struct {
	Entries []HistoryEntry
}

// Add Appends entry
func (h *History) Add(entry HistoryEntry) {
	h.Entries = append(h.Entries, entry)
}

// Len Returns number of entries
func (h *History) Len() int {
	return len(h.Entries)
}

// Plot Renders generator's loss, discriminator's loss and FID (if any was evaluated) against global step
func (h *History) Plot(fname string) error {
	steps := make([]float64, len(h.Entries))
	gen := make([]float64, len(h.Entries))
	disc := make([]float64, len(h.Entries))
	fid := make([]float64, len(h.Entries))
	hasFID := false
	for i, e := range h.Entries {
		steps[i] = float64(i)
		gen[i] = e.GeneratorLoss
		disc[i] = e.DiscriminatorLoss
		fid[i] = e.FID
		if !math.IsNaN(e.FID) {
			hasFID = true
		}
	}
	series := []Series{
		{Name: "generator loss", Y: gen},
		{Name: "discriminator loss", Y: disc},
	}
	if hasFID {
		series = append(series, Series{Name: "FID", Y: fid})
	}
	return PlotSeries(steps, series, "Step", "Value", fname)
}
