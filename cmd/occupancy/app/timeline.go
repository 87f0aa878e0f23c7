package app

import (
	"gonum.org/v1/gonum/stat"

	"github.com/spectrumsense/lbt/internal/journal"
)

// Bin is one pixel column of the occupancy timeline: the decisions
// whose timestamps fall into its slice of the session.
type Bin struct {
	Energy float64 // mean energy of the bin's decisions
	Count  int
	Busy   int
	Forced int
}

// TimelineData aggregates a session's journaled decisions into
// fixed-width time bins for rendering.
type TimelineData struct {
	Bins []Bin

	StartUs int64
	EndUs   int64

	MinEnergy  float64
	MaxEnergy  float64
	MeanEnergy float64
	Threshold  float64
	Mode       string

	Total  int
	Busy   int
	Forced int

	decisions []journal.Decision
}

func NewTimelineData() *TimelineData {
	return &TimelineData{}
}

// Update adds one decision to the timeline.
func (td *TimelineData) Update(d journal.Decision) {
	td.decisions = append(td.decisions, d)
}

// Finalize bins the collected decisions into width columns and computes
// the summary statistics. It must be called once, after the last
// Update.
func (td *TimelineData) Finalize(width int) {
	td.Total = len(td.decisions)
	if td.Total == 0 {
		return
	}

	td.StartUs = td.decisions[0].TimestampUs
	td.EndUs = td.decisions[td.Total-1].TimestampUs
	td.Threshold = td.decisions[td.Total-1].ThresholdDBm
	td.Mode = td.decisions[td.Total-1].Mode

	energies := make([]float64, 0, td.Total)
	for _, d := range td.decisions {
		energies = append(energies, d.EnergyDBm)
		if d.Status == "BUSY" {
			td.Busy++
		}
		if d.Forced {
			td.Forced++
		}
	}

	td.MinEnergy, td.MaxEnergy = energies[0], energies[0]
	for _, e := range energies {
		if e < td.MinEnergy {
			td.MinEnergy = e
		}
		if e > td.MaxEnergy {
			td.MaxEnergy = e
		}
	}
	td.MeanEnergy = stat.Mean(energies, nil)

	td.Bins = make([]Bin, width)
	span := td.EndUs - td.StartUs
	if span <= 0 {
		span = 1
	}

	sums := make([]float64, width)
	for _, d := range td.decisions {
		i := int((d.TimestampUs - td.StartUs) * int64(width-1) / span)
		if i < 0 {
			i = 0
		}
		if i >= width {
			i = width - 1
		}

		b := &td.Bins[i]
		b.Count++
		sums[i] += d.EnergyDBm
		if d.Status == "BUSY" {
			b.Busy++
		}
		if d.Forced {
			b.Forced++
		}
	}

	for i := range td.Bins {
		if td.Bins[i].Count > 0 {
			td.Bins[i].Energy = sums[i] / float64(td.Bins[i].Count)
		}
	}
}
