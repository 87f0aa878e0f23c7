package app

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	hueStart = 236.0
	hueEnd   = 0.0
)

var (
	noDataColor = color.Black

	freeColor   = color.RGBA{R: 0x2e, G: 0xa0, B: 0x43, A: 0xff}
	busyColor   = color.RGBA{R: 0xc0, G: 0x2a, B: 0x2a, A: 0xff}
	forcedColor = color.RGBA{R: 0xd9, G: 0xa4, B: 0x06, A: 0xff}
)

// energyColor maps an energy reading onto a blue-to-red hue ramp
// spanning the observed energy range.
func energyColor(energy, minEnergy, maxEnergy float64) color.Color {
	span := maxEnergy - minEnergy
	if span <= 0 {
		return colorful.Hsv(hueStart, 1, 0.90)
	}
	hPerDeg := (hueStart - hueEnd) / span

	normalized := energy - minEnergy
	degrees := normalized * hPerDeg

	hue := hueStart - degrees
	hue = math.Min(math.Max(hue, hueEnd), hueStart)

	return colorful.Hsv(hue, 1, 0.90)
}

// statusColor maps a bin's decision mix onto the occupancy strip: any
// forced grant dominates, then any busy verdict, otherwise free.
func statusColor(b Bin) color.Color {
	switch {
	case b.Count == 0:
		return noDataColor
	case b.Forced > 0:
		return forcedColor
	case b.Busy > 0:
		return busyColor
	default:
		return freeColor
	}
}
