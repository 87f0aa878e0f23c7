package app

import (
	"fmt"
	"image"
	"image/draw"
)

const (
	trackHeight  = 220
	stripHeight  = 30
	marginHeight = 90

	stripGap = 4
)

// Render draws the occupancy timeline: an energy track on top, the
// FREE/BUSY occupancy strip below it, and room for annotations at the
// bottom.
func Render(td *TimelineData) (*image.RGBA, error) {
	if td.Total == 0 {
		return nil, fmt.Errorf("no decisions to render")
	}

	width := len(td.Bins)
	height := trackHeight + stripGap + stripHeight + marginHeight

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.Black, image.Point{}, draw.Src)

	span := td.MaxEnergy - td.MinEnergy
	if span <= 0 {
		span = 1
	}

	for x, b := range td.Bins {
		if b.Count == 0 {
			continue
		}

		// Energy bars grow downward from the top of the track.
		normalized := (b.Energy - td.MinEnergy) / span
		barHeight := int(normalized * float64(trackHeight-1))
		c := energyColor(b.Energy, td.MinEnergy, td.MaxEnergy)
		for y := trackHeight - 1 - barHeight; y < trackHeight; y++ {
			img.Set(x, y, c)
		}

		sc := statusColor(b)
		for y := trackHeight + stripGap; y < trackHeight+stripGap+stripHeight; y++ {
			img.Set(x, y, sc)
		}
	}

	// Threshold guideline across the energy track.
	if td.Threshold > td.MinEnergy && td.Threshold < td.MaxEnergy {
		normalized := (td.Threshold - td.MinEnergy) / span
		y := trackHeight - 1 - int(normalized*float64(trackHeight-1))
		for x := 0; x < width; x += 4 {
			img.Set(x, y, image.White.C)
			img.Set(x+1, y, image.White.C)
		}
	}

	return img, nil
}
