package app

import (
	"fmt"
	"image"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"golang.org/x/image/font"
)

const (
	dpi     float64 = 72
	size    float64 = 14
	spacing float64 = 1.1
)

type Annotator struct {
	context *freetype.Context
}

// NewAnnotator loads a TTF font from the given file and prepares a
// drawing context.
func NewAnnotator(fontPath string) (*Annotator, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("reading font: %w", err)
	}

	parsedFont, err := freetype.ParseFont(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	context := freetype.NewContext()
	context.SetDPI(dpi)
	context.SetFont(parsedFont)
	context.SetFontSize(size)
	context.SetSrc(image.White)
	context.SetHinting(font.HintingFull)

	return &Annotator{context: context}, nil
}

func (a *Annotator) Annotate(img *image.RGBA, td *TimelineData) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawTimeScale(img, td); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := a.drawSummary(img, td); err != nil {
		return fmt.Errorf("drawing summary: %w", err)
	}
	return nil
}

func (a *Annotator) drawTimeScale(img *image.RGBA, td *TimelineData) error {
	width := len(td.Bins)
	count := width / 300
	if count < 2 {
		count = 2
	}

	usPerLabel := (td.EndUs - td.StartUs) / int64(count)
	pxPerLabel := width / count

	for si := 0; si < count; si++ {
		us := td.StartUs + int64(si)*usPerLabel
		px := si * pxPerLabel

		// guideline on the exact instant
		for i := 0; i < 20; i++ {
			img.Set(px, i, image.White)
		}

		str := formatMicros(us)
		pt := freetype.Pt(px+5, 15)
		if _, err := a.context.DrawString(str, pt); err != nil {
			return err
		}
	}

	return nil
}

func (a *Annotator) drawSummary(img *image.RGBA, td *TimelineData) error {
	busyPct := 100 * float64(td.Busy) / float64(td.Total)

	imgSize := img.Bounds().Size()
	top, left := imgSize.Y-marginHeight+20, 3

	lines := []string{
		fmt.Sprintf("Mode: %s, decisions: %s, span: %s",
			td.Mode, humanize.Comma(int64(td.Total)), formatMicros(td.EndUs-td.StartUs)),
		fmt.Sprintf("Busy: %s (%0.1f%%), forced grants: %s",
			humanize.Comma(int64(td.Busy)), busyPct, humanize.Comma(int64(td.Forced))),
		fmt.Sprintf("Energy: %0.1f to %0.1f dBm (mean %0.1f), threshold: %0.1f dBm",
			td.MinEnergy, td.MaxEnergy, td.MeanEnergy, td.Threshold),
	}

	pt := freetype.Pt(left, top)
	for _, s := range lines {
		if _, err := a.context.DrawString(s, pt); err != nil {
			return err
		}
		pt.Y += a.context.PointToFixed(size * spacing)
	}

	return nil
}

// formatMicros renders a monotonic microsecond offset in the largest
// sensible unit.
func formatMicros(us int64) string {
	d := time.Duration(us) * time.Microsecond
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dus", us)
	case d < time.Second:
		return fmt.Sprintf("%0.1fms", float64(us)/1000)
	default:
		return d.Round(time.Millisecond).String()
	}
}
