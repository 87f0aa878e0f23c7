package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"

	"github.com/spectrumsense/lbt/internal/journal"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	jnl := journal.New(config.DBPath)
	defer jnl.Close()

	return renderTimeline(ctx, jnl, config, logger)
}

func renderTimeline(ctx context.Context, jnl *journal.Journal, config *Config, logger *slog.Logger) error {
	var opts []func(*journal.DecisionIterator)
	var filters []any
	switch {
	case config.MinTimestampUs != nil && config.MaxTimestampUs != nil:
		opts = append(opts,
			journal.WithSince(*config.MinTimestampUs),
			journal.WithUntil(*config.MaxTimestampUs))

		filters = append(filters,
			slog.Int64("minTimestampUs", *config.MinTimestampUs),
			slog.Int64("maxTimestampUs", *config.MaxTimestampUs))

	case config.MinTimestampUs != nil:
		opts = append(opts, journal.WithSince(*config.MinTimestampUs))
		filters = append(filters, slog.Int64("minTimestampUs", *config.MinTimestampUs))

	case config.MaxTimestampUs != nil:
		opts = append(opts, journal.WithUntil(*config.MaxTimestampUs))
		filters = append(filters, slog.Int64("maxTimestampUs", *config.MaxTimestampUs))
	}

	logger.Info("iterator configuration", filters...)

	sess, err := jnl.Session(ctx, config.SessionID)
	if err != nil {
		return fmt.Errorf("reading session: %w", err)
	}

	iter, err := jnl.Decisions(ctx, config.SessionID, opts...)
	if err != nil {
		return err
	}
	defer iter.Close()

	td := NewTimelineData()
	for iter.Next() {
		td.Update(iter.Decision())
	}
	if err = iter.Err(); err != nil {
		return err
	}

	td.Finalize(config.Width)
	if td.Total == 0 {
		return fmt.Errorf("session %d has no journaled decisions", config.SessionID)
	}

	logger.Info("finished reading decisions",
		slog.Group("stats",
			slog.String("session", sess.UUID),
			slog.String("mode", td.Mode),
			slog.Int("decisions", td.Total),
			slog.Int("busy", td.Busy),
			slog.Int("forced", td.Forced),
			slog.Float64("minEnergyDbm", td.MinEnergy),
			slog.Float64("maxEnergyDbm", td.MaxEnergy),
		))

	img, err := Render(td)
	if err != nil {
		return fmt.Errorf("rendering timeline: %w", err)
	}

	if !config.NoAnnotations {
		annotator, err := NewAnnotator(config.FontFile)
		if err != nil {
			return fmt.Errorf("creating annotator: %w", err)
		}
		if err = annotator.Annotate(img, td); err != nil {
			return fmt.Errorf("annotating timeline: %w", err)
		}
	}

	logger.Info("writing image",
		slog.String("destination", config.OutputFile),
		slog.String("format", string(config.Format)))

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}
