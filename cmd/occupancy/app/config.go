package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath     string
	SessionID  int64
	OutputFile string
	Format     ImageFormat
	FontFile   string
	Width      int

	MinTimestampUs *int64
	MaxTimestampUs *int64

	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format: ImagePNG,
		Width:  1200,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat string
	var minTimestamp, maxTimestamp int64
	flag.StringVar(&c.DBPath, "db", "", "Path to the journal database file")
	flag.Int64Var(&c.SessionID, "s", 1, "Session ID")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.StringVar(&c.FontFile, "font", "", "Path to a TTF font for annotations")
	flag.IntVar(&c.Width, "w", 1200, "Output image width in pixels")
	flag.Int64Var(&minTimestamp, "min-ts", 0, "Start of the time range in microseconds")
	flag.Int64Var(&maxTimestamp, "max-ts", 0, "End of the time range in microseconds")
	flag.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as the time scale and summary")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "min-ts" {
			c.MinTimestampUs = &minTimestamp
		}
		if f.Name == "max-ts" {
			c.MaxTimestampUs = &maxTimestamp
		}
	})

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.SessionID <= 0 {
		err = errors.New("session id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if c.Width < 100 {
		err = fmt.Errorf("image width too small: %d", c.Width)
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if !c.NoAnnotations && c.FontFile == "" {
		err = errors.New("font file is required unless annotations are disabled")
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
