package ocr

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// PreprocessOptions control how a screenshot is prepared before OCR.
type PreprocessOptions struct {
	// MaxWidth downscales wider images; 0 keeps the original size.
	MaxWidth int
	// Quality is the JPEG quality of the re-encoded image.
	Quality int
	// Contrast is passed to imaging.AdjustContrast (-100..100).
	Contrast float64
	// Invert turns light-on-dark game text into dark-on-light.
	Invert bool
}

// DefaultPreprocess matches the end-of-run screens: light text on a dark
// background, usually phone-sized.
var DefaultPreprocess = PreprocessOptions{MaxWidth: 1600, Quality: 45, Contrast: 15, Invert: true}

// Preprocess decodes a screenshot, converts it to grayscale, adjusts
// contrast, downscales it and re-encodes it as JPEG.
func Preprocess(data []byte, opts PreprocessOptions) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	gray := imaging.Grayscale(img)
	if opts.Contrast != 0 {
		gray = imaging.AdjustContrast(gray, opts.Contrast)
	}
	if opts.MaxWidth > 0 && gray.Bounds().Dx() > opts.MaxWidth {
		gray = imaging.Resize(gray, opts.MaxWidth, 0, imaging.Lanczos)
	}
	if opts.Invert {
		gray = imaging.Invert(gray)
	}
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = 45
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, gray, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
