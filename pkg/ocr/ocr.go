package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Recognizer turns one encoded image into text. Implementations must be safe
// for concurrent use.
type Recognizer interface {
	Recognize(ctx context.Context, img []byte) (string, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, img []byte) (string, error)

func (f RecognizerFunc) Recognize(ctx context.Context, img []byte) (string, error) {
	return f(ctx, img)
}

// DefaultWhitelist covers the characters printed on the end-of-run screens:
// labels, abbreviated numbers, durations, multipliers and tier markers.
const DefaultWhitelist = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz$.,+- "

// Tesseract recognizes text with a fresh gosseract client per call, so one
// value can serve many goroutines.
type Tesseract struct {
	Language    string
	Whitelist   string
	PageSegMode gosseract.PageSegMode
}

// NewTesseract returns a recognizer for language using the default whitelist
// and single-block segmentation.
func NewTesseract(language string) *Tesseract {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{Language: language, Whitelist: DefaultWhitelist, PageSegMode: gosseract.PSM_SINGLE_BLOCK}
}

type textResult struct {
	text string
	err  error
}

// Recognize runs tesseract on img. When ctx ends first the call returns
// ctx.Err(); the client is still closed once tesseract finishes.
func (t *Tesseract) Recognize(ctx context.Context, img []byte) (string, error) {
	if len(img) == 0 {
		return "", ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	done := make(chan textResult, 1)
	go func() {
		text, err := t.run(img)
		done <- textResult{text: text, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}

func (t *Tesseract) run(img []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(t.Language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if t.Whitelist != "" {
		if err := client.SetWhitelist(t.Whitelist); err != nil {
			return "", fmt.Errorf("set whitelist: %w", err)
		}
	}
	if t.PageSegMode != 0 {
		if err := client.SetPageSegMode(t.PageSegMode); err != nil {
			return "", fmt.Errorf("set page seg mode: %w", err)
		}
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr error: %w", err)
	}
	return normalizeLines(text), nil
}
