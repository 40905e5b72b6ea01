package ocr

import (
	"errors"
	"fmt"
)

// ErrEmptyImage is returned for a screenshot with no bytes.
var ErrEmptyImage = errors.New("empty image")

// RecognitionError reports a screenshot that could not be recognized. It is
// attached to that screenshot's result and never aborts the batch.
type RecognitionError struct {
	Index    int
	FileName string
	Err      error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("screenshot %d (%s): %v", e.Index, e.FileName, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }
