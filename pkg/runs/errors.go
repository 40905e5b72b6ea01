package runs

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSection is wrapped by SchemaError when a section is not registered.
	ErrUnknownSection = errors.New("unknown section")
	// ErrUnknownKey is wrapped by SchemaError when a key is not part of a section.
	ErrUnknownKey = errors.New("unknown key")
	// ErrDuplicateKey is wrapped by SchemaError when two sections declare the same key.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrDuplicateLabel is wrapped by SchemaError when two keys resolve to the same label.
	ErrDuplicateLabel = errors.New("duplicate label")
)

// SchemaError reports a lookup against, or a defect in, the field schema.
type SchemaError struct {
	Section Section
	Key     Key
	Err     error
}

func (e *SchemaError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("schema: section %q: %v", e.Section, e.Err)
	}
	return fmt.Sprintf("schema: %s.%s: %v", e.Section, e.Key, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Reason says why a field failed validation.
type Reason string

const (
	ReasonBlank   Reason = "blank"
	ReasonInvalid Reason = "invalid"
)

// ValidationError identifies the first field of a record that is blank or malformed.
type ValidationError struct {
	Section Section
	Key     Key
	Label   string
	Reason  Reason
}

func (e *ValidationError) Error() string {
	if e.Reason == ReasonBlank {
		return fmt.Sprintf("%s cannot be blank.", e.Label)
	}
	return fmt.Sprintf("Invalid value for %s", e.Label)
}

// MetricError reports a derived statistic that cannot be computed for a run.
type MetricError struct {
	Metric  string
	Message string
}

func (e *MetricError) Error() string {
	return fmt.Sprintf("%s: %s", e.Metric, e.Message)
}
