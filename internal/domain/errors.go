package domain

import "fmt"

// ExtractionError marks a document that could not be read at all.
// Per-field extraction misses are not errors; only an unreadable or
// invalid document is fatal.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to extract document %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("failed to extract document: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// InvalidMeasurementError rejects a physically impossible reading.
type InvalidMeasurementError struct {
	Field string
	Value float64
}

func (e *InvalidMeasurementError) Error() string {
	return fmt.Sprintf("invalid %s measurement: %g is negative", e.Field, e.Value)
}

// TransitionError reports a workflow transition the state machine
// does not allow.
type TransitionError struct {
	From WorkflowStatus
	To   WorkflowStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid workflow transition from %s to %s", e.From, e.To)
}
