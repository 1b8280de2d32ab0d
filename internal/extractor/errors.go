// internal/extractor/errors.go
package extractor

import (
	"errors"
	"fmt"
)

// ErrExtractionFailed marks a fatal extraction failure. No partial schema is
// ever returned alongside it.
var ErrExtractionFailed = errors.New("form extraction failed")

// ExtractionError carries the step that failed and its underlying cause.
type ExtractionError struct {
	Step  string
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrExtractionFailed, e.Step, e.Cause)
}

func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtractionFailed, e.Cause}
}

func extractionFailed(step string, cause error) error {
	return &ExtractionError{Step: step, Cause: cause}
}
