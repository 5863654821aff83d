package metering

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidReading is matched by every ValidationError.
	ErrInvalidReading = errors.New("metering: invalid reading")
	// ErrInvalidInterval is returned when the series interval is not positive.
	ErrInvalidInterval = errors.New("metering: invalid interval")
	// ErrEmptySeries is returned when a series carries no readings.
	ErrEmptySeries = errors.New("metering: empty series")
)

// ValidationError rejects one malformed reading at the ingestion boundary.
// Index is the zero-based position in the series, or the source row when the
// error comes from a file reader.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("metering: reading %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("metering: reading %d: %s: %s", e.Index, e.Field, e.Reason)
}

// Is lets callers match any validation failure with ErrInvalidReading.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidReading
}
