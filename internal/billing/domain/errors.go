package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is matched by every InsufficientDataError.
	ErrInsufficientData = errors.New("billing: insufficient data")
	// ErrNilTariff is returned when no tariff definition is supplied.
	ErrNilTariff = errors.New("billing: nil tariff")
	// ErrEmptyVoltageType is returned when no voltage class is requested.
	ErrEmptyVoltageType = errors.New("billing: empty voltage type")
	// ErrUnknownCharge is returned when no evaluator exists for a charge kind.
	ErrUnknownCharge = errors.New("billing: no evaluator for charge")
)

// InsufficientDataError is returned when a charge needs a maximum demand and
// no peak or standard reading exists in the filtered set. A zero Month means
// the unfiltered set.
type InsufficientDataError struct {
	Charge string
	Month  BillingMonth
}

func (e *InsufficientDataError) Error() string {
	scope := "all months"
	if !e.Month.IsZero() {
		scope = e.Month.String()
	}
	if e.Charge == "" {
		return fmt.Sprintf("billing: insufficient data: no peak or standard readings for %s", scope)
	}
	return fmt.Sprintf("billing: insufficient data: %s: no peak or standard readings for %s", e.Charge, scope)
}

// Is matches ErrInsufficientData.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}
