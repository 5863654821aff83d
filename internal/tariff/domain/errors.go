package tariff

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration is matched by every ConfigurationError.
	ErrConfiguration = errors.New("tariff: configuration error")
	// ErrRateNotFound is matched by every RateNotFoundError.
	ErrRateNotFound = errors.New("tariff: rate not found")
	// ErrTariffNotFound is returned by catalogues for an unknown tariff code.
	ErrTariffNotFound = errors.New("tariff: not found")
	// ErrOutsideValidity is returned when an instant lies outside the
	// validity window, where holidays are not resolved.
	ErrOutsideValidity = errors.New("tariff: outside validity window")
)

// ConfigurationError reports a structurally invalid tariff definition, or a
// rate-table entry missing for a classification that actually occurred.
type ConfigurationError struct {
	Tariff string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("tariff: configuration error")
	if e.Tariff != "" {
		b.WriteString(" in ")
		b.WriteString(e.Tariff)
	}
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// Is matches ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func configErr(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// RateNotFoundError names the rate key path a charge could not resolve.
type RateNotFoundError struct {
	Charge string
	Path   []string
}

func (e *RateNotFoundError) Error() string {
	path := "types"
	if len(e.Path) > 0 {
		path += "." + strings.Join(e.Path, ".")
	}
	if e.Charge == "" {
		return fmt.Sprintf("tariff: rate not found: %s", path)
	}
	return fmt.Sprintf("tariff: rate not found: %s %s", e.Charge, path)
}

// Is matches ErrRateNotFound.
func (e *RateNotFoundError) Is(target error) bool {
	return target == ErrRateNotFound
}
