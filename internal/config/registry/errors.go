package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrSettingNotFound is returned when a setting is not registered.
	ErrSettingNotFound = errors.New("setting not found")

	// ErrSettingAlreadyRegistered is returned when attempting to register a duplicate setting.
	ErrSettingAlreadyRegistered = errors.New("setting already registered")

	// ErrNoOptionsFiller is returned when a setting has no usable options filler.
	ErrNoOptionsFiller = errors.New("no options filler")
)

// TypeError is returned when a value does not match a setting's declared kind.
type TypeError struct {
	ID       string
	Expected string
	Actual   string
}

func (e *TypeError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("type error: expected %s, got %s", e.Expected, e.Actual)
	}
	return fmt.Sprintf("type error at %s: expected %s, got %s", e.ID, e.Expected, e.Actual)
}

// RangeError is returned when an integer value is outside a setting's bounds.
type RangeError struct {
	ID      string
	Value   int
	Minimum *int
	Maximum *int
}

func (e *RangeError) Error() string {
	switch {
	case e.Minimum != nil && e.Value < *e.Minimum:
		return fmt.Sprintf("value %d for %s is less than minimum %d", e.Value, e.ID, *e.Minimum)
	case e.Maximum != nil && e.Value > *e.Maximum:
		return fmt.Sprintf("value %d for %s is greater than maximum %d", e.Value, e.ID, *e.Maximum)
	default:
		return fmt.Sprintf("value %d for %s is out of range", e.Value, e.ID)
	}
}
