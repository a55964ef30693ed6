// Package registry provides the settings registry for the PVR subsystem.
//
// The registry holds the definition of every known setting together with
// its current value. Components look settings up by identifier, receive
// owned clones, and subscribe to single-setting changes or bulk reloads.
package registry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SettingType represents the declared kind of a setting.
type SettingType uint8

const (
	// TypeString represents a string value.
	TypeString SettingType = iota
	// TypeInt represents an integer value.
	TypeInt
	// TypeBool represents a boolean value.
	TypeBool
)

// String returns the string representation of the type.
func (t SettingType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "integer"
	case TypeBool:
		return "boolean"
	default:
		return "unknown"
	}
}

// Value is an immutable setting value tagged with its kind.
// The zero Value is an empty string.
type Value struct {
	typ SettingType
	b   bool
	i   int
	s   string
}

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value {
	return Value{typ: TypeBool, b: b}
}

// IntValue returns an integer Value.
func IntValue(i int) Value {
	return Value{typ: TypeInt, i: i}
}

// StringValue returns a string Value.
func StringValue(s string) Value {
	return Value{typ: TypeString, s: s}
}

// Type returns the kind of the value.
func (v Value) Type() SettingType {
	return v.typ
}

// Bool returns the boolean payload and whether v is a boolean.
func (v Value) Bool() (bool, bool) {
	return v.b, v.typ == TypeBool
}

// Int returns the integer payload and whether v is an integer.
func (v Value) Int() (int, bool) {
	return v.i, v.typ == TypeInt
}

// Str returns the string payload and whether v is a string.
func (v Value) Str() (string, bool) {
	return v.s, v.typ == TypeString
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(other Value) bool {
	return v == other
}

// Interface returns the payload as a plain Go value.
func (v Value) Interface() any {
	switch v.typ {
	case TypeBool:
		return v.b
	case TypeInt:
		return v.i
	default:
		return v.s
	}
}

// String formats the payload for display.
func (v Value) String() string {
	switch v.typ {
	case TypeBool:
		return strconv.FormatBool(v.b)
	case TypeInt:
		return strconv.Itoa(v.i)
	default:
		return v.s
	}
}

// ValueOf converts a raw decoded value (TOML, environment, flags) into a
// Value of the given kind.
func ValueOf(typ SettingType, raw any) (Value, error) {
	switch typ {
	case TypeBool:
		switch v := raw.(type) {
		case bool:
			return BoolValue(v), nil
		case string:
			if b, ok := parseBool(v); ok {
				return BoolValue(b), nil
			}
		}
	case TypeInt:
		switch v := raw.(type) {
		case int:
			return IntValue(v), nil
		case int8:
			return IntValue(int(v)), nil
		case int16:
			return IntValue(int(v)), nil
		case int32:
			return IntValue(int(v)), nil
		case int64:
			if v >= math.MinInt && v <= math.MaxInt {
				return IntValue(int(v)), nil
			}
		case uint8:
			return IntValue(int(v)), nil
		case uint16:
			return IntValue(int(v)), nil
		case uint32:
			return IntValue(int(v)), nil
		case float64:
			if v == math.Trunc(v) && v >= math.MinInt && v <= math.MaxInt {
				return IntValue(int(v)), nil
			}
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(v))
			if err == nil {
				return IntValue(i), nil
			}
		}
	case TypeString:
		if s, ok := raw.(string); ok {
			return StringValue(s), nil
		}
	}

	return Value{}, &TypeError{
		Expected: typ.String(),
		Actual:   fmt.Sprintf("%T", raw),
	}
}

// parseBool accepts the spellings commonly used in files and the environment.
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true, true
	case "false", "no", "off", "0":
		return false, true
	}
	return false, false
}

// Setting defines a configuration setting with its metadata and current value.
type Setting struct {
	// ID is the dot-separated identifier (e.g., "pvrrecord.marginstart").
	ID string

	// Type is the declared kind. It never changes once registered.
	Type SettingType

	// Default is the default value. It must convert to Type.
	Default any

	// Label is a short display name.
	Label string

	// Description is human-readable documentation.
	Description string

	// Minimum and Maximum bound integer settings (nil means unbounded).
	Minimum *int
	Maximum *int

	// OptionsFiller names an integer options filler registered with
	// RegisterIntegerOptionsFiller.
	OptionsFiller string

	// Visibility names a condition registered with RegisterVisibilityCondition.
	Visibility string

	// Tags for filtering/grouping settings.
	Tags []string

	def   Value
	value Value
}

// Value returns the value held by this setting.
func (s *Setting) Value() Value {
	return s.value
}

// DefaultValue returns the converted default value.
func (s *Setting) DefaultValue() Value {
	return s.def
}

// IsDefault reports whether the setting currently holds its default.
func (s *Setting) IsDefault() bool {
	return s.value == s.def
}

// Clone returns an owned copy of the setting registered under id.
func (s *Setting) Clone(id string) *Setting {
	c := *s
	c.ID = id
	if s.Tags != nil {
		c.Tags = make([]string, len(s.Tags))
		copy(c.Tags, s.Tags)
	}
	if s.Minimum != nil {
		c.Minimum = MinValue(*s.Minimum)
	}
	if s.Maximum != nil {
		c.Maximum = MaxValue(*s.Maximum)
	}
	return &c
}

// Validate checks if a value is acceptable for this setting.
func (s *Setting) Validate(v Value) error {
	if v.Type() != s.Type {
		return &TypeError{
			ID:       s.ID,
			Expected: s.Type.String(),
			Actual:   v.Type().String(),
		}
	}

	if i, ok := v.Int(); ok {
		if s.Minimum != nil && i < *s.Minimum {
			return &RangeError{ID: s.ID, Value: i, Minimum: s.Minimum, Maximum: s.Maximum}
		}
		if s.Maximum != nil && i > *s.Maximum {
			return &RangeError{ID: s.ID, Value: i, Minimum: s.Minimum, Maximum: s.Maximum}
		}
	}
	return nil
}

// HasTag reports whether the setting carries tag.
func (s *Setting) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// MinValue creates a pointer to an int for use as Minimum.
func MinValue(v int) *int {
	return &v
}

// MaxValue creates a pointer to an int for use as Maximum.
func MaxValue(v int) *int {
	return &v
}
