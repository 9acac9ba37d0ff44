// Package gmd decodes the vertex buffer layout of GMD model files.
package gmd

import (
	"errors"
	"fmt"
)

// Component storage errors.
var (
	ErrComponentCount         = errors.New("component count out of range")
	ErrUnknownComponentFormat = errors.New("unknown component format")
)

// ComponentFormat is the numeric encoding of a single vertex component.
type ComponentFormat uint8

// Component formats.
const (
	Byte01      ComponentFormat = 0 // Fixed-point byte scaled to [0, 1]
	ByteMinus11 ComponentFormat = 1 // Fixed-point byte scaled to [-1, 1]
	Byte0255    ComponentFormat = 2 // Raw byte, 0 to 255
	Float16     ComponentFormat = 3 // IEEE half float
	Float32     ComponentFormat = 4 // IEEE single float
	U16         ComponentFormat = 5 // Unsigned 16-bit integer
)

var componentFormatNames = [...]string{
	Byte01:      "Byte_0_1",
	ByteMinus11: "Byte_Minus1_1",
	Byte0255:    "Byte_0_255",
	Float16:     "Float16",
	Float32:     "Float32",
	U16:         "U16",
}

// NativeSize returns the width of one component in bytes.
// It panics for values outside the enumeration.
func (f ComponentFormat) NativeSize() int {
	switch f {
	case Byte01, ByteMinus11, Byte0255:
		return 1
	case Float16, U16:
		return 2
	case Float32:
		return 4
	}
	panic(fmt.Sprintf("gmd: NativeSize called on nonexistent component format %d", uint8(f)))
}

// Valid reports whether f is one of the defined formats.
func (f ComponentFormat) Valid() bool {
	return int(f) < len(componentFormatNames)
}

// String returns the format name.
func (f ComponentFormat) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Unknown(%d)", uint8(f))
	}
	return componentFormatNames[f]
}

// MarshalText implements encoding.TextMarshaler.
func (f ComponentFormat) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownComponentFormat, uint8(f))
	}
	return []byte(componentFormatNames[f]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *ComponentFormat) UnmarshalText(text []byte) error {
	parsed, err := ParseComponentFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseComponentFormat looks a format up by name.
func ParseComponentFormat(name string) (ComponentFormat, error) {
	for i, n := range componentFormatNames {
		if n == name {
			return ComponentFormat(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownComponentFormat, name)
}

// RangeError is returned when a ComponentStorage is built with an invalid count.
type RangeError struct {
	Format ComponentFormat
	Count  int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("component storage %s: count %d not in [1, 4]", e.Format, e.Count)
}

func (e *RangeError) Unwrap() error {
	return ErrComponentCount
}

// ComponentStorage describes how one vertex attribute is stored:
// a component format repeated Count times.
type ComponentStorage struct {
	Format ComponentFormat `yaml:"format"`
	Count  int             `yaml:"count"`
}

// NewComponentStorage returns a storage for count components of format.
// Count must be between 1 and 4.
func NewComponentStorage(format ComponentFormat, count int) (ComponentStorage, error) {
	if count < 1 || count > 4 {
		return ComponentStorage{}, &RangeError{Format: format, Count: count}
	}
	return ComponentStorage{Format: format, Count: count}, nil
}

// NativeSize returns the size of the whole attribute in bytes.
func (s ComponentStorage) NativeSize() int {
	return s.Format.NativeSize() * s.Count
}

// String returns e.g. "Float16x4".
func (s ComponentStorage) String() string {
	return fmt.Sprintf("%sx%d", s.Format, s.Count)
}
