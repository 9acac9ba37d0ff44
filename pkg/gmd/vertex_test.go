package gmd

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestComponentFormat_NativeSize(t *testing.T) {
	tests := []struct {
		format   ComponentFormat
		expected int
	}{
		{Byte01, 1},
		{ByteMinus11, 1},
		{Byte0255, 1},
		{Float16, 2},
		{U16, 2},
		{Float32, 4},
	}

	for _, tc := range tests {
		if got := tc.format.NativeSize(); got != tc.expected {
			t.Errorf("%s: expected %d bytes, got %d", tc.format, tc.expected, got)
		}
	}
}

func TestComponentFormat_NativeSizePanicsOnUnknown(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown format")
		}
	}()
	ComponentFormat(42).NativeSize()
}

func TestComponentFormat_String(t *testing.T) {
	if Byte01.String() != "Byte_0_1" {
		t.Errorf("expected Byte_0_1, got %s", Byte01)
	}
	if ByteMinus11.String() != "Byte_Minus1_1" {
		t.Errorf("expected Byte_Minus1_1, got %s", ByteMinus11)
	}
	if ComponentFormat(9).String() != "Unknown(9)" {
		t.Errorf("expected Unknown(9), got %s", ComponentFormat(9))
	}
}

func TestParseComponentFormat(t *testing.T) {
	for f := Byte01; f <= U16; f++ {
		parsed, err := ParseComponentFormat(f.String())
		if err != nil {
			t.Fatalf("ParseComponentFormat(%q) failed: %v", f.String(), err)
		}
		if parsed != f {
			t.Errorf("expected %s, got %s", f, parsed)
		}
	}

	if _, err := ParseComponentFormat("Float64"); !errors.Is(err, ErrUnknownComponentFormat) {
		t.Errorf("expected ErrUnknownComponentFormat, got %v", err)
	}
}

func TestComponentStorage_YAML(t *testing.T) {
	s := ComponentStorage{Format: ByteMinus11, Count: 3}

	data, err := yaml.Marshal(s)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	expected := "format: Byte_Minus1_1\ncount: 3\n"
	if string(data) != expected {
		t.Errorf("expected %q, got %q", expected, string(data))
	}

	var back ComponentStorage
	if err := yaml.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back != s {
		t.Errorf("expected %v, got %v", s, back)
	}
}

func TestNewComponentStorage(t *testing.T) {
	for n := 1; n <= 4; n++ {
		s, err := NewComponentStorage(Float16, n)
		if err != nil {
			t.Fatalf("count %d: unexpected error %v", n, err)
		}
		if s.NativeSize() != 2*n {
			t.Errorf("count %d: expected %d bytes, got %d", n, 2*n, s.NativeSize())
		}
	}
}

func TestNewComponentStorage_OutOfRange(t *testing.T) {
	for _, n := range []int{-1, 0, 5, 16} {
		_, err := NewComponentStorage(Float32, n)
		if !errors.Is(err, ErrComponentCount) {
			t.Errorf("count %d: expected ErrComponentCount, got %v", n, err)
		}

		var rangeErr *RangeError
		if !errors.As(err, &rangeErr) {
			t.Fatalf("count %d: expected *RangeError, got %T", n, err)
		}
		if rangeErr.Count != n || rangeErr.Format != Float32 {
			t.Errorf("count %d: unexpected error contents %+v", n, rangeErr)
		}
	}
}

func TestComponentStorage_String(t *testing.T) {
	s := ComponentStorage{Format: Float16, Count: 4}
	if s.String() != "Float16x4" {
		t.Errorf("expected Float16x4, got %s", s)
	}
}
