package gmd

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIncompleteParse is wrapped by IncompleteParseError.
var ErrIncompleteParse = errors.New("incomplete vertex layout parse")

// IncompleteParseError reports packing flag bits that no decode step read.
type IncompleteParseError struct {
	Flags     uint64
	Untouched []int
}

func (e *IncompleteParseError) Error() string {
	bits := make([]string, len(e.Untouched))
	for i, b := range e.Untouched {
		bits[i] = fmt.Sprint(b)
	}
	return fmt.Sprintf("incomplete vertex layout parse of %s: bits {%s} were not touched",
		FormatFlags(e.Flags), strings.Join(bits, ", "))
}

func (e *IncompleteParseError) Unwrap() error {
	return ErrIncompleteParse
}

// WarningKind classifies a non-fatal decode diagnostic.
type WarningKind int

// Warning kinds.
const (
	// WarnUVsDisabled: uv_count is non-zero but the UV enable bit is clear.
	WarnUVsDisabled WarningKind = iota
	// WarnUVCountMismatch: fewer enabled UV slots than uv_count.
	WarnUVCountMismatch
)

// String returns the kind name.
func (k WarningKind) String() string {
	switch k {
	case WarnUVsDisabled:
		return "uvs-disabled"
	case WarnUVCountMismatch:
		return "uv-count-mismatch"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Warning is a recoverable inconsistency found while decoding. The layout
// returned alongside it is still usable.
type Warning struct {
	Kind     WarningKind
	Flags    uint64
	Declared int // uv_count from the flags
	Found    int // UV slots actually decoded
}

// String describes the warning.
func (w Warning) String() string {
	switch w.Kind {
	case WarnUVsDisabled:
		return fmt.Sprintf("Layout Flags %016x claimed to have %d UVs but UVs are disabled", w.Flags, w.Declared)
	case WarnUVCountMismatch:
		return fmt.Sprintf("Layout Flags %016x claimed to have %d UVs but specified %d", w.Flags, w.Declared, w.Found)
	default:
		return fmt.Sprintf("Layout Flags %016x: %s", w.Flags, w.Kind)
	}
}

const allBits = ^uint64(0)

// bitRange returns a mask of length bits starting at start.
func bitRange(start, length uint) uint64 {
	if length == 0 || start >= 64 {
		return 0
	}
	if length >= 64 {
		return allBits << start
	}
	return ((uint64(1) << length) - 1) << start
}

// layoutDecoder holds the state of a single DecodeLayout call.
type layoutDecoder struct {
	flags   uint64
	checked bool
	touched uint64

	layout   Layout
	warnings []Warning
}

func (d *layoutDecoder) touch(mask uint64) {
	if d.checked {
		d.touched |= mask
	}
}

// bits returns the length-bit value at bit offset start.
func (d *layoutDecoder) bits(start, length uint) uint64 {
	d.touch(bitRange(start, length))
	return (d.flags >> start) & bitRange(0, length)
}

// mask returns flags & mask.
func (d *layoutDecoder) mask(mask uint64) uint64 {
	d.touch(mask)
	return d.flags & mask
}

func (d *layoutDecoder) untouched() []int {
	var bits []int
	for i := 0; i < 64; i++ {
		if d.touched&(uint64(1)<<i) == 0 {
			bits = append(bits, i)
		}
	}
	return bits
}

// decodeStep is one field of the packing flags format.
type decodeStep struct {
	name string
	run  func(d *layoutDecoder) error
}

// vectorField is an optional attribute selected by an enable mask and a
// 2-bit format selector: 0 = Float32 x fullCount, 1 = Float16 x 4,
// 2 or 3 = fixed x 4.
type vectorField struct {
	enable    uint64
	selector  uint
	fullCount int
	fixed     ComponentFormat
	slot      func(l *Layout) **ComponentStorage
}

func (f vectorField) step(name string) decodeStep {
	return decodeStep{name: name, run: func(d *layoutDecoder) error {
		enabled := d.mask(f.enable) != 0
		sel := d.bits(f.selector, 2)
		if !enabled {
			return nil
		}

		var s ComponentStorage
		var err error
		switch sel {
		case 0:
			s, err = NewComponentStorage(Float32, f.fullCount)
		case 1:
			s, err = NewComponentStorage(Float16, 4)
		default:
			s, err = NewComponentStorage(f.fixed, 4)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*f.slot(&d.layout) = &s
		return nil
	}}
}

// layoutSteps is the packing flags format in decode order.
var layoutSteps = []decodeStep{
	{name: "pos", run: decodePosition},
	vectorField{
		enable: 0x70, selector: 7, fullCount: 4, fixed: Byte01,
		slot: func(l *Layout) **ComponentStorage { return &l.Weights },
	}.step("weights"),
	{name: "bones", run: decodeBones},
	vectorField{
		enable: 0x400, selector: 11, fullCount: 3, fixed: ByteMinus11,
		slot: func(l *Layout) **ComponentStorage { return &l.Normal },
	}.step("normal"),
	// Tangents used to be unpacked as [0, 1] data. They are read as [-1, 1]
	// on the assumption that they always hold the real tangent.
	vectorField{
		enable: 0x2000, selector: 14, fullCount: 3, fixed: ByteMinus11,
		slot: func(l *Layout) **ComponentStorage { return &l.Tangent },
	}.step("tangent"),
	vectorField{
		enable: 0x1_0000, selector: 17, fullCount: 3, fixed: Byte01,
		slot: func(l *Layout) **ComponentStorage { return &l.Unk },
	}.step("unk"),
	{name: "reserved", run: decodeReserved},
	// col0 is diffuse+opacity and col1 is specular up to GMD version 0x03000B.
	vectorField{
		enable: 0x20_0000, selector: 22, fullCount: 4, fixed: Byte01,
		slot: func(l *Layout) **ComponentStorage { return &l.Col0 },
	}.step("col0"),
	vectorField{
		enable: 0x100_0000, selector: 25, fullCount: 4, fixed: Byte01,
		slot: func(l *Layout) **ComponentStorage { return &l.Col1 },
	}.step("col1"),
	{name: "uv", run: decodeUVs},
}

func decodePosition(d *layoutDecoder) error {
	count := d.bits(0, 3)
	precision := d.bits(3, 1)

	format := Float32
	if precision == 1 {
		format = Float16
	}
	n := 4
	if count == 3 {
		n = 3
	}

	s, err := NewComponentStorage(format, n)
	if err != nil {
		return fmt.Errorf("pos: %w", err)
	}
	d.layout.Pos = s
	return nil
}

func decodeBones(d *layoutDecoder) error {
	if d.mask(0x200) == 0 {
		return nil
	}
	s, err := NewComponentStorage(Byte0255, 4)
	if err != nil {
		return fmt.Errorf("bones: %w", err)
	}
	d.layout.Bones = &s
	return nil
}

// decodeReserved covers bits 19-20, which have no known meaning.
func decodeReserved(d *layoutDecoder) error {
	d.bits(19, 2)
	return nil
}

// uvCountsBySelector maps the low two bits of a float UV slot to its
// component count.
var uvCountsBySelector = [4]int{2, 3, 4, 1}

func decodeUVs(d *layoutDecoder) error {
	enabled := d.bits(27, 1)
	count := int(d.bits(28, 4))

	if count == 0 {
		d.touch(bitRange(32, 32))
		return nil
	}
	if enabled == 0 {
		d.touch(bitRange(32, 32))
		d.warnings = append(d.warnings, Warning{Kind: WarnUVsDisabled, Flags: d.flags, Declared: count})
		return nil
	}

	var uvs []ComponentStorage
	for i := uint(0); i < MaxUVChannels; i++ {
		slot := d.bits(32+i*4, 4)
		if slot == 0xF {
			continue
		}

		var s ComponentStorage
		var err error
		formatBits := (slot >> 2) & 0b11
		if formatBits >= 2 {
			s, err = NewComponentStorage(Byte01, 4)
		} else {
			format := Float32
			if formatBits == 1 {
				format = Float16
			}
			s, err = NewComponentStorage(format, uvCountsBySelector[slot&0b11])
		}
		if err != nil {
			return fmt.Errorf("uv%d: %w", len(uvs), err)
		}
		uvs = append(uvs, s)

		if len(uvs) == count {
			next := 32 + (i+1)*4
			d.touch(bitRange(next, 64-next))
			break
		}
	}

	if len(uvs) != count {
		d.warnings = append(d.warnings, Warning{Kind: WarnUVCountMismatch, Flags: d.flags, Declared: count, Found: len(uvs)})
	}
	d.layout.UVs = uvs
	return nil
}

// DecodeLayout decodes vertex packing flags into a Layout.
//
// With checked set, every one of the 64 flag bits must be read by some
// decode step; otherwise an *IncompleteParseError lists the missed bits.
// Recoverable inconsistencies in the UV fields are returned as warnings.
func DecodeLayout(flags uint64, checked bool) (*Layout, []Warning, error) {
	return decodeLayout(flags, checked, layoutSteps)
}

func decodeLayout(flags uint64, checked bool, steps []decodeStep) (*Layout, []Warning, error) {
	d := &layoutDecoder{
		flags:   flags,
		checked: checked,
	}
	d.layout.PackingFlags = flags

	for _, step := range steps {
		if err := step.run(d); err != nil {
			return nil, nil, err
		}
	}

	if checked && d.touched != allBits {
		return nil, nil, &IncompleteParseError{Flags: flags, Untouched: d.untouched()}
	}

	layout := d.layout
	return &layout, d.warnings, nil
}
