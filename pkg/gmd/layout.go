package gmd

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxUVChannels is the number of UV slots a packing flags value can describe.
const MaxUVChannels = 8

// Layout is the vertex buffer layout described by one packing flags value.
//
// Optional attributes are nil when absent. A Layout is never modified after
// DecodeLayout returns it.
type Layout struct {
	Pos     ComponentStorage
	Weights *ComponentStorage
	Bones   *ComponentStorage
	Normal  *ComponentStorage
	Tangent *ComponentStorage
	Unk     *ComponentStorage
	Col0    *ComponentStorage
	Col1    *ComponentStorage
	UVs     []ComponentStorage

	PackingFlags uint64
}

// Attribute is a named, present vertex attribute.
type Attribute struct {
	Name    string           `yaml:"name"`
	Storage ComponentStorage `yaml:"storage"`
}

// fixedAttributeNames lists the non-UV attributes in vertex order.
var fixedAttributeNames = [...]string{"pos", "weights", "bones", "normal", "tangent", "unk", "col0", "col1"}

func (l *Layout) fixed() [8]*ComponentStorage {
	return [8]*ComponentStorage{&l.Pos, l.Weights, l.Bones, l.Normal, l.Tangent, l.Unk, l.Col0, l.Col1}
}

// Attributes returns the present attributes in vertex order.
// UVs are named uv0, uv1, ... by their position in UVs.
func (l *Layout) Attributes() []Attribute {
	attrs := make([]Attribute, 0, len(fixedAttributeNames)+len(l.UVs))
	for i, s := range l.fixed() {
		if s != nil {
			attrs = append(attrs, Attribute{Name: fixedAttributeNames[i], Storage: *s})
		}
	}
	for i, s := range l.UVs {
		attrs = append(attrs, Attribute{Name: "uv" + strconv.Itoa(i), Storage: s})
	}
	return attrs
}

// Stride returns the number of bytes one vertex occupies.
func (l *Layout) Stride() int {
	stride := 0
	for _, a := range l.Attributes() {
		stride += a.Storage.NativeSize()
	}
	return stride
}

// ComponentCounts returns the component count of pos, weights, bones, normal,
// tangent, unk, col0, col1 and uv0..uv7, with 0 for absent attributes.
func (l *Layout) ComponentCounts() [len(fixedAttributeNames) + MaxUVChannels]int {
	var counts [len(fixedAttributeNames) + MaxUVChannels]int
	for i, s := range l.fixed() {
		if s != nil {
			counts[i] = s.Count
		}
	}
	for i, s := range l.UVs {
		if i >= MaxUVChannels {
			break
		}
		counts[len(fixedAttributeNames)+i] = s.Count
	}
	return counts
}

// ComponentCountColumns returns the column names matching ComponentCounts.
func ComponentCountColumns() []string {
	cols := []string{
		"NVertPos", "NVertWeight", "NVertBones", "NVertNormal",
		"NVertTangent", "NVertUnk", "NVertCol0", "NVertCol1",
	}
	for i := 0; i < MaxUVChannels; i++ {
		cols = append(cols, fmt.Sprintf("NUV%d", i))
	}
	return cols
}

// String returns a one-line description of the layout.
func (l *Layout) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:", FormatFlags(l.PackingFlags))
	for _, a := range l.Attributes() {
		fmt.Fprintf(&sb, " %s=%s", a.Name, a.Storage)
	}
	fmt.Fprintf(&sb, " (%d bytes)", l.Stride())
	return sb.String()
}

// FormatFlags renders packing flags the way they are printed in reports.
func FormatFlags(flags uint64) string {
	return fmt.Sprintf("0x%016x", flags)
}

// ParseFlags parses packing flags written as 0x-prefixed hex, decimal,
// or as exactly 16 bare hex digits.
func ParseFlags(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if len(s) == 16 && !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		if v, err := strconv.ParseUint(s, 16, 64); err == nil {
			return v, nil
		}
	}
	v, err := strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing packing flags %q: %w", s, err)
	}
	return v, nil
}
