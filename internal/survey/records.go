// Package survey cross-checks the vertex layouts used by each shader across
// a corpus of GMD draw records.
package survey

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/gmd-layout/pkg/gmd"
)

// ErrNoRecords is returned when a record file contains no records.
var ErrNoRecords = errors.New("no records")

// PackingFlags is a packing flags value that reads from YAML as a hex
// string or an integer and is written back as fixed-width hex.
type PackingFlags uint64

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *PackingFlags) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: packing flags must be a scalar", value.Line)
	}
	// The raw text is parsed regardless of the resolved tag: YAML reads
	// unquoted bare hex such as 0000000020000000 as an octal int.
	v, err := gmd.ParseFlags(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*f = PackingFlags(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (f PackingFlags) MarshalYAML() (interface{}, error) {
	return gmd.FormatFlags(uint64(f)), nil
}

// String returns the fixed-width hex form.
func (f PackingFlags) String() string {
	return gmd.FormatFlags(uint64(f))
}

// AttribSetFlags is the 32-bit flags word of the attribute set (material
// binding) a draw call uses.
type AttribSetFlags uint32

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *AttribSetFlags) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: attribset flags must be a scalar", value.Line)
	}
	v, err := gmd.ParseFlags(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	if v > math.MaxUint32 {
		return fmt.Errorf("line %d: attribset flags %#x do not fit in 32 bits", value.Line, v)
	}
	*f = AttribSetFlags(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (f AttribSetFlags) MarshalYAML() (interface{}, error) {
	return f.String(), nil
}

// String returns the fixed-width hex form.
func (f AttribSetFlags) String() string {
	return fmt.Sprintf("0x%08x", uint32(f))
}

// Record is one draw call's vertex buffer as extracted from a model.
// AttribSetFlags is optional.
type Record struct {
	Shader         string          `yaml:"shader"`
	Flags          PackingFlags    `yaml:"flags"`
	BytesPerVertex int             `yaml:"bytes_per_vertex"`
	MatrixCount    int             `yaml:"matrix_count"`
	AttribSetFlags *AttribSetFlags `yaml:"attribset_flags,omitempty"`
}

// RecordFile is the on-disk layout of a record file.
type RecordFile struct {
	Records []Record `yaml:"records"`
}

// ParseRecords parses a YAML record file.
func ParseRecords(data []byte) ([]Record, error) {
	var rf RecordFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing records: %w", err)
	}
	if len(rf.Records) == 0 {
		return nil, ErrNoRecords
	}
	for i, r := range rf.Records {
		if r.Shader == "" {
			return nil, fmt.Errorf("record %d: missing shader name", i)
		}
	}
	return rf.Records, nil
}

// LoadRecords reads and parses a YAML record file.
func LoadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	return ParseRecords(data)
}

// VertexFormat is a distinct (flags, bytes per vertex) pair seen for a shader.
type VertexFormat struct {
	Flags          PackingFlags `yaml:"flags"`
	BytesPerVertex int          `yaml:"bytes_per_vertex"`
}

// ShaderAggregate collects everything the records say about one shader.
type ShaderAggregate struct {
	Shader         string
	AttribSetFlags []AttribSetFlags // distinct, sorted
	VertexFormats  []VertexFormat   // sorted by flags, then bytes per vertex
	UsesMatrices   []bool           // distinct values, false first
}

// Aggregate groups records by shader. Shaders are sorted by name without
// their two-character category prefix.
func Aggregate(records []Record) []ShaderAggregate {
	type acc struct {
		attribSets map[AttribSetFlags]struct{}
		formats    map[VertexFormat]struct{}
		matrices   [2]bool
	}
	byShader := make(map[string]*acc)

	for _, r := range records {
		a, ok := byShader[r.Shader]
		if !ok {
			a = &acc{
				attribSets: make(map[AttribSetFlags]struct{}),
				formats:    make(map[VertexFormat]struct{}),
			}
			byShader[r.Shader] = a
		}
		if r.AttribSetFlags != nil {
			a.attribSets[*r.AttribSetFlags] = struct{}{}
		}
		a.formats[VertexFormat{Flags: r.Flags, BytesPerVertex: r.BytesPerVertex}] = struct{}{}
		if r.MatrixCount > 0 {
			a.matrices[1] = true
		} else {
			a.matrices[0] = true
		}
	}

	aggs := make([]ShaderAggregate, 0, len(byShader))
	for name, a := range byShader {
		agg := ShaderAggregate{Shader: name}
		for f := range a.attribSets {
			agg.AttribSetFlags = append(agg.AttribSetFlags, f)
		}
		sort.Slice(agg.AttribSetFlags, func(i, j int) bool {
			return agg.AttribSetFlags[i] < agg.AttribSetFlags[j]
		})
		for vf := range a.formats {
			agg.VertexFormats = append(agg.VertexFormats, vf)
		}
		sort.Slice(agg.VertexFormats, func(i, j int) bool {
			x, y := agg.VertexFormats[i], agg.VertexFormats[j]
			if x.Flags != y.Flags {
				return x.Flags < y.Flags
			}
			return x.BytesPerVertex < y.BytesPerVertex
		})
		if a.matrices[0] {
			agg.UsesMatrices = append(agg.UsesMatrices, false)
		}
		if a.matrices[1] {
			agg.UsesMatrices = append(agg.UsesMatrices, true)
		}
		aggs = append(aggs, agg)
	}

	sort.Slice(aggs, func(i, j int) bool {
		ki, kj := sortKey(aggs[i].Shader), sortKey(aggs[j].Shader)
		if ki != kj {
			return ki < kj
		}
		return aggs[i].Shader < aggs[j].Shader
	})
	return aggs
}

// sortKey drops the category prefix, e.g. "sd_o1dzt" sorts as "_o1dzt".
func sortKey(shader string) string {
	if len(shader) <= 2 {
		return strings.ToLower(shader)
	}
	return strings.ToLower(shader[2:])
}
