package survey

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/gmd-layout/internal/layoutcache"
	"github.com/Faultbox/gmd-layout/internal/logger"
	"github.com/Faultbox/gmd-layout/pkg/gmd"
)

// Skinning tells whether a shader was drawn with bone matrices.
type Skinning string

// Skinning values.
const (
	Unskinned Skinning = "Unskin"
	Skinned   Skinning = "Skin"
	Both      Skinning = "Both"
)

func skinningOf(usesMatrices []bool) Skinning {
	switch {
	case len(usesMatrices) > 1:
		return Both
	case len(usesMatrices) == 1 && usesMatrices[0]:
		return Skinned
	default:
		return Unskinned
	}
}

// FindingKind classifies a survey finding.
type FindingKind string

// Finding kinds.
const (
	FindingMultipleAttribSetFlags FindingKind = "multiple-attribset-flags"
	FindingMultipleLayouts        FindingKind = "multiple-layouts"
	FindingMixedSkinning          FindingKind = "mixed-skinning"
	FindingStrideMismatch         FindingKind = "stride-mismatch"
	FindingDecodeFailed           FindingKind = "decode-failed"
	FindingDecodeWarning          FindingKind = "decode-warning"
)

// Finding is something notable about one shader. Flags is set for findings
// about a single vertex format.
type Finding struct {
	Kind    FindingKind   `yaml:"kind"`
	Flags   *PackingFlags `yaml:"flags,omitempty"`
	Message string        `yaml:"message"`
}

func flagsFinding(kind FindingKind, flags PackingFlags, msg string) Finding {
	return Finding{Kind: kind, Flags: &flags, Message: msg}
}

// ShaderLayout is one decoded vertex format of a shader.
type ShaderLayout struct {
	Flags          PackingFlags    `yaml:"flags"`
	BytesPerVertex int             `yaml:"bytes_per_vertex"`
	Stride         int             `yaml:"stride,omitempty"`
	Attributes     []gmd.Attribute `yaml:"attributes,omitempty"`
	Error          string          `yaml:"error,omitempty"`

	layout *gmd.Layout
}

// ShaderReport is the survey result for one shader.
type ShaderReport struct {
	Shader         string           `yaml:"shader"`
	Skinning       Skinning         `yaml:"skinning"`
	AttribSetFlags []AttribSetFlags `yaml:"attribset_flags,omitempty"`
	Layouts        []ShaderLayout   `yaml:"layouts"`
	Findings       []Finding        `yaml:"findings,omitempty"`
}

// Layout returns the first successfully decoded layout, or nil.
func (sr *ShaderReport) Layout() *gmd.Layout {
	for _, l := range sr.Layouts {
		if l.layout != nil {
			return l.layout
		}
	}
	return nil
}

// Summary counts findings across the whole survey.
type Summary struct {
	Shaders                int `yaml:"shaders"`
	DistinctFlags          int `yaml:"distinct_flags"`
	MultipleAttribSetFlags int `yaml:"multiple_attribset_flags"`
	MultipleLayouts        int `yaml:"multiple_layouts"`
	MixedSkinning          int `yaml:"mixed_skinning"`
	StrideMismatches       int `yaml:"stride_mismatches"`
	DecodeFailures         int `yaml:"decode_failures"`
	DecodeWarnings         int `yaml:"decode_warnings"`
}

// Report is the full survey result.
type Report struct {
	Checked bool           `yaml:"checked"`
	Summary Summary        `yaml:"summary"`
	Shaders []ShaderReport `yaml:"shaders"`
}

// Options configures a Surveyor.
type Options struct {
	CheckStride bool
	Workers     int
}

// Surveyor decodes the layouts used by each shader and reports inconsistencies.
type Surveyor struct {
	cache *layoutcache.Cache
	opts  Options
	log   *zap.Logger
}

// New creates a Surveyor. A nil log discards log output.
func New(cache *layoutcache.Cache, opts Options, log *zap.Logger) *Surveyor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Surveyor{cache: cache, opts: opts, log: log.Named("survey")}
}

// Run surveys the aggregated shaders. The report is always complete; the
// returned error combines every flags value that failed to decode.
func (s *Surveyor) Run(aggs []ShaderAggregate) (*Report, error) {
	var all []uint64
	for _, agg := range aggs {
		for _, vf := range agg.VertexFormats {
			all = append(all, uint64(vf.Flags))
		}
	}

	entries, err := s.cache.DecodeAll(all, s.opts.Workers)
	s.log.Debug("decoded distinct flags",
		zap.Int("distinct", len(entries)),
		zap.Bool("checked", s.cache.Checked()),
		zap.Int("workers", s.opts.Workers))

	report := &Report{
		Checked: s.cache.Checked(),
		Summary: Summary{Shaders: len(aggs), DistinctFlags: len(entries)},
	}
	for _, agg := range aggs {
		report.Shaders = append(report.Shaders, s.surveyShader(agg, entries, &report.Summary))
	}

	for _, e := range multierr.Errors(err) {
		s.log.Error("decode failed", zap.Error(e))
	}
	return report, err
}

func (s *Surveyor) surveyShader(agg ShaderAggregate, entries map[uint64]layoutcache.Entry, sum *Summary) ShaderReport {
	sr := ShaderReport{
		Shader:         agg.Shader,
		Skinning:       skinningOf(agg.UsesMatrices),
		AttribSetFlags: agg.AttribSetFlags,
	}
	shaderField := zap.String("shader", agg.Shader)

	if len(agg.AttribSetFlags) > 1 {
		hex := make([]string, len(agg.AttribSetFlags))
		for i, f := range agg.AttribSetFlags {
			hex[i] = f.String()
		}
		msg := fmt.Sprintf("uses %d attribset flags: %s", len(hex), strings.Join(hex, ", "))
		sr.Findings = append(sr.Findings, Finding{Kind: FindingMultipleAttribSetFlags, Message: msg})
		sum.MultipleAttribSetFlags++
		s.log.Info("shader uses multiple attribset flags", shaderField, zap.Strings("attribset_flags", hex))
	}

	distinctFlags := make(map[PackingFlags]struct{})
	for _, vf := range agg.VertexFormats {
		distinctFlags[vf.Flags] = struct{}{}
		e := entries[uint64(vf.Flags)]
		sl := ShaderLayout{Flags: vf.Flags, BytesPerVertex: vf.BytesPerVertex}

		if e.Err != nil {
			sl.Error = e.Err.Error()
			sr.Findings = append(sr.Findings, flagsFinding(FindingDecodeFailed, vf.Flags, e.Err.Error()))
			sum.DecodeFailures++
			sr.Layouts = append(sr.Layouts, sl)
			continue
		}

		sl.layout = e.Layout
		sl.Stride = e.Layout.Stride()
		sl.Attributes = e.Layout.Attributes()

		for _, w := range e.Warnings {
			sr.Findings = append(sr.Findings, flagsFinding(FindingDecodeWarning, vf.Flags, w.String()))
			sum.DecodeWarnings++
		}
		logger.DecodeWarnings(s.log, e.Warnings, shaderField)

		if s.opts.CheckStride && vf.BytesPerVertex > 0 && sl.Stride != vf.BytesPerVertex {
			msg := fmt.Sprintf("decoded stride %d bytes but records say %d", sl.Stride, vf.BytesPerVertex)
			sr.Findings = append(sr.Findings, flagsFinding(FindingStrideMismatch, vf.Flags, msg))
			sum.StrideMismatches++
			s.log.Warn("stride mismatch", shaderField, logger.Flags("flags", uint64(vf.Flags)),
				zap.Int("stride", sl.Stride), zap.Int("bytes_per_vertex", vf.BytesPerVertex))
		}

		sr.Layouts = append(sr.Layouts, sl)
	}

	if len(agg.VertexFormats) > 1 {
		msg := fmt.Sprintf("uses %d vertex layouts (%d distinct flags)", len(agg.VertexFormats), len(distinctFlags))
		sr.Findings = append(sr.Findings, Finding{Kind: FindingMultipleLayouts, Message: msg})
		sum.MultipleLayouts++
		s.log.Info("shader uses multiple vertex layouts", shaderField, zap.Int("layouts", len(agg.VertexFormats)))
	}
	if sr.Skinning == Both {
		sr.Findings = append(sr.Findings, Finding{Kind: FindingMixedSkinning, Message: "works with both skinned and unskinned"})
		sum.MixedSkinning++
		s.log.Info("shader is both skinned and unskinned", shaderField)
	}

	return sr
}

// WriteReport writes the report as YAML.
func WriteReport(path string, r *Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// WriteTable prints one tab-separated row of component counts per shader.
func WriteTable(w io.Writer, r *Report) error {
	header := append([]string{fmt.Sprintf("%-30s", "Name")}, gmd.ComponentCountColumns()...)
	header = append(header, "(Un)skinned")
	if _, err := fmt.Fprintln(w, strings.Join(header, "\t")); err != nil {
		return err
	}

	for i := range r.Shaders {
		sr := &r.Shaders[i]
		row := []string{fmt.Sprintf("%-30s", sr.Shader)}
		if l := sr.Layout(); l != nil {
			for _, n := range l.ComponentCounts() {
				row = append(row, fmt.Sprint(n))
			}
		} else {
			for range gmd.ComponentCountColumns() {
				row = append(row, "-")
			}
		}
		row = append(row, string(sr.Skinning))
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return nil
}

// WriteFindings prints every finding, one per line.
func WriteFindings(w io.Writer, r *Report) error {
	for _, sr := range r.Shaders {
		for _, f := range sr.Findings {
			flags := "-"
			if f.Flags != nil {
				flags = f.Flags.String()
			}
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", sr.Shader, f.Kind, flags, f.Message); err != nil {
				return err
			}
		}
	}
	s := r.Summary
	_, err := fmt.Fprintf(w, "%d shaders, %d distinct flags: %d multiple attribset flags, %d multiple layouts, %d mixed skinning, %d stride mismatches, %d decode failures, %d warnings\n",
		s.Shaders, s.DistinctFlags, s.MultipleAttribSetFlags, s.MultipleLayouts, s.MixedSkinning, s.StrideMismatches, s.DecodeFailures, s.DecodeWarnings)
	return err
}
