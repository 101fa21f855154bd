package detect

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/veildata/veil/patterns"
)

// DefaultConfidence is assigned to pattern matches whose pattern does not
// declare an explicit confidence.
const DefaultConfidence = 0.8

// PatternFile is the top-level YAML structure for a veil.patterns.yaml file.
type PatternFile struct {
	Version int          `yaml:"version"`
	Types   []TypeConfig `yaml:"types"`
}

// TypeConfig declares the patterns and deny list for one entity type.
// A user file layers over the embedded defaults by type name: a type that
// reappears replaces the default wholesale, so a TypeConfig with no
// patterns disables that type.
type TypeConfig struct {
	Type     string          `yaml:"type" json:"type"`
	Patterns []PatternConfig `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	Deny     []string        `yaml:"deny,omitempty" json:"deny,omitempty"`
}

// PatternConfig is a single named regex pattern within a type.
type PatternConfig struct {
	Name       string  `yaml:"name" json:"name"`
	Regex      string  `yaml:"regex" json:"regex"`
	Confidence float64 `yaml:"confidence,omitempty" json:"confidence,omitempty"`
}

// CompiledPattern pairs a compiled case-insensitive regex with the
// confidence assigned to its matches.
type CompiledPattern struct {
	Name       string
	Regex      *regexp.Regexp
	Confidence float64
}

// CompiledType holds the runtime patterns and deny list for one entity type.
type CompiledType struct {
	Type     string
	Patterns []CompiledPattern
	Deny     []string

	denySet map[string]struct{}
}

// Denied reports whether the snippet equals (case-insensitively) one of the
// type's deny list entries. Equality, not substring: "Testing" survives a
// deny entry of "Test".
func (ct CompiledType) Denied(snippet string) bool {
	_, ok := ct.denySet[strings.ToLower(snippet)]
	return ok
}

// Library is a compiled, immutable pattern library. Type order and pattern
// order within a type follow the source declaration order, so scans are
// deterministic.
type Library struct {
	types []CompiledType
}

// Types returns the compiled types in declaration order. The returned slice
// is shared; callers must not modify it.
func (l *Library) Types() []CompiledType { return l.types }

// TypeNames returns the entity type names in declaration order.
func (l *Library) TypeNames() []string {
	names := make([]string, len(l.types))
	for i, ct := range l.types {
		names[i] = ct.Type
	}
	return names
}

// PatternCount returns the total number of compiled patterns.
func (l *Library) PatternCount() int {
	n := 0
	for _, ct := range l.types {
		n += len(ct.Patterns)
	}
	return n
}

// LibraryOption configures NewLibrary via the functional options pattern.
type LibraryOption func(*libraryConfig)

type libraryConfig struct {
	patternFile string
	extraTypes  []TypeConfig
}

// WithPatternFile layers a user pattern file over the embedded defaults.
// A missing file is silently skipped.
func WithPatternFile(path string) LibraryOption {
	return func(c *libraryConfig) { c.patternFile = path }
}

// WithTypes layers programmatic type definitions over everything else.
func WithTypes(types []TypeConfig) LibraryOption {
	return func(c *libraryConfig) { c.extraTypes = types }
}

// NewLibrary compiles a pattern library. Without options it uses the
// embedded defaults; options layer a user file and programmatic types on
// top, replacing defaults by type name.
func NewLibrary(opts ...LibraryOption) (*Library, error) {
	var cfg libraryConfig
	for _, o := range opts {
		o(&cfg)
	}

	defaults, err := BuiltinTypes()
	if err != nil {
		return nil, fmt.Errorf("loading builtin patterns: %w", err)
	}

	var userTypes []TypeConfig
	if cfg.patternFile != "" {
		pf, err := LoadPatternFile(cfg.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading pattern file: %w", err)
		}
		if pf != nil {
			userTypes = pf.Types
		}
	}

	merged := MergeTypes(defaults, userTypes, cfg.extraTypes)

	compiled, err := CompileTypes(merged)
	if err != nil {
		return nil, fmt.Errorf("compiling patterns: %w", err)
	}

	return &Library{types: compiled}, nil
}

// MustNewLibrary is like NewLibrary but panics on error. Useful for
// zero-config startup where the embedded defaults are expected to always
// compile.
func MustNewLibrary(opts ...LibraryOption) *Library {
	l, err := NewLibrary(opts...)
	if err != nil {
		panic(fmt.Sprintf("detect.NewLibrary: %v", err))
	}
	return l
}

// BuiltinTypes parses the embedded default pattern definitions.
func BuiltinTypes() ([]TypeConfig, error) {
	pf, err := ParsePatternFile(patterns.BuiltinYAML())
	if err != nil {
		return nil, err
	}
	return pf.Types, nil
}

// ParsePatternFile validates pattern YAML bytes against the schema and
// parses them. Duplicate type names within one file are rejected: layering
// is for files, not for entries.
func ParsePatternFile(data []byte) (*PatternFile, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var pf PatternFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing pattern YAML: %w", err)
	}

	seen := make(map[string]bool, len(pf.Types))
	for _, tc := range pf.Types {
		if seen[tc.Type] {
			return nil, fmt.Errorf("duplicate type %q in pattern file", tc.Type)
		}
		seen[tc.Type] = true
	}

	return &pf, nil
}

// LoadPatternFile reads and parses a pattern YAML file from disk.
// Returns nil (not an error) if the file does not exist, so callers can
// treat a missing optional file as a no-op.
func LoadPatternFile(path string) (*PatternFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading pattern file %s: %w", path, err)
	}
	return ParsePatternFile(data)
}

// MergeTypes performs a layered merge: defaults, then the user file, then
// programmatic types. Later layers replace earlier ones by matching on the
// Type field. New types are appended.
func MergeTypes(layers ...[]TypeConfig) []TypeConfig {
	index := make(map[string]int)
	var merged []TypeConfig

	for _, layer := range layers {
		for _, tc := range layer {
			if idx, exists := index[tc.Type]; exists {
				merged[idx] = tc
			} else {
				index[tc.Type] = len(merged)
				merged = append(merged, tc)
			}
		}
	}

	return merged
}

// CompileTypes converts type configs into the compiled form used by the
// detector at runtime. All patterns are compiled case-insensitive. Any
// invalid regex or empty type name fails the whole compile.
func CompileTypes(configs []TypeConfig) ([]CompiledType, error) {
	compiled := make([]CompiledType, 0, len(configs))

	for _, tc := range configs {
		if strings.TrimSpace(tc.Type) == "" {
			return nil, fmt.Errorf("pattern type with empty name")
		}

		ct := CompiledType{Type: tc.Type, Deny: tc.Deny}
		if len(tc.Deny) > 0 {
			ct.denySet = make(map[string]struct{}, len(tc.Deny))
			for _, d := range tc.Deny {
				ct.denySet[strings.ToLower(d)] = struct{}{}
			}
		}

		for _, p := range tc.Patterns {
			re, err := regexp.Compile("(?i)" + p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q for type %q: %w", p.Name, tc.Type, err)
			}
			confidence := p.Confidence
			if confidence == 0 {
				confidence = DefaultConfidence
			}
			ct.Patterns = append(ct.Patterns, CompiledPattern{
				Name:       p.Name,
				Regex:      re,
				Confidence: confidence,
			})
		}

		compiled = append(compiled, ct)
	}

	return compiled, nil
}
