// Package patterns provides the embedded default pattern library.
// builtin.yaml uses the veil.patterns.yaml format: a versioned list of
// entity types, each with named regex patterns and an optional deny list.
package patterns

import _ "embed"

//go:embed builtin.yaml
var builtinYAML []byte

// BuiltinYAML returns the embedded default pattern definitions.
func BuiltinYAML() []byte { return builtinYAML }
