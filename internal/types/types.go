// Package types provides the definition-side models shared across verdict components.
//
// Rule definitions arrive loosely typed (JSON, YAML, database rows, gRPC structs) and are
// decoded into RuleDef before internal/rules hydrates them. Keeping the definitions here lets
// the store, the rule-file loader and the engine agree on one shape without importing each other.
package types

// Resource limits enforced when rule definitions are hydrated.
const (
	// MaxPathDepth bounds the number of segments in a context path.
	// 32 levels covers deeply nested documents without unbounded recursion in the extractor.
	MaxPathDepth = 32

	// MaxConditionDepth bounds composite condition nesting.
	MaxConditionDepth = 32

	// DefaultMaxGraphDepth bounds rule-graph recursion through RULE outcomes.
	// Cycles are not detected; this only stops a runaway evaluation.
	DefaultMaxGraphDepth = 64
)

// ReservedValuesKey is the key under which DATA and EVENT outcomes collect items that did
// not resolve against the context.
const ReservedValuesKey = "values"
