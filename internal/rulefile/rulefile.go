// Package rulefile loads rule definitions from YAML or JSON files and watches them for
// changes.
package rulefile

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/solatis/verdict/internal/rules"
	"github.com/solatis/verdict/internal/types"
)

// Load reads rule definitions from path. The document is either a list of rules or a
// mapping with a "rules" list. JSON is accepted as YAML.
func Load(path string) ([]types.RuleDef, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	defs, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// Parse decodes rule definitions from a YAML or JSON document.
func Parse(content []byte) ([]types.RuleDef, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil
	}

	var doc any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("invalid rule document: %w", err)
	}

	var list []any
	switch d := doc.(type) {
	case nil:
		return nil, nil
	case []any:
		list = d
	case map[string]any:
		raw, ok := d["rules"]
		if !ok {
			return nil, types.Invalid("rules", types.ErrRequiredField)
		}
		if raw == nil {
			return nil, nil
		}
		if list, ok = raw.([]any); !ok {
			return nil, types.Invalid("rules", fmt.Errorf("%w: expected a list", types.ErrInvalidField))
		}
	default:
		return nil, types.Invalid("", fmt.Errorf("%w: expected a list of rules", types.ErrInvalidField))
	}

	records := make([]map[string]any, 0, len(list))
	for i, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, types.Invalid(fmt.Sprintf("rules[%d]", i), fmt.Errorf("%w: expected a mapping", types.ErrInvalidField))
		}
		records = append(records, rec)
	}
	return types.DecodeRuleDefs(records)
}

// LoadRegistry loads and compiles the rules in path.
func LoadRegistry(path string) (*rules.Registry, error) {
	defs, err := Load(path)
	if err != nil {
		return nil, err
	}
	return rules.NewRegistry(defs)
}
