// internal/rules/outcome.go
package rules

import (
	"encoding/json"
	"fmt"

	"github.com/solatis/verdict/internal/types"
)

// Record is one outcome produced by an evaluation run.
type Record struct {
	Type       OutcomeType
	DecisionID types.DecisionID
	RuleID     types.RuleID // rule whose outcome list produced the record
	OutcomeID  int
	Value      any            // VALUE
	Data       map[string]any // DATA, EVENT
	EventID    string         // EVENT
}

// Map returns the flat mapping form of the record:
// {typ, decision_id, rule_id, [id], value | data [, event_id]}.
func (r Record) Map() map[string]any {
	m := map[string]any{
		"typ":         string(r.Type),
		"decision_id": string(r.DecisionID),
		"rule_id":     float64(r.RuleID),
	}
	if r.OutcomeID != 0 {
		m["id"] = float64(r.OutcomeID)
	}
	switch r.Type {
	case OutcomeValue:
		m["value"] = r.Value
	case OutcomeEvent:
		m["event_id"] = r.EventID
		m["data"] = r.Data
	case OutcomeData:
		m["data"] = r.Data
	}
	return m
}

// MarshalJSON encodes the flat mapping form.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// produce emits the records of one outcome of a matched rule. RULE outcomes recurse into
// the target rule at this position. Returns false when the consumer stopped or an error
// was yielded.
func (r *run) produce(rule *CompiledRule, outcome CompiledOutcome, depth int, yield func(Record, error) bool) bool {
	switch outcome.Type {
	case OutcomeRule:
		if depth+1 > r.engine.maxDepth {
			return r.fail(yield, fmt.Errorf("%w: rule %d -> rule %d at depth %d", types.ErrGraphTooDeep, rule.ID, outcome.RuleID, depth+1))
		}
		target, ok := r.engine.registry.Get(outcome.RuleID)
		if !ok {
			return r.fail(yield, fmt.Errorf("%w: rule %d referenced by rule %d", types.ErrUnknownRule, outcome.RuleID, rule.ID))
		}
		if !target.Applicable(r.now) {
			r.debug("referenced rule not applicable", "rule_id", rule.ID, "target_rule_id", target.ID)
			return true
		}
		return r.evalRule(target, depth+1, yield)

	case OutcomeValue:
		return r.emit(rule, Record{
			Type:      OutcomeValue,
			OutcomeID: outcome.ID,
			Value:     cloneValue(outcome.Value),
		}, yield)

	case OutcomeData, OutcomeEvent:
		return r.emit(rule, Record{
			Type:      outcome.Type,
			OutcomeID: outcome.ID,
			Data:      r.collectData(outcome.Items),
			EventID:   outcome.EventID,
		}, yield)

	default:
		return r.fail(yield, fmt.Errorf("%w: outcome type %q", types.ErrInvalidField, outcome.Type))
	}
}

// collectData resolves each item as a path against the context. Matches are keyed by
// their location; anything that does not resolve is kept verbatim under "values".
func (r *run) collectData(items []any) map[string]any {
	data := make(map[string]any, len(items))
	var literals []any
	for _, item := range items {
		if path, ok := item.(string); ok {
			found, err := r.engine.extractor.Extract(path, r.engine.ctx)
			if err == nil && len(found) > 0 {
				for _, f := range found {
					data[f.Location] = cloneValue(f.Value)
				}
				continue
			}
		}
		literals = append(literals, cloneValue(item))
	}
	if len(literals) > 0 {
		data[types.ReservedValuesKey] = literals
	}
	return data
}

// emit stamps the record with run and rule identity and hands it to the consumer.
func (r *run) emit(rule *CompiledRule, rec Record, yield func(Record, error) bool) bool {
	rec.DecisionID = r.decisionID
	rec.RuleID = rule.ID
	if r.engine.observer != nil {
		r.engine.observer.OutcomeProduced(rule, rec.Type)
	}
	return yield(rec, nil)
}

func (r *run) fail(yield func(Record, error) bool, err error) bool {
	yield(Record{}, err)
	return false
}

// cloneValue deep-copies lists and maps so records never alias the context or the rules.
func cloneValue(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = cloneValue(el)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[k] = cloneValue(el)
		}
		return out
	default:
		return v
	}
}
