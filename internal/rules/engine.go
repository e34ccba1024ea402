// internal/rules/engine.go
package rules

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/solatis/verdict/internal/types"
)

// Observer is notified as a run progresses. Implementations must be safe for concurrent use.
type Observer interface {
	RuleEvaluated(rule *CompiledRule, matched bool)
	OutcomeProduced(rule *CompiledRule, typ OutcomeType)
}

// Engine evaluates a fixed set of rules against a fixed context.
//
// The engine is immutable after construction. Evaluate may be called any number of times,
// from any number of goroutines; each run gets its own decision id.
type Engine struct {
	registry  *Registry
	ctx       any
	extractor Extractor
	logger    *slog.Logger
	clock     func() time.Time
	observer  Observer
	maxDepth  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtractor replaces the default path extractor.
func WithExtractor(x Extractor) Option {
	return func(e *Engine) { e.extractor = x }
}

// WithLogger sets the logger for per-condition debug output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the time source used for the validity window.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// WithObserver registers a run observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithMaxGraphDepth bounds how many RULE references a run may follow from a root.
func WithMaxGraphDepth(n int) Option {
	return func(e *Engine) { e.maxDepth = n }
}

// NewEngine compiles defs into a registry and binds it to ctx.
func NewEngine(defs []types.RuleDef, ctx any, opts ...Option) (*Engine, error) {
	reg, err := NewRegistry(defs)
	if err != nil {
		return nil, err
	}
	return NewEngineWithRegistry(reg, ctx, opts...)
}

// NewEngineWithRegistry binds an already compiled registry to ctx. Registries are
// read-only and may be shared between engines.
func NewEngineWithRegistry(reg *Registry, ctx any, opts ...Option) (*Engine, error) {
	normalized, err := Normalize(ctx)
	if err != nil {
		return nil, types.Invalid("context", err)
	}

	e := &Engine{
		registry:  reg,
		ctx:       normalized,
		extractor: PathExtractor{},
		clock:     time.Now,
		maxDepth:  types.DefaultMaxGraphDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.maxDepth <= 0 {
		return nil, types.Invalid("max_graph_depth", fmt.Errorf("%w: must be positive, got %d", types.ErrInvalidField, e.maxDepth))
	}
	return e, nil
}

// Registry returns the compiled rules the engine evaluates.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Evaluate returns the lazy sequence of outcome records.
//
// Root rules that are applicable now are visited in registry order. A matched rule's
// outcomes are produced in declaration order; a RULE outcome evaluates its target in
// place, so records appear depth-first. Each iteration of the sequence is one run with
// its own decision id. An error ends the sequence after it is yielded.
func (e *Engine) Evaluate() iter.Seq2[Record, error] {
	return e.EvaluateContext(context.Background())
}

// EvaluateContext is Evaluate with cancellation checked between rules.
func (e *Engine) EvaluateContext(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		r := &run{
			engine:     e,
			ctx:        ctx,
			decisionID: types.NewDecisionID(),
			now:        e.clock(),
		}
		r.debug("evaluation started", "rules", e.registry.Len())

		for _, rule := range e.registry.Rules() {
			if !rule.Root || !rule.Applicable(r.now) {
				continue
			}
			if !r.evalRule(rule, 0, yield) {
				return
			}
		}
	}
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[Record, error]) ([]Record, error) {
	var out []Record
	for rec, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// run is the state of one pass over the sequence.
type run struct {
	engine     *Engine
	ctx        context.Context
	decisionID types.DecisionID
	now        time.Time
}

// evalRule matches rule and, if it matched, produces its outcomes. Returns false when
// the run must stop.
func (r *run) evalRule(rule *CompiledRule, depth int, yield func(Record, error) bool) bool {
	if err := r.ctx.Err(); err != nil {
		return r.fail(yield, err)
	}

	m := &matcher{extractor: r.engine.extractor, ctx: r.engine.ctx, rule: rule, run: r}
	raw, err := m.matchConditions(rule.Operator, rule.Conditions)
	if err != nil {
		return r.fail(yield, err)
	}
	matched := raw == rule.Comparator.Truth()

	r.debug("rule evaluated", "rule_id", rule.ID, "name", rule.Name, "matched", matched, "depth", depth)
	if r.engine.observer != nil {
		r.engine.observer.RuleEvaluated(rule, matched)
	}
	if !matched {
		return true
	}

	for _, outcome := range rule.Outcomes {
		if !r.produce(rule, outcome, depth, yield) {
			return false
		}
	}
	return true
}

func (r *run) debug(msg string, args ...any) {
	if !r.engine.logger.Enabled(r.ctx, slog.LevelDebug) {
		return
	}
	r.engine.logger.DebugContext(r.ctx, msg, append([]any{"decision_id", r.decisionID}, args...)...)
}
