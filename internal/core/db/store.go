package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/verdict/internal/rules"
	"github.com/solatis/verdict/internal/types"
)

// RuleStore persists rule definitions. The stored set is always one complete,
// compilable registry: imports replace it wholesale inside a transaction.
type RuleStore struct {
	db      *sqlx.DB
	queries *Queries
}

// NewRuleStore creates a store over db using the embedded named queries.
func NewRuleStore(db *sqlx.DB, queries *Queries) *RuleStore {
	return &RuleStore{db: db, queries: queries}
}

type ruleRow struct {
	ID          int64        `db:"id"`
	Name        string       `db:"name"`
	Description string       `db:"description"`
	Since       sql.NullTime `db:"since"`
	Until       sql.NullTime `db:"until"`
	Active      bool         `db:"active"`
	Root        bool         `db:"root"`
	Comp        string       `db:"comp"`
	Op          string       `db:"op"`
}

type conditionRow struct {
	ID          int64          `db:"id"`
	RuleID      int64          `db:"rule_id"`
	ParentID    sql.NullInt64  `db:"parent_id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	Path        string         `db:"path"`
	Comp        string         `db:"comp"`
	Op          string         `db:"op"`
	Value       sql.NullString `db:"value"`
	Transform   string         `db:"transform"`
}

type outcomeRow struct {
	ID           int64          `db:"id"`
	RuleID       int64          `db:"rule_id"`
	Name         string         `db:"name"`
	Description  string         `db:"description"`
	Typ          string         `db:"typ"`
	TargetRuleID sql.NullInt64  `db:"target_rule_id"`
	Value        sql.NullString `db:"value"`
	Data         sql.NullString `db:"data"`
	EventID      string         `db:"event_id"`
}

// conditionNode is a condition being reattached to its parent while loading.
type conditionNode struct {
	def      types.ConditionDef
	children []*conditionNode
}

func (n *conditionNode) build() types.ConditionDef {
	def := n.def
	if len(n.children) > 0 {
		def.Conditions = make([]types.ConditionDef, 0, len(n.children))
		for _, c := range n.children {
			def.Conditions = append(def.Conditions, c.build())
		}
	}
	return def
}

// LoadRules returns the stored rule definitions in registry order. Condition and outcome
// ids are the database row ids.
func (s *RuleStore) LoadRules(ctx context.Context) ([]types.RuleDef, error) {
	var ruleRows []ruleRow
	if err := s.queries.Select(ctx, "list-rules", &ruleRows); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	var condRows []conditionRow
	if err := s.queries.Select(ctx, "list-conditions", &condRows); err != nil {
		return nil, fmt.Errorf("failed to list conditions: %w", err)
	}
	var outRows []outcomeRow
	if err := s.queries.Select(ctx, "list-outcomes", &outRows); err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}

	// Rows arrive ordered by position, so appending keeps sibling order.
	nodes := make(map[int64]*conditionNode, len(condRows))
	for _, row := range condRows {
		value, err := decodeJSON(row.Value)
		if err != nil {
			return nil, fmt.Errorf("condition %d: invalid value: %w", row.ID, err)
		}
		nodes[row.ID] = &conditionNode{def: types.ConditionDef{
			ID:          int(row.ID),
			Name:        row.Name,
			Description: row.Description,
			Path:        row.Path,
			Comp:        row.Comp,
			Op:          row.Op,
			Value:       value,
			Transform:   row.Transform,
		}}
	}
	topLevel := make(map[int64][]*conditionNode)
	for _, row := range condRows {
		node := nodes[row.ID]
		if !row.ParentID.Valid {
			topLevel[row.RuleID] = append(topLevel[row.RuleID], node)
			continue
		}
		parent, ok := nodes[row.ParentID.Int64]
		if !ok {
			return nil, fmt.Errorf("condition %d: parent %d not found", row.ID, row.ParentID.Int64)
		}
		parent.children = append(parent.children, node)
	}

	outcomes := make(map[int64][]types.OutcomeDef)
	for _, row := range outRows {
		od, err := row.toDef()
		if err != nil {
			return nil, fmt.Errorf("outcome %d: %w", row.ID, err)
		}
		outcomes[row.RuleID] = append(outcomes[row.RuleID], od)
	}

	defs := make([]types.RuleDef, 0, len(ruleRows))
	for _, row := range ruleRows {
		def := types.RuleDef{
			ID:          types.RuleID(row.ID),
			Name:        row.Name,
			Description: row.Description,
			Active:      types.Bool(row.Active),
			Root:        types.Bool(row.Root),
			Comp:        row.Comp,
			Op:          row.Op,
			Outcomes:    outcomes[row.ID],
		}
		if row.Since.Valid {
			def.Since = row.Since.Time
		}
		if row.Until.Valid {
			def.Until = row.Until.Time
		}
		for _, node := range topLevel[row.ID] {
			def.Conditions = append(def.Conditions, node.build())
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (row outcomeRow) toDef() (types.OutcomeDef, error) {
	od := types.OutcomeDef{
		ID:          int(row.ID),
		Name:        row.Name,
		Description: row.Description,
		Typ:         row.Typ,
		EventID:     row.EventID,
	}
	if row.TargetRuleID.Valid {
		od.RuleID = types.RuleID(row.TargetRuleID.Int64)
	}
	value, err := decodeJSON(row.Value)
	if err != nil {
		return od, fmt.Errorf("invalid value: %w", err)
	}
	od.Value = value
	if row.Value.Valid && value == nil {
		od.Value = types.Null
	}
	if row.Data.Valid {
		if err := json.Unmarshal([]byte(row.Data.String), &od.Data); err != nil {
			return od, fmt.Errorf("invalid data: %w", err)
		}
	}
	return od, nil
}

// LoadRegistry loads and compiles the stored rules.
func (s *RuleStore) LoadRegistry(ctx context.Context) (*rules.Registry, error) {
	defs, err := s.LoadRules(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := rules.NewRegistry(defs)
	if err != nil {
		return nil, fmt.Errorf("stored rules do not compile: %w", err)
	}
	return reg, nil
}

// CountRules returns the number of stored rules.
func (s *RuleStore) CountRules(ctx context.Context) (int, error) {
	var n int
	if err := s.queries.Get(ctx, "count-rules", &n); err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return n, nil
}

// ImportRules replaces the stored rule set with defs and returns the number of rules
// written. defs are compiled first; nothing is written when they do not compile. Rules
// without an id are stored under the id the registry assigned them.
func (s *RuleStore) ImportRules(ctx context.Context, defs []types.RuleDef) (int, error) {
	reg, err := rules.NewRegistry(defs)
	if err != nil {
		return 0, err
	}
	compiled := reg.Rules()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := s.queries.WithTx(tx)
	for _, name := range []string{"delete-outcomes", "delete-conditions", "delete-rules"} {
		if _, err := q.Exec(ctx, name); err != nil {
			return 0, fmt.Errorf("failed to clear rules (%s): %w", name, err)
		}
	}

	for i, rule := range compiled {
		def := defs[i]
		_, err := q.Exec(ctx, "insert-rule",
			int64(rule.ID), i, rule.Name, rule.Description,
			nullTime(rule.Since), nullTime(rule.Until),
			rule.Active, rule.Root, rule.Comparator.String(), rule.Operator.String(),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert rule %d: %w", rule.ID, err)
		}

		for j, cond := range rule.Conditions {
			if err := insertCondition(ctx, q, int64(rule.ID), sql.NullInt64{}, j, def.Conditions[j], cond); err != nil {
				return 0, fmt.Errorf("rule %d: %w", rule.ID, err)
			}
		}

		for j, out := range rule.Outcomes {
			if err := insertOutcome(ctx, q, int64(rule.ID), j, def.Outcomes[j], out); err != nil {
				return 0, fmt.Errorf("rule %d: %w", rule.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rules: %w", err)
	}
	return len(compiled), nil
}

// insertCondition writes cond and its children. def supplies the fields compilation does
// not keep (description, transform name).
func insertCondition(ctx context.Context, q *Queries, ruleID int64, parentID sql.NullInt64, position int,
	def types.ConditionDef, cond *rules.CompiledCondition) error {
	var value sql.NullString
	if !cond.Composite() {
		encoded, err := encodeJSON(cond.Value)
		if err != nil {
			return fmt.Errorf("condition value: %w", err)
		}
		value = encoded
	}

	id, err := q.InsertID(ctx, "insert-condition",
		ruleID, parentID, position, cond.Name, def.Description, cond.Path,
		cond.Comparator.String(), cond.Operator.String(), value,
		strings.ToLower(strings.TrimSpace(def.Transform)),
	)
	if err != nil {
		return fmt.Errorf("failed to insert condition: %w", err)
	}

	for k, child := range cond.Children {
		if err := insertCondition(ctx, q, ruleID, sql.NullInt64{Int64: id, Valid: true}, k, def.Conditions[k], child); err != nil {
			return err
		}
	}
	return nil
}

func insertOutcome(ctx context.Context, q *Queries, ruleID int64, position int,
	def types.OutcomeDef, out rules.CompiledOutcome) error {
	var (
		target sql.NullInt64
		value  sql.NullString
		data   sql.NullString
		err    error
	)
	switch out.Type {
	case rules.OutcomeRule:
		target = sql.NullInt64{Int64: int64(out.RuleID), Valid: true}
	case rules.OutcomeValue:
		if value, err = encodeJSON(out.Value); err != nil {
			return fmt.Errorf("outcome value: %w", err)
		}
	case rules.OutcomeData, rules.OutcomeEvent:
		if data, err = encodeJSON(out.Items); err != nil {
			return fmt.Errorf("outcome data: %w", err)
		}
	}

	_, err = q.Exec(ctx, "insert-outcome",
		ruleID, position, out.Name, def.Description, string(out.Type),
		target, value, data, out.EventID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// encodeJSON stores a normalized value as JSON text. A nil value is stored as JSON null,
// not SQL NULL, so that an explicit null comparison survives a round trip.
func encodeJSON(v any) (sql.NullString, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeJSON(s sql.NullString) (any, error) {
	if !s.Valid {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return nil, err
	}
	return v, nil
}
