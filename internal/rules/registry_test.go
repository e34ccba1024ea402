package rules

import (
	"errors"
	"testing"

	"github.com/solatis/verdict/internal/types"
)

func TestNewRegistry_AssignsIDs(t *testing.T) {
	defs := []types.RuleDef{
		{Name: "first"},
		{ID: 2, Name: "explicit"},
		{Name: "third"},
		{Name: "fourth"},
	}

	reg, err := NewRegistry(defs)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v, want nil", err)
	}
	if reg.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", reg.Len())
	}

	wantIDs := []types.RuleID{1, 2, 3, 4}
	wantNames := []string{"first", "explicit", "third", "fourth"}
	for i, rule := range reg.Rules() {
		if rule.ID != wantIDs[i] {
			t.Errorf("Rules()[%d].ID = %d, want %d", i, rule.ID, wantIDs[i])
		}
		if rule.Name != wantNames[i] {
			t.Errorf("Rules()[%d].Name = %q, want %q", i, rule.Name, wantNames[i])
		}
	}
}

func TestNewRegistry_SkipsLaterExplicitIDs(t *testing.T) {
	reg, err := NewRegistry([]types.RuleDef{
		{Name: "auto"},
		{ID: 1, Name: "explicit"},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v, want nil", err)
	}

	rules := reg.Rules()
	if rules[0].ID != 2 {
		t.Errorf("auto ID = %d, want 2", rules[0].ID)
	}
	if rules[1].ID != 1 {
		t.Errorf("explicit ID = %d, want 1", rules[1].ID)
	}

	got, ok := reg.Get(1)
	if !ok || got.Name != "explicit" {
		t.Errorf("Get(1) = %v, %v, want explicit", got, ok)
	}
	if _, ok := reg.Get(3); ok {
		t.Errorf("Get(3) ok = true, want false")
	}
}

func TestNewRegistry_DuplicateID(t *testing.T) {
	_, err := NewRegistry([]types.RuleDef{{ID: 5}, {ID: 5}})
	if !errors.Is(err, types.ErrDuplicateRuleID) {
		t.Fatalf("NewRegistry() error = %v, want ErrDuplicateRuleID", err)
	}

	var ve *types.ValidationError
	if !errors.As(err, &ve) || ve.Field != "rules[1].id" {
		t.Errorf("NewRegistry() error = %v, want field rules[1].id", err)
	}
}

func TestNewRegistry_PrefixesFieldPath(t *testing.T) {
	_, err := NewRegistry([]types.RuleDef{
		{Name: "ok"},
		{Outcomes: []types.OutcomeDef{{Typ: "EVENT"}}},
	})

	var ve *types.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("NewRegistry() error = %v, want *types.ValidationError", err)
	}
	if ve.Field != "rules[1].outcomes[0].event_id" {
		t.Errorf("Field = %q, want rules[1].outcomes[0].event_id", ve.Field)
	}
}

func TestRegistry_RulesIsCopy(t *testing.T) {
	reg, err := NewRegistry([]types.RuleDef{{Name: "a"}, {Name: "b"}})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v, want nil", err)
	}

	rules := reg.Rules()
	rules[0] = nil
	if reg.Rules()[0] == nil {
		t.Errorf("Rules() exposes internal order slice")
	}
}
