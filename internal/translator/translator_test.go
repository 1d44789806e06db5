package translator

import (
	"errors"
	"reflect"
	"testing"

	"github.com/colex-db/colex/internal/collection"
	"github.com/colex-db/colex/internal/domain"
	"github.com/colex-db/colex/internal/domain/filter"
)

func mustTranslate(t *testing.T, c filter.Condition) *collection.Predicate {
	t.Helper()
	p, err := Condition(&c)
	if err != nil {
		t.Fatalf("unexpected translation error: %v", err)
	}
	if p == nil {
		t.Fatal("expected a predicate, got nil")
	}
	return p
}

func TestCondition_Equal(t *testing.T) {
	p := mustTranslate(t, filter.Condition{
		Path: "status", Operator: filter.OpEqual, Value: "published", ValueType: filter.TypeText,
	})

	if p.Kind != collection.PredCompare {
		t.Fatalf("expected compare predicate, got %s", p.Kind)
	}
	if p.Compare.Op != collection.CmpEqual {
		t.Errorf("expected Equal, got %s", p.Compare.Op)
	}
	if p.Compare.Value.Kind != collection.KindText || p.Compare.Value.Text != "published" {
		t.Errorf("unexpected operand: %+v", p.Compare.Value)
	}
}

func TestCondition_TextSearchOperators(t *testing.T) {
	cases := []struct {
		op      filter.Operator
		pattern string
	}{
		{filter.OpLike, "dra*"},
		{filter.OpContains, "*draft*"},
		{filter.OpStartsWith, "draft*"},
		{filter.OpEndsWith, "*draft"},
	}
	for _, tc := range cases {
		t.Run(string(tc.op), func(t *testing.T) {
			value := "draft"
			if tc.op == filter.OpLike {
				value = "dra*"
			}
			p := mustTranslate(t, filter.Condition{
				Path: "title", Operator: tc.op, Value: value, ValueType: filter.TypeText,
			})
			if p.Compare.Op != collection.CmpLike {
				t.Fatalf("expected Like, got %s", p.Compare.Op)
			}
			if p.Compare.Value.Text != tc.pattern {
				t.Errorf("expected pattern %q, got %q", tc.pattern, p.Compare.Value.Text)
			}
		})
	}
}

func TestCondition_InDegeneratesToEqual(t *testing.T) {
	p := mustTranslate(t, filter.Condition{
		Path: "status", Operator: filter.OpIn, Value: []any{"published"}, ValueType: filter.TypeText,
	})

	if p.Kind != collection.PredCompare || p.Compare.Op != collection.CmpEqual {
		t.Fatalf("single-value In should degenerate to Equal, got %s", p.Kind)
	}
}

func TestCondition_InExpandsToOr(t *testing.T) {
	p := mustTranslate(t, filter.Condition{
		Path:      "status",
		Operator:  filter.OpIn,
		Value:     []any{"draft", "published", "archived"},
		ValueType: filter.TypeText,
	})

	if p.Kind != collection.PredOr {
		t.Fatalf("expected Or predicate, got %s", p.Kind)
	}
	if len(p.Operands) != 3 {
		t.Fatalf("expected 3 operands, got %d", len(p.Operands))
	}
	for _, op := range p.Operands {
		if op.Compare == nil || op.Compare.Op != collection.CmpEqual {
			t.Errorf("expected Equal leaf, got %+v", op)
		}
	}
}

func TestCondition_NotInWrapsInNot(t *testing.T) {
	p := mustTranslate(t, filter.Condition{
		Path: "status", Operator: filter.OpNotIn, Value: []any{"a", "b"}, ValueType: filter.TypeText,
	})

	if p.Kind != collection.PredNot {
		t.Fatalf("expected Not predicate, got %s", p.Kind)
	}
	if p.Inner.Kind != collection.PredOr {
		t.Errorf("expected Not(Or(...)), inner is %s", p.Inner.Kind)
	}
}

func TestCondition_InEmptyFails(t *testing.T) {
	_, err := Condition(&filter.Condition{
		Path: "status", Operator: filter.OpIn, Value: []any{},
	})
	var fbe *domain.FilterBuildError
	if !errors.As(err, &fbe) {
		t.Fatalf("expected FilterBuildError, got %v", err)
	}
	if fbe.Path != "status" {
		t.Errorf("expected offending path 'status', got %q", fbe.Path)
	}
}

func TestCondition_Between(t *testing.T) {
	p := mustTranslate(t, filter.Condition{
		Path: "wordCount", Operator: filter.OpBetween, Value: []any{float64(100), float64(500)},
		ValueType: filter.TypeNumber,
	})

	if p.Kind != collection.PredAnd || len(p.Operands) != 2 {
		t.Fatalf("expected And with 2 operands, got %+v", p)
	}
	if p.Operands[0].Compare.Op != collection.CmpGreaterOrEqual {
		t.Errorf("expected lower bound GreaterOrEqual, got %s", p.Operands[0].Compare.Op)
	}
	if p.Operands[1].Compare.Op != collection.CmpLessOrEqual {
		t.Errorf("expected upper bound LessOrEqual, got %s", p.Operands[1].Compare.Op)
	}
}

func TestCondition_BetweenRequiresTwoValues(t *testing.T) {
	_, err := Condition(&filter.Condition{
		Path: "wordCount", Operator: filter.OpBetween, Value: []any{float64(100)},
		ValueType: filter.TypeNumber,
	})
	if err == nil {
		t.Fatal("expected error for between with one value")
	}
}

func TestCondition_IsNotNull(t *testing.T) {
	p := mustTranslate(t, filter.Condition{Path: "author", Operator: filter.OpIsNotNull})

	if p.Kind != collection.PredNot {
		t.Fatalf("expected Not(IsNull), got %s", p.Kind)
	}
	if p.Inner.Compare.Op != collection.CmpIsNull {
		t.Errorf("expected inner IsNull, got %s", p.Inner.Compare.Op)
	}
}

func TestCondition_WithinDistance(t *testing.T) {
	p := mustTranslate(t, filter.Condition{
		Path:     "location",
		Operator: filter.OpWithinDistance,
		Value: map[string]any{
			"latitude": 52.52, "longitude": 13.405, "distance": float64(2000),
		},
	})

	geo := p.Compare.Value.Geo
	if geo == nil {
		t.Fatal("expected geo operand")
	}
	if geo.Latitude != 52.52 || geo.Longitude != 13.405 || geo.MaxDistanceMeters != 2000 {
		t.Errorf("unexpected geo range: %+v", geo)
	}
}

func TestCondition_UnknownOperator(t *testing.T) {
	_, err := Condition(&filter.Condition{Path: "x", Operator: "Fancy", Value: "y"})

	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var uoe *domain.UnknownOperatorError
	if !errors.As(err, &uoe) || uoe.Operator != "Fancy" {
		t.Errorf("expected UnknownOperatorError with operator Fancy, got %v", err)
	}
}

func TestCondition_MissingPath(t *testing.T) {
	_, err := Condition(&filter.Condition{Operator: filter.OpEqual, Value: "x"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCoercion(t *testing.T) {
	cases := []struct {
		name string
		cond filter.Condition
		want collection.Value
	}{
		{
			name: "numeric string to int",
			cond: filter.Condition{Path: "n", Operator: filter.OpEqual, Value: "42", ValueType: filter.TypeNumber},
			want: collection.IntValue(42),
		},
		{
			name: "float stays float",
			cond: filter.Condition{Path: "n", Operator: filter.OpEqual, Value: 3.5, ValueType: filter.TypeNumber},
			want: collection.NumberValue(3.5),
		},
		{
			name: "unparseable number falls back to text",
			cond: filter.Condition{Path: "n", Operator: filter.OpEqual, Value: "abc", ValueType: filter.TypeNumber},
			want: collection.TextValue("abc"),
		},
		{
			name: "boolean string",
			cond: filter.Condition{Path: "b", Operator: filter.OpEqual, Value: "true", ValueType: filter.TypeBoolean},
			want: collection.BoolValue(true),
		},
		{
			name: "date only normalizes to rfc3339",
			cond: filter.Condition{Path: "d", Operator: filter.OpEqual, Value: "2024-01-15", ValueType: filter.TypeDate},
			want: collection.DateValue("2024-01-15T00:00:00Z"),
		},
		{
			name: "unparseable date kept raw",
			cond: filter.Condition{Path: "d", Operator: filter.OpEqual, Value: "yesterday", ValueType: filter.TypeDate},
			want: collection.DateValue("yesterday"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := mustTranslate(t, tc.cond)
			if !reflect.DeepEqual(p.Compare.Value, tc.want) {
				t.Errorf("got %+v, want %+v", p.Compare.Value, tc.want)
			}
		})
	}
}

func TestConditions_MatchModes(t *testing.T) {
	conds := []filter.Condition{
		{Path: "a", Operator: filter.OpEqual, Value: "1", ValueType: filter.TypeText},
		{Path: "b", Operator: filter.OpEqual, Value: "2", ValueType: filter.TypeText},
		{Path: "c", Operator: filter.OpEqual, Value: "3", ValueType: filter.TypeText},
	}

	and, err := Conditions(conds, filter.MatchAnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if and.Kind != collection.PredAnd {
		t.Errorf("expected And for default match mode, got %s", and.Kind)
	}

	or, err := Conditions(conds, filter.MatchOr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if or.Kind != collection.PredOr {
		t.Errorf("expected Or for OR match mode, got %s", or.Kind)
	}
}

func TestConditions_Empty(t *testing.T) {
	p, err := Conditions(nil, filter.MatchAnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil predicate for empty conditions, got %+v", p)
	}
}

func TestGroup_NotOperator(t *testing.T) {
	g := &filter.Group{
		Operator: filter.GroupNot,
		Filters: []filter.Condition{
			{Path: "status", Operator: filter.OpEqual, Value: "archived", ValueType: filter.TypeText},
		},
	}

	p, err := Group(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Kind != collection.PredNot {
		t.Errorf("expected Not predicate, got %s", p.Kind)
	}
}

func TestGroup_EmptyYieldsNil(t *testing.T) {
	g := &filter.Group{
		Operator: filter.GroupAnd,
		Groups:   []filter.Group{{Operator: filter.GroupOr}},
	}

	p, err := Group(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil for empty group tree, got %+v", p)
	}
}

func TestGroup_DepthBound(t *testing.T) {
	leaf := filter.Group{
		Operator: filter.GroupAnd,
		Filters: []filter.Condition{
			{Path: "x", Operator: filter.OpEqual, Value: "y", ValueType: filter.TypeText},
		},
	}
	g := leaf
	for i := 0; i < filter.MaxGroupDepth; i++ {
		g = filter.Group{Operator: filter.GroupAnd, Groups: []filter.Group{g}}
	}

	_, err := Group(&g)
	if !errors.Is(err, domain.ErrFilterTooDeep) {
		t.Fatalf("expected depth error, got %v", err)
	}
}

func TestTranslation_Deterministic(t *testing.T) {
	g := &filter.Group{
		Operator: filter.GroupAnd,
		Filters: []filter.Condition{
			{Path: "status", Operator: filter.OpIn, Value: []any{"a", "b"}, ValueType: filter.TypeText},
			{Path: "views", Operator: filter.OpGreaterThan, Value: float64(10), ValueType: filter.TypeNumber},
		},
	}

	p1, err := Group(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p2, err := Group(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p1.Canonical() != p2.Canonical() {
		t.Errorf("translation is not deterministic:\n%s\n%s", p1.Canonical(), p2.Canonical())
	}
}
