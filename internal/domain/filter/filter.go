// Package filter holds the UI-level filter model: flat conditions and
// recursive condition groups as they arrive from the browser panel.
package filter

import (
	"fmt"

	"github.com/colex-db/colex/internal/domain"
)

// MaxGroupDepth bounds filter group nesting. Deeper trees are a caller error,
// not a silent truncation.
const MaxGroupDepth = 5

// Operator is a UI-level comparison operator.
type Operator string

// Supported filter operators.
const (
	OpEqual            Operator = "Equal"
	OpNotEqual         Operator = "NotEqual"
	OpGreaterThan      Operator = "GreaterThan"
	OpGreaterThanEqual Operator = "GreaterThanEqual"
	OpLessThan         Operator = "LessThan"
	OpLessThanEqual    Operator = "LessThanEqual"
	OpLike             Operator = "Like"
	OpContains         Operator = "Contains"
	OpStartsWith       Operator = "StartsWith"
	OpEndsWith         Operator = "EndsWith"
	OpContainsAny      Operator = "ContainsAny"
	OpContainsAll      Operator = "ContainsAll"
	OpIsNull           Operator = "IsNull"
	OpIsNotNull        Operator = "IsNotNull"
	OpIn               Operator = "In"
	OpNotIn            Operator = "NotIn"
	OpBetween          Operator = "Between"
	OpWithinDistance   Operator = "WithinDistance"
)

// ValueType declares how a condition value is coerced before translation.
type ValueType string

// Supported value types.
const (
	TypeText    ValueType = "text"
	TypeNumber  ValueType = "number"
	TypeBoolean ValueType = "boolean"
	TypeDate    ValueType = "date"
)

// IsValid checks if the value type is one of the supported variants.
func (t ValueType) IsValid() bool {
	return t == TypeText || t == TypeNumber || t == TypeBoolean || t == TypeDate
}

// MatchMode controls how top-level conditions combine.
type MatchMode string

// Match modes. The default is AND.
const (
	MatchAnd MatchMode = "AND"
	MatchOr  MatchMode = "OR"
)

// GroupOperator combines the members of a filter group.
type GroupOperator string

// Group operators.
const (
	GroupAnd GroupOperator = "AND"
	GroupOr  GroupOperator = "OR"
	GroupNot GroupOperator = "NOT"
)

// Condition is a single UI filter clause. ID is UI identity only and carries
// no query semantics. Value is the raw JSON-decoded value; coercion is
// directed by ValueType during translation.
type Condition struct {
	ID        string    `json:"id,omitempty"`
	Path      string    `json:"path"`
	Operator  Operator  `json:"operator"`
	Value     any       `json:"value,omitempty"`
	ValueType ValueType `json:"valueType,omitempty"`
}

// Validate checks the condition invariants: non-empty path, and a value
// unless the operator is a null check.
func (c *Condition) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: filter path is required", domain.ErrValidation)
	}
	if c.Operator == "" {
		return fmt.Errorf("%w: filter operator is required", domain.ErrValidation)
	}
	if c.Value == nil && c.Operator != OpIsNull && c.Operator != OpIsNotNull {
		return fmt.Errorf("%w: filter value is required for operator %s on %q",
			domain.ErrValidation, c.Operator, c.Path)
	}
	if c.ValueType != "" && !c.ValueType.IsValid() {
		return fmt.Errorf("%w: invalid value type %q", domain.ErrValidation, c.ValueType)
	}
	return nil
}

// Group is a recursive filter tree. A group with zero conditions and zero
// subgroups is semantically empty and must not reach the query layer.
type Group struct {
	ID       string        `json:"id,omitempty"`
	Operator GroupOperator `json:"operator"`
	Filters  []Condition   `json:"filters,omitempty"`
	Groups   []Group       `json:"groups,omitempty"`
}

// IsEmpty reports whether the group carries no conditions at any depth.
func (g *Group) IsEmpty() bool {
	if len(g.Filters) > 0 {
		return false
	}
	for i := range g.Groups {
		if !g.Groups[i].IsEmpty() {
			return false
		}
	}
	return true
}

// Validate checks the whole tree: operator validity, condition invariants,
// and the depth bound.
func (g *Group) Validate() error {
	return g.validate(1)
}

func (g *Group) validate(depth int) error {
	if depth > MaxGroupDepth {
		return fmt.Errorf("%w (max %d)", domain.ErrFilterTooDeep, MaxGroupDepth)
	}
	switch g.Operator {
	case GroupAnd, GroupOr, GroupNot:
	case "":
		return fmt.Errorf("%w: group operator is required", domain.ErrValidation)
	default:
		return fmt.Errorf("%w: invalid group operator %q", domain.ErrValidation, g.Operator)
	}
	for i := range g.Filters {
		if err := g.Filters[i].Validate(); err != nil {
			return err
		}
	}
	for i := range g.Groups {
		if err := g.Groups[i].validate(depth + 1); err != nil {
			return err
		}
	}
	return nil
}
