// Package translator converts the UI-level filter model into the predicate
// trees the collection backend expects. Translation is pure and synchronous;
// identical inputs always yield structurally identical predicates.
package translator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/colex-db/colex/internal/collection"
	"github.com/colex-db/colex/internal/domain"
	"github.com/colex-db/colex/internal/domain/filter"
)

// Conditions translates a flat condition list, combining with AND by default
// or OR when the match mode requests it. All predicates are built before
// combining so a builder failure reports the offending path. Returns nil for
// an empty list.
func Conditions(conds []filter.Condition, mode filter.MatchMode) (*collection.Predicate, error) {
	if len(conds) == 0 {
		return nil, nil
	}

	preds := make([]*collection.Predicate, 0, len(conds))
	for i := range conds {
		p, err := Condition(&conds[i])
		if err != nil {
			return nil, err
		}
		if p != nil {
			preds = append(preds, p)
		}
	}
	if len(preds) == 0 {
		return nil, nil
	}

	// Binary left-fold.
	acc := preds[0]
	for _, p := range preds[1:] {
		if mode == filter.MatchOr {
			acc = collection.Or(acc, p)
		} else {
			acc = collection.And(acc, p)
		}
	}
	return acc, nil
}

// Group translates a recursive filter group. An empty group yields nil and
// never reaches the query layer. Nesting beyond filter.MaxGroupDepth is a
// caller error.
func Group(g *filter.Group) (*collection.Predicate, error) {
	if g == nil {
		return nil, nil
	}
	return translateGroup(g, 1)
}

func translateGroup(g *filter.Group, depth int) (*collection.Predicate, error) {
	if depth > filter.MaxGroupDepth {
		return nil, fmt.Errorf("%w (max %d)", domain.ErrFilterTooDeep, filter.MaxGroupDepth)
	}
	if g.IsEmpty() {
		return nil, nil
	}

	members := make([]*collection.Predicate, 0, len(g.Filters)+len(g.Groups))
	for i := range g.Filters {
		p, err := Condition(&g.Filters[i])
		if err != nil {
			return nil, err
		}
		if p != nil {
			members = append(members, p)
		}
	}
	for i := range g.Groups {
		p, err := translateGroup(&g.Groups[i], depth+1)
		if err != nil {
			return nil, err
		}
		if p != nil {
			members = append(members, p)
		}
	}
	if len(members) == 0 {
		return nil, nil
	}

	switch g.Operator {
	case filter.GroupOr:
		return collection.Or(members...), nil
	case filter.GroupNot:
		return collection.Not(collection.And(members...)), nil
	default:
		return collection.And(members...), nil
	}
}

// Condition translates a single filter condition into a predicate.
func Condition(c *filter.Condition) (*collection.Predicate, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	prop := collection.Prop(c.Path)
	var (
		pred *collection.Predicate
		err  error
	)

	switch c.Operator {
	case filter.OpEqual:
		pred, err = prop.Equal(coerceScalar(c.Value, c.ValueType))
	case filter.OpNotEqual:
		pred, err = prop.NotEqual(coerceScalar(c.Value, c.ValueType))
	case filter.OpGreaterThan:
		pred, err = prop.GreaterThan(coerceScalar(c.Value, c.ValueType))
	case filter.OpGreaterThanEqual:
		pred, err = prop.GreaterOrEqual(coerceScalar(c.Value, c.ValueType))
	case filter.OpLessThan:
		pred, err = prop.LessThan(coerceScalar(c.Value, c.ValueType))
	case filter.OpLessThanEqual:
		pred, err = prop.LessOrEqual(coerceScalar(c.Value, c.ValueType))
	case filter.OpLike:
		pred, err = prop.Like(coerceText(c.Value))
	case filter.OpContains:
		pred, err = prop.Like("*" + coerceText(c.Value) + "*")
	case filter.OpStartsWith:
		pred, err = prop.Like(coerceText(c.Value) + "*")
	case filter.OpEndsWith:
		pred, err = prop.Like("*" + coerceText(c.Value))
	case filter.OpContainsAny:
		pred, err = prop.ContainsAny(coerceList(c.Value, c.ValueType))
	case filter.OpContainsAll:
		pred, err = prop.ContainsAll(coerceList(c.Value, c.ValueType))
	case filter.OpIsNull:
		pred, err = prop.IsNull(true)
	case filter.OpIsNotNull:
		pred, err = prop.IsNull(true)
		if err == nil {
			pred = collection.Not(pred)
		}
	case filter.OpIn:
		return translateIn(c, false)
	case filter.OpNotIn:
		return translateIn(c, true)
	case filter.OpBetween:
		return translateBetween(c)
	case filter.OpWithinDistance:
		return translateWithinDistance(c)
	default:
		return nil, domain.NewUnknownOperator(string(c.Operator))
	}

	if err != nil {
		return nil, domain.NewFilterBuildError(c.Path, err)
	}
	return pred, nil
}

// translateIn expands In/NotIn. A single value degenerates to a plain
// Equal/NotEqual; multiple values expand to OR-of-Equal (or its negation).
// This avoids relying on array-containment semantics on scalar fields.
func translateIn(c *filter.Condition, negate bool) (*collection.Predicate, error) {
	elems := listElements(c.Value)
	if len(elems) == 0 {
		return nil, domain.NewFilterBuildError(c.Path,
			fmt.Errorf("%s requires at least one value", c.Operator))
	}

	prop := collection.Prop(c.Path)

	if len(elems) == 1 {
		v := coerceScalar(elems[0], c.ValueType)
		if negate {
			p, err := prop.NotEqual(v)
			if err != nil {
				return nil, domain.NewFilterBuildError(c.Path, err)
			}
			return p, nil
		}
		p, err := prop.Equal(v)
		if err != nil {
			return nil, domain.NewFilterBuildError(c.Path, err)
		}
		return p, nil
	}

	equals := make([]*collection.Predicate, 0, len(elems))
	for _, e := range elems {
		p, err := prop.Equal(coerceScalar(e, c.ValueType))
		if err != nil {
			return nil, domain.NewFilterBuildError(c.Path, err)
		}
		equals = append(equals, p)
	}
	or := collection.Or(equals...)
	if negate {
		return collection.Not(or), nil
	}
	return or, nil
}

// translateBetween expands to AND(GreaterOrEqual(min), LessOrEqual(max)).
func translateBetween(c *filter.Condition) (*collection.Predicate, error) {
	elems := listElements(c.Value)
	if len(elems) != 2 {
		return nil, domain.NewFilterBuildError(c.Path,
			fmt.Errorf("between requires exactly [min, max], got %d values", len(elems)))
	}

	minVal := coerceScalar(elems[0], c.ValueType)
	maxVal := coerceScalar(elems[1], c.ValueType)

	prop := collection.Prop(c.Path)
	lower, err := prop.GreaterOrEqual(minVal)
	if err != nil {
		return nil, domain.NewFilterBuildError(c.Path, err)
	}
	upper, err := prop.LessOrEqual(maxVal)
	if err != nil {
		return nil, domain.NewFilterBuildError(c.Path, err)
	}
	return collection.And(lower, upper), nil
}

// translateWithinDistance maps to a geo-range predicate with center
// coordinates and a max distance in meters.
func translateWithinDistance(c *filter.Condition) (*collection.Predicate, error) {
	m, ok := c.Value.(map[string]any)
	if !ok {
		return nil, domain.NewFilterBuildError(c.Path,
			fmt.Errorf("withinDistance requires {latitude, longitude, distance}"))
	}

	lat, latOK := numberField(m, "latitude")
	lon, lonOK := numberField(m, "longitude")
	dist, distOK := numberField(m, "distance")
	if !distOK {
		dist, distOK = numberField(m, "maxDistance")
	}
	if !latOK || !lonOK || !distOK {
		return nil, domain.NewFilterBuildError(c.Path,
			fmt.Errorf("withinDistance requires numeric latitude, longitude and distance"))
	}

	p, err := collection.Prop(c.Path).WithinGeoRange(lat, lon, dist)
	if err != nil {
		return nil, domain.NewFilterBuildError(c.Path, err)
	}
	return p, nil
}

func numberField(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// listElements coerces a raw value into element slices; a scalar is
// auto-wrapped into a singleton array.
func listElements(v any) []any {
	switch s := v.(type) {
	case nil:
		return nil
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	case []float64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	default:
		return []any{v}
	}
}

// coerceScalar applies the type-directed coercion rules to one value.
func coerceScalar(v any, t filter.ValueType) collection.Value {
	switch t {
	case filter.TypeNumber:
		return coerceNumber(v)
	case filter.TypeBoolean:
		return coerceBool(v)
	case filter.TypeDate:
		return coerceDate(v)
	default:
		return collection.TextValue(coerceText(v))
	}
}

// coerceNumber parses a numeric value, falling back to the original string
// when unparseable. It never silently drops the value.
func coerceNumber(v any) collection.Value {
	switch n := v.(type) {
	case float64:
		return numericValue(n)
	case int:
		return collection.IntValue(int64(n))
	case int64:
		return collection.IntValue(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) {
			return collection.TextValue(n)
		}
		return numericValue(f)
	case bool:
		if n {
			return collection.IntValue(1)
		}
		return collection.IntValue(0)
	default:
		return collection.TextValue(coerceText(v))
	}
}

func numericValue(f float64) collection.Value {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return collection.IntValue(int64(f))
	}
	return collection.NumberValue(f)
}

// coerceBool accepts booleans and the strings "true"/"false"; anything else
// falls back to truthiness.
func coerceBool(v any) collection.Value {
	switch b := v.(type) {
	case bool:
		return collection.BoolValue(b)
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true":
			return collection.BoolValue(true)
		case "false":
			return collection.BoolValue(false)
		}
		return collection.BoolValue(b != "")
	case float64:
		return collection.BoolValue(b != 0)
	case nil:
		return collection.BoolValue(false)
	default:
		return collection.BoolValue(true)
	}
}

// dateLayouts are tried in order when parsing date-like strings.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// coerceDate normalizes to an RFC 3339 string, falling back to the raw value
// when unparseable.
func coerceDate(v any) collection.Value {
	switch d := v.(type) {
	case time.Time:
		return collection.DateValue(d.UTC().Format(time.RFC3339))
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, d); err == nil {
				return collection.DateValue(t.UTC().Format(time.RFC3339))
			}
		}
		return collection.DateValue(d)
	case float64:
		// unix milliseconds
		return collection.DateValue(time.UnixMilli(int64(d)).UTC().Format(time.RFC3339))
	default:
		return collection.DateValue(coerceText(v))
	}
}

func coerceText(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// coerceList coerces a value into an array operand; scalars become
// singleton arrays.
func coerceList(v any, t filter.ValueType) collection.Value {
	elems := listElements(v)
	if t == filter.TypeNumber {
		nums := make([]float64, 0, len(elems))
		for _, e := range elems {
			cv := coerceNumber(e)
			switch cv.Kind {
			case collection.KindInt:
				nums = append(nums, float64(cv.Int))
			case collection.KindNumber:
				nums = append(nums, cv.Number)
			default:
				// unparseable element: fall back to a text list for the whole value
				return textList(elems)
			}
		}
		return collection.NumberListValue(nums)
	}
	return textList(elems)
}

func textList(elems []any) collection.Value {
	ss := make([]string, len(elems))
	for i, e := range elems {
		ss[i] = coerceText(e)
	}
	return collection.TextListValue(ss)
}
