package collection

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CompareOp is a query-layer comparison primitive.
type CompareOp string

// Comparison primitives every backend must support.
const (
	CmpEqual          CompareOp = "Equal"
	CmpNotEqual       CompareOp = "NotEqual"
	CmpGreaterThan    CompareOp = "GreaterThan"
	CmpGreaterOrEqual CompareOp = "GreaterOrEqual"
	CmpLessThan       CompareOp = "LessThan"
	CmpLessOrEqual    CompareOp = "LessOrEqual"
	CmpLike           CompareOp = "Like"
	CmpContainsAny    CompareOp = "ContainsAny"
	CmpContainsAll    CompareOp = "ContainsAll"
	CmpIsNull         CompareOp = "IsNull"
	CmpGeoWithin      CompareOp = "GeoWithin"
)

// ValueKind discriminates the Value union.
type ValueKind string

// Value kinds.
const (
	KindText       ValueKind = "text"
	KindNumber     ValueKind = "number"
	KindInt        ValueKind = "int"
	KindBool       ValueKind = "bool"
	KindDate       ValueKind = "date"
	KindTextList   ValueKind = "textList"
	KindNumberList ValueKind = "numberList"
	KindBoolFlag   ValueKind = "boolFlag"
	KindGeo        ValueKind = "geo"
)

// GeoRange is the payload of a GeoWithin comparison.
type GeoRange struct {
	Latitude          float64
	Longitude         float64
	MaxDistanceMeters float64
}

// Value is the typed comparison operand. Exactly the field selected by Kind
// is meaningful; the union keeps coercion and serialization exhaustively
// checked against the known variants.
type Value struct {
	Kind       ValueKind
	Text       string
	Number     float64
	Int        int64
	Bool       bool
	Date       string // RFC 3339
	TextList   []string
	NumberList []float64
	Geo        *GeoRange
}

// TextValue creates a text operand.
func TextValue(s string) Value { return Value{Kind: KindText, Text: s} }

// NumberValue creates a float operand.
func NumberValue(f float64) Value { return Value{Kind: KindNumber, Number: f} }

// IntValue creates an integer operand.
func IntValue(i int64) Value { return Value{Kind: KindInt, Int: i} }

// BoolValue creates a boolean operand.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// DateValue creates an RFC 3339 date operand.
func DateValue(rfc3339 string) Value { return Value{Kind: KindDate, Date: rfc3339} }

// TextListValue creates a text array operand.
func TextListValue(ss []string) Value { return Value{Kind: KindTextList, TextList: ss} }

// NumberListValue creates a numeric array operand.
func NumberListValue(fs []float64) Value { return Value{Kind: KindNumberList, NumberList: fs} }

// FlagValue creates the boolean flag operand used by IsNull.
func FlagValue(b bool) Value { return Value{Kind: KindBoolFlag, Bool: b} }

// GeoValue creates a geo range operand.
func GeoValue(lat, lon, maxMeters float64) Value {
	return Value{Kind: KindGeo, Geo: &GeoRange{
		Latitude: lat, Longitude: lon, MaxDistanceMeters: maxMeters,
	}}
}

func (v Value) canonical() string {
	switch v.Kind {
	case KindText:
		return "t:" + v.Text
	case KindNumber:
		return "n:" + strconv.FormatFloat(v.Number, 'g', -1, 64)
	case KindInt:
		return "i:" + strconv.FormatInt(v.Int, 10)
	case KindBool, KindBoolFlag:
		return "b:" + strconv.FormatBool(v.Bool)
	case KindDate:
		return "d:" + v.Date
	case KindTextList:
		return "tl:" + strings.Join(v.TextList, "\x1f")
	case KindNumberList:
		parts := make([]string, len(v.NumberList))
		for i, f := range v.NumberList {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return "nl:" + strings.Join(parts, "\x1f")
	case KindGeo:
		return fmt.Sprintf("g:%g,%g,%g", v.Geo.Latitude, v.Geo.Longitude, v.Geo.MaxDistanceMeters)
	default:
		return "?"
	}
}

// Comparison is a single path/operator/operand predicate leaf.
type Comparison struct {
	Path  string
	Op    CompareOp
	Value Value
}

// PredicateKind discriminates the Predicate union.
type PredicateKind string

// Predicate kinds.
const (
	PredCompare PredicateKind = "compare"
	PredAnd     PredicateKind = "and"
	PredOr      PredicateKind = "or"
	PredNot     PredicateKind = "not"
)

// Predicate is the query-layer filter tree handed to a backend.
type Predicate struct {
	Kind     PredicateKind
	Compare  *Comparison  // PredCompare
	Operands []*Predicate // PredAnd / PredOr
	Inner    *Predicate   // PredNot
}

// And combines predicates with logical AND. Nil operands are skipped;
// a single survivor is returned unwrapped.
func And(ps ...*Predicate) *Predicate { return combine(PredAnd, ps) }

// Or combines predicates with logical OR. Nil operands are skipped;
// a single survivor is returned unwrapped.
func Or(ps ...*Predicate) *Predicate { return combine(PredOr, ps) }

func combine(kind PredicateKind, ps []*Predicate) *Predicate {
	kept := make([]*Predicate, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &Predicate{Kind: kind, Operands: kept}
}

// Not negates a predicate. Not(nil) is nil.
func Not(p *Predicate) *Predicate {
	if p == nil {
		return nil
	}
	return &Predicate{Kind: PredNot, Inner: p}
}

// PropertyBuilder builds comparison predicates for a property path.
type PropertyBuilder struct {
	path string
}

// Prop starts a comparison on a property path.
func Prop(path string) PropertyBuilder { return PropertyBuilder{path: path} }

func (b PropertyBuilder) compare(op CompareOp, v Value) (*Predicate, error) {
	if b.path == "" {
		return nil, fmt.Errorf("property path is required")
	}
	if err := checkOperand(op, v); err != nil {
		return nil, err
	}
	return &Predicate{
		Kind:    PredCompare,
		Compare: &Comparison{Path: b.path, Op: op, Value: v},
	}, nil
}

// checkOperand rejects operand kinds a comparison cannot carry.
func checkOperand(op CompareOp, v Value) error {
	switch op {
	case CmpContainsAny, CmpContainsAll:
		if v.Kind != KindTextList && v.Kind != KindNumberList {
			return fmt.Errorf("%s requires an array operand, got %s", op, v.Kind)
		}
	case CmpIsNull:
		if v.Kind != KindBoolFlag {
			return fmt.Errorf("IsNull requires a boolean flag operand, got %s", v.Kind)
		}
	case CmpGeoWithin:
		if v.Kind != KindGeo || v.Geo == nil {
			return fmt.Errorf("GeoWithin requires a geo range operand")
		}
	case CmpLike:
		if v.Kind != KindText {
			return fmt.Errorf("Like requires a text operand, got %s", v.Kind)
		}
	default:
		if v.Kind == KindGeo || v.Kind == KindBoolFlag {
			return fmt.Errorf("%s cannot take a %s operand", op, v.Kind)
		}
	}
	return nil
}

// Equal builds path == value.
func (b PropertyBuilder) Equal(v Value) (*Predicate, error) { return b.compare(CmpEqual, v) }

// NotEqual builds path != value.
func (b PropertyBuilder) NotEqual(v Value) (*Predicate, error) { return b.compare(CmpNotEqual, v) }

// GreaterThan builds path > value.
func (b PropertyBuilder) GreaterThan(v Value) (*Predicate, error) {
	return b.compare(CmpGreaterThan, v)
}

// GreaterOrEqual builds path >= value.
func (b PropertyBuilder) GreaterOrEqual(v Value) (*Predicate, error) {
	return b.compare(CmpGreaterOrEqual, v)
}

// LessThan builds path < value.
func (b PropertyBuilder) LessThan(v Value) (*Predicate, error) { return b.compare(CmpLessThan, v) }

// LessOrEqual builds path <= value.
func (b PropertyBuilder) LessOrEqual(v Value) (*Predicate, error) {
	return b.compare(CmpLessOrEqual, v)
}

// Like builds a wildcard text match. The pattern carries `*` wildcards.
func (b PropertyBuilder) Like(pattern string) (*Predicate, error) {
	return b.compare(CmpLike, TextValue(pattern))
}

// ContainsAny builds an any-of-array match.
func (b PropertyBuilder) ContainsAny(v Value) (*Predicate, error) {
	return b.compare(CmpContainsAny, v)
}

// ContainsAll builds an all-of-array match.
func (b PropertyBuilder) ContainsAll(v Value) (*Predicate, error) {
	return b.compare(CmpContainsAll, v)
}

// IsNull builds a null check. The flag mirrors the backend primitive;
// non-null checks are expressed as Not(IsNull(true)).
func (b PropertyBuilder) IsNull(flag bool) (*Predicate, error) {
	return b.compare(CmpIsNull, FlagValue(flag))
}

// WithinGeoRange builds a geo distance match.
func (b PropertyBuilder) WithinGeoRange(lat, lon, maxMeters float64) (*Predicate, error) {
	return b.compare(CmpGeoWithin, GeoValue(lat, lon, maxMeters))
}

// Canonical returns a stable serialization of the predicate tree. Structurally
// identical trees always serialize identically; no hidden state leaks in.
func (p *Predicate) Canonical() string {
	if p == nil {
		return ""
	}
	var sb strings.Builder
	p.writeCanonical(&sb)
	return sb.String()
}

func (p *Predicate) writeCanonical(sb *strings.Builder) {
	switch p.Kind {
	case PredCompare:
		sb.WriteString(p.Compare.Path)
		sb.WriteByte('|')
		sb.WriteString(string(p.Compare.Op))
		sb.WriteByte('|')
		sb.WriteString(p.Compare.Value.canonical())
	case PredAnd, PredOr:
		sb.WriteString(string(p.Kind))
		sb.WriteByte('(')
		for i, op := range p.Operands {
			if i > 0 {
				sb.WriteByte(';')
			}
			op.writeCanonical(sb)
		}
		sb.WriteByte(')')
	case PredNot:
		sb.WriteString("not(")
		p.Inner.writeCanonical(sb)
		sb.WriteByte(')')
	}
}

// Fingerprint returns a short stable digest of the predicate, used as the
// filtered-count cache key component.
func (p *Predicate) Fingerprint() string {
	h := sha256.Sum256([]byte(p.Canonical()))
	return hex.EncodeToString(h[:16])
}

// Paths returns the sorted set of property paths referenced by the tree.
func (p *Predicate) Paths() []string {
	set := make(map[string]struct{})
	p.collectPaths(set)
	paths := make([]string, 0, len(set))
	for path := range set {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func (p *Predicate) collectPaths(set map[string]struct{}) {
	if p == nil {
		return
	}
	switch p.Kind {
	case PredCompare:
		set[p.Compare.Path] = struct{}{}
	case PredAnd, PredOr:
		for _, op := range p.Operands {
			op.collectPaths(set)
		}
	case PredNot:
		p.Inner.collectPaths(set)
	}
}
