package redis

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/colex-db/colex/internal/collection"
)

// compilePredicate translates a predicate tree into an FT.SEARCH query
// string (DIALECT 2).
func compilePredicate(p *collection.Predicate) (string, error) {
	if p == nil {
		return "", nil
	}
	switch p.Kind {
	case collection.PredCompare:
		return compileComparison(p.Compare)
	case collection.PredAnd:
		return compileGroup(p.Operands, " ")
	case collection.PredOr:
		return compileGroup(p.Operands, " | ")
	case collection.PredNot:
		inner, err := compilePredicate(p.Inner)
		if err != nil {
			return "", err
		}
		return "(-" + inner + ")", nil
	default:
		return "", fmt.Errorf("unknown predicate kind %q", p.Kind)
	}
}

func compileGroup(operands []*collection.Predicate, sep string) (string, error) {
	parts := make([]string, 0, len(operands))
	for _, op := range operands {
		s, err := compilePredicate(op)
		if err != nil {
			return "", err
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func compileComparison(c *collection.Comparison) (string, error) {
	f := fieldName(c.Path)

	switch c.Op {
	case collection.CmpEqual:
		return compileEqual(f, c.Value)
	case collection.CmpNotEqual:
		eq, err := compileEqual(f, c.Value)
		if err != nil {
			return "", err
		}
		return "(-" + eq + ")", nil
	case collection.CmpGreaterThan:
		return numericRange(f, c.Value, "(", "+inf", true)
	case collection.CmpGreaterOrEqual:
		return numericRange(f, c.Value, "", "+inf", true)
	case collection.CmpLessThan:
		return numericRange(f, c.Value, "(", "-inf", false)
	case collection.CmpLessOrEqual:
		return numericRange(f, c.Value, "", "-inf", false)
	case collection.CmpLike:
		return fmt.Sprintf("@%s:{w'%s'}", f, escapeWildcard(c.Value.Text)), nil
	case collection.CmpContainsAny:
		return compileContainsAny(f, c.Value)
	case collection.CmpContainsAll:
		return compileContainsAll(f, c.Value)
	case collection.CmpIsNull:
		// requires the index to declare the field with INDEXMISSING
		if c.Value.Kind == collection.KindBoolFlag && !c.Value.Bool {
			return fmt.Sprintf("(-ismissing(@%s))", f), nil
		}
		return fmt.Sprintf("ismissing(@%s)", f), nil
	case collection.CmpGeoWithin:
		g := c.Value.Geo
		return fmt.Sprintf("@%s:[%g %g %g m]", f, g.Longitude, g.Latitude, g.MaxDistanceMeters), nil
	default:
		return "", fmt.Errorf("unsupported comparison %q", c.Op)
	}
}

func compileEqual(f string, v collection.Value) (string, error) {
	switch v.Kind {
	case collection.KindText:
		return fmt.Sprintf("@%s:{%s}", f, tagEscaper.Replace(v.Text)), nil
	case collection.KindBool:
		return fmt.Sprintf("@%s:{%s}", f, strconv.FormatBool(v.Bool)), nil
	case collection.KindInt, collection.KindNumber, collection.KindDate:
		n, err := numericOperand(v)
		if err != nil {
			return "", err
		}
		bound := formatNum(n)
		return fmt.Sprintf("@%s:[%s %s]", f, bound, bound), nil
	default:
		return "", fmt.Errorf("equality on unsupported operand kind %q", v.Kind)
	}
}

// numericRange builds a one-sided numeric range. exclusive adds the open
// bracket, lower selects which side the operand bounds.
func numericRange(f string, v collection.Value, exclusive, inf string, lower bool) (string, error) {
	n, err := numericOperand(v)
	if err != nil {
		return "", err
	}
	bound := exclusive + formatNum(n)
	if lower {
		return fmt.Sprintf("@%s:[%s %s]", f, bound, inf), nil
	}
	return fmt.Sprintf("@%s:[%s %s]", f, inf, bound), nil
}

func compileContainsAny(f string, v collection.Value) (string, error) {
	switch v.Kind {
	case collection.KindTextList:
		escaped := make([]string, len(v.TextList))
		for i, t := range v.TextList {
			escaped[i] = tagEscaper.Replace(t)
		}
		return fmt.Sprintf("@%s:{%s}", f, strings.Join(escaped, " | ")), nil
	case collection.KindNumberList:
		parts := make([]string, len(v.NumberList))
		for i, n := range v.NumberList {
			bound := formatNum(n)
			parts[i] = fmt.Sprintf("@%s:[%s %s]", f, bound, bound)
		}
		return "(" + strings.Join(parts, " | ") + ")", nil
	default:
		return "", fmt.Errorf("containsAny on unsupported operand kind %q", v.Kind)
	}
}

func compileContainsAll(f string, v collection.Value) (string, error) {
	switch v.Kind {
	case collection.KindTextList:
		parts := make([]string, len(v.TextList))
		for i, t := range v.TextList {
			parts[i] = fmt.Sprintf("@%s:{%s}", f, tagEscaper.Replace(t))
		}
		return "(" + strings.Join(parts, " ") + ")", nil
	case collection.KindNumberList:
		parts := make([]string, len(v.NumberList))
		for i, n := range v.NumberList {
			bound := formatNum(n)
			parts[i] = fmt.Sprintf("@%s:[%s %s]", f, bound, bound)
		}
		return "(" + strings.Join(parts, " ") + ")", nil
	default:
		return "", fmt.Errorf("containsAll on unsupported operand kind %q", v.Kind)
	}
}

// numericOperand extracts the float value of a numeric-capable operand.
// Dates compare as unix milliseconds.
func numericOperand(v collection.Value) (float64, error) {
	switch v.Kind {
	case collection.KindInt:
		return float64(v.Int), nil
	case collection.KindNumber:
		return v.Number, nil
	case collection.KindDate:
		t, err := time.Parse(time.RFC3339, v.Date)
		if err != nil {
			return 0, fmt.Errorf("unparseable date operand %q: %w", v.Date, err)
		}
		return float64(t.UnixMilli()), nil
	case collection.KindText:
		f, err := strconv.ParseFloat(v.Text, 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric operand %q", v.Text)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("non-numeric operand kind %q", v.Kind)
	}
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// fieldName maps a property path to its indexed hash field. Dots collide
// with FT query syntax, so nested paths flatten with double underscores.
func fieldName(path string) string {
	return strings.ReplaceAll(path, ".", "__")
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)

// escapeWildcard escapes a wildcard pattern body, keeping `*` meaningful.
var wildcardEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
)

func escapeWildcard(pattern string) string {
	return wildcardEscaper.Replace(pattern)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}
