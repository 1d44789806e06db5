package redis

import (
	"strconv"
	"testing"

	"github.com/colex-db/colex/internal/collection"
)

func mustCompile(t *testing.T, p *collection.Predicate) string {
	t.Helper()
	q, err := compilePredicate(p)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return q
}

func TestCompile_EqualTagEscaping(t *testing.T) {
	p, _ := collection.Prop("status").Equal(collection.TextValue("in-review (draft)"))

	got := mustCompile(t, p)
	want := `@status:{in\-review\ \(draft\)}`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCompile_EqualKinds(t *testing.T) {
	cases := []struct {
		name string
		v    collection.Value
		want string
	}{
		{"bool", collection.BoolValue(true), "@flag:{true}"},
		{"int", collection.IntValue(42), "@flag:[42 42]"},
		{"number", collection.NumberValue(3.5), "@flag:[3.5 3.5]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := collection.Prop("flag").Equal(tc.v)
			if err != nil {
				t.Fatalf("build failed: %v", err)
			}
			if got := mustCompile(t, p); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCompile_NumericRanges(t *testing.T) {
	gt, _ := collection.Prop("views").GreaterThan(collection.IntValue(100))
	if got := mustCompile(t, gt); got != "@views:[(100 +inf]" {
		t.Errorf("GreaterThan: got %q", got)
	}

	gte, _ := collection.Prop("views").GreaterOrEqual(collection.IntValue(100))
	if got := mustCompile(t, gte); got != "@views:[100 +inf]" {
		t.Errorf("GreaterOrEqual: got %q", got)
	}

	lt, _ := collection.Prop("views").LessThan(collection.NumberValue(9.5))
	if got := mustCompile(t, lt); got != "@views:[-inf (9.5]" {
		t.Errorf("LessThan: got %q", got)
	}

	lte, _ := collection.Prop("views").LessOrEqual(collection.NumberValue(9.5))
	if got := mustCompile(t, lte); got != "@views:[-inf 9.5]" {
		t.Errorf("LessOrEqual: got %q", got)
	}
}

func TestCompile_DateBecomesUnixMillis(t *testing.T) {
	p, _ := collection.Prop("publishedAt").GreaterOrEqual(collection.DateValue("2024-01-15T00:00:00Z"))

	ms := strconv.FormatFloat(1705276800000, 'g', -1, 64)
	want := "@publishedAt:[" + ms + " +inf]"
	if got := mustCompile(t, p); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCompile_LikeWildcard(t *testing.T) {
	p, _ := collection.Prop("title").Like("dra*ft's")

	want := `@title:{w'dra*ft\'s'}`
	if got := mustCompile(t, p); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCompile_ContainsAny(t *testing.T) {
	p, _ := collection.Prop("tags").ContainsAny(collection.TextListValue([]string{"go", "redis"}))
	if got := mustCompile(t, p); got != "@tags:{go | redis}" {
		t.Errorf("text list: got %q", got)
	}

	n, _ := collection.Prop("scores").ContainsAny(collection.NumberListValue([]float64{1, 2}))
	if got := mustCompile(t, n); got != "(@scores:[1 1] | @scores:[2 2])" {
		t.Errorf("number list: got %q", got)
	}
}

func TestCompile_ContainsAll(t *testing.T) {
	p, _ := collection.Prop("tags").ContainsAll(collection.TextListValue([]string{"go", "redis"}))
	if got := mustCompile(t, p); got != "(@tags:{go} @tags:{redis})" {
		t.Errorf("got %q", got)
	}
}

func TestCompile_Negation(t *testing.T) {
	ne, _ := collection.Prop("status").NotEqual(collection.TextValue("draft"))
	if got := mustCompile(t, ne); got != "(-@status:{draft})" {
		t.Errorf("NotEqual: got %q", got)
	}

	eq, _ := collection.Prop("status").Equal(collection.TextValue("draft"))
	if got := mustCompile(t, collection.Not(eq)); got != "(-@status:{draft})" {
		t.Errorf("Not: got %q", got)
	}
}

func TestCompile_IsNull(t *testing.T) {
	null, _ := collection.Prop("summary").IsNull(true)
	if got := mustCompile(t, null); got != "ismissing(@summary)" {
		t.Errorf("IsNull(true): got %q", got)
	}

	notNull, _ := collection.Prop("summary").IsNull(false)
	if got := mustCompile(t, notNull); got != "(-ismissing(@summary))" {
		t.Errorf("IsNull(false): got %q", got)
	}
}

func TestCompile_Geo(t *testing.T) {
	p, _ := collection.Prop("location").WithinGeoRange(52.52, 13.405, 5000)

	// GEO fields take lon before lat.
	want := "@location:[13.405 52.52 5000 m]"
	if got := mustCompile(t, p); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCompile_Groups(t *testing.T) {
	a, _ := collection.Prop("status").Equal(collection.TextValue("published"))
	b, _ := collection.Prop("views").GreaterThan(collection.IntValue(10))

	and := collection.And(a, b)
	if got := mustCompile(t, and); got != "(@status:{published} @views:[(10 +inf])" {
		t.Errorf("And: got %q", got)
	}

	or := collection.Or(a, b)
	if got := mustCompile(t, or); got != "(@status:{published} | @views:[(10 +inf])" {
		t.Errorf("Or: got %q", got)
	}
}

func TestCompile_NestedPathFlattens(t *testing.T) {
	p, _ := collection.Prop("author.name").Equal(collection.TextValue("Ada"))
	if got := mustCompile(t, p); got != "@author__name:{Ada}" {
		t.Errorf("got %q", got)
	}
}

func TestCompile_NilIsEmpty(t *testing.T) {
	if got := mustCompile(t, nil); got != "" {
		t.Errorf("nil predicate must compile to the empty string, got %q", got)
	}
}
