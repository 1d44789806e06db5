package countcache

import (
	"testing"
	"time"

	"github.com/colex-db/colex/internal/collection"
)

func TestGet_FreshEntry(t *testing.T) {
	c := New(time.Minute, nil)
	c.Set("articles", 1500)

	count, ok := c.Get("articles")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if count != 1500 {
		t.Errorf("expected 1500, got %d", count)
	}
}

func TestGet_ExpiredEntry(t *testing.T) {
	now := time.Now()
	c := New(time.Minute, nil).WithClock(func() time.Time { return now })
	c.Set("articles", 1500)

	now = now.Add(61 * time.Second)
	if _, ok := c.Get("articles"); ok {
		t.Fatal("expected miss after TTL expiry")
	}
}

func TestGetStale_ServesExpiredEntry(t *testing.T) {
	now := time.Now()
	c := New(time.Minute, nil).WithClock(func() time.Time { return now })
	c.Set("articles", 1500)

	now = now.Add(time.Hour)
	count, ok := c.GetStale("articles")
	if !ok {
		t.Fatal("expected stale read to succeed")
	}
	if count != 1500 {
		t.Errorf("expected 1500, got %d", count)
	}
}

func TestKey_FilteredVariants(t *testing.T) {
	if got := Key("articles", nil); got != "articles" {
		t.Errorf("unfiltered key should be the collection name, got %q", got)
	}

	p1, _ := collection.Prop("status").Equal(collection.TextValue("published"))
	p2, _ := collection.Prop("status").Equal(collection.TextValue("draft"))

	k1 := Key("articles", p1)
	k2 := Key("articles", p2)
	if k1 == k2 {
		t.Error("different filters must produce different keys")
	}
	if k1 != Key("articles", p1) {
		t.Error("identical filters must produce identical keys")
	}
}

func TestInvalidate_DropsCollectionEntries(t *testing.T) {
	c := New(time.Minute, nil)
	p, _ := collection.Prop("status").Equal(collection.TextValue("published"))

	c.Set(Key("articles", nil), 100)
	c.Set(Key("articles", p), 40)
	c.Set(Key("authors", nil), 7)

	c.Invalidate("articles")

	if _, ok := c.Get(Key("articles", nil)); ok {
		t.Error("unfiltered entry should be invalidated")
	}
	if _, ok := c.Get(Key("articles", p)); ok {
		t.Error("filtered entry should be invalidated")
	}
	if _, ok := c.Get(Key("authors", nil)); !ok {
		t.Error("other collections must survive invalidation")
	}
}

func TestInvalidateAll(t *testing.T) {
	c := New(time.Minute, nil)
	c.Set("a", 1)
	c.Set("b", 2)

	c.InvalidateAll()

	if _, ok := c.Get("a"); ok {
		t.Error("expected empty cache after InvalidateAll")
	}
}
