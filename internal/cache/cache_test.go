package cache

import (
	"testing"
	"time"
)

type countingObserver struct{ hits, misses int }

func (o *countingObserver) CacheHit()  { o.hits++ }
func (o *countingObserver) CacheMiss() { o.misses++ }

func TestCacheExpiresEntries(t *testing.T) {
	obs := &countingObserver{}
	c := New[int](8, 20*time.Millisecond, obs)

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a)=%d,%v want 1,true", v, ok)
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("entry survived its ttl")
	}
	if obs.hits != 1 || obs.misses != 1 {
		t.Fatalf("hits=%d misses=%d want 1/1", obs.hits, obs.misses)
	}
}

func TestCacheDelete(t *testing.T) {
	c := New[string](0, time.Minute, nil)
	c.Set("k", "v")
	c.Set("other", "w")
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatalf("deleted key still present")
	}
	if c.Len() != 1 {
		t.Fatalf("len=%d want 1", c.Len())
	}
}

func TestQueryKeyDistinguishesParameters(t *testing.T) {
	base := QueryKey{ResourceID: "r1", Mode: "sql", MinDemand: 2000, Limit: 1500, Offset: 0, Descending: true}

	same := base
	same.Mode = " SQL "
	if base.String() != same.String() {
		t.Fatalf("mode case/space should not change the key")
	}

	variants := []QueryKey{base, base, base, base, base, base}
	variants[0].ResourceID = "r2"
	variants[1].MinDemand = 2000.5
	variants[2].Limit = 500
	variants[3].Offset = 1500
	variants[4].Descending = false
	variants[5].Scored = true
	for i, v := range variants {
		if v.String() == base.String() {
			t.Fatalf("variant %d produced the base key", i)
		}
	}
}

func TestSchemaKeyDiffersFromQueryKey(t *testing.T) {
	if SchemaKey("r1") == (QueryKey{ResourceID: "r1"}).String() {
		t.Fatalf("schema and query keys collide")
	}
}
