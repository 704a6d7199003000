package graph

import (
	"testing"

	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
)

func edges() []model.LocationEdge {
	return []model.LocationEdge{
		{ID: 1, FromID: 10, ToID: 20, DistanceKm: 300, TimeHours: 3.5},
		{ID: 2, FromID: 20, ToID: 10, DistanceKm: 310, TimeHours: 3.6},
		{ID: 3, FromID: 10, ToID: 30, DistanceKm: 150, TimeHours: 2},
	}
}

func TestLookupDirectional(t *testing.T) {
	ix := NewIndex(edges(), 0)
	if ix.Len() != 3 {
		t.Fatalf("len: %d", ix.Len())
	}
	e, ok := ix.Lookup(10, 20)
	if !ok || e.DistanceKm != 300 {
		t.Fatalf("lookup 10->20: ok=%v e=%+v", ok, e)
	}
	// The reverse direction is a distinct edge.
	e, ok = ix.Lookup(20, 10)
	if !ok || e.DistanceKm != 310 {
		t.Fatalf("lookup 20->10: ok=%v e=%+v", ok, e)
	}
	// No symmetric closure.
	if _, ok := ix.Lookup(30, 10); ok {
		t.Fatal("symmetric closure must not be assumed")
	}
	if _, ok := ix.Lookup(99, 100); ok {
		t.Fatal("unknown pair must miss")
	}
}

func TestCacheDoesNotChangeSemantics(t *testing.T) {
	cached := NewIndex(edges(), 2)
	plain := NewIndex(edges(), 0)

	pairs := [][2]int64{{10, 20}, {20, 10}, {10, 30}, {30, 10}, {10, 20}, {10, 30}}
	for _, p := range pairs {
		e1, ok1 := cached.Lookup(p[0], p[1])
		e2, ok2 := plain.Lookup(p[0], p[1])
		if ok1 != ok2 || e1 != e2 {
			t.Fatalf("cache changed semantics for %v: (%v,%v) vs (%v,%v)", p, e1, ok1, e2, ok2)
		}
	}
	hits, misses := cached.CacheStats()
	if hits == 0 || misses == 0 {
		t.Fatalf("expected both hits and misses, got %d/%d", hits, misses)
	}
}
