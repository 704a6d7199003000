// Package graph indexes the directed location-relation edges for O(1)
// lookup. A bounded LRU cache can wrap lookups as a performance aid; it
// never changes semantics, a miss just falls through to the index.
package graph

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
)

type edgeKey struct{ from, to int64 }

type Index struct {
	edges map[edgeKey]model.LocationEdge
	cache *lru.Cache[edgeKey, model.LocationEdge]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewIndex builds the edge index. cacheSize <= 0 disables the cache.
// Edges are ingested as-is; no symmetric closure is assumed.
func NewIndex(edges []model.LocationEdge, cacheSize int) *Index {
	ix := &Index{edges: make(map[edgeKey]model.LocationEdge, len(edges))}
	for _, e := range edges {
		ix.edges[edgeKey{e.FromID, e.ToID}] = e
	}
	if cacheSize > 0 {
		c, err := lru.New[edgeKey, model.LocationEdge](cacheSize)
		if err == nil {
			ix.cache = c
		}
	}
	return ix
}

// Lookup returns the directed edge from -> to. ok is false when no direct
// relocation path exists.
func (ix *Index) Lookup(from, to int64) (model.LocationEdge, bool) {
	k := edgeKey{from, to}
	if ix.cache != nil {
		if e, ok := ix.cache.Get(k); ok {
			ix.hits.Add(1)
			return e, true
		}
	}
	e, ok := ix.edges[k]
	if ok && ix.cache != nil {
		ix.misses.Add(1)
		ix.cache.Add(k, e)
	}
	return e, ok
}

// Len reports the number of indexed edges.
func (ix *Index) Len() int { return len(ix.edges) }

// CacheStats returns cache hits, and cache misses filled from the index,
// since construction. Lookups of pairs with no edge are not counted.
func (ix *Index) CacheStats() (hits, misses int64) {
	return ix.hits.Load(), ix.misses.Load()
}
