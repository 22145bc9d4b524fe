package cluster

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pickupsports/mapcluster/internal/geo"
)

// ResultCache is a concurrent-safe LRU cache with TTL expiration for
// memoized clustering output. The clustering functions never consult it;
// callers key it with CacheKey so any change to the region or the point
// set misses.
type ResultCache[V any] struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry[V]
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	ttl        time.Duration
	hits       atomic.Int64
	misses     atomic.Int64
}

type cacheEntry[V any] struct {
	value     V
	createdAt time.Time
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewResultCache creates a cache holding at most maxEntries values for ttl.
func NewResultCache[V any](maxEntries int, ttl time.Duration) *ResultCache[V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &ResultCache[V]{
		entries:    make(map[string]*cacheEntry[V]),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// CacheKey hashes the profile name, the region and every point's id and
// coordinates, in order.
func CacheKey[T Locatable](profile string, region geo.Region, points []T) string {
	h := sha256.New()
	var buf [8]byte
	writeFloat := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}

	h.Write([]byte(profile))
	h.Write([]byte{0})
	writeFloat(region.Latitude)
	writeFloat(region.Longitude)
	writeFloat(region.LatitudeDelta)
	writeFloat(region.LongitudeDelta)
	for _, p := range points {
		h.Write([]byte(p.PointID()))
		h.Write([]byte{0})
		c := p.Coordinates()
		writeFloat(c.Latitude)
		writeFloat(c.Longitude)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached value for key. ok is false on miss or expiration.
func (c *ResultCache[V]) Get(key string) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, found := c.entries[key]
	if !found {
		c.misses.Add(1)
		return value, false
	}

	if time.Since(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.misses.Add(1)
		return value, false
	}

	c.removeFromOrder(key)
	c.order = append(c.order, key)
	c.hits.Add(1)
	return entry.value, true
}

// Put stores a value, evicting the least recently used entry at capacity.
func (c *ResultCache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = &cacheEntry[V]{value: value, createdAt: time.Now()}
		c.removeFromOrder(key)
		c.order = append(c.order, key)
		return
	}

	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = &cacheEntry[V]{value: value, createdAt: time.Now()}
	c.order = append(c.order, key)
}

// PurgeExpired drops every expired entry and returns how many were removed.
func (c *ResultCache[V]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var remaining []string
	removed := 0
	for _, key := range c.order {
		if time.Since(c.entries[key].createdAt) > c.ttl {
			delete(c.entries, key)
			removed++
			continue
		}
		remaining = append(remaining, key)
	}
	c.order = remaining
	return removed
}

// Stats returns cache performance statistics.
func (c *ResultCache[V]) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	maxEntries := c.maxEntries
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:    entries,
		MaxEntries: maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

func (c *ResultCache[V]) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
