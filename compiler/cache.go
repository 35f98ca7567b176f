package compiler

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/gpureshape/gpuvalidate/feature"
)

// CacheKey identifies one compiled variant of a shader: the active
// feature set's stable version identifier plus the source bytecode's
// content hash (spec §4.7 "Keyed by featureVersionUID |
// sourceByteCode-hash").
type CacheKey struct {
	FeatureVersionUID uint64
	SourceHash        uint64
}

// FeatureVersionUID derives a stable identifier for the ordered set of
// features a job actually ran (the dependency closure Registry.Active
// resolved, not just the requested mask), so two jobs that end up
// running the identical pass sequence hit the same cache entry even if
// requested through different masks.
func FeatureVersionUID(infos []feature.Info) uint64 {
	h := xxhash.New()
	var buf [4]byte
	for _, info := range infos {
		_, _ = h.Write([]byte(info.Name))
		putUint32(buf[:], uint32(info.Bit))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

func putUint32(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

// SourceHash hashes a shader's raw bytecode for use in a CacheKey.
func SourceHash(source []byte) uint64 { return xxhash.Sum64(source) }

// Cache stores compiled bytecode for previously seen (feature set,
// source) pairs, letting a job skip the parse/instrument/emit pipeline
// entirely on a hit (spec §4.7 "Cache").
type Cache struct {
	mu      sync.RWMutex
	entries map[CacheKey][]byte
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[CacheKey][]byte)}
}

// Get returns the cached bytecode for key, if present.
func (c *Cache) Get(key CacheKey) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.entries[key]
	return b, ok
}

// Put stores bytecode under key.
func (c *Cache) Put(key CacheKey, bytecode []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = bytecode
}

// Len reports the number of distinct cache entries, exposed for
// diagnostics/tests.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
