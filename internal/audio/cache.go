package audio

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"
)

// CacheEntry maps a cue fingerprint to an already-stored asset.
type CacheEntry struct {
	Key          string    `json:"key"`
	AssetPath    string    `json:"asset_path"`
	FileSize     int64     `json:"file_size"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	Hits         int       `json:"hits"`
}

// CacheStats holds statistics about cache performance
type CacheStats struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	HitRate      float64 `json:"hit_rate"`
	TotalEntries int     `json:"total_entries"`
	TotalSize    int64   `json:"total_size"`
}

// Cache deduplicates synthesis work: cues with identical provider parameters
// resolve to the same stored asset. Transition stingers and recurring ambient
// beds hit it constantly.
type Cache struct {
	entries    map[string]*CacheEntry
	maxEntries int
	ttl        time.Duration
	mu         sync.Mutex
	stats      CacheStats
}

func NewCache(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Cache{
		entries:    make(map[string]*CacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Get returns the asset path for a cue fingerprint, if a fresh entry exists.
func (c *Cache) Get(rawKey string) (string, bool) {
	key := hashKey(rawKey)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		c.updateHitRate()
		return "", false
	}

	if c.ttl > 0 && time.Since(entry.CreatedAt) > c.ttl {
		delete(c.entries, key)
		c.stats.TotalEntries--
		c.stats.TotalSize -= entry.FileSize
		c.stats.Misses++
		c.updateHitRate()
		return "", false
	}

	entry.LastAccessed = time.Now()
	entry.Hits++
	c.stats.Hits++
	c.updateHitRate()
	return entry.AssetPath, true
}

// Put records a freshly stored asset under the cue fingerprint.
func (c *Cache) Put(rawKey, assetPath string, size int64) {
	key := hashKey(rawKey)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	if old, ok := c.entries[key]; ok {
		c.stats.TotalSize -= old.FileSize
		c.stats.TotalEntries--
	}
	c.entries[key] = &CacheEntry{
		Key:          key,
		AssetPath:    assetPath,
		FileSize:     size,
		CreatedAt:    now,
		LastAccessed: now,
	}
	c.stats.TotalEntries++
	c.stats.TotalSize += size
}

// Stats returns a snapshot of cache performance counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// evictOldest drops the least recently accessed entry. Caller holds the lock.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.LastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.LastAccessed
		}
	}
	if oldestKey != "" {
		c.stats.TotalSize -= c.entries[oldestKey].FileSize
		c.stats.TotalEntries--
		delete(c.entries, oldestKey)
	}
}

func (c *Cache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}

func hashKey(raw string) string {
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
