package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/botwatch/models"
)

// entry holds a collected profile with its creation timestamp.
type entry struct {
	profile   *models.ProfileRecord
	createdAt time.Time
}

// Cache is a simple in-memory cache of collected profiles.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	now        func() time.Time
}

// New creates a new Cache with the given maximum number of entries.
// A background goroutine runs every 5 minutes to evict expired entries
// (older than 1 hour).
func New(maxEntries int) *Cache {
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}

	go c.cleanupLoop()
	return c
}

// Key generates a cache key from the handle and the collection options
// that change the result. Handles are case-insensitive.
func Key(handle string, target int, includeReplies, includeRetweets bool) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(handle)))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.Itoa(target)))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatBool(includeReplies)))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatBool(includeRetweets)))
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached profile if it exists and is younger than maxAge.
// maxAge is in milliseconds. If maxAge <= 0, no cache lookup is performed.
func (c *Cache) Get(key string, maxAgeMs int) (*models.ProfileRecord, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	maxAge := time.Duration(maxAgeMs) * time.Millisecond
	if c.now().Sub(e.createdAt) > maxAge {
		return nil, false
	}

	return e.profile, true
}

// Set stores a profile. If the cache is at capacity, a random entry is
// evicted to make room.
func (c *Cache) Set(key string, profile *models.ProfileRecord) {
	if c.maxEntries <= 0 || profile == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		profile:   profile,
		createdAt: c.now(),
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// cleanupLoop evicts entries older than 1 hour every 5 minutes.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		c.evictBefore(c.now().Add(-1 * time.Hour))
	}
}

func (c *Cache) evictBefore(cutoff time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
