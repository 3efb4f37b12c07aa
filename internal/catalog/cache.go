package catalog

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"swipe-match-backend/internal/models"
)

const (
	DefaultCacheTTL        = 10 * time.Minute
	DefaultCacheMaxEntries = 256
)

type cacheEntry struct {
	candidates []models.Candidate
	storedAt   time.Time
}

// Cache holds provider search results keyed by the serialized filter set.
// Entries expire after the TTL and the cache never grows past maxEntries.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]cacheEntry
	now        func() time.Time
}

// NewCache creates a cache with the given TTL and capacity. Non-positive
// values fall back to the defaults.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]cacheEntry),
		now:        time.Now,
	}
}

// Get returns a copy of the cached candidates for key if present and fresh
func (c *Cache) Get(key string) ([]models.Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return append([]models.Candidate(nil), e.candidates...), true
}

// Put stores candidates under key, evicting expired and then the oldest entries when full
func (c *Cache) Put(key string, candidates []models.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = cacheEntry{
		candidates: append([]models.Candidate(nil), candidates...),
		storedAt:   now,
	}
}

// Len returns the number of stored entries, including expired ones not yet evicted
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictLocked(now time.Time) {
	oldestKey := ""
	var oldest time.Time
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.storedAt.Before(oldest) {
			oldestKey, oldest = k, e.storedAt
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// CacheKey serializes a filter set so that equivalent filters share a key
func CacheKey(f models.Filters) string {
	cuisines := make([]string, len(f.Cuisines))
	for i, cuisine := range f.Cuisines {
		cuisines[i] = strings.ToLower(strings.TrimSpace(cuisine))
	}
	sort.Strings(cuisines)

	prices := append([]int(nil), f.PriceRange...)
	sort.Ints(prices)

	fulfillment := f.FulfillmentType
	if fulfillment == "" {
		fulfillment = models.FulfillmentAny
	}

	key := struct {
		Cuisines    []string         `json:"c"`
		Prices      []int            `json:"p"`
		Fulfillment string           `json:"f"`
		Location    *models.Location `json:"l,omitempty"`
	}{cuisines, prices, fulfillment, nil}
	if f.Location != nil {
		key.Location = &models.Location{Latitude: f.Location.Latitude, Longitude: f.Location.Longitude}
	}

	data, _ := json.Marshal(key)
	return string(data)
}
