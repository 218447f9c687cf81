// Package kwcache bounds keyword metric lookups so repeated dashboard
// loads do not burn Ahrefs quota. Entries live per domain with a fixed
// TTL and a hard cap on resident domains.
package kwcache

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Blackwoodproductions/webstack-services/internal/metrics"
)

// Clock supplies the current time, injectable for tests.
type Clock interface {
	Now() time.Time
}

// Config bounds the cache.
type Config struct {
	TTL        time.Duration
	MaxDomains int
}

type entry struct {
	payload  json.RawMessage
	cachedAt time.Time
}

// Cache is a mutex-guarded domain keyed store. When a Put would exceed
// MaxDomains the entry with the oldest cached-at is dropped first.
type Cache struct {
	mu      sync.Mutex
	cfg     Config
	clock   Clock
	logger  *zap.Logger
	entries map[string]entry
}

// New builds an empty cache.
func New(cfg Config, clock Clock, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		cfg:     cfg,
		clock:   clock,
		logger:  logger.Named("kwcache"),
		entries: make(map[string]entry),
	}
}

// NormalizeDomain canonicalizes a lookup key. Keys are lowercased and
// stripped of scheme and path so "HTTPS://Example.com/x" and
// "example.com" share an entry.
func NormalizeDomain(domain string) string {
	d := strings.TrimSpace(strings.ToLower(domain))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return d
}

// Get returns the cached payload and its cache time when present and
// fresh. Stale entries are removed on the way out.
func (c *Cache) Get(domain string) (json.RawMessage, time.Time, bool) {
	key := NormalizeDomain(domain)
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		metrics.ObserveKeywordCache("miss")
		return nil, time.Time{}, false
	}
	if c.clock.Now().Sub(e.cachedAt) >= c.cfg.TTL {
		delete(c.entries, key)
		metrics.ObserveKeywordCache("expire")
		metrics.ObserveKeywordCache("miss")
		metrics.SetKeywordCacheDomains(len(c.entries))
		return nil, time.Time{}, false
	}
	metrics.ObserveKeywordCache("hit")
	return e.payload, e.cachedAt, true
}

// Put stores a payload for the domain, evicting as needed.
func (c *Cache) Put(domain string, payload json.RawMessage) {
	key := NormalizeDomain(domain)
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.sweepLocked(now)

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.MaxDomains {
		c.evictOldestLocked()
	}
	c.entries[key] = entry{payload: payload, cachedAt: now}
	metrics.SetKeywordCacheDomains(len(c.entries))
}

// Purge empties the cache and reports how many entries were dropped.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]entry)
	metrics.ObserveKeywordCache("purge")
	metrics.SetKeywordCacheDomains(0)
	c.logger.Info("keyword cache purged", zap.Int("dropped", n))
	return n
}

// Len reports the resident domain count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Domains lists resident keys, oldest first. Used by the ops endpoint.
func (c *Cache) Domains() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && c.entries[keys[j]].cachedAt.Before(c.entries[keys[j-1]].cachedAt); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

func (c *Cache) sweepLocked(now time.Time) {
	for k, e := range c.entries {
		if now.Sub(e.cachedAt) >= c.cfg.TTL {
			delete(c.entries, k)
			metrics.ObserveKeywordCache("expire")
		}
	}
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.cachedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.cachedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		metrics.ObserveKeywordCache("evict")
		c.logger.Debug("evicted oldest keyword entry", zap.String("domain", oldestKey))
	}
}
