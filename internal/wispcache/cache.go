// Package wispcache is a process-local, TTL'd JSON cache used for the
// ModelRouter's health-probe results — adapted from the teacher's
// internal/wisp transient config store, which served the same
// "don't hit the network every call within one process lifetime" need
// for a different kind of value.
package wispcache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// entry is one cached value with its expiry.
type entry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Cache is a small in-memory map mirrored to a JSON file, so the
// fast-path bit for a given key also survives across pulses within the
// same $SUPERVISOR_DIR without re-probing immediately after a fresh
// process start.
type Cache struct {
	mu      sync.Mutex
	path    string
	entries map[string]entry
}

// Open loads (or initializes) the cache file at path.
func Open(path string) (*Cache, error) {
	c := &Cache{path: path, entries: map[string]entry{}}
	data, err := os.ReadFile(path)
	if err == nil {
		_ = json.Unmarshal(data, &c.entries) // corrupt cache is not fatal; start fresh
	}
	return c, nil
}

// Get returns the cached value for key and true if present and unexpired.
func (c *Cache) Get(key string, out interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.ExpiresAt) {
		return false
	}
	return json.Unmarshal(e.Value, out) == nil
}

// Set stores value for key with the given TTL and persists the cache.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.entries[key] = entry{Value: data, ExpiresAt: time.Now().Add(ttl)}
	snapshot := c.entries
	c.mu.Unlock()

	return c.persist(snapshot)
}

// ResetFastPath clears every entry and persists the empty cache.
// PulseDriver.Run does not call it, so cached health results expire
// only by their TTL.
func (c *Cache) ResetFastPath() error {
	c.mu.Lock()
	c.entries = map[string]entry{}
	c.mu.Unlock()
	return c.persist(map[string]entry{})
}

func (c *Cache) persist(entries map[string]entry) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
