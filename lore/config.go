package lore

import (
	"errors"
	"strconv"
	"sync"

	"lorekeep/storage"
)

// Config keys read by the engine. Values live in the config record set and
// are tuned by an external admin collaborator.
const (
	KeyDuplicateThreshold  = "duplicate_threshold"
	KeyConfidenceThreshold = "confidence_threshold"
	KeyFlagThreshold       = "flag_threshold"
	KeyRecallK             = "recall_k"
)

// Defaults used when a key is absent from storage.
const (
	DefaultDuplicateThreshold  = 0.95
	DefaultConfidenceThreshold = 0.80
	DefaultFlagThreshold       = 3
	DefaultRecallK             = 5
)

type cachedValue struct {
	value string
	found bool
}

// ConfigCache is a read-through cache over the config record set. Repeated
// reads of a key return the cached value until the key is explicitly
// invalidated; the core never polls storage for changes. Absence is cached
// too, so a missing key costs one storage round trip, not one per read.
type ConfigCache struct {
	mu     sync.RWMutex
	values map[string]cachedValue
	lookup func(key string) (string, error)
}

func newConfigCache(lookup func(key string) (string, error)) *ConfigCache {
	return &ConfigCache{
		values: make(map[string]cachedValue),
		lookup: lookup,
	}
}

// Get returns the raw value for key and whether it is set.
func (c *ConfigCache) Get(key string) (string, bool, error) {
	c.mu.RLock()
	cv, ok := c.values[key]
	c.mu.RUnlock()
	if ok {
		return cv.value, cv.found, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cv, ok := c.values[key]; ok {
		return cv.value, cv.found, nil
	}

	value, err := c.lookup(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.values[key] = cachedValue{found: false}
			return "", false, nil
		}
		return "", false, err
	}

	c.values[key] = cachedValue{value: value, found: true}
	return value, true, nil
}

// Float reads key as a float64, falling back to def when the key is unset
// or unparsable.
func (c *ConfigCache) Float(key string, def float64) (float64, error) {
	raw, found, err := c.Get(key)
	if err != nil {
		return 0, err
	}
	if !found {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def, nil
	}
	return f, nil
}

// Int reads key as an int64, falling back to def when the key is unset or
// unparsable.
func (c *ConfigCache) Int(key string, def int64) (int64, error) {
	raw, found, err := c.Get(key)
	if err != nil {
		return 0, err
	}
	if !found {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def, nil
	}
	return n, nil
}

// Invalidate drops one key from the cache. The collaborator that writes a
// config value is responsible for calling it.
func (c *ConfigCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.values, key)
	c.mu.Unlock()
}

// InvalidateAll drops the whole cache.
func (c *ConfigCache) InvalidateAll() {
	c.mu.Lock()
	c.values = make(map[string]cachedValue)
	c.mu.Unlock()
}
