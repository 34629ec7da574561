// Package cache implements the typed TTL cache fronting expensive reads
// from the messaging session. Values are stored per namespace with the
// time they were written; freshness is evaluated by the caller through
// IsFresh so a stale value can still be served deliberately.
package cache

import (
	"sync"
	"time"
)

// Namespace is an enumerated cache category with its own keyspace.
type Namespace string

const (
	Chats    Namespace = "chats"
	Messages Namespace = "messages"
	Contacts Namespace = "contacts"
	Images   Namespace = "images"
)

// Namespaces lists every known namespace.
var Namespaces = []Namespace{Chats, Messages, Contacts, Images}

// Known reports whether ns is a recognized namespace.
func Known(ns Namespace) bool {
	switch ns {
	case Chats, Messages, Contacts, Images:
		return true
	}
	return false
}

type entry struct {
	value    any
	storedAt time.Time
}

// Cache is the process-wide TTL store. A single lock guards all namespaces;
// operations are short and never call out while holding it, so a messages
// miss can never block a chats read for long.
type Cache struct {
	mu      sync.RWMutex
	entries map[Namespace]map[string]entry
	now     func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: newNamespaces(),
		now:     time.Now,
	}
}

func newNamespaces() map[Namespace]map[string]entry {
	m := make(map[Namespace]map[string]entry, len(Namespaces))
	for _, ns := range Namespaces {
		m[ns] = make(map[string]entry)
	}
	return m
}

// Set stores value under (ns, key) and stamps it with the current time.
func (c *Cache) Set(ns Namespace, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ns][key] = entry{value: value, storedAt: c.now()}
}

// Get returns the stored value, or false when absent. Get never evaluates
// freshness; pair it with IsFresh.
func (c *Cache) Get(ns Namespace, key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[ns][key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// IsFresh reports whether (ns, key) was written less than maxAge ago.
// Absent entries are never fresh.
func (c *Cache) IsFresh(ns Namespace, key string, maxAge time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[ns][key]
	if !ok {
		return false
	}
	return c.now().Sub(e.storedAt) < maxAge
}

// Update applies fn to the value stored under (ns, key) while holding the
// write lock, preserving the original storedAt stamp. The entry's freshness
// window is not extended: mutating cached history must not make it fresher.
// Returns false and does nothing when the entry is absent.
func (c *Cache) Update(ns Namespace, key string, fn func(value any) any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[ns][key]
	if !ok {
		return false
	}
	e.value = fn(e.value)
	c.entries[ns][key] = e
	return true
}

// Clear removes every entry in ns, including the freshness bookkeeping.
func (c *Cache) Clear(ns Namespace) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ns] = make(map[string]entry)
}

// ClearAll empties every namespace.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = newNamespaces()
}

// Stats returns the entry count per namespace.
func (c *Cache) Stats() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := make(map[string]int, len(Namespaces))
	for _, ns := range Namespaces {
		stats[string(ns)] = len(c.entries[ns])
	}
	return stats
}

// Lookup is a typed Get: it returns the zero value and false when the entry
// is absent or holds a different type.
func Lookup[T any](c *Cache, ns Namespace, key string) (T, bool) {
	var zero T
	v, ok := c.Get(ns, key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
