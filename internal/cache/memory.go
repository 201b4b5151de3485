package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/roach88/stead/internal/ir"
)

// DefaultTTL is the expiration used when a backend is built with ttl <= 0.
const DefaultTTL = 10 * time.Minute

// Memory is an in-process cache backend.
type Memory struct {
	items *gocache.Cache
}

// NewMemory creates an in-process cache whose entries expire after ttl.
// Expired entries are purged every 2*ttl.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{items: gocache.New(ttl, 2*ttl)}
}

// Find returns a copy of the cached row for (class, key).
func (m *Memory) Find(ctx context.Context, class string, key ir.IRValue) (ir.IRObject, bool, error) {
	v, ok := m.items.Get(objectKey(class, key))
	if !ok {
		return nil, false, nil
	}
	row, err := decodeRow(v.([]byte))
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// Add stores row for (class, key), replacing any previous entry.
func (m *Memory) Add(ctx context.Context, class string, key ir.IRValue, row ir.IRObject) error {
	data, err := encodeRow(row)
	if err != nil {
		return err
	}
	m.items.SetDefault(objectKey(class, key), data)
	return nil
}

// Invalidate drops the row for (class, key).
func (m *Memory) Invalidate(ctx context.Context, class string, key ir.IRValue) error {
	m.items.Delete(objectKey(class, key))
	return nil
}

// LoadCollection returns the key list cached under (scope, signature).
func (m *Memory) LoadCollection(ctx context.Context, scope, signature string) ([]ir.IRValue, bool, error) {
	v, ok := m.items.Get(collectionKey(scope, signature))
	if !ok {
		return nil, false, nil
	}
	keys, err := decodeKeys(v.([]byte))
	if err != nil {
		return nil, false, err
	}
	return keys, true, nil
}

// StoreCollection caches keys under (scope, signature).
func (m *Memory) StoreCollection(ctx context.Context, scope, signature string, keys []ir.IRValue) error {
	data, err := encodeKeys(keys)
	if err != nil {
		return err
	}
	m.items.SetDefault(collectionKey(scope, signature), data)
	return nil
}

// InvalidateCollections drops every collection cached under scope.
func (m *Memory) InvalidateCollections(ctx context.Context, scope string) error {
	prefix := collectionKey(scope, "")
	for k := range m.items.Items() {
		if strings.HasPrefix(k, prefix) {
			m.items.Delete(k)
		}
	}
	return nil
}

// Len returns the number of live entries, objects and collections together.
func (m *Memory) Len() int {
	return m.items.ItemCount()
}

// Flush drops every entry.
func (m *Memory) Flush() {
	m.items.Flush()
}
