package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/stead/internal/ir"
)

type identityKey struct {
	class string
	key   string
}

// IdentityMap guarantees at most one live Object per (class, key) in a
// transaction.
//
// An object is registered under its own class and under every ancestor
// class, so a lookup through a base class finds a subclass instance with the
// same key. Lookups never load.
type IdentityMap struct {
	schema  *ir.Schema
	entries map[identityKey]*Object
	byClass map[string][]*Object
	all     []*Object
}

// NewIdentityMap creates an empty identity map.
func NewIdentityMap(schema *ir.Schema) *IdentityMap {
	return &IdentityMap{
		schema:  schema,
		entries: map[identityKey]*Object{},
		byClass: map[string][]*Object{},
	}
}

func (m *IdentityMap) aliases(class string) []string {
	return append([]string{class}, m.schema.Ancestors(class)...)
}

// Register inserts obj under its class and every ancestor alias.
//
// Returns *DuplicateKeyError if any alias already holds an entry for the
// key. Nothing is registered in that case and the existing instance stays.
func (m *IdentityMap) Register(obj *Object) error {
	key := obj.Key()
	if ir.IsNull(key) {
		return fmt.Errorf("register %s: null primary key", obj.class.Name)
	}
	ks := ir.KeyString(key)
	aliases := m.aliases(obj.class.Name)

	for _, alias := range aliases {
		if _, exists := m.entries[identityKey{alias, ks}]; exists {
			return &DuplicateKeyError{Class: alias, Key: key}
		}
	}
	for _, alias := range aliases {
		m.entries[identityKey{alias, ks}] = obj
		m.byClass[alias] = append(m.byClass[alias], obj)
	}
	m.all = append(m.all, obj)
	return nil
}

// Unregister removes obj from every alias. No-op when obj is not registered.
func (m *IdentityMap) Unregister(obj *Object) {
	ks := ir.KeyString(obj.Key())
	if m.entries[identityKey{obj.class.Name, ks}] != obj {
		return
	}
	same := func(o *Object) bool { return o == obj }
	for _, alias := range m.aliases(obj.class.Name) {
		delete(m.entries, identityKey{alias, ks})
		m.byClass[alias] = slices.DeleteFunc(m.byClass[alias], same)
	}
	m.all = slices.DeleteFunc(m.all, same)
}

// FindByKey returns the object registered for (class, key), or nil.
func (m *IdentityMap) FindByKey(class string, key ir.IRValue) *Object {
	if ir.IsNull(key) {
		return nil
	}
	return m.entries[identityKey{class, ir.KeyString(key)}]
}

// Len returns the number of registered objects.
func (m *IdentityMap) Len() int {
	return len(m.all)
}

// ObjectsOf returns the objects registered under class, including subclass
// instances, in registration order.
func (m *IdentityMap) ObjectsOf(class string) []*Object {
	return slices.Clone(m.byClass[class])
}

// Objects returns every registered object in registration order.
func (m *IdentityMap) Objects() []*Object {
	return slices.Clone(m.all)
}

func (m *IdentityMap) clear() {
	m.entries = map[identityKey]*Object{}
	m.byClass = map[string][]*Object{}
	m.all = nil
}
