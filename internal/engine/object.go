package engine

import (
	"context"
	"fmt"

	"github.com/roach88/stead/internal/ir"
)

// ObjectState is the persistence state of an Object within its transaction.
//
// Loaded and updated objects move Clean → Dirty → Written → Clean.
// Created objects move New → Insert → Written → Clean.
type ObjectState int

const (
	// StateNew is a raw object not yet attached to the identity map.
	StateNew ObjectState = iota
	// StateClean matches its stored row.
	StateClean
	// StateDirty has field changes waiting to be written with UPDATE.
	StateDirty
	// StateInsert has never been stored and is written with INSERT.
	StateInsert
	// StateWritten was written by the commit in progress.
	StateWritten
)

func (s ObjectState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateInsert:
		return "insert"
	case StateWritten:
		return "written"
	default:
		return fmt.Sprintf("ObjectState(%d)", int(s))
	}
}

// Object is one persistent object owned by a Transaction.
//
// Field values are IR scalars. Outer references hold the target's key, not a
// pointer; Ref resolves them through the identity map.
type Object struct {
	class  *ir.ClassInfo
	tx     *Transaction
	values ir.IRObject
	state  ObjectState

	// loaded is false for proxies created by GetRef until Load fills them.
	loaded        bool
	cacheResident bool
}

// Class returns the class name.
func (o *Object) Class() string { return o.class.Name }

// ClassInfo returns the class metadata.
func (o *Object) ClassInfo() *ir.ClassInfo { return o.class }

// Transaction returns the owning transaction.
func (o *Object) Transaction() *Transaction { return o.tx }

// State returns the persistence state.
func (o *Object) State() ObjectState { return o.state }

// IsLoaded reports whether every field value is known.
func (o *Object) IsLoaded() bool { return o.loaded }

// Key returns the primary-key value.
func (o *Object) Key() ir.IRValue {
	return o.Get(o.class.PrimaryKey)
}

// Identity returns (class, key).
func (o *Object) Identity() Identity {
	return Identity{Class: o.class.Name, Key: o.Key()}
}

// Get returns a field value, IRNull when unset or unknown.
// Only the key is known on an unloaded proxy.
func (o *Object) Get(field string) ir.IRValue {
	if v, ok := o.values[field]; ok && v != nil {
		return v
	}
	return ir.IRNull{}
}

// Values returns a copy of all field values.
func (o *Object) Values() ir.IRObject {
	return o.values.Clone()
}

// Set assigns a field value and marks the object dirty.
//
// The value must be null or match the field's declared type. The primary key
// is fixed once the object is attached, and unloaded proxies must be loaded
// before they can be modified.
func (o *Object) Set(field string, v ir.IRValue) error {
	f, ok := o.class.Field(field)
	if !ok {
		return fmt.Errorf("set %s.%s: unknown field", o.class.Name, field)
	}
	if v == nil {
		v = ir.IRNull{}
	}
	if !ir.IsNull(v) && ir.TypeName(v) != f.Type {
		return fmt.Errorf("set %s.%s: %T value for %s field", o.class.Name, field, v, f.Type)
	}
	if o.state == StateNew {
		o.values[field] = v
		return nil
	}
	if field == o.class.PrimaryKey {
		return fmt.Errorf("set %s.%s: primary key is immutable", o.Identity(), field)
	}
	if !o.loaded {
		return fmt.Errorf("set %s.%s: object not loaded", o.Identity(), field)
	}

	old := o.Get(field)
	if ir.Equal(old, v) {
		return nil
	}
	o.values[field] = v
	o.tx.markDirty(o)
	if f.IsReference() {
		o.tx.referenceChanged(o, f, old, v)
	}
	return nil
}

// Ref resolves an outer reference, loading the target if needed.
// Returns (nil, nil) when the reference is null.
func (o *Object) Ref(ctx context.Context, field string) (*Object, error) {
	f, ok := o.class.Field(field)
	if !ok || !f.IsReference() {
		return nil, fmt.Errorf("ref %s.%s: not a reference field", o.class.Name, field)
	}
	key := o.Get(field)
	if ir.IsNull(key) {
		return nil, nil
	}
	target, ok := o.tx.schema.Class(f.References)
	if !ok {
		return nil, &UnknownClassError{Name: f.References}
	}
	return o.tx.getObject(ctx, target, key)
}

// SetRef points an outer reference at target, or clears it when target is nil.
func (o *Object) SetRef(field string, target *Object) error {
	if target == nil {
		return o.Set(field, ir.IRNull{})
	}
	f, ok := o.class.Field(field)
	if !ok || !f.IsReference() {
		return fmt.Errorf("set ref %s.%s: not a reference field", o.class.Name, field)
	}
	if !o.tx.schema.IsA(target.class.Name, f.References) {
		return fmt.Errorf("set ref %s.%s: %s is not a %s", o.class.Name, field, target.class.Name, f.References)
	}
	return o.Set(field, target.Key())
}

// Load fills an unloaded proxy from the cache or its data source.
func (o *Object) Load(ctx context.Context) error {
	if o.loaded {
		return nil
	}
	return o.tx.loadObject(ctx, o)
}

// fill replaces every field value from row; absent fields become null.
func (o *Object) fill(row ir.IRObject) {
	values := make(ir.IRObject, len(o.class.Fields))
	for _, f := range o.class.Fields {
		if v, ok := row[f.Name]; ok && v != nil {
			values[f.Name] = v
		} else {
			values[f.Name] = ir.IRNull{}
		}
	}
	o.values = values
	o.loaded = true
}

func (o *Object) needsSave() bool {
	return o.state == StateDirty || o.state == StateInsert
}
