package engine

import (
	"context"
	"fmt"

	"github.com/roach88/stead/internal/ir"
	"github.com/roach88/stead/internal/queryir"
	"github.com/roach88/stead/internal/source"
)

// OneToMany is the collection of child objects whose foreign-key field holds
// the parent's key.
//
// Add and Remove set or clear the child's foreign key; the resulting
// reference-change notification patches every open view, including this one.
type OneToMany struct {
	*view
	tx        *Transaction
	class     *ir.ClassInfo
	field     string
	parentKey ir.IRValue
}

var _ Collection = (*OneToMany)(nil)

// OneToMany returns the view of childClass objects whose field references
// parent. Repeated calls return the same view.
func (tx *Transaction) OneToMany(parent *Object, childClass, field string) (*OneToMany, error) {
	class, ok := tx.schema.Class(childClass)
	if !ok {
		return nil, &UnknownClassError{Name: childClass}
	}
	f, ok := class.Field(field)
	if !ok || !f.IsReference() {
		return nil, fmt.Errorf("one-to-many %s.%s: not a reference field", childClass, field)
	}
	if !tx.schema.IsA(parent.class.Name, f.References) {
		return nil, fmt.Errorf("one-to-many %s.%s: references %s, not %s", childClass, field, f.References, parent.class.Name)
	}

	id := childClass + "\x00" + field + "\x00" + ir.KeyString(parent.Key())
	if c, ok := tx.oneToMany[id]; ok {
		return c, nil
	}
	c := &OneToMany{tx: tx, class: class, field: field, parentKey: parent.Key()}
	c.view = newView(c.load)
	tx.oneToMany[id] = c
	return c, nil
}

// Query returns the load this view issues against its data source.
func (c *OneToMany) Query() queryir.Select {
	return queryir.Select{From: c.class.Name, Filter: queryir.Eq(c.field, c.parentKey)}
}

// Add makes obj a member by pointing its foreign key at the parent.
func (c *OneToMany) Add(obj *Object) error {
	if !c.tx.schema.IsA(obj.class.Name, c.class.Name) {
		return fmt.Errorf("one-to-many add: %s is not a %s", obj.class.Name, c.class.Name)
	}
	return obj.Set(c.field, c.parentKey)
}

// Remove clears obj's foreign key if it points at the parent.
func (c *OneToMany) Remove(obj *Object) error {
	if !c.tx.schema.IsA(obj.class.Name, c.class.Name) {
		return fmt.Errorf("one-to-many remove: %s is not a %s", obj.class.Name, c.class.Name)
	}
	if obj.loaded && !ir.Equal(obj.Get(c.field), c.parentKey) {
		return nil
	}
	return obj.Set(c.field, ir.IRNull{})
}

// load registers the stored children, then scans the identity map so
// in-memory foreign-key changes win over stored rows.
func (c *OneToMany) load(ctx context.Context) ([]*Object, error) {
	sel := c.Query()
	_, err := c.tx.loadCollection(ctx, c.class.Name, c.class, c.class.DataSource, sel,
		func(ctx context.Context, ds source.DataSource) ([]ir.IRObject, error) {
			return ds.LoadObjectList(ctx, sel)
		})
	if err != nil {
		return nil, fmt.Errorf("load %s children: %w", c.class.Name, err)
	}

	members := []*Object{}
	for _, obj := range c.tx.identity.ObjectsOf(c.class.Name) {
		if obj.loaded && queryir.Eval(sel.Filter, obj.values) {
			members = append(members, obj)
		}
	}
	return members, nil
}

// referenceChanged patches the one-to-many views affected by a foreign-key change.
func (tx *Transaction) referenceChanged(obj *Object, f ir.FieldInfo, old, new ir.IRValue) {
	for _, c := range tx.oneToMany {
		if c.field != f.Name || !tx.schema.IsA(obj.class.Name, c.class.Name) {
			continue
		}
		if ir.Equal(old, c.parentKey) {
			c.memberRemoved(obj)
		}
		if ir.Equal(new, c.parentKey) {
			c.memberAdded(obj)
		}
	}
}
