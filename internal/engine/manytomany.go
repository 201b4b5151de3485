package engine

import (
	"context"
	"fmt"

	"github.com/roach88/stead/internal/ir"
	"github.com/roach88/stead/internal/queryir"
	"github.com/roach88/stead/internal/source"
)

// ManyToMany is the collection of far-side objects linked to one master key
// through a relation.
//
// Add and Remove go through the transaction's RelationTable; the view is a
// listener on that table, as is every other view of the same relation.
type ManyToMany struct {
	*view
	tx        *Transaction
	table     *RelationTable
	side      string
	masterKey ir.IRValue
	far       *ir.ClassInfo
}

var _ Collection = (*ManyToMany)(nil)

// ManyToMany returns the view of objects linked to master through relation.
// side names the relation end master sits on. Repeated calls return the
// same view.
func (tx *Transaction) ManyToMany(master *Object, relation, side string) (*ManyToMany, error) {
	table, err := tx.RelationTable(relation)
	if err != nil {
		return nil, err
	}
	rel := table.Info()
	masterSide, farSide := rel.Left, rel.Right
	switch side {
	case queryir.SideLeft:
	case queryir.SideRight:
		masterSide, farSide = rel.Right, rel.Left
	default:
		return nil, fmt.Errorf("many-to-many %s: invalid side %q", relation, side)
	}
	if !tx.schema.IsA(master.class.Name, masterSide.Class) {
		return nil, fmt.Errorf("many-to-many %s: %s is not a %s", relation, master.class.Name, masterSide.Class)
	}
	far, ok := tx.schema.Class(farSide.Class)
	if !ok {
		return nil, &UnknownClassError{Name: farSide.Class}
	}

	id := relation + "\x00" + side + "\x00" + ir.KeyString(master.Key())
	if c, ok := tx.manyToMany[id]; ok {
		return c, nil
	}
	c := &ManyToMany{tx: tx, table: table, side: side, masterKey: master.Key(), far: far}
	c.view = newView(c.load)
	table.Subscribe(c)
	tx.manyToMany[id] = c
	return c, nil
}

// Query returns the load this view issues against its data source.
func (c *ManyToMany) Query() queryir.Related {
	return queryir.Related{Relation: c.table.Name(), MasterSide: c.side, MasterKey: c.masterKey}
}

func (c *ManyToMany) pair(farKey ir.IRValue) (left, right ir.IRValue) {
	if c.side == queryir.SideRight {
		return farKey, c.masterKey
	}
	return c.masterKey, farKey
}

// Add links obj to the master.
func (c *ManyToMany) Add(obj *Object) error {
	if !c.tx.schema.IsA(obj.class.Name, c.far.Name) {
		return fmt.Errorf("many-to-many add: %s is not a %s", obj.class.Name, c.far.Name)
	}
	left, right := c.pair(obj.Key())
	c.table.Add(left, right)
	return nil
}

// Remove unlinks obj from the master.
func (c *ManyToMany) Remove(obj *Object) error {
	if !c.tx.schema.IsA(obj.class.Name, c.far.Name) {
		return fmt.Errorf("many-to-many remove: %s is not a %s", obj.class.Name, c.far.Name)
	}
	left, right := c.pair(obj.Key())
	c.table.Remove(left, right)
	return nil
}

// OnTupleChanged applies journal changes for this view's master key.
func (c *ManyToMany) OnTupleChanged(_ *RelationTable, left, right ir.IRValue, mode TupleMode) {
	master, farKey := left, right
	if c.side == queryir.SideRight {
		master, farKey = right, left
	}
	if !ir.Equal(master, c.masterKey) {
		return
	}
	obj, err := c.tx.getRef(c.far, farKey)
	if err != nil {
		c.tx.logger.Warn("many-to-many notification dropped",
			"relation", c.table.Name(), "key", ir.KeyString(farKey), "error", err)
		return
	}
	switch mode {
	case TupleAdd:
		c.memberAdded(obj)
	case TupleRemove:
		c.memberRemoved(obj)
	}
}

// load reads stored links, then applies the journal's unflushed net change.
func (c *ManyToMany) load(ctx context.Context) ([]*Object, error) {
	q := c.Query()
	objs, err := c.tx.loadCollection(ctx, q.Relation, c.far, c.table.Info().DataSource, q,
		func(ctx context.Context, ds source.DataSource) ([]ir.IRObject, error) {
			return ds.LoadRefObjectList(ctx, q)
		})
	if err != nil {
		return nil, fmt.Errorf("load %s members: %w", q.Relation, err)
	}

	members := newDenseList()
	for _, obj := range objs {
		members.add(obj)
	}
	added, removed := c.table.NetFor(c.side, c.masterKey)
	for _, key := range removed {
		if obj := c.tx.identity.FindByKey(c.far.Name, key); obj != nil {
			members.remove(obj)
		}
	}
	for _, key := range added {
		obj, err := c.tx.getObject(ctx, c.far, key)
		if err != nil {
			return nil, fmt.Errorf("load %s members: %w", q.Relation, err)
		}
		members.add(obj)
	}
	return members.items, nil
}
