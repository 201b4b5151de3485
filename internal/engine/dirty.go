package engine

import "slices"

// dirtyList records objects needing a write, in the order they first became
// dirty. Postcommit hooks run in this order.
type dirtyList struct {
	items []*Object
	index map[*Object]bool
}

func newDirtyList() *dirtyList {
	return &dirtyList{index: map[*Object]bool{}}
}

func (d *dirtyList) add(obj *Object) {
	if d.index[obj] {
		return
	}
	d.index[obj] = true
	d.items = append(d.items, obj)
}

func (d *dirtyList) objects() []*Object {
	return slices.Clone(d.items)
}

func (d *dirtyList) len() int {
	return len(d.items)
}

// retain keeps only the objects for which keep returns true.
func (d *dirtyList) retain(keep func(*Object) bool) {
	d.items = slices.DeleteFunc(d.items, func(o *Object) bool {
		if keep(o) {
			return false
		}
		delete(d.index, o)
		return true
	})
}

func (d *dirtyList) clear() {
	d.items = nil
	d.index = map[*Object]bool{}
}

// markDirty moves a clean or freshly written object to Dirty and records it.
// Objects already pending a write are unchanged. During precommit a newly
// dirtied object is queued for its BeforeCommit hook.
func (tx *Transaction) markDirty(obj *Object) {
	switch obj.state {
	case StateClean:
		obj.state = StateDirty
		tx.dirty.add(obj)
		if tx.precommit != nil {
			tx.precommit.Enqueue(obj)
		}
	case StateWritten:
		obj.state = StateDirty
		tx.dirty.add(obj)
	}
}
