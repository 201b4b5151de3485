package engine

import "github.com/roach88/stead/internal/ir"

// saveWalk orders physical saves so every Insert-mode object is written
// after the Insert-mode objects it references.
//
// The walk is depth-first over objects needing a save, in registration
// order. visited marks objects already ordered; onPath marks the current
// recursion chain. Reaching an onPath object again is a true cycle: neither
// row can be inserted before the other.
type saveWalk struct {
	tx      *Transaction
	visited map[*Object]bool
	onPath  map[*Object]bool
	order   []*Object
}

// planSaves returns the save order for the whole object set, or a
// CyclicReferenceError before anything is written.
func (tx *Transaction) planSaves() ([]*Object, error) {
	w := &saveWalk{
		tx:      tx,
		visited: map[*Object]bool{},
		onPath:  map[*Object]bool{},
	}
	for _, obj := range tx.identity.Objects() {
		if !obj.needsSave() || w.visited[obj] {
			continue
		}
		if err := w.visit(obj); err != nil {
			return nil, err
		}
	}
	return w.order, nil
}

func (w *saveWalk) visit(obj *Object) error {
	w.visited[obj] = true
	w.onPath[obj] = true

	for _, f := range obj.class.References() {
		key := obj.Get(f.Name)
		if ir.IsNull(key) {
			continue
		}
		target := w.tx.identity.FindByKey(f.References, key)
		if target == nil || target.state != StateInsert {
			continue
		}
		if w.onPath[target] {
			return &CyclicReferenceError{From: obj.Identity(), To: target.Identity(), Field: f.Name}
		}
		if w.visited[target] {
			continue
		}
		if err := w.visit(target); err != nil {
			return err
		}
	}

	delete(w.onPath, obj)
	w.order = append(w.order, obj)
	return nil
}
