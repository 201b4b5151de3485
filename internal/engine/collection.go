package engine

import (
	"context"
	"slices"

	"github.com/roach88/stead/internal/queryir"
)

// Collection is a live, lazily loaded view over related objects.
//
// Membership reflects in-memory changes immediately: adds and removes made
// before the first load are buffered and applied on top of the loaded rows.
// Count, Contains, IndexOf and Snapshot load on first use.
type Collection interface {
	Add(obj *Object) error
	Remove(obj *Object) error
	Count(ctx context.Context) (int, error)
	Contains(ctx context.Context, obj *Object) (bool, error)
	IndexOf(ctx context.Context, obj *Object) (int, error)
	Snapshot(ctx context.Context) (*Snapshot, error)
	Load(ctx context.Context) error
	Loaded() bool
}

// denseList is a slice with a position index. Removal swaps the last item
// into the hole, so add and remove are O(1) and order is not preserved
// across removals.
type denseList struct {
	items []*Object
	index map[*Object]int
}

func newDenseList() denseList {
	return denseList{index: map[*Object]int{}}
}

func (l *denseList) add(obj *Object) bool {
	if _, ok := l.index[obj]; ok {
		return false
	}
	l.index[obj] = len(l.items)
	l.items = append(l.items, obj)
	return true
}

func (l *denseList) remove(obj *Object) bool {
	i, ok := l.index[obj]
	if !ok {
		return false
	}
	last := len(l.items) - 1
	if i != last {
		moved := l.items[last]
		l.items[i] = moved
		l.index[moved] = i
	}
	l.items[last] = nil
	l.items = l.items[:last]
	delete(l.index, obj)
	return true
}

func (l *denseList) contains(obj *Object) bool {
	_, ok := l.index[obj]
	return ok
}

func (l *denseList) indexOf(obj *Object) int {
	if i, ok := l.index[obj]; ok {
		return i
	}
	return -1
}

func (l *denseList) len() int { return len(l.items) }

func (l *denseList) reset() {
	clear(l.items)
	l.items = l.items[:0]
	l.index = map[*Object]int{}
}

// view holds the membership machinery shared by one-to-many and
// many-to-many collections.
type view struct {
	loaded        bool
	members       denseList
	pendingAdd    denseList
	pendingRemove denseList
	load          func(ctx context.Context) ([]*Object, error)
}

func newView(load func(ctx context.Context) ([]*Object, error)) *view {
	return &view{
		members:       newDenseList(),
		pendingAdd:    newDenseList(),
		pendingRemove: newDenseList(),
		load:          load,
	}
}

// memberAdded applies an add notification.
func (v *view) memberAdded(obj *Object) {
	if v.loaded {
		v.members.add(obj)
		return
	}
	if !v.pendingRemove.remove(obj) {
		v.pendingAdd.add(obj)
	}
}

// memberRemoved applies a remove notification.
func (v *view) memberRemoved(obj *Object) {
	if v.loaded {
		v.members.remove(obj)
		return
	}
	if !v.pendingAdd.remove(obj) {
		v.pendingRemove.add(obj)
	}
}

// Loaded reports whether membership has been loaded.
func (v *view) Loaded() bool { return v.loaded }

// Load (re)loads membership and applies buffered changes.
func (v *view) Load(ctx context.Context) error {
	objs, err := v.load(ctx)
	if err != nil {
		return err
	}
	v.members.reset()
	for _, obj := range objs {
		v.members.add(obj)
	}
	for _, obj := range v.pendingRemove.items {
		v.members.remove(obj)
	}
	for _, obj := range v.pendingAdd.items {
		v.members.add(obj)
	}
	v.pendingAdd.reset()
	v.pendingRemove.reset()
	v.loaded = true
	return nil
}

func (v *view) ensureLoaded(ctx context.Context) error {
	if v.loaded {
		return nil
	}
	return v.Load(ctx)
}

// Count returns the number of members.
func (v *view) Count(ctx context.Context) (int, error) {
	if err := v.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	return v.members.len(), nil
}

// Contains reports whether obj is a member.
func (v *view) Contains(ctx context.Context, obj *Object) (bool, error) {
	if err := v.ensureLoaded(ctx); err != nil {
		return false, err
	}
	return v.members.contains(obj), nil
}

// IndexOf returns obj's position, or -1. Positions shift when members are removed.
func (v *view) IndexOf(ctx context.Context, obj *Object) (int, error) {
	if err := v.ensureLoaded(ctx); err != nil {
		return -1, err
	}
	return v.members.indexOf(obj), nil
}

// Snapshot returns an immutable copy of the current membership.
func (v *view) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := v.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return NewSnapshot(v.members.items), nil
}

func (v *view) reset() {
	v.loaded = false
	v.members.reset()
	v.pendingAdd.reset()
	v.pendingRemove.reset()
}

// Snapshot is an immutable list of objects taken from a collection.
// Its query methods return new snapshots; Add and Remove are not supported.
type Snapshot struct {
	items []*Object
}

// NewSnapshot copies items into a snapshot.
func NewSnapshot(items []*Object) *Snapshot {
	return &Snapshot{items: slices.Clone(items)}
}

// Len returns the number of objects.
func (s *Snapshot) Len() int { return len(s.items) }

// At returns the i-th object.
func (s *Snapshot) At(i int) *Object { return s.items[i] }

// Items returns a copy of the objects.
func (s *Snapshot) Items() []*Object { return slices.Clone(s.items) }

// Contains reports whether obj is in the snapshot.
func (s *Snapshot) Contains(obj *Object) bool { return slices.Contains(s.items, obj) }

// IndexOf returns obj's position, or -1.
func (s *Snapshot) IndexOf(obj *Object) int { return slices.Index(s.items, obj) }

// Filter returns the objects for which keep returns true.
func (s *Snapshot) Filter(keep func(*Object) bool) *Snapshot {
	out := make([]*Object, 0, len(s.items))
	for _, obj := range s.items {
		if keep(obj) {
			out = append(out, obj)
		}
	}
	return &Snapshot{items: out}
}

// Where returns the objects whose field values satisfy p.
func (s *Snapshot) Where(p queryir.Predicate) *Snapshot {
	return s.Filter(func(obj *Object) bool {
		return queryir.Eval(p, obj.values)
	})
}

// Sort returns the objects stably sorted by cmp.
func (s *Snapshot) Sort(cmp func(a, b *Object) int) *Snapshot {
	out := slices.Clone(s.items)
	slices.SortStableFunc(out, cmp)
	return &Snapshot{items: out}
}

// OrderBy sorts by the given terms, then by primary key.
func (s *Snapshot) OrderBy(order ...queryir.Order) *Snapshot {
	return s.Sort(func(a, b *Object) int {
		return queryir.CompareRows(a.values, b.values, order, a.class.PrimaryKey)
	})
}

// SelectRange returns items [from, to), clamped to the snapshot bounds.
func (s *Snapshot) SelectRange(from, to int) *Snapshot {
	from = max(from, 0)
	to = min(to, len(s.items))
	if from >= to {
		return &Snapshot{items: []*Object{}}
	}
	return &Snapshot{items: slices.Clone(s.items[from:to])}
}

// Add always fails: snapshots are read-only.
func (s *Snapshot) Add(*Object) error {
	return &NotSupportedError{Op: "Add"}
}

// Remove always fails: snapshots are read-only.
func (s *Snapshot) Remove(*Object) error {
	return &NotSupportedError{Op: "Remove"}
}
