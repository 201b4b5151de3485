package engine

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/roach88/stead/internal/ir"
	"github.com/roach88/stead/internal/queryir"
	"github.com/roach88/stead/internal/source"
)

// TupleMode is the pending change a RelationTable records for one pair.
type TupleMode int

const (
	// TupleRemove deletes the pair at flush.
	TupleRemove TupleMode = -1
	// TupleUnchanged marks a pair known to be stored.
	TupleUnchanged TupleMode = 0
	// TupleAdd inserts the pair at flush.
	TupleAdd TupleMode = 1
)

func (m TupleMode) String() string {
	switch m {
	case TupleRemove:
		return "remove"
	case TupleUnchanged:
		return "unchanged"
	case TupleAdd:
		return "add"
	default:
		return "TupleMode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Tuple is one (left key, right key, mode) entry of a relation journal.
type Tuple struct {
	Left  ir.IRValue
	Right ir.IRValue
	Mode  TupleMode
}

// TupleListener is notified synchronously of every effective Add or Remove.
type TupleListener interface {
	OnTupleChanged(table *RelationTable, left, right ir.IRValue, mode TupleMode)
}

type tupleEntry struct {
	left, right ir.IRValue
	mode        TupleMode
	// stored is set on Remove entries that cancelled an Unchanged pair, so a
	// following Add restores Unchanged instead of dropping the entry.
	stored bool
}

// RelationTable journals the in-memory changes to one many-to-many relation.
//
// Pending tuples are the net change against the last flushed baseline. An
// Add followed by Remove of the same pair (or Remove then Add) cancels back
// to the baseline for that pair. Every view of the relation in the
// transaction shares one table and is patched through OnTupleChanged.
type RelationTable struct {
	info      *ir.RelationInfo
	entries   []*tupleEntry
	index     map[string]*tupleEntry
	listeners []TupleListener

	expected     int
	deserialized int
}

func newRelationTable(info *ir.RelationInfo) *RelationTable {
	return &RelationTable{info: info, index: map[string]*tupleEntry{}}
}

// Info returns the relation metadata.
func (t *RelationTable) Info() *ir.RelationInfo { return t.info }

// Name returns the relation name.
func (t *RelationTable) Name() string { return t.info.Name }

// Subscribe registers a listener for tuple changes.
func (t *RelationTable) Subscribe(l TupleListener) {
	t.listeners = append(t.listeners, l)
}

// Unsubscribe removes a listener.
func (t *RelationTable) Unsubscribe(l TupleListener) {
	t.listeners = slices.DeleteFunc(t.listeners, func(x TupleListener) bool { return x == l })
}

func pairKey(left, right ir.IRValue) string {
	return ir.KeyString(left) + "\x00" + ir.KeyString(right)
}

// Add records that (left, right) should be linked.
func (t *RelationTable) Add(left, right ir.IRValue) {
	k := pairKey(left, right)
	e, ok := t.index[k]
	switch {
	case !ok:
		t.insert(k, &tupleEntry{left: left, right: right, mode: TupleAdd})
	case e.mode == TupleRemove && e.stored:
		e.mode = TupleUnchanged
		e.stored = false
	case e.mode == TupleRemove:
		t.drop(k)
	default:
		return
	}
	t.notify(left, right, TupleAdd)
}

// Remove records that (left, right) should be unlinked.
func (t *RelationTable) Remove(left, right ir.IRValue) {
	k := pairKey(left, right)
	e, ok := t.index[k]
	switch {
	case !ok:
		t.insert(k, &tupleEntry{left: left, right: right, mode: TupleRemove})
	case e.mode == TupleUnchanged:
		e.mode = TupleRemove
		e.stored = true
	case e.mode == TupleAdd:
		t.drop(k)
	default:
		return
	}
	t.notify(left, right, TupleRemove)
}

func (t *RelationTable) insert(k string, e *tupleEntry) {
	t.index[k] = e
	t.entries = append(t.entries, e)
}

func (t *RelationTable) drop(k string) {
	e := t.index[k]
	delete(t.index, k)
	t.entries = slices.DeleteFunc(t.entries, func(x *tupleEntry) bool { return x == e })
}

func (t *RelationTable) notify(left, right ir.IRValue, mode TupleMode) {
	for _, l := range slices.Clone(t.listeners) {
		l.OnTupleChanged(t, left, right, mode)
	}
}

// Pending returns the tuples still to be flushed, in journal order.
func (t *RelationTable) Pending() []Tuple {
	out := []Tuple{}
	for _, e := range t.entries {
		if e.mode != TupleUnchanged {
			out = append(out, Tuple{Left: e.left, Right: e.right, Mode: e.mode})
		}
	}
	return out
}

// HasPending reports whether any tuple is waiting to be flushed.
func (t *RelationTable) HasPending() bool {
	for _, e := range t.entries {
		if e.mode != TupleUnchanged {
			return true
		}
	}
	return false
}

// Tuples returns every journal entry, including Unchanged ones, in journal order.
func (t *RelationTable) Tuples() []Tuple {
	out := make([]Tuple, len(t.entries))
	for i, e := range t.entries {
		out[i] = Tuple{Left: e.left, Right: e.right, Mode: e.mode}
	}
	return out
}

// NetFor returns the far-side keys added and removed for one master key.
// side names the end holding key.
func (t *RelationTable) NetFor(side string, key ir.IRValue) (added, removed []ir.IRValue) {
	for _, e := range t.entries {
		master, far := e.left, e.right
		if side == queryir.SideRight {
			master, far = e.right, e.left
		}
		if !ir.Equal(master, key) {
			continue
		}
		switch e.mode {
		case TupleAdd:
			added = append(added, far)
		case TupleRemove:
			removed = append(removed, far)
		}
	}
	return added, removed
}

// SaveTuples issues the pending inserts and deletes against ds in journal order.
func (t *RelationTable) SaveTuples(ctx context.Context, ds source.DataSource) error {
	for _, e := range t.entries {
		var err error
		switch e.mode {
		case TupleAdd:
			err = ds.InsertTuple(ctx, t.info, e.left, e.right)
		case TupleRemove:
			err = ds.DeleteTuple(ctx, t.info, e.left, e.right)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("relation %s: %w", t.info.Name, err)
		}
	}
	return nil
}

// Commit makes the flushed state the new baseline: removed pairs are
// forgotten and added pairs become Unchanged. No notifications fire.
func (t *RelationTable) Commit() {
	kept := t.entries[:0]
	for _, e := range t.entries {
		switch e.mode {
		case TupleRemove:
			delete(t.index, pairKey(e.left, e.right))
		case TupleAdd:
			e.mode = TupleUnchanged
			kept = append(kept, e)
		default:
			kept = append(kept, e)
		}
	}
	clear(t.entries[len(kept):])
	t.entries = kept
}

// BeginDeserialization prepares the table to receive n tuples from a snapshot.
func (t *RelationTable) BeginDeserialization(n int) {
	t.expected = n
	t.deserialized = 0
}

// DeserializeTuple installs one tuple with its recorded mode, replacing any
// entry for the pair. Listeners see Add and Remove modes.
func (t *RelationTable) DeserializeTuple(left, right ir.IRValue, mode TupleMode) error {
	if mode < TupleRemove || mode > TupleAdd {
		return fmt.Errorf("relation %s: invalid tuple mode %d", t.info.Name, int(mode))
	}
	t.deserialized++
	if t.deserialized > t.expected {
		return fmt.Errorf("relation %s: more than %d tuples", t.info.Name, t.expected)
	}
	k := pairKey(left, right)
	if e, ok := t.index[k]; ok {
		e.mode = mode
		e.stored = false
	} else {
		t.insert(k, &tupleEntry{left: left, right: right, mode: mode})
	}
	if mode != TupleUnchanged {
		t.notify(left, right, mode)
	}
	return nil
}

// EndDeserialization checks that the announced tuple count was received.
func (t *RelationTable) EndDeserialization() error {
	if t.deserialized != t.expected {
		return fmt.Errorf("relation %s: got %d tuples, announced %d", t.info.Name, t.deserialized, t.expected)
	}
	return nil
}
