package source

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/roach88/stead/internal/ir"
	"github.com/roach88/stead/internal/queryir"
)

// Memory is an in-memory DataSource with unit-of-work semantics.
//
// Open snapshots the committed tables into a working copy; writes go to the
// working copy; Commit publishes it and Rollback discards it. Every write and
// unit boundary is appended to an operation log so callers can observe the
// physical save order.
type Memory struct {
	name   string
	schema *ir.Schema

	mu        sync.Mutex
	committed *memState
	working   *memState
	ops       []string
}

type memState struct {
	tables map[string]map[string]ir.IRObject // class -> key -> row
	links  map[string]map[string][2]ir.IRValue
}

func newMemState() *memState {
	return &memState{
		tables: map[string]map[string]ir.IRObject{},
		links:  map[string]map[string][2]ir.IRValue{},
	}
}

func (s *memState) clone() *memState {
	out := newMemState()
	for class, rows := range s.tables {
		t := make(map[string]ir.IRObject, len(rows))
		for k, r := range rows {
			t[k] = r.Clone()
		}
		out.tables[class] = t
	}
	for rel, pairs := range s.links {
		out.links[rel] = maps.Clone(pairs)
	}
	return out
}

// NewMemory creates an empty in-memory data source.
func NewMemory(name string, schema *ir.Schema) *Memory {
	return &Memory{name: name, schema: schema, committed: newMemState()}
}

// Name returns the data source name.
func (m *Memory) Name() string { return m.name }

// Seed stores committed rows directly, bypassing the operation log.
func (m *Memory) Seed(class *ir.ClassInfo, rows ...ir.IRObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(m.committed, class.Name)
	for _, r := range rows {
		t[ir.KeyString(r[class.PrimaryKey])] = r.Clone()
	}
}

// SeedTuple stores a committed relation pair directly.
func (m *Memory) SeedTuple(rel *ir.RelationInfo, left, right ir.IRValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkSet(m.committed, rel.Name)[pairKey(left, right)] = [2]ir.IRValue{left, right}
}

// Ops returns a copy of the operation log.
func (m *Memory) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

// ResetOps clears the operation log.
func (m *Memory) ResetOps() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = nil
}

// Rows returns the committed rows of a class in key order.
func (m *Memory) Rows(class string) []ir.IRObject {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.schema.Class(class)
	if !ok {
		return []ir.IRObject{}
	}
	return queryir.Apply(queryir.Select{From: class}, m.rowsOf(m.committed, class), c.PrimaryKey)
}

// TupleCount returns the number of committed pairs in a relation.
func (m *Memory) TupleCount(relation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.committed.links[relation])
}

func (m *Memory) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.working != nil {
		return fmt.Errorf("memory %s: unit of work already open", m.name)
	}
	m.working = m.committed.clone()
	m.log("open")
	return nil
}

func (m *Memory) Commit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.working == nil {
		return fmt.Errorf("memory %s: commit without open unit of work", m.name)
	}
	m.committed, m.working = m.working, nil
	m.log("commit")
	return nil
}

func (m *Memory) Rollback(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.working == nil {
		return nil
	}
	m.working = nil
	m.log("rollback")
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.working = nil
	return nil
}

func (m *Memory) LoadObjectList(ctx context.Context, sel queryir.Select) ([]ir.IRObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	class, ok := m.schema.Class(sel.From)
	if !ok {
		return nil, fmt.Errorf("memory %s: unknown class %q", m.name, sel.From)
	}
	return queryir.Apply(sel, m.rowsOf(m.current(), class.Name), class.PrimaryKey), nil
}

func (m *Memory) LoadRefObjectList(ctx context.Context, q queryir.Related) ([]ir.IRObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rel, ok := m.schema.Relation(q.Relation)
	if !ok {
		return nil, fmt.Errorf("memory %s: unknown relation %q", m.name, q.Relation)
	}
	masterIdx, farIdx, far := 0, 1, rel.Right
	if q.MasterSide == queryir.SideRight {
		masterIdx, farIdx, far = 1, 0, rel.Left
	}
	farClass, ok := m.schema.Class(far.Class)
	if !ok {
		return nil, fmt.Errorf("memory %s: unknown class %q", m.name, far.Class)
	}

	state := m.current()
	rows := []ir.IRObject{}
	table := state.tables[farClass.Name]
	for _, pair := range state.links[rel.Name] {
		if !ir.Equal(pair[masterIdx], q.MasterKey) {
			continue
		}
		if row, ok := table[ir.KeyString(pair[farIdx])]; ok {
			rows = append(rows, row.Clone())
		}
	}
	queryir.SortRows(rows, nil, farClass.PrimaryKey)
	return rows, nil
}

func (m *Memory) Insert(ctx context.Context, class *ir.ClassInfo, row ir.IRObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen("insert"); err != nil {
		return err
	}
	key := row[class.PrimaryKey]
	if ir.IsNull(key) {
		return fmt.Errorf("memory %s: insert %s: primary key is null", m.name, class.Name)
	}
	t := m.table(m.working, class.Name)
	k := ir.KeyString(key)
	if _, exists := t[k]; exists {
		return fmt.Errorf("memory %s: insert %s %s: UNIQUE constraint failed", m.name, class.Name, k)
	}
	for _, f := range class.Fields {
		if !f.Nullable && ir.IsNull(row[f.Name]) {
			return fmt.Errorf("memory %s: insert %s %s: NOT NULL constraint failed: %s", m.name, class.Name, k, f.Name)
		}
	}
	t[k] = row.Clone()
	m.log("insert %s %s", class.Name, k)
	return nil
}

func (m *Memory) Update(ctx context.Context, class *ir.ClassInfo, row ir.IRObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen("update"); err != nil {
		return err
	}
	t := m.table(m.working, class.Name)
	k := ir.KeyString(row[class.PrimaryKey])
	if _, exists := t[k]; !exists {
		return fmt.Errorf("memory %s: update %s %s: no such row", m.name, class.Name, k)
	}
	t[k] = row.Clone()
	m.log("update %s %s", class.Name, k)
	return nil
}

func (m *Memory) InsertTuple(ctx context.Context, rel *ir.RelationInfo, left, right ir.IRValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen("insert tuple"); err != nil {
		return err
	}
	m.linkSet(m.working, rel.Name)[pairKey(left, right)] = [2]ir.IRValue{left, right}
	m.log("link %s %s %s", rel.Name, ir.KeyString(left), ir.KeyString(right))
	return nil
}

func (m *Memory) DeleteTuple(ctx context.Context, rel *ir.RelationInfo, left, right ir.IRValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen("delete tuple"); err != nil {
		return err
	}
	delete(m.linkSet(m.working, rel.Name), pairKey(left, right))
	m.log("unlink %s %s %s", rel.Name, ir.KeyString(left), ir.KeyString(right))
	return nil
}

func (m *Memory) current() *memState {
	if m.working != nil {
		return m.working
	}
	return m.committed
}

func (m *Memory) requireOpen(op string) error {
	if m.working == nil {
		return fmt.Errorf("memory %s: %s outside unit of work", m.name, op)
	}
	return nil
}

func (m *Memory) table(s *memState, class string) map[string]ir.IRObject {
	t, ok := s.tables[class]
	if !ok {
		t = map[string]ir.IRObject{}
		s.tables[class] = t
	}
	return t
}

func (m *Memory) linkSet(s *memState, rel string) map[string][2]ir.IRValue {
	l, ok := s.links[rel]
	if !ok {
		l = map[string][2]ir.IRValue{}
		s.links[rel] = l
	}
	return l
}

func (m *Memory) rowsOf(s *memState, class string) []ir.IRObject {
	rows := make([]ir.IRObject, 0, len(s.tables[class]))
	for _, r := range s.tables[class] {
		rows = append(rows, r.Clone())
	}
	return rows
}

func (m *Memory) log(format string, args ...any) {
	m.ops = append(m.ops, strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func pairKey(left, right ir.IRValue) string {
	return ir.KeyString(left) + "\x00" + ir.KeyString(right)
}
