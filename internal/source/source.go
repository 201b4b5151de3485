// Package source defines the DataSource contract the transaction engine
// persists through, plus an in-memory implementation.
//
// A DataSource is a long-lived handle to one physical store. A transaction
// opens a unit of work on it with Open, issues loads and writes, and ends the
// unit with Commit or Rollback. Close releases the physical store and is the
// owner's responsibility, not the transaction's.
package source

import (
	"context"

	"github.com/roach88/stead/internal/ir"
	"github.com/roach88/stead/internal/queryir"
)

// DataSource is one physical store addressed by name from schema metadata.
//
// Loads may be issued with or without an open unit of work; inside a unit
// they observe its uncommitted writes. Writes require an open unit.
type DataSource interface {
	Name() string

	Open(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close() error

	// LoadObjectList returns rows of sel.From ordered by sel.OrderBy then key.
	LoadObjectList(ctx context.Context, sel queryir.Select) ([]ir.IRObject, error)
	// LoadRefObjectList returns the far-side rows linked to rel.MasterKey.
	LoadRefObjectList(ctx context.Context, rel queryir.Related) ([]ir.IRObject, error)

	Insert(ctx context.Context, class *ir.ClassInfo, row ir.IRObject) error
	Update(ctx context.Context, class *ir.ClassInfo, row ir.IRObject) error
	InsertTuple(ctx context.Context, rel *ir.RelationInfo, left, right ir.IRValue) error
	DeleteTuple(ctx context.Context, rel *ir.RelationInfo, left, right ir.IRValue) error
}

// Registry maps data source names to handles.
type Registry map[string]DataSource

// Get returns the named data source or ErrUnknownDataSource.
func (r Registry) Get(name string) (DataSource, error) {
	ds, ok := r[name]
	if !ok {
		return nil, &UnknownDataSourceError{Name: name}
	}
	return ds, nil
}

// UnknownDataSourceError is returned when schema metadata names a data
// source that was never registered.
type UnknownDataSourceError struct {
	Name string
}

func (e *UnknownDataSourceError) Error() string {
	return "unknown data source: " + e.Name
}
