package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/stead/internal/ir"
	"github.com/roach88/stead/internal/queryir"
)

// LoadObjectList returns the rows selected by sel.
// Results are ordered by sel.OrderBy then primary key, inside the open unit
// of work when there is one.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) LoadObjectList(ctx context.Context, sel queryir.Select) ([]ir.IRObject, error) {
	return s.load(ctx, sel)
}

// LoadRefObjectList returns the far-side rows of a many-to-many relation
// linked to the master key, ordered by primary key.
func (s *Store) LoadRefObjectList(ctx context.Context, rel queryir.Related) ([]ir.IRObject, error) {
	return s.load(ctx, rel)
}

func (s *Store) load(ctx context.Context, q queryir.Query) ([]ir.IRObject, error) {
	class, err := s.compiler.ResultClass(q)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	query, params, err := s.compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", class.Name, err)
	}

	rows, err := s.queryer().QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", class.Name, err)
	}
	defer rows.Close()

	objects := []ir.IRObject{}
	for rows.Next() {
		raw := make([]any, len(class.Fields))
		ptrs := make([]any, len(raw))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", class.Name, err)
		}
		obj, err := scanObject(class, raw)
		if err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", class.Name, err)
	}

	return objects, nil
}

// queryer is the open transaction when there is one, else the database.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) queryer() queryer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx
	}
	return s.db
}
