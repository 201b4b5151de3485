package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/stead/internal/ir"
)

// Open begins a unit of work. Writes are only accepted while one is open.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return fmt.Errorf("store %s: unit of work already open", s.name)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store %s: begin: %w", s.name, err)
	}
	s.tx = tx
	return nil
}

// Commit commits the open unit of work.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return fmt.Errorf("store %s: commit without open unit of work", s.name)
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store %s: commit: %w", s.name, err)
	}
	return nil
}

// Rollback discards the open unit of work. No-op when none is open.
func (s *Store) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("store %s: rollback: %w", s.name, err)
	}
	return nil
}

// Insert writes a new row for an object.
// A primary-key collision surfaces as the driver's UNIQUE constraint error.
func (s *Store) Insert(ctx context.Context, class *ir.ClassInfo, row ir.IRObject) error {
	query, params, err := s.compiler.Insert(class, row)
	if err != nil {
		return fmt.Errorf("insert %s: %w", class.Name, err)
	}
	if _, err := s.exec(ctx, query, params); err != nil {
		return fmt.Errorf("insert %s: %w", class.Name, err)
	}
	return nil
}

// Update rewrites every non-key column of an existing row.
// Updating a row that does not exist is an error.
func (s *Store) Update(ctx context.Context, class *ir.ClassInfo, row ir.IRObject) error {
	query, params, err := s.compiler.Update(class, row)
	if err != nil {
		return fmt.Errorf("update %s: %w", class.Name, err)
	}
	res, err := s.exec(ctx, query, params)
	if err != nil {
		return fmt.Errorf("update %s: %w", class.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", class.Name, err)
	}
	if n == 0 {
		return fmt.Errorf("update %s %s: no such row", class.Name, ir.KeyString(row[class.PrimaryKey]))
	}
	return nil
}

// InsertTuple links two keys. Inserting an existing pair is a no-op.
func (s *Store) InsertTuple(ctx context.Context, rel *ir.RelationInfo, left, right ir.IRValue) error {
	query, params, err := s.compiler.InsertTuple(rel, left, right)
	if err != nil {
		return fmt.Errorf("insert tuple %s: %w", rel.Name, err)
	}
	if _, err := s.exec(ctx, query, params); err != nil {
		return fmt.Errorf("insert tuple %s: %w", rel.Name, err)
	}
	return nil
}

// DeleteTuple unlinks two keys. Deleting a missing pair is a no-op.
func (s *Store) DeleteTuple(ctx context.Context, rel *ir.RelationInfo, left, right ir.IRValue) error {
	query, params, err := s.compiler.DeleteTuple(rel, left, right)
	if err != nil {
		return fmt.Errorf("delete tuple %s: %w", rel.Name, err)
	}
	if _, err := s.exec(ctx, query, params); err != nil {
		return fmt.Errorf("delete tuple %s: %w", rel.Name, err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, params []any) (sql.Result, error) {
	s.mu.Lock()
	tx := s.tx
	s.mu.Unlock()
	if tx == nil {
		return nil, fmt.Errorf("store %s: write outside unit of work", s.name)
	}
	return tx.ExecContext(ctx, query, params...)
}
