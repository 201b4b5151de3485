package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/stead/internal/ir"
)

// Commit persists every pending change.
//
// Phases, in order:
//  1. precommit: BeforeCommit hooks drain a FIFO seeded with the dirty list
//  2. validation: null constraints and Validate hooks, aggregated
//  3. save: inserts and updates in reference-dependency order
//  4. relation flush: pending tuples of every relation journal
//  5. postcommit: AfterCommit hooks in dirty order
//  6. data source commit, sequentially in name order
//  7. written objects become clean and are pushed to the cache
//
// Structural failures (quota, validation, cycles) return before any write.
// Data source errors are returned as is. Commit never rolls back on its own:
// after a failure the caller decides whether to Rollback.
//
// Committing several data sources is not atomic. If one data source commit
// fails, the ones before it stay committed and the rest stay open.
func (tx *Transaction) Commit(ctx context.Context) error {
	if tx.closed {
		return errors.New("commit: transaction closed")
	}
	if tx.committing {
		return errors.New("commit: already in progress")
	}
	tx.committing = true
	defer func() { tx.committing = false }()

	log := tx.logger.With("tx", tx.id)

	if err := tx.runPrecommit(ctx); err != nil {
		return fmt.Errorf("precommit: %w", err)
	}
	dirty := tx.dirty.objects()
	log.Debug("precommit drained", "dirty", len(dirty))

	if err := tx.validate(dirty); err != nil {
		return err
	}

	order, err := tx.planSaves()
	if err != nil {
		return err
	}
	for _, obj := range order {
		if err := tx.save(ctx, obj); err != nil {
			return err
		}
	}
	log.Debug("objects saved", "count", len(order))

	flushed, err := tx.flushRelations(ctx)
	if err != nil {
		return err
	}

	for _, obj := range dirty {
		hook := tx.registry.behavior(obj.class.Name).AfterCommit
		if hook == nil {
			continue
		}
		if err := hook(ctx, obj); err != nil {
			return fmt.Errorf("postcommit %s: %w", obj.Identity(), err)
		}
	}

	if err := tx.commitSources(ctx); err != nil {
		return err
	}

	tx.finishCommit(ctx, slices.Concat(dirty, order), flushed)
	log.Info("transaction committed", "saved", len(order), "relations", len(flushed))
	return nil
}

func (tx *Transaction) runPrecommit(ctx context.Context) error {
	q := newWorkQueue()
	for _, obj := range tx.dirty.objects() {
		q.Enqueue(obj)
	}
	tx.precommit = q
	defer func() { tx.precommit = nil }()

	quota := NewQuotaEnforcer(tx.maxPrecommitRounds)
	for {
		obj, ok := q.TryDequeue()
		if !ok {
			break
		}
		hook := tx.registry.behavior(obj.class.Name).BeforeCommit
		if hook == nil {
			continue
		}
		if err := quota.Check(); err != nil {
			return err
		}
		if err := hook(ctx, obj); err != nil {
			return fmt.Errorf("%s: %w", obj.Identity(), err)
		}
	}
	tx.logger.Debug("precommit hooks finished", "tx", tx.id, "rounds", quota.Current(), "limit", quota.MaxRounds())
	return nil
}

func (tx *Transaction) validate(objs []*Object) error {
	var violations []Violation
	for _, obj := range objs {
		if !obj.needsSave() {
			continue
		}
		for _, f := range obj.class.Fields {
			if !f.Nullable && ir.IsNull(obj.Get(f.Name)) {
				violations = append(violations, Violation{
					Object:  obj.Identity(),
					Field:   f.Name,
					Message: "must not be null",
				})
			}
		}
		if check := tx.registry.behavior(obj.class.Name).Validate; check != nil {
			for _, msg := range check(obj) {
				violations = append(violations, Violation{Object: obj.Identity(), Message: msg})
			}
		}
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func (tx *Transaction) save(ctx context.Context, obj *Object) error {
	ds, err := tx.unit(ctx, obj.class.DataSource)
	if err != nil {
		return err
	}
	row := obj.values.Clone()
	if obj.state == StateInsert {
		err = ds.Insert(ctx, obj.class, row)
	} else {
		err = ds.Update(ctx, obj.class, row)
	}
	if err != nil {
		tx.logger.Error("save failed",
			"tx", tx.id, "class", obj.class.Name, "key", ir.KeyString(obj.Key()),
			"state", obj.state.String(), "error", err)
		return err
	}
	obj.state = StateWritten
	return nil
}

// flushRelations saves and commits every journal with pending tuples.
// Returns the names of the flushed relations.
func (tx *Transaction) flushRelations(ctx context.Context) ([]string, error) {
	flushed := []string{}
	for _, name := range slices.Sorted(maps.Keys(tx.relations)) {
		t := tx.relations[name]
		if !t.HasPending() {
			continue
		}
		ds, err := tx.unit(ctx, t.info.DataSource)
		if err != nil {
			return nil, err
		}
		if err := t.SaveTuples(ctx, ds); err != nil {
			return nil, err
		}
		t.Commit()
		flushed = append(flushed, name)
	}
	return flushed, nil
}

func (tx *Transaction) commitSources(ctx context.Context) error {
	for _, name := range slices.Sorted(maps.Keys(tx.open)) {
		if err := tx.open[name].Commit(ctx); err != nil {
			return fmt.Errorf("commit data source %s: %w", name, err)
		}
		delete(tx.open, name)
	}
	return nil
}

// finishCommit resets written objects, refreshes the cache and invalidates
// cached collections that the commit may have changed.
//
// candidates holds the dirty list and the save order. Objects saved by an
// earlier failed Commit are still Written and on the dirty list, so they
// become clean here too.
func (tx *Transaction) finishCommit(ctx context.Context, candidates []*Object, flushed []string) {
	written := map[*Object]bool{}
	scopes := map[string]bool{}
	for _, obj := range candidates {
		if written[obj] || obj.state != StateWritten {
			continue
		}
		obj.state = StateClean
		written[obj] = true
		scopes[obj.class.Name] = true
		for _, a := range tx.schema.Ancestors(obj.class.Name) {
			scopes[a] = true
		}
	}
	for _, name := range flushed {
		scopes[name] = true
	}
	tx.dirty.retain((*Object).needsSave)

	if tx.cache == nil {
		return
	}
	for _, obj := range tx.identity.Objects() {
		if !obj.class.Cacheable || !obj.loaded || obj.state != StateClean {
			continue
		}
		if obj.cacheResident && !written[obj] {
			continue
		}
		if err := tx.cache.Add(ctx, obj.class.Name, obj.Key(), obj.values.Clone()); err != nil {
			tx.logger.Warn("cache add failed", "class", obj.class.Name, "key", ir.KeyString(obj.Key()), "error", err)
			if obj.cacheResident {
				// The cached row predates this commit.
				if err := tx.cache.Invalidate(ctx, obj.class.Name, obj.Key()); err != nil {
					tx.logger.Warn("cache invalidate failed", "class", obj.class.Name, "error", err)
				}
				obj.cacheResident = false
			}
			continue
		}
		obj.cacheResident = true
	}
	for _, scope := range slices.Sorted(maps.Keys(scopes)) {
		if err := tx.cache.InvalidateCollections(ctx, scope); err != nil {
			tx.logger.Warn("cache invalidate failed", "scope", scope, "error", err)
		}
	}
}
