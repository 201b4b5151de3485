package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/stead/internal/cache"
	"github.com/roach88/stead/internal/engine"
	"github.com/roach88/stead/internal/ir"
	"github.com/roach88/stead/internal/queryir"
	"github.com/roach88/stead/internal/schema"
	"github.com/roach88/stead/internal/source"
	"github.com/roach88/stead/internal/testutil"
)

// Harness runs one scenario. Every data source is an in-memory
// source.Memory, fresh per run, so operation logs are exact.
type Harness struct {
	schema   *ir.Schema
	registry *engine.Registry
	sources  map[string]*source.Memory
	cache    engine.CacheBridge
	ids      *testutil.SequentialGenerator
	clock    *engine.Clock
	logger   *slog.Logger
	tx       *engine.Transaction
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Load and validate the CUE schema
//  2. Create one in-memory data source per schema data source and seed it
//  3. Execute steps against the current transaction
//  4. Evaluate assertions and take the final canonical snapshot
//
// Run returns an error only when the scenario cannot be executed at all.
// Step and assertion failures are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	loaded, errs := schema.LoadDir(scenario.Schema)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load schema: %w", errors.Join(errs...))
	}

	h := &Harness{
		schema:   loaded.Schema,
		registry: engine.NewRegistry(loaded.Schema),
		sources:  map[string]*source.Memory{},
		ids:      testutil.NewSequentialGenerator("tx"),
		clock:    engine.NewClock(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, name := range loaded.Schema.DataSources() {
		h.sources[name] = source.NewMemory(name, loaded.Schema)
	}
	if scenario.Cache {
		h.cache = cache.NewMemory(time.Hour)
	}
	if err := h.seed(scenario.Seed); err != nil {
		return nil, fmt.Errorf("failed to seed: %w", err)
	}

	ctx := context.Background()
	h.tx = h.newTransaction()
	defer func() { h.tx.Close() }()

	result := NewResult()
	if !h.executeSteps(ctx, scenario.Steps, result) {
		return result, nil
	}

	actx := &AssertionContext{
		Ctx:     ctx,
		Tx:      h.tx,
		Schema:  h.schema,
		Sources: h.sources,
		Trace:   result.Trace,
	}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	snap, err := h.tx.Serialize(engine.SerializeOptions{Canonical: true})
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot: %w", err)
	}
	result.Snapshot = snap
	return result, nil
}

func (h *Harness) newTransaction() *engine.Transaction {
	reg := source.Registry{}
	for name, ds := range h.sources {
		reg[name] = ds
	}
	opts := []engine.Option{
		engine.WithDataSources(reg),
		engine.WithLogger(h.logger),
		engine.WithIDGenerator(h.ids),
	}
	if h.cache != nil {
		opts = append(opts, engine.WithCache(h.cache))
	}
	return engine.New(h.registry, opts...)
}

func (h *Harness) seed(rows []SeedRow) error {
	for i, row := range rows {
		if row.Class != "" {
			class, ok := h.schema.Class(row.Class)
			if !ok {
				return fmt.Errorf("seed[%d]: unknown class %q", i, row.Class)
			}
			obj, err := ir.FromGo(row.Row)
			if err != nil {
				return fmt.Errorf("seed[%d]: %w", i, err)
			}
			h.sources[class.DataSource].Seed(class, obj.(ir.IRObject))
			continue
		}
		rel, ok := h.schema.Relation(row.Relation)
		if !ok {
			return fmt.Errorf("seed[%d]: unknown relation %q", i, row.Relation)
		}
		left, err := ir.FromGo(row.Left)
		if err != nil {
			return fmt.Errorf("seed[%d].left: %w", i, err)
		}
		right, err := ir.FromGo(row.Right)
		if err != nil {
			return fmt.Errorf("seed[%d].right: %w", i, err)
		}
		h.sources[rel.DataSource].SeedTuple(rel, left, right)
	}
	return nil
}

// executeSteps runs steps in order. It stops at the first step that does
// not behave as expected and reports false.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) bool {
	for i, step := range steps {
		target, err := h.execute(ctx, step)
		seq := h.clock.Next()

		outcome := "ok"
		if err != nil {
			outcome = "error: " + errorLabel(err)
		}
		result.AddTrace(seq, step.Op, target, outcome)

		switch {
		case step.ExpectError == "" && err != nil:
			result.AddError(fmt.Sprintf("steps[%d] %s %s: %v", i, step.Op, target, err))
			return false
		case step.ExpectError != "" && err == nil:
			result.AddError(fmt.Sprintf("steps[%d] %s %s: expected error %s, got success", i, step.Op, target, step.ExpectError))
			return false
		case step.ExpectError != "" && !errorMatches(err, step.ExpectError):
			result.AddError(fmt.Sprintf("steps[%d] %s %s: expected error %s, got %v", i, step.Op, target, step.ExpectError, err))
			return false
		}

		h.logger.Info("step completed",
			"step", i,
			"op", step.Op,
			"target", target,
			"outcome", outcome,
		)
	}
	return true
}

// errorLabel prefers the engine error code over the message.
func errorLabel(err error) string {
	if code := engine.Code(err); code != "" {
		return string(code)
	}
	return err.Error()
}

func errorMatches(err error, expected string) bool {
	return string(engine.Code(err)) == expected || strings.Contains(err.Error(), expected)
}

func (h *Harness) execute(ctx context.Context, step Step) (string, error) {
	switch step.Op {
	case OpCommit:
		return "", h.tx.Commit(ctx)
	case OpRollback:
		return "", h.tx.Rollback(ctx)
	case OpBegin:
		err := h.tx.Close()
		h.tx = h.newTransaction()
		return h.tx.ID(), err
	case OpHandoff:
		data, err := h.tx.Serialize(engine.SerializeOptions{})
		if err != nil {
			return "", err
		}
		if err := h.tx.Close(); err != nil {
			return "", err
		}
		h.tx = h.newTransaction()
		return h.tx.ID(), h.tx.Deserialize(data)
	}

	key, err := ir.FromGo(step.Key)
	if err != nil {
		return "", fmt.Errorf("key: %w", err)
	}
	target := engine.Identity{Class: step.Class, Key: key}.String()

	switch step.Op {
	case OpGet:
		_, err := h.tx.Get(ctx, step.Class, key)
		return target, err
	case OpCreate:
		obj, err := h.tx.CreateNew(step.Class, key)
		if err != nil {
			return target, err
		}
		return target, setFields(obj, step.Fields)
	case OpSet:
		obj, err := h.tx.Get(ctx, step.Class, key)
		if err != nil {
			return target, err
		}
		return target, setFields(obj, step.Fields)
	}

	master, err := h.tx.Get(ctx, step.Class, key)
	if err != nil {
		return target, err
	}
	view, far, err := OpenView(h.tx, master, step.View)
	if err != nil {
		return target, err
	}
	target += "." + step.View.String()
	if step.Op == OpLoadView {
		return target, view.Load(ctx)
	}

	memberKey, err := ir.FromGo(step.Member)
	if err != nil {
		return target, fmt.Errorf("member: %w", err)
	}
	member, err := h.tx.Get(ctx, far, memberKey)
	if err != nil {
		return target, err
	}
	if step.Op == OpAddMember {
		return target, view.Add(member)
	}
	return target, view.Remove(member)
}

// setFields applies fields in sorted order so runs are reproducible.
func setFields(obj *engine.Object, fields map[string]any) error {
	values, err := ir.FromGo(fields)
	if err != nil {
		return err
	}
	row, _ := values.(ir.IRObject)
	for _, name := range row.SortedKeys() {
		if err := obj.Set(name, row[name]); err != nil {
			return err
		}
	}
	return nil
}

// String renders the view as Relation[side] or Class.field.
func (v *ViewRef) String() string {
	if v.Relation != "" {
		return v.Relation + "[" + v.Side + "]"
	}
	return v.Class + "." + v.Field
}

// OpenView returns the collection v selects on master, and the class name
// of its members.
func OpenView(tx *engine.Transaction, master *engine.Object, v *ViewRef) (engine.Collection, string, error) {
	if v.Relation != "" {
		rel, ok := tx.Schema().Relation(v.Relation)
		if !ok {
			return nil, "", &engine.UnknownClassError{Name: v.Relation}
		}
		far := rel.Right.Class
		if v.Side == queryir.SideRight {
			far = rel.Left.Class
		}
		view, err := tx.ManyToMany(master, v.Relation, v.Side)
		if err != nil {
			return nil, "", err
		}
		return view, far, nil
	}
	view, err := tx.OneToMany(master, v.Class, v.Field)
	if err != nil {
		return nil, "", err
	}
	return view, v.Class, nil
}
