package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/stead/internal/engine"
	"github.com/roach88/stead/internal/ir"
	"github.com/roach88/stead/internal/source"
)

// AssertionContext is the state assertions are evaluated against.
type AssertionContext struct {
	Ctx     context.Context
	Tx      *engine.Transaction
	Schema  *ir.Schema
	Sources map[string]*source.Memory
	Trace   []TraceEvent
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Executed steps for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nSteps:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s: %s\n", event.Seq, event.Op, event.Target, event.Outcome)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns failure messages.
// An empty slice means all assertions held.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	errs := []string{}
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertObjectState:
			err = assertObjectState(actx, a)
		case AssertFieldValues:
			err = assertFieldValues(actx, a)
		case AssertMembers:
			err = assertMembers(actx, a)
		case AssertStoredRows:
			err = assertStoredRows(actx, a)
		case AssertTupleCount:
			err = assertTupleCount(actx, a)
		case AssertDirtyCount:
			err = assertDirtyCount(actx, a)
		case AssertOps:
			err = assertOps(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func assertionKey(a Assertion) (ir.IRValue, error) {
	key, err := ir.FromGo(a.Key)
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	return key, nil
}

// assertObjectState checks the state of a registered object without loading it.
func assertObjectState(actx *AssertionContext, a Assertion) error {
	key, err := assertionKey(a)
	if err != nil {
		return err
	}
	actual := "not registered"
	if obj := actx.Tx.IdentityMap().FindByKey(a.Class, key); obj != nil {
		actual = obj.State().String()
	}
	if actual != a.State {
		return &AssertionError{
			Type:     AssertObjectState,
			Expected: fmt.Sprintf("%s is %s", engine.Identity{Class: a.Class, Key: key}, a.State),
			Actual:   actual,
			Trace:    actx.Trace,
		}
	}
	return nil
}

// assertFieldValues checks a subset of an object's fields, loading it if needed.
func assertFieldValues(actx *AssertionContext, a Assertion) error {
	key, err := assertionKey(a)
	if err != nil {
		return err
	}
	obj, err := actx.Tx.Get(actx.Ctx, a.Class, key)
	if err != nil {
		return err
	}
	expected, err := ir.FromGo(a.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}
	want := expected.(ir.IRObject)
	for _, field := range want.SortedKeys() {
		if got := obj.Get(field); !ir.Equal(got, want[field]) {
			return &AssertionError{
				Type:     AssertFieldValues,
				Expected: fmt.Sprintf("%s.%s = %s", obj.Identity(), field, ir.KeyString(want[field])),
				Actual:   ir.KeyString(got),
				Trace:    actx.Trace,
			}
		}
	}
	return nil
}

// assertMembers compares view membership as a set, and optionally its size.
func assertMembers(actx *AssertionContext, a Assertion) error {
	key, err := assertionKey(a)
	if err != nil {
		return err
	}
	master, err := actx.Tx.Get(actx.Ctx, a.Class, key)
	if err != nil {
		return err
	}
	view, _, err := OpenView(actx.Tx, master, a.View)
	if err != nil {
		return err
	}
	snap, err := view.Snapshot(actx.Ctx)
	if err != nil {
		return err
	}

	if a.Count != nil && snap.Len() != *a.Count {
		return &AssertionError{
			Type:     AssertMembers,
			Expected: fmt.Sprintf("%s.%s has %d members", master.Identity(), a.View, *a.Count),
			Actual:   fmt.Sprintf("%d members", snap.Len()),
			Trace:    actx.Trace,
		}
	}
	if a.Members == nil {
		return nil
	}

	actual := []string{}
	for _, obj := range snap.Items() {
		actual = append(actual, ir.KeyString(obj.Key()))
	}
	expected := []string{}
	for i, m := range a.Members {
		v, err := ir.FromGo(m)
		if err != nil {
			return fmt.Errorf("members[%d]: %w", i, err)
		}
		expected = append(expected, ir.KeyString(v))
	}
	slices.Sort(actual)
	slices.Sort(expected)
	if !slices.Equal(actual, expected) {
		return &AssertionError{
			Type:     AssertMembers,
			Expected: fmt.Sprintf("%s.%s = [%s]", master.Identity(), a.View, strings.Join(expected, ", ")),
			Actual:   "[" + strings.Join(actual, ", ") + "]",
			Trace:    actx.Trace,
		}
	}
	return nil
}

// assertStoredRows counts committed rows of a class in its data source.
func assertStoredRows(actx *AssertionContext, a Assertion) error {
	class, ok := actx.Schema.Class(a.Class)
	if !ok {
		return &engine.UnknownClassError{Name: a.Class}
	}
	n := len(actx.Sources[class.DataSource].Rows(class.Name))
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertStoredRows,
			Expected: fmt.Sprintf("%d stored %s rows", *a.Count, a.Class),
			Actual:   fmt.Sprintf("%d rows", n),
			Trace:    actx.Trace,
		}
	}
	return nil
}

// assertTupleCount counts committed tuples of a relation.
func assertTupleCount(actx *AssertionContext, a Assertion) error {
	rel, ok := actx.Schema.Relation(a.Relation)
	if !ok {
		return &engine.UnknownClassError{Name: a.Relation}
	}
	n := actx.Sources[rel.DataSource].TupleCount(rel.Name)
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertTupleCount,
			Expected: fmt.Sprintf("%d stored %s tuples", *a.Count, a.Relation),
			Actual:   fmt.Sprintf("%d tuples", n),
			Trace:    actx.Trace,
		}
	}
	return nil
}

func assertDirtyCount(actx *AssertionContext, a Assertion) error {
	n := len(actx.Tx.DirtyObjects())
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertDirtyCount,
			Expected: fmt.Sprintf("%d dirty objects", *a.Count),
			Actual:   fmt.Sprintf("%d", n),
			Trace:    actx.Trace,
		}
	}
	return nil
}

// assertOps compares a data source's operation log exactly.
func assertOps(actx *AssertionContext, a Assertion) error {
	ds, ok := actx.Sources[a.DataSource]
	if !ok {
		return &source.UnknownDataSourceError{Name: a.DataSource}
	}
	if got := ds.Ops(); !slices.Equal(got, a.Ops) {
		return &AssertionError{
			Type:     AssertOps,
			Expected: strings.Join(a.Ops, " | "),
			Actual:   strings.Join(got, " | "),
			Trace:    actx.Trace,
		}
	}
	return nil
}
