package queryir

import (
	"fmt"

	"github.com/roach88/stead/internal/ir"
)

// ValidationResult lists the problems found in a query.
//
// Errors make the query unusable against the schema (unknown class, unknown
// field, type mismatch). Warnings flag queries that are legal but almost
// certainly wrong, such as comparing a field to NULL with Equals.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether there are no errors.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Validate checks a query against schema metadata.
//
// Validate is a pure function with no side effects.
func Validate(query Query, schema *ir.Schema) ValidationResult {
	v := &validator{
		schema:   schema,
		errors:   []string{},
		warnings: []string{},
	}
	v.validateQuery(query)

	return ValidationResult{
		Errors:   v.errors,
		Warnings: v.warnings,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	schema   *ir.Schema
	class    *ir.ClassInfo
	errors   []string
	warnings []string
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addError("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	case Related:
		v.validateRelated(query)
	case *Related:
		v.validateRelated(*query)
	default:
		v.addError("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	class, ok := v.schema.Class(sel.From)
	if !ok {
		v.addError("unknown class %q", sel.From)
		return
	}
	v.class = class
	v.validatePredicate(sel.Filter)
	for _, o := range sel.OrderBy {
		if _, ok := class.Field(o.Field); !ok {
			v.addError("order by unknown field %q on %s", o.Field, class.Name)
		}
	}
	if sel.Limit < 0 {
		v.addWarning("negative limit %d is treated as no limit", sel.Limit)
	}
}

func (v *validator) validateRelated(rel Related) {
	if _, ok := v.schema.Relation(rel.Relation); !ok {
		v.addError("unknown relation %q", rel.Relation)
	}
	if rel.MasterSide != SideLeft && rel.MasterSide != SideRight {
		v.addError("master side must be %q or %q, got %q", SideLeft, SideRight, rel.MasterSide)
	}
	if ir.IsNull(rel.MasterKey) {
		v.addError("related query on relation %q has no master key", rel.Relation)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		return
	case Equals:
		v.validateComparison("Equals", pred.Field, pred.Value)
	case *Equals:
		v.validateComparison("Equals", pred.Field, pred.Value)
	case NotEquals:
		v.validateComparison("NotEquals", pred.Field, pred.Value)
	case *NotEquals:
		v.validateComparison("NotEquals", pred.Field, pred.Value)
	case IsNull:
		v.validateField(pred.Field)
	case *IsNull:
		v.validateField(pred.Field)
	case And:
		v.validateAll(pred.Predicates)
	case *And:
		v.validateAll(pred.Predicates)
	case Or:
		v.validateAll(pred.Predicates)
		if len(pred.Predicates) == 0 {
			v.addWarning("empty Or never matches")
		}
	case *Or:
		v.validateAll(pred.Predicates)
		if len(pred.Predicates) == 0 {
			v.addWarning("empty Or never matches")
		}
	default:
		v.addError("unknown predicate type: %T", p)
	}
}

func (v *validator) validateAll(preds []Predicate) {
	for _, p := range preds {
		v.validatePredicate(p)
	}
}

func (v *validator) validateField(name string) (ir.FieldInfo, bool) {
	f, ok := v.class.Field(name)
	if !ok {
		v.addError("unknown field %q on %s", name, v.class.Name)
	}
	return f, ok
}

func (v *validator) validateComparison(op, field string, value ir.IRValue) {
	f, ok := v.validateField(field)
	if !ok {
		return
	}
	if ir.IsNull(value) {
		v.addWarning("%s on field %q compares to NULL and never matches; use IsNull", op, field)
		return
	}
	if got := ir.TypeName(value); got != f.Type {
		v.addError("%s on field %q: value type %q does not match field type %q", op, field, got, f.Type)
	}
}
