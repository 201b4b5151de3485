package queryir

import (
	"fmt"
	"slices"

	"github.com/roach88/stead/internal/ir"
)

// Eval evaluates a predicate against one row, with the same semantics the
// SQL backend produces. A nil predicate matches everything.
func Eval(p Predicate, row ir.IRObject) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case Equals:
		return evalEquals(pred.Field, pred.Value, row)
	case *Equals:
		return evalEquals(pred.Field, pred.Value, row)
	case NotEquals:
		return evalNotEquals(pred.Field, pred.Value, row)
	case *NotEquals:
		return evalNotEquals(pred.Field, pred.Value, row)
	case IsNull:
		return ir.IsNull(row[pred.Field])
	case *IsNull:
		return ir.IsNull(row[pred.Field])
	case And:
		return evalAnd(pred.Predicates, row)
	case *And:
		return evalAnd(pred.Predicates, row)
	case Or:
		return evalOr(pred.Predicates, row)
	case *Or:
		return evalOr(pred.Predicates, row)
	default:
		panic(fmt.Sprintf("queryir: unknown predicate type %T", p))
	}
}

func evalEquals(field string, value ir.IRValue, row ir.IRObject) bool {
	v := row[field]
	if ir.IsNull(v) || ir.IsNull(value) {
		return false
	}
	return ir.Equal(v, value)
}

func evalNotEquals(field string, value ir.IRValue, row ir.IRObject) bool {
	v := row[field]
	if ir.IsNull(v) || ir.IsNull(value) {
		return false
	}
	return !ir.Equal(v, value)
}

func evalAnd(preds []Predicate, row ir.IRObject) bool {
	for _, p := range preds {
		if !Eval(p, row) {
			return false
		}
	}
	return true
}

func evalOr(preds []Predicate, row ir.IRObject) bool {
	for _, p := range preds {
		if Eval(p, row) {
			return true
		}
	}
	return false
}

// SortRows orders rows by the given terms, then by keyField ascending.
// The sort is stable.
func SortRows(rows []ir.IRObject, order []Order, keyField string) {
	slices.SortStableFunc(rows, func(a, b ir.IRObject) int {
		return CompareRows(a, b, order, keyField)
	})
}

// CompareRows compares two rows by the ordering terms then the key field.
func CompareRows(a, b ir.IRObject, order []Order, keyField string) int {
	for _, o := range order {
		c := ir.Compare(a[o.Field], b[o.Field])
		if o.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	if keyField == "" {
		return 0
	}
	return ir.Compare(a[keyField], b[keyField])
}

// Apply filters, orders and limits rows the way a Select would.
func Apply(sel Select, rows []ir.IRObject, keyField string) []ir.IRObject {
	out := []ir.IRObject{}
	for _, r := range rows {
		if Eval(sel.Filter, r) {
			out = append(out, r)
		}
	}
	SortRows(out, sel.OrderBy, keyField)
	if sel.Limit > 0 && len(out) > sel.Limit {
		out = out[:sel.Limit]
	}
	return out
}
