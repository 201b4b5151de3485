package queryir

import (
	"fmt"
	"slices"

	"github.com/roach88/stead/internal/ir"
)

// Canonical converts a query into a plain IR object with a stable shape.
// Conjuncts and disjuncts are sorted by their canonical encoding, so
// logically identical filters written in a different order produce the
// same object.
func Canonical(q Query) (ir.IRObject, error) {
	switch query := q.(type) {
	case Select:
		return canonicalSelect(query)
	case *Select:
		return canonicalSelect(*query)
	case Related:
		return canonicalRelated(query)
	case *Related:
		return canonicalRelated(*query)
	default:
		return nil, fmt.Errorf("unknown query type: %T", q)
	}
}

// Signature returns the content hash of the canonical query. The cache
// bridge stores collection results under this value.
func Signature(q Query) (string, error) {
	c, err := Canonical(q)
	if err != nil {
		return "", err
	}
	return ir.PredicateHash(c)
}

func canonicalSelect(sel Select) (ir.IRObject, error) {
	obj := ir.IRObject{
		"kind":  ir.IRString("select"),
		"from":  ir.IRString(sel.From),
		"limit": ir.IRInt(max(sel.Limit, 0)),
	}
	if sel.Filter != nil {
		f, err := canonicalPredicate(sel.Filter)
		if err != nil {
			return nil, err
		}
		obj["where"] = f
	}
	order := ir.IRArray{}
	for _, o := range sel.OrderBy {
		order = append(order, ir.IRObject{"field": ir.IRString(o.Field), "desc": ir.IRBool(o.Desc)})
	}
	obj["order"] = order
	return obj, nil
}

func canonicalRelated(rel Related) (ir.IRObject, error) {
	if ir.IsNull(rel.MasterKey) {
		return nil, fmt.Errorf("related query has no master key")
	}
	return ir.IRObject{
		"kind":     ir.IRString("related"),
		"relation": ir.IRString(rel.Relation),
		"side":     ir.IRString(rel.MasterSide),
		"key":      rel.MasterKey,
	}, nil
}

func canonicalComparison(op, field string, value ir.IRValue) ir.IRObject {
	obj := ir.IRObject{"op": ir.IRString(op), "field": ir.IRString(field)}
	if ir.IsNull(value) {
		obj["null"] = ir.IRBool(true)
	} else {
		obj["value"] = value
	}
	return obj
}

func canonicalPredicate(p Predicate) (ir.IRObject, error) {
	switch pred := p.(type) {
	case Equals:
		return canonicalComparison("eq", pred.Field, pred.Value), nil
	case *Equals:
		return canonicalComparison("eq", pred.Field, pred.Value), nil
	case NotEquals:
		return canonicalComparison("ne", pred.Field, pred.Value), nil
	case *NotEquals:
		return canonicalComparison("ne", pred.Field, pred.Value), nil
	case IsNull:
		return ir.IRObject{"op": ir.IRString("null"), "field": ir.IRString(pred.Field)}, nil
	case *IsNull:
		return ir.IRObject{"op": ir.IRString("null"), "field": ir.IRString(pred.Field)}, nil
	case And:
		return canonicalGroup("and", pred.Predicates)
	case *And:
		return canonicalGroup("and", pred.Predicates)
	case Or:
		return canonicalGroup("or", pred.Predicates)
	case *Or:
		return canonicalGroup("or", pred.Predicates)
	default:
		return nil, fmt.Errorf("unknown predicate type: %T", p)
	}
}

func canonicalGroup(op string, preds []Predicate) (ir.IRObject, error) {
	type item struct {
		obj ir.IRObject
		key string
	}
	items := make([]item, 0, len(preds))
	for _, p := range preds {
		c, err := canonicalPredicate(p)
		if err != nil {
			return nil, err
		}
		data, err := ir.MarshalCanonical(c)
		if err != nil {
			return nil, err
		}
		items = append(items, item{obj: c, key: string(data)})
	}
	slices.SortFunc(items, func(a, b item) int {
		switch {
		case a.key < b.key:
			return -1
		case a.key > b.key:
			return 1
		}
		return 0
	})
	args := make(ir.IRArray, len(items))
	for i, it := range items {
		args[i] = it.obj
	}
	return ir.IRObject{"op": ir.IRString(op), "args": args}, nil
}
