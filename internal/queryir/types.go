package queryir

import "github.com/roach88/stead/internal/ir"

// Query represents an abstract object load.
//
// This is a sealed interface - only types in this package implement it.
// Backends (SQL compiler, in-memory source, cache signature) type-switch
// over the concrete types:
//   - Select: objects of one class matching a filter
//   - Related: objects on the far side of a many-to-many relation
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition over an object's fields.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: field = literal
//   - NotEquals: field <> literal
//   - IsNull: field IS NULL
//   - And: all predicates true
//   - Or: any predicate true
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Order is one ORDER BY term.
type Order struct {
	Field string
	Desc  bool
}

// Select loads the objects of a class.
//
// Semantics:
//
//	SELECT * FROM <table of From> WHERE <Filter> ORDER BY <OrderBy> LIMIT <Limit>
//
// A nil Filter matches every row. Limit <= 0 means no limit. Backends always
// append the primary key to the ordering so results are deterministic.
type Select struct {
	From    string    // class name
	Filter  Predicate // nil = no filter
	OrderBy []Order
	Limit   int
}

func (Select) queryNode() {}

// Related loads the objects paired with MasterKey in a many-to-many relation.
//
// MasterSide names which end of the relation holds MasterKey ("left" or
// "right"); the result rows are objects of the opposite side's class.
type Related struct {
	Relation   string
	MasterSide string
	MasterKey  ir.IRValue
}

func (Related) queryNode() {}

// Relation side names.
const (
	SideLeft  = "left"
	SideRight = "right"
)

// Equals represents a field-equals-literal predicate.
//
// SQL semantics: a NULL field never equals anything, and comparing against
// an IRNull literal never matches. Use IsNull for null checks.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// NotEquals represents field <> literal. NULL fields never match.
type NotEquals struct {
	Field string
	Value ir.IRValue
}

func (NotEquals) predicateNode() {}

// IsNull matches rows whose field is NULL (or absent).
type IsNull struct {
	Field string
}

func (IsNull) predicateNode() {}

// And represents a conjunction. Empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or represents a disjunction. Empty Or is always false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Eq is shorthand for &Equals{Field: field, Value: value}.
func Eq(field string, value ir.IRValue) Predicate {
	return &Equals{Field: field, Value: value}
}

// AllOf is shorthand for &And{Predicates: preds}.
func AllOf(preds ...Predicate) Predicate {
	return &And{Predicates: preds}
}

// AnyOf is shorthand for &Or{Predicates: preds}.
func AnyOf(preds ...Predicate) Predicate {
	return &Or{Predicates: preds}
}
