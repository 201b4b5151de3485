// Package queryir provides the abstract query representation used to load
// persistent objects.
//
// Queries are produced by callers (collection views, the CLI, scenarios) and
// consumed by three backends that each type-switch over the same sealed sum
// type:
//
//	[Query IR] → [querysql]     SQL text + parameters for the SQLite store
//	           → [Eval/Apply]   in-memory matching for identity-map scans
//	           → [Signature]    canonical hash for the collection cache
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package can implement them, so backends can switch
// exhaustively:
//
//	switch p := pred.(type) {
//	case *Equals:
//	case *And:
//	...
//	}
//
// Both value and pointer forms of every node are accepted.
//
// NULL SEMANTICS:
//
// Comparisons follow SQL: a NULL field never equals or differs from anything,
// and a literal IRNull never matches. IsNull is the only way to test for NULL.
// Eval and the SQL backend agree on this, which keeps identity-map scans and
// database loads consistent.
//
// All literal values are ir.IRValue types (no floats).
package queryir
