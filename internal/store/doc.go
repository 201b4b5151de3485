// Package store provides the SQLite-backed DataSource.
//
// One Store owns one database file. The tables of every class and relation
// whose metadata names the store's data source are created by EnsureSchema:
//   - one table per concrete class, holding inherited fields too
//   - one link table per many-to-many relation, keyed by both columns
//
// # Units of work
//
// Open begins a sql.Tx; all writes go through it and loads observe it.
// Commit and Rollback end it. Writes outside a unit of work are rejected.
//
// # Deterministic results
//
// Every SELECT ends with the primary key as tiebreaker (COLLATE BINARY for
// text keys) so loads return identical order across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// SQL text comes from internal/querysql; this package only executes it.
package store
