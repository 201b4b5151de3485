// Package engine implements the stead transaction engine.
//
// A Transaction tracks persistent objects between loads and a Commit. It is
// the only place objects are created, looked up and written.
//
// ARCHITECTURE:
//
// Identity Map:
// Every object is registered under (class, key) and under each ancestor
// class. Loads and reference lookups go through the map, so one key never
// yields two instances in the same transaction.
//
// Dirty Tracking:
// Set marks an object Dirty; CreateNew yields an Insert-mode object. Both
// join the dirty list, which drives precommit hooks, validation, the save
// phase and postcommit hooks.
//
// Commit Pipeline:
// 1. BeforeCommit hooks drain a FIFO work queue (bounded by a round quota)
// 2. Null constraints and Validate hooks run; violations are aggregated
// 3. A depth-first walk orders inserts after the inserts they reference
// 4. Relation journals flush their pending tuples
// 5. AfterCommit hooks run in dirty order
// 6. Data sources commit in name order
// 7. Written objects become Clean and are pushed to the CacheBridge
//
// Relation Journals and Views:
// Many-to-many changes are journaled per relation in a RelationTable.
// OneToMany and ManyToMany views load lazily, buffer changes made before
// the load, and are patched by journal and foreign-key notifications so
// they never re-query storage to stay consistent.
//
// Snapshots:
// Serialize and Deserialize move the whole transaction state through an XML
// document. The canonical form is byte-stable for equal states.
//
// DETERMINISM:
//
// Identity-map registration order decides the save walk, per-class
// listings and non-canonical snapshot order. Data sources are committed in
// name order. No map iteration order leaks into writes.
package engine
