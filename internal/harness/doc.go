// Package harness runs scripted transaction scenarios against a schema.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: group_membership
//	description: "Moving a contact between groups keeps both views consistent"
//	schema: ../schema            # CUE schema directory, relative to this file
//	cache: false                 # share an in-memory cache between transactions
//	seed:
//	  - class: Group
//	    row: {id: g, name: Friends}
//	  - relation: Membership
//	    left: g
//	    right: C1
//	steps:
//	  - op: get
//	    class: Contact
//	    key: C1
//	  - op: add_member
//	    class: Group
//	    key: g
//	    view: {relation: Membership, side: left}
//	    member: C4
//	  - op: commit
//	    expect_error: CYCLIC_REFERENCE
//	assertions:
//	  - type: members
//	    class: Group
//	    key: g
//	    view: {class: Contact, field: group}
//	    members: [C1, C2]
//
// # Steps
//
//   - get, create, set: load, create or modify class/key
//   - add_member, remove_member, load_view: act on a collection of class/key
//   - commit, rollback
//   - begin: close the transaction and start a fresh one
//   - handoff: serialize the transaction and deserialize it into a fresh one
//
// A step with expect_error must fail with that engine error code, or with an
// error whose message contains it.
//
// # Assertion Types
//
//   - object_state: state of a registered object (new, clean, dirty, insert)
//   - field_values: subset match on an object's fields
//   - members: member keys (as a set) and/or count of a collection
//   - stored_rows, tuple_count: committed rows in the in-memory data sources
//   - dirty_count: size of the dirty list
//   - ops: exact operation log of one data source
//
// # Deterministic Testing
//
// Every run uses fresh in-memory data sources, sequential transaction ids
// (tx-1, tx-2, ...) and a logical clock for step sequence numbers, so the
// final canonical snapshot can be compared against a golden file.
package harness
