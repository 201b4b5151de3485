// Package schema compiles CUE class and relation declarations into the
// ir.Schema the engine runs on.
//
// A schema directory declares classes under `class` and many-to-many
// relations under `relation`:
//
//	class: Group: {
//		cacheable: true
//		fields: {
//			id:   string
//			name: string | null
//		}
//	}
//	class: Contact: {
//		fields: {
//			id:    string
//			name:  string
//			group: string | null
//		}
//		refs: group: "Group"
//	}
//	relation: Membership: {
//		left:  {class: "Group", column: "group_id"}
//		right: {class: "Contact", column: "contact_id"}
//	}
//
// A field whose type admits null is nullable. `key` names the primary key
// (default "id"), `table` the storage table (default: the lower-cased class
// name), `datasource` the data source (default "main"). `extends` names a
// parent class whose fields, key and data source are inherited.
//
// Compile builds the schema. Validate reports every structural problem at
// once. AnalyzeCycles warns about classes that can never be inserted because
// their non-nullable references form a cycle.
package schema
