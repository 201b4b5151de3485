package ir

import "slices"

// FieldInfo describes one persistent field of a class.
type FieldInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"` // "string", "int", "bool"
	Nullable   bool   `json:"nullable,omitempty"`
	References string `json:"references,omitempty"` // target class for outer references
}

// IsReference reports whether the field is an outer reference.
func (f FieldInfo) IsReference() bool {
	return f.References != ""
}

// ClassInfo describes a persistent class after inheritance resolution.
// Fields holds ancestor fields first, in declaration order.
type ClassInfo struct {
	Name       string      `json:"name"`
	Table      string      `json:"table"`
	DataSource string      `json:"datasource"`
	Parent     string      `json:"parent,omitempty"`
	PrimaryKey string      `json:"primary_key"`
	Fields     []FieldInfo `json:"fields"`
	Cacheable  bool        `json:"cacheable,omitempty"`
}

// Field looks up a field by name.
func (c *ClassInfo) Field(name string) (FieldInfo, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// KeyField returns the primary-key field.
func (c *ClassInfo) KeyField() FieldInfo {
	f, _ := c.Field(c.PrimaryKey)
	return f
}

// References returns the outer-reference fields in declaration order.
func (c *ClassInfo) References() []FieldInfo {
	refs := []FieldInfo{}
	for _, f := range c.Fields {
		if f.IsReference() {
			refs = append(refs, f)
		}
	}
	return refs
}

// RelationSide names one end of a many-to-many relation: the referenced class
// and the link-table column holding its key.
type RelationSide struct {
	Class  string `json:"class"`
	Column string `json:"column"`
}

// RelationInfo describes a many-to-many relation stored in a link table.
type RelationInfo struct {
	Name       string       `json:"name"`
	Table      string       `json:"table"`
	DataSource string       `json:"datasource"`
	Left       RelationSide `json:"left"`
	Right      RelationSide `json:"right"`
}

// Schema is the compiled class and relation metadata.
type Schema struct {
	Classes   []ClassInfo    `json:"classes"`
	Relations []RelationInfo `json:"relations"`
}

// Class looks up a class by name.
func (s *Schema) Class(name string) (*ClassInfo, bool) {
	for i := range s.Classes {
		if s.Classes[i].Name == name {
			return &s.Classes[i], true
		}
	}
	return nil, false
}

// Relation looks up a relation by name.
func (s *Schema) Relation(name string) (*RelationInfo, bool) {
	for i := range s.Relations {
		if s.Relations[i].Name == name {
			return &s.Relations[i], true
		}
	}
	return nil, false
}

// Ancestors returns the parent chain of a class, nearest first.
// Stops on unknown parents and on loops.
func (s *Schema) Ancestors(name string) []string {
	out := []string{}
	seen := map[string]bool{name: true}
	c, ok := s.Class(name)
	for ok && c.Parent != "" && !seen[c.Parent] {
		out = append(out, c.Parent)
		seen[c.Parent] = true
		c, ok = s.Class(c.Parent)
	}
	return out
}

// IsA reports whether class is name or descends from it.
func (s *Schema) IsA(class, name string) bool {
	return class == name || slices.Contains(s.Ancestors(class), name)
}

// Descendants returns every class that has name among its ancestors.
func (s *Schema) Descendants(name string) []string {
	out := []string{}
	for _, c := range s.Classes {
		if c.Name != name && s.IsA(c.Name, name) {
			out = append(out, c.Name)
		}
	}
	return out
}

// DataSources returns the distinct data source names used by the schema, sorted.
func (s *Schema) DataSources() []string {
	set := map[string]bool{}
	for _, c := range s.Classes {
		set[c.DataSource] = true
	}
	for _, r := range s.Relations {
		set[r.DataSource] = true
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
