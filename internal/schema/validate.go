package schema

import (
	"fmt"

	"github.com/roach88/stead/internal/ir"
)

// Validation error codes (E120-E139)
const (
	ErrNoClasses          = "E120" // schema declares no class
	ErrMissingKey         = "E121" // primary-key field not declared
	ErrNullableKey        = "E122" // primary-key field admits null
	ErrUnknownReference   = "E123" // reference target class not declared
	ErrReferenceType      = "E124" // reference type differs from target key type
	ErrUnknownParent      = "E125" // extends names an undeclared class
	ErrInheritanceLoop    = "E126" // class is its own ancestor
	ErrDuplicateTable     = "E127" // two tables share a name in one data source
	ErrRelationSide       = "E128" // relation side names an undeclared class
	ErrRelationColumns    = "E129" // relation sides share a column
	ErrInheritedKeyChange = "E130" // child redeclares the key with another type
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled schema.
// Returns all errors found (does not fail-fast).
func Validate(s *ir.Schema) []ValidationError {
	var errs []ValidationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if len(s.Classes) == 0 {
		add(ErrNoClasses, "class", "at least one class is required")
	}

	tables := map[string]string{}
	claimTable := func(dataSource, table, owner string) {
		k := dataSource + "\x00" + table
		if prev, ok := tables[k]; ok {
			add(ErrDuplicateTable, owner, "table %q in data source %q is also used by %s", table, dataSource, prev)
			return
		}
		tables[k] = owner
	}

	for _, c := range s.Classes {
		path := "class." + c.Name

		key, ok := c.Field(c.PrimaryKey)
		switch {
		case !ok:
			add(ErrMissingKey, path+".key", "key field %q is not declared", c.PrimaryKey)
		case key.Nullable:
			add(ErrNullableKey, path+".fields."+key.Name, "key field must not admit null")
		}

		if c.Parent != "" {
			parent, ok := s.Class(c.Parent)
			switch {
			case !ok:
				add(ErrUnknownParent, path+".extends", "unknown parent class %q", c.Parent)
			case inheritanceLoop(s, c.Name):
				add(ErrInheritanceLoop, path+".extends", "class %s is its own ancestor", c.Name)
			default:
				pk := parent.KeyField()
				if ck, ok := c.Field(pk.Name); ok && ck.Type != pk.Type {
					add(ErrInheritedKeyChange, path+".fields."+pk.Name,
						"inherited key %q is %s, redeclared as %s", pk.Name, pk.Type, ck.Type)
				}
			}
		}

		for _, f := range c.References() {
			target, ok := s.Class(f.References)
			if !ok {
				add(ErrUnknownReference, path+".refs."+f.Name, "unknown class %q", f.References)
				continue
			}
			if kt := target.KeyField().Type; kt != "" && kt != f.Type {
				add(ErrReferenceType, path+".fields."+f.Name,
					"references %s whose key is %s, field is %s", target.Name, kt, f.Type)
			}
		}

		claimTable(c.DataSource, c.Table, path)
	}

	for _, r := range s.Relations {
		path := "relation." + r.Name
		for _, side := range []struct {
			name string
			side ir.RelationSide
		}{{"left", r.Left}, {"right", r.Right}} {
			if _, ok := s.Class(side.side.Class); !ok {
				add(ErrRelationSide, path+"."+side.name, "unknown class %q", side.side.Class)
			}
		}
		if r.Left.Column == r.Right.Column {
			add(ErrRelationColumns, path, "left and right share column %q", r.Left.Column)
		}
		claimTable(r.DataSource, r.Table, path)
	}

	return errs
}

func inheritanceLoop(s *ir.Schema, name string) bool {
	seen := map[string]bool{}
	c, ok := s.Class(name)
	for ok && c.Parent != "" {
		if c.Parent == name || seen[c.Parent] {
			return true
		}
		seen[c.Parent] = true
		c, ok = s.Class(c.Parent)
	}
	return false
}
