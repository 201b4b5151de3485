package schema

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/stead/internal/ir"
)

// DefaultDataSource is used for classes and relations that name none.
const DefaultDataSource = "main"

// DefaultKey is the primary-key field name used when a class names none.
const DefaultKey = "id"

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// classDecl is a class as written, before inheritance is resolved.
type classDecl struct {
	info      ir.ClassInfo
	keySet    bool
	sourceSet bool
}

var lower = cases.Lower(language.Und)

// Compile reads every class and relation from a CUE value and resolves
// inheritance. The result is not validated; call Validate for that.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(src)
//	s, err := Compile(v)
func Compile(v cue.Value) (*ir.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	decls, err := parseClasses(v)
	if err != nil {
		return nil, err
	}
	relations, err := parseRelations(v)
	if err != nil {
		return nil, err
	}

	s := &ir.Schema{Classes: resolveInheritance(decls), Relations: relations}
	return s, nil
}

func parseClasses(v cue.Value) ([]classDecl, error) {
	classVal := v.LookupPath(cue.ParsePath("class"))
	if !classVal.Exists() {
		return []classDecl{}, nil
	}
	iter, err := classVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var decls []classDecl
	for iter.Next() {
		d, err := parseClass(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	return decls, nil
}

func parseClass(name string, v cue.Value) (classDecl, error) {
	d := classDecl{info: ir.ClassInfo{
		Name:       name,
		Table:      lower.String(name),
		DataSource: DefaultDataSource,
		PrimaryKey: DefaultKey,
	}}

	var err error
	if d.info.Table, _, err = optionalString(v, "table", d.info.Table); err != nil {
		return d, err
	}
	if d.info.DataSource, d.sourceSet, err = optionalString(v, "datasource", d.info.DataSource); err != nil {
		return d, err
	}
	if d.info.PrimaryKey, d.keySet, err = optionalString(v, "key", d.info.PrimaryKey); err != nil {
		return d, err
	}
	if d.info.Parent, _, err = optionalString(v, "extends", ""); err != nil {
		return d, err
	}
	if cacheVal := v.LookupPath(cue.ParsePath("cacheable")); cacheVal.Exists() {
		if d.info.Cacheable, err = cacheVal.Bool(); err != nil {
			return d, formatCUEError(err)
		}
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if fieldsVal.Exists() {
		fieldIter, err := fieldsVal.Fields()
		if err != nil {
			return d, formatCUEError(err)
		}
		for fieldIter.Next() {
			typ, nullable, err := extractFieldType(fieldIter.Value())
			if err != nil {
				return d, err
			}
			d.info.Fields = append(d.info.Fields, ir.FieldInfo{
				Name:     fieldIter.Label(),
				Type:     typ,
				Nullable: nullable,
			})
		}
	}

	refsVal := v.LookupPath(cue.ParsePath("refs"))
	if refsVal.Exists() {
		refIter, err := refsVal.Fields()
		if err != nil {
			return d, formatCUEError(err)
		}
		for refIter.Next() {
			target, err := refIter.Value().String()
			if err != nil {
				return d, formatCUEError(err)
			}
			i := slices.IndexFunc(d.info.Fields, func(f ir.FieldInfo) bool { return f.Name == refIter.Label() })
			if i < 0 {
				return d, &CompileError{
					Field:   fmt.Sprintf("class.%s.refs.%s", name, refIter.Label()),
					Message: "reference names an undeclared field",
					Pos:     refIter.Value().Pos(),
				}
			}
			d.info.Fields[i].References = target
		}
	}
	return d, nil
}

// resolveInheritance prepends ancestor fields to every class. A class
// inherits its parent's key and data source unless it sets its own.
// Unknown parents and inheritance loops are left for Validate to report.
func resolveInheritance(decls []classDecl) []ir.ClassInfo {
	byName := map[string]int{}
	for i, d := range decls {
		byName[d.info.Name] = i
	}

	resolved := make([]*ir.ClassInfo, len(decls))
	visiting := make([]bool, len(decls))
	var resolve func(i int) *ir.ClassInfo
	resolve = func(i int) *ir.ClassInfo {
		if resolved[i] != nil {
			return resolved[i]
		}
		d := decls[i]
		c := d.info
		c.Fields = slices.Clone(d.info.Fields)
		p, ok := byName[c.Parent]
		if c.Parent == "" || !ok || visiting[i] {
			resolved[i] = &c
			return &c
		}

		visiting[i] = true
		parent := resolve(p)
		visiting[i] = false

		if !d.keySet {
			c.PrimaryKey = parent.PrimaryKey
		}
		if !d.sourceSet {
			c.DataSource = parent.DataSource
		}
		fields := slices.Clone(parent.Fields)
		for _, f := range c.Fields {
			if j := slices.IndexFunc(fields, func(pf ir.FieldInfo) bool { return pf.Name == f.Name }); j >= 0 {
				// Redeclared fields keep their inherited position.
				fields[j] = f
				continue
			}
			fields = append(fields, f)
		}
		c.Fields = fields
		resolved[i] = &c
		return &c
	}

	out := make([]ir.ClassInfo, len(decls))
	for i := range decls {
		out[i] = *resolve(i)
	}
	return out
}

func parseRelations(v cue.Value) ([]ir.RelationInfo, error) {
	relVal := v.LookupPath(cue.ParsePath("relation"))
	if !relVal.Exists() {
		return []ir.RelationInfo{}, nil
	}
	iter, err := relVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rels []ir.RelationInfo
	for iter.Next() {
		name := iter.Label()
		rv := iter.Value()
		rel := ir.RelationInfo{Name: name}
		if rel.Table, _, err = optionalString(rv, "table", lower.String(name)); err != nil {
			return nil, err
		}
		if rel.DataSource, _, err = optionalString(rv, "datasource", DefaultDataSource); err != nil {
			return nil, err
		}
		if rel.Left, err = parseSide(name, "left", rv); err != nil {
			return nil, err
		}
		if rel.Right, err = parseSide(name, "right", rv); err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

func parseSide(relation, side string, v cue.Value) (ir.RelationSide, error) {
	sv := v.LookupPath(cue.ParsePath(side))
	if !sv.Exists() {
		return ir.RelationSide{}, &CompileError{
			Field:   fmt.Sprintf("relation.%s.%s", relation, side),
			Message: side + " side is required",
			Pos:     v.Pos(),
		}
	}
	class, err := sv.LookupPath(cue.ParsePath("class")).String()
	if err != nil {
		return ir.RelationSide{}, formatCUEError(err)
	}
	column, _, err := optionalString(sv, "column", lower.String(class)+"_id")
	if err != nil {
		return ir.RelationSide{}, err
	}
	return ir.RelationSide{Class: class, Column: column}, nil
}

func optionalString(v cue.Value, path, def string) (string, bool, error) {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return def, false, nil
	}
	s, err := sv.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

// extractFieldType converts a CUE field type to an IR type name.
// A type that admits null makes the field nullable. Floats are forbidden.
func extractFieldType(v cue.Value) (string, bool, error) {
	kind := v.IncompleteKind()
	nullable := kind&cue.NullKind != 0
	kind &^= cue.NullKind

	switch kind {
	case cue.StringKind:
		return ir.TypeString, nullable, nil
	case cue.IntKind:
		return ir.TypeInt, nullable, nil
	case cue.BoolKind:
		return ir.TypeBool, nullable, nil
	case cue.FloatKind, cue.NumberKind:
		return "", false, &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", false, &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported field type: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
