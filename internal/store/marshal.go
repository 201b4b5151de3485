package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/stead/internal/ir"
)

// sqlToIRValue converts a scanned column into the IR type declared by field.
// SQLite has no boolean storage class; bools come back as 0/1 integers.
func sqlToIRValue(field ir.FieldInfo, raw any) (ir.IRValue, error) {
	if raw == nil {
		return ir.IRNull{}, nil
	}

	switch field.Type {
	case ir.TypeString:
		switch v := raw.(type) {
		case string:
			return ir.IRString(v), nil
		case []byte:
			return ir.IRString(string(v)), nil
		}
	case ir.TypeInt:
		if v, ok := raw.(int64); ok {
			return ir.IRInt(v), nil
		}
	case ir.TypeBool:
		switch v := raw.(type) {
		case int64:
			return ir.IRBool(v != 0), nil
		case bool:
			return ir.IRBool(v), nil
		}
	}
	return nil, fmt.Errorf("column %s: cannot convert %T to %s", field.Name, raw, field.Type)
}

// scanObject builds an IRObject from scanned columns in class field order.
func scanObject(class *ir.ClassInfo, raw []any) (ir.IRObject, error) {
	if len(raw) != len(class.Fields) {
		return nil, fmt.Errorf("scan %s: got %d columns, want %d", class.Name, len(raw), len(class.Fields))
	}
	obj := make(ir.IRObject, len(class.Fields))
	for i, f := range class.Fields {
		v, err := sqlToIRValue(f, raw[i])
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", class.Name, err)
		}
		obj[f.Name] = v
	}
	return obj, nil
}

// schemaDigest hashes the JSON form of the schema metadata.
// encoding/json sorts map keys and keeps struct field order, so the
// encoding is stable for equal schemas.
func schemaDigest(schema *ir.Schema) (string, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	return ir.SnapshotDigest(data), nil
}
