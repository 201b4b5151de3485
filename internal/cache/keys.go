package cache

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/stead/internal/ir"
)

func objectKey(class string, key ir.IRValue) string {
	return "obj:" + class + ":" + ir.KeyString(key)
}

func collectionKey(scope, signature string) string {
	return "col:" + scope + ":" + signature
}

func encodeRow(row ir.IRObject) ([]byte, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	return data, nil
}

func decodeRow(data []byte) (ir.IRObject, error) {
	var row ir.IRObject
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return row, nil
}

func encodeKeys(keys []ir.IRValue) ([]byte, error) {
	if keys == nil {
		keys = []ir.IRValue{}
	}
	data, err := ir.MarshalIRValue(ir.IRArray(keys))
	if err != nil {
		return nil, fmt.Errorf("encode keys: %w", err)
	}
	return data, nil
}

func decodeKeys(data []byte) ([]ir.IRValue, error) {
	var keys ir.IRArray
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("decode keys: %w", err)
	}
	return []ir.IRValue(keys), nil
}
