// Package ir provides the value and schema types shared by every stead package.
//
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Object keys and predicate signatures use RFC 8785 canonical JSON
//   - Schema metadata is plain data; compilation lives in internal/schema
package ir
