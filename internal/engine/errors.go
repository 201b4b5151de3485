package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/stead/internal/ir"
)

// ErrorCode categorizes engine errors for callers that map them to exit
// codes or wire responses.
type ErrorCode string

const (
	// ErrCodeDuplicateKey indicates a second live instance for (class, key).
	ErrCodeDuplicateKey ErrorCode = "DUPLICATE_KEY"

	// ErrCodeCyclicReference indicates an unresolvable insert-mode reference cycle.
	ErrCodeCyclicReference ErrorCode = "CYCLIC_REFERENCE"

	// ErrCodeValidation indicates null-constraint or assertion failures.
	ErrCodeValidation ErrorCode = "VALIDATION_FAILED"

	// ErrCodeNotSupported indicates mutation of a read-only collection.
	ErrCodeNotSupported ErrorCode = "NOT_SUPPORTED"

	// ErrCodeDeserialization indicates a malformed or unknown snapshot element.
	ErrCodeDeserialization ErrorCode = "DESERIALIZATION_FAILED"

	// ErrCodePrecommitQuota indicates precommit hooks kept dirtying objects.
	ErrCodePrecommitQuota ErrorCode = "PRECOMMIT_QUOTA_EXCEEDED"

	// ErrCodeUnknownClass indicates a class or relation name missing from the schema.
	ErrCodeUnknownClass ErrorCode = "UNKNOWN_CLASS"

	// ErrCodeObjectNotFound indicates a load found no row for a key.
	ErrCodeObjectNotFound ErrorCode = "OBJECT_NOT_FOUND"
)

// Identity names one persistent object.
type Identity struct {
	Class string
	Key   ir.IRValue
}

// String renders the identity as Class(key).
func (id Identity) String() string {
	if text, err := ir.FormatScalar(id.Key); err == nil {
		return fmt.Sprintf("%s(%s)", id.Class, text)
	}
	return fmt.Sprintf("%s(%s)", id.Class, ir.KeyString(id.Key))
}

// DuplicateKeyError is returned by IdentityMap.Register when an entry
// already exists for the class (or one of its ancestors) and key.
// The existing instance stays registered.
type DuplicateKeyError struct {
	Class string // alias on which the collision was detected
	Key   ir.IRValue
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s: duplicate key %s", ErrCodeDuplicateKey, Identity{e.Class, e.Key})
}

// CyclicReferenceError is returned by Commit when insert-mode objects
// reference each other in a cycle. No row is written.
type CyclicReferenceError struct {
	From  Identity // object whose reference closes the cycle
	To    Identity // object already on the save path
	Field string   // reference field on From
}

func (e *CyclicReferenceError) Error() string {
	return fmt.Sprintf("%s: %s.%s references %s which is still being inserted",
		ErrCodeCyclicReference, e.From, e.Field, e.To)
}

// Violation is one failed constraint found during commit validation.
type Violation struct {
	Object  Identity
	Field   string // empty for object-level assertions
	Message string
}

func (v Violation) String() string {
	if v.Field == "" {
		return fmt.Sprintf("%s: %s", v.Object, v.Message)
	}
	return fmt.Sprintf("%s.%s: %s", v.Object, v.Field, v.Message)
}

// ValidationError aggregates every violation found before any write.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%s: %d violation(s): %s", ErrCodeValidation, len(e.Violations), strings.Join(parts, "; "))
}

// NotSupportedError is returned when mutating a read-only collection.
type NotSupportedError struct {
	Op string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("%s: %s on read-only snapshot", ErrCodeNotSupported, e.Op)
}

// DeserializationError is returned by Deserialize for unknown elements,
// unknown classes or relations, and malformed values.
type DeserializationError struct {
	Element string
	Message string
	Err     error
}

func (e *DeserializationError) Error() string {
	msg := fmt.Sprintf("%s: <%s>: %s", ErrCodeDeserialization, e.Element, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// PrecommitQuotaError is returned when precommit hooks run more rounds than
// allowed, usually because a hook dirties a fresh object every time.
type PrecommitQuotaError struct {
	Rounds int
	Limit  int
}

func (e *PrecommitQuotaError) Error() string {
	return fmt.Sprintf("%s: precommit ran %d rounds > %d limit", ErrCodePrecommitQuota, e.Rounds, e.Limit)
}

// UnknownClassError is returned for class or relation names missing from the schema.
type UnknownClassError struct {
	Name string
}

func (e *UnknownClassError) Error() string {
	return fmt.Sprintf("%s: %q", ErrCodeUnknownClass, e.Name)
}

// ObjectNotFoundError is returned when loading a key with no stored row.
type ObjectNotFoundError struct {
	Object Identity
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCodeObjectNotFound, e.Object)
}

// IsDuplicateKeyError returns true if the error is a DuplicateKeyError.
// Uses errors.As to handle wrapped errors.
func IsDuplicateKeyError(err error) bool {
	var e *DuplicateKeyError
	return errors.As(err, &e)
}

// IsCyclicReferenceError returns true if the error is a CyclicReferenceError.
func IsCyclicReferenceError(err error) bool {
	var e *CyclicReferenceError
	return errors.As(err, &e)
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsNotSupportedError returns true if the error is a NotSupportedError.
func IsNotSupportedError(err error) bool {
	var e *NotSupportedError
	return errors.As(err, &e)
}

// IsDeserializationError returns true if the error is a DeserializationError.
func IsDeserializationError(err error) bool {
	var e *DeserializationError
	return errors.As(err, &e)
}

// IsPrecommitQuotaError returns true if the error is a PrecommitQuotaError.
func IsPrecommitQuotaError(err error) bool {
	var e *PrecommitQuotaError
	return errors.As(err, &e)
}

// IsUnknownClassError returns true if the error is an UnknownClassError.
func IsUnknownClassError(err error) bool {
	var e *UnknownClassError
	return errors.As(err, &e)
}

// IsObjectNotFoundError returns true if the error is an ObjectNotFoundError.
func IsObjectNotFoundError(err error) bool {
	var e *ObjectNotFoundError
	return errors.As(err, &e)
}

// Code returns the ErrorCode of an engine error, or "" for other errors.
// A DeserializationError wins over the error it wraps.
func Code(err error) ErrorCode {
	switch {
	case IsDeserializationError(err):
		return ErrCodeDeserialization
	case IsDuplicateKeyError(err):
		return ErrCodeDuplicateKey
	case IsCyclicReferenceError(err):
		return ErrCodeCyclicReference
	case IsValidationError(err):
		return ErrCodeValidation
	case IsNotSupportedError(err):
		return ErrCodeNotSupported
	case IsPrecommitQuotaError(err):
		return ErrCodePrecommitQuota
	case IsUnknownClassError(err):
		return ErrCodeUnknownClass
	case IsObjectNotFoundError(err):
		return ErrCodeObjectNotFound
	default:
		return ""
	}
}
