package core

import (
	"errors"
	"fmt"
	"time"
)

// SchemaErrorKind categorizes schema validation failures.
type SchemaErrorKind string

const (
	// ErrKindMissingRequired indicates a required property is absent.
	ErrKindMissingRequired SchemaErrorKind = "MISSING_REQUIRED"

	// ErrKindTypeMismatch indicates a property value has the wrong type.
	ErrKindTypeMismatch SchemaErrorKind = "TYPE_MISMATCH"

	// ErrKindUnknownProperty indicates a property outside the schema
	// (rejected only when the registry runs in strict mode, or when the
	// property is reserved for the engine, like composite_id).
	ErrKindUnknownProperty SchemaErrorKind = "UNKNOWN_PROPERTY"

	// ErrKindDisallowedEndpointPair indicates an edge connects labels
	// outside its registered from_labels x to_labels permission.
	ErrKindDisallowedEndpointPair SchemaErrorKind = "DISALLOWED_ENDPOINT_PAIR"

	// ErrKindUnknownLabel indicates an unregistered node label or edge type.
	ErrKindUnknownLabel SchemaErrorKind = "UNKNOWN_LABEL"
)

// SchemaError reports that client input violates the registered schema.
// Never retried; returned to the caller as-is.
type SchemaError struct {
	Kind   SchemaErrorKind
	Label  string // node label or edge type under validation
	Field  string // offending property, when applicable
	Detail string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Label)
	if e.Field != "" {
		msg += "." + e.Field
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// NotFoundError reports an absent entity. DeletedBefore distinguishes an
// entity that once existed but was tombstoned before the query instant;
// DeletedAt then carries the tombstone's valid_from for audit use.
type NotFoundError struct {
	Kind          EntityKind
	ID            string
	DeletedBefore bool
	DeletedAt     time.Time
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.DeletedBefore {
		return fmt.Sprintf("%s not found: %s (deleted at %s)", e.Kind, e.ID, e.DeletedAt.Format(time.RFC3339Nano))
	}
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ErrConflict signals an optimistic concurrency collision: the open version
// a writer read was closed by another writer before the commit. Transient;
// the engine retries it with bounded backoff.
var ErrConflict = errors.New("version conflict")

// ErrCompositeMember reports an attempt to delete a single member of a
// composite group. Members change only through group operations.
var ErrCompositeMember = errors.New("edge belongs to a composite group")

// EndpointGoneError reports that an edge endpoint vanished between
// validation and commit. Not retried blindly: the same edge spec will fail
// again unless the caller re-resolves endpoints.
type EndpointGoneError struct {
	EdgeID string // empty when the edge was still being created
	NodeID string
}

// Error implements the error interface.
func (e *EndpointGoneError) Error() string {
	if e.EdgeID != "" {
		return fmt.Sprintf("edge %s endpoint gone: %s", e.EdgeID, e.NodeID)
	}
	return fmt.Sprintf("edge endpoint gone: %s", e.NodeID)
}

// IdentityConflictError reports an identifier collision. Effectively
// unreachable given 128-bit random identifiers; fatal and logged when seen.
type IdentityConflictError struct {
	Kind EntityKind
	ID   string
}

// Error implements the error interface.
func (e *IdentityConflictError) Error() string {
	return fmt.Sprintf("%s id already in use: %s", e.Kind, e.ID)
}

// ConcurrencyExhaustedError reports that the retry budget was spent without
// a successful commit. Definitive; surfaced to the caller, never swallowed.
type ConcurrencyExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *ConcurrencyExhaustedError) Error() string {
	return fmt.Sprintf("retry budget exhausted after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap exposes the last conflict for errors.Is checks.
func (e *ConcurrencyExhaustedError) Unwrap() error { return e.Last }

// IsSchemaError reports whether err is a schema validation failure.
// Uses errors.As to handle wrapped errors.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IsNotFound reports whether err is an absent-entity failure.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a transient optimistic concurrency
// collision.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsCompositeMember reports whether err is a rejected single-member
// mutation.
func IsCompositeMember(err error) bool {
	return errors.Is(err, ErrCompositeMember)
}

// IsEndpointGone reports whether err is an endpoint-vanished failure.
func IsEndpointGone(err error) bool {
	var eg *EndpointGoneError
	return errors.As(err, &eg)
}

// IsIdentityConflict reports whether err is an identifier collision.
func IsIdentityConflict(err error) bool {
	var ic *IdentityConflictError
	return errors.As(err, &ic)
}

// IsConcurrencyExhausted reports whether err is a spent retry budget.
func IsConcurrencyExhausted(err error) bool {
	var ce *ConcurrencyExhaustedError
	return errors.As(err, &ce)
}
