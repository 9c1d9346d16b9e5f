// Package catalog implements spec.md §3/§4.3/§4.4/§4.5: the authoritative
// in-memory map from relation name to persistent relation handle, the
// constraint engine, and the mutating handle operations. It is modeled
// directly on the teacher's storage package (storage/errors.go,
// storage/datastore.go) with ErrCode/Error generalized from document paths
// to relation names and rows.
package catalog

import (
	"errors"
	"fmt"

	"github.com/bitdancer/dinsd/txn"
)

// ErrCode enumerates the error kinds from spec.md §7.
type ErrCode int

const (
	// InternalErr indicates an unexpected internal failure.
	InternalErr ErrCode = iota

	// DisconnectedErr — operation on a closed database or a handle
	// outliving its database.
	DisconnectedErr

	// NameInvalidErr — relation name begins with underscore or is not an
	// identifier.
	NameInvalidErr

	// RelationExistsErr — create() named a relation already in the catalog.
	RelationExistsErr

	// UnknownRelationErr — operation names a relation absent from the
	// catalog.
	UnknownRelationErr

	// UnknownConstraintErr — removal names a constraint absent from the
	// relation.
	UnknownConstraintErr

	// HeaderMismatchErr — assigned value's header differs from target
	// header.
	HeaderMismatchErr

	// TypeMismatchErr — assigned value is not a relation at all.
	TypeMismatchErr

	// RowConstraintViolatedErr — a row predicate would be violated.
	RowConstraintViolatedErr

	// KeyViolatedErr — a key declaration would be violated.
	KeyViolatedErr

	// PredicateNotSerializableErr — supplied predicate cannot be
	// represented as stored source text.
	PredicateNotSerializableErr

	// CommitFailedErr — store adapter rejected the flush.
	CommitFailedErr
)

func (c ErrCode) String() string {
	switch c {
	case DisconnectedErr:
		return "disconnected"
	case NameInvalidErr:
		return "name-invalid"
	case RelationExistsErr:
		return "relation-exists"
	case UnknownRelationErr:
		return "unknown-relation"
	case UnknownConstraintErr:
		return "unknown-constraint"
	case HeaderMismatchErr:
		return "header-mismatch"
	case TypeMismatchErr:
		return "type-mismatch"
	case RowConstraintViolatedErr:
		return "row-constraint-violated"
	case KeyViolatedErr:
		return "key-violated"
	case PredicateNotSerializableErr:
		return "predicate-not-serializable"
	case CommitFailedErr:
		return "commit-failed"
	default:
		return "internal"
	}
}

// Error is the error type every catalog and facade operation returns,
// modeled on the teacher's storage.Error.
type Error struct {
	Code    ErrCode
	Message string

	// Additional context, populated depending on Code.
	Relation       string
	ConstraintName string
	PredicateSrc   string
	Row            map[string]string   // string-rendered offending row, for diagnostics
	Rows           []map[string]string // offending rows for a key violation
	KeyAttrs       []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("dinsd: %s: %s", e.Code, e.Message)
}

// Is reports whether target is an *Error with the same Code, so errors.Is
// matches two Errors by kind regardless of their message or context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func disconnectedErr() *Error {
	return &Error{Code: DisconnectedErr, Message: "database has been closed"}
}

// Disconnected returns the disconnected-kind Error for an operation
// attempted on a closed database, spec.md §7. Exported so the root dinsd
// facade can report it without duplicating the Error construction.
func Disconnected() *Error {
	return disconnectedErr()
}

func nameInvalidErr(name string) *Error {
	return &Error{Code: NameInvalidErr, Message: fmt.Sprintf("invalid relation name %q", name), Relation: name}
}

func relationExistsErr(name string) *Error {
	return &Error{Code: RelationExistsErr, Message: fmt.Sprintf("relation %q already exists", name), Relation: name}
}

func unknownRelationErr(name string) *Error {
	return &Error{Code: UnknownRelationErr, Message: fmt.Sprintf("no such relation %q", name), Relation: name}
}

func unknownConstraintErr(rel, cname string) *Error {
	return &Error{
		Code:           UnknownConstraintErr,
		Message:        fmt.Sprintf("relation %q has no constraint named %q", rel, cname),
		Relation:       rel,
		ConstraintName: cname,
	}
}

func headerMismatchErr(name string) *Error {
	return &Error{Code: HeaderMismatchErr, Message: fmt.Sprintf("value's header does not match relation %q's declared header", name), Relation: name}
}

func typeMismatchErr(name string, got any) *Error {
	return &Error{Code: TypeMismatchErr, Message: fmt.Sprintf("value assigned to %q is not a relation (got %T)", name, got), Relation: name}
}

func rowConstraintViolatedErr(relName, cname, src string, row map[string]string) *Error {
	return &Error{
		Code:           RowConstraintViolatedErr,
		Message:        fmt.Sprintf("row violates constraint %q (%s) on relation %q", cname, src, relName),
		Relation:       relName,
		ConstraintName: cname,
		PredicateSrc:   src,
		Row:            row,
	}
}

func keyViolatedErr(relName string, keyAttrs []string, rows []map[string]string) *Error {
	return &Error{
		Code:     KeyViolatedErr,
		Message:  fmt.Sprintf("key %v would be violated on relation %q", keyAttrs, relName),
		Relation: relName,
		KeyAttrs: keyAttrs,
		Rows:     rows,
	}
}

func commitFailedErr(err error) *Error {
	return &Error{Code: CommitFailedErr, Message: err.Error()}
}

// WrapFinishErr normalizes whatever (*txn.Manager).Finish returns into the
// single *Error type every other catalog/facade operation returns, per
// spec.md §7: all ten error kinds, including commit-failed, are ErrCode
// values on one Error type, never a bare txn-package error escaping to
// callers.
func WrapFinishErr(err error) error {
	if err == nil {
		return nil
	}
	var cfe *txn.CommitFailedError
	if errors.As(err, &cfe) {
		return commitFailedErr(cfe.Err)
	}
	return err
}
