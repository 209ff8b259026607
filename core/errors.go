package core

import "fmt"

// Code classifies an Error by its HTTP-style recovery semantics, per the
// error taxonomy: Validation, NotFound, Conflict, Permission, IO, Internal.
type Code int

const (
	CodeValidation Code = iota
	CodeNotFound
	CodeConflict
	CodePermission
	CodeIO
	CodeInternal
)

func (c Code) String() string {
	switch c {
	case CodeValidation:
		return "validation"
	case CodeNotFound:
		return "not_found"
	case CodeConflict:
		return "conflict"
	case CodePermission:
		return "permission"
	case CodeIO:
		return "io"
	default:
		return "internal"
	}
}

// HTTPStatus returns the HTTP status code this error taxonomy entry maps to.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return 400
	case CodeNotFound:
		return 404
	case CodeConflict:
		return 409
	case CodePermission:
		return 403
	case CodeIO:
		return 500
	default:
		return 500
	}
}

// Error is the taxonomy-tagged error type returned across modality
// backends, the coordinator and the transaction manager.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func wrapErr(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// Validationf builds a Validation-class error.
func Validationf(format string, args ...any) *Error {
	return newErr(CodeValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds a NotFound-class error.
func NotFoundf(format string, args ...any) *Error {
	return newErr(CodeNotFound, fmt.Sprintf(format, args...))
}

// Conflictf builds a Conflict-class error.
func Conflictf(format string, args ...any) *Error {
	return newErr(CodeConflict, fmt.Sprintf(format, args...))
}

// Permissionf builds a Permission-class error.
func Permissionf(format string, args ...any) *Error {
	return newErr(CodePermission, fmt.Sprintf(format, args...))
}

// IOErrorf builds an IO-class error.
func IOErrorf(format string, args ...any) *Error {
	return newErr(CodeIO, fmt.Sprintf(format, args...))
}

// Internalf builds an Internal-class error.
func Internalf(format string, args ...any) *Error {
	return newErr(CodeInternal, fmt.Sprintf(format, args...))
}

// Sentinel errors surfaced by specific components; callers use errors.Is/As
// against *Error's Code where possible, but some call sites (deadlock cycle,
// version conflict) need structured payloads attached below.

// DeadlockError carries the wait-for cycle that triggered detection.
type DeadlockError struct {
	Cycle []string
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("deadlock detected: cycle %v", e.Cycle)
}

// LockConflictError names the transaction currently blocking the request.
type LockConflictError struct {
	Blocker string
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("lock held by transaction %s", e.Blocker)
}

// VersionConflictError reports the expected vs. actual MVCC version found
// at Serializable commit-time validation.
type VersionConflictError struct {
	Entity, Modality string
	Expected, Actual uint64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s/%s: expected %d, actual %d",
		e.Entity, e.Modality, e.Expected, e.Actual)
}

// EntryTooLargeError is returned by the WAL writer when an entry's body
// exceeds MaxEntrySize.
type EntryTooLargeError struct {
	Size, Max int
}

func (e *EntryTooLargeError) Error() string {
	return fmt.Sprintf("wal entry too large: %d bytes exceeds max %d", e.Size, e.Max)
}

// ChainCorruptedError describes a provenance hash-chain break.
type ChainCorruptedError struct {
	Reason string
	Index  int
}

func (e *ChainCorruptedError) Error() string {
	return fmt.Sprintf("provenance chain corrupted at index %d: %s", e.Index, e.Reason)
}
