package bunquery

import (
	"errors"
	"fmt"

	"github.com/kartikbazzad/bunbase/bunquery/internal/exec"
	"github.com/kartikbazzad/bunbase/bunquery/internal/fts"
	"github.com/kartikbazzad/bunbase/bunquery/internal/index"
	"github.com/kartikbazzad/bunbase/bunquery/internal/query"
	"github.com/kartikbazzad/bunbase/bunquery/storage"
)

// ErrorDomain tells the engine's own errors apart from errors forwarded
// from the document store.
type ErrorDomain int

const (
	QueryDomain ErrorDomain = iota + 1
	StorageDomain
)

func (d ErrorDomain) String() string {
	if d == StorageDomain {
		return "storage"
	}
	return "query"
}

// ErrorCode classifies an Error within its domain.
type ErrorCode int

const (
	// ErrInvalidQuery rejects a query or index definition at compile time.
	ErrInvalidQuery ErrorCode = iota + 1
	// ErrBinding reports a parameter with no supplied value, or malformed
	// bindings.
	ErrBinding
	// ErrColumnOutOfRange is returned for a column index outside WHAT.
	ErrColumnOutOfRange
	// ErrNotUsable is returned when a freed or exhausted object is used.
	ErrNotUsable
	// ErrNoSuchIndex is returned when a MATCH index was dropped after the
	// query was compiled.
	ErrNoSuchIndex
	ErrIndexExists
	ErrNotFound
	ErrConflict
	ErrStorage
)

var codeNames = map[ErrorCode]string{
	ErrInvalidQuery:     "invalid query",
	ErrBinding:          "binding error",
	ErrColumnOutOfRange: "column out of range",
	ErrNotUsable:        "not usable",
	ErrNoSuchIndex:      "no such index",
	ErrIndexExists:      "index exists",
	ErrNotFound:         "not found",
	ErrConflict:         "conflict",
	ErrStorage:          "storage error",
}

func (c ErrorCode) String() string { return codeNames[c] }

// Error is the structured error returned by every public operation.
type Error struct {
	Domain  ErrorDomain
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Domain, e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func newError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Domain: QueryDomain, Code: code, Message: fmt.Sprintf(format, args...)}
}

// wrapError converts errors from the internal packages to *Error.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	var ce *query.CompileError
	switch {
	case errors.As(err, &ce):
		return &Error{Domain: QueryDomain, Code: ErrInvalidQuery, Message: ce.Error()}
	case errors.Is(err, query.ErrUnboundParameter):
		return &Error{Domain: QueryDomain, Code: ErrBinding, Err: err}
	case errors.Is(err, exec.ErrNoIndex), errors.Is(err, query.ErrNoMatcher):
		return &Error{Domain: QueryDomain, Code: ErrNoSuchIndex, Err: err}
	case errors.Is(err, fts.ErrSyntax), errors.Is(err, index.ErrUnsupportedExpression):
		return &Error{Domain: QueryDomain, Code: ErrInvalidQuery, Err: err}
	case errors.Is(err, storage.ErrDocNotFound):
		return &Error{Domain: StorageDomain, Code: ErrNotFound, Err: err}
	case errors.Is(err, storage.ErrConflict):
		return &Error{Domain: StorageDomain, Code: ErrConflict, Err: err}
	case errors.Is(err, storage.ErrTxnNotActive), errors.Is(err, storage.ErrClosed):
		return &Error{Domain: StorageDomain, Code: ErrNotUsable, Err: err}
	case errors.Is(err, storage.ErrInvalidDocument):
		return &Error{Domain: StorageDomain, Code: ErrStorage, Err: err}
	}
	return &Error{Domain: StorageDomain, Code: ErrStorage, Err: err}
}
