// Package apperr defines the error taxonomy shared by the record store.
//
// Every failure that crosses a component boundary is an *Error carrying a
// Kind. Callers branch on the kind with errors.Is against the exported
// sentinels, or with KindOf.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error.
type Kind string

const (
	KindSchemaNotFound Kind = "schema_not_found"
	KindNotFound       Kind = "not_found"
	KindDecode         Kind = "decode"
	KindStorage        Kind = "storage"
	KindUnauthorized   Kind = "unauthorized"
	KindInvalid        Kind = "invalid"
)

// Sentinels for errors.Is. A sentinel matches any *Error of the same kind.
var (
	ErrSchemaNotFound = &Error{Kind: KindSchemaNotFound}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrDecode         = &Error{Kind: KindDecode}
	ErrStorage        = &Error{Kind: KindStorage}
	ErrUnauthorized   = &Error{Kind: KindUnauthorized}
	ErrInvalid        = &Error{Kind: KindInvalid}
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Entity  string // entity or table name
	ID      string // primary key, when relevant
	Column  string // column name for decode failures
	Row     int    // 1-based row position for decode failures
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(strings.ReplaceAll(string(e.Kind), "_", " "))
	}
	if e.Entity != "" {
		fmt.Fprintf(&b, ": %s", e.Entity)
	}
	if e.ID != "" {
		fmt.Fprintf(&b, " id=%s", e.ID)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column=%q", e.Column)
	}
	if e.Row > 0 {
		fmt.Fprintf(&b, " row=%d", e.Row)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Entity == "" && t.ID == "" && t.Err == nil
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// SchemaNotFound reports an unknown entity name.
func SchemaNotFound(entity string) *Error {
	return &Error{Kind: KindSchemaNotFound, Entity: entity, Message: "unknown entity"}
}

// NotFound reports a missing primary key.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: id, Message: "record not found"}
}

// Decode reports a malformed stored value.
func Decode(column string, row int, err error) *Error {
	return &Error{Kind: KindDecode, Column: column, Row: row, Message: "decode failed", Err: err}
}

// Storage wraps an adapter-level failure for table.
func Storage(table string, err error) *Error {
	return &Error{Kind: KindStorage, Entity: table, Message: "storage failure", Err: err}
}

// Unauthorized reports a write attempted without an actor identity.
func Unauthorized(op string) *Error {
	return &Error{Kind: KindUnauthorized, Message: op + " requires an authenticated actor"}
}

// Invalid reports a malformed request or schema.
func Invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}
