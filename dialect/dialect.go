package dialect

import (
	"context"
	"errors"
	"fmt"
)

// Dialect names.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// Type is the canonical value kind used for escaping and type conversion.
type Type uint8

// Value kinds.
const (
	Text Type = iota
	Bool
	Int
	Float
	Binary
	DateTime
	Array
	Literal
	Identifier
	Subquery
)

var typeNames = [...]string{
	Text:       "text",
	Bool:       "bool",
	Int:        "int",
	Float:      "float",
	Binary:     "binary",
	DateTime:   "datetime",
	Array:      "array",
	Literal:    "literal",
	Identifier: "identifier",
	Subquery:   "subquery",
}

// String returns the lower-case name of the type.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", t)
}

// ResultSet is an opaque handle to the rows produced by Driver.RunQuery.
// Only the driver that created it knows its concrete type.
type ResultSet any

// Driver is the interface implemented by database specific backends.
type Driver interface {
	// Connect establishes (or verifies) the connection to the database.
	Connect(ctx context.Context) error
	// Close releases the connection.
	Close() error
	// Dialect returns the dialect name (see MySQL, SQLite, Postgres).
	Dialect() string

	// RunQuery executes the given SQL. Failures are returned as *Error
	// carrying the SQL text.
	RunQuery(ctx context.Context, query string) (ResultSet, error)
	// Fetch returns the next row of the result set, or nil at the end.
	Fetch(rs ResultSet) (map[string]any, error)
	// Seek moves the cursor of a buffered result set. Unbuffered result sets
	// return ErrNotSupported.
	Seek(rs ResultSet, offset int) error
	// NumRows returns the number of rows in a buffered result set.
	NumRows(rs ResultSet) (int, error)
	// FreeResultSet releases the resources held by the result set.
	FreeResultSet(rs ResultSet) error
	// AffectedRows reports the rows changed by the last executed statement.
	AffectedRows() (int64, error)
	// InsertID reports the ID generated by the last INSERT. Drivers without
	// the concept return ErrNotImplemented.
	InsertID() (int64, error)

	// Escape renders v as an SQL fragment of the given type.
	Escape(v any, t Type) (string, error)
	// Unescape converts a fetched value back from its SQL representation.
	Unescape(v any, t Type) (any, error)
	// RandomOrder returns the expression used to sort rows randomly.
	RandomOrder() string

	// PrimaryKey returns the primary key column of the table, or "" when the
	// table has none.
	PrimaryKey(ctx context.Context, table string) (string, error)
	// ColumnTypes returns the vendor type name of each column in the result set.
	ColumnTypes(rs ResultSet, table string) (map[string]string, error)

	// Begin starts a transaction, or a savepoint when a name is given.
	Begin(ctx context.Context, savepoint string) error
	// Commit commits the transaction, or releases the named savepoint.
	Commit(ctx context.Context, savepoint string) error
	// Rollback rolls back the transaction, or to the named savepoint.
	Rollback(ctx context.Context, savepoint string) error
}

var (
	// ErrNotSupported is returned when a feature is unavailable for the
	// current driver or result set (e.g. seeking an unbuffered result set).
	ErrNotSupported = errors.New("dialect: not supported")

	// ErrNotImplemented is returned when a driver lacks a capability
	// altogether (e.g. last insert ID on PostgreSQL).
	ErrNotImplemented = errors.New("dialect: not implemented")
)

// Error is a driver failure. It keeps the SQL that caused it and the
// database specific error code, if any.
type Error struct {
	SQL  string
	Code string
	Err  error
}

// Error returns the error string.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("dialect: %v (code %s)", e.Err, e.Code)
	}
	return fmt.Sprintf("dialect: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotSupported reports whether err is (or wraps) ErrNotSupported.
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

// IsNotImplemented reports whether err is (or wraps) ErrNotImplemented.
func IsNotImplemented(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}
