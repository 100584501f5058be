package sqlkit

import (
	"errors"
	"fmt"
)

// Standard sentinel errors.
var (
	// ErrInvalidArgument is matched by every ArgumentError.
	ErrInvalidArgument = errors.New("sqlkit: invalid argument")

	// ErrCircularReference is returned when a statement is (transitively) used
	// as its own sub-query.
	ErrCircularReference = errors.New("sqlkit: circular reference in sub-queries")

	// ErrNotInsert is returned by InsertID on statements that are not INSERTs.
	ErrNotInsert = errors.New("sqlkit: insert id is only available for INSERT statements")

	// ErrNoPrimaryKey is returned when an operation needs a primary key the
	// table does not have.
	ErrNoPrimaryKey = errors.New("sqlkit: table has no primary key")
)

// ArgumentError is a configuration or programming error: an invalid builder
// argument, a missing join condition, an unknown type and so on. It is never
// retried.
type ArgumentError struct {
	Op  string // Builder operation (e.g. "select", "join", "escape")
	Msg string
	Err error // Optional underlying error
}

// Error returns the error string.
func (e *ArgumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sqlkit: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("sqlkit: %s: %s", e.Op, e.Msg)
}

// Is reports whether the target error matches ArgumentError.
// This allows errors.Is(argErr, ErrInvalidArgument) to return true.
func (e *ArgumentError) Is(err error) bool {
	return err == ErrInvalidArgument
}

// Unwrap returns the underlying error.
func (e *ArgumentError) Unwrap() error {
	return e.Err
}

func argErrorf(op, format string, args ...any) *ArgumentError {
	return &ArgumentError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsArgumentError returns true if the error is an ArgumentError.
func IsArgumentError(err error) bool {
	if err == nil {
		return false
	}
	var e *ArgumentError
	return errors.As(err, &e)
}

// QueryError is a failed statement execution. It keeps the rendered SQL.
type QueryError struct {
	SQL string   // Rendered statement
	Op  StmtType // Statement type
	Err error    // Underlying driver error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	return fmt.Sprintf("sqlkit: %s failed: %v [%s]", e.Op, e.Err, e.SQL)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}
