package sqlkit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/syssam/sqlkit/dialect"
)

// Statement is an INSERT, UPDATE or DELETE statement.
//
//	n, err := conn.Update("users", map[string]any{"name": "Bob"}).
//		Where("id", 5).
//		AffectedRows(ctx)
type Statement struct {
	base
	values map[string]any

	affected    int64
	affectedErr error
}

func newStatement(conn *Connection, typ StmtType, table string) (*Statement, error) {
	s := &Statement{}
	s.base = base{conn: conn, self: s, typ: typ, source: table}
	if strings.TrimSpace(table) == "" {
		return s, argErrorf(strings.ToLower(typ.String()), "empty table")
	}
	return s, nil
}

// NewInsert returns an INSERT of values into table.
func NewInsert(conn *Connection, table string, values map[string]any) (*Statement, error) {
	return newMutation(conn, Insert, table, values)
}

// NewUpdate returns an UPDATE of table setting data.
func NewUpdate(conn *Connection, table string, data map[string]any) (*Statement, error) {
	return newMutation(conn, Update, table, data)
}

// NewDelete returns a DELETE from table.
func NewDelete(conn *Connection, table string) (*Statement, error) {
	return newStatement(conn, Delete, table)
}

func newMutation(conn *Connection, typ StmtType, table string, values map[string]any) (*Statement, error) {
	s, err := newStatement(conn, typ, table)
	if err != nil {
		return s, err
	}
	if len(values) == 0 {
		return s, argErrorf(strings.ToLower(typ.String()), "no values")
	}
	s.values = maps.Clone(values)
	for _, v := range s.values {
		s.uses(v)
	}
	return s, nil
}

// Values returns a copy of the inserted or updated values.
func (s *Statement) Values() map[string]any { return maps.Clone(s.values) }

// columns returns the value columns in order.
func (s *Statement) columns() []string {
	return slices.Sorted(maps.Keys(s.values))
}

// Where adds a condition. See Result.Where.
func (s *Statement) Where(expr any, values ...any) *Statement {
	s.where(expr, values)
	return s
}

// And sets the glue of the last condition to AND and adds args as a new
// condition if given.
func (s *Statement) And(args ...any) *Statement {
	s.glue(And, args)
	return s
}

// Or sets the glue of the last condition to OR and adds args as a new
// condition if given.
func (s *Statement) Or(args ...any) *Statement {
	s.glue(Or, args)
	return s
}

// Order adds a sort rule. Only dialects that support ordered mutations
// render it.
func (s *Statement) Order(rule any, dir ...Direction) *Statement {
	s.order(rule, dir)
	return s
}

// Limit limits the number of affected rows on dialects that support it.
// Offsets are ignored.
func (s *Statement) Limit(limit int, offset ...int) *Statement {
	s.setLimit(limit, offset)
	return s
}

// Rand replaces the sort rules with random ordering.
func (s *Statement) Rand() *Statement {
	s.rand()
	return s
}

// If opens a conditional branch. See Result.If.
func (s *Statement) If(cond bool) *Statement {
	s.cond(cond)
	return s
}

// Else inverts the innermost open branch.
func (s *Statement) Else() *Statement {
	s.els()
	return s
}

// End closes the innermost open branch.
func (s *Statement) End() *Statement {
	s.end()
	return s
}

// Parse renders the statement.
func (s *Statement) Parse() (string, error) { return s.parse() }

// Run executes the statement if it has not been executed since its last
// modification.
func (s *Statement) Run(ctx context.Context) error {
	if s.performed {
		return nil
	}
	if _, err := s.run(ctx); err != nil {
		return err
	}
	s.affected, s.affectedErr = s.conn.driver.AffectedRows()
	return nil
}

// AffectedRows runs the statement if needed and returns the number of rows
// it affected.
func (s *Statement) AffectedRows(ctx context.Context) (int64, error) {
	if err := s.Run(ctx); err != nil {
		return 0, err
	}
	if s.affectedErr != nil {
		return 0, fmt.Errorf("sqlkit: affected rows: %w", s.affectedErr)
	}
	return s.affected, nil
}

// InsertID runs the statement if needed and returns the ID generated by
// the INSERT. It returns false if the driver cannot report it.
func (s *Statement) InsertID(ctx context.Context) (int64, bool, error) {
	if s.typ != Insert {
		return 0, false, &ArgumentError{Op: "insert id", Msg: s.typ.String() + " statement", Err: ErrNotInsert}
	}
	if err := s.Run(ctx); err != nil {
		return 0, false, err
	}
	id, err := s.conn.driver.InsertID()
	switch {
	case errors.Is(err, dialect.ErrNotImplemented), errors.Is(err, dialect.ErrNotSupported):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("sqlkit: insert id: %w", err)
	}
	return id, true, nil
}
