package sqlkit

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/syssam/sqlkit/dialect"
)

// Type is a semantic value type used for escaping and conversion.
type Type = dialect.Type

// Semantic value types.
const (
	Text       = dialect.Text
	Bool       = dialect.Bool
	Int        = dialect.Int
	Float      = dialect.Float
	Binary     = dialect.Binary
	DateTime   = dialect.DateTime
	Array      = dialect.Array
	LiteralT   = dialect.Literal
	Identifier = dialect.Identifier
	Subquery   = dialect.Subquery
)

// StmtType is the kind of a statement.
type StmtType uint8

// Statement types.
const (
	Select StmtType = iota + 1
	Insert
	Update
	Delete
)

// String returns the SQL verb of the statement type.
func (t StmtType) String() string {
	switch t {
	case Select:
		return "SELECT"
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Direction is a sort direction.
type Direction string

// Sort directions.
const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Glue joins a condition to the next one.
type Glue string

// Condition glues.
const (
	And Glue = "AND"
	Or  Glue = "OR"
)

// JoinKind is the kind of a join clause.
type JoinKind string

// Join kinds.
const (
	JoinPlain JoinKind = ""
	JoinLeft  JoinKind = "LEFT"
	JoinInner JoinKind = "INNER"
)

// Condition is a single WHERE condition.
//
// A simple condition has a Field and a Value. A templated condition has an
// Expr with type modifiers (%i, %s, ...) and one value per modifier.
type Condition struct {
	Field     string
	Value     any
	Expr      string
	Modifiers []string
	Types     []Type
	Values    []any
	Glue      Glue
}

// Simple reports whether c is a field/value condition.
func (c Condition) Simple() bool {
	return c.Expr == ""
}

// SortRule is a single ORDER BY entry. Field is a string or a Literal.
type SortRule struct {
	Field     any
	Direction Direction
}

// Join is a join clause. Source is a table name, a Literal or a *Result;
// Condition is a string or a Literal.
type Join struct {
	Source    any
	Condition any
	Kind      JoinKind
}

// upper normalizes SQL keywords supplied by callers.
func upper(s string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(s))
}

// modifierTypes maps WHERE template modifiers to value types. The bare
// modifier has no entry and escapes by the value's runtime type.
var modifierTypes = map[string]Type{
	"%bin": Binary,
	"%sub": Subquery,
	"%b":   Bool,
	"%i":   Int,
	"%f":   Float,
	"%s":   Text,
	"%d":   DateTime,
	"%a":   Array,
	"%l":   LiteralT,
}
