package sqlkit

import (
	"strconv"

	"github.com/syssam/sqlkit/dialect"
)

// Clauses are the rendered pieces of a statement handed to dialect hooks.
// Every non-empty piece starts with a space.
type Clauses struct {
	Source string
	Where  string
	Group  string
	Order  string
}

// Hooks customize statement rendering for a dialect. A nil hook falls back
// to the generic rendering.
type Hooks struct {
	// ApplyLimit appends LIMIT/OFFSET to query.
	ApplyLimit func(p *Parser, query string) string
	// Update renders an UPDATE from its clauses and SET list.
	Update func(p *Parser, c Clauses, set string) string
	// Delete renders a DELETE from its clauses.
	Delete func(p *Parser, c Clauses) string
}

// maxUint64 is the MySQL idiom for "no limit".
const maxUint64 = "18446744073709551615"

// DialectHooks returns the built-in hooks of the dialect.
func DialectHooks(name string) Hooks {
	switch name {
	case dialect.MySQL:
		return Hooks{
			ApplyLimit: offsetOnly("LIMIT " + maxUint64 + " OFFSET "),
			Update: func(p *Parser, c Clauses, set string) string {
				return p.ApplyLimit("UPDATE" + c.Source + " SET " + set + c.Where + c.Order)
			},
			Delete: func(p *Parser, c Clauses) string {
				return p.ApplyLimit("DELETE FROM" + c.Source + c.Where + c.Order)
			},
		}
	case dialect.SQLite:
		return Hooks{ApplyLimit: offsetOnly("LIMIT -1 OFFSET ")}
	case dialect.Postgres:
		return Hooks{ApplyLimit: offsetOnly("OFFSET ")}
	default:
		return Hooks{}
	}
}

// offsetOnly renders a SELECT that has an offset but no limit with the
// given clause and otherwise defers to the generic rendering.
func offsetOnly(clause string) func(*Parser, string) string {
	return func(p *Parser, query string) string {
		if p.Limit() <= 0 && p.Offset() > 0 && p.Type() == Select {
			return query + " " + clause + strconv.Itoa(p.Offset())
		}
		return p.BaseApplyLimit(query)
	}
}
