package sqlkit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"regexp"
	"slices"
	"time"

	"github.com/syssam/sqlkit/dialect"
)

// modifierRe matches the type modifiers of templated WHERE expressions.
var modifierRe = regexp.MustCompile(`%(bin|sub|b|i|f|s|d|a|l)?`)

// base holds the state and behavior shared by all statements.
type base struct {
	conn   *Connection
	self   any // *Result or *Statement embedding this base
	typ    StmtType
	source any // table name or *Result

	conditions []Condition
	sorting    []SortRule
	limit      int
	offset     int

	// subqueries are the statements referenced by this one. They are not
	// owned and never freed by it.
	subqueries []*Result
	branches   []bool
	errs       []error

	performed bool
	rs        dialect.ResultSet
	elapsed   time.Duration
}

// Type returns the statement type.
func (b *base) Type() StmtType { return b.typ }

// Connection returns the connection the statement was built from.
func (b *base) Connection() *Connection { return b.conn }

// Performed reports whether the statement has been executed since its
// last modification.
func (b *base) Performed() bool { return b.performed }

// Elapsed returns the duration of the last execution.
func (b *base) Elapsed() time.Duration { return b.elapsed }

// Conditions returns a copy of the WHERE conditions.
func (b *base) Conditions() []Condition { return slices.Clone(b.conditions) }

// Sorting returns a copy of the ORDER BY rules.
func (b *base) Sorting() []SortRule { return slices.Clone(b.sorting) }

// Limits returns the limit and offset. Zero means unset.
func (b *base) Limits() (limit, offset int) { return b.limit, b.offset }

// Source returns the table name or the sub-query the statement reads from.
func (b *base) Source() any { return b.source }

// Err returns the argument errors recorded while building the statement.
func (b *base) Err() error { return errors.Join(b.errs...) }

func (b *base) addErr(err error) {
	b.errs = append(b.errs, err)
}

// active reports whether builder calls take effect. Every open If branch
// must be true.
func (b *base) active() bool {
	for _, v := range b.branches {
		if !v {
			return false
		}
	}
	return true
}

// mutate reports whether a builder call takes effect and, if so, discards
// the previous execution.
func (b *base) mutate() bool {
	if !b.active() {
		return false
	}
	b.reset()
	return true
}

// reset frees the result set and marks the statement as not performed.
func (b *base) reset() {
	if b.rs != nil {
		if err := b.conn.driver.FreeResultSet(b.rs); err != nil {
			b.conn.logger.Debug("free result set", "error", err)
		}
		b.rs = nil
	}
	b.performed = false
	if r, ok := b.self.(*Result); ok {
		r.fetched = 0
	}
}

func (b *base) cond(v bool) {
	b.branches = append(b.branches, v)
}

func (b *base) els() {
	if len(b.branches) == 0 {
		b.addErr(argErrorf("else", "no open if"))
		return
	}
	b.branches[len(b.branches)-1] = !b.branches[len(b.branches)-1]
}

func (b *base) end() {
	if len(b.branches) == 0 {
		b.addErr(argErrorf("end", "no open if"))
		return
	}
	b.branches = b.branches[:len(b.branches)-1]
}

// uses records the sub-queries referenced by v, including those nested in
// lists.
func (b *base) uses(v any) {
	if r, ok := v.(*Result); ok {
		if r != nil {
			b.subqueries = append(b.subqueries, r)
		}
		return
	}
	if !isList(v) {
		return
	}
	rv := reflect.ValueOf(v)
	for i := range rv.Len() {
		b.uses(rv.Index(i).Interface())
	}
}

func (b *base) where(expr any, values []any) {
	if !b.mutate() {
		return
	}
	switch e := expr.(type) {
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(e)) {
			b.where(k, []any{e[k]})
		}
		return
	case string:
		if e == "" {
			b.addErr(argErrorf("where", "empty expression"))
			return
		}
		tokens := modifierRe.FindAllString(e, -1)
		if len(tokens) == 0 {
			var v any = true
			switch len(values) {
			case 0:
			case 1:
				v = values[0]
			default:
				b.addErr(argErrorf("where", "%q takes one value, got %d", e, len(values)))
				return
			}
			b.uses(v)
			b.conditions = append(b.conditions, Condition{Field: e, Value: v, Glue: And})
			return
		}
		if len(values) != len(tokens) {
			b.addErr(argErrorf("where", "%q takes %d values, got %d", e, len(tokens), len(values)))
			return
		}
		c := Condition{Expr: e, Modifiers: tokens, Values: slices.Clone(values), Glue: And}
		for i, t := range tokens {
			// The bare modifier escapes by runtime type and is recorded as Text.
			c.Types = append(c.Types, modifierTypes[t])
			b.uses(values[i])
		}
		b.conditions = append(b.conditions, c)
	default:
		b.addErr(argErrorf("where", "unsupported expression %T", expr))
	}
}

func (b *base) glue(g Glue, args []any) {
	if !b.active() {
		return
	}
	if len(b.conditions) == 0 {
		b.addErr(argErrorf(string(g), "no previous condition"))
		return
	}
	b.reset()
	b.conditions[len(b.conditions)-1].Glue = g
	if len(args) > 0 {
		b.where(args[0], args[1:])
	}
}

func (b *base) order(rule any, dir []Direction) {
	if !b.mutate() {
		return
	}
	switch r := rule.(type) {
	case map[string]Direction:
		for _, k := range slices.Sorted(maps.Keys(r)) {
			b.order(k, []Direction{r[k]})
		}
	case string, Literal:
		d := Direction("")
		if len(dir) > 0 {
			d = Direction(upper(string(dir[0])))
			if d != Asc && d != Desc && d != "" {
				b.addErr(argErrorf("order", "invalid direction %q", dir[0]))
				return
			}
		}
		b.sorting = append(b.sorting, SortRule{Field: r, Direction: d})
	default:
		b.addErr(argErrorf("order", "unsupported rule %T", rule))
	}
}

func (b *base) setLimit(limit int, offset []int) {
	if !b.mutate() {
		return
	}
	if limit < 0 {
		b.addErr(argErrorf("limit", "negative limit %d", limit))
		return
	}
	b.limit = limit
	if len(offset) > 0 && b.typ == Select {
		if offset[0] < 0 {
			b.addErr(argErrorf("limit", "negative offset %d", offset[0]))
			return
		}
		b.offset = offset[0]
	}
}

func (b *base) rand() {
	if !b.mutate() {
		return
	}
	b.sorting = []SortRule{{Field: Raw(b.conn.driver.RandomOrder())}}
}

// parse renders the statement after validating it.
func (b *base) parse() (string, error) {
	if err := b.Err(); err != nil {
		return "", err
	}
	if len(b.branches) > 0 {
		return "", argErrorf("parse", "%d unclosed if", len(b.branches))
	}
	if err := checkCycles(b.self, b.subqueries); err != nil {
		return "", err
	}
	return newParser(b).Parse()
}

// String returns the rendered SQL, or "" if the statement is invalid.
func (b *base) String() string {
	s, err := b.parse()
	if err != nil {
		return ""
	}
	return s
}

// run executes the statement unless it was already performed.
func (b *base) run(ctx context.Context) (dialect.ResultSet, error) {
	if b.performed {
		return b.rs, nil
	}
	query, err := b.parse()
	if err != nil {
		b.conn.notify(ctx, EventException, err)
		return nil, err
	}
	start := time.Now()
	rs, err := b.conn.driver.RunQuery(ctx, query)
	b.elapsed = time.Since(start)
	if err != nil {
		qerr := &QueryError{SQL: query, Op: b.typ, Err: err}
		b.conn.logger.DebugContext(ctx, "query failed", "sql", query, "error", err)
		b.conn.notify(ctx, EventException, qerr)
		return nil, qerr
	}
	b.rs = rs
	b.performed = true
	b.conn.notify(ctx, eventOf(b.typ), b.self)
	return rs, nil
}

// checkCycles reports ErrCircularReference if a statement reachable from
// root through sub-queries is on its own path. Shared sub-queries that do
// not form a cycle are allowed.
func checkCycles(root any, subqueries []*Result) error {
	path := map[any]bool{root: true}
	var visit func(*Result) error
	visit = func(r *Result) error {
		if path[r] {
			return fmt.Errorf("%w: %s", ErrCircularReference, r.describe())
		}
		path[r] = true
		for _, s := range r.subqueries {
			if err := visit(s); err != nil {
				return err
			}
		}
		delete(path, r)
		return nil
	}
	for _, s := range subqueries {
		if err := visit(s); err != nil {
			return err
		}
	}
	return nil
}
