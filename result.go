package sqlkit

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/syssam/sqlkit/dialect"
)

// Grouping is a GROUP BY rule with an optional HAVING expression.
type Grouping struct {
	Rule   string
	Having string
}

// Result is a SELECT statement and the rows it yields.
//
//	rows, err := conn.Select("id, name", "users").
//		Where("active").
//		Order("name").
//		Limit(10).
//		FetchAll(ctx)
type Result struct {
	base
	columns  []any // string or Literal
	joins    []Join
	grouping *Grouping
	alias    string

	columnTypes map[string]Type
	detectTypes bool
	fetched     int
}

// NewResult returns a SELECT of columns from source. See Connection.Select.
func NewResult(conn *Connection, columns, source any) (*Result, error) {
	r := &Result{detectTypes: conn.detectTypes}
	r.base = base{conn: conn, self: r, typ: Select}
	cols, err := parseColumns(columns)
	if err != nil {
		return r, err
	}
	r.columns = cols
	switch s := source.(type) {
	case string:
		if strings.TrimSpace(s) == "" {
			return r, argErrorf("select", "empty source")
		}
		r.source = s
	case *Result:
		if s == nil {
			return r, argErrorf("select", "nil source")
		}
		r.source = s
		r.uses(s)
	default:
		return r, argErrorf("select", "unsupported source %T", source)
	}
	return r, nil
}

// parseColumns splits a column list on top level commas.
func parseColumns(columns any) ([]any, error) {
	var cols []any
	switch c := columns.(type) {
	case Literal:
		cols = []any{c}
	case string:
		for _, s := range splitTopLevel(c) {
			if s = strings.TrimSpace(s); s != "" {
				cols = append(cols, s)
			}
		}
	case []string:
		for _, s := range c {
			if s = strings.TrimSpace(s); s != "" {
				cols = append(cols, s)
			}
		}
	default:
		return nil, argErrorf("select", "unsupported columns %T", columns)
	}
	if len(cols) == 0 {
		return nil, argErrorf("select", "no columns")
	}
	return cols, nil
}

// splitTopLevel splits s on commas outside parentheses and quotes.
func splitTopLevel(s string) []string {
	var (
		parts  []string
		depth  int
		quoted bool
		start  int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			quoted = !quoted
		case '(':
			if !quoted {
				depth++
			}
		case ')':
			if !quoted && depth > 0 {
				depth--
			}
		case ',':
			if !quoted && depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// Where adds a condition. See the package documentation for the accepted
// forms.
func (r *Result) Where(expr any, values ...any) *Result {
	r.where(expr, values)
	return r
}

// And sets the glue of the last condition to AND and adds args as a new
// condition if given.
func (r *Result) And(args ...any) *Result {
	r.glue(And, args)
	return r
}

// Or sets the glue of the last condition to OR and adds args as a new
// condition if given.
func (r *Result) Or(args ...any) *Result {
	r.glue(Or, args)
	return r
}

// Order adds a sort rule. Rule is a column, a Literal or a
// map[string]Direction applied in key order.
func (r *Result) Order(rule any, dir ...Direction) *Result {
	r.order(rule, dir)
	return r
}

// Limit limits the number of rows, optionally skipping offset rows.
func (r *Result) Limit(limit int, offset ...int) *Result {
	r.setLimit(limit, offset)
	return r
}

// Rand replaces the sort rules with random ordering.
func (r *Result) Rand() *Result {
	r.rand()
	return r
}

// If opens a conditional branch: builder calls up to the matching Else or
// End only take effect when cond and all enclosing conditions are true.
func (r *Result) If(cond bool) *Result {
	r.cond(cond)
	return r
}

// Else inverts the innermost open branch.
func (r *Result) Else() *Result {
	r.els()
	return r
}

// End closes the innermost open branch.
func (r *Result) End() *Result {
	r.end()
	return r
}

// Join adds a JOIN of source on condition. Source is a table name, a
// Literal or a *Result; a condition starting with USING is kept as is.
func (r *Result) Join(source, condition any) *Result {
	r.join(source, condition, JoinPlain)
	return r
}

// LeftJoin adds a LEFT JOIN. See Join.
func (r *Result) LeftJoin(source, condition any) *Result {
	r.join(source, condition, JoinLeft)
	return r
}

// InnerJoin adds an INNER JOIN. See Join.
func (r *Result) InnerJoin(source, condition any) *Result {
	r.join(source, condition, JoinInner)
	return r
}

func (r *Result) join(source, condition any, kind JoinKind) {
	if !r.mutate() {
		return
	}
	switch s := source.(type) {
	case string:
		if strings.TrimSpace(s) == "" {
			r.addErr(argErrorf("join", "empty source"))
			return
		}
	case Literal:
	case *Result:
		r.uses(s)
	default:
		r.addErr(argErrorf("join", "unsupported source %T", source))
		return
	}
	switch c := condition.(type) {
	case string:
		if strings.TrimSpace(c) == "" {
			r.addErr(argErrorf("join", "missing condition for %v", source))
			return
		}
	case Literal:
	default:
		r.addErr(argErrorf("join", "unsupported condition %T", condition))
		return
	}
	r.joins = append(r.joins, Join{Source: source, Condition: condition, Kind: kind})
}

// Group sets the GROUP BY rule and optional HAVING expression.
func (r *Result) Group(rule string, having ...string) *Result {
	if !r.mutate() {
		return r
	}
	g := &Grouping{Rule: rule}
	if len(having) > 0 {
		g.Having = having[0]
	}
	r.grouping = g
	return r
}

// As sets the alias used when the result is a sub-query source.
func (r *Result) As(alias string) *Result {
	if !r.mutate() {
		return r
	}
	r.alias = alias
	return r
}

// Columns replaces the selected columns.
func (r *Result) Columns(columns any) *Result {
	if !r.mutate() {
		return r
	}
	cols, err := parseColumns(columns)
	if err != nil {
		r.addErr(err)
		return r
	}
	r.columns = cols
	return r
}

// Alias returns the sub-query alias, "" until set or generated.
func (r *Result) Alias() string { return r.alias }

// Joins returns a copy of the join clauses.
func (r *Result) Joins() []Join { return slices.Clone(r.joins) }

// Grouping returns the grouping, or nil.
func (r *Result) Grouping() *Grouping { return r.grouping }

// SelectedColumns returns a copy of the selected columns.
func (r *Result) SelectedColumns() []any { return slices.Clone(r.columns) }

// Parse renders the statement.
func (r *Result) Parse() (string, error) { return r.parse() }

// aliasName returns the alias, generating one on first use.
func (r *Result) aliasName() string {
	if r.alias == "" {
		r.alias = r.conn.nextAlias()
	}
	return r.alias
}

func (r *Result) describe() string {
	if s, ok := r.source.(string); ok {
		return "select from " + s
	}
	return "select from sub-query"
}

// Run executes the statement if it has not been executed since its last
// modification.
func (r *Result) Run(ctx context.Context) error {
	_, err := r.run(ctx)
	return err
}

// Fetch returns the next row, or nil when the rows are exhausted.
func (r *Result) Fetch(ctx context.Context) (*Row, error) {
	rs, err := r.run(ctx)
	if err != nil {
		return nil, err
	}
	data, err := r.conn.driver.Fetch(rs)
	if err != nil {
		r.reset()
		return nil, fmt.Errorf("sqlkit: fetch: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	r.fetched++
	if r.detectTypes || len(r.columnTypes) > 0 {
		r.convertRow(ctx, data)
	}
	return newRow(data, r), nil
}

// FetchAll returns all remaining rows.
func (r *Result) FetchAll(ctx context.Context) ([]*Row, error) {
	return r.FetchSlice(ctx, -1, 0)
}

// FetchSlice seeks to offset when it is positive and returns at most limit
// rows. A negative limit returns all remaining rows.
func (r *Result) FetchSlice(ctx context.Context, limit, offset int) ([]*Row, error) {
	if offset > 0 {
		if err := r.Seek(ctx, offset); err != nil {
			return nil, err
		}
	}
	var rows []*Row
	for ; limit != 0; limit-- {
		row, err := r.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FetchSingle returns the first column of the next row, or nil when the
// rows are exhausted.
func (r *Result) FetchSingle(ctx context.Context) (any, error) {
	row, err := r.Fetch(ctx)
	if err != nil || row == nil {
		return nil, err
	}
	if row.Len() == 1 {
		for _, v := range row.All() {
			return v, nil
		}
	}
	for _, c := range r.columns {
		if s, ok := c.(string); ok {
			if v, ok := row.Lookup(columnKey(s)); ok {
				return v, nil
			}
		}
	}
	return nil, argErrorf("fetch single", "cannot tell the first column of %d", row.Len())
}

// FetchPairs returns a map from the key column to the value column of all
// remaining rows. With an empty value the whole row is the map value.
// Missing columns are added to a copy of the statement.
func (r *Result) FetchPairs(ctx context.Context, key, value string) (map[any]any, error) {
	if key == "" {
		return nil, argErrorf("fetch pairs", "empty key column")
	}
	res := r
	if !r.selectsAll() {
		var missing []any
		for _, c := range []string{key, value} {
			if c != "" && !r.selects(c) {
				missing = append(missing, c)
			}
		}
		if len(missing) > 0 {
			res = r.Clone()
			res.columns = append(res.columns, missing...)
		}
	}
	rows, err := res.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	kcol, vcol := columnKey(key), columnKey(value)
	pairs := make(map[any]any, len(rows))
	for _, row := range rows {
		k := row.Get(kcol)
		if b, ok := k.([]byte); ok {
			k = string(b)
		}
		if value == "" {
			pairs[k] = row
		} else {
			pairs[k] = row.Get(vcol)
		}
	}
	return pairs, nil
}

func (r *Result) selectsAll() bool {
	for _, c := range r.columns {
		if s, ok := c.(string); ok && (s == "*" || strings.HasSuffix(s, ".*")) {
			return true
		}
	}
	return false
}

func (r *Result) selects(column string) bool {
	key := columnKey(column)
	for _, c := range r.columns {
		if s, ok := c.(string); ok && columnKey(s) == key {
			return true
		}
	}
	return false
}

// columnKey returns the row key of a column reference: "users.id" and
// ":id" are both fetched as "id".
func columnKey(column string) string {
	column = strings.TrimPrefix(strings.TrimSpace(column), ":")
	if i := strings.LastIndexByte(column, '.'); i >= 0 {
		column = column[i+1:]
	}
	return column
}

// Seek moves to the row at offset. Unbuffered results cannot seek.
func (r *Result) Seek(ctx context.Context, offset int) error {
	rs, err := r.run(ctx)
	if err != nil {
		return err
	}
	if err := r.conn.driver.Seek(rs, offset); err != nil {
		return fmt.Errorf("sqlkit: seek to %d: %w", offset, err)
	}
	r.fetched = offset
	return nil
}

// Count returns the number of rows of the result, or the COUNT of column
// when given.
func (r *Result) Count(ctx context.Context, column ...string) (int64, error) {
	if len(column) > 0 {
		v, err := r.Aggregation(ctx, aggregate("COUNT", column[0]))
		if err != nil {
			return 0, err
		}
		return toInt64(v)
	}
	rs, err := r.run(ctx)
	if err != nil {
		return 0, err
	}
	n, err := r.conn.driver.NumRows(rs)
	if err != nil {
		return 0, fmt.Errorf("sqlkit: count: %w", err)
	}
	return int64(n), nil
}

// aggregate renders fn over column, resolving the column as a sigil.
func aggregate(fn, column string) string {
	column = strings.TrimPrefix(strings.TrimSpace(column), ":")
	if column == "*" {
		return fn + "(*)"
	}
	return fn + "(:" + column + ")"
}

// Aggregation runs a copy of the statement selecting fn and returns the
// single value.
func (r *Result) Aggregation(ctx context.Context, fn string) (any, error) {
	agg := r.Clone()
	agg.columns = []any{fn}
	agg.detectTypes = false
	agg.columnTypes = nil
	defer agg.Close()
	return agg.FetchSingle(ctx)
}

// Sum returns SUM(column).
func (r *Result) Sum(ctx context.Context, column string) (any, error) {
	return r.Aggregation(ctx, aggregate("SUM", column))
}

// Min returns MIN(column).
func (r *Result) Min(ctx context.Context, column string) (any, error) {
	return r.Aggregation(ctx, aggregate("MIN", column))
}

// Max returns MAX(column).
func (r *Result) Max(ctx context.Context, column string) (any, error) {
	return r.Aggregation(ctx, aggregate("MAX", column))
}

// Explain returns the rows of EXPLAIN for the statement.
func (r *Result) Explain(ctx context.Context) ([]*Row, error) {
	query, err := r.Parse()
	if err != nil {
		return nil, err
	}
	rs, err := r.conn.driver.RunQuery(ctx, "EXPLAIN "+query)
	if err != nil {
		return nil, &QueryError{SQL: "EXPLAIN " + query, Op: Select, Err: err}
	}
	defer func() {
		if err := r.conn.driver.FreeResultSet(rs); err != nil {
			r.conn.logger.DebugContext(ctx, "free explain result", "error", err)
		}
	}()
	var rows []*Row
	for {
		data, err := r.conn.driver.Fetch(rs)
		if err != nil {
			return nil, fmt.Errorf("sqlkit: explain: %w", err)
		}
		if data == nil {
			return rows, nil
		}
		rows = append(rows, newRow(data, nil))
	}
}

// PrimaryKey returns the primary key column of the source table, "" if it
// has none or the source is a sub-query.
func (r *Result) PrimaryKey(ctx context.Context) (string, error) {
	table, ok := r.source.(string)
	if !ok || !identRe.MatchString(table) {
		return "", nil
	}
	return r.conn.PrimaryKey(ctx, strings.TrimPrefix(table, ":"))
}

// Clone returns an unexecuted copy of the statement. Sub-queries are
// shared.
func (r *Result) Clone() *Result {
	c := &Result{
		columns:     slices.Clone(r.columns),
		joins:       slices.Clone(r.joins),
		alias:       r.alias,
		detectTypes: r.detectTypes,
	}
	if r.grouping != nil {
		g := *r.grouping
		c.grouping = &g
	}
	if r.columnTypes != nil {
		c.columnTypes = make(map[string]Type, len(r.columnTypes))
		for k, v := range r.columnTypes {
			c.columnTypes[k] = v
		}
	}
	c.base = base{
		conn:       r.conn,
		self:       c,
		typ:        r.typ,
		source:     r.source,
		conditions: cloneConditions(r.conditions),
		sorting:    slices.Clone(r.sorting),
		limit:      r.limit,
		offset:     r.offset,
		subqueries: slices.Clone(r.subqueries),
		branches:   slices.Clone(r.branches),
		errs:       slices.Clone(r.errs),
	}
	return c
}

func cloneConditions(conds []Condition) []Condition {
	out := slices.Clone(conds)
	for i := range out {
		out[i].Modifiers = slices.Clone(out[i].Modifiers)
		out[i].Types = slices.Clone(out[i].Types)
		out[i].Values = slices.Clone(out[i].Values)
	}
	return out
}

// Close frees the result set. The statement runs again on the next fetch.
func (r *Result) Close() error {
	if r.rs == nil {
		return nil
	}
	err := r.conn.driver.FreeResultSet(r.rs)
	r.rs = nil
	r.performed = false
	r.fetched = 0
	return err
}

// All returns an iterator over the rows from the first one. Iteration
// stops after yielding the first error.
func (r *Result) All(ctx context.Context) iter.Seq2[*Row, error] {
	return func(yield func(*Row, error) bool) {
		if err := r.rewind(ctx); err != nil {
			yield(nil, err)
			return
		}
		for {
			row, err := r.Fetch(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if row == nil || !yield(row, nil) {
				return
			}
		}
	}
}

// rewind moves back to the first row. An unbuffered result set that was
// read from is executed again.
func (r *Result) rewind(ctx context.Context) error {
	if !r.performed || r.fetched == 0 {
		return nil
	}
	err := r.conn.driver.Seek(r.rs, 0)
	if errors.Is(err, dialect.ErrNotSupported) {
		r.reset()
		return nil
	}
	if err == nil {
		r.fetched = 0
	}
	return err
}

// Iterator returns a ResultIterator over the rows.
func (r *Result) Iterator() *ResultIterator {
	return &ResultIterator{res: r}
}

// FetchAs fetches the next row and maps it with fn. It returns the zero
// value and false when the rows are exhausted.
func FetchAs[T any](ctx context.Context, r *Result, fn func(*Row) (T, error)) (T, bool, error) {
	var zero T
	row, err := r.Fetch(ctx)
	if err != nil || row == nil {
		return zero, false, err
	}
	v, err := fn(row)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// FetchAllAs fetches all remaining rows and maps them with fn.
func FetchAllAs[T any](ctx context.Context, r *Result, fn func(*Row) (T, error)) ([]T, error) {
	rows, err := r.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := fn(row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// RowFactory builds a caller-defined row value from a fetched Row.
type RowFactory[T any] func(*Row) (T, error)

// TypedResult is a Result whose rows are built by a RowFactory. The builder
// methods of the embedded Result still apply.
type TypedResult[T any] struct {
	*Result
	factory RowFactory[T]
}

// WithRowFactory returns r fetching rows through factory.
func WithRowFactory[T any](r *Result, factory RowFactory[T]) *TypedResult[T] {
	return &TypedResult[T]{Result: r, factory: factory}
}

// Fetch fetches the next row. It returns the zero value and false when the
// rows are exhausted.
func (t *TypedResult[T]) Fetch(ctx context.Context) (T, bool, error) {
	return FetchAs(ctx, t.Result, t.factory)
}

// FetchAll fetches all remaining rows.
func (t *TypedResult[T]) FetchAll(ctx context.Context) ([]T, error) {
	return FetchAllAs(ctx, t.Result, t.factory)
}

// All returns an iterator over the rows from the first one.
func (t *TypedResult[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		for row, err := range t.Result.All(ctx) {
			if err != nil {
				yield(zero, err)
				return
			}
			v, err := t.factory(row)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}
