package sqlkit

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// identRe matches a bare column or table.column reference, optionally
	// prefixed with the ':' sigil.
	identRe = regexp.MustCompile(`^:?[A-Za-z_][A-Za-z0-9_]*(\.([A-Za-z_][A-Za-z0-9_]*|\*))?$`)
	// sigilRe matches a ':' sigil reference at the start of the input.
	sigilRe = regexp.MustCompile(`^:[A-Za-z_][A-Za-z0-9_]*(\.([A-Za-z_][A-Za-z0-9_]*|\*))?`)
	// numericRe matches strings emitted as bare numbers.
	numericRe = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
)

// Parser renders a statement to SQL. Dialect hooks receive the Parser to
// inspect the statement and to reuse the generic rendering.
type Parser struct {
	conn *Connection
	stmt *base
	res  *Result
	mut  *Statement
}

func newParser(b *base) *Parser {
	p := &Parser{conn: b.conn, stmt: b}
	switch s := b.self.(type) {
	case *Result:
		p.res = s
	case *Statement:
		p.mut = s
	}
	return p
}

// Type returns the type of the statement being rendered.
func (p *Parser) Type() StmtType { return p.stmt.typ }

// Limit returns the statement limit, zero if unset.
func (p *Parser) Limit() int { return p.stmt.limit }

// Offset returns the statement offset, zero if unset.
func (p *Parser) Offset() int { return p.stmt.offset }

// ApplyLimit appends the LIMIT clause using the dialect hook.
func (p *Parser) ApplyLimit(query string) string {
	if h := p.conn.hooks.ApplyLimit; h != nil {
		return h(p, query)
	}
	return p.BaseApplyLimit(query)
}

// BaseApplyLimit appends "LIMIT n" when a limit is set, and "OFFSET m"
// for SELECTs with an offset.
func (p *Parser) BaseApplyLimit(query string) string {
	if p.stmt.limit > 0 {
		query += " LIMIT " + strconv.Itoa(p.stmt.limit)
		if p.stmt.offset > 0 && p.stmt.typ == Select {
			query += " OFFSET " + strconv.Itoa(p.stmt.offset)
		}
	}
	return query
}

// Parse renders the statement.
func (p *Parser) Parse() (string, error) {
	var (
		c   Clauses
		err error
	)
	if c.Source, err = p.parseSource(); err != nil {
		return "", err
	}
	if c.Where, err = p.parseWhere(); err != nil {
		return "", err
	}
	if c.Order, err = p.parseSorting(); err != nil {
		return "", err
	}
	switch p.stmt.typ {
	case Select:
		if c.Group, err = p.parseGrouping(); err != nil {
			return "", err
		}
		return p.parseSelect(c)
	case Insert:
		return p.parseInsert(c)
	case Update:
		return p.parseUpdate(c)
	case Delete:
		return p.parseDelete(c)
	}
	return "", argErrorf("parse", "unknown statement type %d", p.stmt.typ)
}

func (p *Parser) parseSelect(c Clauses) (string, error) {
	cols := make([]string, 0, len(p.res.columns))
	for _, col := range p.res.columns {
		s, err := p.FieldName(col)
		if err != nil {
			return "", err
		}
		cols = append(cols, s)
	}
	return p.ApplyLimit("SELECT " + strings.Join(cols, ", ") + " FROM" + c.Source + c.Where + c.Group + c.Order), nil
}

func (p *Parser) parseInsert(c Clauses) (string, error) {
	cols, vals, err := p.parseValues()
	if err != nil {
		return "", err
	}
	return "INSERT INTO" + c.Source + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ")", nil
}

func (p *Parser) parseUpdate(c Clauses) (string, error) {
	cols, vals, err := p.parseValues()
	if err != nil {
		return "", err
	}
	set := make([]string, len(cols))
	for i := range cols {
		set[i] = cols[i] + " = " + vals[i]
	}
	if h := p.conn.hooks.Update; h != nil {
		return h(p, c, strings.Join(set, ", ")), nil
	}
	return "UPDATE" + c.Source + " SET " + strings.Join(set, ", ") + c.Where, nil
}

func (p *Parser) parseDelete(c Clauses) (string, error) {
	if h := p.conn.hooks.Delete; h != nil {
		return h(p, c), nil
	}
	return "DELETE FROM" + c.Source + c.Where, nil
}

// parseValues renders the column names and values of INSERT and UPDATE
// statements in column name order.
func (p *Parser) parseValues() (cols, vals []string, err error) {
	for _, k := range p.mut.columns() {
		col, err := p.FieldName(k)
		if err != nil {
			return nil, nil, err
		}
		val, err := p.Escape(p.mut.values[k])
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, col)
		vals = append(vals, val)
	}
	return cols, vals, nil
}

func (p *Parser) parseSource() (string, error) {
	src, err := p.parseTable(p.stmt.source)
	if err != nil {
		return "", err
	}
	out := " " + src
	if p.res == nil {
		return out, nil
	}
	for _, j := range p.res.joins {
		s, err := p.parseJoin(j)
		if err != nil {
			return "", err
		}
		out += " " + s
	}
	return out, nil
}

// parseTable renders a table name, a Literal or an aliased sub-query.
func (p *Parser) parseTable(src any) (string, error) {
	switch s := src.(type) {
	case string:
		if !identRe.MatchString(s) {
			return p.resolveSigils(s)
		}
		return p.conn.driver.Escape(p.conn.prefixTable(strings.TrimPrefix(s, ":")), Identifier)
	case Literal:
		return s.Value, nil
	case *Result:
		sql, err := s.Parse()
		if err != nil {
			return "", err
		}
		alias, err := p.conn.driver.Escape(s.aliasName(), Identifier)
		if err != nil {
			return "", err
		}
		return "(" + sql + ") " + alias, nil
	}
	return "", argErrorf("source", "unsupported source %T", src)
}

func (p *Parser) parseJoin(j Join) (string, error) {
	src, err := p.parseTable(j.Source)
	if err != nil {
		return "", err
	}
	var cond string
	switch c := j.Condition.(type) {
	case Literal:
		cond = c.Value
	case string:
		if cond, err = p.resolveSigils(strings.TrimSpace(c)); err != nil {
			return "", err
		}
	}
	if cond == "" {
		return "", argErrorf("join", "missing condition for %v", j.Source)
	}
	if !strings.HasPrefix(upper(cond), "USING") {
		cond = "ON " + cond
	}
	kw := "JOIN"
	if j.Kind != JoinPlain {
		kw = string(j.Kind) + " JOIN"
	}
	return kw + " " + src + " " + cond, nil
}

func (p *Parser) parseWhere() (string, error) {
	conds := p.stmt.conditions
	if len(conds) == 0 {
		return "", nil
	}
	parts := make([]string, 0, 2*len(conds))
	for i, c := range conds {
		s, err := p.parseCondition(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
		if i < len(conds)-1 {
			parts = append(parts, string(c.Glue))
		}
	}
	return " WHERE " + strings.Join(parts, " "), nil
}

func (p *Parser) parseCondition(c Condition) (string, error) {
	if !c.Simple() {
		return p.parseTemplate(c)
	}
	field, err := p.FieldName(c.Field)
	if err != nil {
		return "", err
	}
	switch v := c.Value.(type) {
	case bool:
		if v {
			return "(" + field + ")", nil
		}
		return "(NOT " + field + ")", nil
	case nil:
		return "(" + field + " IS NULL)", nil
	case *Result:
		sql, err := v.Parse()
		if err != nil {
			return "", err
		}
		return "(" + field + " IN (" + sql + "))", nil
	case Literal:
		return "(" + field + " = " + v.Value + ")", nil
	}
	if isList(c.Value) {
		list, err := p.escapeList(c.Value)
		if err != nil {
			return "", err
		}
		return "(" + field + " IN (" + list + "))", nil
	}
	val, err := p.Escape(c.Value)
	if err != nil {
		return "", err
	}
	return "(" + field + " = " + val + ")", nil
}

// parseTemplate substitutes the escaped values for the modifiers of a
// templated condition. Sigils are resolved in the SQL between modifiers
// only, so values are never rewritten.
func (p *Parser) parseTemplate(c Condition) (string, error) {
	locs := modifierRe.FindAllStringIndex(c.Expr, -1)
	if len(locs) != len(c.Values) {
		return "", argErrorf("where", "%q takes %d values, got %d", c.Expr, len(locs), len(c.Values))
	}
	var (
		sb   strings.Builder
		last int
	)
	for i, loc := range locs {
		seg, err := p.resolveSigils(c.Expr[last:loc[0]])
		if err != nil {
			return "", err
		}
		sb.WriteString(seg)
		var val string
		if mod := c.Expr[loc[0]:loc[1]]; mod == "%" {
			val, err = p.Escape(c.Values[i])
		} else {
			val, err = p.Escape(c.Values[i], modifierTypes[mod])
		}
		if err != nil {
			return "", err
		}
		sb.WriteString(val)
		last = loc[1]
	}
	seg, err := p.resolveSigils(c.Expr[last:])
	if err != nil {
		return "", err
	}
	sb.WriteString(seg)
	return "(" + sb.String() + ")", nil
}

func (p *Parser) parseGrouping() (string, error) {
	g := p.res.grouping
	if g == nil {
		return "", nil
	}
	rule, err := p.FieldName(g.Rule)
	if err != nil {
		return "", err
	}
	out := " GROUP BY " + rule
	if g.Having != "" {
		having, err := p.resolveSigils(g.Having)
		if err != nil {
			return "", err
		}
		out += " HAVING " + having
	}
	return out, nil
}

func (p *Parser) parseSorting() (string, error) {
	if len(p.stmt.sorting) == 0 {
		return "", nil
	}
	rules := make([]string, 0, len(p.stmt.sorting))
	for _, r := range p.stmt.sorting {
		s, err := p.FieldName(r.Field)
		if err != nil {
			return "", err
		}
		if r.Direction != "" {
			s += " " + string(r.Direction)
		}
		rules = append(rules, s)
	}
	return " ORDER BY " + strings.Join(rules, ", "), nil
}

// FieldName resolves a column reference. "*" and Literals are kept as is,
// bare identifiers are quoted with the table part prefixed, and expressions
// only have their ':' sigils resolved.
func (p *Parser) FieldName(field any) (string, error) {
	switch f := field.(type) {
	case Literal:
		return f.Value, nil
	case string:
		f = strings.TrimSpace(f)
		switch {
		case f == "":
			return "", argErrorf("field", "empty field name")
		case f == "*":
			return f, nil
		case identRe.MatchString(f):
			return p.identifier(strings.TrimPrefix(f, ":"))
		default:
			return p.resolveSigils(f)
		}
	}
	return "", argErrorf("field", "unsupported field %T", field)
}

// identifier quotes name, prefixing its table part.
func (p *Parser) identifier(name string) (string, error) {
	if table, col, ok := strings.Cut(name, "."); ok {
		name = p.conn.prefixTable(table) + "." + col
	}
	return p.conn.driver.Escape(name, Identifier)
}

// resolveSigils replaces ":name" and ":table.column" references in expr
// with quoted identifiers. Quoted strings and "::" casts are left alone.
func (p *Parser) resolveSigils(expr string) (string, error) {
	if !strings.Contains(expr, ":") {
		return expr, nil
	}
	var (
		sb     strings.Builder
		quoted bool
	)
	for i := 0; i < len(expr); {
		ch := expr[i]
		switch {
		case ch == '\'':
			quoted = !quoted
		case ch == ':' && !quoted && (i == 0 || expr[i-1] != ':'):
			if m := sigilRe.FindString(expr[i:]); m != "" {
				id, err := p.identifier(m[1:])
				if err != nil {
					return "", err
				}
				sb.WriteString(id)
				i += len(m)
				continue
			}
		}
		sb.WriteByte(ch)
		i++
	}
	return sb.String(), nil
}

// Escape renders v as an SQL value. Without a type the value is escaped by
// its runtime type.
func (p *Parser) Escape(v any, typ ...Type) (string, error) {
	if len(typ) > 0 {
		return p.escapeTyped(v, typ[0])
	}
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case Literal:
		return x.Value, nil
	case *Result:
		return p.escapeTyped(x, Subquery)
	case bool:
		return p.conn.driver.Escape(x, Bool)
	case string:
		if numericRe.MatchString(x) {
			return x, nil
		}
		return p.conn.driver.Escape(x, Text)
	case []byte:
		return p.conn.driver.Escape(x, Binary)
	case time.Time:
		return p.conn.driver.Escape(x, DateTime)
	case *time.Time:
		if x == nil {
			return "NULL", nil
		}
		return p.conn.driver.Escape(*x, DateTime)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x), nil
	case float32:
		return formatFloat(float64(x))
	case float64:
		return formatFloat(x)
	case fmt.Stringer:
		return p.conn.driver.Escape(x.String(), Text)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return p.escapeList(v)
	case reflect.Pointer:
		if rv.IsNil() {
			return "NULL", nil
		}
		return p.Escape(rv.Elem().Interface())
	}
	return "", argErrorf("escape", "unsupported value %T", v)
}

func (p *Parser) escapeTyped(v any, t Type) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	switch t {
	case Int:
		n, err := toInt64(v)
		if err != nil {
			return "", &ArgumentError{Op: "escape", Msg: "int value", Err: err}
		}
		return strconv.FormatInt(n, 10), nil
	case Float:
		f, err := toFloat64(v)
		if err != nil {
			return "", &ArgumentError{Op: "escape", Msg: "float value", Err: err}
		}
		return formatFloat(f)
	case Subquery:
		r, ok := v.(*Result)
		if !ok {
			return "", argErrorf("escape", "sub-query value must be *Result, got %T", v)
		}
		sql, err := r.Parse()
		if err != nil {
			return "", err
		}
		return "(" + sql + ")", nil
	case Array:
		if !isList(v) {
			return "", argErrorf("escape", "array value must be a slice, got %T", v)
		}
		list, err := p.escapeList(v)
		if err != nil {
			return "", err
		}
		return "(" + list + ")", nil
	case LiteralT:
		switch x := v.(type) {
		case Literal:
			return x.Value, nil
		case string:
			return x, nil
		}
		return fmt.Sprint(v), nil
	}
	return p.conn.driver.Escape(v, t)
}

// escapeList renders a slice as a comma separated list of escaped values.
func (p *Parser) escapeList(v any) (string, error) {
	rv := reflect.ValueOf(v)
	if rv.Len() == 0 {
		return "", argErrorf("escape", "empty list")
	}
	items := make([]string, rv.Len())
	for i := range rv.Len() {
		s, err := p.Escape(rv.Index(i).Interface())
		if err != nil {
			return "", err
		}
		items[i] = s
	}
	return strings.Join(items, ", "), nil
}

// isList reports whether v is a slice or array other than []byte.
func isList(v any) bool {
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", argErrorf("escape", "non-finite float %v", f)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}
