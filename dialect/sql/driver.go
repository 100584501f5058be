package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/syssam/sqlkit/dialect"
)

// validIdentifierRe validates SQL identifiers (alphanumeric, underscores, dots for schema.name)
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// isValidIdentifier checks if the string is a valid SQL identifier.
func isValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// queryRe matches statements that produce rows.
var queryRe = regexp.MustCompile(`(?i)^\s*\(?\s*(SELECT|WITH|EXPLAIN|SHOW|PRAGMA|DESCRIBE|DESC|VALUES)\b`)

// Driver is a dialect.Driver implementation for SQL based databases.
type Driver struct {
	opts    Options
	dialect string

	mu   sync.Mutex
	db   *sql.DB
	conn Conn
	tx   *sql.Tx
	last sql.Result
}

// New creates a Driver from the given options. The connection is opened by Connect.
func New(opts Options) *Driver {
	return &Driver{opts: opts, dialect: dialectOf(opts.Driver)}
}

// Open wraps the database/sql.Open method and returns a connected Driver.
func Open(ctx context.Context, driverName, source string) (*Driver, error) {
	d := New(Options{Driver: driverName, DSN: source})
	if err := d.Connect(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// OpenDB wraps the given database/sql.DB method with a Driver.
func OpenDB(dialect string, db *sql.DB) *Driver {
	d := New(Options{Driver: dialect})
	d.db = db
	d.conn = Conn{db, d.dialect}
	return d
}

// DB returns the underlying *sql.DB instance.
func (d *Driver) DB() *sql.DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db
}

// Dialect implements the dialect.Driver interface.
func (d *Driver) Dialect() string {
	return d.dialect
}

// Connect opens the database handle if needed and verifies it is reachable.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		dsn, err := d.opts.DataSourceName()
		if err != nil {
			return err
		}
		db, err := sql.Open(d.opts.Driver, dsn)
		if err != nil {
			return fmt.Errorf("dialect/sql: open: %w", err)
		}
		d.db = db
		d.conn = Conn{db, d.dialect}
	}
	if err := d.db.PingContext(ctx); err != nil {
		return &dialect.Error{Code: errorCode(err), Err: fmt.Errorf("connect: %w", err)}
	}
	return nil
}

// Close closes the underlying connection, rolling back an open transaction.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	var err error
	if d.tx != nil {
		err = d.tx.Rollback()
		d.tx = nil
	}
	return errors.Join(err, d.db.Close())
}

func (d *Driver) execer() (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return Conn{}, fmt.Errorf("dialect/sql: driver is not connected")
	}
	return d.conn, nil
}

// RunQuery executes the query. Statements producing rows return a result set,
// all others return an exec result whose affected rows and insert ID are
// remembered for AffectedRows and InsertID.
func (d *Driver) RunQuery(ctx context.Context, query string) (dialect.ResultSet, error) {
	c, err := d.execer()
	if err != nil {
		return nil, err
	}
	if !queryRe.MatchString(query) {
		res, err := c.exec(ctx, query)
		if err != nil {
			return nil, d.wrap(query, err)
		}
		d.mu.Lock()
		d.last = res
		d.mu.Unlock()
		return &execResult{res: res}, nil
	}
	rows, closer, err := c.query(ctx, query)
	if err != nil {
		return nil, d.wrap(query, err)
	}
	rs, err := newResultSet(rows, closer, !d.opts.Unbuffered)
	if err != nil {
		return nil, d.wrap(query, err)
	}
	return rs, nil
}

func (d *Driver) wrap(query string, err error) error {
	return &dialect.Error{SQL: query, Code: errorCode(err), Err: err}
}

// Fetch implements the dialect.Driver interface.
func (d *Driver) Fetch(rs dialect.ResultSet) (map[string]any, error) {
	switch rs := rs.(type) {
	case *resultSet:
		return rs.next()
	case *execResult:
		return nil, nil
	}
	return nil, fmt.Errorf("dialect/sql: invalid result set %T", rs)
}

// Seek implements the dialect.Driver interface.
func (d *Driver) Seek(rs dialect.ResultSet, offset int) error {
	r, ok := rs.(*resultSet)
	if !ok {
		return fmt.Errorf("dialect/sql: seek on %T: %w", rs, dialect.ErrNotSupported)
	}
	return r.seek(offset)
}

// NumRows implements the dialect.Driver interface.
func (d *Driver) NumRows(rs dialect.ResultSet) (int, error) {
	switch rs := rs.(type) {
	case *resultSet:
		return rs.numRows()
	case *execResult:
		return 0, nil
	}
	return 0, fmt.Errorf("dialect/sql: invalid result set %T", rs)
}

// FreeResultSet implements the dialect.Driver interface.
func (d *Driver) FreeResultSet(rs dialect.ResultSet) error {
	if r, ok := rs.(*resultSet); ok {
		return r.close()
	}
	return nil
}

// ColumnTypes implements the dialect.Driver interface.
func (d *Driver) ColumnTypes(rs dialect.ResultSet, _ string) (map[string]string, error) {
	r, ok := rs.(*resultSet)
	if !ok {
		return nil, fmt.Errorf("dialect/sql: column types of %T: %w", rs, dialect.ErrNotSupported)
	}
	types := make(map[string]string, len(r.columns))
	for i, c := range r.columns {
		types[c] = r.types[i]
	}
	return types, nil
}

// AffectedRows implements the dialect.Driver interface.
func (d *Driver) AffectedRows() (int64, error) {
	d.mu.Lock()
	res := d.last
	d.mu.Unlock()
	if res == nil {
		return 0, fmt.Errorf("dialect/sql: no statement executed: %w", dialect.ErrNotSupported)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("dialect/sql: affected rows: %w", errors.Join(err, dialect.ErrNotSupported))
	}
	return n, nil
}

// InsertID implements the dialect.Driver interface.
func (d *Driver) InsertID() (int64, error) {
	if d.dialect == dialect.Postgres {
		return 0, fmt.Errorf("dialect/sql: insert id: %w", dialect.ErrNotImplemented)
	}
	d.mu.Lock()
	res := d.last
	d.mu.Unlock()
	if res == nil {
		return 0, fmt.Errorf("dialect/sql: no statement executed: %w", dialect.ErrNotSupported)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("dialect/sql: insert id: %w", errors.Join(err, dialect.ErrNotImplemented))
	}
	return id, nil
}

// RandomOrder implements the dialect.Driver interface.
func (d *Driver) RandomOrder() string {
	if d.dialect == dialect.MySQL {
		return "RAND()"
	}
	return "RANDOM()"
}

// Begin implements the dialect.Driver interface.
func (d *Driver) Begin(ctx context.Context, savepoint string) error {
	if err := d.beginTx(ctx, savepoint != ""); err != nil {
		return err
	}
	if savepoint == "" {
		return nil
	}
	return d.savepoint(ctx, "SAVEPOINT %s", savepoint)
}

func (d *Driver) beginTx(ctx context.Context, reuse bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return fmt.Errorf("dialect/sql: driver is not connected")
	}
	if d.tx != nil {
		if reuse {
			return nil
		}
		return fmt.Errorf("dialect/sql: transaction already started")
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return &dialect.Error{Code: errorCode(err), Err: fmt.Errorf("begin: %w", err)}
	}
	d.tx = tx
	d.conn = Conn{tx, d.dialect}
	return nil
}

// Commit implements the dialect.Driver interface.
func (d *Driver) Commit(ctx context.Context, savepoint string) error {
	if savepoint != "" {
		return d.savepoint(ctx, "RELEASE SAVEPOINT %s", savepoint)
	}
	return d.endTx(func(tx *sql.Tx) error { return tx.Commit() }, "commit")
}

// Rollback implements the dialect.Driver interface.
func (d *Driver) Rollback(ctx context.Context, savepoint string) error {
	if savepoint != "" {
		return d.savepoint(ctx, "ROLLBACK TO SAVEPOINT %s", savepoint)
	}
	return d.endTx(func(tx *sql.Tx) error { return tx.Rollback() }, "rollback")
}

func (d *Driver) endTx(fn func(*sql.Tx) error, op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx == nil {
		return fmt.Errorf("dialect/sql: %s: no transaction in progress", op)
	}
	err := fn(d.tx)
	d.tx = nil
	d.conn = Conn{d.db, d.dialect}
	if err != nil {
		return &dialect.Error{Code: errorCode(err), Err: fmt.Errorf("%s: %w", op, err)}
	}
	return nil
}

func (d *Driver) savepoint(ctx context.Context, format, name string) error {
	if !isValidIdentifier(name) || strings.Contains(name, ".") {
		return fmt.Errorf("dialect/sql: invalid savepoint name: %q", name)
	}
	d.mu.Lock()
	tx := d.tx
	d.mu.Unlock()
	if tx == nil {
		return fmt.Errorf("dialect/sql: savepoint %q: no transaction in progress", name)
	}
	query := fmt.Sprintf(format, name)
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return d.wrap(query, err)
	}
	return nil
}

// ctyVarsKey is the key used for attaching and reading the context variables.
type ctxVarsKey struct{}

// sessionVars holds sessions/transactions variables to set before every statement.
type sessionVars struct {
	vars []struct{ k, v string }
}

// WithVar returns a new context that holds the session variable to be executed before every query.
func WithVar(ctx context.Context, name, value string) context.Context {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	sv.vars = append(sv.vars, struct {
		k, v string
	}{
		k: name,
		v: value,
	})
	return context.WithValue(ctx, ctxVarsKey{}, sv)
}

// VarFromContext returns the session variable value from the context.
func VarFromContext(ctx context.Context, name string) (string, bool) {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	for _, s := range sv.vars {
		if s.k == name {
			return s.v, true
		}
	}
	return "", false
}

// ExecQuerier wraps the standard Exec and Query methods.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn executes statements on a *sql.DB or *sql.Tx.
type Conn struct {
	ExecQuerier
	dialect string
}

func (c Conn) exec(ctx context.Context, query string) (res sql.Result, rerr error) {
	ex, cf, err := c.maySetVars(ctx)
	if err != nil {
		return nil, fmt.Errorf("set session vars: %w", err)
	}
	if cf != nil {
		defer func() { rerr = errors.Join(rerr, cf()) }()
	}
	return ex.ExecContext(ctx, query)
}

func (c Conn) query(ctx context.Context, query string) (*sql.Rows, func() error, error) {
	ex, cf, err := c.maySetVars(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("set session vars: %w", err)
	}
	rows, err := ex.QueryContext(ctx, query)
	if err != nil {
		if cf != nil {
			err = errors.Join(err, cf())
		}
		return nil, nil, err
	}
	return rows, cf, nil
}

// maySetVars sets the session variables before executing a query.
func (c Conn) maySetVars(ctx context.Context) (ExecQuerier, func() error, error) {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	if len(sv.vars) == 0 {
		return c, nil, nil
	}
	var (
		ex    ExecQuerier  // Underlying ExecQuerier.
		cf    func() error // Close function.
		reset []string     // Reset variables.
		seen  = make(map[string]struct{}, len(sv.vars))
	)
	switch e := c.ExecQuerier.(type) {
	case *sql.Tx:
		ex = e
	case *sql.DB:
		conn, err := e.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		ex, cf = conn, conn.Close
	default:
		return nil, nil, fmt.Errorf("unsupported ExecQuerier type: %T", c.ExecQuerier)
	}
	for _, s := range sv.vars {
		if !isValidIdentifier(s.k) {
			if cf != nil {
				_ = cf()
			}
			return nil, nil, fmt.Errorf("invalid session variable name: %q", s.k)
		}
		if _, ok := seen[s.k]; !ok {
			switch c.dialect {
			case dialect.Postgres:
				reset = append(reset, fmt.Sprintf("RESET %s", s.k))
			case dialect.MySQL:
				reset = append(reset, fmt.Sprintf("SET %s = NULL", s.k))
			}
			seen[s.k] = struct{}{}
		}
		if _, err := ex.ExecContext(ctx, fmt.Sprintf("SET %s = '%s'", s.k, escapeStringValue(s.v))); err != nil {
			if cf != nil {
				err = errors.Join(err, cf())
			}
			return nil, nil, err
		}
	}
	// Variables are reset before the connection goes back to the pool. The
	// cleanup gets its own context so it runs even if ctx was canceled.
	if cls := cf; cf != nil && len(reset) > 0 {
		cf = func() error {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, q := range reset {
				if _, err := ex.ExecContext(cleanupCtx, q); err != nil {
					return errors.Join(err, cls())
				}
			}
			return cls()
		}
	}
	return ex, cf, nil
}

var _ dialect.Driver = (*Driver)(nil)

// execResult is the result set of a statement that produces no rows.
type execResult struct {
	res sql.Result
}
