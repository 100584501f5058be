package sqlkit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/syssam/sqlkit/dialect"
	sqldrv "github.com/syssam/sqlkit/dialect/sql"
)

// noPrimaryKey is the cached marker of a table without a primary key.
const noPrimaryKey = ""

// Connection is the entry point for building statements. It owns the
// Driver, the metadata Cache and the observers.
//
// A Connection and the statements built from it are not safe for concurrent
// use, except for Attach and Detach.
type Connection struct {
	id     string
	driver dialect.Driver
	cache  Cache
	logger *slog.Logger
	hooks  Hooks

	tablePrefix    string
	detectTypes    bool
	datetimeFormat string

	mu        sync.Mutex
	observers []subscription
	aliases   atomic.Int64
	closed    bool
}

// Option configures a Connection.
type Option func(*Connection)

// WithCache sets the metadata cache. Defaults to an in-memory cache.
func WithCache(c Cache) Option {
	return func(conn *Connection) {
		conn.cache = c
	}
}

// WithLogger sets the logger. Defaults to a logger that discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(conn *Connection) {
		conn.logger = l
	}
}

// WithObserver attaches o for the events in mask.
func WithObserver(o Observer, mask Event) Option {
	return func(conn *Connection) {
		conn.observers = append(conn.observers, subscription{observer: o, mask: mask})
	}
}

// WithHooks overrides the dialect hooks. Nil hooks keep the dialect's.
func WithHooks(h Hooks) Option {
	return func(conn *Connection) {
		if h.ApplyLimit != nil {
			conn.hooks.ApplyLimit = h.ApplyLimit
		}
		if h.Update != nil {
			conn.hooks.Update = h.Update
		}
		if h.Delete != nil {
			conn.hooks.Delete = h.Delete
		}
	}
}

// WithTablePrefix sets the prefix prepended to every table name.
func WithTablePrefix(prefix string) Option {
	return func(conn *Connection) {
		conn.tablePrefix = prefix
	}
}

// WithTypeDetection enables conversion of fetched values based on the
// column types reported by the database.
func WithTypeDetection(enabled bool) Option {
	return func(conn *Connection) {
		conn.detectTypes = enabled
	}
}

// WithDatetimeFormat sets the layout DATETIME values are converted with.
// See Config.DatetimeFormat.
func WithDatetimeFormat(layout string) Option {
	return func(conn *Connection) {
		conn.datetimeFormat = layout
	}
}

// New connects the given driver and returns a Connection using it.
func New(ctx context.Context, drv dialect.Driver, opts ...Option) (*Connection, error) {
	if drv == nil {
		return nil, argErrorf("connect", "nil driver")
	}
	c := &Connection{
		id:     uuid.NewString(),
		driver: drv,
		cache:  NewMemoryCache(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		hooks:  DialectHooks(drv.Dialect()),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := drv.Connect(ctx); err != nil {
		c.notify(ctx, EventException, err)
		return nil, fmt.Errorf("sqlkit: connect: %w", err)
	}
	c.logger = c.logger.With("conn", c.id, "dialect", drv.Dialect())
	c.logger.DebugContext(ctx, "connected")
	c.notify(ctx, EventConnect, c)
	return c, nil
}

// Open creates a database/sql backed driver from cfg and connects it.
// Options are applied after the ones the configuration implies.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Connection, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	probe := &Connection{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(probe)
	}
	var drv dialect.Driver = sqldrv.New(cfg.driverOptions())
	if cfg.SlowThreshold > 0 {
		drv = sqldrv.NewStatsDriver(drv,
			sqldrv.WithSlowThreshold(cfg.SlowThreshold),
			sqldrv.WithSlowQueryLog(probe.logger),
		)
	}
	if cfg.Debug {
		logger := probe.logger
		drv = sqldrv.NewDebugDriver(drv, sqldrv.DebugWithLog(func(ctx context.Context, v ...any) {
			logger.DebugContext(ctx, fmt.Sprint(v...))
		}))
	}
	return New(ctx, drv, append(cfg.options(), opts...)...)
}

// ID returns the unique identifier of the connection.
func (c *Connection) ID() string { return c.id }

// Driver returns the underlying driver.
func (c *Connection) Driver() dialect.Driver { return c.driver }

// Cache returns the metadata cache.
func (c *Connection) Cache() Cache { return c.cache }

// Logger returns the connection logger.
func (c *Connection) Logger() *slog.Logger { return c.logger }

// Dialect returns the dialect name of the driver.
func (c *Connection) Dialect() string { return c.driver.Dialect() }

// TablePrefix returns the table prefix.
func (c *Connection) TablePrefix() string { return c.tablePrefix }

// Select starts a SELECT of columns from source. Columns is a comma
// separated string, a []string or a Literal; source is a table name or a
// *Result used as sub-query.
//
// Argument errors are deferred to Err, Parse and every method that runs
// the statement.
func (c *Connection) Select(columns, source any) *Result {
	r, err := NewResult(c, columns, source)
	if err != nil {
		r.addErr(err)
	}
	return r
}

// Insert starts an INSERT of values into table.
func (c *Connection) Insert(table string, values map[string]any) *Statement {
	s, err := NewInsert(c, table, values)
	if err != nil {
		s.addErr(err)
	}
	return s
}

// Update starts an UPDATE of table setting data.
func (c *Connection) Update(table string, data map[string]any) *Statement {
	s, err := NewUpdate(c, table, data)
	if err != nil {
		s.addErr(err)
	}
	return s
}

// Delete starts a DELETE from table.
func (c *Connection) Delete(table string) *Statement {
	s, err := NewDelete(c, table)
	if err != nil {
		s.addErr(err)
	}
	return s
}

// Begin starts a transaction, or creates the named savepoint.
func (c *Connection) Begin(ctx context.Context, savepoint string) error {
	return c.tx(ctx, EventBegin, savepoint, c.driver.Begin)
}

// Commit commits the transaction, or releases the named savepoint.
func (c *Connection) Commit(ctx context.Context, savepoint string) error {
	return c.tx(ctx, EventCommit, savepoint, c.driver.Commit)
}

// Rollback rolls back the transaction, or to the named savepoint.
func (c *Connection) Rollback(ctx context.Context, savepoint string) error {
	return c.tx(ctx, EventRollback, savepoint, c.driver.Rollback)
}

func (c *Connection) tx(ctx context.Context, ev Event, savepoint string, fn func(context.Context, string) error) error {
	if err := fn(ctx, savepoint); err != nil {
		err = fmt.Errorf("sqlkit: %s: %w", ev, err)
		c.notify(ctx, EventException, err)
		return err
	}
	c.logger.DebugContext(ctx, ev.String(), "savepoint", savepoint)
	c.notify(ctx, ev, c)
	return nil
}

// Close closes the driver. Closing twice is a no-op.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	if err := c.driver.Close(); err != nil {
		return fmt.Errorf("sqlkit: close: %w", err)
	}
	c.logger.DebugContext(ctx, "closed")
	c.notify(ctx, EventClose, c)
	return nil
}

// PrimaryKey returns the primary key column of table, or "" if the table
// has none. Lookups are cached, including the absence of a primary key.
func (c *Connection) PrimaryKey(ctx context.Context, table string) (string, error) {
	table = c.prefixTable(table)
	key := cacheKey(table, "primaryKey")
	var pk string
	if c.cacheLoad(ctx, key, &pk) {
		return pk, nil
	}
	pk, err := c.driver.PrimaryKey(ctx, table)
	if err != nil {
		return "", fmt.Errorf("sqlkit: primary key of %q: %w", table, err)
	}
	c.cacheStore(ctx, key, pk)
	return pk, nil
}

// prefixTable applies the table prefix to name.
func (c *Connection) prefixTable(name string) string {
	return c.tablePrefix + name
}

// nextAlias returns a new sub-query alias.
func (c *Connection) nextAlias() string {
	return fmt.Sprintf("_table_%d", c.aliases.Add(1))
}

// Escape renders v as an SQL value of the connection's dialect. Without a
// type the value is escaped by its Go type.
func (c *Connection) Escape(v any, typ ...Type) (string, error) {
	return (&Parser{conn: c}).Escape(v, typ...)
}

// FieldName resolves and quotes a column reference. See Parser.FieldName.
func (c *Connection) FieldName(field any) (string, error) {
	return (&Parser{conn: c}).FieldName(field)
}
