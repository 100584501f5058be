// Package sql implements dialect.Driver on top of database/sql.
//
// It supports MySQL (github.com/go-sql-driver/mysql), PostgreSQL
// (github.com/lib/pq or github.com/jackc/pgx/v5 through its stdlib adapter)
// and SQLite (modernc.org/sqlite). The driver knows how each engine quotes
// identifiers and literals, reads primary keys through schema inspection and
// maps engine error codes into dialect.Error values.
//
// # Opening a driver
//
//	drv := sql.New(sql.Options{
//	    Driver:   "mysql",
//	    Host:     "localhost",
//	    User:     "root",
//	    Database: "app",
//	})
//	if err := drv.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
// Or wrap an existing *sql.DB:
//
//	drv := sql.OpenDB(dialect.Postgres, db)
//
// # Result sets
//
// By default every SELECT is read into memory when it is executed, so Seek and
// NumRows work and the underlying connection is released immediately. With
// Options.Unbuffered rows are streamed instead; Seek and NumRows then return
// dialect.ErrNotSupported.
//
// # Session variables
//
// Variables attached to the context with WithVar are set on the connection
// before the statement runs and reset afterwards:
//
//	ctx = sql.WithVar(ctx, "search_path", "tenant_1")
//
// # Wrappers
//
// StatsDriver collects query statistics and reports slow queries; DebugDriver
// logs every statement through log/slog.
package sql
