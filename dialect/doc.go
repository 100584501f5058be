// Package dialect defines the contract between the statement builder and the
// database specific drivers.
//
// The builder renders statements into SQL text and hands them to a Driver;
// everything that depends on a particular database engine (executing SQL,
// quoting identifiers and literals, schema introspection, transactions) lives
// behind that interface.
//
// # Dialect Constants
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// # Types
//
// Type is the dialect neutral value-kind enumeration. It selects how a value is
// escaped when written into a statement and how a fetched value is converted
// back:
//
//	dialect.Bool, dialect.Int, dialect.Float, dialect.Text, dialect.Binary,
//	dialect.DateTime, dialect.Array, dialect.Literal, dialect.Identifier,
//	dialect.Subquery
//
// # Driver Interface
//
// Drivers execute raw SQL and return an opaque ResultSet handle which is later
// passed back to Fetch, Seek, NumRows, ColumnTypes and FreeResultSet. The
// default implementation, built on database/sql, lives in dialect/sql.
package dialect
