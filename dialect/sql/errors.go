package sql

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// errorCode extracts the engine specific error code from a driver error.
// MySQL and SQLite codes are numeric, PostgreSQL codes are SQLSTATE strings.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := asError[*mysql.MySQLError](err); ok {
		return strconv.Itoa(int(e.Number))
	}
	if e, ok := asError[*pq.Error](err); ok {
		return string(e.Code)
	}
	if e, ok := asError[*pgconn.PgError](err); ok {
		return e.Code
	}
	if e, ok := asError[*sqlite.Error](err); ok {
		return strconv.Itoa(e.Code())
	}
	return ""
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
func IsUniqueConstraintError(err error) bool {
	return hasCode(err,
		pgUniqueViolation,
		strconv.Itoa(mysqlDuplicateEntry),
		strconv.Itoa(sqlite3.SQLITE_CONSTRAINT_UNIQUE),
		strconv.Itoa(sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY),
	) || containsAny(err,
		"Error 1062",                 // MySQL (string fallback)
		"violates unique constraint", // Postgres (string fallback)
		"UNIQUE constraint failed",   // SQLite
	)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool {
	return hasCode(err,
		pgForeignKeyViolation,
		strconv.Itoa(mysqlForeignKeyParent),
		strconv.Itoa(mysqlForeignKeyChild),
		strconv.Itoa(sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY),
	) || containsAny(err,
		"violates foreign key constraint", // Postgres
		"FOREIGN KEY constraint failed",   // SQLite
	)
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	return hasCode(err,
		pgCheckViolation,
		strconv.Itoa(mysqlCheckConstraintViolate),
		strconv.Itoa(sqlite3.SQLITE_CONSTRAINT_CHECK),
	) || containsAny(err,
		"violates check constraint", // Postgres
		"CHECK constraint failed",   // SQLite
	)
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

func hasCode(err error, codes ...string) bool {
	code := errorCode(err)
	if code == "" {
		return false
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func containsAny(err error, subs ...string) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// asError is a generic helper for errors.As.
func asError[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}
