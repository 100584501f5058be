package sql

import (
	"context"
	"fmt"
	"strings"

	"ariga.io/atlas/sql/migrate"
	atlasmysql "ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	atlassqlite "ariga.io/atlas/sql/sqlite"

	"github.com/syssam/sqlkit/dialect"
)

// PrimaryKey returns the first primary key column of the table, or "" when
// the table has no primary key. A table may be schema qualified ("app.users").
func (d *Driver) PrimaryKey(ctx context.Context, table string) (string, error) {
	db := d.DB()
	if db == nil {
		return "", fmt.Errorf("dialect/sql: driver is not connected")
	}
	var (
		drv migrate.Driver
		err error
	)
	switch d.dialect {
	case dialect.MySQL:
		drv, err = atlasmysql.Open(db)
	case dialect.Postgres:
		drv, err = postgres.Open(db)
	case dialect.SQLite:
		drv, err = atlassqlite.Open(db)
	default:
		return "", fmt.Errorf("dialect/sql: inspect %s: %w", d.dialect, dialect.ErrNotSupported)
	}
	if err != nil {
		return "", fmt.Errorf("dialect/sql: inspect: %w", err)
	}
	name, ns := table, ""
	if i := strings.LastIndexByte(table, '.'); i > 0 {
		ns, name = table[:i], table[i+1:]
	}
	if ns == "" && d.dialect == dialect.SQLite {
		ns = "main"
	}
	s, err := drv.InspectSchema(ctx, ns, &schema.InspectOptions{Tables: []string{name}})
	if err != nil {
		return "", fmt.Errorf("dialect/sql: inspect table %q: %w", table, err)
	}
	t, ok := s.Table(name)
	if !ok {
		return "", fmt.Errorf("dialect/sql: table %q not found", table)
	}
	if t.PrimaryKey == nil || len(t.PrimaryKey.Parts) == 0 || t.PrimaryKey.Parts[0].C == nil {
		return "", nil
	}
	return t.PrimaryKey.Parts[0].C.Name, nil
}
