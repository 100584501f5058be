package sqlkit_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/syssam/sqlkit"
	sqldrv "github.com/syssam/sqlkit/dialect/sql"
)

// newConn returns a connection over a sqlmock database matching statements
// exactly.
func newConn(t *testing.T, name string, opts ...sqlkit.Option) (*sqlkit.Connection, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	conn, err := sqlkit.New(context.Background(), sqldrv.OpenDB(name, db), opts...)
	require.NoError(t, err)
	return conn, mock
}

// mockRows builds rows from column name and database type pairs.
func mockRows(mock sqlmock.Sqlmock, cols ...string) *sqlmock.Rows {
	defs := make([]*sqlmock.Column, 0, len(cols)/2)
	for i := 0; i+1 < len(cols); i += 2 {
		defs = append(defs, sqlmock.NewColumn(cols[i]).OfType(cols[i+1], ""))
	}
	return mock.NewRowsWithColumnDefinition(defs...)
}

func parse(t *testing.T, s interface{ Parse() (string, error) }) string {
	t.Helper()
	query, err := s.Parse()
	require.NoError(t, err)
	return query
}
