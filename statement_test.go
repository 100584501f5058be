package sqlkit_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/sqlkit"
	"github.com/syssam/sqlkit/dialect"
)

func TestInsert(t *testing.T) {
	ctx := context.Background()
	var executed []sqlkit.Executed
	conn, mock := newConn(t, dialect.SQLite, sqlkit.WithObserver(sqlkit.ObserverFunc(func(_ context.Context, ev sqlkit.Event, s any) {
		executed = append(executed, s.(sqlkit.Executed))
	}), sqlkit.EventInsert))
	mock.ExpectExec(`INSERT INTO "users" ("id", "name") VALUES (5, 'John Doe')`).
		WillReturnResult(sqlmock.NewResult(5, 1))

	stmt := conn.Insert("users", map[string]any{"name": "John Doe", "id": 5})
	id, ok, err := stmt.InsertID(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), id)

	n, err := stmt.AffectedRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.Len(t, executed, 1, "a performed statement runs once")
	assert.Equal(t, sqlkit.Insert, executed[0].Type())
	assert.Equal(t, `INSERT INTO "users" ("id", "name") VALUES (5, 'John Doe')`, executed[0].String())
	assert.GreaterOrEqual(t, executed[0].Elapsed(), time.Duration(0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIDUnsupported(t *testing.T) {
	ctx := context.Background()
	conn, mock := newConn(t, dialect.Postgres)
	mock.ExpectExec(`INSERT INTO "users" ("name") VALUES ('x')`).WillReturnResult(sqlmock.NewResult(0, 1))

	id, ok, err := conn.Insert("users", map[string]any{"name": "x"}).InsertID(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIDNotInsert(t *testing.T) {
	conn, _ := newConn(t, dialect.SQLite)
	_, _, err := conn.Delete("users").InsertID(context.Background())
	assert.ErrorIs(t, err, sqlkit.ErrNotInsert)
	assert.True(t, sqlkit.IsArgumentError(err))
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	conn, mock := newConn(t, dialect.MySQL)
	mock.ExpectExec("UPDATE `users` SET `name` = 'Bob' WHERE (`id` IN (1, 2)) LIMIT 2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM `users` WHERE (`active` = 0) OR (deleted_at IS NOT NULL) ORDER BY `id` DESC LIMIT 10").
		WillReturnResult(sqlmock.NewResult(0, 10))

	n, err := conn.Update("users", map[string]any{"name": "Bob"}).Where("id", []int{1, 2}).Limit(2).AffectedRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	stmt := conn.Delete("users").
		Where(":active = %b", false).
		Or("deleted_at IS NOT NULL").
		Order("id", sqlkit.Desc).
		Limit(10)
	require.NoError(t, stmt.Run(ctx))
	n, err = stmt.AffectedRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatementFailure(t *testing.T) {
	ctx := context.Background()
	conn, mock := newConn(t, dialect.SQLite)
	mock.ExpectExec(`UPDATE "users" SET "name" = 'x'`).WillReturnError(assert.AnError)

	err := conn.Update("users", map[string]any{"name": "x"}).Run(ctx)
	var qerr *sqlkit.QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, sqlkit.Update, qerr.Op)
	assert.Equal(t, `UPDATE "users" SET "name" = 'x'`, qerr.SQL)

	_, err = conn.Insert("users", nil).AffectedRows(ctx)
	assert.True(t, sqlkit.IsArgumentError(err), "build errors surface on run")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatementValues(t *testing.T) {
	conn, _ := newConn(t, dialect.SQLite)
	values := map[string]any{"a": 1}
	stmt := conn.Insert("t", values)
	values["b"] = 2
	assert.Equal(t, map[string]any{"a": 1}, stmt.Values(), "values are copied")
	assert.Equal(t, sqlkit.Insert, stmt.Type())
	assert.Equal(t, "t", stmt.Source())

	sub := conn.Select("MAX(:id)", "t")
	stmt = conn.Insert("t", map[string]any{"id": sub, "at": sqlkit.Raw("CURRENT_TIMESTAMP")})
	assert.Equal(t, `INSERT INTO "t" ("at", "id") VALUES (CURRENT_TIMESTAMP, (SELECT MAX("id") FROM "t"))`, parse(t, stmt))
}
