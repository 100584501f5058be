package sqlkit_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/sqlkit"
	"github.com/syssam/sqlkit/dialect"
)

// primaryKeys returns a cache that knows the primary keys of tables.
func primaryKeys(t *testing.T, keys map[string]string) *sqlkit.MemoryCache {
	t.Helper()
	cache := sqlkit.NewMemoryCache()
	for table, pk := range keys {
		b, err := msgpack.Marshal(pk)
		require.NoError(t, err)
		require.NoError(t, cache.Set(context.Background(), table+"_primaryKey", b))
	}
	return cache
}

func TestRowAccess(t *testing.T) {
	ctx := context.Background()
	conn, mock := newConn(t, dialect.SQLite)
	mock.ExpectQuery(`SELECT * FROM "users"`).
		WillReturnRows(mockRows(mock, "id", "INTEGER", "name", "TEXT", "email", "TEXT").AddRow(int64(1), "Ann", nil))

	row, err := conn.Select("*", "users").Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, row.Len())
	assert.Equal(t, []string{"email", "id", "name"}, row.Fields())
	assert.True(t, row.Has("email"))
	v, ok := row.Lookup("email")
	assert.True(t, ok)
	assert.Nil(t, v)
	_, ok = row.Lookup("missing")
	assert.False(t, ok)
	assert.Nil(t, row.Get("missing"))

	var keys []string
	for k := range row.All() {
		keys = append(keys, k)
	}
	assert.Equal(t, row.Fields(), keys)

	data := row.Data()
	data["name"] = "changed"
	assert.Equal(t, "Ann", row.Get("name"), "Data returns a copy")

	row.Set("name", "Zed")
	row.Set("email", "z@example.com")
	row.Delete("email")
	assert.Equal(t, []string{"name"}, row.Modified())
	assert.False(t, row.Has("email"))
	assert.Equal(t, "map[id:1 name:Zed]", row.String())

	other := *row
	assert.True(t, row.Equal(&other))
	assert.False(t, row.Equal(nil))
}

func TestRowUpdate(t *testing.T) {
	ctx := context.Background()
	conn, mock := newConn(t, dialect.SQLite, sqlkit.WithCache(primaryKeys(t, map[string]string{"users": "id"})))
	mock.ExpectQuery(`SELECT * FROM "users" WHERE ("id" = 1)`).
		WillReturnRows(mockRows(mock, "id", "INTEGER", "name", "TEXT").AddRow(int64(1), "Ann"))
	mock.ExpectExec(`UPDATE "users" SET "name" = 'Zed' WHERE ("id" = 1)`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "users" SET "id" = 9 WHERE ("id" = 1)`).WillReturnResult(sqlmock.NewResult(0, 1))

	row, err := conn.Select("*", "users").Where("id", 1).Fetch(ctx)
	require.NoError(t, err)

	n, err := row.Update(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing modified")

	row.Set("name", "Zed")
	n, err = row.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, row.Modified())

	row.Set("id", 9)
	_, err = row.Update(ctx)
	require.NoError(t, err, "the original key matches the row")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRowUpdateWithoutPrimaryKey(t *testing.T) {
	ctx := context.Background()
	conn, mock := newConn(t, dialect.SQLite, sqlkit.WithCache(primaryKeys(t, map[string]string{"logs": ""})))
	mock.ExpectQuery(`SELECT * FROM "logs"`).
		WillReturnRows(mockRows(mock, "msg", "TEXT").AddRow("hi"))

	row, err := conn.Select("*", "logs").Fetch(ctx)
	require.NoError(t, err)
	row.Set("msg", "bye")
	_, err = row.Update(ctx)
	assert.ErrorIs(t, err, sqlkit.ErrNoPrimaryKey)
}

func TestRowReferenced(t *testing.T) {
	ctx := context.Background()
	conn, mock := newConn(t, dialect.SQLite, sqlkit.WithCache(primaryKeys(t, map[string]string{"authors": "id"})))
	mock.ExpectQuery(`SELECT * FROM "posts"`).
		WillReturnRows(mockRows(mock, "id", "INTEGER", "author_id", "INTEGER").AddRow(int64(10), int64(3)))
	mock.ExpectQuery(`SELECT * FROM "authors" WHERE ("id" = 3) LIMIT 1`).
		WillReturnRows(mockRows(mock, "id", "INTEGER", "name", "TEXT").AddRow(int64(3), "Ann"))

	post, err := conn.Select("*", "posts").Fetch(ctx)
	require.NoError(t, err)
	author, err := post.Referenced(ctx, "authors")
	require.NoError(t, err)
	require.NotNil(t, author)
	assert.Equal(t, "Ann", author.Get("name"))

	tag, err := post.Referenced(ctx, "tags")
	require.NoError(t, err)
	assert.Nil(t, tag, "no tag_id field")
	require.NoError(t, mock.ExpectationsWereMet())
}
