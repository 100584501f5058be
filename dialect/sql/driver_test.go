package sql

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/sqlkit/dialect"
)

func mockRows(mock sqlmock.Sqlmock, cols ...string) *sqlmock.Rows {
	defs := make([]*sqlmock.Column, 0, len(cols)/2)
	for i := 0; i+1 < len(cols); i += 2 {
		defs = append(defs, sqlmock.NewColumn(cols[i]).OfType(cols[i+1], ""))
	}
	return mock.NewRowsWithColumnDefinition(defs...)
}

func TestWithVars(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	drv := OpenDB(dialect.Postgres, db)
	mock.ExpectExec("SET foo = 'bar'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1").WillReturnRows(mockRows(mock, "one", "INT").AddRow(1))
	mock.ExpectExec("RESET foo").WillReturnResult(sqlmock.NewResult(0, 0))
	rs, err := drv.RunQuery(WithVar(context.Background(), "foo", "bar"), "SELECT 1")
	require.NoError(t, err)
	require.NoError(t, drv.FreeResultSet(rs))
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectExec("SET foo = 'bar'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET foo = 'baz'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1").WillReturnRows(mockRows(mock, "one", "INT").AddRow(1))
	mock.ExpectExec("RESET foo").WillReturnResult(sqlmock.NewResult(0, 0))
	_, err = drv.RunQuery(WithVar(WithVar(context.Background(), "foo", "bar"), "foo", "baz"), "SELECT 1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectExec("SET foo = 'qux'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO users DEFAULT VALUES").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("RESET foo").WillReturnResult(sqlmock.NewResult(0, 0))
	_, err = drv.RunQuery(WithVar(context.Background(), "foo", "qux"), "INSERT INTO users DEFAULT VALUES")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	v, ok := VarFromContext(WithVar(context.Background(), "foo", "bar"), "foo")
	assert.True(t, ok)
	assert.Equal(t, "bar", v)

	_, err = drv.RunQuery(WithVar(context.Background(), "foo; DROP", "x"), "SELECT 1")
	require.Error(t, err)
}

// TestOpenDB tests the OpenDB function with different dialects.
func TestOpenDB(t *testing.T) {
	tests := []struct {
		name    string
		driver  string
		dialect string
	}{
		{"Postgres", "postgres", dialect.Postgres},
		{"PGX", "pgx", dialect.Postgres},
		{"MySQL", "mysql", dialect.MySQL},
		{"SQLite", "sqlite", dialect.SQLite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			drv := OpenDB(tt.driver, db)
			assert.NotNil(t, drv)
			assert.Equal(t, tt.dialect, drv.Dialect())
			assert.Same(t, db, drv.DB())
			require.NoError(t, drv.Connect(context.Background()))
		})
	}
}

func TestDriverQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.MySQL, db)

	t.Run("buffered", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name FROM users").
			WillReturnRows(mockRows(mock, "id", "INT", "name", "VARCHAR").
				AddRow(1, "Alice").
				AddRow(2, "Bob"))

		rs, err := drv.RunQuery(context.Background(), "SELECT id, name FROM users")
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())

		n, err := drv.NumRows(rs)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		types, err := drv.ColumnTypes(rs, "users")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"id": "INT", "name": "VARCHAR"}, types)

		row, err := drv.Fetch(rs)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"id": int64(1), "name": "Alice"}, row)
		row, err = drv.Fetch(rs)
		require.NoError(t, err)
		assert.Equal(t, "Bob", row["name"])
		row, err = drv.Fetch(rs)
		require.NoError(t, err)
		assert.Nil(t, row)

		require.NoError(t, drv.Seek(rs, 1))
		row, err = drv.Fetch(rs)
		require.NoError(t, err)
		assert.Equal(t, "Bob", row["name"])
		require.Error(t, drv.Seek(rs, 5))
		require.NoError(t, drv.FreeResultSet(rs))
	})

	t.Run("error", func(t *testing.T) {
		mock.ExpectQuery("SELECT").WillReturnError(&mysql.MySQLError{Number: 1146, Message: "no such table"})

		_, err := drv.RunQuery(context.Background(), "SELECT * FROM nope")
		require.Error(t, err)
		var de *dialect.Error
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "SELECT * FROM nope", de.SQL)
		assert.Equal(t, "1146", de.Code)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("row error", func(t *testing.T) {
		mock.ExpectQuery("SELECT id FROM t").
			WillReturnRows(mockRows(mock, "id", "INT").
				AddRow(1).
				AddRow(2).
				RowError(1, errors.New("boom")))

		var rs dialect.ResultSet
		require.NotPanics(t, func() {
			rs, err = drv.RunQuery(context.Background(), "SELECT id FROM t")
		})
		require.Error(t, err)
		assert.Nil(t, rs)
		var de *dialect.Error
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "SELECT id FROM t", de.SQL)
		assert.ErrorContains(t, err, "boom")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDriverUnbuffered(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := New(Options{Driver: "sqlite", Unbuffered: true})
	drv.db, drv.conn = db, Conn{db, dialect.SQLite}

	mock.ExpectQuery("SELECT id FROM users").
		WillReturnRows(mockRows(mock, "id", "INTEGER").AddRow(1).AddRow(2))
	rs, err := drv.RunQuery(context.Background(), "SELECT id FROM users")
	require.NoError(t, err)

	_, err = drv.NumRows(rs)
	assert.True(t, dialect.IsNotSupported(err))
	assert.True(t, dialect.IsNotSupported(drv.Seek(rs, 0)))

	var ids []any
	for {
		row, err := drv.Fetch(rs)
		require.NoError(t, err)
		if row == nil {
			break
		}
		ids = append(ids, row["id"])
	}
	assert.Equal(t, []any{int64(1), int64(2)}, ids)
	require.NoError(t, drv.FreeResultSet(rs))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	t.Run("mysql", func(t *testing.T) {
		drv := OpenDB(dialect.MySQL, db)
		_, err := drv.AffectedRows()
		assert.True(t, dialect.IsNotSupported(err))

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (name) VALUES ('test')")).
			WillReturnResult(sqlmock.NewResult(7, 1))
		rs, err := drv.RunQuery(context.Background(), "INSERT INTO users (name) VALUES ('test')")
		require.NoError(t, err)
		row, err := drv.Fetch(rs)
		require.NoError(t, err)
		assert.Nil(t, row)

		n, err := drv.AffectedRows()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		id, err := drv.InsertID()
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("postgres", func(t *testing.T) {
		drv := OpenDB(dialect.Postgres, db)
		mock.ExpectExec("DELETE FROM users").WillReturnResult(sqlmock.NewResult(0, 3))
		_, err := drv.RunQuery(context.Background(), "DELETE FROM users")
		require.NoError(t, err)
		_, err = drv.InsertID()
		assert.True(t, dialect.IsNotImplemented(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDriverTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.Postgres, db)
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		require.NoError(t, drv.Begin(ctx, ""))
		require.Error(t, drv.Begin(ctx, ""), "nested begin without savepoint")
		_, err := drv.RunQuery(ctx, "INSERT INTO users (name) VALUES ('test')")
		require.NoError(t, err)
		require.NoError(t, drv.Commit(ctx, ""))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("savepoint", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("SAVEPOINT sp1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("ROLLBACK TO SAVEPOINT sp1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("RELEASE SAVEPOINT sp1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		require.NoError(t, drv.Begin(ctx, "sp1"))
		require.NoError(t, drv.Rollback(ctx, "sp1"))
		require.NoError(t, drv.Commit(ctx, "sp1"))
		require.Error(t, drv.Commit(ctx, "bad name"))
		require.NoError(t, drv.Rollback(ctx, ""))
		require.Error(t, drv.Rollback(ctx, ""))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDriverEscape(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	tests := []struct {
		dialect string
		value   any
		typ     dialect.Type
		want    string
	}{
		{dialect.MySQL, "it's", dialect.Text, `'it''s'`},
		{dialect.MySQL, `a\b`, dialect.Text, `'a\\b'`},
		{dialect.Postgres, "it's", dialect.Text, `'it''s'`},
		{dialect.SQLite, "it's", dialect.Text, `'it''s'`},
		{dialect.MySQL, true, dialect.Bool, "1"},
		{dialect.MySQL, "f", dialect.Bool, "1"},
		{dialect.Postgres, false, dialect.Bool, "FALSE"},
		{dialect.SQLite, 0, dialect.Bool, "0"},
		{dialect.MySQL, []byte{0xca, 0xfe}, dialect.Binary, "X'cafe'"},
		{dialect.Postgres, []byte{0xca, 0xfe}, dialect.Binary, `'\xcafe'::bytea`},
		{dialect.MySQL, ts, dialect.DateTime, "'2024-05-06 07:08:09'"},
		{dialect.SQLite, "2024-01-01", dialect.DateTime, "'2024-01-01'"},
		{dialect.MySQL, "users.id", dialect.Identifier, "`users`.`id`"},
		{dialect.MySQL, "users.*", dialect.Identifier, "`users`.*"},
		{dialect.Postgres, "users.id", dialect.Identifier, `"users"."id"`},
		{dialect.SQLite, `we"ird`, dialect.Identifier, `"we""ird"`},
	}
	for _, tt := range tests {
		t.Run(tt.dialect+"/"+tt.typ.String(), func(t *testing.T) {
			drv := New(Options{Driver: tt.dialect})
			got, err := drv.Escape(tt.value, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := New(Options{Driver: "mysql"}).Escape(1, dialect.Array)
	assert.True(t, dialect.IsNotSupported(err))
}

func TestDriverUnescape(t *testing.T) {
	pg := New(Options{Driver: "postgres"})
	v, err := pg.Unescape(`\xcafe`, dialect.Binary)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xca, 0xfe}, v)

	v, err = New(Options{Driver: "mysql"}).Unescape([]byte("abc"), dialect.Binary)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), v)

	_, err = pg.Unescape("x", dialect.Text)
	assert.True(t, dialect.IsNotSupported(err))
}

func TestRandomOrder(t *testing.T) {
	assert.Equal(t, "RAND()", New(Options{Driver: "mysql"}).RandomOrder())
	assert.Equal(t, "RANDOM()", New(Options{Driver: "postgres"}).RandomOrder())
	assert.Equal(t, "RANDOM()", New(Options{Driver: "sqlite"}).RandomOrder())
}

func TestDataSourceName(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{
			name: "dsn wins",
			opts: Options{Driver: "mysql", DSN: "root@/app", Host: "ignored"},
			want: "root@/app",
		},
		{
			name: "mysql",
			opts: Options{Driver: "mysql", Host: "db", Port: 3306, User: "root", Password: "pw", Database: "app"},
			want: "root:pw@tcp(db:3306)/app",
		},
		{
			name: "postgres",
			opts: Options{Driver: "postgres", Host: "db", User: "app", Password: "p w", Database: "app", Params: map[string]string{"sslmode": "disable"}},
			want: "dbname=app host=db password='p w' sslmode=disable user=app",
		},
		{
			name: "sqlite memory",
			opts: Options{Driver: "sqlite"},
			want: ":memory:",
		},
		{
			name: "sqlite params",
			opts: Options{Driver: "sqlite", Database: "app.db", Params: map[string]string{"mode": "ro", "cache": "shared"}},
			want: "file:app.db?cache=shared&mode=ro",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.DataSourceName()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	_, err := Options{Driver: "oracle"}.DataSourceName()
	require.Error(t, err)
}

func TestPrimaryKeySQLite(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)
	ctx := context.Background()
	_, err = db.ExecContext(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "CREATE TABLE logs (msg TEXT)")
	require.NoError(t, err)

	drv := OpenDB(dialect.SQLite, db)
	pk, err := drv.PrimaryKey(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, "id", pk)

	pk, err = drv.PrimaryKey(ctx, "logs")
	require.NoError(t, err)
	assert.Empty(t, pk)

	_, err = drv.PrimaryKey(ctx, "missing")
	require.Error(t, err)
}

func TestConstraintErrors(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	assert.True(t, IsUniqueConstraintError(dup))
	assert.True(t, IsConstraintError(dup))
	assert.False(t, IsForeignKeyConstraintError(dup))
	assert.True(t, IsForeignKeyConstraintError(&mysql.MySQLError{Number: 1452}))
	assert.True(t, IsCheckConstraintError(errors.New("CHECK constraint failed: age")))
	assert.False(t, IsConstraintError(errors.New("boom")))
	assert.False(t, IsConstraintError(nil))
}

func TestStatsDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var slow []string
	drv := NewStatsDriver(OpenDB(dialect.SQLite, db),
		WithSlowThreshold(-1),
		WithSlowQueryHook(func(_ context.Context, query string, _ time.Duration) {
			slow = append(slow, query)
		}),
	)
	mock.ExpectQuery("SELECT 1").WillReturnRows(mockRows(mock, "one", "INT").AddRow(1))
	mock.ExpectExec("DELETE").WillReturnError(errors.New("locked"))
	mock.ExpectBegin()

	ctx := context.Background()
	_, err = drv.RunQuery(ctx, "SELECT 1")
	require.NoError(t, err)
	_, err = drv.RunQuery(ctx, "DELETE FROM users")
	require.Error(t, err)
	require.NoError(t, drv.Begin(ctx, ""))

	s := drv.QueryStats().Stats()
	assert.Equal(t, int64(2), s.TotalQueries)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(2), s.SlowQueries)
	assert.Equal(t, int64(1), s.Transactions)
	assert.Equal(t, []string{"SELECT 1", "DELETE FROM users"}, slow)
	assert.Contains(t, s.String(), "queries=2")

	drv.SetSlowThreshold(time.Second)
	assert.Equal(t, time.Second, drv.SlowThreshold())
	drv.QueryStats().Reset()
	assert.Zero(t, drv.QueryStats().Stats().TotalQueries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenWithStats(t *testing.T) {
	ctx := context.Background()
	drv, stats, err := OpenWithStats(ctx, Options{Driver: dialect.SQLite}, WithSlowThreshold(time.Hour))
	require.NoError(t, err)
	defer drv.Close()

	_, err = drv.RunQuery(ctx, "CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)
	_, err = drv.RunQuery(ctx, "SELECT * FROM nope")
	require.Error(t, err)

	s := stats.Stats()
	assert.Equal(t, int64(2), s.TotalQueries)
	assert.Equal(t, int64(1), s.Errors)
	assert.Zero(t, s.SlowQueries)

	_, _, err = OpenWithStats(ctx, Options{Driver: "oracle"})
	require.Error(t, err)
}

func TestDebugDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var logs []any
	drv := NewDebugDriver(OpenDB(dialect.MySQL, db), DebugWithLog(func(_ context.Context, v ...any) {
		logs = append(logs, v...)
	}))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	require.NoError(t, drv.Begin(ctx, ""))
	_, err = drv.RunQuery(ctx, "UPDATE users SET a = 1")
	require.NoError(t, err)
	require.NoError(t, drv.Commit(ctx, ""))
	assert.Equal(t, []any{"begin transaction", "query: UPDATE users SET a = 1", "commit transaction"}, logs)
	require.NoError(t, mock.ExpectationsWereMet())
}
