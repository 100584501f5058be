package sql

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/sqlkit/dialect"
)

// resultSet holds the rows of a query. Buffered result sets are read
// completely when the query runs; unbuffered ones stream from rows.
type resultSet struct {
	columns []string
	types   []string

	buffered bool
	data     [][]any
	pos      int

	rows   *sql.Rows
	closer func() error
	closed bool
}

func newResultSet(rows *sql.Rows, closer func() error, buffered bool) (_ *resultSet, err error) {
	rs := &resultSet{rows: rows, closer: closer, buffered: buffered}
	defer func() {
		if err != nil {
			err = errors.Join(err, rs.close())
		}
	}()
	if rs.columns, err = rows.Columns(); err != nil {
		return nil, err
	}
	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	rs.types = make([]string, len(cts))
	for i, ct := range cts {
		rs.types[i] = ct.DatabaseTypeName()
	}
	if !buffered {
		return rs, nil
	}
	for rows.Next() {
		values, err := rs.scan()
		if err != nil {
			return nil, err
		}
		rs.data = append(rs.data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, rs.close()
}

func (rs *resultSet) scan() ([]any, error) {
	values := make([]any, len(rs.columns))
	dest := make([]any, len(rs.columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rs.rows.Scan(dest...); err != nil {
		return nil, err
	}
	for i, v := range values {
		// Drivers return text columns as []byte; keep bytes only for binary columns.
		if b, ok := v.([]byte); ok && !isBinaryType(rs.types[i]) {
			values[i] = string(b)
		}
	}
	return values, nil
}

func isBinaryType(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "blob") || strings.Contains(name, "bin") || name == "bytea"
}

func (rs *resultSet) next() (map[string]any, error) {
	var values []any
	if rs.buffered {
		if rs.pos >= len(rs.data) {
			return nil, nil
		}
		values = rs.data[rs.pos]
		rs.pos++
	} else {
		if rs.closed {
			return nil, nil
		}
		if !rs.rows.Next() {
			return nil, errors.Join(rs.rows.Err(), rs.close())
		}
		var err error
		if values, err = rs.scan(); err != nil {
			return nil, err
		}
	}
	row := make(map[string]any, len(rs.columns))
	for i, c := range rs.columns {
		row[c] = values[i]
	}
	return row, nil
}

func (rs *resultSet) seek(offset int) error {
	if !rs.buffered {
		return fmt.Errorf("dialect/sql: seek on unbuffered result set: %w", dialect.ErrNotSupported)
	}
	if offset < 0 || offset > len(rs.data) {
		return fmt.Errorf("dialect/sql: seek offset %d out of range [0, %d]", offset, len(rs.data))
	}
	rs.pos = offset
	return nil
}

func (rs *resultSet) numRows() (int, error) {
	if !rs.buffered {
		return 0, fmt.Errorf("dialect/sql: row count of unbuffered result set: %w", dialect.ErrNotSupported)
	}
	return len(rs.data), nil
}

func (rs *resultSet) close() error {
	if rs.closed {
		return nil
	}
	rs.closed = true
	err := rs.rows.Close()
	if rs.closer != nil {
		err = errors.Join(err, rs.closer())
	}
	return err
}
