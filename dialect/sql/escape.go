package sql

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/syssam/sqlkit/dialect"
)

// DateTimeLayout is the layout used to render DATETIME values.
const DateTimeLayout = "2006-01-02 15:04:05"

// escapeStringValue escapes a string value for safe use in SQL.
// It escapes both single quotes (by doubling) and backslashes (for MySQL compatibility).
func escapeStringValue(s string) string {
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	// Escape backslashes first, then single quotes
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", "''")
	return s
}

// Escape implements the dialect.Driver interface.
func (d *Driver) Escape(v any, t dialect.Type) (string, error) {
	switch t {
	case dialect.Text:
		return d.quoteString(toString(v)), nil
	case dialect.Bool:
		b := truthy(v)
		if d.dialect == dialect.Postgres {
			if b {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		if b {
			return "1", nil
		}
		return "0", nil
	case dialect.Binary:
		var b []byte
		switch v := v.(type) {
		case []byte:
			b = v
		default:
			b = []byte(toString(v))
		}
		if d.dialect == dialect.Postgres {
			return `'\x` + hex.EncodeToString(b) + `'::bytea`, nil
		}
		return "X'" + hex.EncodeToString(b) + "'", nil
	case dialect.DateTime:
		switch v := v.(type) {
		case time.Time:
			return d.quoteString(v.Format(DateTimeLayout)), nil
		case int, int32, int64:
			n, _ := strconv.ParseInt(fmt.Sprint(v), 10, 64)
			return d.quoteString(time.Unix(n, 0).UTC().Format(DateTimeLayout)), nil
		default:
			return d.quoteString(toString(v)), nil
		}
	case dialect.Identifier:
		return d.quoteIdent(toString(v)), nil
	}
	return "", fmt.Errorf("dialect/sql: escape type %s: %w", t, dialect.ErrNotSupported)
}

// Unescape implements the dialect.Driver interface.
func (d *Driver) Unescape(v any, t dialect.Type) (any, error) {
	if t != dialect.Binary {
		return nil, fmt.Errorf("dialect/sql: unescape type %s: %w", t, dialect.ErrNotSupported)
	}
	switch v := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		if d.dialect == dialect.Postgres && strings.HasPrefix(v, `\x`) {
			return hex.DecodeString(v[2:])
		}
		return []byte(v), nil
	}
	return nil, fmt.Errorf("dialect/sql: unescape binary from %T", v)
}

func (d *Driver) quoteString(s string) string {
	switch d.dialect {
	case dialect.MySQL:
		return "'" + escapeStringValue(s) + "'"
	case dialect.Postgres:
		return pq.QuoteLiteral(s)
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// quoteIdent quotes every dot separated part of the identifier.
func (d *Driver) quoteIdent(s string) string {
	parts := strings.Split(s, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		switch d.dialect {
		case dialect.MySQL:
			parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
		case dialect.Postgres:
			parts[i] = pq.QuoteIdentifier(p)
		default:
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
		}
	}
	return strings.Join(parts, ".")
}

func toString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != "" && v != "0"
	case []byte:
		return len(v) > 0 && string(v) != "0"
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	return true
}
