package sql

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/syssam/sqlkit/dialect"
)

// Options configures a Driver created with New.
type Options struct {
	// Driver is the database/sql driver name: "mysql", "postgres", "pgx" or "sqlite".
	Driver string
	// DSN, when set, is passed to database/sql as is and the connection
	// fields below are ignored.
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	// Database is the database name, or the file path for SQLite.
	Database string
	// Params are extra driver parameters appended to the DSN.
	Params map[string]string
	// Unbuffered streams result sets instead of reading them into memory.
	Unbuffered bool
}

// dialectOf maps a database/sql driver name to its dialect.
func dialectOf(driverName string) string {
	switch {
	case driverName == "pgx":
		return dialect.Postgres
	case strings.HasPrefix(driverName, dialect.MySQL):
		return dialect.MySQL
	case strings.HasPrefix(driverName, dialect.SQLite):
		return dialect.SQLite
	case strings.HasPrefix(driverName, dialect.Postgres):
		return dialect.Postgres
	}
	return driverName
}

// DataSourceName builds the DSN for the configured driver.
func (o Options) DataSourceName() (string, error) {
	if o.DSN != "" {
		return o.DSN, nil
	}
	switch dialectOf(o.Driver) {
	case dialect.MySQL:
		cfg := mysql.NewConfig()
		cfg.User = o.User
		cfg.Passwd = o.Password
		cfg.DBName = o.Database
		if o.Host != "" {
			cfg.Net = "tcp"
			cfg.Addr = o.Host
			if o.Port != 0 {
				cfg.Addr = net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
			}
		}
		if len(o.Params) > 0 {
			cfg.Params = make(map[string]string, len(o.Params))
			for k, v := range o.Params {
				cfg.Params[k] = v
			}
		}
		return cfg.FormatDSN(), nil
	case dialect.Postgres:
		kv := map[string]string{}
		for k, v := range o.Params {
			kv[k] = v
		}
		set := func(k, v string) {
			if v != "" {
				kv[k] = v
			}
		}
		set("host", o.Host)
		if o.Port != 0 {
			set("port", strconv.Itoa(o.Port))
		}
		set("user", o.User)
		set("password", o.Password)
		set("dbname", o.Database)
		keys := make([]string, 0, len(kv))
		for k := range kv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+quoteConnValue(kv[k]))
		}
		return strings.Join(pairs, " "), nil
	case dialect.SQLite:
		name := o.Database
		if name == "" {
			name = ":memory:"
		}
		if len(o.Params) == 0 {
			return name, nil
		}
		keys := make([]string, 0, len(o.Params))
		for k := range o.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+o.Params[k])
		}
		return "file:" + name + "?" + strings.Join(pairs, "&"), nil
	}
	return "", fmt.Errorf("dialect/sql: unsupported driver %q", o.Driver)
}

// quoteConnValue quotes a libpq connection string value when needed.
func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
