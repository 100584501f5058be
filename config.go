package sqlkit

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	sqldrv "github.com/syssam/sqlkit/dialect/sql"
)

// UnixTimestamp is the DatetimeFormat that converts DATETIME values to
// Unix seconds instead of formatted strings.
const UnixTimestamp = "U"

// Config holds the connection configuration, usually loaded from YAML:
//
//	driver: mysql
//	host: localhost
//	port: 3306
//	user: app
//	database: app
//	table_prefix: app_
//	detect_types: true
//	datetime_format: "2006-01-02"
//	slow_threshold: 200ms
type Config struct {
	Driver   string            `yaml:"driver"`
	DSN      string            `yaml:"dsn"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Database string            `yaml:"database"`
	Params   map[string]string `yaml:"params"`

	// TablePrefix is prepended to every table name.
	TablePrefix string `yaml:"table_prefix"`
	// DetectTypes converts fetched values to Go types based on the column
	// types reported by the database.
	DetectTypes bool `yaml:"detect_types"`
	// DatetimeFormat is the Go layout DATETIME values are formatted with.
	// Empty keeps time.Time values and UnixTimestamp yields Unix seconds.
	DatetimeFormat string `yaml:"datetime_format"`
	// Unbuffered streams result sets. Seek and Count without a column are
	// unavailable on unbuffered results.
	Unbuffered bool `yaml:"unbuffered"`
	// SlowThreshold enables query statistics and logs statements slower
	// than the threshold.
	SlowThreshold time.Duration `yaml:"slow_threshold"`
	// Debug logs every statement and transaction.
	Debug bool `yaml:"debug"`
}

// ParseConfig decodes a YAML configuration.
func ParseConfig(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("sqlkit: parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and decodes the YAML configuration file at path.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("sqlkit: load config: %w", err)
	}
	return ParseConfig(b)
}

func (c Config) validate() error {
	if c.Driver == "" {
		return argErrorf("config", "driver is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return argErrorf("config", "invalid port %d", c.Port)
	}
	if c.SlowThreshold < 0 {
		return argErrorf("config", "negative slow_threshold %s", c.SlowThreshold)
	}
	return nil
}

func (c Config) driverOptions() sqldrv.Options {
	return sqldrv.Options{
		Driver:     c.Driver,
		DSN:        c.DSN,
		Host:       c.Host,
		Port:       c.Port,
		User:       c.User,
		Password:   c.Password,
		Database:   c.Database,
		Params:     c.Params,
		Unbuffered: c.Unbuffered,
	}
}

// options returns the connection options the configuration implies.
func (c Config) options() []Option {
	return []Option{
		WithTablePrefix(c.TablePrefix),
		WithTypeDetection(c.DetectTypes),
		WithDatetimeFormat(c.DatetimeFormat),
	}
}
