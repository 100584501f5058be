package sqlkit

import (
	"context"
	"fmt"
	"maps"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// vendorTypes maps database column types to value types. The first match
// wins; unmatched types are Text.
var vendorTypes = []struct {
	re  *regexp.Regexp
	typ Type
}{
	{regexp.MustCompile(`(?i)interval`), Text},
	{regexp.MustCompile(`(?i)bool|bit`), Bool},
	{regexp.MustCompile(`(?i)bin|blob|bytea`), Binary},
	{regexp.MustCompile(`(?i)date|time`), DateTime},
	{regexp.MustCompile(`(?i)int|serial`), Int},
	{regexp.MustCompile(`(?i)real|double|float|numeric|decimal|money`), Float},
}

// ResolveType returns the value type of a database column type.
func ResolveType(vendor string) Type {
	for _, v := range vendorTypes {
		if v.re.MatchString(vendor) {
			return v.typ
		}
	}
	return Text
}

// datetimeLayouts are tried in order when parsing DATETIME strings.
var datetimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"15:04:05",
}

// SetTypes sets the value types of columns. Fetched values of these
// columns are converted. A nil map clears the types.
func (r *Result) SetTypes(types map[string]Type) *Result {
	if types == nil {
		r.columnTypes = nil
		return r
	}
	if r.columnTypes == nil {
		r.columnTypes = make(map[string]Type, len(types))
	}
	maps.Copy(r.columnTypes, types)
	return r
}

// ColumnTypes returns a copy of the known column types.
func (r *Result) ColumnTypes() map[string]Type {
	return maps.Clone(r.columnTypes)
}

// DetectTypes executes the statement if needed and records the value types
// of its columns, reusing the types cached for the source table.
func (r *Result) DetectTypes(ctx context.Context) error {
	rs, err := r.run(ctx)
	if err != nil {
		return err
	}
	table := r.tableName()
	var cached map[string]Type
	if table != "" {
		r.conn.cacheLoad(ctx, cacheKey(table, "detectedTypes"), &cached)
	}
	vendor, err := r.conn.driver.ColumnTypes(rs, table)
	if err != nil {
		return fmt.Errorf("sqlkit: detect types: %w", err)
	}
	detected := make(map[string]Type, len(vendor)+len(cached))
	maps.Copy(detected, cached)
	changed := false
	for col, v := range vendor {
		t := ResolveType(v)
		if old, ok := detected[col]; !ok || old != t {
			changed = true
		}
		detected[col] = t
	}
	if table != "" && changed {
		r.conn.cacheStore(ctx, cacheKey(table, "detectedTypes"), detected)
	}
	r.mergeTypes(detected)
	return nil
}

// mergeTypes adds detected types without overriding the ones set by
// SetTypes.
func (r *Result) mergeTypes(detected map[string]Type) {
	if r.columnTypes == nil {
		r.columnTypes = make(map[string]Type, len(detected))
	}
	for col, t := range detected {
		if _, ok := r.columnTypes[col]; !ok {
			r.columnTypes[col] = t
		}
	}
}

// tableName returns the prefixed source table, or "" for sub-queries.
func (r *Result) tableName() string {
	s, ok := r.source.(string)
	if !ok || !identRe.MatchString(s) {
		return ""
	}
	return r.conn.prefixTable(strings.TrimPrefix(s, ":"))
}

// convertRow converts data in place. Type detection runs when a fetched
// column has no known type; detection failures are logged and the values
// are left as fetched.
func (r *Result) convertRow(ctx context.Context, data map[string]any) {
	if r.detectTypes {
		var table string
		for col := range data {
			if _, ok := r.columnTypes[col]; !ok {
				table = r.tableName()
				if table != "" {
					var cached map[string]Type
					if r.conn.cacheLoad(ctx, cacheKey(table, "detectedTypes"), &cached) && covers(cached, data) {
						r.mergeTypes(cached)
						break
					}
				}
				if err := r.DetectTypes(ctx); err != nil {
					r.conn.logger.WarnContext(ctx, "type detection failed", "table", table, "error", err)
				}
				break
			}
		}
	}
	for col, v := range data {
		t, ok := r.columnTypes[col]
		if !ok {
			continue
		}
		cv, err := r.ConvertType(v, t)
		if err != nil {
			r.conn.logger.WarnContext(ctx, "type conversion failed", "column", col, "type", t, "error", err)
			continue
		}
		data[col] = cv
	}
}

func covers(types map[string]Type, data map[string]any) bool {
	for col := range data {
		if _, ok := types[col]; !ok {
			return false
		}
	}
	return true
}

// ConvertType converts a fetched value to the Go representation of t:
// bool, int64, float64, string, []byte or, for DateTime, a time.Time,
// Unix seconds or a formatted string depending on the datetime format.
// Nil stays nil.
func (r *Result) ConvertType(v any, t Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case Bool:
		return toBool(v)
	case Int:
		return toInt64(v)
	case Float:
		return toFloat64(v)
	case Text:
		return toText(v), nil
	case Binary:
		return r.conn.driver.Unescape(v, Binary)
	case DateTime:
		if isZero(v) {
			return nil, nil
		}
		tm, err := toTime(v)
		if err != nil {
			return nil, err
		}
		switch r.conn.datetimeFormat {
		case "":
			return tm, nil
		case UnixTimestamp:
			return tm.Unix(), nil
		default:
			return tm.Format(r.conn.datetimeFormat), nil
		}
	}
	return v, nil
}

func toText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string, []byte:
		s := strings.TrimSpace(toText(x))
		switch s {
		case "", "f", "F":
			return false, nil
		case "t", "T":
			return true, nil
		}
		if b, err := strconv.ParseBool(s); err == nil {
			return b, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return false, fmt.Errorf("sqlkit: bool from %q", s)
		}
		return f != 0, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return false, err
	}
	return f != 0, nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uintToInt64(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintToInt64(x)
	case float32:
		return floatToInt64(float64(x))
	case float64:
		return floatToInt64(x)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string, []byte:
		s := strings.TrimSpace(toText(x))
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("sqlkit: int from %q", s)
		}
		return floatToInt64(f)
	}
	return 0, fmt.Errorf("sqlkit: int from %T", v)
}

func uintToInt64(n uint64) (int64, error) {
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("sqlkit: int from %d: out of range", n)
	}
	return int64(n), nil
}

// floatToInt64 truncates f. NaN, infinities and values outside the int64
// range are errors.
func floatToInt64(f float64) (int64, error) {
	if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("sqlkit: int from %v: out of range", f)
	}
	return int64(f), nil
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case uint:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case string, []byte:
		s := strings.TrimSpace(toText(x))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("sqlkit: float from %q", s)
		}
		return f, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("sqlkit: float from %T", v)
	}
	return float64(n), nil
}

// isZero reports numeric zeros and the MySQL zero date, which DATETIME
// columns use for missing values.
func isZero(v any) bool {
	switch x := v.(type) {
	case time.Time:
		return false
	case string, []byte:
		s := strings.TrimSpace(toText(x))
		if strings.HasPrefix(s, "0000-00-00") {
			return true
		}
		f, err := strconv.ParseFloat(s, 64)
		return err == nil && f == 0
	}
	f, err := toFloat64(v)
	return err == nil && f == 0
}

func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string, []byte:
		s := strings.TrimSpace(toText(x))
		for _, layout := range datetimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(n, 0).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("sqlkit: datetime from %q", s)
	}
	n, err := toInt64(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlkit: datetime from %T", v)
	}
	return time.Unix(n, 0).UTC(), nil
}
