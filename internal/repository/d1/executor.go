// Package d1 stores state in Cloudflare D1 through its SQL-over-HTTP API.
// The same SQLite dialect runs against a local file through LocalExecutor.
package d1

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Executor runs one SQL statement with positional ? parameters.
type Executor interface {
	Execute(ctx context.Context, query string, params ...any) ([]Row, error)
}

const timeLayout = time.RFC3339

var legacyLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

func (r Row) Int(col string) int {
	switch v := r[col].(type) {
	case float64:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	case []byte:
		n, _ := strconv.Atoi(string(v))
		return n
	}
	return 0
}

func (r Row) Float(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}

func (r Row) Bool(col string) bool {
	return r.Int(col) != 0
}

// Time parses a stored timestamp. Rows written by older deployments may
// carry timestamps without a zone; those are read as UTC.
func (r Row) Time(col string) (time.Time, error) {
	if t, ok := r[col].(time.Time); ok {
		return t.UTC(), nil
	}
	raw := r.String(col)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range legacyLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("column %s: unrecognised timestamp %q", col, raw)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
