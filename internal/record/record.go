// Package record defines the row representation shared by the validation and
// upsert stages.
//
// A row is a line number plus a map of canonical column name to a typed value.
// Absence is a first-class state: a missing key (or an explicit nil) means the
// source file had no usable value for that cell. This is distinct from an
// empty string or a zero, so downstream aggregations are never silently
// biased by defaults.
package record

import (
	"sort"
	"strings"
	"time"
)

// Row is one parsed data row aligned to canonical column names.
//
// Present values hold one of: string, int64, float64, time.Time.
// A missing key or a nil value is the absence marker.
type Row struct {
	// Line is the 1-based source line the row was parsed from (header is line 1).
	Line int

	Fields map[string]any
}

// New returns an empty row for the given source line.
func New(line int) *Row {
	return &Row{Line: line, Fields: make(map[string]any)}
}

// Set stores a value. Setting nil records an explicit absence.
func (r *Row) Set(col string, v any) {
	r.Fields[col] = v
}

// Get returns the value and whether it is present (non-absent).
func (r *Row) Get(col string) (any, bool) {
	v, ok := r.Fields[col]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Absent reports whether the column carries no value in this row.
func (r *Row) Absent(col string) bool {
	_, ok := r.Get(col)
	return !ok
}

// String returns the value as a string, or "" when absent or non-string.
func (r *Row) String(col string) string {
	v, ok := r.Get(col)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Columns returns the sorted set of column names that appear in the row,
// including explicitly absent ones.
func (r *Row) Columns() []string {
	out := make([]string, 0, len(r.Fields))
	for c := range r.Fields {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Key builds the composite natural key of the row over keyCols.
//
// Values are rendered in a stable textual form and joined with a unit
// separator so keys cannot collide across column boundaries. Absent key
// parts render as the empty string; callers decide whether that is legal.
func (r *Row) Key(keyCols []string) string {
	parts := make([]string, len(keyCols))
	for i, c := range keyCols {
		parts[i] = stringify(r.Fields[c])
	}
	return strings.Join(parts, "")
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case int64:
		return formatInt(t)
	case float64:
		return formatFloat(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return ""
	}
}
