package schema

import (
	"strconv"
	"strings"
	"time"
)

// inferThreshold is the fraction of non-empty sample values that must parse
// as a candidate type before the column is declared that type. Below it the
// column falls back to STRING, which can absorb anything.
const inferThreshold = 0.8

// timestampLayouts are tried in order when parsing date/time cells. The
// first match wins; all parsed values are normalized to UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"2006/01/02",
}

// ParseTimestamp parses a cell into a canonical UTC timestamp.
func ParseTimestamp(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// InferType infers the declared type of a new column from its sampled string
// values.
//
// Empty values are ignored. If at least 80% of the remaining values parse as
// numbers the column is INT when every successful parse is integral, FLOAT
// otherwise; the same threshold applies to timestamps. Columns with no
// usable values, or mixed content below the threshold, default to STRING.
func InferType(values []string) ColumnType {
	var total, ints, floats, stamps int

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		total++

		if _, err := strconv.ParseInt(v, 10, 64); err == nil {
			ints++
			floats++
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			floats++
			continue
		}
		if _, ok := ParseTimestamp(v); ok {
			stamps++
		}
	}

	if total == 0 {
		return TypeString
	}

	switch {
	case passes(ints, total):
		return TypeInt
	case passes(floats, total):
		return TypeFloat
	case passes(stamps, total):
		return TypeTimestamp
	default:
		return TypeString
	}
}

func passes(n, total int) bool {
	return float64(n)/float64(total) >= inferThreshold
}
