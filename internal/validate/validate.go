// Package validate classifies wave-file problems as fatal or advisory
// and produces cleaned, typed rows ready for the upsert stage.
//
// Fatal problems (empty file, missing required join key) abort the run
// before any write. Advisory problems never block: the affected cell is
// stored as an absence marker and counted as a warning, so downstream
// aggregations see missing data instead of silently biased defaults.
package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"sparkload/internal/csvio"
	"sparkload/internal/record"
	"sparkload/internal/schema"
)

// Duration-looking strings such as "0:00:00" show up in numeric export
// columns from spreadsheet tools. They carry no metric value.
var timeFormatted = regexp.MustCompile(`^\d{1,2}:\d{2}:\d{2}$`)

// Issue is one classified problem. Line is the first file line the
// problem was seen on, 0 when it concerns a whole column or the file.
type Issue struct {
	Column string `json:"column,omitempty"`
	Line   int    `json:"line,omitempty"`
	Count  int    `json:"count,omitempty"`
	Msg    string `json:"msg"`
}

func (i Issue) String() string {
	var b strings.Builder
	b.WriteString(i.Msg)
	if i.Column != "" {
		fmt.Fprintf(&b, " column=%s", i.Column)
	}
	if i.Line > 0 {
		fmt.Fprintf(&b, " line=%d", i.Line)
	}
	if i.Count > 1 {
		fmt.Fprintf(&b, " occurrences=%d", i.Count)
	}
	return b.String()
}

// Options configures one Check call.
type Options struct {
	// Table is the logical table name, used in messages only.
	Table string
	// KeyCols is the natural key of the table, e.g.
	// [wave_number, ad_set_name]. Rows with a blank key are dropped
	// with a warning; duplicate keys keep the last occurrence.
	KeyCols []string
	// Wave is stamped into wave_number on every row, overriding any
	// wave_number cell present in the file.
	Wave int
	// KeyFallback enables the ad_name/ad_set_name mutual back-fill.
	// Campaign data only: a naming file must carry ad_set_name itself,
	// so a missing join key there stays fatal.
	KeyFallback bool
}

// Report is the outcome of validating one file.
type Report struct {
	// Rows are the cleaned, typed, deduplicated rows in file order.
	Rows []*record.Row
	// Observed lists the typed columns actually carried by this file,
	// including the stamped wave_number. Column order follows the file.
	Observed []schema.Column
	Fatal    []Issue
	Warnings []Issue
}

// Ok reports whether the file may proceed to the write stages.
func (r *Report) Ok() bool { return len(r.Fatal) == 0 }

// Check validates the normalized file against the known descriptor.
//
// cols must be the canonical column names aligned index-for-index with
// f.Header. Columns not present in the descriptor are typed by value
// inference so schema evolution can declare them.
//
// Edge cases:
//   - With Options.KeyFallback, ad_name and ad_set_name back-fill each
//     other when one is blank or the whole column is missing (warning
//     when the column was missing).
//   - Unparsable numeric or timestamp cells, time-formatted strings in
//     numeric columns, and negative metric values all become absence
//     markers with aggregated warnings.
func Check(f *csvio.File, cols []string, desc *schema.Descriptor, opt Options) *Report {
	rep := &Report{}

	if f == nil || f.Empty() {
		rep.Fatal = append(rep.Fatal, Issue{Msg: fmt.Sprintf("%s file has no data rows", opt.Table)})
		return rep
	}

	present := make(map[string]int, len(cols))
	for i, c := range cols {
		if c == "" {
			continue
		}
		if _, dup := present[c]; !dup {
			present[c] = i
		}
	}

	agg := newAggregator()
	checkRequired(rep, agg, desc, present, opt)
	if !rep.Ok() {
		rep.Warnings = agg.flush()
		return rep
	}
	warnMissingOptional(agg, desc, present)

	types := columnTypes(f, present, desc)
	rep.Observed = observedColumns(cols, present, types, desc)

	rows := buildRows(f, cols, types, agg, opt)
	if opt.KeyFallback {
		rows = fillJoinKeys(rows, present, agg)
		rep.Observed = withBackfilledKeys(rep.Observed, rows, desc)
	}
	rep.Rows = dropBlankKeys(rows, agg, opt)
	rep.Rows = dedupe(rep.Rows, agg, opt)

	rep.Warnings = agg.flush()
	return rep
}

// checkRequired enforces the descriptor's required columns. wave_number
// is always stamped from run parameters. With KeyFallback on, ad_name
// and ad_set_name satisfy each other, so only an upload missing both
// join keys is fatal; without it each missing join key is fatal.
func checkRequired(rep *Report, agg *aggregator, desc *schema.Descriptor, present map[string]int, opt Options) {
	_, hasAdName := present[schema.ColAdName]
	_, hasAdSet := present[schema.ColAdSetName]

	for _, name := range desc.Required() {
		if _, ok := present[name]; ok {
			continue
		}
		switch name {
		case schema.ColWaveNumber:
			// stamped from run parameters
		case schema.ColAdName, schema.ColAdSetName:
			if opt.KeyFallback && (hasAdName || hasAdSet) {
				continue
			}
			rep.Fatal = append(rep.Fatal, Issue{
				Column: name,
				Msg:    fmt.Sprintf("%s file is missing required join key", opt.Table),
			})
		default:
			rep.Fatal = append(rep.Fatal, Issue{
				Column: name,
				Msg:    fmt.Sprintf("%s file is missing required column", opt.Table),
			})
		}
	}
}

func warnMissingOptional(agg *aggregator, desc *schema.Descriptor, present map[string]int) {
	var missing int
	for _, c := range desc.Columns {
		if c.Required {
			continue
		}
		if _, ok := present[c.Name]; !ok {
			missing++
		}
	}
	if missing > 0 {
		agg.add("", 0, fmt.Sprintf("%d known optional columns absent from file", missing))
	}
}

// columnTypes resolves each file column to a declared or inferred type.
func columnTypes(f *csvio.File, present map[string]int, desc *schema.Descriptor) map[string]schema.ColumnType {
	types := make(map[string]schema.ColumnType, len(present))
	for name, ix := range present {
		if c, ok := desc.Get(name); ok {
			types[name] = c.Type
			continue
		}
		sample := make([]string, 0, len(f.Rows))
		for _, rec := range f.Rows {
			if ix < len(rec) {
				sample = append(sample, rec[ix])
			}
		}
		types[name] = schema.InferType(sample)
	}
	types[schema.ColWaveNumber] = schema.TypeInt
	return types
}

func observedColumns(cols []string, present map[string]int, types map[string]schema.ColumnType, desc *schema.Descriptor) []schema.Column {
	out := make([]schema.Column, 0, len(present)+1)
	seen := make(map[string]bool, len(present)+1)
	appendCol := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		col := schema.Column{Name: name, Type: types[name]}
		if known, ok := desc.Get(name); ok {
			col = known
		}
		out = append(out, col)
	}
	appendCol(schema.ColWaveNumber)
	for _, name := range cols {
		if _, ok := present[name]; ok {
			appendCol(name)
		}
	}
	return out
}

// buildRows parses every cell to its column type, stamping the wave.
func buildRows(f *csvio.File, cols []string, types map[string]schema.ColumnType, agg *aggregator, opt Options) []*record.Row {
	rows := make([]*record.Row, 0, len(f.Rows))
	for ri, rec := range f.Rows {
		row := record.New(f.Lines[ri])
		row.Set(schema.ColWaveNumber, int64(opt.Wave))
		for ci, name := range cols {
			if name == "" || name == schema.ColWaveNumber || ci >= len(rec) {
				continue
			}
			v, warn := parseCell(rec[ci], types[name])
			if warn != "" {
				agg.add(name, row.Line, warn)
			}
			if v != nil {
				row.Set(name, v)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// parseCell converts one raw cell to its typed value, or to an absence
// marker with a warning reason.
func parseCell(raw string, t schema.ColumnType) (any, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ""
	}
	switch t {
	case schema.TypeInt:
		if timeFormatted.MatchString(raw) {
			return nil, "time-formatted value in numeric column"
		}
		n, err := strconv.ParseInt(strings.ReplaceAll(raw, ",", ""), 10, 64)
		if err != nil {
			// exports often write whole counts as "12.0"
			fl, ferr := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
			if ferr != nil || fl != float64(int64(fl)) {
				return nil, "unparsable integer value"
			}
			n = int64(fl)
		}
		if n < 0 {
			return nil, "negative metric value"
		}
		return n, ""
	case schema.TypeFloat:
		if timeFormatted.MatchString(raw) {
			return nil, "time-formatted value in numeric column"
		}
		fl, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			return nil, "unparsable numeric value"
		}
		if fl < 0 {
			return nil, "negative metric value"
		}
		return fl, ""
	case schema.TypeTimestamp:
		ts, ok := schema.ParseTimestamp(raw)
		if !ok {
			return nil, "unparsable timestamp value"
		}
		return ts, ""
	default:
		return raw, ""
	}
}

// withBackfilledKeys extends the observed column set with a join key
// that was absent from the file but populated by the fallback fill, so
// the upsert stage writes it.
func withBackfilledKeys(observed []schema.Column, rows []*record.Row, desc *schema.Descriptor) []schema.Column {
	for _, name := range []string{schema.ColAdSetName, schema.ColAdName} {
		col, known := desc.Get(name)
		if !known {
			continue
		}
		already := false
		for _, o := range observed {
			if o.Name == name {
				already = true
				break
			}
		}
		if already {
			continue
		}
		for _, row := range rows {
			if !row.Absent(name) {
				observed = append(observed, col)
				break
			}
		}
	}
	return observed
}

// fillJoinKeys applies the ad_name/ad_set_name mutual fallback. When a
// whole column was absent from the file the back-fill is reported once.
func fillJoinKeys(rows []*record.Row, present map[string]int, agg *aggregator) []*record.Row {
	_, hasAdName := present[schema.ColAdName]
	_, hasAdSet := present[schema.ColAdSetName]

	fill := func(dst, src string) {
		var filled int
		for _, row := range rows {
			if !row.Absent(dst) {
				continue
			}
			if v, ok := row.Get(src); ok {
				row.Set(dst, v)
				filled++
			}
		}
		if filled > 0 {
			agg.addCount(dst, 0, filled, fmt.Sprintf("back-filled from %s", src))
		}
	}

	if !hasAdName && hasAdSet {
		fill(schema.ColAdName, schema.ColAdSetName)
	}
	if !hasAdSet && hasAdName {
		fill(schema.ColAdSetName, schema.ColAdName)
	}
	if hasAdName && hasAdSet {
		// both columns exist, patch individual blanks quietly in
		// whichever direction has data
		for _, row := range rows {
			if row.Absent(schema.ColAdName) {
				if v, ok := row.Get(schema.ColAdSetName); ok {
					row.Set(schema.ColAdName, v)
				}
			}
			if row.Absent(schema.ColAdSetName) {
				if v, ok := row.Get(schema.ColAdName); ok {
					row.Set(schema.ColAdSetName, v)
				}
			}
		}
	}
	return rows
}

// dropBlankKeys removes rows whose natural key cannot be formed.
func dropBlankKeys(rows []*record.Row, agg *aggregator, opt Options) []*record.Row {
	kept := rows[:0]
	for _, row := range rows {
		blank := false
		for _, k := range opt.KeyCols {
			if row.Absent(k) {
				blank = true
				break
			}
		}
		if blank {
			agg.add(strings.Join(opt.KeyCols, ","), row.Line, "row dropped: blank natural key")
			continue
		}
		kept = append(kept, row)
	}
	return kept
}

// dedupe keeps the last occurrence of each natural key, in file order.
func dedupe(rows []*record.Row, agg *aggregator, opt Options) []*record.Row {
	last := make(map[string]int, len(rows))
	for i, row := range rows {
		last[row.Key(opt.KeyCols)] = i
	}
	if len(last) == len(rows) {
		return rows
	}
	kept := rows[:0]
	var dups int
	for i, row := range rows {
		if last[row.Key(opt.KeyCols)] != i {
			dups++
			continue
		}
		kept = append(kept, row)
	}
	agg.addCount("", 0, dups, "duplicate natural key in file, kept last occurrence")
	return kept
}

// aggregator collapses repeated per-cell problems into one Issue per
// (column, reason) so a damaged file does not emit thousands of
// warnings. The first affected line is kept.
type aggregator struct {
	order []string
	byKey map[string]*Issue
}

func newAggregator() *aggregator {
	return &aggregator{byKey: make(map[string]*Issue)}
}

func (a *aggregator) add(col string, line int, msg string) {
	a.addCount(col, line, 1, msg)
}

func (a *aggregator) addCount(col string, line, n int, msg string) {
	key := col + "\x00" + msg
	if i, ok := a.byKey[key]; ok {
		i.Count += n
		return
	}
	a.byKey[key] = &Issue{Column: col, Line: line, Count: n, Msg: msg}
	a.order = append(a.order, key)
}

func (a *aggregator) flush() []Issue {
	if len(a.order) == 0 {
		return nil
	}
	out := make([]Issue, 0, len(a.order))
	for _, k := range a.order {
		out = append(out, *a.byKey[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}
