package sqlite

import (
	"fmt"
	"strings"

	"sparkload/internal/schema"
	"sparkload/internal/storage"
)

// Statement builders, pure and unit-testable like the Postgres ones.
// The tenant schema is folded into the table name because SQLite has no
// schema namespaces.

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// physName maps a logical table into the flattened tenant namespace,
// e.g. client_acme_2024__facebook_naming_keys.
func physName(t storage.Tenant, logical string) string {
	return t.SchemaName() + "__" + t.TableName(logical)
}

func descName(t storage.Tenant) string { return t.SchemaName() + "__" + t.DescriptorTableName() }
func logName(t storage.Tenant) string  { return t.SchemaName() + "__" + t.LogTableName() }
func viewName(t storage.Tenant) string { return t.SchemaName() + "__" + t.ViewName() }

func sqliteType(typ schema.ColumnType) string {
	switch typ {
	case schema.TypeInt:
		return "INTEGER"
	case schema.TypeFloat:
		return "REAL"
	default:
		// timestamps round-trip as RFC3339Nano text
		return "TEXT"
	}
}

func buildCreateTableSQL(t storage.Tenant, logical string, cols []schema.Column, keyCols []string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(sqlIdent(physName(t, logical)))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(sqliteType(c.Type))
	}
	b.WriteString(", UNIQUE (")
	for i, k := range keyCols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(k))
	}
	b.WriteString("));")
	return b.String()
}

func buildCreateDescriptorTableSQL(t storage.Tenant) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(sqlIdent(descName(t)))
	b.WriteString(" (")
	b.WriteString("table_name TEXT NOT NULL, ")
	b.WriteString("ordinal INTEGER NOT NULL, ")
	b.WriteString("column_name TEXT NOT NULL, ")
	b.WriteString("column_type TEXT NOT NULL, ")
	b.WriteString("required INTEGER NOT NULL DEFAULT 0, ")
	b.WriteString("added_at TEXT NOT NULL DEFAULT (datetime('now')), ")
	b.WriteString("PRIMARY KEY (table_name, column_name));")
	return b.String()
}

func buildCreateLogTableSQL(t storage.Tenant) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(sqlIdent(logName(t)))
	b.WriteString(" (")
	b.WriteString("run_id TEXT NOT NULL, ")
	b.WriteString("wave_number INTEGER NOT NULL, ")
	b.WriteString("processing_timestamp TEXT NOT NULL, ")
	b.WriteString("status TEXT NOT NULL, ")
	b.WriteString("records_processed INTEGER NOT NULL, ")
	b.WriteString("errors_count INTEGER NOT NULL, ")
	b.WriteString("warnings_count INTEGER NOT NULL, ")
	b.WriteString("processing_time_seconds REAL NOT NULL, ")
	b.WriteString("client_name TEXT NOT NULL, ")
	b.WriteString("platform TEXT NOT NULL, ")
	b.WriteString("year INTEGER NOT NULL, ")
	b.WriteString("note TEXT NOT NULL DEFAULT '');")
	return b.String()
}

func buildSeedDescriptorSQL(t storage.Tenant, logical string, cols []schema.Column) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(descName(t)))
	b.WriteString(" (table_name, ordinal, column_name, column_type, required) VALUES ")

	args := make([]any, 0, len(cols)*5)
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, logical, i+1, c.Name, string(c.Type), c.Required)
	}
	b.WriteString(" ON CONFLICT (table_name, column_name) DO NOTHING;")
	return b.String(), args
}

func buildSelectDescriptorSQL(t storage.Tenant) string {
	return "SELECT column_name, column_type, required FROM " +
		sqlIdent(descName(t)) +
		" WHERE table_name = ? ORDER BY ordinal;"
}

func buildAddColumnSQL(t storage.Tenant, logical string, c schema.Column) string {
	return "ALTER TABLE " + sqlIdent(physName(t, logical)) +
		" ADD COLUMN " + sqlIdent(c.Name) + " " + sqliteType(c.Type) + ";"
}

func buildAppendDescriptorSQL(t storage.Tenant) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(descName(t)))
	b.WriteString(" (table_name, ordinal, column_name, column_type, required) ")
	b.WriteString("SELECT ?, COALESCE(MAX(ordinal), 0) + 1, ?, ?, ? FROM ")
	b.WriteString(sqlIdent(descName(t)))
	b.WriteString(" WHERE table_name = ?")
	b.WriteString(" ON CONFLICT (table_name, column_name) DO NOTHING;")
	return b.String()
}

// buildUpsertSQL renders the same COALESCE merge as Postgres, with
// SQLite's excluded. pseudo-table and ? placeholders.
func buildUpsertSQL(t storage.Tenant, logical string, cols, keyCols []string, nrows int) string {
	key := make(map[string]bool, len(keyCols))
	for _, k := range keyCols {
		key[k] = true
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(physName(t, logical)))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	one := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	for r := 0; r < nrows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString(one)
	}

	b.WriteString(" ON CONFLICT (")
	for i, k := range keyCols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(k))
	}
	b.WriteString(")")

	var sets []string
	for _, c := range cols {
		if key[c] {
			continue
		}
		sets = append(sets, sqlIdent(c)+" = COALESCE(excluded."+sqlIdent(c)+", "+sqlIdent(c)+")")
	}
	if len(sets) == 0 {
		b.WriteString(" DO NOTHING;")
		return b.String()
	}
	b.WriteString(" DO UPDATE SET ")
	b.WriteString(strings.Join(sets, ", "))
	b.WriteString(";")
	return b.String()
}

func buildInsertLogSQL(t storage.Tenant) string {
	return fmt.Sprintf(
		"INSERT INTO %s (run_id, wave_number, processing_timestamp, status, records_processed,"+
			" errors_count, warnings_count, processing_time_seconds, client_name, platform, year, note)"+
			" VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);",
		sqlIdent(logName(t)))
}

// buildCreateViewSQL returns drop-then-create statements. SQLite has no
// CREATE OR REPLACE VIEW, so the view is rebuilt whenever the campaign
// table gains columns.
func buildCreateViewSQL(t storage.Tenant) []string {
	drop := "DROP VIEW IF EXISTS " + sqlIdent(viewName(t)) + ";"

	var b strings.Builder
	b.WriteString("CREATE VIEW ")
	b.WriteString(sqlIdent(viewName(t)))
	b.WriteString(" AS SELECT c.*")
	for _, col := range schema.NamingColumns() {
		if col.Name == schema.ColWaveNumber || col.Name == schema.ColAdSetName {
			continue
		}
		b.WriteString(", n.")
		b.WriteString(sqlIdent(col.Name))
	}
	b.WriteString(" FROM ")
	b.WriteString(sqlIdent(physName(t, storage.CampaignTable)))
	b.WriteString(" c LEFT JOIN ")
	b.WriteString(sqlIdent(physName(t, storage.NamingTable)))
	b.WriteString(" n ON c.")
	b.WriteString(sqlIdent(schema.ColAdSetName))
	b.WriteString(" = n.")
	b.WriteString(sqlIdent(schema.ColAdSetName))
	b.WriteString(" AND c.")
	b.WriteString(sqlIdent(schema.ColWaveNumber))
	b.WriteString(" = n.")
	b.WriteString(sqlIdent(schema.ColWaveNumber))
	b.WriteString(";")

	return []string{drop, b.String()}
}
