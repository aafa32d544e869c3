package postgres

import (
	"fmt"
	"strings"

	"sparkload/internal/schema"
	"sparkload/internal/storage"
)

// Every statement the store executes is produced by a pure builder in
// this file.
//
// Why this exists:
//   - Builders are deterministic, so identifier quoting, placeholder
//     numbering, and the COALESCE merge shape can be unit tested
//     without a database.

// pgIdent double-quotes an identifier for Postgres.
func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func qualify(schemaName, table string) string {
	return pgIdent(schemaName) + "." + pgIdent(table)
}

// pgType maps a descriptor type to its Postgres column type.
func pgType(t schema.ColumnType) string {
	switch t {
	case schema.TypeInt:
		return "BIGINT"
	case schema.TypeFloat:
		return "DOUBLE PRECISION"
	case schema.TypeTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func buildCreateSchemaSQL(schemaName string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + pgIdent(schemaName) + ";"
}

// buildCreateTableSQL renders the initial CREATE TABLE for a data table.
//
// Every data column is nullable: an absent cell is stored as NULL, and
// later waves may legitimately omit any column. Integrity is carried by
// the UNIQUE natural key, which ON CONFLICT merges target.
func buildCreateTableSQL(schemaName, table string, cols []schema.Column, keyCols []string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(qualify(schemaName, table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(pgType(c.Type))
	}
	b.WriteString(", UNIQUE (")
	for i, k := range keyCols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(k))
	}
	b.WriteString("));")
	return b.String()
}

func buildCreateDescriptorTableSQL(schemaName, table string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(qualify(schemaName, table))
	b.WriteString(" (")
	b.WriteString("table_name TEXT NOT NULL, ")
	b.WriteString("ordinal BIGINT NOT NULL, ")
	b.WriteString("column_name TEXT NOT NULL, ")
	b.WriteString("column_type TEXT NOT NULL, ")
	b.WriteString("required BOOLEAN NOT NULL DEFAULT FALSE, ")
	b.WriteString("added_at TIMESTAMPTZ NOT NULL DEFAULT now(), ")
	b.WriteString("PRIMARY KEY (table_name, column_name));")
	return b.String()
}

func buildCreateLogTableSQL(schemaName, table string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(qualify(schemaName, table))
	b.WriteString(" (")
	b.WriteString("run_id TEXT NOT NULL, ")
	b.WriteString("wave_number BIGINT NOT NULL, ")
	b.WriteString("processing_timestamp TIMESTAMPTZ NOT NULL, ")
	b.WriteString("status TEXT NOT NULL, ")
	b.WriteString("records_processed BIGINT NOT NULL, ")
	b.WriteString("errors_count BIGINT NOT NULL, ")
	b.WriteString("warnings_count BIGINT NOT NULL, ")
	b.WriteString("processing_time_seconds DOUBLE PRECISION NOT NULL, ")
	b.WriteString("client_name TEXT NOT NULL, ")
	b.WriteString("platform TEXT NOT NULL, ")
	b.WriteString("year BIGINT NOT NULL, ")
	b.WriteString("note TEXT NOT NULL DEFAULT '');")
	return b.String()
}

// buildSeedDescriptorSQL inserts the seed column rows for one logical
// table, skipping any column already recorded. Idempotent across runs.
func buildSeedDescriptorSQL(schemaName, descTable, table string, cols []schema.Column) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(qualify(schemaName, descTable))
	b.WriteString(" (table_name, ordinal, column_name, column_type, required) VALUES ")

	args := make([]any, 0, len(cols)*5)
	p := 1
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d)", p, p+1, p+2, p+3, p+4)
		args = append(args, table, i+1, c.Name, string(c.Type), c.Required)
		p += 5
	}
	b.WriteString(" ON CONFLICT (table_name, column_name) DO NOTHING;")
	return b.String(), args
}

func buildSelectDescriptorSQL(schemaName, descTable string) string {
	return "SELECT column_name, column_type, required FROM " +
		qualify(schemaName, descTable) +
		" WHERE table_name = $1 ORDER BY ordinal;"
}

func buildAddColumnSQL(schemaName, table string, c schema.Column) string {
	return "ALTER TABLE " + qualify(schemaName, table) +
		" ADD COLUMN IF NOT EXISTS " + pgIdent(c.Name) + " " + pgType(c.Type) + ";"
}

// buildAppendDescriptorSQL records one evolved column. The ordinal is
// assigned from the current maximum inside the same statement so it
// stays correct under the advisory lock without a separate read.
func buildAppendDescriptorSQL(schemaName, descTable string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(qualify(schemaName, descTable))
	b.WriteString(" (table_name, ordinal, column_name, column_type, required) ")
	b.WriteString("SELECT $1, COALESCE(MAX(ordinal), 0) + 1, $2, $3, $4 FROM ")
	b.WriteString(qualify(schemaName, descTable))
	b.WriteString(" WHERE table_name = $1")
	b.WriteString(" ON CONFLICT (table_name, column_name) DO NOTHING;")
	return b.String()
}

// buildUpsertSQL renders the additive merge for one chunk of rows.
//
// Merge shape: on natural-key conflict every non-key column is set to
// COALESCE(EXCLUDED.col, existing col), so a non-absent incoming value
// overwrites and an absent one preserves what an earlier wave stored.
// Replaying the same chunk leaves identical state.
func buildUpsertSQL(schemaName, table string, cols, keyCols []string, nrows int) string {
	key := make(map[string]bool, len(keyCols))
	for _, k := range keyCols {
		key[k] = true
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(qualify(schemaName, table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	p := 1
	for r := 0; r < nrows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(" ON CONFLICT (")
	for i, k := range keyCols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(k))
	}
	b.WriteString(")")

	var sets []string
	for _, c := range cols {
		if key[c] {
			continue
		}
		sets = append(sets, pgIdent(c)+" = COALESCE(EXCLUDED."+pgIdent(c)+", "+qualify(schemaName, table)+"."+pgIdent(c)+")")
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

func buildInsertLogSQL(schemaName, table string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(qualify(schemaName, table))
	b.WriteString(" (run_id, wave_number, processing_timestamp, status, records_processed,")
	b.WriteString(" errors_count, warnings_count, processing_time_seconds, client_name, platform, year, note)")
	b.WriteString(" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);")
	return b.String()
}

// buildCreateViewSQL renders the derived join view over campaign data
// and naming keys. CREATE OR REPLACE keeps the refresh idempotent; the
// campaign side only ever gains trailing columns, which OR REPLACE
// accepts.
func buildCreateViewSQL(t storage.Tenant) string {
	c := qualify(t.SchemaName(), t.TableName(storage.CampaignTable))
	n := qualify(t.SchemaName(), t.TableName(storage.NamingTable))

	var b strings.Builder
	b.WriteString("CREATE OR REPLACE VIEW ")
	b.WriteString(qualify(t.SchemaName(), t.ViewName()))
	b.WriteString(" AS SELECT c.*")
	for _, col := range schema.NamingColumns() {
		if col.Name == schema.ColWaveNumber || col.Name == schema.ColAdSetName {
			continue
		}
		b.WriteString(", n.")
		b.WriteString(pgIdent(col.Name))
	}
	b.WriteString(" FROM ")
	b.WriteString(c)
	b.WriteString(" c LEFT JOIN ")
	b.WriteString(n)
	b.WriteString(" n ON c.")
	b.WriteString(pgIdent(schema.ColAdSetName))
	b.WriteString(" = n.")
	b.WriteString(pgIdent(schema.ColAdSetName))
	b.WriteString(" AND c.")
	b.WriteString(pgIdent(schema.ColWaveNumber))
	b.WriteString(" = n.")
	b.WriteString(pgIdent(schema.ColWaveNumber))
	b.WriteString(";")
	return b.String()
}
