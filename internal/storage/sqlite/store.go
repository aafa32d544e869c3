// Package sqlite implements the warehouse store on SQLite via
// modernc.org/sqlite, for development and tests.
//
// Key design points vs Postgres:
//   - SQLite has no schemas, so the tenant namespace is folded into the
//     table name as a "{schema}__{table}" prefix.
//   - Timestamps are stored as RFC3339Nano strings for reliable
//     round-trip behavior and easy debugging.
//   - Writes are serialized on a single connection, which stands in for
//     the Postgres advisory lock.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"sparkload/internal/record"
	"sparkload/internal/schema"
	"sparkload/internal/storage"
)

const maxParamsPerStmt = 2000

// Store implements storage.Store for SQLite.
type Store struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One connection: serializes writers and keeps :memory: databases
	// from silently becoming one-per-connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() { _ = s.db.Close() }

func (s *Store) EnsureTenant(ctx context.Context, t storage.Tenant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, buildCreateDescriptorTableSQL(t)); err != nil {
		return fmt.Errorf("create descriptor table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, buildCreateLogTableSQL(t)); err != nil {
		return fmt.Errorf("create log table: %w", err)
	}

	for _, logical := range []string{storage.NamingTable, storage.CampaignTable} {
		cols := storage.SeedColumns(logical)
		if _, err := tx.ExecContext(ctx, buildCreateTableSQL(t, logical, cols, t.KeyColumns(logical))); err != nil {
			return fmt.Errorf("create table %s: %w", logical, err)
		}
		stmt, args := buildSeedDescriptorSQL(t, logical, cols)
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("seed descriptor %s: %w", logical, err)
		}
	}

	for _, stmt := range buildCreateViewSQL(t) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create join view: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) Descriptor(ctx context.Context, t storage.Tenant, table string) (*schema.Descriptor, error) {
	rows, err := s.db.QueryContext(ctx, buildSelectDescriptorSQL(t), table)
	if err != nil {
		return nil, fmt.Errorf("select descriptor %s: %w", table, err)
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var (
			name, typ string
			required  bool
		)
		if err := rows.Scan(&name, &typ, &required); err != nil {
			return nil, fmt.Errorf("scan descriptor %s: %w", table, err)
		}
		cols = append(cols, schema.Column{Name: name, Type: schema.ColumnType(typ), Required: required})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("descriptor rows %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("descriptor for %s is empty, EnsureTenant not run", table)
	}
	return schema.NewDescriptor(table, cols)
}

// AddColumns mirrors the Postgres semantics: ALTER TABLE plus the
// descriptor append in a single transaction. SQLite's ALTER has no
// IF NOT EXISTS, so an already-present column is detected first and
// skipped.
func (s *Store) AddColumns(ctx context.Context, t storage.Tenant, table string, cols []schema.Column) error {
	if len(cols) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	existing, err := tableColumnsTx(ctx, tx, physName(t, table))
	if err != nil {
		return err
	}

	appendSQL := buildAppendDescriptorSQL(t)
	altered := false
	for _, c := range cols {
		if !existing[c.Name] {
			if _, err := tx.ExecContext(ctx, buildAddColumnSQL(t, table, c)); err != nil {
				return fmt.Errorf("add column %s.%s: %w", table, c.Name, err)
			}
			altered = true
		}
		if _, err := tx.ExecContext(ctx, appendSQL, table, c.Name, string(c.Type), c.Required, table); err != nil {
			return fmt.Errorf("record column %s.%s: %w", table, c.Name, err)
		}
	}

	if altered && table == storage.CampaignTable {
		for _, stmt := range buildCreateViewSQL(t) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("refresh join view: %w", err)
			}
		}
	}
	return tx.Commit()
}

func tableColumnsTx(ctx context.Context, tx *sql.Tx, phys string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, "SELECT name FROM pragma_table_info("+quoteString(phys)+");")
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", phys, err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

func (s *Store) UpsertRows(ctx context.Context, t storage.Tenant, table string, keyCols []string, cols []schema.Column, rows []*record.Row) (int64, error) {
	if len(rows) == 0 || len(cols) == 0 {
		return 0, nil
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	rowsPerChunk := maxParamsPerStmt / len(cols)
	if rowsPerChunk < 1 {
		rowsPerChunk = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var total int64
	for start := 0; start < len(rows); start += rowsPerChunk {
		end := start + rowsPerChunk
		if end > len(rows) {
			end = len(rows)
		}
		part := rows[start:end]

		args := make([]any, 0, len(part)*len(names))
		for _, row := range part {
			for _, name := range names {
				v, _ := row.Get(name)
				args = append(args, bindValue(v))
			}
		}

		res, err := tx.ExecContext(ctx, buildUpsertSQL(t, table, names, keyCols, len(part)), args...)
		if err != nil {
			return total, fmt.Errorf("upsert %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return total, err
	}
	return total, nil
}

func (s *Store) AppendLog(ctx context.Context, t storage.Tenant, e storage.LogEntry) error {
	_, err := s.db.ExecContext(ctx, buildInsertLogSQL(t),
		e.RunID, e.Wave, e.Timestamp.UTC().Format(time.RFC3339Nano), e.Status, e.Records,
		e.Errors, e.Warnings, e.Elapsed.Seconds(), e.Client, e.Platform, e.Year, e.Note,
	)
	if err != nil {
		return fmt.Errorf("append processing log: %w", err)
	}
	return nil
}

// bindValue flattens Go types to what SQLite stores natively.
func bindValue(v any) any {
	if ts, ok := v.(time.Time); ok {
		return ts.UTC().Format(time.RFC3339Nano)
	}
	return v
}
