// Package postgres implements the warehouse store on PostgreSQL via
// pgx. Per-table serialization uses transaction-scoped advisory locks,
// so concurrent runs against the same tenant table queue up instead of
// racing the descriptor or the merge.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sparkload/internal/record"
	"sparkload/internal/schema"
	"sparkload/internal/storage"
)

// Keep well below the 65535 wire-protocol parameter ceiling.
const maxParamsPerStmt = 2000

// Store implements storage.Store for Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Postgres-backed Store from cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// lockTable takes the per (schema, table) advisory lock for the life of
// tx. hashtext folds the qualified name into the bigint lock keyspace;
// collisions only cost extra serialization, never correctness.
func lockTable(ctx context.Context, tx pgx.Tx, schemaName, table string) error {
	_, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1));", schemaName+"."+table)
	if err != nil {
		return fmt.Errorf("advisory lock %s.%s: %w", schemaName, table, err)
	}
	return nil
}

// EnsureTenant creates the tenant schema, both data tables with their
// seed columns, the descriptor and log tables, seeds the descriptors,
// and creates the join view. Every statement is idempotent.
func (s *Store) EnsureTenant(ctx context.Context, t storage.Tenant) error {
	sn := t.SchemaName()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, buildCreateSchemaSQL(sn)); err != nil {
		return fmt.Errorf("create schema %s: %w", sn, err)
	}
	if _, err := tx.Exec(ctx, buildCreateDescriptorTableSQL(sn, t.DescriptorTableName())); err != nil {
		return fmt.Errorf("create descriptor table: %w", err)
	}
	if _, err := tx.Exec(ctx, buildCreateLogTableSQL(sn, t.LogTableName())); err != nil {
		return fmt.Errorf("create log table: %w", err)
	}

	for _, logical := range []string{storage.NamingTable, storage.CampaignTable} {
		cols := storage.SeedColumns(logical)
		phys := t.TableName(logical)
		if err := lockTable(ctx, tx, sn, phys); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, buildCreateTableSQL(sn, phys, cols, t.KeyColumns(logical))); err != nil {
			return fmt.Errorf("create table %s: %w", phys, err)
		}
		sql, args := buildSeedDescriptorSQL(sn, t.DescriptorTableName(), logical, cols)
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("seed descriptor %s: %w", logical, err)
		}
	}

	if _, err := tx.Exec(ctx, buildCreateViewSQL(t)); err != nil {
		return fmt.Errorf("create join view: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) Descriptor(ctx context.Context, t storage.Tenant, table string) (*schema.Descriptor, error) {
	rows, err := s.pool.Query(ctx, buildSelectDescriptorSQL(t.SchemaName(), t.DescriptorTableName()), table)
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

// AddColumns applies additive evolution: ALTER TABLE plus the
// descriptor append, both inside one transaction holding the table
// lock. A concurrent run that raced the same delta finds the column
// already present and its statements fall through as no-ops.
func (s *Store) AddColumns(ctx context.Context, t storage.Tenant, table string, cols []schema.Column) error {
	if len(cols) == 0 {
		return nil
	}
	sn := t.SchemaName()
	phys := t.TableName(table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := lockTable(ctx, tx, sn, phys); err != nil {
		return err
	}
	appendSQL := buildAppendDescriptorSQL(sn, t.DescriptorTableName())
	for _, c := range cols {
		if _, err := tx.Exec(ctx, buildAddColumnSQL(sn, phys, c)); err != nil {
			return fmt.Errorf("add column %s.%s: %w", phys, c.Name, err)
		}
		if _, err := tx.Exec(ctx, appendSQL, table, c.Name, string(c.Type), c.Required); err != nil {
			return fmt.Errorf("record column %s.%s: %w", table, c.Name, err)
		}
	}

	// the campaign side of the view gains the new columns
	if table == storage.CampaignTable {
		if _, err := tx.Exec(ctx, buildCreateViewSQL(t)); err != nil {
			return fmt.Errorf("refresh join view: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// UpsertRows merges rows by keyCols in parameter-bounded chunks inside
// one transaction, so a run's writes to a table commit all or nothing.
func (s *Store) UpsertRows(ctx context.Context, t storage.Tenant, table string, keyCols []string, cols []schema.Column, rows []*record.Row) (int64, error) {
	if len(rows) == 0 || len(cols) == 0 {
		return 0, nil
	}
	sn := t.SchemaName()
	phys := t.TableName(table)

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	rowsPerChunk := maxParamsPerStmt / len(cols)
	if rowsPerChunk < 1 {
		rowsPerChunk = 1
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if err := lockTable(ctx, tx, sn, phys); err != nil {
		return 0, err
	}

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
				args = append(args, v)
			}
		}

		cmd, err := tx.Exec(ctx, buildUpsertSQL(sn, phys, names, keyCols, len(part)), args...)
		if err != nil {
			return total, fmt.Errorf("upsert %s: %w", phys, err)
		}
		total += cmd.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return total, err
	}
	return total, nil
}

func (s *Store) AppendLog(ctx context.Context, t storage.Tenant, e storage.LogEntry) error {
	_, err := s.pool.Exec(ctx, buildInsertLogSQL(t.SchemaName(), t.LogTableName()),
		e.RunID, e.Wave, e.Timestamp, e.Status, e.Records,
		e.Errors, e.Warnings, e.Elapsed.Seconds(), e.Client, e.Platform, e.Year, e.Note,
	)
	if err != nil {
		return fmt.Errorf("append processing log: %w", err)
	}
	return nil
}
