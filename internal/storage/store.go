// Package storage defines the backend-agnostic store contract for the
// ingestion pipeline and the per-backend factory registry.
//
// Backends register themselves from an init() in their own package
// (postgres, sqlite); callers blank-import the backends they want and
// open a store by kind.
package storage

import (
	"context"
	"fmt"
	"sync"

	"sparkload/internal/record"
	"sparkload/internal/schema"
)

// Config is the minimal configuration needed to open a Store.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Store is the persistence contract the pipeline writes through.
//
// IMPORTANT: implementations must keep three semantics identical across
// backends, because the pipeline's guarantees depend on them:
//   - AddColumns is atomic with the descriptor append (both or neither)
//     and serialized per (tenant, table) against concurrent runs.
//   - UpsertRows merges by natural key: incoming non-absent fields
//     overwrite, absent fields never clear stored values.
//   - AppendLog is append-only; log rows are never updated.
type Store interface {
	// Ping verifies the backend is reachable. The pipeline calls it
	// first so connectivity failures surface before any work is done.
	Ping(ctx context.Context) error

	// Close releases backend resources. Treat as "call once".
	Close()

	// EnsureTenant creates the tenant schema, both data tables, the
	// descriptor and log tables, and the join view, all idempotently.
	EnsureTenant(ctx context.Context, t Tenant) error

	// Descriptor loads the persisted column descriptor for one logical
	// table. EnsureTenant must have run for this tenant first.
	Descriptor(ctx context.Context, t Tenant, table string) (*schema.Descriptor, error)

	// AddColumns applies additive schema evolution: each column is
	// added to the target table (nullable) and appended to the
	// persisted descriptor in one transaction under the per-table
	// serialization lock. Columns already present are skipped.
	AddColumns(ctx context.Context, t Tenant, table string, cols []schema.Column) error

	// UpsertRows merges rows by keyCols and returns the number of rows
	// written. Running the same rows twice leaves identical state.
	UpsertRows(ctx context.Context, t Tenant, table string, keyCols []string, cols []schema.Column, rows []*record.Row) (int64, error)

	// AppendLog appends one immutable processing-log row.
	AppendLog(ctx context.Context, t Tenant, e LogEntry) error
}

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. This is intentional to fail fast
//     and avoid ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// Open constructs a Store using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
