package pipeline

import (
	"context"
	"fmt"

	"sparkload/internal/storage"
	"sparkload/internal/validate"
)

// FaultKind classifies why a run could not complete cleanly.
type FaultKind string

const (
	// FatalValidation: empty file, missing required join key, or
	// unreadable encoding. Nothing was written.
	FatalValidation FaultKind = "FATAL_VALIDATION"

	// StructuralChange: schema evolution could not add a needed column.
	// Descriptor and table are unchanged, no data was written.
	StructuralChange FaultKind = "STRUCTURAL_CHANGE"

	// StoreUnavailable: the backing store was unreachable. Retrying
	// once connectivity returns is safe.
	StoreUnavailable FaultKind = "STORE_UNAVAILABLE"

	// WriteFailure: a reachable store rejected a data write before the
	// naming-key commit. The statement or the data needs correcting, a
	// connectivity retry will not help.
	WriteFailure FaultKind = "WRITE_FAILURE"

	// PartialCommit: naming keys committed but the campaign-data commit
	// failed. Re-running is safe; the merge is idempotent.
	PartialCommit FaultKind = "PARTIAL_COMMIT"
)

// Fault is the structured failure a run returns. It is carried inside
// RunResult so callers get the offending detail without unwrapping
// opaque errors.
type Fault struct {
	Kind   FaultKind        `json:"kind"`
	Stage  string           `json:"stage"`
	Issues []validate.Issue `json:"issues,omitempty"`
	Err    error            `json:"-"`
}

func (f *Fault) Error() string {
	switch {
	case f.Err != nil:
		return fmt.Sprintf("%s at %s: %v", f.Kind, f.Stage, f.Err)
	case len(f.Issues) > 0:
		return fmt.Sprintf("%s at %s: %s", f.Kind, f.Stage, f.Issues[0].String())
	default:
		return fmt.Sprintf("%s at %s", f.Kind, f.Stage)
	}
}

func (f *Fault) Unwrap() error { return f.Err }

func fault(kind FaultKind, stage string, err error) *Fault {
	return &Fault{Kind: kind, Stage: stage, Err: err}
}

// writeFault classifies an upsert error. A store that still answers a
// ping rejected the statement itself, so the failure is data-level, not
// an availability problem.
func writeFault(ctx context.Context, s storage.Store, stage string, err error) *Fault {
	if perr := s.Ping(ctx); perr != nil {
		return fault(StoreUnavailable, stage, err)
	}
	return fault(WriteFailure, stage, err)
}
