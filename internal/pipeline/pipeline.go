// Package pipeline orchestrates one ingestion run: read and decode both
// wave files, normalize headers, validate, evolve the tenant schema,
// merge naming keys then campaign data, and append one processing-log
// row. Fatal problems abort before any write; advisory problems degrade
// cells to absence markers and mark the run PARTIAL.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sparkload/internal/csvio"
	"sparkload/internal/metrics"
	"sparkload/internal/normalize"
	"sparkload/internal/schema"
	"sparkload/internal/storage"
	"sparkload/internal/validate"
)

// Run statuses recorded in the processing log.
const (
	StatusSuccess = "SUCCESS"
	StatusPartial = "PARTIAL"
	StatusFailed  = "FAILED"
)

// Params selects the input files and the tenant for one run.
type Params struct {
	Tenant       storage.Tenant
	CampaignPath string
	NamingPath   string

	// ArchiveDir, when set, receives copies of both inputs under the
	// canonical archive names after a non-failed run.
	ArchiveDir string
}

// RunResult is the structured outcome returned to the caller.
type RunResult struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`

	NamingRecords   int64 `json:"naming_records"`
	CampaignRecords int64 `json:"campaign_records"`

	Warnings []validate.Issue `json:"warnings,omitempty"`
	Fault    *Fault           `json:"fault,omitempty"`

	Elapsed time.Duration `json:"elapsed"`
}

// Runner executes ingestion runs against one store.
type Runner struct {
	store   storage.Store
	log     *zap.Logger
	metrics metrics.Backend
}

// NewRunner wires a Runner. logger and backend may be nil; they default
// to zap.NewNop and the nop metrics backend.
func NewRunner(store storage.Store, logger *zap.Logger, backend metrics.Backend) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if backend == nil {
		backend = metrics.Nop{}
	}
	return &Runner{store: store, log: logger, metrics: backend}
}

// Run executes one ingestion run. The returned error is the run's Fault
// when one occurred; the RunResult always carries the full detail, and
// exactly one log row is appended whenever the log store is reachable.
func (r *Runner) Run(ctx context.Context, p Params) (RunResult, error) {
	start := time.Now()
	res := RunResult{RunID: uuid.NewString(), Status: StatusFailed}
	log := r.log.With(
		zap.String("run_id", res.RunID),
		zap.String("client", p.Tenant.Client),
		zap.String("platform", p.Tenant.Platform),
		zap.Int("year", p.Tenant.Year),
		zap.Int("wave", p.Tenant.Wave),
	)

	if err := p.Tenant.Validate(); err != nil {
		return r.finish(ctx, p, &res, start, log, fault(FatalValidation, "params", err))
	}

	// Both files are independent until validation, so read them in
	// parallel. Outputs are identical to a sequential read.
	var campaignFile, namingFile *csvio.File
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		campaignFile, err = csvio.ReadFile(gctx, p.CampaignPath)
		return err
	})
	g.Go(func() (err error) {
		namingFile, err = csvio.ReadFile(gctx, p.NamingPath)
		return err
	})
	if err := g.Wait(); err != nil {
		// bad encoding, unreadable path, malformed CSV: all abort
		// before any write
		return r.finish(ctx, p, &res, start, log, fault(FatalValidation, "read", err))
	}
	log.Info("files read",
		zap.Int("campaign_rows", len(campaignFile.Rows)),
		zap.Int("naming_rows", len(namingFile.Rows)),
	)

	campaignCols, campaignMap := normalize.Headers(campaignFile.Header)
	namingCols, namingMap := normalize.Headers(namingFile.Header)
	log.Debug("headers normalized",
		zap.Int("campaign_renames", len(campaignMap)),
		zap.Int("naming_renames", len(namingMap)),
	)

	if err := r.store.Ping(ctx); err != nil {
		res.Fault = fault(StoreUnavailable, "ping", err)
		res.Elapsed = time.Since(start)
		// the log store is the store; nothing to record
		return res, res.Fault
	}
	if err := r.store.EnsureTenant(ctx, p.Tenant); err != nil {
		return r.finish(ctx, p, &res, start, log, fault(StoreUnavailable, "ensure-tenant", err))
	}

	namingDesc, err := r.store.Descriptor(ctx, p.Tenant, storage.NamingTable)
	if err != nil {
		return r.finish(ctx, p, &res, start, log, fault(StoreUnavailable, "descriptor", err))
	}
	campaignDesc, err := r.store.Descriptor(ctx, p.Tenant, storage.CampaignTable)
	if err != nil {
		return r.finish(ctx, p, &res, start, log, fault(StoreUnavailable, "descriptor", err))
	}

	namingRep := validate.Check(namingFile, namingCols, namingDesc, validate.Options{
		Table:   storage.NamingTable,
		KeyCols: p.Tenant.KeyColumns(storage.NamingTable),
		Wave:    p.Tenant.Wave,
	})
	campaignRep := validate.Check(campaignFile, campaignCols, campaignDesc, validate.Options{
		Table:       storage.CampaignTable,
		KeyCols:     p.Tenant.KeyColumns(storage.CampaignTable),
		Wave:        p.Tenant.Wave,
		KeyFallback: true,
	})
	res.Warnings = append(res.Warnings, namingRep.Warnings...)
	res.Warnings = append(res.Warnings, campaignRep.Warnings...)

	if fatal := append(append([]validate.Issue(nil), namingRep.Fatal...), campaignRep.Fatal...); len(fatal) > 0 {
		f := &Fault{Kind: FatalValidation, Stage: "validate", Issues: fatal}
		return r.finish(ctx, p, &res, start, log, f)
	}
	res.Warnings = append(res.Warnings, unmatchedJoinKeys(campaignRep, namingRep)...)
	log.Info("validated",
		zap.Int("naming_rows", len(namingRep.Rows)),
		zap.Int("campaign_rows", len(campaignRep.Rows)),
		zap.Int("warnings", len(res.Warnings)),
	)

	// Schema evolution, both tables, before any data write.
	for _, ev := range []struct {
		table string
		desc  *schema.Descriptor
		rep   *validate.Report
	}{
		{storage.NamingTable, namingDesc, namingRep},
		{storage.CampaignTable, campaignDesc, campaignRep},
	} {
		delta := ev.desc.Delta(ev.rep.Observed)
		if len(delta) == 0 {
			continue
		}
		if err := r.store.AddColumns(ctx, p.Tenant, ev.table, delta); err != nil {
			return r.finish(ctx, p, &res, start, log, fault(StructuralChange, "evolve "+ev.table, err))
		}
		if err := ev.desc.Append(delta...); err != nil {
			return r.finish(ctx, p, &res, start, log, fault(StructuralChange, "evolve "+ev.table, err))
		}
		names := make([]string, len(delta))
		for i, c := range delta {
			names[i] = c.Name
		}
		log.Info("schema evolved", zap.String("table", ev.table), zap.Strings("columns", names))
	}

	// Naming keys commit first: downstream joins expect them to be in
	// place before the campaign rows for the same wave are visible.
	n, err := r.store.UpsertRows(ctx, p.Tenant, storage.NamingTable,
		p.Tenant.KeyColumns(storage.NamingTable), namingRep.Observed, namingRep.Rows)
	if err != nil {
		return r.finish(ctx, p, &res, start, log, writeFault(ctx, r.store, "upsert "+storage.NamingTable, err))
	}
	res.NamingRecords = n
	r.metrics.IncCounter(metrics.RecordsTotal, float64(n), metrics.Labels{"table": storage.NamingTable})

	c, err := r.store.UpsertRows(ctx, p.Tenant, storage.CampaignTable,
		p.Tenant.KeyColumns(storage.CampaignTable), campaignRep.Observed, campaignRep.Rows)
	if err != nil {
		f := fault(PartialCommit, "upsert "+storage.CampaignTable, err)
		res.Status = StatusPartial
		return r.finish(ctx, p, &res, start, log, f)
	}
	res.CampaignRecords = c
	r.metrics.IncCounter(metrics.RecordsTotal, float64(c), metrics.Labels{"table": storage.CampaignTable})

	if len(res.Warnings) > 0 {
		res.Status = StatusPartial
	} else {
		res.Status = StatusSuccess
	}
	return r.finish(ctx, p, &res, start, log, nil)
}

// finish stamps the result, appends the single processing-log row,
// emits run metrics, and archives inputs for completed runs.
func (r *Runner) finish(ctx context.Context, p Params, res *RunResult, start time.Time, log *zap.Logger, f *Fault) (RunResult, error) {
	res.Elapsed = time.Since(start)
	res.Fault = f
	if f != nil && res.Status != StatusPartial {
		res.Status = StatusFailed
	}

	entry := storage.LogEntry{
		RunID:     res.RunID,
		Wave:      p.Tenant.Wave,
		Timestamp: time.Now().UTC(),
		Status:    res.Status,
		Records:   res.NamingRecords + res.CampaignRecords,
		Warnings:  len(res.Warnings),
		Elapsed:   res.Elapsed,
		Client:    p.Tenant.Client,
		Platform:  p.Tenant.Platform,
		Year:      p.Tenant.Year,
	}
	if f != nil {
		entry.Errors = len(f.Issues)
		if entry.Errors == 0 {
			entry.Errors = 1
		}
		entry.Note = f.Error()
		if f.Kind == PartialCommit {
			entry.Note = fmt.Sprintf("%s committed, %s failed: %v", storage.NamingTable, storage.CampaignTable, f.Err)
		}
	}

	// Best effort: when the store itself is down the caller still gets
	// the fault, just without an audit row.
	if err := r.store.AppendLog(ctx, p.Tenant, entry); err != nil {
		log.Warn("processing log append failed", zap.Error(err))
	}

	r.metrics.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"status": res.Status})
	if n := len(res.Warnings); n > 0 {
		r.metrics.IncCounter(metrics.WarningsTotal, float64(n), nil)
	}
	r.metrics.ObserveHistogram(metrics.RunDurationSeconds, res.Elapsed.Seconds(), metrics.Labels{"status": res.Status})

	if f == nil && p.ArchiveDir != "" {
		if err := archiveInputs(p); err != nil {
			log.Warn("archive copy failed", zap.Error(err))
		}
	}

	if f != nil {
		log.Error("run failed",
			zap.String("status", res.Status),
			zap.String("fault", string(f.Kind)),
			zap.Duration("duration", res.Elapsed),
			zap.Error(f),
		)
		return *res, f
	}
	log.Info("run complete",
		zap.String("status", res.Status),
		zap.Int64("naming_records", res.NamingRecords),
		zap.Int64("campaign_records", res.CampaignRecords),
		zap.Int("warnings", len(res.Warnings)),
		zap.Duration("duration", res.Elapsed),
	)
	return *res, nil
}

// unmatchedJoinKeys reports campaign rows whose ad_set_name has no
// naming-key row in this upload. Advisory only: the join view resolves
// lazily and a later naming upload can still fill the gap.
func unmatchedJoinKeys(campaign, naming *validate.Report) []validate.Issue {
	known := make(map[string]bool, len(naming.Rows))
	for _, row := range naming.Rows {
		known[row.String(schema.ColAdSetName)] = true
	}
	var missing int
	first := 0
	for _, row := range campaign.Rows {
		if !known[row.String(schema.ColAdSetName)] {
			if missing == 0 {
				first = row.Line
			}
			missing++
		}
	}
	if missing == 0 {
		return nil
	}
	return []validate.Issue{{
		Column: schema.ColAdSetName,
		Line:   first,
		Count:  missing,
		Msg:    "campaign rows without a matching naming key",
	}}
}
