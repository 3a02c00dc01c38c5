// Package pipeline orchestrates the import pipeline: ingest, mapping,
// staging, and reporting. Every public operation runs inside exactly one
// tenant-scoped transaction; the stages themselves are pure functions over
// in-memory row batches.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/colmap"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/compose"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/errs"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/exclusion"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/execrun"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/rawstore"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/report"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/rules"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/runs"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/staging"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/telemetry"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/tenant"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Options tune per-run limits.
type Options struct {
	BatchSize      int
	RowCap         int
	HeaderScanRows int
}

// Service is the pipeline entry point used by the HTTP layer.
type Service struct {
	pool *pgxpool.Pool
	log  *slog.Logger
	opts Options
	excl *exclusion.Engine
}

// New returns a service over the given pool.
func New(pool *pgxpool.Pool, log *slog.Logger, opts Options) *Service {
	return &Service{
		pool: pool,
		log:  log,
		opts: opts,
		excl: exclusion.Default(),
	}
}

// CreateRun opens a new import run for the tenant.
func (s *Service) CreateRun(ctx context.Context, tenantID, name string, periodStart, periodEnd time.Time) (*runs.Run, error) {
	tc, err := tenant.New(tenantID)
	if err != nil {
		return nil, err
	}
	var run *runs.Run
	err = tc.WithTx(ctx, s.pool, func(tx *tenant.Tx) error {
		run, err = runs.Create(ctx, tx, tenantID, name, periodStart, periodEnd)
		return err
	})
	return run, err
}

// GetRun returns one run.
func (s *Service) GetRun(ctx context.Context, tenantID string, runID uuid.UUID) (*runs.Run, error) {
	tc, err := tenant.New(tenantID)
	if err != nil {
		return nil, err
	}
	var run *runs.Run
	err = tc.WithTx(ctx, s.pool, func(tx *tenant.Tx) error {
		run, err = runs.Get(ctx, tx, tenantID, runID)
		return err
	})
	return run, err
}

// ListRuns returns the tenant's runs.
func (s *Service) ListRuns(ctx context.Context, tenantID string) ([]runs.Run, error) {
	tc, err := tenant.New(tenantID)
	if err != nil {
		return nil, err
	}
	var out []runs.Run
	err = tc.WithTx(ctx, s.pool, func(tx *tenant.Tx) error {
		out, err = runs.List(ctx, tx, tenantID)
		return err
	})
	return out, err
}

// Ingest streams the main import file into raw storage and moves the run to
// importing.
func (s *Service) Ingest(ctx context.Context, tenantID string, runID uuid.UUID, r io.Reader) (int, error) {
	tc, err := tenant.New(tenantID)
	if err != nil {
		return 0, err
	}

	var inserted int
	err = tc.WithTx(ctx, s.pool, func(tx *tenant.Tx) error {
		run, err := runs.Get(ctx, tx, tenantID, runID)
		if err != nil {
			return err
		}
		inserted, err = rawstore.Ingest(ctx, tx, runID, r, rawstore.IngestOptions{
			BatchSize: s.opts.BatchSize,
			RowCap:    s.opts.RowCap,
		})
		if err != nil {
			return err
		}
		if runs.CanTransition(run.Status, runs.StatusImporting) {
			return runs.SetStatus(ctx, tx, tenantID, runID, runs.StatusImporting)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	telemetry.RowsIngested.Add(float64(inserted))
	s.log.Info("import ingested", "tenantId", tenantID, "runId", runID, "rows", inserted)
	return inserted, nil
}

// IngestDataset stores a supporting dataset under a join role.
func (s *Service) IngestDataset(ctx context.Context, tenantID string, runID uuid.UUID, role, name string, r io.Reader) (*rawstore.SupportDataset, error) {
	tc, err := tenant.New(tenantID)
	if err != nil {
		return nil, err
	}
	var ds *rawstore.SupportDataset
	err = tc.WithTx(ctx, s.pool, func(tx *tenant.Tx) error {
		if _, err := runs.Get(ctx, tx, tenantID, runID); err != nil {
			return err
		}
		ds, err = rawstore.IngestDataset(ctx, tx, runID, role, name, r, rawstore.IngestOptions{
			BatchSize: s.opts.BatchSize,
			RowCap:    s.opts.RowCap,
		})
		return err
	})
	return ds, err
}

// SampleResult pairs the raw sample page with mapping suggestions for
// headers the run's column map does not cover yet.
type SampleResult struct {
	*rawstore.SampleResult
	Suggestions map[string]canonical.Field `json:"suggestions,omitempty"`
}

// Sample returns a page of raw rows with the merged header set and mapping
// suggestions for unmapped headers.
func (s *Service) Sample(ctx context.Context, tenantID string, runID uuid.UUID, limit, offset int) (*SampleResult, error) {
	tc, err := tenant.New(tenantID)
	if err != nil {
		return nil, err
	}

	var result *SampleResult
	err = tc.WithTx(ctx, s.pool, func(tx *tenant.Tx) error {
		if _, err := runs.Get(ctx, tx, tenantID, runID); err != nil {
			return err
		}
		headers, err := s.datasetHeaders(ctx, tx, tenantID, runID)
		if err != nil {
			return err
		}
		page, err := rawstore.Sample(ctx, tx, tenantID, runID, limit, offset, s.opts.HeaderScanRows, headers)
		if err != nil {
			return err
		}

		m := colmap.Map{}
		if rec, err := colmap.GetMap(ctx, tx, tenantID, runID); err == nil {
			m = rec.Map
		} else if !errs.IsNotFound(err) {
			return err
		}
		result = &SampleResult{SampleResult: page, Suggestions: suggestUnmapped(page.Headers, m)}
		return nil
	})
	return result, err
}

// suggestUnmapped proposes canonical fields for sampled headers the map's
// explicit mappings do not already cover.
func suggestUnmapped(headers []rawstore.HeaderInfo, m colmap.Map) map[string]canonical.Field {
	names := make([]string, 0, len(headers))
	for _, h := range headers {
		if _, mapped := m.Mappings[h.Name]; mapped {
			continue
		}
		names = append(names, h.Name)
	}
	return colmap.SuggestMappings(names)
}

// SaveMap validates and upserts the run's column map, then moves the run to
// mapped.
func (s *Service) SaveMap(ctx context.Context, tenantID string, runID uuid.UUID, m colmap.Map) (*colmap.Record, error) {
	if err := m.RowRules.Validate(); err != nil {
		return nil, errs.Validationf(tenantID, runID.String(), "invalid row rules: %v", err)
	}

	tc, err := tenant.New(tenantID)
	if err != nil {
		return nil, err
	}
	var rec *colmap.Record
	err = tc.WithTx(ctx, s.pool, func(tx *tenant.Tx) error {
		run, err := runs.Get(ctx, tx, tenantID, runID)
		if err != nil {
			return err
		}
		rec, err = colmap.SaveMap(ctx, tx, tenantID, runID, m)
		if err != nil {
			return err
		}
		if runs.CanTransition(run.Status, runs.StatusMapped) {
			return runs.SetStatus(ctx, tx, tenantID, runID, runs.StatusMapped)
		}
		return nil
	})
	return rec, err
}

// GetMap returns the run's column map.
func (s *Service) GetMap(ctx context.Context, tenantID string, runID uuid.UUID) (*colmap.Record, error) {
	tc, err := tenant.New(tenantID)
	if err != nil {
		return nil, err
	}
	var rec *colmap.Record
	err = tc.WithTx(ctx, s.pool, func(tx *tenant.Tx) error {
		rec, err = colmap.GetMap(ctx, tx, tenantID, runID)
		return err
	})
	return rec, err
}

// StageResult summarizes one stage invocation.
type StageResult struct {
	ExecutionID uuid.UUID       `json:"executionId,omitempty"`
	InputHash   string          `json:"inputHash"`
	RowsIn      int             `json:"rowsIn"`
	RowsStaged  int             `json:"rowsStaged"`
	Persisted   bool            `json:"persisted"`
	RuleStats   rules.Stats     `json:"ruleStats"`
	Exclusions  exclusion.Stats `json:"exclusions"`
}

// Stage composes raw rows through the column map, applies rules and
// eligibility checks, and (when persist is set) replaces the staged row set.
// The whole stage runs in one transaction; on failure the transaction rolls
// back and a terminal failed execution record is written separately.
func (s *Service) Stage(ctx context.Context, tenantID string, runID uuid.UUID, persist bool) (*StageResult, error) {
	tc, err := tenant.New(tenantID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var result *StageResult
	var inputHash string

	err = tc.WithTx(ctx, s.pool, func(tx *tenant.Tx) error {
		var err error
		result, inputHash, err = s.stageTx(ctx, tx, tenantID, runID, persist)
		return err
	})
	telemetry.StageDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		telemetry.RunsFailed.Inc()
		if shouldRecordFailure(err) {
			s.recordFailure(ctx, tc, tenantID, runID, inputHash, err)
		}
		return nil, err
	}

	telemetry.RowsStaged.Add(float64(result.RowsStaged))
	telemetry.RowsExcluded.Add(float64(result.Exclusions.Excluded))
	s.log.Info("stage complete",
		"tenantId", tenantID, "runId", runID,
		"rows", result.RowsStaged, "persisted", persist,
		"durationMs", time.Since(start).Milliseconds())
	return result, nil
}

func (s *Service) stageTx(ctx context.Context, tx *tenant.Tx, tenantID string, runID uuid.UUID, persist bool) (*StageResult, string, error) {
	run, err := runs.Get(ctx, tx, tenantID, runID)
	if err != nil {
		return nil, "", err
	}

	rowCap := s.opts.RowCap
	if rowCap <= 0 {
		rowCap = rawstore.DefaultRowCap
	}
	rawCount, err := rawstore.Count(ctx, tx, tenantID, runID)
	if err != nil {
		return nil, "", err
	}
	if rawCount == 0 {
		return nil, "", errs.Validationf(tenantID, runID.String(), "no rows imported; nothing to stage")
	}
	if rawCount > int64(rowCap) {
		return nil, "", &errs.CapacityError{TenantID: tenantID, RunID: runID.String(), Limit: rowCap, Actual: int(rawCount)}
	}

	rec, err := colmap.GetMap(ctx, tx, tenantID, runID)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, "", errs.Validationf(tenantID, runID.String(), "no column map configured; save a map before staging")
		}
		return nil, "", err
	}

	datasets, dsComponents, err := s.loadDatasets(ctx, tx, tenantID, runID, rec.Map)
	if err != nil {
		return nil, "", err
	}

	latest, err := rawstore.LatestModified(ctx, tx, tenantID, runID)
	if err != nil {
		return nil, "", err
	}
	digest, err := rec.Map.ContentDigest()
	if err != nil {
		return nil, "", err
	}

	components := append([]string{
		fmt.Sprintf("map:%s:%s", rec.ID, digest),
		fmt.Sprintf("raw:%d:%s", rawCount, latest.UTC().Format(time.RFC3339Nano)),
	}, dsComponents...)
	inputHash := execrun.ComputeInputHash(components...)

	exec, err := execrun.Create(ctx, tx, tenantID, runID, execrun.StepStage, inputHash)
	if err != nil {
		return nil, inputHash, err
	}

	raws, err := rawstore.LoadAll(ctx, tx, tenantID, runID)
	if err != nil {
		return nil, inputHash, err
	}

	rows, ruleStats, exclStats := runPipeline(raws, rec.Map, datasets, s.excl)

	result := &StageResult{
		ExecutionID: exec.ID,
		InputHash:   inputHash,
		RowsIn:      len(raws),
		RowsStaged:  len(rows),
		Persisted:   persist,
		RuleStats:   ruleStats,
		Exclusions:  exclStats,
	}

	if persist {
		persisted, err := staging.Persist(ctx, tx, runID, rows)
		if err != nil {
			return nil, inputHash, err
		}
		if persisted != len(raws) {
			return nil, inputHash, fmt.Errorf("staged %d rows from %d raw rows (tenant=%s run=%s)", persisted, len(raws), tenantID, runID)
		}
	}

	outcome := execrun.Outcome{RowsIn: len(raws), RowsOut: len(rows), Stats: ruleStats}
	if err := execrun.Finish(ctx, tx, tenantID, exec.ID, execrun.StatusSuccess, outcome, nil); err != nil {
		return nil, inputHash, err
	}

	if persist && runs.CanTransition(run.Status, runs.StatusStaged) {
		if err := runs.SetStatus(ctx, tx, tenantID, runID, runs.StatusStaged); err != nil {
			return nil, inputHash, err
		}
	}

	return result, inputHash, nil
}

// runPipeline is the pure core of a stage invocation: compose, rules,
// eligibility. Single-threaded over the in-memory batch; no rule reads
// another row's state.
func runPipeline(raws []rawstore.RawRow, m colmap.Map, datasets []compose.Dataset, excl *exclusion.Engine) ([]*canonical.Row, rules.Stats, exclusion.Stats) {
	rows := compose.Compose(raws, m, datasets)
	ruleStats := rules.Apply(rows, m.RowRules)
	exclStats := excl.Apply(rows)
	return rows, ruleStats, exclStats
}

// shouldRecordFailure reports whether a stage failure belongs in the audit
// trail. A missing run has no trail to write to; the insert would violate
// the run foreign key and be lost anyway.
func shouldRecordFailure(err error) bool {
	return !errs.IsNotFound(err)
}

// recordFailure writes a terminal failed execution record in a fresh
// transaction, after the staging transaction rolled back.
func (s *Service) recordFailure(ctx context.Context, tc tenant.Context, tenantID string, runID uuid.UUID, inputHash string, execErr error) {
	err := tc.WithTx(ctx, s.pool, func(tx *tenant.Tx) error {
		return execrun.RecordFailure(ctx, tx, tenantID, runID, execrun.StepStage, inputHash, execErr)
	})
	if err != nil {
		s.log.Error("failed to record execution failure", "tenantId", tenantID, "runId", runID, "error", err)
	}
}

// Preview returns a page of staged rows with stable column ordering.
func (s *Service) Preview(ctx context.Context, tenantID string, runID uuid.UUID, offset, limit int) (*staging.PreviewResult, error) {
	tc, err := tenant.New(tenantID)
	if err != nil {
		return nil, err
	}

	var result *staging.PreviewResult
	err = tc.WithTx(ctx, s.pool, func(tx *tenant.Tx) error {
		m := colmap.Map{}
		if rec, err := colmap.GetMap(ctx, tx, tenantID, runID); err == nil {
			m = rec.Map
		} else if !errs.IsNotFound(err) {
			return err
		}
		result, err = staging.Preview(ctx, tx, tenantID, runID, m, offset, limit)
		return err
	})
	return result, err
}

// Report aggregates the staged rows into payment-time statistics merged
// with the caller's draft metadata. A staged run that reports moves to
// reported, closing the lifecycle.
func (s *Service) Report(ctx context.Context, tenantID string, runID uuid.UUID, draft report.Draft) (*report.Report, error) {
	tc, err := tenant.New(tenantID)
	if err != nil {
		return nil, err
	}

	var rpt *report.Report
	err = tc.WithTx(ctx, s.pool, func(tx *tenant.Tx) error {
		run, err := runs.Get(ctx, tx, tenantID, runID)
		if err != nil {
			return err
		}
		staged, err := staging.LoadAll(ctx, tx, tenantID, runID)
		if err != nil {
			return err
		}
		rpt = report.Compute(toCanonical(staged), draft)
		if runs.CanTransition(run.Status, runs.StatusReported) {
			return runs.SetStatus(ctx, tx, tenantID, runID, runs.StatusReported)
		}
		return nil
	})
	return rpt, err
}

// Executions returns the run's staging audit trail.
func (s *Service) Executions(ctx context.Context, tenantID string, runID uuid.UUID) ([]execrun.Execution, error) {
	tc, err := tenant.New(tenantID)
	if err != nil {
		return nil, err
	}
	var out []execrun.Execution
	err = tc.WithTx(ctx, s.pool, func(tx *tenant.Tx) error {
		out, err = execrun.ListForRun(ctx, tx, tenantID, runID)
		return err
	})
	return out, err
}

// loadDatasets loads the support datasets referenced by the map's joins and
// returns them with their input-hash components.
func (s *Service) loadDatasets(ctx context.Context, tx *tenant.Tx, tenantID string, runID uuid.UUID, m colmap.Map) ([]compose.Dataset, []string, error) {
	if len(m.Joins) == 0 {
		return nil, nil, nil
	}

	all, err := rawstore.ListDatasets(ctx, tx, tenantID, runID)
	if err != nil {
		return nil, nil, err
	}
	byRole := make(map[string]rawstore.SupportDataset, len(all))
	for _, ds := range all {
		byRole[ds.Role] = ds
	}

	var datasets []compose.Dataset
	var components []string
	for _, j := range m.Joins {
		ds, ok := byRole[j.Role]
		if !ok {
			return nil, nil, errs.Validationf(tenantID, runID.String(), "join references dataset role %q but no dataset is uploaded for it", j.Role)
		}
		dsRows, err := rawstore.LoadDatasetRows(ctx, tx, tenantID, ds.ID)
		if err != nil {
			return nil, nil, err
		}
		datasets = append(datasets, compose.Dataset{Role: ds.Role, Rows: dsRows})
		components = append(components, fmt.Sprintf("dataset:%s:%s:%s", ds.ID, ds.Role, ds.UpdatedAt.UTC().Format(time.RFC3339Nano)))
	}
	return datasets, components, nil
}

// datasetHeaders derives header provenance for the sample view from the
// first row of each support dataset.
func (s *Service) datasetHeaders(ctx context.Context, tx *tenant.Tx, tenantID string, runID uuid.UUID) ([]rawstore.DatasetHeaders, error) {
	all, err := rawstore.ListDatasets(ctx, tx, tenantID, runID)
	if err != nil {
		return nil, err
	}

	var out []rawstore.DatasetHeaders
	for _, ds := range all {
		dsRows, err := rawstore.LoadDatasetRows(ctx, tx, tenantID, ds.ID)
		if err != nil {
			return nil, err
		}
		dh := rawstore.DatasetHeaders{Role: ds.Role, Examples: map[string]string{}}
		if len(dsRows) > 0 {
			for h, v := range dsRows[0] {
				dh.Headers = append(dh.Headers, h)
				if v != "" {
					dh.Examples[h] = v
				}
			}
		}
		out = append(out, dh)
	}
	return out, nil
}

// toCanonical rebuilds in-memory rows from their staged form for metrics.
func toCanonical(staged []staging.StagedRow) []*canonical.Row {
	out := make([]*canonical.Row, 0, len(staged))
	for _, sr := range staged {
		row := canonical.NewRow(sr.RowNo)
		for name, v := range sr.Data {
			row.Set(canonical.Field(name), v)
		}
		if sr.Meta.Exclude {
			row.SetExclude(sr.Meta.ExcludeComment)
		}
		row.Warnings = sr.Meta.Warnings
		out = append(out, row)
	}
	return out
}
