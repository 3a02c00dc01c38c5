// Package execrun records every staging execution as an append-only audit
// trail: which inputs were staged, when, with what outcome. Past executions
// are never rewritten; a re-stage adds a new record.
package execrun

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/errs"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/tenant"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Status of one execution record.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// StepStage is the pipeline step a staging execution records. The column
// exists so future steps (ingest, report) can share the trail and be
// queried per step.
const StepStage = "stage"

// maxErrorLen caps the stored error message so a pathological driver error
// cannot bloat the audit table.
const maxErrorLen = 500

// Execution is one staging execution record.
type Execution struct {
	ID         uuid.UUID       `json:"id"`
	TenantID   string          `json:"tenantId"`
	RunID      uuid.UUID       `json:"runId"`
	Step       string          `json:"step"`
	InputHash  string          `json:"inputHash"`
	Status     string          `json:"status"`
	RowsIn     int             `json:"rowsIn"`
	RowsOut    int             `json:"rowsOut"`
	Stats      json.RawMessage `json:"stats,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// Outcome summarizes what a finished execution processed. Stats is any
// JSON-marshalable summary (rule statistics for staging) stored alongside
// the row counts.
type Outcome struct {
	RowsIn  int
	RowsOut int
	Stats   any
}

func (o Outcome) statsJSON() ([]byte, error) {
	if o.Stats == nil {
		return nil, nil
	}
	payload, err := json.Marshal(o.Stats)
	if err != nil {
		return nil, fmt.Errorf("encode execution stats: %w", err)
	}
	return payload, nil
}

// truncateError bounds a stored error message.
func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return msg
}

// ComputeInputHash digests the staging inputs. Components are sorted before
// hashing so the digest is independent of the order callers assemble them
// in; two executions over identical inputs always produce the same hash.
func ComputeInputHash(components ...string) string {
	sorted := make([]string, len(components))
	copy(sorted, components)
	sort.Strings(sorted)

	h := sha256.New()
	for _, c := range sorted {
		h.Write([]byte(c))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Create inserts a new running execution record and returns it.
func Create(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID, step, inputHash string) (*Execution, error) {
	const q = `insert into execution_run (tenant_id, run_id, step, input_hash, status)
		values ($1, $2, $3, $4, $5)
		returning id, started_at`

	ex := &Execution{
		TenantID:  tenantID,
		RunID:     runID,
		Step:      step,
		InputHash: inputHash,
		Status:    StatusRunning,
	}
	if err := db.QueryRow(ctx, q, tenantID, runID, step, inputHash, StatusRunning).Scan(&ex.ID, &ex.StartedAt); err != nil {
		return nil, fmt.Errorf("create execution (tenant=%s run=%s): %w", tenantID, runID, err)
	}
	return ex, nil
}

// Finish closes an execution with its terminal status, row counts, and
// stats. Error messages are truncated; an empty message is stored for
// successes regardless of input.
func Finish(ctx context.Context, db tenant.DBTX, tenantID string, execID uuid.UUID, status string, out Outcome, execErr error) error {
	msg := ""
	if status == StatusFailed {
		msg = truncateError(execErr)
	}
	stats, err := out.statsJSON()
	if err != nil {
		return err
	}

	const q = `update execution_run
		set status = $1, rows_in = $2, rows_out = $3, stats = $4, error = $5, finished_at = now()
		where tenant_id = $6 and id = $7 and status = $8`

	tag, err := db.Exec(ctx, q, status, out.RowsIn, out.RowsOut, stats, msg, tenantID, execID, StatusRunning)
	if err != nil {
		return fmt.Errorf("finish execution %s (tenant=%s): %w", execID, tenantID, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("execution", execID.String())
	}
	return nil
}

// RecordFailure inserts an already-terminal failed record. Used when the
// staging transaction rolled back and took its running record with it; the
// audit trail still needs the failure.
func RecordFailure(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID, step, inputHash string, execErr error) error {
	const q = `insert into execution_run (tenant_id, run_id, step, input_hash, status, error, finished_at)
		values ($1, $2, $3, $4, $5, $6, now())`
	if _, err := db.Exec(ctx, q, tenantID, runID, step, inputHash, StatusFailed, truncateError(execErr)); err != nil {
		return fmt.Errorf("record failed execution (tenant=%s run=%s): %w", tenantID, runID, err)
	}
	return nil
}

// ListForRun returns the run's executions, most recent first.
func ListForRun(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID) ([]Execution, error) {
	const q = `select id, step, input_hash, status, rows_in, rows_out, stats, coalesce(error, ''), started_at, finished_at
		from execution_run
		where tenant_id = $1 and run_id = $2
		order by started_at desc`

	rows, err := db.Query(ctx, q, tenantID, runID)
	if err != nil {
		return nil, fmt.Errorf("list executions (tenant=%s run=%s): %w", tenantID, runID, err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		ex := Execution{TenantID: tenantID, RunID: runID}
		var stats []byte
		if err := rows.Scan(&ex.ID, &ex.Step, &ex.InputHash, &ex.Status, &ex.RowsIn, &ex.RowsOut, &stats, &ex.Error, &ex.StartedAt, &ex.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan execution (tenant=%s run=%s): %w", tenantID, runID, err)
		}
		ex.Stats = stats
		out = append(out, ex)
	}
	return out, rows.Err()
}

// Latest returns the most recent execution for the run, or a not-found
// error if the run has never been staged.
func Latest(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID) (*Execution, error) {
	const q = `select id, step, input_hash, status, rows_in, rows_out, stats, coalesce(error, ''), started_at, finished_at
		from execution_run
		where tenant_id = $1 and run_id = $2
		order by started_at desc
		limit 1`

	ex := Execution{TenantID: tenantID, RunID: runID}
	var stats []byte
	err := db.QueryRow(ctx, q, tenantID, runID).Scan(&ex.ID, &ex.Step, &ex.InputHash, &ex.Status, &ex.RowsIn, &ex.RowsOut, &stats, &ex.Error, &ex.StartedAt, &ex.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFound("execution", runID.String())
		}
		return nil, fmt.Errorf("latest execution (tenant=%s run=%s): %w", tenantID, runID, err)
	}
	ex.Stats = stats
	return &ex, nil
}
