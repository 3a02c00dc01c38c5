// Package runs manages the import-run lifecycle. A run moves forward through
// created, importing, mapped, staged, and reported; staging and mapping may
// repeat, so the lifecycle allows stepping back to an earlier working state
// but never skipping ahead.
package runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/errs"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/tenant"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Run statuses.
const (
	StatusCreated   = "created"
	StatusImporting = "importing"
	StatusMapped    = "mapped"
	StatusStaged    = "staged"
	StatusReported  = "reported"
)

// Run is one import run for a tenant's reporting period.
type Run struct {
	ID          uuid.UUID `json:"id"`
	TenantID    string    `json:"tenantId"`
	Name        string    `json:"name"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// rank orders statuses along the forward lifecycle.
var rank = map[string]int{
	StatusCreated:   0,
	StatusImporting: 1,
	StatusMapped:    2,
	StatusStaged:    3,
	StatusReported:  4,
}

// CanTransition reports whether a run may move from one status to another.
// Forward moves advance at most one step; backward moves are allowed to any
// earlier status (re-import, re-map, re-stage).
func CanTransition(from, to string) bool {
	rf, okF := rank[from]
	rt, okT := rank[to]
	if !okF || !okT || from == to {
		return false
	}
	if rt < rf {
		return true
	}
	return rt == rf+1
}

// Create inserts a new run in created status.
func Create(ctx context.Context, db tenant.DBTX, tenantID, name string, periodStart, periodEnd time.Time) (*Run, error) {
	if name == "" {
		return nil, errs.Validationf(tenantID, "", "run name is required")
	}
	if periodEnd.Before(periodStart) {
		return nil, errs.Validationf(tenantID, "", "period end %s precedes period start %s",
			periodEnd.Format("2006-01-02"), periodStart.Format("2006-01-02"))
	}

	const q = `insert into import_run (tenant_id, name, period_start, period_end, status)
		values ($1, $2, $3, $4, $5)
		returning id, created_at, updated_at`

	run := &Run{
		TenantID:    tenantID,
		Name:        name,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Status:      StatusCreated,
	}
	if err := db.QueryRow(ctx, q, tenantID, name, periodStart, periodEnd, StatusCreated).
		Scan(&run.ID, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, fmt.Errorf("create run (tenant=%s): %w", tenantID, err)
	}
	return run, nil
}

// Get loads one run scoped to the tenant.
func Get(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID) (*Run, error) {
	const q = `select id, name, period_start, period_end, status, created_at, updated_at
		from import_run
		where tenant_id = $1 and id = $2`

	run := Run{TenantID: tenantID}
	err := db.QueryRow(ctx, q, tenantID, runID).
		Scan(&run.ID, &run.Name, &run.PeriodStart, &run.PeriodEnd, &run.Status, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFound("run", runID.String())
		}
		return nil, fmt.Errorf("get run %s (tenant=%s): %w", runID, tenantID, err)
	}
	return &run, nil
}

// List returns the tenant's runs, newest first.
func List(ctx context.Context, db tenant.DBTX, tenantID string) ([]Run, error) {
	const q = `select id, name, period_start, period_end, status, created_at, updated_at
		from import_run
		where tenant_id = $1
		order by created_at desc`

	rows, err := db.Query(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list runs (tenant=%s): %w", tenantID, err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run := Run{TenantID: tenantID}
		if err := rows.Scan(&run.ID, &run.Name, &run.PeriodStart, &run.PeriodEnd, &run.Status, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan run (tenant=%s): %w", tenantID, err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// SetStatus moves a run to a new status, validating the transition against
// the run's current state.
func SetStatus(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID, to string) error {
	run, err := Get(ctx, db, tenantID, runID)
	if err != nil {
		return err
	}
	if !CanTransition(run.Status, to) {
		return errs.Validationf(tenantID, runID.String(), "run cannot move from %s to %s", run.Status, to)
	}

	const q = `update import_run set status = $1, updated_at = now()
		where tenant_id = $2 and id = $3`
	if _, err := db.Exec(ctx, q, to, tenantID, runID); err != nil {
		return fmt.Errorf("update run %s status (tenant=%s): %w", runID, tenantID, err)
	}
	return nil
}
