// Package staging persists the canonical, rule-applied row set for a run.
// Re-staging is a full transactional replace: within the caller's single
// transaction all prior staged rows for (tenant, run) are deleted and the
// new set bulk-inserted, so a reader can never observe a half-replaced run.
package staging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/tenant"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Meta is the per-row processing metadata stored alongside the data.
type Meta struct {
	RulesApplied   []string `json:"rulesApplied,omitempty"`
	Exclude        bool     `json:"exclude"`
	ExcludeComment string   `json:"excludeComment,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

// StagedRow is one persisted canonical row.
type StagedRow struct {
	TenantID string
	RunID    uuid.UUID
	RowNo    int
	Data     map[string]canonical.Value
	Meta     Meta
}

// Persist replaces the staged row set for (tenant, run) inside the caller's
// transaction. Returns the number of rows inserted. The delete and insert
// are never observably split; a failure rolls the whole replace back.
func Persist(ctx context.Context, tx *tenant.Tx, runID uuid.UUID, rows []*canonical.Row) (int, error) {
	const del = `delete from staged_row where tenant_id = $1 and run_id = $2`
	if _, err := tx.Exec(ctx, del, tx.TenantID, runID); err != nil {
		return 0, fmt.Errorf("clear staged rows (tenant=%s run=%s): %w", tx.TenantID, runID, err)
	}

	batch := make([][]any, 0, len(rows))
	for _, row := range rows {
		data, err := json.Marshal(row.Values)
		if err != nil {
			return 0, fmt.Errorf("encode staged row %d (tenant=%s run=%s): %w", row.RowNo, tx.TenantID, runID, err)
		}
		meta, err := json.Marshal(Meta{
			RulesApplied:   row.AppliedRules(),
			Exclude:        row.Exclude,
			ExcludeComment: row.ExcludeComment,
			Warnings:       row.Warnings,
		})
		if err != nil {
			return 0, fmt.Errorf("encode staged row meta %d (tenant=%s run=%s): %w", row.RowNo, tx.TenantID, runID, err)
		}
		batch = append(batch, []any{tx.TenantID, runID, row.RowNo, data, meta})
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"staged_row"},
		[]string{"tenant_id", "run_id", "row_no", "data", "meta"},
		pgx.CopyFromRows(batch))
	if err != nil {
		return 0, fmt.Errorf("insert staged rows (tenant=%s run=%s): %w", tx.TenantID, runID, err)
	}

	return int(n), nil
}

// Count returns the number of staged rows for the run.
func Count(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID) (int64, error) {
	const q = `select count(*) from staged_row where tenant_id = $1 and run_id = $2`
	var n int64
	if err := db.QueryRow(ctx, q, tenantID, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count staged rows (tenant=%s run=%s): %w", tenantID, runID, err)
	}
	return n, nil
}

// LoadAll returns every staged row for the run ordered by row number.
func LoadAll(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID) ([]StagedRow, error) {
	const q = `select row_no, data, meta from staged_row where tenant_id = $1 and run_id = $2 order by row_no`
	rows, err := db.Query(ctx, q, tenantID, runID)
	if err != nil {
		return nil, fmt.Errorf("load staged rows (tenant=%s run=%s): %w", tenantID, runID, err)
	}
	defer rows.Close()

	var out []StagedRow
	for rows.Next() {
		sr := StagedRow{TenantID: tenantID, RunID: runID}
		var data, meta []byte
		if err := rows.Scan(&sr.RowNo, &data, &meta); err != nil {
			return nil, fmt.Errorf("scan staged row (tenant=%s run=%s): %w", tenantID, runID, err)
		}
		if err := decodeRow(&sr, data, meta); err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

func decodeRow(sr *StagedRow, data, meta []byte) error {
	if err := json.Unmarshal(data, &sr.Data); err != nil {
		return fmt.Errorf("decode staged row %d (tenant=%s run=%s): %w", sr.RowNo, sr.TenantID, sr.RunID, err)
	}
	if err := json.Unmarshal(meta, &sr.Meta); err != nil {
		return fmt.Errorf("decode staged row meta %d (tenant=%s run=%s): %w", sr.RowNo, sr.TenantID, sr.RunID, err)
	}
	return nil
}
