package colmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/errs"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/tenant"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SaveMap upserts the column map for (tenant, run). The upsert is
// idempotent: saving the same map twice leaves one record with a refreshed
// updated_at, which in turn changes the staleness hash only when content
// changes (the content digest covers the map body, not the timestamp).
func SaveMap(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID, m Map) (*Record, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode column map (tenant=%s run=%s): %w", tenantID, runID, err)
	}

	const q = `
		insert into column_map (id, tenant_id, run_id, body, updated_at)
		values ($1, $2, $3, $4, now())
		on conflict (tenant_id, run_id)
		do update set body = excluded.body, updated_at = now()
		returning id, updated_at`

	rec := &Record{TenantID: tenantID, RunID: runID, Map: m}
	err = db.QueryRow(ctx, q, uuid.New(), tenantID, runID, payload).Scan(&rec.ID, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("save column map (tenant=%s run=%s): %w", tenantID, runID, err)
	}
	return rec, nil
}

// GetMap loads the column map for (tenant, run). Returns NotFoundError when
// no map has been saved.
func GetMap(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID) (*Record, error) {
	const q = `select id, body, updated_at from column_map where tenant_id = $1 and run_id = $2`

	rec := &Record{TenantID: tenantID, RunID: runID}
	var payload []byte
	err := db.QueryRow(ctx, q, tenantID, runID).Scan(&rec.ID, &payload, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("column map", fmt.Sprintf("%s/%s", tenantID, runID))
	}
	if err != nil {
		return nil, fmt.Errorf("load column map (tenant=%s run=%s): %w", tenantID, runID, err)
	}
	if err := json.Unmarshal(payload, &rec.Map); err != nil {
		return nil, fmt.Errorf("decode column map (tenant=%s run=%s): %w", tenantID, runID, err)
	}
	return rec, nil
}

// ContentDigest returns a canonical serialization of the map body, used as
// the content component of the execution-run input hash.
func (m Map) ContentDigest() (string, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("digest column map: %w", err)
	}
	return string(payload), nil
}
