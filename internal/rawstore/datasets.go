package rawstore

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/errs"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/tenant"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SupportDataset is a secondary upload joined onto the main import, e.g. a
// supplier master list.
type SupportDataset struct {
	ID        uuid.UUID `json:"id"`
	TenantID  string    `json:"tenantId"`
	RunID     uuid.UUID `json:"runId"`
	Role      string    `json:"role"`
	Name      string    `json:"name"`
	RowCount  int       `json:"rowCount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IngestDataset replaces the support dataset stored under role for the run.
// Same streaming treatment as the main import; datasets are small, so rows
// load through a single copy without paging.
func IngestDataset(ctx context.Context, tx *tenant.Tx, runID uuid.UUID, role, name string, r io.Reader, opts IngestOptions) (*SupportDataset, error) {
	opts = opts.withDefaults()
	if role == "" {
		return nil, errs.Validationf(tx.TenantID, runID.String(), "dataset role is required")
	}

	clean, _ := WrapReader(r)
	cr := csv.NewReader(clean)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rawHeaders, err := cr.Read()
	if err != nil {
		return nil, errs.Validationf(tx.TenantID, runID.String(), "dataset %q has no header row: %v", role, err)
	}
	headers := NormalizeHeaders(rawHeaders)

	const upsert = `insert into support_dataset (tenant_id, run_id, role, name)
		values ($1, $2, $3, $4)
		on conflict (tenant_id, run_id, role)
		do update set name = excluded.name, updated_at = now()
		returning id, updated_at`

	ds := &SupportDataset{TenantID: tx.TenantID, RunID: runID, Role: role, Name: name}
	if err := tx.QueryRow(ctx, upsert, tx.TenantID, runID, role, name).Scan(&ds.ID, &ds.UpdatedAt); err != nil {
		return nil, fmt.Errorf("save dataset %q (tenant=%s run=%s): %w", role, tx.TenantID, runID, err)
	}

	if _, err := tx.Exec(ctx, `delete from support_row where tenant_id = $1 and dataset_id = $2`, tx.TenantID, ds.ID); err != nil {
		return nil, fmt.Errorf("clear dataset %q rows (tenant=%s run=%s): %w", role, tx.TenantID, runID, err)
	}

	var batch [][]any
	rowNo := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Validationf(tx.TenantID, runID.String(), "dataset %q row %d: %v", role, rowNo+1, err)
		}
		rowNo++
		if rowNo > opts.RowCap {
			return nil, &errs.CapacityError{TenantID: tx.TenantID, RunID: runID.String(), Limit: opts.RowCap, Actual: rowNo}
		}

		data := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(record) {
				data[h] = canonical.CleanCell(record[i])
			}
		}
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode dataset %q row %d (tenant=%s run=%s): %w", role, rowNo, tx.TenantID, runID, err)
		}
		batch = append(batch, []any{tx.TenantID, ds.ID, rowNo, encoded})
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"support_row"},
		[]string{"tenant_id", "dataset_id", "row_no", "data"},
		pgx.CopyFromRows(batch)); err != nil {
		return nil, fmt.Errorf("insert dataset %q rows (tenant=%s run=%s): %w", role, tx.TenantID, runID, err)
	}

	ds.RowCount = rowNo
	return ds, nil
}

// ListDatasets returns the run's support datasets ordered by role.
func ListDatasets(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID) ([]SupportDataset, error) {
	const q = `select d.id, d.role, d.name, d.updated_at,
			(select count(*) from support_row r where r.tenant_id = d.tenant_id and r.dataset_id = d.id)
		from support_dataset d
		where d.tenant_id = $1 and d.run_id = $2
		order by d.role`

	rows, err := db.Query(ctx, q, tenantID, runID)
	if err != nil {
		return nil, fmt.Errorf("list datasets (tenant=%s run=%s): %w", tenantID, runID, err)
	}
	defer rows.Close()

	var out []SupportDataset
	for rows.Next() {
		ds := SupportDataset{TenantID: tenantID, RunID: runID}
		if err := rows.Scan(&ds.ID, &ds.Role, &ds.Name, &ds.UpdatedAt, &ds.RowCount); err != nil {
			return nil, fmt.Errorf("scan dataset (tenant=%s run=%s): %w", tenantID, runID, err)
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

// LoadDatasetRows returns every row of one dataset in upload order.
func LoadDatasetRows(ctx context.Context, db tenant.DBTX, tenantID string, datasetID uuid.UUID) ([]map[string]string, error) {
	const q = `select data from support_row
		where tenant_id = $1 and dataset_id = $2
		order by row_no`

	rows, err := db.Query(ctx, q, tenantID, datasetID)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s rows (tenant=%s): %w", datasetID, tenantID, err)
	}
	defer rows.Close()

	var out []map[string]string
	for rows.Next() {
		var encoded []byte
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("scan dataset %s row (tenant=%s): %w", datasetID, tenantID, err)
		}
		data := map[string]string{}
		if err := json.Unmarshal(encoded, &data); err != nil {
			return nil, fmt.Errorf("decode dataset %s row (tenant=%s): %w", datasetID, tenantID, err)
		}
		out = append(out, data)
	}
	return out, rows.Err()
}
