// Package rawstore persists ingested tabular rows as row-indexed documents
// per tenant and run. Raw rows are immutable between imports: remapping or
// re-staging a run never touches them, and only a re-import replaces them.
package rawstore

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/errs"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/tenant"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DefaultBatchSize is the number of rows inserted per COPY batch.
const DefaultBatchSize = 1000

// DefaultRowCap is the hard per-run row ceiling. Exceeding it is a fatal
// CapacityError, never a silent truncation.
const DefaultRowCap = 500_000

// RawRow is one immutable ingested row.
type RawRow struct {
	TenantID string
	RunID    uuid.UUID
	RowNo    int
	Data     map[string]string
}

// IngestOptions tune a single ingest call. Zero values take the defaults.
type IngestOptions struct {
	BatchSize int
	RowCap    int
}

func (o IngestOptions) withDefaults() IngestOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.RowCap <= 0 {
		o.RowCap = DefaultRowCap
	}
	return o
}

// Ingest streams a delimited text file into raw_row for (tenant, run).
// The header row is normalized (see NormalizeHeaders); data rows are
// buffered into bounded batches and written with the COPY protocol, so
// memory stays constant for arbitrarily large files. Re-importing a run
// replaces its previous rows wholesale, inside the same transaction, after
// the new header has been accepted. Returns the number of rows inserted.
//
// Fails with ValidationError when the header row is empty or unreadable and
// with CapacityError when the row cap is exceeded.
func Ingest(ctx context.Context, tx *tenant.Tx, runID uuid.UUID, r io.Reader, opts IngestOptions) (int, error) {
	opts = opts.withDefaults()

	wrapped, _ := WrapReader(r)
	reader := csv.NewReader(wrapped)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return 0, errs.Validationf(tx.TenantID, runID.String(), "header row is unreadable: %v", err)
	}
	if headerIsEmpty(header) {
		return 0, errs.Validationf(tx.TenantID, runID.String(), "header row is empty")
	}
	headers := NormalizeHeaders(header)

	// Row numbers restart at 1, so stale rows must go before the COPY or a
	// re-import trips the (tenant_id, run_id, row_no) primary key.
	const clear = `delete from raw_row where tenant_id = $1 and run_id = $2`
	if _, err := tx.Exec(ctx, clear, tx.TenantID, runID); err != nil {
		return 0, fmt.Errorf("clear raw rows (tenant=%s run=%s): %w", tx.TenantID, runID, err)
	}

	batch := make([][]any, 0, opts.BatchSize)
	inserted := 0
	rowNo := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"raw_row"},
			[]string{"tenant_id", "run_id", "row_no", "data"},
			pgx.CopyFromRows(batch))
		if err != nil {
			return fmt.Errorf("insert raw rows (tenant=%s run=%s): %w", tx.TenantID, runID, err)
		}
		inserted += int(n)
		batch = batch[:0]
		return nil
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return inserted, errs.Validationf(tx.TenantID, runID.String(), "row %d is unreadable: %v", rowNo+1, err)
		}

		rowNo++
		if rowNo > opts.RowCap {
			return inserted, &errs.CapacityError{
				TenantID: tx.TenantID,
				RunID:    runID.String(),
				Limit:    opts.RowCap,
				Actual:   rowNo,
			}
		}

		data := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(record) {
				data[h] = record[i]
			}
		}
		payload, err := json.Marshal(data)
		if err != nil {
			return inserted, fmt.Errorf("encode row %d: %w", rowNo, err)
		}

		batch = append(batch, []any{tx.TenantID, runID, rowNo, payload})
		if len(batch) >= opts.BatchSize {
			if err := flush(); err != nil {
				return inserted, err
			}
		}
	}

	if err := flush(); err != nil {
		return inserted, err
	}

	return inserted, nil
}

// Count returns the number of raw rows stored for the run.
func Count(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID) (int64, error) {
	const q = `select count(*) from raw_row where tenant_id = $1 and run_id = $2`
	var n int64
	if err := db.QueryRow(ctx, q, tenantID, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count raw rows (tenant=%s run=%s): %w", tenantID, runID, err)
	}
	return n, nil
}

// LatestModified returns the most recent ingest time for the run, zero when
// the run has no rows. Feeds the execution-run input hash.
func LatestModified(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID) (time.Time, error) {
	const q = `select coalesce(max(created_at), 'epoch'::timestamptz) from raw_row where tenant_id = $1 and run_id = $2`
	var t time.Time
	if err := db.QueryRow(ctx, q, tenantID, runID).Scan(&t); err != nil {
		return time.Time{}, fmt.Errorf("latest raw row time (tenant=%s run=%s): %w", tenantID, runID, err)
	}
	return t, nil
}

// LoadAll returns every raw row for the run ordered by row number. Callers
// must have verified the row cap first; runs are bounded, so an in-memory
// batch is acceptable for rule evaluation.
func LoadAll(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID) ([]RawRow, error) {
	const q = `select row_no, data from raw_row where tenant_id = $1 and run_id = $2 order by row_no`
	rows, err := db.Query(ctx, q, tenantID, runID)
	if err != nil {
		return nil, fmt.Errorf("load raw rows (tenant=%s run=%s): %w", tenantID, runID, err)
	}
	defer rows.Close()

	var out []RawRow
	for rows.Next() {
		rr := RawRow{TenantID: tenantID, RunID: runID}
		var payload []byte
		if err := rows.Scan(&rr.RowNo, &payload); err != nil {
			return nil, fmt.Errorf("scan raw row (tenant=%s run=%s): %w", tenantID, runID, err)
		}
		if err := json.Unmarshal(payload, &rr.Data); err != nil {
			return nil, fmt.Errorf("decode raw row %d (tenant=%s run=%s): %w", rr.RowNo, tenantID, runID, err)
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}
