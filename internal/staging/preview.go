package staging

import (
	"context"
	"fmt"
	"sort"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/colmap"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/tenant"
	"github.com/google/uuid"
)

// PreviewRow is one staged row rendered for display.
type PreviewRow struct {
	RowNo    int               `json:"rowNo"`
	Cells    map[string]string `json:"cells"`
	Exclude  bool              `json:"exclude,omitempty"`
	Comment  string            `json:"comment,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// PreviewResult is one page of the staged row set.
type PreviewResult struct {
	Headers []string     `json:"headers"`
	Rows    []PreviewRow `json:"rows"`
	Total   int64        `json:"total"`
	Offset  int          `json:"offset"`
	Limit   int          `json:"limit"`
}

// Preview returns a page of staged rows with a stable header order: fields
// the column map addresses come first in schema order, then any remaining
// fields present on the page, alphabetically.
func Preview(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID, m colmap.Map, offset, limit int) (*PreviewResult, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	total, err := Count(ctx, db, tenantID, runID)
	if err != nil {
		return nil, err
	}

	page, err := loadPage(ctx, db, tenantID, runID, offset, limit)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{
		Headers: orderHeaders(m, page),
		Rows:    make([]PreviewRow, 0, len(page)),
		Total:   total,
		Offset:  offset,
		Limit:   limit,
	}

	for _, sr := range page {
		pr := PreviewRow{
			RowNo:    sr.RowNo,
			Cells:    make(map[string]string, len(sr.Data)),
			Exclude:  sr.Meta.Exclude,
			Comment:  sr.Meta.ExcludeComment,
			Warnings: sr.Meta.Warnings,
		}
		for name, v := range sr.Data {
			if v.IsNull() {
				continue
			}
			pr.Cells[name] = v.Render()
		}
		result.Rows = append(result.Rows, pr)
	}

	return result, nil
}

func loadPage(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID, offset, limit int) ([]StagedRow, error) {
	const q = `select row_no, data, meta
		from staged_row
		where tenant_id = $1 and run_id = $2
		order by row_no
		offset $3 limit $4`

	rows, err := db.Query(ctx, q, tenantID, runID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("load staged page (tenant=%s run=%s): %w", tenantID, runID, err)
	}
	defer rows.Close()

	var out []StagedRow
	for rows.Next() {
		sr := StagedRow{TenantID: tenantID, RunID: runID}
		var data, meta []byte
		if err := rows.Scan(&sr.RowNo, &data, &meta); err != nil {
			return nil, fmt.Errorf("scan staged page (tenant=%s run=%s): %w", tenantID, runID, err)
		}
		if err := decodeRow(&sr, data, meta); err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

// orderHeaders computes the display order for preview columns. Mapped fields
// keep schema order; fields only present on the page (set by rules or joins
// outside the map) follow alphabetically so paging never reshuffles columns.
func orderHeaders(m colmap.Map, page []StagedRow) []string {
	seen := make(map[string]bool)
	headers := make([]string, 0, len(canonical.AllFields()))

	for _, f := range m.FieldOrder() {
		name := string(f)
		if !seen[name] {
			seen[name] = true
			headers = append(headers, name)
		}
	}

	var extra []string
	for _, sr := range page {
		for name, v := range sr.Data {
			if v.IsNull() || seen[name] {
				continue
			}
			seen[name] = true
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)

	return append(headers, extra...)
}
