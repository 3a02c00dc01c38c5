package rawstore

// sample.go powers the mapping UI: a paged slice of raw rows plus the set of
// discovered headers. Headers are found by scanning a bounded prefix of the
// run rather than the whole table, and headers contributed by joined
// supporting datasets are merged in with provenance so the UI can show where
// each candidate column comes from.

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/tenant"
	"github.com/google/uuid"
)

// DefaultHeaderScanRows bounds the prefix scanned for header discovery.
const DefaultHeaderScanRows = 500

// mainImportSource is the provenance label for headers from the import file
// itself, as opposed to a joined dataset role.
const mainImportSource = "import"

// HeaderInfo describes one discovered header with provenance.
type HeaderInfo struct {
	Name     string            `json:"name"`
	Sources  []string          `json:"sources"`
	Examples map[string]string `json:"examples"` // one example value per source
}

// DatasetHeaders carries the headers of one joined supporting dataset into
// the sample merge.
type DatasetHeaders struct {
	Role     string
	Headers  []string
	Examples map[string]string
}

// SampleResult is a paged view over raw rows with discovered headers.
type SampleResult struct {
	Rows    []RawRow     `json:"rows"`
	Total   int64        `json:"total"`
	Headers []HeaderInfo `json:"headers"`
}

// Sample returns a page of raw rows together with the merged header set.
// scanRows bounds header discovery; zero or negative takes the default.
func Sample(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID, limit, offset, scanRows int, datasets []DatasetHeaders) (*SampleResult, error) {
	if limit <= 0 {
		limit = 50
	}
	if scanRows <= 0 {
		scanRows = DefaultHeaderScanRows
	}

	total, err := Count(ctx, db, tenantID, runID)
	if err != nil {
		return nil, err
	}

	const q = `select row_no, data from raw_row where tenant_id = $1 and run_id = $2 order by row_no limit $3 offset $4`
	rows, err := db.Query(ctx, q, tenantID, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sample raw rows (tenant=%s run=%s): %w", tenantID, runID, err)
	}
	defer rows.Close()

	var page []RawRow
	for rows.Next() {
		rr := RawRow{TenantID: tenantID, RunID: runID}
		var payload []byte
		if err := rows.Scan(&rr.RowNo, &payload); err != nil {
			return nil, fmt.Errorf("scan sample row (tenant=%s run=%s): %w", tenantID, runID, err)
		}
		if err := json.Unmarshal(payload, &rr.Data); err != nil {
			return nil, fmt.Errorf("decode sample row %d (tenant=%s run=%s): %w", rr.RowNo, tenantID, runID, err)
		}
		page = append(page, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	headers, err := discoverHeaders(ctx, db, tenantID, runID, scanRows)
	if err != nil {
		return nil, err
	}

	return &SampleResult{
		Rows:    page,
		Total:   total,
		Headers: MergeHeaders(headers, datasets),
	}, nil
}

// discoverHeaders scans a bounded prefix of the run and returns every data
// key seen, with one example value each.
func discoverHeaders(ctx context.Context, db tenant.DBTX, tenantID string, runID uuid.UUID, scanRows int) (map[string]string, error) {
	const q = `select data from raw_row where tenant_id = $1 and run_id = $2 order by row_no limit $3`
	rows, err := db.Query(ctx, q, tenantID, runID, scanRows)
	if err != nil {
		return nil, fmt.Errorf("discover headers (tenant=%s run=%s): %w", tenantID, runID, err)
	}
	defer rows.Close()

	found := make(map[string]string)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var data map[string]string
		if err := json.Unmarshal(payload, &data); err != nil {
			continue // a malformed stored row must not sink the sample
		}
		for k, v := range data {
			if _, seen := found[k]; !seen {
				found[k] = v
			} else if found[k] == "" && v != "" {
				found[k] = v
			}
		}
	}
	return found, rows.Err()
}

// MergeHeaders combines import headers with joined-dataset headers. A header
// present in several sources appears once, listing every source and one
// example value per source. Output is sorted by name for a stable UI.
func MergeHeaders(importHeaders map[string]string, datasets []DatasetHeaders) []HeaderInfo {
	merged := make(map[string]*HeaderInfo)

	add := func(name, source, example string) {
		hi, ok := merged[name]
		if !ok {
			hi = &HeaderInfo{Name: name, Examples: make(map[string]string)}
			merged[name] = hi
		}
		for _, s := range hi.Sources {
			if s == source {
				return
			}
		}
		hi.Sources = append(hi.Sources, source)
		hi.Examples[source] = example
	}

	for name, example := range importHeaders {
		add(name, mainImportSource, example)
	}
	for _, ds := range datasets {
		for _, h := range ds.Headers {
			add(h, ds.Role, ds.Examples[h])
		}
	}

	out := make([]HeaderInfo, 0, len(merged))
	for _, hi := range merged {
		out = append(out, *hi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
