// Package compose projects raw import rows through the column map into
// canonical rows, overlaying values from joined supporting datasets.
//
// Composition never drops a row: a raw row that resolves zero canonical
// fields still produces a canonical row carrying an explicit warning, so the
// staged row count always equals the raw row count. Filtering is expressed
// only through the exclude flag downstream.
package compose

import (
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/colmap"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/rawstore"
)

// Dataset is one joined supporting dataset, keyed for overlay.
type Dataset struct {
	Role string
	Rows []map[string]string
}

// joinIndex indexes dataset rows by normalized join-key value. First row
// wins on duplicate keys.
type joinIndex map[string]map[string]string

func buildIndex(ds Dataset, rightHeader string) joinIndex {
	idx := make(joinIndex, len(ds.Rows))
	for _, row := range ds.Rows {
		key, ok := lookupHeader(row, rightHeader)
		if !ok || key == "" {
			continue
		}
		nk := canonical.NormalizeName(key)
		if _, taken := idx[nk]; !taken {
			idx[nk] = row
		}
	}
	return idx
}

func lookupHeader(row map[string]string, header string) (string, bool) {
	if v, ok := row[header]; ok {
		return v, true
	}
	want := canonical.NormalizeName(header)
	for k, v := range row {
		if canonical.NormalizeName(k) == want {
			return v, true
		}
	}
	return "", false
}

// Compose projects a batch of raw rows into canonical rows.
func Compose(raws []rawstore.RawRow, m colmap.Map, datasets []Dataset) []*canonical.Row {
	byRole := make(map[string]Dataset, len(datasets))
	for _, ds := range datasets {
		byRole[ds.Role] = ds
	}

	// Pre-build one index per join spec.
	indexes := make([]joinIndex, len(m.Joins))
	for i, j := range m.Joins {
		if ds, ok := byRole[j.Role]; ok {
			indexes[i] = buildIndex(ds, j.RightHeader)
		}
	}

	joinOnly := m.JoinOnlyFields()

	out := make([]*canonical.Row, 0, len(raws))
	for _, raw := range raws {
		out = append(out, composeRow(raw, m, indexes, joinOnly))
	}
	return out
}

// composeRow resolves each canonical field for one raw row, then overlays
// joined values. Main-import values take precedence unless the map marks the
// field join-sourced only.
func composeRow(raw rawstore.RawRow, m colmap.Map, indexes []joinIndex, joinOnly map[canonical.Field]bool) *canonical.Row {
	row := canonical.NewRow(raw.RowNo)

	for _, field := range canonical.AllFields() {
		if joinOnly[field] {
			continue // populated exclusively by the join overlay
		}
		if rawVal, ok := m.Resolve(field, raw.Data); ok {
			row.Set(field, canonical.Parse(field, rawVal))
		}
	}

	for i, j := range m.Joins {
		idx := indexes[i]
		if idx == nil {
			continue
		}
		key := row.Get(j.LeftField)
		if key.IsNull() {
			continue
		}
		match, ok := idx[canonical.NormalizeName(key.Render())]
		if !ok {
			continue
		}
		for header, field := range j.Fields {
			v, present := lookupHeader(match, header)
			if !present || v == "" {
				continue
			}
			if !row.Get(field).IsNull() && !joinOnly[field] {
				continue // main import wins
			}
			row.Set(field, canonical.Parse(field, v))
		}
	}

	if row.ResolvedFieldCount() == 0 {
		row.Warn(canonical.WarnNoResolvableFields)
	}

	return row
}
