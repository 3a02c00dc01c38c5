package colmap

// resolver.go implements header resolution. The precedence is exact and
// load-bearing for the whole pipeline:
//
//	explicit mapping
//	  > fallback candidate, tried in declared order
//	  > canonical identity (header equals field name, case/format-insensitive)
//	  > static default
//	  > null
//
// Header comparison is normalized: case, whitespace, underscores, and
// hyphens are ignored, so "Payment Date", "payment_date", and "paymentDate"
// all address the same column.

import (
	"sort"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
)

// Resolve returns the raw value for a canonical field from one row of
// source data, applying the resolution precedence. The second return is
// false when the field resolves to null.
func (m Map) Resolve(field canonical.Field, data map[string]string) (string, bool) {
	index := normalizeKeys(data)

	// 1. Explicit mapping. Source headers are visited in sorted order so
	// two explicit mappings onto the same field resolve deterministically.
	for _, header := range sortedMappingHeaders(m.Mappings) {
		fm := m.Mappings[header]
		if fm.Field != field {
			continue
		}
		if v, ok := lookup(index, header); ok {
			return v, true
		}
	}

	// 2. Fallback candidates in declared order.
	for _, candidate := range m.Fallbacks[field] {
		if v, ok := lookup(index, candidate); ok {
			return v, true
		}
	}

	// 3. Canonical identity match.
	if v, ok := index[canonical.NormalizeName(string(field))]; ok {
		return v, true
	}

	// 4. Static default.
	if v, ok := m.Defaults[field]; ok {
		return v, true
	}

	return "", false
}

// lookup finds a header in the normalized index.
func lookup(index map[string]string, header string) (string, bool) {
	v, ok := index[canonical.NormalizeName(header)]
	return v, ok
}

// normalizeKeys indexes row data by normalized header name. On a normalized
// collision the lexicographically smaller original key wins, keeping
// resolution reproducible.
func normalizeKeys(data map[string]string) map[string]string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	index := make(map[string]string, len(data))
	for _, k := range keys {
		nk := canonical.NormalizeName(k)
		if _, taken := index[nk]; !taken {
			index[nk] = data[k]
		}
	}
	return index
}

func sortedMappingHeaders(mappings map[string]FieldMapping) []string {
	headers := make([]string, 0, len(mappings))
	for h := range mappings {
		headers = append(headers, h)
	}
	sort.Strings(headers)
	return headers
}

// JoinOnlyFields returns the set of canonical fields marked join-sourced
// only; main-import values for these are ignored during join overlay.
func (m Map) JoinOnlyFields() map[canonical.Field]bool {
	out := make(map[canonical.Field]bool)
	for _, fm := range m.Mappings {
		if fm.JoinOnly {
			out[fm.Field] = true
		}
	}
	return out
}
