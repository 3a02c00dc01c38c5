package rawstore

import (
	"fmt"
	"strings"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
)

// blankHeaderName is the base name assigned to blank header cells before
// dedup suffixing.
const blankHeaderName = "column"

// NormalizeHeaders cleans a raw header row into the stored header names.
// Cells are cleaned of CSV artifacts; blank names become "column"; duplicate
// names (after cleaning, case-insensitive) get `_1`, `_2`, … suffixes in
// encounter order so every stored row key is unique.
func NormalizeHeaders(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]bool, len(header))
	counts := make(map[string]int, len(header))

	for i, h := range header {
		base := canonical.CleanCell(h)
		if base == "" {
			base = blankHeaderName
		}
		baseKey := strings.ToLower(base)

		name := base
		key := baseKey
		for used[key] {
			counts[baseKey]++
			name = fmt.Sprintf("%s_%d", base, counts[baseKey])
			key = strings.ToLower(name)
		}

		used[key] = true
		out[i] = name
	}

	return out
}

// headerIsEmpty reports whether every cell of a header row is blank.
func headerIsEmpty(header []string) bool {
	for _, h := range header {
		if strings.TrimSpace(h) != "" {
			return false
		}
	}
	return true
}
