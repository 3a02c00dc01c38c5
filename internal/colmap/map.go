// Package colmap stores and resolves the per-run header→canonical-field
// configuration: direct mappings, fallback candidates, static defaults, and
// joins against supporting datasets. Saving a map never mutates raw or
// staged rows; staleness between a map edit and the last stage surfaces
// only through the execution-run input hash.
package colmap

import (
	"time"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/rules"
	"github.com/google/uuid"
)

// FieldMapping binds one source header to a canonical field.
type FieldMapping struct {
	Field  canonical.Field `json:"field"`
	Type   string          `json:"type,omitempty"`   // display hint, not enforced
	Format string          `json:"format,omitempty"` // e.g. an expected date layout
	// JoinOnly means the field is populated exclusively from a joined
	// dataset; a main-import value for it is ignored during overlay.
	JoinOnly bool `json:"joinOnly,omitempty"`
}

// JoinSpec declares how a supporting dataset joins onto the main import.
type JoinSpec struct {
	// Role names the dataset (e.g. "suppliers").
	Role string `json:"role"`
	// LeftField is the canonical field on the main import used as join key.
	LeftField canonical.Field `json:"leftField"`
	// RightHeader is the dataset header compared against the key.
	RightHeader string `json:"rightHeader"`
	// Fields maps dataset headers to the canonical fields they populate.
	Fields map[string]canonical.Field `json:"fields"`
}

// Map is the per-(tenant, run) mapping configuration.
type Map struct {
	// Mappings are explicit sourceHeader → field bindings; highest
	// resolution precedence.
	Mappings map[string]FieldMapping `json:"mappings"`
	// Fallbacks list candidate headers per field, tried in declared order
	// when no explicit mapping resolves.
	Fallbacks map[canonical.Field][]string `json:"fallbacks"`
	// Defaults supply a static value when nothing else resolves.
	Defaults map[canonical.Field]string `json:"defaults"`
	Joins    []JoinSpec                 `json:"joins"`
	// RowRules is the tenant-configured ruleset applied after mapping.
	RowRules rules.Ruleset `json:"rowRules"`
}

// Record is a persisted map with its identity, as stored per (tenant, run).
type Record struct {
	ID        uuid.UUID
	TenantID  string
	RunID     uuid.UUID
	Map       Map
	UpdatedAt time.Time
}

// FieldOrder returns the canonical fields this map addresses, in schema
// order. Drives stable preview column ordering.
func (m Map) FieldOrder() []canonical.Field {
	addressed := make(map[canonical.Field]bool)
	for _, fm := range m.Mappings {
		addressed[fm.Field] = true
	}
	for f := range m.Fallbacks {
		addressed[f] = true
	}
	for f := range m.Defaults {
		addressed[f] = true
	}
	for _, j := range m.Joins {
		for _, f := range j.Fields {
			addressed[f] = true
		}
	}

	var out []canonical.Field
	for _, f := range canonical.AllFields() {
		if addressed[f] {
			out = append(out, f)
		}
	}
	return out
}
