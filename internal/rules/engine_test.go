package rules

import (
	"testing"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
)

func paymentRow(rowNo int, amount float64) *canonical.Row {
	r := canonical.NewRow(rowNo)
	r.Set(canonical.FieldPaymentAmount, canonical.Number(amount))
	r.Set(canonical.FieldPayeeEntityName, canonical.String("Acme Pty Ltd"))
	return r
}

// ----------------------------------------------------------------------------
// Firing semantics
// ----------------------------------------------------------------------------

func TestApplyFiresInDeclarationOrder(t *testing.T) {
	// Rule 1 sets the term days; rule 2 conditions on the value rule 1
	// wrote. Sequential semantics mean rule 2 must see the mutated value.
	set := Ruleset{
		{
			ID:      "set-terms",
			Enabled: true,
			When:    []Condition{{Field: canonical.FieldPaymentTermDays, Op: OpIsNull}},
			Then:    []Action{{Type: ActionSetField, Field: canonical.FieldPaymentTermDays, Value: "30"}},
		},
		{
			ID:      "flag-short-terms",
			Enabled: true,
			When:    []Condition{{Field: canonical.FieldPaymentTermDays, Op: OpLte, Value: "30"}},
			Then:    []Action{{Type: ActionSetField, Field: canonical.FieldDescription, Value: "standard terms"}},
		},
	}

	row := paymentRow(1, 100)
	stats := Apply([]*canonical.Row{row}, set)

	if got := row.Get(canonical.FieldPaymentTermDays); got.Num != 30 {
		t.Errorf("term days = %v, want 30", got.Num)
	}
	if got := row.Get(canonical.FieldDescription); got.Str != "standard terms" {
		t.Errorf("second rule did not see first rule's write: %+v", got)
	}
	if stats.RulesTried != 2 {
		t.Errorf("RulesTried = %d, want 2", stats.RulesTried)
	}
	if stats.RowsAffected != 1 {
		t.Errorf("RowsAffected = %d, want 1 (distinct rows)", stats.RowsAffected)
	}
}

func TestApplyConditionsAreConjunctive(t *testing.T) {
	set := Ruleset{{
		ID:      "both-must-match",
		Enabled: true,
		When: []Condition{
			{Field: canonical.FieldPaymentAmount, Op: OpGt, Value: "50"},
			{Field: canonical.FieldPayeeEntityName, Op: OpEq, Value: "Someone Else"},
		},
		Then: []Action{{Type: ActionExclude, Comment: "x"}},
	}}

	row := paymentRow(1, 100) // first condition true, second false
	Apply([]*canonical.Row{row}, set)

	if row.Exclude {
		t.Error("rule fired with only one of two conditions matching")
	}
}

func TestApplyIsIdempotentAcrossPasses(t *testing.T) {
	set := Ruleset{{
		ID:      "add-gst",
		Enabled: true,
		When:    []Condition{{Field: canonical.FieldPaymentAmount, Op: OpGt, Value: "0"}},
		Then:    []Action{{Type: ActionSetField, Field: canonical.FieldDescription, Value: "taxable"}},
	}}

	row := paymentRow(1, 100)
	first := Apply([]*canonical.Row{row}, set)
	second := Apply([]*canonical.Row{row}, set)

	if first.Fired["add-gst"] != 1 {
		t.Errorf("first pass fired %d times, want 1", first.Fired["add-gst"])
	}
	if second.Fired["add-gst"] != 0 {
		t.Errorf("second pass fired %d times, want 0 (already applied)", second.Fired["add-gst"])
	}

	applied := row.AppliedRules()
	if len(applied) != 1 || applied[0] != "add-gst" {
		t.Errorf("applied rules = %v, want exactly one entry", applied)
	}
}

func TestApplySkipsDisabledRules(t *testing.T) {
	set := Ruleset{
		{
			ID:      "disabled",
			Enabled: false,
			Then:    []Action{{Type: ActionExclude, Comment: "should not fire"}},
		},
		{
			ID:      "enabled",
			Enabled: true,
			When:    []Condition{{Field: canonical.FieldPaymentAmount, Op: OpNotNull}},
			Then:    []Action{{Type: ActionSetField, Field: canonical.FieldDescription, Value: "ok"}},
		},
	}

	row := paymentRow(1, 10)
	stats := Apply([]*canonical.Row{row}, set)

	if row.Exclude {
		t.Error("disabled rule fired")
	}
	if stats.RulesTried != 1 {
		t.Errorf("RulesTried = %d, want 1 (disabled rules excluded)", stats.RulesTried)
	}
}

func TestApplyExcludeAction(t *testing.T) {
	set := Ruleset{{
		ID:      "exclude-small",
		Enabled: true,
		When:    []Condition{{Field: canonical.FieldPaymentAmount, Op: OpLt, Value: "1"}},
		Then:    []Action{{Type: ActionExclude, Comment: "below reporting threshold"}},
	}}

	rows := []*canonical.Row{paymentRow(1, 0.5), paymentRow(2, 10)}
	stats := Apply(rows, set)

	if !rows[0].Exclude || rows[0].ExcludeComment != "below reporting threshold" {
		t.Errorf("row 1 not excluded correctly: %+v", rows[0])
	}
	if rows[1].Exclude {
		t.Error("row 2 wrongly excluded")
	}
	if stats.RowsAffected != 1 {
		t.Errorf("RowsAffected = %d, want 1", stats.RowsAffected)
	}
}

// ----------------------------------------------------------------------------
// Comparators
// ----------------------------------------------------------------------------

func TestEvaluateComparators(t *testing.T) {
	date := canonical.Parse(canonical.FieldPaymentDate, "2025-06-15")

	tests := []struct {
		name string
		v    canonical.Value
		cond Condition
		want bool
	}{
		{"numeric gt true", canonical.Number(10), Condition{Op: OpGt, Value: "5"}, true},
		{"numeric gt false", canonical.Number(3), Condition{Op: OpGt, Value: "5"}, false},
		{"numeric eq with currency operand", canonical.Number(1234.56), Condition{Op: OpEq, Value: "$1,234.56"}, true},
		{"date lt", date, Condition{Op: OpLt, Value: "2025-07-01"}, true},
		{"date gte same day", date, Condition{Op: OpGte, Value: "2025-06-15"}, true},
		{"string eq case-insensitive", canonical.String("ACME"), Condition{Op: OpEq, Value: "acme"}, true},
		{"in membership", canonical.String("AUD"), Condition{Op: OpIn, Values: []string{"NZD", "AUD"}}, true},
		{"in no membership", canonical.String("USD"), Condition{Op: OpIn, Values: []string{"NZD", "AUD"}}, false},
		{"isNull on null", canonical.Null(), Condition{Op: OpIsNull}, true},
		{"notNull on value", canonical.Number(1), Condition{Op: OpNotNull}, true},
		{"ordered comparator fails closed on bad operand", canonical.Number(1), Condition{Op: OpGt, Value: "not-a-number"}, false},
		{"null never compares", canonical.Null(), Condition{Op: OpEq, Value: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := evaluate(tt.v, tt.cond); got != tt.want {
				t.Errorf("evaluate(%+v, %+v) = %v, want %v", tt.v, tt.cond, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Validation
// ----------------------------------------------------------------------------

func TestRulesetValidate(t *testing.T) {
	tests := []struct {
		name    string
		set     Ruleset
		wantErr bool
	}{
		{
			name: "valid",
			set: Ruleset{{
				ID: "r1", Enabled: true,
				When: []Condition{{Field: canonical.FieldPaymentAmount, Op: OpGt, Value: "0"}},
				Then: []Action{{Type: ActionExclude}},
			}},
		},
		{
			name:    "missing id",
			set:     Ruleset{{Enabled: true}},
			wantErr: true,
		},
		{
			name:    "duplicate id",
			set:     Ruleset{{ID: "r1"}, {ID: "r1"}},
			wantErr: true,
		},
		{
			name:    "cross-row scope rejected",
			set:     Ruleset{{ID: "r1", Scope: ScopeCrossRow}},
			wantErr: true,
		},
		{
			name:    "unknown comparator",
			set:     Ruleset{{ID: "r1", When: []Condition{{Field: canonical.FieldPaymentAmount, Op: "like"}}}},
			wantErr: true,
		},
		{
			name:    "unknown field in action",
			set:     Ruleset{{ID: "r1", Then: []Action{{Type: ActionSetField, Field: "bogus"}}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRulesetRoundTrip(t *testing.T) {
	raw := []byte(`[
		{"id":"r1","label":"flag small","enabled":true,
		 "when":[{"field":"paymentAmount","op":"lt","value":"1"}],
		 "then":[{"type":"exclude","comment":"too small"}]}
	]`)

	rs, err := ParseRuleset(raw)
	if err != nil {
		t.Fatalf("ParseRuleset: %v", err)
	}
	if len(rs) != 1 || rs[0].ID != "r1" || rs[0].Then[0].Type != ActionExclude {
		t.Errorf("parsed ruleset = %+v", rs)
	}

	if _, err := ParseRuleset([]byte(`[{"id":"bad","when":[{"field":"paymentAmount","op":"like"}]}]`)); err == nil {
		t.Error("expected error for unknown comparator")
	}
}
