package pipeline

import (
	"testing"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/colmap"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/errs"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/exclusion"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/rawstore"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/report"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/rules"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/staging"
)

func threeRowImport() []rawstore.RawRow {
	return []rawstore.RawRow{
		{RowNo: 1, Data: map[string]string{"Payer": "Acme", "Payee": "Supplier A", "Amount": "100.00", "Date": "2025-01-10"}},
		{RowNo: 2, Data: map[string]string{"Payer": "Acme", "Payee": "Supplier B", "Amount": "250.50", "Date": "2025-01-15"}},
		{RowNo: 3, Data: map[string]string{"Payer": "Acme", "Payee": "Supplier C", "Amount": "75.25", "Date": "2025-01-20"}},
	}
}

func threeRowMap() colmap.Map {
	return colmap.Map{
		Mappings: map[string]colmap.FieldMapping{
			"Payer":  {Field: canonical.FieldPayerEntityName},
			"Payee":  {Field: canonical.FieldPayeeEntityName},
			"Amount": {Field: canonical.FieldPaymentAmount},
			"Date":   {Field: canonical.FieldPaymentDate},
		},
	}
}

func TestEndToEndThreeRows(t *testing.T) {
	rows, ruleStats, _ := runPipeline(threeRowImport(), threeRowMap(), nil, exclusion.Default())

	if len(rows) != 3 {
		t.Fatalf("staged %d rows, want 3", len(rows))
	}
	if ruleStats.RulesTried != 0 {
		t.Errorf("rules tried = %d, want 0 (no rules configured)", ruleStats.RulesTried)
	}

	rpt := report.Compute(rows, report.Draft{})
	if rpt.Quality.BasedOnRowCount != 3 {
		t.Errorf("basedOnRowCount = %d, want 3", rpt.Quality.BasedOnRowCount)
	}
	if rpt.Computed.PaymentCount != 3 {
		t.Errorf("payment count = %d, want 3", rpt.Computed.PaymentCount)
	}
	if got := rpt.Computed.TotalPaymentValue; got != 425.75 {
		t.Errorf("total value = %v, want 425.75", got)
	}
}

func TestStagingIdempotentOverRepeatedInvocations(t *testing.T) {
	m := threeRowMap()
	m.RowRules = rules.Ruleset{{
		ID:      "r1",
		Label:   "flag small payments",
		Enabled: true,
		When: []rules.Condition{{
			Field: canonical.FieldPaymentAmount,
			Op:    rules.OpLt,
			Value: "100",
		}},
		Then: []rules.Action{{
			Type:    rules.ActionExclude,
			Comment: "below reporting threshold",
		}},
	}}

	first, statsA, exclA := runPipeline(threeRowImport(), m, nil, exclusion.Default())
	second, statsB, exclB := runPipeline(threeRowImport(), m, nil, exclusion.Default())

	if len(first) != len(second) {
		t.Fatalf("row counts differ: %d vs %d", len(first), len(second))
	}
	if statsA.RowsAffected != statsB.RowsAffected || exclA.Excluded != exclB.Excluded {
		t.Errorf("stats differ across invocations: %+v/%+v vs %+v/%+v", statsA, exclA, statsB, exclB)
	}
	for i := range first {
		if first[i].Exclude != second[i].Exclude {
			t.Errorf("row %d exclusion differs across invocations", first[i].RowNo)
		}
		a, b := first[i].AppliedRules(), second[i].AppliedRules()
		if len(a) != len(b) {
			t.Errorf("row %d applied rules differ: %v vs %v", first[i].RowNo, a, b)
		}
	}

	// The sub-threshold row is excluded, the others kept.
	if !first[2].Exclude {
		t.Error("row 3 (75.25) should be excluded by the rule")
	}
	if first[0].Exclude || first[1].Exclude {
		t.Error("rows 1 and 2 should be kept")
	}
}

func TestSuggestUnmappedSkipsMappedHeaders(t *testing.T) {
	headers := []rawstore.HeaderInfo{{Name: "Supplier"}, {Name: "Amount"}, {Name: "Notes"}}
	m := colmap.Map{Mappings: map[string]colmap.FieldMapping{
		"Amount": {Field: canonical.FieldPaymentAmount},
	}}

	got := suggestUnmapped(headers, m)

	if _, ok := got["Amount"]; ok {
		t.Error("an explicitly mapped header should not be suggested again")
	}
	if got["Supplier"] != canonical.FieldPayeeEntityName {
		t.Errorf("suggestion for Supplier = %q, want %q", got["Supplier"], canonical.FieldPayeeEntityName)
	}
	if got["Notes"] != canonical.FieldDescription {
		t.Errorf("suggestion for Notes = %q, want %q", got["Notes"], canonical.FieldDescription)
	}
}

func TestShouldRecordFailure(t *testing.T) {
	if shouldRecordFailure(errs.NotFound("run", "missing")) {
		t.Error("a missing run has no audit trail to write to")
	}
	if !shouldRecordFailure(errs.Validationf("t1", "", "no rows imported")) {
		t.Error("validation failures belong in the audit trail")
	}
}

func TestToCanonicalRebuildsRows(t *testing.T) {
	staged := []staging.StagedRow{
		{
			RowNo: 1,
			Data: map[string]canonical.Value{
				string(canonical.FieldPaymentAmount): canonical.Number(100),
			},
		},
		{
			RowNo: 2,
			Data: map[string]canonical.Value{
				string(canonical.FieldPaymentAmount): canonical.Number(900),
			},
			Meta: staging.Meta{Exclude: true, ExcludeComment: "not reportable"},
		},
	}

	rows := toCanonical(staged)
	rpt := report.Compute(rows, report.Draft{})

	if rpt.Quality.BasedOnRowCount != 1 || rpt.Quality.ExcludedRowCount != 1 {
		t.Errorf("quality = %+v, want 1 based / 1 excluded", rpt.Quality)
	}
	if rpt.Computed.TotalPaymentValue != 100 {
		t.Errorf("total = %v, want 100 (excluded row ignored)", rpt.Computed.TotalPaymentValue)
	}
	if rows[1].ExcludeComment != "not reportable" {
		t.Errorf("exclude comment lost: %q", rows[1].ExcludeComment)
	}
}
