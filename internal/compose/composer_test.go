package compose

import (
	"testing"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/colmap"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/rawstore"
)

func rawRow(rowNo int, data map[string]string) rawstore.RawRow {
	return rawstore.RawRow{RowNo: rowNo, Data: data}
}

func TestComposeResolutionPrecedence(t *testing.T) {
	// paymentAmount is explicitly mapped to "Amt" and fallback-matchable
	// via "Amount"; the explicit mapping must win.
	m := colmap.Map{
		Mappings: map[string]colmap.FieldMapping{
			"Amt": {Field: canonical.FieldPaymentAmount},
		},
		Fallbacks: map[canonical.Field][]string{
			canonical.FieldPaymentAmount: {"Amount"},
		},
	}

	rows := Compose([]rawstore.RawRow{
		rawRow(1, map[string]string{"Amt": "100.00", "Amount": "999.99"}),
	}, m, nil)

	got := rows[0].Get(canonical.FieldPaymentAmount)
	if got.Num != 100 {
		t.Errorf("paymentAmount = %v, want 100 (explicit mapping beats fallback)", got.Num)
	}
}

func TestComposeFallbackOrderAndIdentity(t *testing.T) {
	m := colmap.Map{
		Fallbacks: map[canonical.Field][]string{
			canonical.FieldPayeeEntityName: {"Supplier", "Vendor"},
		},
		Defaults: map[canonical.Field]string{
			canonical.FieldDescription: "imported",
		},
	}

	rows := Compose([]rawstore.RawRow{
		// Both fallback candidates present: first declared wins.
		rawRow(1, map[string]string{"Vendor": "B Corp", "Supplier": "A Corp"}),
		// Identity match: header spells the canonical field name.
		rawRow(2, map[string]string{"Payment Date": "2025-01-31"}),
		// Nothing matches: default applies.
		rawRow(3, map[string]string{"Unrelated": "x"}),
	}, m, nil)

	if got := rows[0].Get(canonical.FieldPayeeEntityName); got.Str != "A Corp" {
		t.Errorf("payee = %q, want first fallback candidate", got.Str)
	}
	if got := rows[1].Get(canonical.FieldPaymentDate); got.Kind != canonical.ValueDate {
		t.Errorf("identity match failed: %+v", got)
	}
	if got := rows[2].Get(canonical.FieldDescription); got.Str != "imported" {
		t.Errorf("default not applied: %+v", got)
	}
}

func TestComposeJoinOverlay(t *testing.T) {
	m := colmap.Map{
		Mappings: map[string]colmap.FieldMapping{
			"Supplier": {Field: canonical.FieldPayeeEntityName},
			"Amount":   {Field: canonical.FieldPaymentAmount},
			"ABN":      {Field: canonical.FieldPayeeEntityID, JoinOnly: true},
		},
		Joins: []colmap.JoinSpec{{
			Role:        "suppliers",
			LeftField:   canonical.FieldPayeeEntityName,
			RightHeader: "Name",
			Fields: map[string]canonical.Field{
				"ABN":   canonical.FieldPayeeEntityID,
				"Terms": canonical.FieldPaymentTermDays,
			},
		}},
	}

	datasets := []Dataset{{
		Role: "suppliers",
		Rows: []map[string]string{
			{"Name": "Acme Pty Ltd", "ABN": "51824753556", "Terms": "30"},
		},
	}}

	rows := Compose([]rawstore.RawRow{
		rawRow(1, map[string]string{"Supplier": "ACME PTY LTD", "Amount": "42.00"}),
	}, m, datasets)

	row := rows[0]
	if got := row.Get(canonical.FieldPayeeEntityID); got.Str != "51824753556" {
		t.Errorf("join-only field not overlaid: %+v", got)
	}
	if got := row.Get(canonical.FieldPaymentTermDays); got.Num != 30 {
		t.Errorf("joined term days = %+v, want 30", got)
	}
}

func TestComposeMainImportWinsOverJoin(t *testing.T) {
	m := colmap.Map{
		Mappings: map[string]colmap.FieldMapping{
			"Supplier": {Field: canonical.FieldPayeeEntityName},
			"Terms":    {Field: canonical.FieldPaymentTermDays},
		},
		Joins: []colmap.JoinSpec{{
			Role:        "suppliers",
			LeftField:   canonical.FieldPayeeEntityName,
			RightHeader: "Name",
			Fields:      map[string]canonical.Field{"Terms": canonical.FieldPaymentTermDays},
		}},
	}

	datasets := []Dataset{{
		Role: "suppliers",
		Rows: []map[string]string{{"Name": "Acme", "Terms": "60"}},
	}}

	rows := Compose([]rawstore.RawRow{
		rawRow(1, map[string]string{"Supplier": "Acme", "Terms": "14"}),
	}, m, datasets)

	if got := rows[0].Get(canonical.FieldPaymentTermDays); got.Num != 14 {
		t.Errorf("term days = %v, want main-import value 14 to win", got.Num)
	}
}

func TestComposeNeverDropsRows(t *testing.T) {
	m := colmap.Map{
		Mappings: map[string]colmap.FieldMapping{
			"Amount": {Field: canonical.FieldPaymentAmount},
		},
	}

	raws := []rawstore.RawRow{
		rawRow(1, map[string]string{"Amount": "10"}),
		rawRow(2, map[string]string{"Junk": "zzz"}), // resolves nothing
		rawRow(3, map[string]string{}),
	}

	rows := Compose(raws, m, nil)
	if len(rows) != len(raws) {
		t.Fatalf("composed %d rows from %d raw rows; rows must never be dropped", len(rows), len(raws))
	}

	for _, i := range []int{1, 2} {
		found := false
		for _, w := range rows[i].Warnings {
			if w == canonical.WarnNoResolvableFields {
				found = true
			}
		}
		if !found {
			t.Errorf("row %d missing %q warning: %v", rows[i].RowNo, canonical.WarnNoResolvableFields, rows[i].Warnings)
		}
	}
}
