package colmap

import (
	"testing"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
)

func TestResolvePrecedence(t *testing.T) {
	m := Map{
		Mappings: map[string]FieldMapping{
			"Amt": {Field: canonical.FieldPaymentAmount},
		},
		Fallbacks: map[canonical.Field][]string{
			canonical.FieldPaymentAmount: {"Total", "Amount"},
		},
		Defaults: map[canonical.Field]string{
			canonical.FieldPaymentAmount: "0.00",
		},
	}

	tests := []struct {
		name string
		data map[string]string
		want string
	}{
		{
			"explicit mapping beats everything",
			map[string]string{"Amt": "1", "Total": "2", "paymentAmount": "3"},
			"1",
		},
		{
			"first declared fallback wins",
			map[string]string{"Amount": "2", "Total": "9"},
			"9",
		},
		{
			"identity when no mapping or fallback matches",
			map[string]string{"Payment Amount": "3"},
			"3",
		},
		{
			"default as last resort",
			map[string]string{"Unrelated": "x"},
			"0.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Resolve(canonical.FieldPaymentAmount, tt.data)
			if !ok || got != tt.want {
				t.Errorf("Resolve() = %q/%v, want %q", got, ok, tt.want)
			}
		})
	}
}

func TestResolveNothingMatches(t *testing.T) {
	m := Map{}
	if _, ok := m.Resolve(canonical.FieldInvoiceNumber, map[string]string{"X": "1"}); ok {
		t.Error("Resolve() should report no match")
	}
}

func TestResolveHeaderMatchingIsInsensitive(t *testing.T) {
	m := Map{
		Mappings: map[string]FieldMapping{
			"Supplier Name": {Field: canonical.FieldPayeeEntityName},
		},
	}
	data := map[string]string{"supplier_name": "Acme"}

	got, ok := m.Resolve(canonical.FieldPayeeEntityName, data)
	if !ok || got != "Acme" {
		t.Errorf("Resolve() = %q/%v, want Acme (case and separator insensitive)", got, ok)
	}
}

func TestJoinOnlyFields(t *testing.T) {
	m := Map{
		Mappings: map[string]FieldMapping{
			"ABN":      {Field: canonical.FieldPayeeEntityID, JoinOnly: true},
			"Supplier": {Field: canonical.FieldPayeeEntityName},
		},
	}

	jo := m.JoinOnlyFields()
	if !jo[canonical.FieldPayeeEntityID] {
		t.Error("payeeEntityID should be join-only")
	}
	if jo[canonical.FieldPayeeEntityName] {
		t.Error("payeeEntityName should not be join-only")
	}
}

func TestContentDigestStableAndSensitive(t *testing.T) {
	m := Map{
		Mappings: map[string]FieldMapping{
			"Amount": {Field: canonical.FieldPaymentAmount},
		},
	}

	a, err := m.ContentDigest()
	if err != nil {
		t.Fatalf("ContentDigest() error = %v", err)
	}
	b, _ := m.ContentDigest()
	if a != b {
		t.Errorf("digest not stable: %s vs %s", a, b)
	}

	m.Defaults = map[canonical.Field]string{canonical.FieldDescription: "x"}
	c, _ := m.ContentDigest()
	if a == c {
		t.Error("digest must change when the map changes")
	}
}
