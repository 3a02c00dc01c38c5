package web

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/errs"
)

func TestDraftFromRequestQuery(t *testing.T) {
	r := httptest.NewRequest("GET",
		"/report?entityName=Acme&entityId=123&periodStart=2025-01-01&periodEnd=2025-06-30", nil)

	draft, err := draftFromRequest(r)
	if err != nil {
		t.Fatalf("draftFromRequest() error = %v", err)
	}
	if draft.EntityName != "Acme" || draft.EntityID != "123" {
		t.Errorf("entity = %q/%q, want Acme/123", draft.EntityName, draft.EntityID)
	}
	if draft.PeriodStart != "2025-01-01" || draft.PeriodEnd != "2025-06-30" {
		t.Errorf("period = %q..%q", draft.PeriodStart, draft.PeriodEnd)
	}
}

func TestDraftFromRequestBody(t *testing.T) {
	body := `{"entityName":"Acme","declarations":{"signedBy":"CFO","approvedOn":"2025-07-01"}}`
	r := httptest.NewRequest("POST", "/report", strings.NewReader(body))

	draft, err := draftFromRequest(r)
	if err != nil {
		t.Fatalf("draftFromRequest() error = %v", err)
	}
	if draft.EntityName != "Acme" {
		t.Errorf("entityName = %q, want Acme", draft.EntityName)
	}
	if draft.Declarations["signedBy"] != "CFO" {
		t.Errorf("declarations = %v, want signedBy CFO", draft.Declarations)
	}
}

func TestDraftFromRequestEmptyBody(t *testing.T) {
	r := httptest.NewRequest("POST", "/report", nil)

	draft, err := draftFromRequest(r)
	if err != nil {
		t.Fatalf("draftFromRequest() error = %v", err)
	}
	if draft.EntityName != "" || draft.Declarations != nil {
		t.Errorf("empty body should yield an empty draft, got %+v", draft)
	}
}

func TestDraftFromRequestMalformedBody(t *testing.T) {
	r := httptest.NewRequest("POST", "/report", strings.NewReader("{"))

	if _, err := draftFromRequest(r); !errs.IsValidation(err) {
		t.Errorf("malformed body = %v, want validation error", err)
	}
}
