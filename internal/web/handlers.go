package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/colmap"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/errs"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/report"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// tenantID extracts the tenant identifier from the URL.
func tenantID(r *http.Request) string {
	return chi.URLParam(r, "tenantID")
}

// runID parses the run identifier from the URL.
func runID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "runID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errs.Validationf(tenantID(r), raw, "invalid run id %q", raw)
	}
	return id, nil
}

// queryInt reads an integer query parameter, falling back on absence or junk.
func queryInt(r *http.Request, name string, fallback int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

type createRunRequest struct {
	Name        string `json:"name"`
	PeriodStart string `json:"periodStart"`
	PeriodEnd   string `json:"periodEnd"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, errs.Validationf(tenantID(r), "", "invalid request body: %v", err))
		return
	}

	start, err := time.Parse(canonical.DateLayout, req.PeriodStart)
	if err != nil {
		s.respondError(w, r, errs.Validationf(tenantID(r), "", "invalid periodStart %q, want YYYY-MM-DD", req.PeriodStart))
		return
	}
	end, err := time.Parse(canonical.DateLayout, req.PeriodEnd)
	if err != nil {
		s.respondError(w, r, errs.Validationf(tenantID(r), "", "invalid periodEnd %q, want YYYY-MM-DD", req.PeriodEnd))
		return
	}

	run, err := s.service.CreateRun(r.Context(), tenantID(r), req.Name, start, end)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.ListRuns(r.Context(), tenantID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	run, err := s.service.GetRun(r.Context(), tenantID(r), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)
	defer body.Close()

	rows, err := s.service.Ingest(r.Context(), tenantID(r), id, body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"rows": rows})
}

func (s *Server) handleImportDataset(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	role := chi.URLParam(r, "role")
	name := r.URL.Query().Get("name")
	if name == "" {
		name = role
	}

	body := http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)
	defer body.Close()

	ds, err := s.service.IngestDataset(r.Context(), tenantID(r), id, role, name, body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	result, err := s.service.Sample(r.Context(), tenantID(r), id, limit, offset)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSaveMap(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var m colmap.Map
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		s.respondError(w, r, errs.Validationf(tenantID(r), id.String(), "invalid column map body: %v", err))
		return
	}

	rec, err := s.service.SaveMap(r.Context(), tenantID(r), id, m)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetMap(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	rec, err := s.service.GetMap(r.Context(), tenantID(r), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	// Staging defaults to persisting; persist=false gives a dry run.
	persist := r.URL.Query().Get("persist") != "false"

	result, err := s.service.Stage(r.Context(), tenantID(r), id, persist)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	result, err := s.service.Preview(r.Context(), tenantID(r), id, offset, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// draftFromRequest reads the report draft. A POST carries it as a JSON
// body (the only way to supply declarations); a GET takes the identity
// fields from query parameters. An empty POST body is an empty draft.
func draftFromRequest(r *http.Request) (report.Draft, error) {
	if r.Method == http.MethodPost {
		var draft report.Draft
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil && !errors.Is(err, io.EOF) {
			return report.Draft{}, errs.Validationf(tenantID(r), chi.URLParam(r, "runID"), "invalid draft body: %v", err)
		}
		return draft, nil
	}

	q := r.URL.Query()
	return report.Draft{
		EntityName:  q.Get("entityName"),
		EntityID:    q.Get("entityId"),
		PeriodStart: q.Get("periodStart"),
		PeriodEnd:   q.Get("periodEnd"),
	}, nil
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	draft, err := draftFromRequest(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rpt, err := s.service.Report(r.Context(), tenantID(r), id, draft)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rpt)
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out, err := s.service.Executions(r.Context(), tenantID(r), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
