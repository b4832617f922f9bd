package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"flowboard/internal/aggregate"
	"flowboard/internal/api"
	"flowboard/internal/tenant"
	"flowboard/internal/timerange"
	"flowboard/internal/types"
)

// errorBody is the JSON shape of every API error.
type errorBody struct {
	Error          string `json:"error"`
	Kind           string `json:"kind,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto an HTTP status.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, ErrNoTenant):
		status = http.StatusConflict
		body.Kind = "tenant"
	case api.IsAuthError(err):
		status = http.StatusUnauthorized
		body.Kind = "authorization"
		body.UpstreamStatus = api.StatusOf(err)
	case api.StatusOf(err) != 0:
		status = http.StatusBadGateway
		body.Kind = "upstream"
		body.UpstreamStatus = api.StatusOf(err)
	case errors.Is(err, tenant.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, tenant.ErrDuplicate):
		status = http.StatusConflict
	case errors.Is(err, tenant.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError || status == http.StatusBadGateway {
		s.logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// rangeParam reads ?range=, defaulting to the persisted selection.
func (s *Server) rangeParam(r *http.Request) (timerange.Range, bool) {
	v := r.URL.Query().Get("range")
	if v == "" {
		return s.service.Session().DateRange(), true
	}
	return timerange.Parse(v)
}

func (s *Server) handleRanges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"options": timerange.Options(),
		"default": timerange.Default,
		"current": s.service.Session().DateRange(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	rng, ok := s.rangeParam(r)
	if !ok {
		badRequest(w, "unknown range")
		return
	}
	snap, err := s.service.Snapshot(r.Context(), rng)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	rng, ok := s.rangeParam(r)
	if !ok {
		badRequest(w, "unknown range")
		return
	}
	q := r.URL.Query()
	key, dir := aggregate.ParseSort(q.Get("sort"), q.Get("dir"))
	page := 0
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(w, "page must be an integer")
			return
		}
		page = n
	}

	res, err := s.service.Executions(r.Context(), rng, key, dir, page)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCertificates(w http.ResponseWriter, r *http.Request) {
	rng, ok := s.rangeParam(r)
	if !ok {
		badRequest(w, "unknown range")
		return
	}
	tenantID := s.service.Session().Current().Tenant.ID
	progress, err := s.service.Certificates(r.Context(), rng, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewCertificatesView(tenantID, rng, r.URL.Query().Get("q"), progress))
}

func (s *Server) handleWorker(w http.ResponseWriter, r *http.Request) {
	worker, err := s.service.Worker(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, worker)
}

func (s *Server) handleWorkflows(w http.ResponseWriter, r *http.Request) {
	defs, err := s.service.Workflows(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

// tenantView never exposes keys.
type tenantView struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	WorkerID    int    `json:"workerId"`
	HasKeys     bool   `json:"hasKeys"`
	Active      bool   `json:"active"`
}

func (s *Server) tenantViews() []tenantView {
	reg := s.service.Session().Registry()
	active := reg.ActiveID()
	list := reg.List()
	out := make([]tenantView, 0, len(list))
	for _, t := range list {
		out = append(out, tenantView{
			ID:          t.ID,
			DisplayName: t.DisplayName,
			WorkerID:    t.WorkerID,
			HasKeys:     api.CredentialsFor(t).Valid(),
			Active:      t.ID == active,
		})
	}
	return out
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tenantViews())
}

func decodeTenant(r *http.Request) (types.TenantConfig, error) {
	var t types.TenantConfig
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		return t, fmt.Errorf("%w: %v", tenant.ErrInvalid, err)
	}
	return t, nil
}

func (s *Server) handleAddTenant(w http.ResponseWriter, r *http.Request) {
	t, err := decodeTenant(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	added, err := s.service.Session().Add(t)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tenantView{
		ID:          added.ID,
		DisplayName: added.DisplayName,
		WorkerID:    added.WorkerID,
		HasKeys:     api.CredentialsFor(added).Valid(),
		Active:      added.ID == s.service.Session().Registry().ActiveID(),
	})
}

func (s *Server) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := decodeTenant(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	existing, ok := s.service.Session().Registry().Get(id)
	if !ok {
		s.writeError(w, fmt.Errorf("%w: %s", tenant.ErrNotFound, id))
		return
	}
	t.ID = id
	if t.DisplayName == "" {
		t.DisplayName = existing.DisplayName
	}
	if t.APIKey == "" {
		t.APIKey = existing.APIKey
	}
	if t.SubscriptionKey == "" {
		t.SubscriptionKey = existing.SubscriptionKey
	}
	if err := s.service.Session().Update(t); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.tenantViews())
}

func (s *Server) handleRemoveTenant(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Session().Remove(mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.tenantViews())
}

func (s *Server) handleActivateTenant(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Session().Switch(mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.tenantViews())
}

type preferencesBody struct {
	DateRange timerange.Range `json:"dateRange"`
	Theme     *string         `json:"theme,omitempty"`
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	session := s.service.Session()
	theme := session.Theme()
	writeJSON(w, http.StatusOK, preferencesBody{DateRange: session.DateRange(), Theme: &theme})
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var body preferencesBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid preferences body")
		return
	}
	session := s.service.Session()
	if body.DateRange != "" {
		rng, ok := timerange.Parse(string(body.DateRange))
		if !ok {
			badRequest(w, "unknown range")
			return
		}
		if err := session.SetDateRange(rng); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if body.Theme != nil {
		if err := session.SetTheme(*body.Theme); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	s.handleGetPreferences(w, r)
}

// handleReport serves the snapshot of ?range= as a downloadable HTML page.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rng, ok := s.rangeParam(r)
	if !ok {
		badRequest(w, "unknown range")
		return
	}
	snap, err := s.service.Snapshot(r.Context(), rng)
	if err != nil {
		s.writeError(w, err)
		return
	}
	report, err := GenerateHTMLReport(snap)
	if err != nil {
		http.Error(w, "Failed to generate report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"flowboard-report-%d.html\"",
			snap.FetchedAt.Unix()))
	}
	_, _ = w.Write([]byte(report))
}
