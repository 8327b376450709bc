package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"slotforge/internal/jobs"
	"slotforge/internal/metrics"
	"slotforge/internal/model"
)

// GenerateRequest is the request body for POST /api/availability/generate.
type GenerateRequest struct {
	TenantID     int64  `json:"tenant_id"`
	LocationID   int64  `json:"location_id"`
	ScopeKind    string `json:"scope_kind"`              // "venue" or "staff"
	Timezone     string `json:"location_tz,omitempty"`   // overrides the stored location timezone
	AffectedDate string `json:"affected_date,omitempty"` // YYYY-MM-DD; empty regenerates the full horizon

	TemplateID        int64 `json:"template_id,omitempty"`
	TemplateUnitID    int64 `json:"template_unit_id,omitempty"`
	TemplateOverwrite bool  `json:"overwrite,omitempty"`
}

// GenerateResponse is returned for accepted generation requests.
type GenerateResponse struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	IsRegeneration bool   `json:"is_regeneration"`
	Coalesced      bool   `json:"coalesced"`
}

// handleGenerate enqueues a generation job.
// POST /api/availability/generate
func (s *HTTPServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("generate")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req GenerateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := validateGenerateRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	submit := jobs.SubmitRequest{
		TenantID:          req.TenantID,
		LocationID:        req.LocationID,
		ScopeKind:         model.ScopeKind(req.ScopeKind),
		Timezone:          req.Timezone,
		TemplateID:        req.TemplateID,
		TemplateUnitID:    req.TemplateUnitID,
		TemplateOverwrite: req.TemplateOverwrite,
	}

	var (
		job       *model.GenerationJob
		coalesced bool
		err       error
	)
	if req.AffectedDate != "" {
		job, coalesced, err = s.orch.Regenerate(r.Context(), submit, req.AffectedDate)
	} else {
		job, coalesced, err = s.orch.Submit(r.Context(), submit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		s.logger.Error().Err(err).Int64("tenant_id", req.TenantID).
			Int64("location_id", req.LocationID).Msg("submit failed")
		return
	}

	writeJSON(w, http.StatusAccepted, GenerateResponse{
		JobID:          job.JobID,
		Status:         string(job.Status),
		IsRegeneration: job.IsRegeneration(),
		Coalesced:      coalesced,
	})
}

func validateGenerateRequest(req *GenerateRequest) error {
	if req.TenantID <= 0 || req.LocationID <= 0 {
		return fmt.Errorf("tenant_id and location_id are required")
	}
	if !model.ScopeKind(req.ScopeKind).Valid() {
		return fmt.Errorf("scope_kind must be %q or %q", model.ScopeVenue, model.ScopeStaff)
	}
	if req.AffectedDate != "" {
		if _, err := time.Parse("2006-01-02", req.AffectedDate); err != nil {
			return fmt.Errorf("invalid affected_date format; expected YYYY-MM-DD")
		}
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			return fmt.Errorf("unknown location_tz %q", req.Timezone)
		}
	}
	return nil
}

// handleTaskStatus reports a job's state.
// GET /api/tasks/{job_id}
func (s *HTTPServer) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("task_status")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if jobID == "" || strings.Contains(jobID, "/") {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}

	status, err := s.orch.GetStatus(r.Context(), jobID)
	if err == redis.Nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleExport streams generated availability as an .xlsx workbook.
// GET /api/availability/export?tenant_id=&location_id=&scope_kind=&from=&to=
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	tenantID := parseID(q.Get("tenant_id"))
	locationID := parseID(q.Get("location_id"))
	kind := model.ScopeKind(q.Get("scope_kind"))
	from, to := q.Get("from"), q.Get("to")

	if tenantID <= 0 || locationID <= 0 {
		writeError(w, http.StatusBadRequest, "tenant_id and location_id are required")
		return
	}
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "scope_kind must be venue or staff")
		return
	}
	fromDate, err := time.Parse("2006-01-02", from)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
		return
	}
	toDate, err := time.Parse("2006-01-02", to)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date; expected YYYY-MM-DD")
		return
	}
	if fromDate.After(toDate) {
		writeError(w, http.StatusBadRequest, "from must be before or equal to to")
		return
	}

	filename := fmt.Sprintf("availability_%d_%d_%s_%s.xlsx", tenantID, locationID, kind, from)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := s.exporter.WriteWorkbook(r.Context(), w, tenantID, locationID, kind, from, to); err != nil {
		s.logger.Error().Err(err).Int64("tenant_id", tenantID).
			Int64("location_id", locationID).Msg("export failed")
	}
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
