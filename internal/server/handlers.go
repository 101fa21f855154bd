package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/veildata/veil/internal/audit"
	"github.com/veildata/veil/internal/detect"
	"github.com/veildata/veil/internal/record"
	"github.com/veildata/veil/internal/redact"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

// decodeValid decodes the body into req and runs validation tags.
// A false return means the response was already written.
func (s *Server) decodeValid(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return false
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fmt.Sprintf("%s: %s", strings.ToLower(fe.Field()), fe.Tag())
			}
			writeError(w, http.StatusBadRequest, "validation_failed", strings.Join(fields, "; "))
			return false
		}
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

// scan runs the pattern library plus every external detector and
// reconciles overlaps.
func (s *Server) scan(ctx context.Context, text string) []detect.Entity {
	entities := s.detector.Detect(ctx, text)
	entities = append(entities, detect.RunExternal(ctx, text, s.externals...)...)
	return detect.Reconcile(entities)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if r.URL.Query().Get("detail") == "true" {
		components := map[string]string{
			"pattern_library": fmt.Sprintf("ok (%d types, %d patterns)", len(s.library.Types()), s.library.PatternCount()),
		}
		if s.store == nil {
			components["audit_store"] = "disabled"
		} else {
			components["audit_store"] = "ok"
		}
		for _, d := range s.externals {
			if d.Available() {
				components["detector_"+d.Name()] = "ok"
			} else {
				components["detector_"+d.Name()] = "unavailable"
			}
		}
		resp["components"] = components
	}
	writeJSON(w, http.StatusOK, resp)
}

type detectRequest struct {
	Text string `json:"text" validate:"required"`
}

type detectResponse struct {
	Entities []detect.Entity `json:"entities"`
	Count    int             `json:"count"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	entities := s.scan(r.Context(), req.Text)
	if entities == nil {
		entities = []detect.Entity{}
	}
	writeJSON(w, http.StatusOK, detectResponse{Entities: entities, Count: len(entities)})
}

type redactRequest struct {
	Text     string `json:"text" validate:"required"`
	Strategy string `json:"strategy"`
}

type redactResponse struct {
	Text       string             `json:"text"`
	Changed    bool               `json:"changed"`
	Strategy   string             `json:"strategy"`
	Redactions []redact.Entry     `json:"redactions"`
	Validation *redact.Validation `json:"validation,omitempty"`
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req redactRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	name := req.Strategy
	if name == "" {
		name = s.strategy
	}
	strategy, err := redact.ForName(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_strategy", err.Error())
		return
	}

	entities := s.scan(r.Context(), req.Text)
	rw := redact.NewRewriter(strategy).Rewrite(r.Context(), req.Text, entities)

	resp := redactResponse{
		Text:       rw.Text,
		Changed:    rw.Changed,
		Strategy:   name,
		Redactions: rw.Entries,
	}
	if s.verify {
		v := redact.Validate(req.Text, rw)
		resp.Validation = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

type recordsRequest struct {
	Records  []map[string]any `json:"records" validate:"required,min=1"`
	Strategy string           `json:"strategy"`
	Fields   []string         `json:"fields"`
}

type recordsSummary struct {
	Status         string   `json:"status"`
	Records        int      `json:"records"`
	RecordsChanged int      `json:"records_changed"`
	Redactions     int      `json:"redactions"`
	FieldsFailed   int      `json:"fields_failed"`
	Warnings       []string `json:"warnings,omitempty"`
	Failures       []string `json:"failures,omitempty"`
}

type recordsResponse struct {
	Records []map[string]any `json:"records"`
	Summary recordsSummary   `json:"summary"`
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	var req recordsRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	name := req.Strategy
	if name == "" {
		name = s.strategy
	}
	strategy, err := redact.ForName(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_strategy", err.Error())
		return
	}

	opts := []record.Option{
		record.WithExternalDetectors(s.externals...),
		record.WithStripHTML(s.stripHTML),
		record.WithVerification(s.verify),
	}
	if len(req.Fields) > 0 {
		opts = append(opts, record.WithFields(req.Fields))
	} else if len(s.fields) > 0 {
		opts = append(opts, record.WithFields(s.fields))
	}
	coord := record.NewCoordinator(s.detector, strategy, opts...)

	resp := recordsResponse{
		Records: make([]map[string]any, 0, len(req.Records)),
		Summary: recordsSummary{Status: record.StatusSuccess, Records: len(req.Records)},
	}
	for i, rec := range req.Records {
		out, outcome := coord.Process(r.Context(), rec)
		resp.Records = append(resp.Records, out)

		if outcome.Changed {
			resp.Summary.RecordsChanged++
		}
		resp.Summary.Redactions += outcome.Redactions
		resp.Summary.FieldsFailed += len(outcome.Failures)
		for _, warning := range outcome.Warnings {
			resp.Summary.Warnings = append(resp.Summary.Warnings, fmt.Sprintf("record %d: %s", i, warning))
		}
		for _, failure := range outcome.Failures {
			resp.Summary.Failures = append(resp.Summary.Failures, fmt.Sprintf("record %d field %s: %s", i, failure.Field, failure.Reason))
		}
	}
	if resp.Summary.FieldsFailed > 0 || len(resp.Summary.Warnings) > 0 {
		resp.Summary.Status = record.StatusPartial
	}
	writeJSON(w, http.StatusOK, resp)
}

type patternTypeInfo struct {
	Type         string   `json:"type"`
	Patterns     []string `json:"patterns"`
	PatternCount int      `json:"pattern_count"`
	DenyCount    int      `json:"deny_count,omitempty"`
}

type patternsResponse struct {
	Types        []patternTypeInfo `json:"types"`
	TypeCount    int               `json:"type_count"`
	PatternCount int               `json:"pattern_count"`
}

// handlePatterns reports the compiled library index. Pattern names only;
// the raw regexes stay server-side.
func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	types := s.library.Types()
	resp := patternsResponse{
		Types:        make([]patternTypeInfo, 0, len(types)),
		TypeCount:    len(types),
		PatternCount: s.library.PatternCount(),
	}
	for _, ct := range types {
		info := patternTypeInfo{
			Type:         ct.Type,
			Patterns:     make([]string, 0, len(ct.Patterns)),
			PatternCount: len(ct.Patterns),
			DenyCount:    len(ct.Deny),
		}
		for _, p := range ct.Patterns {
			info.Patterns = append(info.Patterns, p.Name)
		}
		resp.Types = append(resp.Types, info)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "audit_disabled", "audit store not configured")
		return false
	}
	return true
}

func (s *Server) handleJobsList(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	filter := audit.ListFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  50,
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "from must be RFC3339")
			return
		}
		filter.From = ts
	}
	if v := r.URL.Query().Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "to must be RFC3339")
			return
		}
		filter.To = ts
	}

	jobs, err := s.store.List(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("audit list failed")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if jobs == nil {
		jobs = []audit.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	job, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		log.Error().Err(err).Msg("audit get failed")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobVerify(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	id := chi.URLParam(r, "id")
	valid, err := s.store.Verify(r.Context(), id)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		log.Error().Err(err).Msg("audit verify failed")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, audit.VerifyResult{ID: id, Valid: valid})
}
