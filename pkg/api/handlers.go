package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flowpulse/flowpulse/pkg/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	defaultRunLimit = 50
	maxRunLimit     = 200
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// workflowResponse is a workflow with its most recent sample attached.
type workflowResponse struct {
	store.Workflow
	LatestSample *store.MetricSample `json:"latest_sample,omitempty"`
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListWorkflows returns a filtered, sorted, paginated workflow
// listing with each row's most recent sample attached.
func (s *server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	filter, err := parseWorkflowFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	workflows, total, err := s.store.ListWorkflows(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing workflows: " + err.Error()})

		return
	}

	entries := make([]workflowResponse, 0, len(workflows))

	for i := range workflows {
		entries = append(entries, s.withLatestSample(r, workflows[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"workflows": entries,
		"pagination": map[string]any{
			"page":  filter.Page,
			"size":  filter.Size,
			"total": total,
		},
	})
}

// handleGetWorkflow returns a single workflow by ID with its most
// recent sample attached.
func (s *server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	workflow, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"workflow not found"})

			return
		}

		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"fetching workflow: " + err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, s.withLatestSample(r, *workflow))
}

// handleListSamples returns the full sample history for a workflow,
// oldest first.
func (s *server) handleListSamples(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if _, err := s.store.GetWorkflow(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"workflow not found"})

			return
		}

		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"fetching workflow: " + err.Error()})

		return
	}

	samples, err := s.store.ListSamples(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing samples: " + err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_id": id,
		"samples":     samples,
	})
}

// handleListRuns returns recent collection audit rows, newest first.
func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"limit must be a positive integer"})

			return
		}

		limit = n
	}

	if limit > maxRunLimit {
		limit = maxRunLimit
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing runs: " + err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handlePlatformStats returns per-platform aggregate statistics.
func (s *server) handlePlatformStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.PlatformStats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"computing statistics: " + err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"generated": time.Now().Unix(),
		"platforms": stats,
	})
}

// handleTriggerCollection fires a collection run in the background
// and returns immediately.
func (s *server) handleTriggerCollection(w http.ResponseWriter, _ *http.Request) {
	if s.trigger == nil {
		writeJSON(w, http.StatusServiceUnavailable,
			errorResponse{"collection trigger not available"})

		return
	}

	go s.trigger()

	writeJSON(w, http.StatusAccepted,
		map[string]string{"message": "collection run started"})
}

// withLatestSample attaches the workflow's most recent sample, if any.
func (s *server) withLatestSample(
	r *http.Request,
	workflow store.Workflow,
) workflowResponse {
	resp := workflowResponse{Workflow: workflow}

	sample, err := s.store.LatestSample(r.Context(), workflow.ID)
	if err == nil {
		resp.LatestSample = sample
	} else if !errors.Is(err, store.ErrNotFound) {
		s.log.WithError(err).
			WithField("workflow_id", workflow.ID).
			Warn("Failed to load latest sample")
	}

	return resp
}

// parseID extracts and validates the {id} URL parameter. On failure
// it writes a 400 response and returns ok=false.
func parseID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "id")

	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid workflow id"})

		return 0, false
	}

	return uint(id), true
}

// parseWorkflowFilter builds a store filter from query parameters.
func parseWorkflowFilter(r *http.Request) (store.WorkflowFilter, error) {
	q := r.URL.Query()

	filter := store.WorkflowFilter{
		Platform: q.Get("platform"),
		Country:  q.Get("country"),
		Search:   q.Get("search"),
		SortBy:   q.Get("sort_by"),
		Order:    q.Get("order"),
		Page:     1,
		Size:     defaultPageSize,
	}

	switch filter.SortBy {
	case "", "created_at", "engagement_score":
	default:
		return filter, errors.New(
			"sort_by must be created_at or engagement_score")
	}

	switch filter.Order {
	case "", "asc", "desc":
	default:
		return filter, errors.New("order must be asc or desc")
	}

	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return filter, errors.New("page must be a positive integer")
		}

		filter.Page = n
	}

	if raw := q.Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return filter, errors.New("size must be a positive integer")
		}

		filter.Size = n
	}

	if filter.Size > maxPageSize {
		filter.Size = maxPageSize
	}

	return filter, nil
}
