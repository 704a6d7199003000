package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/TechniCodeCamp2025/fleet-api/internal/config"
	"github.com/TechniCodeCamp2025/fleet-api/internal/ingest"
	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
	"github.com/TechniCodeCamp2025/fleet-api/internal/store"
)

// maxUploadBytes bounds CSV/JSON dataset uploads.
const maxUploadBytes = 256 << 20

// DatasetsHandler handles POST /v1/datasets (JSON dataset document).
func (s *Server) DatasetsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	ds, err := ingest.DecodeJSON(r.Body)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid dataset", err.Error(), r.URL.Path)
		return
	}
	info, err := s.Store.SaveDataset(r.Context(), p.Tenant, ds)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save dataset failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// csvTables are the required multipart form field names.
var csvTables = []string{"locations", "relations", "vehicles", "routes", "segments"}

// DatasetsCSVHandler handles POST /v1/datasets/csv with one multipart
// file per table: locations, relations, vehicles, routes, segments.
func (s *Server) DatasetsCSVHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid multipart form", err.Error(), r.URL.Path)
		return
	}
	files := map[string]multipart.File{}
	for _, field := range csvTables {
		f, _, err := r.FormFile(field)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Missing table", fmt.Sprintf("missing file field %q", field), r.URL.Path)
			return
		}
		defer f.Close()
		files[field] = f
	}

	locations, err := ingest.Locations(files["locations"])
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid locations csv", err.Error(), r.URL.Path)
		return
	}
	relations, err := ingest.Relations(files["relations"])
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid relations csv", err.Error(), r.URL.Path)
		return
	}
	vehicles, err := ingest.Vehicles(files["vehicles"])
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid vehicles csv", err.Error(), r.URL.Path)
		return
	}
	routes, err := ingest.Routes(files["routes"])
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid routes csv", err.Error(), r.URL.Path)
		return
	}
	segments, err := ingest.Segments(files["segments"])
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid segments csv", err.Error(), r.URL.Path)
		return
	}

	ds, err := ingest.BuildDataset(locations, relations, vehicles, routes, segments)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Inconsistent dataset", err.Error(), r.URL.Path)
		return
	}
	info, err := s.Store.SaveDataset(r.Context(), p.Tenant, ds)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save dataset failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// DatasetByIDHandler handles GET /v1/datasets/{id}.
func (s *Server) DatasetByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	id := strings.TrimPrefix(r.URL.Path, "/v1/datasets/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	info, err := s.Store.GetDatasetInfo(r.Context(), p.Tenant, id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Dataset not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get dataset failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type runRequest struct {
	DatasetID string          `json:"datasetId"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// decodeRunConfig overlays user overrides on the defaults. Unknown keys
// are an error.
func decodeRunConfig(raw json.RawMessage) (*config.Config, error) {
	cfg := config.Default()
	if len(raw) > 0 {
		dec := json.NewDecoder(strings.NewReader(string(raw)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RunsHandler handles POST (create + start) and GET (list) /v1/runs.
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.CanPlan() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", r.URL.Path)
			return
		}
		var req runRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.DatasetID == "" {
			writeProblem(w, http.StatusBadRequest, "Invalid run request", "datasetId required", r.URL.Path)
			return
		}
		cfg, err := decodeRunConfig(req.Config)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid config", err.Error(), r.URL.Path)
			return
		}
		ds, err := s.Store.GetDataset(r.Context(), p.Tenant, req.DatasetID)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Dataset not found", "", r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Load dataset failed", err.Error(), r.URL.Path)
			return
		}
		run, err := s.Store.CreateRun(r.Context(), p.Tenant, req.DatasetID, cfg)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create run failed", err.Error(), r.URL.Path)
			return
		}
		s.Runs.Start(run, ds)
		writeJSON(w, http.StatusAccepted, run)
	case http.MethodGet:
		p := s.getPrincipal(r)
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListRuns(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RunByIDHandler routes /v1/runs/{id} and its subresources:
// /assignments, /unassigned, /vehicles, /events/stream, /ws.
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Run not found", "", r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Get run failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, run)
	case sub == "" && r.Method == http.MethodDelete:
		if !p.CanPlan() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", r.URL.Path)
			return
		}
		run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Run not found", "", r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Get run failed", err.Error(), r.URL.Path)
			return
		}
		cancelled := s.Runs.Cancel(id)
		writeJSON(w, http.StatusAccepted, map[string]any{"id": run.ID, "cancelling": cancelled})
	case sub == "assignments" && r.Method == http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 500
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListAssignments(r.Context(), p.Tenant, id, cursor, limit)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Run not found", "", r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List assignments failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	case sub == "unassigned" && r.Method == http.MethodGet:
		items, err := s.Store.ListUnassigned(r.Context(), p.Tenant, id)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Run not found", "", r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List unassigned failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case sub == "vehicles" && r.Method == http.MethodGet:
		states, err := s.Store.GetVehicleStates(r.Context(), p.Tenant, id)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Run not found", "", r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Get vehicle states failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": states})
	case sub == "events/stream" && r.Method == http.MethodGet:
		s.streamRunEvents(w, r, p, id)
	case sub == "ws" && r.Method == http.MethodGet:
		s.RunEventsWS(w, r, p, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// streamRunEvents serves Server-Sent Events for run progress until the
// client disconnects or the run reaches a terminal event.
func (s *Server) streamRunEvents(w http.ResponseWriter, r *http.Request, p Principal, runID string) {
	if _, err := s.Store.GetRun(r.Context(), p.Tenant, runID); err != nil {
		writeProblem(w, http.StatusNotFound, "Run not found", "", r.URL.Path)
		return
	}
	fl, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fl.Flush()

	ch := s.Broker.Subscribe(runID)
	defer s.Broker.Unsubscribe(runID, ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			data, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			fl.Flush()
			if evt.Type == "completed" || evt.Type == "cancelled" {
				return
			}
		}
	}
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.TenantID == "" {
			req.TenantID = p.Tenant
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
		writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler lists webhook deliveries for operators.
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	items, _, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, r.URL.Query().Get("status"), "", 100)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
