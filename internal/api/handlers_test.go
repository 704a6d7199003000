package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

const datasetDoc = `{
  "locations": [
    {"id": 10, "name": "Warszawa", "isHub": true},
    {"id": 20, "name": "Krakow"},
    {"id": 40, "name": "Gdansk"}
  ],
  "relations": [
    {"id": 1, "fromId": 20, "toId": 10, "distanceKm": 300, "timeHours": 3.5},
    {"id": 2, "fromId": 10, "toId": 20, "distanceKm": 300, "timeHours": 3.5},
    {"id": 3, "fromId": 40, "toId": 10, "distanceKm": 350, "timeHours": 4}
  ],
  "vehicles": [
    {"id": 1, "registration": "WGM 1", "brand": "DAF", "serviceIntervalKm": 110000, "leasingLimitKm": 150000,
     "leaseStartDate": "2024-01-01T00:00:00Z", "leaseEndDate": "2024-12-31T00:00:00Z", "currentOdometerKm": 0},
    {"id": 2, "registration": "WGM 2", "brand": "Volvo", "serviceIntervalKm": 120000, "leasingLimitKm": 150000,
     "leaseStartDate": "2024-01-01T00:00:00Z", "leaseEndDate": "2024-12-31T00:00:00Z", "currentOdometerKm": 0}
  ],
  "routes": [
    {"id": 1, "start": "2024-01-01T08:00:00Z", "end": "2024-01-01T14:00:00Z", "distanceKm": 120,
     "segments": [{"id": 10, "routeId": 1, "seq": 1, "startLocId": 10, "endLocId": 40,
       "start": "2024-01-01T08:00:00Z", "end": "2024-01-01T14:00:00Z"}]},
    {"id": 2, "start": "2024-01-02T08:00:00Z", "end": "2024-01-02T14:00:00Z", "distanceKm": 130,
     "segments": [{"id": 20, "routeId": 2, "seq": 1, "startLocId": 40, "endLocId": 10,
       "start": "2024-01-02T08:00:00Z", "end": "2024-01-02T14:00:00Z"}]}
  ]
}`

func uploadDataset(t *testing.T, s *Server) string {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/datasets", bytes.NewReader([]byte(datasetDoc)))
	req.Header.Set("Content-Type", "application/json")
	s.DatasetsHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("dataset upload: %d %s", rr.Code, rr.Body.String())
	}
	var info struct {
		ID     string `json:"id"`
		Routes int    `json:"routes"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Routes != 2 {
		t.Fatalf("route count: %d", info.Routes)
	}
	return info.ID
}

func startRun(t *testing.T, s *Server, datasetID string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"datasetId": datasetID})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.RunsHandler(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("run create: %d %s", rr.Code, rr.Body.String())
	}
	var run struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &run)
	if run.ID == "" {
		t.Fatal("missing run id")
	}
	return run.ID
}

func waitForRun(t *testing.T, s *Server, runID string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rr := httptest.NewRecorder()
		s.RunByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/"+runID, nil))
		if rr.Code != 200 {
			t.Fatalf("get run: %d %s", rr.Code, rr.Body.String())
		}
		var run map[string]any
		_ = json.Unmarshal(rr.Body.Bytes(), &run)
		switch run["status"] {
		case "completed", "failed", "cancelled":
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run did not finish in time")
	return nil
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestDatasetUploadAndInfo(t *testing.T) {
	s := newTestServer(t)
	id := uploadDataset(t, s)

	rr := httptest.NewRecorder()
	s.DatasetByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/datasets/"+id, nil))
	if rr.Code != 200 {
		t.Fatalf("dataset info: %d", rr.Code)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := uploadDataset(t, s)
	runID := startRun(t, s, id)
	run := waitForRun(t, s, runID)
	if run["status"] != "completed" {
		t.Fatalf("run status: %v (%v)", run["status"], run["error"])
	}
	summary, _ := run["summary"].(map[string]any)
	if summary == nil || summary["routesTotal"].(float64) != 2 {
		t.Fatalf("summary: %+v", summary)
	}

	// Assignment log
	rr := httptest.NewRecorder()
	s.RunByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/"+runID+"/assignments", nil))
	if rr.Code != 200 {
		t.Fatalf("assignments: %d %s", rr.Code, rr.Body.String())
	}
	var page struct {
		Items []map[string]any `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &page)
	if len(page.Items) != 2 {
		t.Fatalf("assignment log: %d items", len(page.Items))
	}

	// Final vehicle states
	rr = httptest.NewRecorder()
	s.RunByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/"+runID+"/vehicles", nil))
	if rr.Code != 200 {
		t.Fatalf("vehicles: %d", rr.Code)
	}

	// Unassigned (none expected here)
	rr = httptest.NewRecorder()
	s.RunByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/"+runID+"/unassigned", nil))
	if rr.Code != 200 {
		t.Fatalf("unassigned: %d", rr.Code)
	}
}

func TestRunConfigOverrides(t *testing.T) {
	s := newTestServer(t)
	id := uploadDataset(t, s)

	body := []byte(fmt.Sprintf(`{"datasetId":%q,"config":{"placement":{"strategy":"cost_matrix"}}}`, id))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.RunsHandler(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("run create: %d %s", rr.Code, rr.Body.String())
	}

	// Unknown config keys are rejected.
	body = []byte(fmt.Sprintf(`{"datasetId":%q,"config":{"turbo":true}}`, id))
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.RunsHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown config key: %d", rr.Code)
	}
}

func TestRunInvalidDatasetFails(t *testing.T) {
	s := newTestServer(t)
	bad := bytes.Replace([]byte(datasetDoc), []byte(`"distanceKm": 120`), []byte(`"distanceKm": -1`), 1)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/datasets", bytes.NewReader(bad))
	req.Header.Set("Content-Type", "application/json")
	s.DatasetsHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("dataset upload: %d", rr.Code)
	}
	var info struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &info)

	runID := startRun(t, s, info.ID)
	run := waitForRun(t, s, runID)
	if run["status"] != "failed" {
		t.Fatalf("invalid dataset run must fail, got %v", run["status"])
	}
}

func TestRunForbiddenForViewer(t *testing.T) {
	s := newTestServer(t)
	id := uploadDataset(t, s)
	body, _ := json.Marshal(map[string]any{"datasetId": id})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader(body))
	req.Header.Set("X-Role", "viewer")
	s.RunsHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("viewer run create: %d", rr.Code)
	}
}

func TestSubscriptionsCRUD(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"url":"https://example.com/hook","events":["run.completed"],"secret":"s"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(body))
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sub: %d %s", rr.Code, rr.Body.String())
	}
	var sub struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &sub)

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil))
	if rr.Code != 200 {
		t.Fatalf("list subs: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete sub: %d", rr.Code)
	}
}

func TestRunNotFound(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.RunByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing run: %d", rr.Code)
	}
}
