package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TechniCodeCamp2025/fleet-api/internal/config"
	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	datasets  map[string]*model.Dataset // id -> dataset
	dsInfo    map[string]DatasetInfo
	dsByTen   map[string][]string
	runs      map[string]*Run
	runsByTen map[string][]string
	results   map[string]*model.RunResult // runID -> result
	subs      map[string][]model.Subscription

	deliveries         map[string]*memDelivery
	deliveriesByTenant map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		datasets:           map[string]*model.Dataset{},
		dsInfo:             map[string]DatasetInfo{},
		dsByTen:            map[string][]string{},
		runs:               map[string]*Run{},
		runsByTen:          map[string][]string{},
		results:            map[string]*model.RunResult{},
		subs:               map[string][]model.Subscription{},
		deliveries:         map[string]*memDelivery{},
		deliveriesByTenant: map[string][]string{},
	}
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

// memDelivery augments WebhookDelivery with scheduling state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func datasetInfo(id, tenantID string, ds *model.Dataset) DatasetInfo {
	info := DatasetInfo{
		ID:        id,
		TenantID:  tenantID,
		Locations: len(ds.Locations),
		Edges:     len(ds.Edges),
		Vehicles:  len(ds.Vehicles),
		Routes:    len(ds.Routes),
		CreatedAt: time.Now().UTC(),
	}
	for _, r := range ds.Routes {
		if info.FirstDate.IsZero() || r.Start.Before(info.FirstDate) {
			info.FirstDate = r.Start
		}
		if r.End.After(info.LastDate) {
			info.LastDate = r.End
		}
	}
	return info
}

func (m *Memory) SaveDataset(ctx context.Context, tenantID string, ds *model.Dataset) (DatasetInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	info := datasetInfo(id, tenantID, ds)
	m.datasets[id] = ds
	m.dsInfo[id] = info
	m.dsByTen[tenantID] = append(m.dsByTen[tenantID], id)
	return info, nil
}

func (m *Memory) GetDataset(ctx context.Context, tenantID, id string) (*model.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.dsInfo[id]
	if !ok || info.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return m.datasets[id], nil
}

func (m *Memory) GetDatasetInfo(ctx context.Context, tenantID, id string) (DatasetInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.dsInfo[id]
	if !ok || info.TenantID != tenantID {
		return DatasetInfo{}, ErrNotFound
	}
	return info, nil
}

func (m *Memory) CreateRun(ctx context.Context, tenantID, datasetID string, cfg *config.Config) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.dsInfo[datasetID]
	if !ok || info.TenantID != tenantID {
		return Run{}, ErrNotFound
	}
	r := Run{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		DatasetID: datasetID,
		Status:    RunPending,
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
	}
	m.runs[r.ID] = &r
	m.runsByTen[tenantID] = append(m.runsByTen[tenantID], r.ID)
	return r, nil
}

func (m *Memory) UpdateRunStatus(ctx context.Context, id, status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	switch status {
	case RunRunning:
		r.StartedAt = &now
	case RunCompleted, RunFailed, RunCancelled:
		r.FinishedAt = &now
	}
	r.Status = status
	r.Error = errMsg
	return nil
}

func (m *Memory) SaveRunResult(ctx context.Context, id string, res *model.RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	sum := res.Summary
	r.Summary = &sum
	m.results[id] = res
	return nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, id string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok || r.TenantID != tenantID {
		return Run{}, ErrNotFound
	}
	return *r, nil
}

func (m *Memory) ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]Run, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.runsByTen[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []Run{}
	next := ""
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, *m.runs[ids[i]])
		next = ids[i]
	}
	if start+len(out) >= len(ids) {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) getResult(tenantID, runID string) (*model.RunResult, error) {
	r, ok := m.runs[runID]
	if !ok || r.TenantID != tenantID {
		return nil, ErrNotFound
	}
	res, ok := m.results[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return res, nil
}

func (m *Memory) ListAssignments(ctx context.Context, tenantID, runID, cursor string, limit int) ([]model.Assignment, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, err := m.getResult(tenantID, runID)
	if err != nil {
		return nil, "", err
	}
	start := 0
	if cursor != "" {
		for i, a := range res.Assignments {
			if itoa(a.RouteID) == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 500
	}
	end := start + limit
	if end > len(res.Assignments) {
		end = len(res.Assignments)
	}
	items := append([]model.Assignment(nil), res.Assignments[start:end]...)
	next := ""
	if end < len(res.Assignments) && end > start {
		next = itoa(items[len(items)-1].RouteID)
	}
	return items, next, nil
}

func (m *Memory) ListUnassigned(ctx context.Context, tenantID, runID string) ([]model.UnassignedRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, err := m.getResult(tenantID, runID)
	if err != nil {
		return nil, err
	}
	return append([]model.UnassignedRoute(nil), res.Unassigned...), nil
}

func (m *Memory) GetVehicleStates(ctx context.Context, tenantID, runID string) (map[int64]*model.VehicleState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, err := m.getResult(tenantID, runID)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*model.VehicleState, len(res.VehicleStates))
	for id, st := range res.VehicleStates {
		out[id] = st.Clone()
	}
	return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.Subscription(nil), list[start:end]...)
	next := ""
	if end < len(list) && end > start {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[tenantID]
	out := make([]model.Subscription, 0, len(arr))
	for _, s := range arr {
		if s.ID != id {
			out = append(out, s)
		}
	}
	m.subs[tenantID] = out
	return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"}, NextAttemptAt: time.Now()}
	m.deliveries[id] = d
	m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, ids := range m.deliveriesByTenant {
		for _, id := range ids {
			d := m.deliveries[id]
			if d == nil {
				continue
			}
			if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
				out = append(out, d.WebhookDelivery)
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
	} else {
		d.Status = "retry"
		d.LastError = lastError
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		} else {
			d.NextAttemptAt = time.Now().Add(time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d != nil {
		d.Status = "failed"
		d.LastError = lastError
		d.ResponseCode = responseCode
		d.LatencyMs = latencyMs
	}
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, id := range m.deliveriesByTenant[tenantID] {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if status == "" || d.Status == status {
			item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
			if !d.NextAttemptAt.IsZero() {
				item["nextAttemptAt"] = d.NextAttemptAt
			}
			if d.LastError != "" {
				item["lastError"] = d.LastError
			}
			out = append(out, item)
		}
	}
	return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d != nil && d.TenantID == tenantID {
		d.Status = "pending"
		d.NextAttemptAt = time.Now()
	}
	return nil
}
