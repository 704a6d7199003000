package store

import (
	"context"
	"errors"
	"time"

	"github.com/TechniCodeCamp2025/fleet-api/internal/config"
	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
)

// Run statuses.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// Run is the persisted record of one optimization run.
type Run struct {
	ID         string            `json:"id"`
	TenantID   string            `json:"tenantId"`
	DatasetID  string            `json:"datasetId"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	Config     *config.Config    `json:"config,omitempty"`
	Summary    *model.RunSummary `json:"summary,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	StartedAt  *time.Time        `json:"startedAt,omitempty"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
}

// DatasetInfo summarizes a stored dataset.
type DatasetInfo struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Locations int       `json:"locations"`
	Edges     int       `json:"edges"`
	Vehicles  int       `json:"vehicles"`
	Routes    int       `json:"routes"`
	FirstDate time.Time `json:"firstDate,omitempty"`
	LastDate  time.Time `json:"lastDate,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// WebhookDelivery is one queued webhook POST.
type WebhookDelivery struct {
	ID             string
	TenantID       string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

// Store is the persistence interface used by the API server and run
// manager.
type Store interface {
	// Datasets
	SaveDataset(ctx context.Context, tenantID string, ds *model.Dataset) (DatasetInfo, error)
	GetDataset(ctx context.Context, tenantID, id string) (*model.Dataset, error)
	GetDatasetInfo(ctx context.Context, tenantID, id string) (DatasetInfo, error)

	// Runs
	CreateRun(ctx context.Context, tenantID, datasetID string, cfg *config.Config) (Run, error)
	UpdateRunStatus(ctx context.Context, id, status, errMsg string) error
	SaveRunResult(ctx context.Context, id string, res *model.RunResult) error
	GetRun(ctx context.Context, tenantID, id string) (Run, error)
	ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]Run, string, error)
	ListAssignments(ctx context.Context, tenantID, runID, cursor string, limit int) ([]model.Assignment, string, error)
	ListUnassigned(ctx context.Context, tenantID, runID string) ([]model.UnassignedRoute, error)
	GetVehicleStates(ctx context.Context, tenantID, runID string) (map[int64]*model.VehicleState, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error
}

var ErrNotFound = errors.New("not found")
