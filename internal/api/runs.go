package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TechniCodeCamp2025/fleet-api/internal/engine"
	"github.com/TechniCodeCamp2025/fleet-api/internal/logging"
	"github.com/TechniCodeCamp2025/fleet-api/internal/metrics"
	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
	"github.com/TechniCodeCamp2025/fleet-api/internal/store"
	"github.com/TechniCodeCamp2025/fleet-api/internal/webhooks"
)

// RunManager executes optimization runs in the background and tracks
// in-flight ones for cooperative cancellation.
type RunManager struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	store  store.Store
	pub    *webhooks.Publisher
	broker EventBroker
	log    zerolog.Logger
}

func NewRunManager(s store.Store, pub *webhooks.Publisher, broker EventBroker) *RunManager {
	return &RunManager{
		cancels: map[string]context.CancelFunc{},
		store:   s,
		pub:     pub,
		broker:  broker,
		log:     logging.With("runs"),
	}
}

// Start launches the run in a goroutine and returns immediately.
func (m *RunManager) Start(run store.Run, ds *model.Dataset) {
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancels[run.ID] = cancel
	m.mu.Unlock()

	go m.execute(ctx, run, ds)
}

// Cancel signals the in-flight run. Returns false when the run is not
// executing here.
func (m *RunManager) Cancel(runID string) bool {
	m.mu.Lock()
	cancel, ok := m.cancels[runID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (m *RunManager) execute(ctx context.Context, run store.Run, ds *model.Dataset) {
	defer func() {
		m.mu.Lock()
		delete(m.cancels, run.ID)
		m.mu.Unlock()
	}()

	bg := context.Background()
	_ = m.store.UpdateRunStatus(bg, run.ID, store.RunRunning, "")
	started := time.Now()

	driver := engine.NewDriver(run.Config)
	driver.OnEvent = func(ev engine.Event) {
		m.broker.Publish(run.ID, SSEEvent{Type: ev.Type, Data: map[string]any{
			"runId":       run.ID,
			"routesDone":  ev.RoutesDone,
			"routesTotal": ev.RoutesTotal,
			"assigned":    ev.Assigned,
			"unassigned":  ev.Unassigned,
			"currentDate": ev.CurrentDate,
			"elapsedMs":   ev.ElapsedMs,
		}})
	}

	res, err := driver.Run(ctx, ds)
	if err != nil {
		status := store.RunFailed
		if errors.Is(err, engine.ErrInvalidInput) {
			m.log.Warn().Str("run", run.ID).Err(err).Msg("run rejected")
		} else {
			m.log.Error().Str("run", run.ID).Err(err).Msg("run failed")
		}
		_ = m.store.UpdateRunStatus(bg, run.ID, status, err.Error())
		metrics.RunsTotal.WithLabelValues(status).Inc()
		m.pub.Emit(bg, run.TenantID, webhooks.EventRunFailed, map[string]any{"runId": run.ID, "error": err.Error()})
		return
	}

	if err := m.store.SaveRunResult(bg, run.ID, res); err != nil {
		m.log.Error().Str("run", run.ID).Err(err).Msg("persist result failed")
		_ = m.store.UpdateRunStatus(bg, run.ID, store.RunFailed, err.Error())
		metrics.RunsTotal.WithLabelValues(store.RunFailed).Inc()
		m.pub.Emit(bg, run.TenantID, webhooks.EventRunFailed, map[string]any{"runId": run.ID, "error": err.Error()})
		return
	}

	status := store.RunCompleted
	if res.Summary.Cancelled {
		status = store.RunCancelled
	}
	_ = m.store.UpdateRunStatus(bg, run.ID, status, "")

	metrics.RunsTotal.WithLabelValues(status).Inc()
	metrics.RunDuration.Observe(time.Since(started).Seconds())
	metrics.RoutesAssigned.Add(float64(res.Summary.RoutesAssigned))
	for _, u := range res.Unassigned {
		top, topN := "", -1
		for reason, n := range u.Reasons {
			if n > topN || (n == topN && reason < top) {
				top, topN = reason, n
			}
		}
		metrics.RoutesUnassigned.WithLabelValues(top).Inc()
	}
	metrics.Relocations.Add(float64(res.Summary.TotalRelocations))
	metrics.Services.Add(float64(res.Summary.TotalServices))

	m.pub.Emit(bg, run.TenantID, webhooks.EventRunCompleted, map[string]any{
		"runId":            run.ID,
		"status":           status,
		"routesAssigned":   res.Summary.RoutesAssigned,
		"routesUnassigned": res.Summary.RoutesUnassigned,
		"totalCost":        res.Summary.TotalCost,
	})
}
