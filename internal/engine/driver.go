package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/TechniCodeCamp2025/fleet-api/internal/config"
	"github.com/TechniCodeCamp2025/fleet-api/internal/graph"
	"github.com/TechniCodeCamp2025/fleet-api/internal/logging"
	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
)

// Event is one progress notification out of a run. Emission must never
// block the hot loop; consumers that fall behind lose events.
type Event struct {
	Type        string    `json:"type"` // placement, progress, completed, cancelled
	RoutesDone  int       `json:"routesDone"`
	RoutesTotal int       `json:"routesTotal"`
	Assigned    int       `json:"assigned"`
	Unassigned  int       `json:"unassigned"`
	CurrentDate time.Time `json:"currentDate,omitempty"`
	ElapsedMs   int64     `json:"elapsedMs"`
}

// Driver orchestrates placement then assignment and assembles the run
// summary.
type Driver struct {
	cfg     *config.Config
	log     zerolog.Logger
	OnEvent func(Event)
}

func NewDriver(cfg *config.Config) *Driver {
	return &Driver{cfg: cfg, log: logging.With("engine")}
}

// ValidateDataset fails fast on rows the engine cannot run on. The error
// names the offending row.
func ValidateDataset(ds *model.Dataset) error {
	if len(ds.Vehicles) == 0 {
		return fmt.Errorf("%w: no vehicles", ErrInvalidInput)
	}
	known := make(map[int64]bool, len(ds.Locations))
	for _, l := range ds.Locations {
		known[l.ID] = true
	}
	for _, r := range ds.Routes {
		if r.DistanceKm <= 0 {
			return fmt.Errorf("%w: route %d has non-positive distance %.2f", ErrInvalidInput, r.ID, r.DistanceKm)
		}
		if !r.End.After(r.Start) {
			return fmt.Errorf("%w: route %d ends at or before its start", ErrInvalidInput, r.ID)
		}
		if len(r.Segments) == 0 {
			return fmt.Errorf("%w: route %d has no segments", ErrInvalidInput, r.ID)
		}
		for _, s := range r.Segments {
			if !known[s.StartLocID] {
				return fmt.Errorf("%w: route %d segment %d references unknown location %d", ErrInvalidInput, r.ID, s.Seq, s.StartLocID)
			}
			if !known[s.EndLocID] {
				return fmt.Errorf("%w: route %d segment %d references unknown location %d", ErrInvalidInput, r.ID, s.Seq, s.EndLocID)
			}
		}
	}
	return nil
}

func (d *Driver) emit(ev Event) {
	if d.OnEvent != nil {
		d.OnEvent(ev)
	}
}

// Run executes the two phases over the dataset and returns the full
// result. Cancellation through ctx returns the partial log with the
// summary flagged cancelled.
func (d *Driver) Run(ctx context.Context, ds *model.Dataset) (*model.RunResult, error) {
	start := time.Now()

	if err := ValidateDataset(ds); err != nil {
		return nil, err
	}

	routes := append([]model.Route(nil), ds.Routes...)
	SortRoutes(routes)

	cacheSize := 0
	if d.cfg.Performance.UseRelationCache {
		cacheSize = d.cfg.Performance.RelationCacheSize
	}
	g := graph.NewIndex(ds.Edges, cacheSize)

	placement := Place(ds.Vehicles, routes, ds.Locations, d.cfg)
	d.log.Info().
		Int("vehicles", len(ds.Vehicles)).
		Int("locationsUsed", placement.LocationsUsed).
		Str("strategy", placement.Strategy).
		Float64("maxConcentration", placement.MaxConcentration).
		Msg("placement complete")
	d.emit(Event{Type: "placement", RoutesTotal: len(routes), ElapsedMs: time.Since(start).Milliseconds()})

	runStart := time.Now()
	var t0 time.Time
	if len(routes) > 0 {
		t0 = routes[0].Start
	} else {
		t0 = runStart
	}
	ss := NewStateStore(ds.Vehicles, placement.Placements, t0, g, d.cfg)

	total := len(routes)
	lastDay := t0
	interval := d.cfg.Performance.ProgressReportInterval

	progress := func(done, assigned, unassigned int, at time.Time) {
		byInterval := interval > 0 && done%interval == 0
		byDay := d.cfg.Performance.ProgressReportDays > 0 &&
			at.Sub(lastDay) >= time.Duration(d.cfg.Performance.ProgressReportDays)*24*time.Hour
		if !byInterval && !byDay {
			return
		}
		lastDay = at
		d.emit(Event{
			Type:        "progress",
			RoutesDone:  done,
			RoutesTotal: total,
			Assigned:    assigned,
			Unassigned:  unassigned,
			CurrentDate: at,
			ElapsedMs:   time.Since(start).Milliseconds(),
		})
		d.log.Debug().Int("done", done).Int("total", total).
			Int("assigned", assigned).Int("unassigned", unassigned).
			Msg("assignment progress")
	}

	res, err := Assign(ctx, routes, ss, g, d.cfg, progress)
	if err != nil {
		d.log.Error().Err(err).Msg("assignment aborted")
		return nil, err
	}

	result := &model.RunResult{
		Assignments:   res.Assignments,
		Unassigned:    res.Unassigned,
		VehicleStates: ss.States(),
	}
	result.Summary = buildSummary(result, placement, res.Cancelled, total, time.Since(start))

	evType := "completed"
	if res.Cancelled {
		evType = "cancelled"
	}
	d.emit(Event{
		Type:        evType,
		RoutesDone:  len(res.Assignments) + len(res.Unassigned),
		RoutesTotal: total,
		Assigned:    len(res.Assignments),
		Unassigned:  len(res.Unassigned),
		ElapsedMs:   time.Since(start).Milliseconds(),
	})
	d.log.Info().
		Int("assigned", len(res.Assignments)).
		Int("unassigned", len(res.Unassigned)).
		Bool("cancelled", res.Cancelled).
		Dur("elapsed", time.Since(start)).
		Float64("totalCost", result.Summary.TotalCost).
		Msg("run finished")

	return result, nil
}

func buildSummary(res *model.RunResult, placement *model.PlacementResult, cancelled bool, totalRoutes int, elapsed time.Duration) model.RunSummary {
	sum := model.RunSummary{
		RoutesTotal:        totalRoutes,
		RoutesAssigned:     len(res.Assignments),
		RoutesUnassigned:   len(res.Unassigned),
		UnassignedByReason: map[string]int{},
		Cancelled:          cancelled,
		DurationMs:         elapsed.Milliseconds(),
		Placement:          placement,
	}
	for _, u := range res.Unassigned {
		for reason, n := range u.Reasons {
			sum.UnassignedByReason[reason] += n
		}
	}
	for _, st := range res.VehicleStates {
		sum.TotalRelocationCost += st.TotalRelocationCost
		sum.TotalOverageCost += st.TotalOverageCost
		sum.TotalServiceCost += st.TotalServiceCost
		sum.TotalRelocations += st.TotalRelocations
		sum.TotalServices += st.TotalServiceCount
	}
	for _, a := range res.Assignments {
		sum.TotalOverageKm += a.OverageKm
	}
	sum.TotalCost = sum.TotalRelocationCost + sum.TotalOverageCost + sum.TotalServiceCost
	return sum
}
