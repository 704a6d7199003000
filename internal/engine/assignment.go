package engine

import (
	"context"
	"sort"
	"time"

	"github.com/TechniCodeCamp2025/fleet-api/internal/config"
	"github.com/TechniCodeCamp2025/fleet-api/internal/graph"
	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
)

// AssignResult is the outcome of the assignment phase.
type AssignResult struct {
	Assignments []model.Assignment
	Unassigned  []model.UnassignedRoute
	Cancelled   bool
}

// SortRoutes orders routes chronologically, id ascending on equal start
// times. The assignment log inherits this total order.
func SortRoutes(routes []model.Route) {
	sort.Slice(routes, func(i, j int) bool {
		if !routes[i].Start.Equal(routes[j].Start) {
			return routes[i].Start.Before(routes[j].Start)
		}
		return routes[i].ID < routes[j].ID
	})
}

// filterByLookahead keeps routes starting within the first days of the
// stream; 0 keeps everything.
func filterByLookahead(routes []model.Route, days int) []model.Route {
	if days <= 0 || len(routes) == 0 {
		return routes
	}
	cutoff := routes[0].Start.Add(time.Duration(days) * 24 * time.Hour)
	out := routes[:0:0]
	for _, r := range routes {
		if r.Start.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// Assign runs the greedy chronological loop over the sorted routes. For
// each route every vehicle is snapshotted, filtered by the feasibility
// kernel and scored; the cheapest candidate commits through Advance.
// Routes no vehicle can take are logged with the rejection histogram and
// the loop continues. A cancelled context returns the partial log.
//
// onRoute, when non-nil, is called after each route with the running
// counts.
func Assign(ctx context.Context, routes []model.Route, ss *StateStore, g *graph.Index, cfg *config.Config, onRoute func(done, assigned, unassigned int, at time.Time)) (*AssignResult, error) {
	res := &AssignResult{}

	assignable := filterByLookahead(routes, cfg.Assignment.AssignmentLookaheadDays)

	for i, r := range assignable {
		if ctx.Err() != nil {
			res.Cancelled = true
			return res, nil
		}

		bestID := int64(-1)
		var bestBd Breakdown
		bestEffective := 0.0
		bestChain := 0.0
		reasons := map[string]int{}

		for _, vid := range ss.IDs() {
			snap := ss.SnapshotForScoring(vid, r.Start)
			if snap == nil {
				continue
			}
			ok, reason := CheckFeasibility(snap, r, g, cfg)
			if !ok {
				reasons[string(reason)]++
				continue
			}
			bd, ok := ScoreCandidate(snap, r, g, cfg)
			if !ok {
				reasons[string(ReasonNoPath)]++
				continue
			}

			chain := 0.0
			if cfg.Assignment.UseChainOptimization {
				chain = chainScore(snap, r, routes, i, g, cfg)
			}
			effective := bd.Score() - chain*cfg.Assignment.ChainWeight

			// Strict less keeps the lowest vehicle id on ties.
			if bestID < 0 || effective < bestEffective {
				bestID = vid
				bestBd = bd
				bestEffective = effective
				bestChain = chain
			}
		}

		if bestID < 0 {
			res.Unassigned = append(res.Unassigned, model.UnassignedRoute{
				RouteID: r.ID,
				Date:    r.Start,
				Reasons: reasons,
			})
		} else {
			asg, err := ss.Advance(bestID, r, bestBd)
			if err != nil {
				return res, err
			}
			ss.PruneSwapWindow(bestID, r.Start)
			asg.ChainScore = bestChain
			res.Assignments = append(res.Assignments, asg)
		}

		if onRoute != nil {
			onRoute(i+1, len(res.Assignments), len(res.Unassigned), r.Start)
		}
	}
	return res, nil
}

// chainScore estimates how well the vehicle is positioned for future
// routes after completing r. Each feasible follow-up scores
// 1000/(cost+100); the best chainDepth scores combine with geometrically
// diminishing weights. Swap policy is not enforced on hypothetical
// future moves.
func chainScore(snap *model.VehicleState, r model.Route, all []model.Route, idx int, g *graph.Index, cfg *config.Config) float64 {
	depth := cfg.Assignment.ChainDepth
	if depth <= 0 || idx >= len(all)-1 {
		return 0
	}

	future := snap.Clone()
	if end, ok := r.EndLocationID(); ok {
		future.CurrentLocationID = end
	}
	future.AvailableFrom = r.End
	dist := RoundKm(r.DistanceKm)
	future.CurrentOdometerKm += dist
	future.KmThisLeaseYear += dist
	future.TotalLifetimeKm += dist
	future.KmSinceLastService += dist

	horizon := r.End.Add(time.Duration(cfg.Assignment.LookAheadDays) * 24 * time.Hour)
	maxScan := idx + 1 + cfg.Assignment.MaxLookaheadRoutes
	if maxScan > len(all) {
		maxScan = len(all)
	}

	var scores []float64
	for j := idx + 1; j < maxScan; j++ {
		next := all[j]
		if next.Start.After(horizon) {
			break
		}
		if future.AvailableFrom.After(next.Start) {
			continue
		}
		nextStart, ok := next.StartLocationID()
		if !ok {
			continue
		}
		if future.CurrentLocationID != nextStart {
			e, found := g.Lookup(future.CurrentLocationID, nextStart)
			if !found {
				continue
			}
			if future.AvailableFrom.Add(hoursDur(e.TimeHours)).After(next.Start) {
				continue
			}
		}
		bd, ok := ScoreCandidate(future, next, g, cfg)
		if !ok {
			continue
		}
		scores = append(scores, 1000.0/(bd.Score()+100.0))
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
	total := 0.0
	weight := 1.0
	for i := 0; i < len(scores) && i < depth; i++ {
		total += scores[i] * weight
		weight *= 0.5
	}
	return total
}
