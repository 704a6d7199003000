package engine

import (
	"math"
	"sort"
	"time"

	"github.com/TechniCodeCamp2025/fleet-api/internal/config"
	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
)

// AnalyzeDemand counts routes starting at each location within the first
// lookaheadDays of the route stream. Routes with no derivable start are
// discarded.
func AnalyzeDemand(routes []model.Route, lookaheadDays int) map[int64]int {
	demand := map[int64]int{}
	if len(routes) == 0 {
		return demand
	}
	t0 := routes[0].Start
	for _, r := range routes {
		if r.Start.Before(t0) {
			t0 = r.Start
		}
	}
	cutoff := t0.Add(time.Duration(lookaheadDays) * 24 * time.Hour)
	for _, r := range routes {
		if !r.Start.Before(cutoff) {
			continue
		}
		if loc, ok := r.StartLocationID(); ok {
			demand[loc]++
		}
	}
	return demand
}

// Place computes the initial vehicle positioning from early-window
// demand. Every vehicle is placed exactly once.
func Place(vehicles []model.Vehicle, routes []model.Route, locations []model.Location, cfg *config.Config) *model.PlacementResult {
	demand := AnalyzeDemand(routes, cfg.Placement.LookaheadDays)

	var placements map[int64]int64
	strategy := cfg.Placement.Strategy
	if len(demand) == 0 {
		placements = fallbackPlacement(vehicles, locations)
	} else if strategy == config.StrategyCostMatrix {
		placements = costMatrixPlacement(vehicles, demand, cfg)
	} else {
		strategy = config.StrategyProportional
		placements = proportionalPlacement(vehicles, demand, cfg)
	}

	res := &model.PlacementResult{
		Placements: placements,
		Demand:     demand,
		Strategy:   strategy,
	}
	counts := map[int64]int{}
	atDemand := 0
	for _, loc := range placements {
		counts[loc]++
		if demand[loc] > 0 {
			atDemand++
		}
	}
	res.LocationsUsed = len(counts)
	for _, n := range counts {
		if n > res.MaxAtOne {
			res.MaxAtOne = n
		}
	}
	if len(placements) > 0 {
		res.MaxConcentration = float64(res.MaxAtOne) / float64(len(placements))
		res.DemandCoverage = float64(atDemand) / float64(len(placements))
	}
	return res
}

type locDemand struct {
	loc    int64
	demand int
}

// sortedByDemand orders locations by descending demand, ascending id on
// ties, for deterministic allocation.
func sortedByDemand(demand map[int64]int) []locDemand {
	out := make([]locDemand, 0, len(demand))
	for loc, d := range demand {
		out = append(out, locDemand{loc, d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].demand != out[j].demand {
			return out[i].demand > out[j].demand
		}
		return out[i].loc < out[j].loc
	})
	return out
}

func concentrationCap(nVehicles int, cfg *config.Config) int {
	if cfg.Placement.MaxVehiclesPerLocation > 0 {
		return cfg.Placement.MaxVehiclesPerLocation
	}
	n := int(float64(nVehicles) * cfg.Placement.MaxConcentration)
	if n < 1 {
		n = 1
	}
	return n
}

func sortedVehicleIDs(vehicles []model.Vehicle) []int64 {
	ids := make([]int64, len(vehicles))
	for i, v := range vehicles {
		ids[i] = v.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// proportionalPlacement distributes the fleet over locations in
// proportion to demand, capped per location. Remaining vehicles spill
// down the demand ranking while any location has room; if every ranked
// location is at the cap, the leftovers land on the top-demand location
// so that each vehicle is placed exactly once.
func proportionalPlacement(vehicles []model.Vehicle, demand map[int64]int, cfg *config.Config) map[int64]int64 {
	ranked := sortedByDemand(demand)
	ids := sortedVehicleIDs(vehicles)
	maxPer := concentrationCap(len(vehicles), cfg)

	totalDemand := 0
	for _, ld := range ranked {
		totalDemand += ld.demand
	}

	placements := make(map[int64]int64, len(ids))
	counts := map[int64]int{}
	next := 0

	place := func(loc int64, n int) {
		for i := 0; i < n && next < len(ids); i++ {
			placements[ids[next]] = loc
			counts[loc]++
			next++
		}
	}

	for _, ld := range ranked {
		if next >= len(ids) {
			break
		}
		need := int(float64(len(ids)) * float64(ld.demand) / float64(totalDemand))
		if need < 1 {
			need = 1
		}
		if need > maxPer {
			need = maxPer
		}
		if rem := len(ids) - next; need > rem {
			need = rem
		}
		place(ld.loc, need)
	}

	// Spill pass: fill remaining capacity in demand order.
	for _, ld := range ranked {
		if next >= len(ids) {
			break
		}
		if room := maxPer - counts[ld.loc]; room > 0 {
			place(ld.loc, room)
		}
	}

	// Everything at the cap: overflow to the top-demand location.
	if next < len(ids) && len(ranked) > 0 {
		place(ranked[0].loc, len(ids)-next)
	}
	return placements
}

// costMatrixPlacement assigns each vehicle to the location minimizing
// 1000/ln(demand+2) plus a concentration penalty that rises quadratically
// as the location approaches the cap and steeply beyond it.
func costMatrixPlacement(vehicles []model.Vehicle, demand map[int64]int, cfg *config.Config) map[int64]int64 {
	ranked := sortedByDemand(demand)
	ids := sortedVehicleIDs(vehicles)
	maxPer := concentrationCap(len(vehicles), cfg)

	base := make([]float64, len(ranked))
	for i, ld := range ranked {
		base[i] = 1000.0 / math.Log(float64(ld.demand)+2)
	}

	placements := make(map[int64]int64, len(ids))
	counts := map[int64]int{}

	for _, vid := range ids {
		bestIdx := -1
		bestCost := math.Inf(1)
		for i, ld := range ranked {
			cost := base[i] + concentrationPenalty(counts[ld.loc], maxPer)
			if cost < bestCost {
				bestCost = cost
				bestIdx = i
			}
		}
		loc := ranked[bestIdx].loc
		placements[vid] = loc
		counts[loc]++
	}
	return placements
}

func concentrationPenalty(current, maxPer int) float64 {
	if current >= maxPer {
		excess := float64(current - maxPer + 1)
		return 5000 * math.Pow(excess, 1.5)
	}
	ratio := float64(current) / float64(maxPer)
	if ratio > 0.7 {
		f := (ratio - 0.7) / 0.3
		return 1000 * f * f
	}
	return 0
}

// fallbackPlacement applies when the demand window is empty: all
// vehicles at the first hub, or the first location if no hub exists.
func fallbackPlacement(vehicles []model.Vehicle, locations []model.Location) map[int64]int64 {
	sorted := append([]model.Location(nil), locations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var target int64 = 1
	if len(sorted) > 0 {
		target = sorted[0].ID
		for _, l := range sorted {
			if l.IsHub {
				target = l.ID
				break
			}
		}
	}
	placements := make(map[int64]int64, len(vehicles))
	for _, v := range vehicles {
		placements[v.ID] = target
	}
	return placements
}
