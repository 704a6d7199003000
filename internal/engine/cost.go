package engine

import (
	"math"

	"github.com/TechniCodeCamp2025/fleet-api/internal/config"
	"github.com/TechniCodeCamp2025/fleet-api/internal/graph"
	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
)

// RoundKm converts a fractional distance to the integer kilometers added
// to state counters. Monetary costs stay floating point.
func RoundKm(km float64) int {
	return int(math.Round(km))
}

// Breakdown is the scoring breakdown for one candidate vehicle on one
// route. The candidate score is Relocation + Overage + ServicePenalty;
// the service cost itself is accounted at commit, not scored here.
type Breakdown struct {
	Relocation     float64
	Overage        float64
	ServicePenalty float64
	OverageKm      int
	NeedsService   bool

	RequiresRelocation bool
	Edge               model.LocationEdge // valid only when RequiresRelocation
}

func (b Breakdown) Score() float64 {
	return b.Relocation + b.Overage + b.ServicePenalty
}

// RelocationCost prices a single direct relocation edge.
func RelocationCost(e model.LocationEdge, cfg *config.Config) float64 {
	return cfg.Costs.RelocationBasePLN +
		e.DistanceKm*cfg.Costs.RelocationPerKmPLN +
		e.TimeHours*cfg.Costs.RelocationPerHourPLN
}

// OverageCost charges the kilometers by which the projected lease-year
// total would exceed the annual limit. Lifetime limits never incur
// overage; they are a feasibility matter.
func OverageCost(kmThisLeaseYear, routeKm, annualLimitKm int, cfg *config.Config) (float64, int) {
	future := kmThisLeaseYear + routeKm
	if future <= annualLimitKm {
		return 0, 0
	}
	over := future - annualLimitKm
	return float64(over) * cfg.Costs.OveragePerKmPLN, over
}

// needsService reports whether the counter has already run past the
// interval plus tolerance. Services have slack; this only fires once the
// slack is exhausted.
func needsService(st *model.VehicleState, cfg *config.Config) bool {
	return st.KmSinceLastService > st.ServiceIntervalKm+cfg.ServicePolicy.ToleranceKm
}

// ScoreCandidate computes the immediate score for assigning the snapshot
// st to route r. ok is false when a relocation would be required but no
// edge exists; the feasibility kernel normally rejects such candidates
// first.
func ScoreCandidate(st *model.VehicleState, r model.Route, g *graph.Index, cfg *config.Config) (Breakdown, bool) {
	var bd Breakdown

	startLoc, _ := r.StartLocationID()
	if st.CurrentLocationID != startLoc {
		e, ok := g.Lookup(st.CurrentLocationID, startLoc)
		if !ok {
			return bd, false
		}
		bd.RequiresRelocation = true
		bd.Edge = e
		bd.Relocation = RelocationCost(e, cfg)
	}

	bd.Overage, bd.OverageKm = OverageCost(st.KmThisLeaseYear, RoundKm(r.DistanceKm), st.AnnualLimitKm, cfg)

	if needsService(st, cfg) {
		bd.NeedsService = true
		bd.ServicePenalty = cfg.ServicePolicy.PenaltyPLN
	}
	return bd, true
}
