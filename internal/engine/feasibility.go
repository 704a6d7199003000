package engine

import (
	"time"

	"github.com/TechniCodeCamp2025/fleet-api/internal/config"
	"github.com/TechniCodeCamp2025/fleet-api/internal/graph"
	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
)

// Reason is the closed set of rejection codes a feasibility check can
// produce for a candidate.
type Reason string

const (
	ReasonTime     Reason = "TIME"
	ReasonLifetime Reason = "LIFETIME"
	ReasonSwap     Reason = "SWAP"
	ReasonNoPath   Reason = "NO_PATH"
	// ReasonServiceBlocked is reserved for hard service enforcement and
	// not produced in the default configuration.
	ReasonServiceBlocked Reason = "SERVICE_BLOCKED"
)

func hoursDur(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// swapsInWindow counts relocation entries inside [at - period, at).
func swapsInWindow(st *model.VehicleState, at time.Time, cfg *config.Config) int {
	cutoff := at.AddDate(0, 0, -cfg.SwapPolicy.SwapPeriodDays)
	n := 0
	for _, rl := range st.Relocations {
		if !rl.At.Before(cutoff) && rl.At.Before(at) {
			n++
		}
	}
	return n
}

// CheckFeasibility evaluates the hard constraints for the snapshot st on
// route r. The snapshot must already have the lease roll applied. A
// vehicle exactly available at the route start is feasible; one minute
// later is not.
func CheckFeasibility(st *model.VehicleState, r model.Route, g *graph.Index, cfg *config.Config) (bool, Reason) {
	startLoc, ok := r.StartLocationID()
	if !ok {
		return false, ReasonNoPath
	}

	// Availability accounts for a pending service: the vehicle goes to
	// the workshop as soon as it is free, then travels.
	availability := st.AvailableFrom
	if needsService(st, cfg) {
		availability = availability.Add(time.Duration(cfg.ServicePolicy.DurationHours) * time.Hour)
	}
	if availability.After(r.Start) {
		return false, ReasonTime
	}

	relocKm := 0
	if st.CurrentLocationID != startLoc {
		e, found := g.Lookup(st.CurrentLocationID, startLoc)
		if !found {
			return false, ReasonNoPath
		}
		if availability.Add(hoursDur(e.TimeHours)).After(r.Start) {
			return false, ReasonTime
		}
		if swapsInWindow(st, r.Start, cfg) >= cfg.SwapPolicy.MaxSwapsPerPeriod {
			return false, ReasonSwap
		}
		relocKm = RoundKm(e.DistanceKm)
	}

	if st.TotalContractLimitKm > 0 {
		future := st.TotalLifetimeKm + RoundKm(r.DistanceKm) + relocKm
		if future > st.TotalContractLimitKm {
			return false, ReasonLifetime
		}
	}

	return true, ""
}
