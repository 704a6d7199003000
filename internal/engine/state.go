package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/TechniCodeCamp2025/fleet-api/internal/config"
	"github.com/TechniCodeCamp2025/fleet-api/internal/graph"
	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
)

// initialAvailabilityHours places every vehicle's availability ahead of
// the first route so initial positioning is never time-blocked.
const initialAvailabilityHours = 24

const leaseYear = 365 * 24 * time.Hour

// StateStore owns all vehicle runtime states. Scoring reads go through
// SnapshotForScoring; the only mutation path is Advance, followed by
// PruneSwapWindow. Readers and the committer follow a read-write lock
// discipline so scoring may fan out while commits stay exclusive.
type StateStore struct {
	mu     sync.RWMutex
	cfg    *config.Config
	graph  *graph.Index
	states map[int64]*model.VehicleState
	ids    []int64
}

// NewStateStore seeds runtime states from vehicle specs and the placement
// map. Vehicles with a fixed current location keep it when placement has
// no entry for them.
func NewStateStore(vehicles []model.Vehicle, placements map[int64]int64, start time.Time, g *graph.Index, cfg *config.Config) *StateStore {
	ss := &StateStore{
		cfg:    cfg,
		graph:  g,
		states: make(map[int64]*model.VehicleState, len(vehicles)),
	}
	availableFrom := start.Add(-initialAvailabilityHours * time.Hour)
	for _, v := range vehicles {
		loc, ok := placements[v.ID]
		if !ok && v.CurrentLocationID != nil {
			loc = *v.CurrentLocationID
		}
		ss.states[v.ID] = &model.VehicleState{
			VehicleID:            v.ID,
			CurrentLocationID:    loc,
			CurrentOdometerKm:    v.CurrentOdometerKm,
			KmSinceLastService:   0,
			KmThisLeaseYear:      0,
			TotalLifetimeKm:      v.CurrentOdometerKm,
			AvailableFrom:        availableFrom,
			LeaseCycleNumber:     1,
			LeaseStartDate:       v.LeaseStartDate,
			LeaseEndDate:         v.LeaseEndDate,
			AnnualLimitKm:        v.AnnualLimitKm(),
			ServiceIntervalKm:    v.ServiceIntervalKm,
			TotalContractLimitKm: v.TotalContractLimitKm(),
		}
		ss.ids = append(ss.ids, v.ID)
	}
	sort.Slice(ss.ids, func(i, j int) bool { return ss.ids[i] < ss.ids[j] })
	return ss
}

// IDs returns vehicle ids in ascending order; candidate iteration in this
// order makes score ties deterministic.
func (ss *StateStore) IDs() []int64 { return ss.ids }

// rollLease advances the lease cycle until at falls before the lease end,
// resetting the annual counter on each boundary. Handles vehicles idle
// across multiple years.
func rollLease(st *model.VehicleState, at time.Time) bool {
	rolled := false
	for !at.Before(st.LeaseEndDate) {
		st.KmThisLeaseYear = 0
		st.LeaseCycleNumber++
		st.LeaseStartDate = st.LeaseEndDate
		st.LeaseEndDate = st.LeaseEndDate.Add(leaseYear)
		rolled = true
	}
	return rolled
}

// proRateAcrossLease splits route kilometers over a lease boundary the
// route straddles, proportionally by time.
func proRateAcrossLease(st *model.VehicleState, start, end time.Time, km int) (cur, next int) {
	leaseEnd := st.LeaseEndDate
	if !end.After(leaseEnd) {
		return km, 0
	}
	if !start.Before(leaseEnd) {
		return 0, km
	}
	total := end.Sub(start).Seconds()
	if total <= 0 {
		return km, 0
	}
	ratio := leaseEnd.Sub(start).Seconds() / total
	cur = int(float64(km) * ratio)
	return cur, km - cur
}

// SnapshotForScoring returns a read-only copy of the vehicle state with
// the lease roll applied as of at. The live record is untouched; the roll
// commits only through Advance.
func (ss *StateStore) SnapshotForScoring(vehicleID int64, at time.Time) *model.VehicleState {
	ss.mu.RLock()
	st := ss.states[vehicleID]
	var cp *model.VehicleState
	if st != nil {
		cp = st.Clone()
	}
	ss.mu.RUnlock()
	if cp != nil {
		rollLease(cp, at)
	}
	return cp
}

// Advance is the sole commit path for an assignment. It rolls the lease
// cycle, performs a due service, records the relocation, books the route
// kilometers and returns the assignment record. The returned error is an
// ErrInternal: state no longer satisfies its invariants.
func (ss *StateStore) Advance(vehicleID int64, r model.Route, bd Breakdown) (model.Assignment, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	st, ok := ss.states[vehicleID]
	if !ok {
		return model.Assignment{}, fmt.Errorf("%w: advance on unknown vehicle %d", ErrInternal, vehicleID)
	}

	rollLease(st, r.Start)
	ss.pruneLocked(st, r.Start)

	didService := needsService(st, ss.cfg)
	var serviceCost float64
	if didService {
		st.KmSinceLastService = 0
		st.AvailableFrom = st.AvailableFrom.Add(time.Duration(ss.cfg.ServicePolicy.DurationHours) * time.Hour)
		st.TotalServiceCount++
		serviceCost = ss.cfg.ServicePolicy.CostPLN
		st.TotalServiceCost += serviceCost
	}

	startLoc, _ := r.StartLocationID()
	endLoc, _ := r.EndLocationID()

	asg := model.Assignment{
		RouteID:         r.ID,
		VehicleID:       vehicleID,
		Date:            r.Start,
		RouteDistanceKm: r.DistanceKm,
		StartLocationID: startLoc,
		EndLocationID:   endLoc,
		RequiresService: didService,
		RelocationCost:  bd.Relocation,
		OverageCost:     bd.Overage,
		ServicePenalty:  bd.ServicePenalty,
		ServiceCost:     serviceCost,
		OverageKm:       bd.OverageKm,
		TotalCost:       bd.Score(),
	}

	if st.CurrentLocationID != startLoc {
		e, found := ss.graph.Lookup(st.CurrentLocationID, startLoc)
		if !found {
			return model.Assignment{}, fmt.Errorf("%w: advance requires relocation %d->%d with no edge", ErrInternal, st.CurrentLocationID, startLoc)
		}
		from, to := st.CurrentLocationID, startLoc
		st.Relocations = append(st.Relocations, model.Relocation{At: r.Start, FromID: from, ToID: to})
		relocKm := RoundKm(e.DistanceKm)
		st.CurrentOdometerKm += relocKm
		st.KmThisLeaseYear += relocKm
		st.TotalLifetimeKm += relocKm
		st.KmSinceLastService += relocKm
		st.TotalRelocations++
		st.TotalRelocationCost += bd.Relocation

		asg.RequiresRelocation = true
		asg.RelocationFrom = &from
		asg.RelocationTo = &to
		asg.RelocationKm = e.DistanceKm
		asg.RelocationHours = e.TimeHours
	}

	asg.VehicleKmBefore = st.CurrentOdometerKm
	asg.AnnualKmBefore = st.KmThisLeaseYear

	dist := RoundKm(r.DistanceKm)
	curYear, nextYear := proRateAcrossLease(st, r.Start, r.End, dist)
	st.CurrentOdometerKm += dist
	st.TotalLifetimeKm += dist
	st.KmSinceLastService += dist
	st.KmThisLeaseYear += curYear
	if nextYear > 0 {
		rollLease(st, r.End)
		st.KmThisLeaseYear += nextYear
	}

	st.CurrentLocationID = endLoc
	st.AvailableFrom = r.End
	rid := r.ID
	st.LastRouteID = &rid
	st.RoutesCompleted++
	st.TotalOverageCost += bd.Overage

	asg.VehicleKmAfter = st.CurrentOdometerKm
	asg.AnnualKmAfter = st.KmThisLeaseYear

	if asg.VehicleKmAfter != asg.VehicleKmBefore+dist {
		return model.Assignment{}, fmt.Errorf("%w: odometer drift on vehicle %d route %d", ErrInternal, vehicleID, r.ID)
	}
	if st.TotalContractLimitKm > 0 && st.TotalLifetimeKm > st.TotalContractLimitKm {
		return model.Assignment{}, fmt.Errorf("%w: lifetime limit crossed on vehicle %d route %d", ErrInternal, vehicleID, r.ID)
	}

	return asg, nil
}

// PruneSwapWindow discards relocation entries older than the rolling
// window. Runs after every Advance.
func (ss *StateStore) PruneSwapWindow(vehicleID int64, now time.Time) {
	ss.mu.Lock()
	if st, ok := ss.states[vehicleID]; ok {
		ss.pruneLocked(st, now)
	}
	ss.mu.Unlock()
}

func (ss *StateStore) pruneLocked(st *model.VehicleState, now time.Time) {
	cutoff := now.AddDate(0, 0, -ss.cfg.SwapPolicy.SwapPeriodDays)
	if len(st.Relocations) == 0 || !st.Relocations[0].At.Before(cutoff) {
		return
	}
	kept := st.Relocations[:0]
	for _, rl := range st.Relocations {
		if !rl.At.Before(cutoff) {
			kept = append(kept, rl)
		}
	}
	st.Relocations = kept
}

// States returns a deep copy of all final vehicle states.
func (ss *StateStore) States() map[int64]*model.VehicleState {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	out := make(map[int64]*model.VehicleState, len(ss.states))
	for id, st := range ss.states {
		out[id] = st.Clone()
	}
	return out
}
