package engine

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestAdvanceBooksRouteKilometers(t *testing.T) {
	cfg := testConfig()
	g := mkGraph()
	ss := storeFor(g, cfg, at(0, 8), mkVehicle(1, 10))

	r := mkRoute(1, 10, 10, 100, at(0, 8), at(0, 12))
	snap := ss.SnapshotForScoring(1, r.Start)
	bd, _ := ScoreCandidate(snap, r, g, cfg)

	asg, err := ss.Advance(1, r, bd)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if asg.VehicleKmAfter != asg.VehicleKmBefore+100 {
		t.Fatalf("km delta: before=%d after=%d", asg.VehicleKmBefore, asg.VehicleKmAfter)
	}
	st := ss.States()[1]
	if st.KmThisLeaseYear != 100 {
		t.Fatalf("lease year km: got %d want 100", st.KmThisLeaseYear)
	}
	if st.CurrentLocationID != 10 {
		t.Fatalf("location: got %d want 10", st.CurrentLocationID)
	}
	if !st.AvailableFrom.Equal(r.End) {
		t.Fatalf("available from: got %v want %v", st.AvailableFrom, r.End)
	}
	if st.LastRouteID == nil || *st.LastRouteID != 1 {
		t.Fatalf("last route: got %v", st.LastRouteID)
	}
}

func TestAdvanceRelocationBooksEdgeKilometers(t *testing.T) {
	cfg := testConfig()
	g := mkGraph(mkEdge(1, 20, 10, 300, 3.5))
	ss := storeFor(g, cfg, at(0, 8), mkVehicle(1, 20))

	r := mkRoute(1, 10, 40, 100, at(0, 8), at(0, 12))
	snap := ss.SnapshotForScoring(1, r.Start)
	bd, _ := ScoreCandidate(snap, r, g, cfg)
	asg, err := ss.Advance(1, r, bd)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !asg.RequiresRelocation {
		t.Fatal("relocation expected")
	}
	st := ss.States()[1]
	// Edge km plus route km land on every counter.
	if st.CurrentOdometerKm != 400 {
		t.Fatalf("odometer: got %d want 400", st.CurrentOdometerKm)
	}
	if st.KmThisLeaseYear != 400 {
		t.Fatalf("lease year: got %d want 400", st.KmThisLeaseYear)
	}
	if len(st.Relocations) != 1 {
		t.Fatalf("relocation window entries: got %d", len(st.Relocations))
	}
	// The assignment record invariant stays route-distance based.
	if asg.VehicleKmAfter != asg.VehicleKmBefore+100 {
		t.Fatalf("record km delta: before=%d after=%d", asg.VehicleKmBefore, asg.VehicleKmAfter)
	}
	if math.Abs(st.TotalRelocationCost-1825) > 1e-9 {
		t.Fatalf("relocation cost total: got %.2f", st.TotalRelocationCost)
	}
}

func TestLeaseRollAtBoundary(t *testing.T) {
	cfg := testConfig()
	g := mkGraph()
	ss := storeFor(g, cfg, at(0, 8), mkVehicle(1, 10))

	// Drive the annual counter up inside 2024.
	long := mkRoute(1, 10, 10, 149950, at(10, 8), at(12, 8))
	snap := ss.SnapshotForScoring(1, long.Start)
	bd, _ := ScoreCandidate(snap, long, g, cfg)
	if _, err := ss.Advance(1, long, bd); err != nil {
		t.Fatalf("advance: %v", err)
	}

	// Scoring just before the lease end sees the overage.
	dec30 := time.Date(2024, 12, 30, 8, 0, 0, 0, time.UTC)
	snap = ss.SnapshotForScoring(1, dec30)
	if snap.KmThisLeaseYear != 149950 {
		t.Fatalf("lease year before roll: got %d", snap.KmThisLeaseYear)
	}
	r := mkRoute(2, 10, 10, 200, dec30, dec30.Add(4*time.Hour))
	bd, _ = ScoreCandidate(snap, r, g, cfg)
	if math.Abs(bd.Overage-138.0) > 1e-9 {
		t.Fatalf("overage before roll: got %.2f want 138", bd.Overage)
	}

	// Scoring past the boundary sees a fresh year: the roll applies to
	// the shadow copy first.
	jan2 := time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)
	snap = ss.SnapshotForScoring(1, jan2)
	if snap.KmThisLeaseYear != 0 || snap.LeaseCycleNumber != 2 {
		t.Fatalf("rolled snapshot: km=%d cycle=%d", snap.KmThisLeaseYear, snap.LeaseCycleNumber)
	}
	r2 := mkRoute(3, 10, 10, 200, jan2, jan2.Add(4*time.Hour))
	bd, _ = ScoreCandidate(snap, r2, g, cfg)
	if bd.Overage != 0 {
		t.Fatalf("overage after roll: got %.2f want 0", bd.Overage)
	}

	// The live record rolls only on commit.
	if live := ss.States()[1]; live.LeaseCycleNumber != 1 {
		t.Fatalf("live state rolled without commit: cycle=%d", live.LeaseCycleNumber)
	}
	if _, err := ss.Advance(1, r2, bd); err != nil {
		t.Fatalf("advance: %v", err)
	}
	st := ss.States()[1]
	if st.LeaseCycleNumber != 2 || st.KmThisLeaseYear != 200 {
		t.Fatalf("post-commit state: cycle=%d km=%d", st.LeaseCycleNumber, st.KmThisLeaseYear)
	}
	if !st.LeaseEndDate.After(jan2) {
		t.Fatalf("lease end not advanced: %v", st.LeaseEndDate)
	}
}

func TestServicePerformedDuringAdvance(t *testing.T) {
	cfg := testConfig()
	g := mkGraph()
	v := mkVehicle(1, 10)
	v.ServiceIntervalKm = 1000 // small interval so one route crosses it
	ss := storeFor(g, cfg, at(0, 8), v)

	// First route exhausts interval + tolerance.
	r1 := mkRoute(1, 10, 10, 2500, at(0, 8), at(1, 8))
	snap := ss.SnapshotForScoring(1, r1.Start)
	bd, _ := ScoreCandidate(snap, r1, g, cfg)
	if bd.NeedsService {
		t.Fatal("fresh vehicle should not need service")
	}
	if _, err := ss.Advance(1, r1, bd); err != nil {
		t.Fatalf("advance: %v", err)
	}

	// Second route: counter is over interval+tolerance, service happens
	// inside Advance.
	r2 := mkRoute(2, 10, 10, 100, at(5, 8), at(5, 12))
	snap = ss.SnapshotForScoring(1, r2.Start)
	bd, _ = ScoreCandidate(snap, r2, g, cfg)
	if !bd.NeedsService || bd.ServicePenalty != cfg.ServicePolicy.PenaltyPLN {
		t.Fatalf("service penalty expected in scoring: %+v", bd)
	}
	asg, err := ss.Advance(1, r2, bd)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !asg.RequiresService {
		t.Fatal("service expected during advance")
	}
	if asg.ServiceCost != cfg.ServicePolicy.CostPLN {
		t.Fatalf("service cost: got %.2f", asg.ServiceCost)
	}
	st := ss.States()[1]
	if st.TotalServiceCount != 1 {
		t.Fatalf("service count: got %d", st.TotalServiceCount)
	}
	// Counter reset then the new route's km booked.
	if st.KmSinceLastService != 100 {
		t.Fatalf("km since service: got %d want 100", st.KmSinceLastService)
	}
}

func TestPruneSwapWindow(t *testing.T) {
	cfg := testConfig()
	g := mkGraph(mkEdge(1, 20, 10, 100, 1), mkEdge(2, 10, 20, 100, 1))
	ss := storeFor(g, cfg, at(0, 8), mkVehicle(1, 20))

	// Relocate once on day 0.
	r1 := mkRoute(1, 10, 20, 50, at(0, 8), at(0, 12))
	snap := ss.SnapshotForScoring(1, r1.Start)
	bd, _ := ScoreCandidate(snap, r1, g, cfg)
	if _, err := ss.Advance(1, r1, bd); err != nil {
		t.Fatalf("advance: %v", err)
	}
	ss.PruneSwapWindow(1, r1.Start)
	if got := len(ss.States()[1].Relocations); got != 1 {
		t.Fatalf("window entries: got %d want 1", got)
	}

	// 91 days later the entry ages out.
	ss.PruneSwapWindow(1, at(91, 8))
	if got := len(ss.States()[1].Relocations); got != 0 {
		t.Fatalf("window entries after prune: got %d want 0", got)
	}
}

func TestAdvanceWithoutPathIsInternal(t *testing.T) {
	cfg := testConfig()
	g := mkGraph()
	ss := storeFor(g, cfg, at(0, 8), mkVehicle(1, 20))

	r := mkRoute(1, 10, 10, 100, at(0, 8), at(0, 12))
	_, err := ss.Advance(1, r, Breakdown{})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	cfg := testConfig()
	g := mkGraph()
	ss := storeFor(g, cfg, at(0, 8), mkVehicle(1, 10))

	snap := ss.SnapshotForScoring(1, at(0, 8))
	snap.CurrentOdometerKm = 999999
	snap.Relocations = append(snap.Relocations, ss.States()[1].Relocations...)

	if ss.States()[1].CurrentOdometerKm != 0 {
		t.Fatal("snapshot mutation leaked into live state")
	}
}
