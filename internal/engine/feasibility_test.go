package engine

import (
	"testing"
	"time"

	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
)

func TestAvailabilityBoundary(t *testing.T) {
	cfg := testConfig()
	g := mkGraph()
	ss := storeFor(g, cfg, at(0, 8), mkVehicle(1, 10))

	// Exactly available at route start: feasible.
	snap := ss.SnapshotForScoring(1, at(0, 8))
	snap.AvailableFrom = at(0, 8)
	r := mkRoute(1, 10, 10, 100, at(0, 8), at(0, 12))
	if ok, reason := CheckFeasibility(snap, r, g, cfg); !ok {
		t.Fatalf("exact availability should be feasible, got %s", reason)
	}

	// One minute later: not.
	snap.AvailableFrom = at(0, 8).Add(time.Minute)
	if ok, reason := CheckFeasibility(snap, r, g, cfg); ok || reason != ReasonTime {
		t.Fatalf("late availability: got ok=%v reason=%s", ok, reason)
	}
}

func TestRelocationTravelTimeCounts(t *testing.T) {
	cfg := testConfig()
	g := mkGraph(mkEdge(1, 20, 10, 300, 3.5))
	ss := storeFor(g, cfg, at(0, 8), mkVehicle(1, 20))

	r := mkRoute(1, 10, 10, 100, at(0, 8), at(0, 12))

	// Available 3.5h before start: arrival is exactly on time.
	snap := ss.SnapshotForScoring(1, at(0, 8))
	snap.AvailableFrom = at(0, 8).Add(-time.Duration(3.5 * float64(time.Hour)))
	if ok, reason := CheckFeasibility(snap, r, g, cfg); !ok {
		t.Fatalf("exact arrival should be feasible, got %s", reason)
	}

	// A minute less and the vehicle cannot reach the start in time.
	snap.AvailableFrom = snap.AvailableFrom.Add(time.Minute)
	if ok, reason := CheckFeasibility(snap, r, g, cfg); ok || reason != ReasonTime {
		t.Fatalf("unreachable start: got ok=%v reason=%s", ok, reason)
	}
}

func TestNoPathRejection(t *testing.T) {
	cfg := testConfig()
	g := mkGraph()
	ss := storeFor(g, cfg, at(0, 8), mkVehicle(1, 5))
	snap := ss.SnapshotForScoring(1, at(0, 8))

	r := mkRoute(1, 99, 99, 100, at(0, 8), at(0, 12))
	if ok, reason := CheckFeasibility(snap, r, g, cfg); ok || reason != ReasonNoPath {
		t.Fatalf("missing edge: got ok=%v reason=%s", ok, reason)
	}
}

func TestSwapPolicyWindow(t *testing.T) {
	cfg := testConfig() // max 1 swap per 90 days
	g := mkGraph(mkEdge(1, 20, 10, 300, 3.5))
	ss := storeFor(g, cfg, at(0, 8), mkVehicle(1, 20))

	snap := ss.SnapshotForScoring(1, at(31, 8))
	snap.Relocations = []model.Relocation{{At: at(4, 0), FromID: 30, ToID: 20}}

	r := mkRoute(1, 10, 10, 100, at(31, 8), at(31, 12))
	if ok, reason := CheckFeasibility(snap, r, g, cfg); ok || reason != ReasonSwap {
		t.Fatalf("swap policy should block: got ok=%v reason=%s", ok, reason)
	}

	// The same relocation outside the trailing window no longer counts.
	snap.Relocations = []model.Relocation{{At: at(31, 8).AddDate(0, 0, -91), FromID: 30, ToID: 20}}
	if ok, reason := CheckFeasibility(snap, r, g, cfg); !ok {
		t.Fatalf("stale relocation should not block: got %s", reason)
	}

	// No relocation required: the swap policy does not apply.
	snap.Relocations = []model.Relocation{{At: at(4, 0), FromID: 30, ToID: 20}}
	snap.CurrentLocationID = 10
	if ok, reason := CheckFeasibility(snap, r, g, cfg); !ok {
		t.Fatalf("no-relocation route should pass swap policy: got %s", reason)
	}
}

func TestLifetimeLimitHard(t *testing.T) {
	cfg := testConfig()
	g := mkGraph()
	v := mkVehicle(1, 10)
	v.LeasingLimitKm = 500000 // lifetime flavor
	v.CurrentOdometerKm = 499950
	ss := storeFor(g, cfg, at(0, 8), v)
	snap := ss.SnapshotForScoring(1, at(0, 8))

	r := mkRoute(1, 10, 10, 100, at(0, 8), at(0, 12))
	if ok, reason := CheckFeasibility(snap, r, g, cfg); ok || reason != ReasonLifetime {
		t.Fatalf("lifetime limit should block: got ok=%v reason=%s", ok, reason)
	}

	// A shorter route that fits is allowed.
	r = mkRoute(2, 10, 10, 50, at(0, 8), at(0, 12))
	if ok, reason := CheckFeasibility(snap, r, g, cfg); !ok {
		t.Fatalf("within lifetime limit should pass: got %s", reason)
	}
}

func TestLifetimeIncludesRelocationDistance(t *testing.T) {
	cfg := testConfig()
	g := mkGraph(mkEdge(1, 20, 10, 80, 1))
	v := mkVehicle(1, 20)
	v.LeasingLimitKm = 500000
	v.CurrentOdometerKm = 499900 // 100 km headroom
	ss := storeFor(g, cfg, at(0, 8), v)
	snap := ss.SnapshotForScoring(1, at(0, 8))

	// Route alone fits (50), but relocation (80) pushes past the limit.
	r := mkRoute(1, 10, 10, 50, at(0, 8), at(0, 12))
	if ok, reason := CheckFeasibility(snap, r, g, cfg); ok || reason != ReasonLifetime {
		t.Fatalf("relocation km must count against lifetime: got ok=%v reason=%s", ok, reason)
	}
}
