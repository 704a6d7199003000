package engine

import (
	"time"

	"github.com/TechniCodeCamp2025/fleet-api/internal/config"
	"github.com/TechniCodeCamp2025/fleet-api/internal/graph"
	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(day, hour int) time.Time {
	return base.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour)
}

func mkRoute(id, from, to int64, dist float64, start, end time.Time) model.Route {
	return model.Route{
		ID: id, Start: start, End: end, DistanceKm: dist,
		Segments: []model.Segment{{
			ID: id * 10, RouteID: id, Seq: 1,
			StartLocID: from, EndLocID: to,
			Start: start, End: end,
		}},
	}
}

func mkVehicle(id, loc int64) model.Vehicle {
	l := loc
	return model.Vehicle{
		ID:                id,
		Registration:      "WGM 0000" + string(rune('A'+id%26)),
		Brand:             "DAF",
		ServiceIntervalKm: 110000,
		LeasingLimitKm:    150000,
		LeaseStartDate:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		LeaseEndDate:      time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		CurrentOdometerKm: 0,
		CurrentLocationID: &l,
	}
}

func mkEdge(id, from, to int64, dist, hours float64) model.LocationEdge {
	return model.LocationEdge{ID: id, FromID: from, ToID: to, DistanceKm: dist, TimeHours: hours}
}

func mkGraph(edges ...model.LocationEdge) *graph.Index {
	return graph.NewIndex(edges, 64)
}

func testConfig() *config.Config {
	return config.Default()
}

// storeFor builds a state store with each vehicle placed at its own
// current location and availability ahead of start.
func storeFor(g *graph.Index, cfg *config.Config, start time.Time, vehicles ...model.Vehicle) *StateStore {
	placements := map[int64]int64{}
	for _, v := range vehicles {
		if v.CurrentLocationID != nil {
			placements[v.ID] = *v.CurrentLocationID
		}
	}
	return NewStateStore(vehicles, placements, start, g, cfg)
}
