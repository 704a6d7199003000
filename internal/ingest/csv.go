// Package ingest parses the five input tables (CSV or JSON) into domain
// entities. The engine never touches files; everything arrives through
// here. Parsing rejects bad datetimes and ids, negative relation distance
// or time, and orphan segments; route-level checks (distance, times,
// segments, location ids) run in engine.ValidateDataset.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
)

// Accepted datetime layouts, tried in order.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func parseTime(s, field string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable datetime %q in %s", s, field)
}

// isNull treats empty strings and the textual placeholders the upstream
// exports use as missing values.
func isNull(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "N/A", "NA", "NULL", "NONE":
		return true
	}
	return false
}

func parseNullableID(s, field string) (*int64, error) {
	if isNull(s) {
		return nil, nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad id %q in %s", s, field)
	}
	return &v, nil
}

type locationRow struct {
	ID    int64   `csv:"id"`
	Name  string  `csv:"name"`
	Lat   float64 `csv:"lat"`
	Long  float64 `csv:"long"`
	IsHub int     `csv:"is_hub"`
}

type relationRow struct {
	ID    int64   `csv:"id"`
	Loc1  int64   `csv:"id_loc_1"`
	Loc2  int64   `csv:"id_loc_2"`
	Dist  float64 `csv:"dist"`
	Hours float64 `csv:"time"`
}

type vehicleRow struct {
	ID                int64  `csv:"id"`
	Registration      string `csv:"registration"`
	Brand             string `csv:"brand"`
	ServiceIntervalKm int    `csv:"service_interval_km"`
	LeasingStartKm    int    `csv:"leasing_start_km"`
	LeasingLimitKm    int    `csv:"leasing_limit_km"`
	LeasingStartDate  string `csv:"leasing_start_date"`
	LeasingEndDate    string `csv:"leasing_end_date"`
	CurrentOdometerKm int    `csv:"current_odometer_km"`
	CurrentLocationID string `csv:"current_location_id"`
}

type routeRow struct {
	ID         int64   `csv:"id"`
	Start      string  `csv:"start_datetime"`
	End        string  `csv:"end_datetime"`
	DistanceKm float64 `csv:"distance_km"`
}

type segmentRow struct {
	ID         int64  `csv:"id"`
	RouteID    int64  `csv:"route_id"`
	Seq        int    `csv:"seq"`
	StartLocID int64  `csv:"start_loc_id"`
	EndLocID   int64  `csv:"end_loc_id"`
	Start      string `csv:"start_datetime"`
	End        string `csv:"end_datetime"`
	RelationID string `csv:"relation_id"`
}

func decode[T any](r io.Reader, table string) ([]T, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		return nil, fmt.Errorf("read %s csv: %w", table, err)
	}
	var rows []T
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode %s csv: %w", table, err)
	}
	return rows, nil
}

func Locations(r io.Reader) ([]model.Location, error) {
	rows, err := decode[locationRow](r, "locations")
	if err != nil {
		return nil, err
	}
	out := make([]model.Location, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Location{
			ID:    row.ID,
			Name:  row.Name,
			Lat:   row.Lat,
			Long:  row.Long,
			IsHub: row.IsHub != 0,
		})
	}
	return out, nil
}

func Relations(r io.Reader) ([]model.LocationEdge, error) {
	rows, err := decode[relationRow](r, "location_relations")
	if err != nil {
		return nil, err
	}
	out := make([]model.LocationEdge, 0, len(rows))
	for _, row := range rows {
		if row.Dist < 0 || row.Hours < 0 {
			return nil, fmt.Errorf("relation %d has negative distance or time", row.ID)
		}
		out = append(out, model.LocationEdge{
			ID:         row.ID,
			FromID:     row.Loc1,
			ToID:       row.Loc2,
			DistanceKm: row.Dist,
			TimeHours:  row.Hours,
		})
	}
	return out, nil
}

func Vehicles(r io.Reader) ([]model.Vehicle, error) {
	rows, err := decode[vehicleRow](r, "vehicles")
	if err != nil {
		return nil, err
	}
	out := make([]model.Vehicle, 0, len(rows))
	for _, row := range rows {
		start, err := parseTime(row.LeasingStartDate, fmt.Sprintf("vehicle %d leasing_start_date", row.ID))
		if err != nil {
			return nil, err
		}
		end, err := parseTime(row.LeasingEndDate, fmt.Sprintf("vehicle %d leasing_end_date", row.ID))
		if err != nil {
			return nil, err
		}
		loc, err := parseNullableID(row.CurrentLocationID, fmt.Sprintf("vehicle %d current_location_id", row.ID))
		if err != nil {
			return nil, err
		}
		out = append(out, model.Vehicle{
			ID:                row.ID,
			Registration:      row.Registration,
			Brand:             row.Brand,
			ServiceIntervalKm: row.ServiceIntervalKm,
			LeasingStartKm:    row.LeasingStartKm,
			LeasingLimitKm:    row.LeasingLimitKm,
			LeaseStartDate:    start,
			LeaseEndDate:      end,
			CurrentOdometerKm: row.CurrentOdometerKm,
			CurrentLocationID: loc,
		})
	}
	return out, nil
}

func Routes(r io.Reader) ([]model.Route, error) {
	rows, err := decode[routeRow](r, "routes")
	if err != nil {
		return nil, err
	}
	out := make([]model.Route, 0, len(rows))
	for _, row := range rows {
		start, err := parseTime(row.Start, fmt.Sprintf("route %d start_datetime", row.ID))
		if err != nil {
			return nil, err
		}
		end, err := parseTime(row.End, fmt.Sprintf("route %d end_datetime", row.ID))
		if err != nil {
			return nil, err
		}
		out = append(out, model.Route{
			ID:         row.ID,
			Start:      start,
			End:        end,
			DistanceKm: row.DistanceKm,
		})
	}
	return out, nil
}

func Segments(r io.Reader) ([]model.Segment, error) {
	rows, err := decode[segmentRow](r, "segments")
	if err != nil {
		return nil, err
	}
	out := make([]model.Segment, 0, len(rows))
	for _, row := range rows {
		start, err := parseTime(row.Start, fmt.Sprintf("segment %d start_datetime", row.ID))
		if err != nil {
			return nil, err
		}
		end, err := parseTime(row.End, fmt.Sprintf("segment %d end_datetime", row.ID))
		if err != nil {
			return nil, err
		}
		rel, err := parseNullableID(row.RelationID, fmt.Sprintf("segment %d relation_id", row.ID))
		if err != nil {
			return nil, err
		}
		out = append(out, model.Segment{
			ID:         row.ID,
			RouteID:    row.RouteID,
			Seq:        row.Seq,
			StartLocID: row.StartLocID,
			EndLocID:   row.EndLocID,
			Start:      start,
			End:        end,
			RelationID: rel,
		})
	}
	return out, nil
}

// BuildDataset links segments onto their routes ordered by seq and sorts
// routes chronologically. Segments referencing unknown routes fail.
func BuildDataset(locations []model.Location, edges []model.LocationEdge, vehicles []model.Vehicle, routes []model.Route, segments []model.Segment) (*model.Dataset, error) {
	byRoute := make(map[int64][]model.Segment)
	for _, s := range segments {
		byRoute[s.RouteID] = append(byRoute[s.RouteID], s)
	}
	known := make(map[int64]bool, len(routes))
	for i := range routes {
		known[routes[i].ID] = true
		segs := byRoute[routes[i].ID]
		sort.Slice(segs, func(a, b int) bool { return segs[a].Seq < segs[b].Seq })
		routes[i].Segments = segs
	}
	for _, s := range segments {
		if !known[s.RouteID] {
			return nil, fmt.Errorf("segment %d references unknown route %d", s.ID, s.RouteID)
		}
	}
	sort.Slice(routes, func(i, j int) bool {
		if !routes[i].Start.Equal(routes[j].Start) {
			return routes[i].Start.Before(routes[j].Start)
		}
		return routes[i].ID < routes[j].ID
	})
	return &model.Dataset{
		Locations: locations,
		Edges:     edges,
		Vehicles:  vehicles,
		Routes:    routes,
	}, nil
}
