package ingest

import (
	"strings"
	"testing"
	"time"
)

const locationsCSV = `id,name,lat,long,is_hub
10,Warszawa,52.23,21.01,1
20,Krakow,50.06,19.94,0
40,Gdansk,54.35,18.65,0
`

const relationsCSV = `id,id_loc_1,id_loc_2,dist,time
1,20,10,300.5,3.5
2,10,20,300.5,3.6
`

const vehiclesCSV = `id,registration,brand,service_interval_km,leasing_start_km,leasing_limit_km,leasing_start_date,leasing_end_date,current_odometer_km,current_location_id
1,WGM 12345,DAF,110000,0,150000,2024-01-01 00:00:00,2024-12-31 00:00:00,12000,10
2,WGM 67890,Scania,120000,0,600000,2024-01-01 00:00:00,2024-12-31 00:00:00,250000,N/A
`

const routesCSV = `id,start_datetime,end_datetime,distance_km
1,2024-01-01 08:00:00,2024-01-01 12:00:00,100.0
2,2024-01-02 08:00:00,2024-01-02 12:00:00,90.5
`

const segmentsCSV = `id,route_id,seq,start_loc_id,end_loc_id,start_datetime,end_datetime,relation_id
11,1,2,20,10,2024-01-01 10:00:00,2024-01-01 12:00:00,1
10,1,1,10,20,2024-01-01 08:00:00,2024-01-01 10:00:00,2
20,2,1,40,40,2024-01-02 08:00:00,2024-01-02 12:00:00,N/A
`

func TestLocations(t *testing.T) {
	locs, err := Locations(strings.NewReader(locationsCSV))
	if err != nil {
		t.Fatalf("locations: %v", err)
	}
	if len(locs) != 3 {
		t.Fatalf("count: %d", len(locs))
	}
	if !locs[0].IsHub || locs[1].IsHub {
		t.Fatalf("is_hub decoding: %+v", locs)
	}
}

func TestVehiclesNullableLocation(t *testing.T) {
	vehicles, err := Vehicles(strings.NewReader(vehiclesCSV))
	if err != nil {
		t.Fatalf("vehicles: %v", err)
	}
	if vehicles[0].CurrentLocationID == nil || *vehicles[0].CurrentLocationID != 10 {
		t.Fatalf("vehicle 1 location: %+v", vehicles[0].CurrentLocationID)
	}
	if vehicles[1].CurrentLocationID != nil {
		t.Fatalf("N/A must decode to nil, got %v", *vehicles[1].CurrentLocationID)
	}
	// Limit flavor split at 200k.
	if vehicles[0].HasLifetimeLimit() {
		t.Fatal("150k limit is annual")
	}
	if !vehicles[1].HasLifetimeLimit() || vehicles[1].AnnualLimitKm() != 150000 {
		t.Fatalf("600k limit is lifetime with default annual: %+v", vehicles[1])
	}
	if !vehicles[0].LeaseStartDate.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("lease start: %v", vehicles[0].LeaseStartDate)
	}
}

func TestVehiclesBadDatetime(t *testing.T) {
	bad := strings.Replace(vehiclesCSV, "2024-01-01 00:00:00", "yesterday", 1)
	if _, err := Vehicles(strings.NewReader(bad)); err == nil {
		t.Fatal("unparseable datetime must fail")
	}
}

func TestBuildDatasetLinksAndSorts(t *testing.T) {
	locs, _ := Locations(strings.NewReader(locationsCSV))
	rels, _ := Relations(strings.NewReader(relationsCSV))
	vehicles, _ := Vehicles(strings.NewReader(vehiclesCSV))
	routes, _ := Routes(strings.NewReader(routesCSV))
	segments, _ := Segments(strings.NewReader(segmentsCSV))

	ds, err := BuildDataset(locs, rels, vehicles, routes, segments)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(ds.Routes) != 2 {
		t.Fatalf("routes: %d", len(ds.Routes))
	}
	r1 := ds.Routes[0]
	if r1.ID != 1 {
		t.Fatalf("chronological sort: first route %d", r1.ID)
	}
	// Segments ordered by seq regardless of file order.
	if len(r1.Segments) != 2 || r1.Segments[0].Seq != 1 || r1.Segments[1].Seq != 2 {
		t.Fatalf("segment order: %+v", r1.Segments)
	}
	start, _ := r1.StartLocationID()
	end, _ := r1.EndLocationID()
	if start != 10 || end != 10 {
		t.Fatalf("derived locations: start=%d end=%d", start, end)
	}
	if !r1.IsLoop() {
		t.Fatal("route 1 is a loop")
	}
	// N/A relation id decodes to nil.
	if ds.Routes[1].Segments[0].RelationID != nil {
		t.Fatalf("relation id: %v", *ds.Routes[1].Segments[0].RelationID)
	}
}

func TestBuildDatasetRejectsOrphanSegment(t *testing.T) {
	routes, _ := Routes(strings.NewReader(routesCSV))
	orphan := `id,route_id,seq,start_loc_id,end_loc_id,start_datetime,end_datetime,relation_id
99,777,1,10,20,2024-01-01 08:00:00,2024-01-01 10:00:00,
`
	segments, err := Segments(strings.NewReader(orphan))
	if err != nil {
		t.Fatalf("segments: %v", err)
	}
	if _, err := BuildDataset(nil, nil, nil, routes, segments); err == nil {
		t.Fatal("orphan segment must fail")
	}
}

func TestDecodeJSONDataset(t *testing.T) {
	doc := `{
      "locations": [{"id": 10, "name": "Warszawa", "isHub": true}],
      "relations": [{"id": 1, "fromId": 10, "toId": 10, "distanceKm": 0, "timeHours": 0}],
      "vehicles": [{"id": 1, "registration": "WGM 1", "brand": "Volvo", "serviceIntervalKm": 110000, "leasingLimitKm": 150000, "leaseStartDate": "2024-01-01T00:00:00Z", "leaseEndDate": "2024-12-31T00:00:00Z", "currentOdometerKm": 0}],
      "routes": [{"id": 1, "start": "2024-01-01T08:00:00Z", "end": "2024-01-01T12:00:00Z", "distanceKm": 100,
        "segments": [{"id": 10, "routeId": 1, "seq": 1, "startLocId": 10, "endLocId": 10, "start": "2024-01-01T08:00:00Z", "end": "2024-01-01T12:00:00Z"}]}]
    }`
	ds, err := DecodeJSON(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ds.Routes) != 1 || len(ds.Routes[0].Segments) != 1 {
		t.Fatalf("segments not linked: %+v", ds.Routes)
	}
}
