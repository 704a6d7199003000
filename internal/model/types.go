package model

import "time"

// Core domain types for fleet assignment.

const (
	// LifetimeLimitThresholdKm splits the two leasing contract flavors:
	// a leasing_limit_km above this is a lifetime total, at or below it
	// is an annual cap.
	LifetimeLimitThresholdKm = 200000

	// DefaultAnnualLimitKm applies when the contract carries a lifetime
	// limit and therefore no explicit annual one.
	DefaultAnnualLimitKm = 150000
)

type Location struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Lat   float64 `json:"lat"`
	Long  float64 `json:"long"`
	IsHub bool    `json:"isHub"`
}

// LocationEdge is a directed relocation edge. Absence of an edge means no
// direct relocation path between the two locations.
type LocationEdge struct {
	ID         int64   `json:"id"`
	FromID     int64   `json:"fromId"`
	ToID       int64   `json:"toId"`
	DistanceKm float64 `json:"distanceKm"`
	TimeHours  float64 `json:"timeHours"`
}

type Segment struct {
	ID         int64     `json:"id"`
	RouteID    int64     `json:"routeId"`
	Seq        int       `json:"seq"`
	StartLocID int64     `json:"startLocId"`
	EndLocID   int64     `json:"endLocId"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	RelationID *int64    `json:"relationId,omitempty"`
}

// Route is a dated delivery job. Start/end locations are derived from its
// segments ordered by Seq.
type Route struct {
	ID         int64     `json:"id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	DistanceKm float64   `json:"distanceKm"`
	Segments   []Segment `json:"segments,omitempty"`
}

func (r Route) StartLocationID() (int64, bool) {
	if len(r.Segments) == 0 {
		return 0, false
	}
	return r.Segments[0].StartLocID, true
}

func (r Route) EndLocationID() (int64, bool) {
	if len(r.Segments) == 0 {
		return 0, false
	}
	return r.Segments[len(r.Segments)-1].EndLocID, true
}

func (r Route) IsLoop() bool {
	s, ok1 := r.StartLocationID()
	e, ok2 := r.EndLocationID()
	return ok1 && ok2 && s == e
}

type Vehicle struct {
	ID                int64     `json:"id"`
	Registration      string    `json:"registration"`
	Brand             string    `json:"brand"`
	ServiceIntervalKm int       `json:"serviceIntervalKm"`
	LeasingStartKm    int       `json:"leasingStartKm"`
	LeasingLimitKm    int       `json:"leasingLimitKm"`
	LeaseStartDate    time.Time `json:"leaseStartDate"`
	LeaseEndDate      time.Time `json:"leaseEndDate"`
	CurrentOdometerKm int       `json:"currentOdometerKm"`
	CurrentLocationID *int64    `json:"currentLocationId,omitempty"`
}

// HasLifetimeLimit reports whether LeasingLimitKm is a lifetime total
// rather than an annual cap.
func (v Vehicle) HasLifetimeLimit() bool {
	return v.LeasingLimitKm > LifetimeLimitThresholdKm
}

func (v Vehicle) AnnualLimitKm() int {
	if v.HasLifetimeLimit() {
		return DefaultAnnualLimitKm
	}
	return v.LeasingLimitKm
}

// TotalContractLimitKm returns the lifetime ceiling, or 0 when the
// contract has none.
func (v Vehicle) TotalContractLimitKm() int {
	if v.HasLifetimeLimit() {
		return v.LeasingLimitKm
	}
	return 0
}

// Relocation is one entry of the rolling swap-policy window.
type Relocation struct {
	At     time.Time `json:"at"`
	FromID int64     `json:"fromId"`
	ToID   int64     `json:"toId"`
}

// VehicleState is the runtime record of one vehicle within a run. It is
// created once at placement exit and mutated only through the state
// store's Advance.
type VehicleState struct {
	VehicleID          int64     `json:"vehicleId"`
	CurrentLocationID  int64     `json:"currentLocationId"`
	CurrentOdometerKm  int       `json:"currentOdometerKm"`
	KmSinceLastService int       `json:"kmSinceLastService"`
	KmThisLeaseYear    int       `json:"kmThisLeaseYear"`
	TotalLifetimeKm    int       `json:"totalLifetimeKm"`
	AvailableFrom      time.Time `json:"availableFrom"`
	LastRouteID        *int64    `json:"lastRouteId,omitempty"`
	LeaseCycleNumber   int       `json:"leaseCycleNumber"`
	LeaseStartDate     time.Time `json:"leaseStartDate"`
	LeaseEndDate       time.Time `json:"leaseEndDate"`

	Relocations []Relocation `json:"relocations,omitempty"`

	// Cached from the vehicle spec at state creation.
	AnnualLimitKm        int `json:"annualLimitKm"`
	ServiceIntervalKm    int `json:"serviceIntervalKm"`
	TotalContractLimitKm int `json:"totalContractLimitKm,omitempty"`

	// Running totals.
	RoutesCompleted     int     `json:"routesCompleted"`
	TotalRelocations    int     `json:"totalRelocations"`
	TotalServiceCount   int     `json:"totalServiceCount"`
	TotalServiceCost    float64 `json:"totalServiceCost"`
	TotalRelocationCost float64 `json:"totalRelocationCost"`
	TotalOverageCost    float64 `json:"totalOverageCost"`
}

// Clone returns a deep copy usable as a scoring snapshot.
func (s *VehicleState) Clone() *VehicleState {
	cp := *s
	if len(s.Relocations) > 0 {
		cp.Relocations = append([]Relocation(nil), s.Relocations...)
	}
	return &cp
}

// Assignment is one record of the append-only assignment log.
type Assignment struct {
	RouteID   int64     `json:"routeId"`
	VehicleID int64     `json:"vehicleId"`
	Date      time.Time `json:"date"`

	RouteDistanceKm float64 `json:"routeDistanceKm"`
	StartLocationID int64   `json:"startLocationId"`
	EndLocationID   int64   `json:"endLocationId"`

	VehicleKmBefore int `json:"vehicleKmBefore"`
	VehicleKmAfter  int `json:"vehicleKmAfter"`
	AnnualKmBefore  int `json:"annualKmBefore"`
	AnnualKmAfter   int `json:"annualKmAfter"`

	RequiresRelocation bool   `json:"requiresRelocation"`
	RequiresService    bool   `json:"requiresService"`
	RelocationFrom     *int64 `json:"relocationFrom,omitempty"`
	RelocationTo       *int64 `json:"relocationTo,omitempty"`

	RelocationKm    float64 `json:"relocationKm,omitempty"`
	RelocationHours float64 `json:"relocationHours,omitempty"`

	RelocationCost float64 `json:"relocationCost"`
	OverageCost    float64 `json:"overageCost"`
	ServicePenalty float64 `json:"servicePenalty"`
	ServiceCost    float64 `json:"serviceCost"`
	TotalCost      float64 `json:"totalCost"`
	OverageKm      int     `json:"overageKm"`
	ChainScore     float64 `json:"chainScore,omitempty"`
}

// UnassignedRoute records a route no vehicle could take, with the
// per-reason rejection histogram across candidates.
type UnassignedRoute struct {
	RouteID int64          `json:"routeId"`
	Date    time.Time      `json:"date"`
	Reasons map[string]int `json:"reasons"`
}

// PlacementResult maps every vehicle to its initial location.
type PlacementResult struct {
	Placements       map[int64]int64 `json:"placements"`
	Demand           map[int64]int   `json:"demand"`
	LocationsUsed    int             `json:"locationsUsed"`
	MaxAtOne         int             `json:"maxAtOneLocation"`
	MaxConcentration float64         `json:"maxConcentration"`
	DemandCoverage   float64         `json:"demandCoverage"`
	Strategy         string          `json:"strategy"`
}

// RunSummary is the final aggregate of a run.
type RunSummary struct {
	RoutesTotal        int            `json:"routesTotal"`
	RoutesAssigned     int            `json:"routesAssigned"`
	RoutesUnassigned   int            `json:"routesUnassigned"`
	UnassignedByReason map[string]int `json:"unassignedByReason"`

	TotalCost           float64 `json:"totalCost"`
	TotalRelocationCost float64 `json:"totalRelocationCost"`
	TotalOverageCost    float64 `json:"totalOverageCost"`
	TotalServiceCost    float64 `json:"totalServiceCost"`
	TotalRelocations    int     `json:"totalRelocations"`
	TotalServices       int     `json:"totalServices"`
	TotalOverageKm      int     `json:"totalOverageKm"`

	Cancelled  bool  `json:"cancelled"`
	DurationMs int64 `json:"durationMs"`

	Placement *PlacementResult `json:"placement,omitempty"`
}

// Dataset bundles the parsed input tables.
type Dataset struct {
	Locations []Location     `json:"locations"`
	Edges     []LocationEdge `json:"edges"`
	Vehicles  []Vehicle      `json:"vehicles"`
	Routes    []Route        `json:"routes"`
}

// RunResult is everything a finished run produces.
type RunResult struct {
	Assignments   []Assignment            `json:"assignments"`
	Unassigned    []UnassignedRoute       `json:"unassigned"`
	VehicleStates map[int64]*VehicleState `json:"vehicleStates"`
	Summary       RunSummary              `json:"summary"`
}
