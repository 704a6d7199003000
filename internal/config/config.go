// Package config holds the optimizer configuration record. Every
// recognized option is an explicit field; unknown keys in a config file
// are an error.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Placement     PlacementConfig     `yaml:"placement" json:"placement"`
	Assignment    AssignmentConfig    `yaml:"assignment" json:"assignment"`
	SwapPolicy    SwapPolicyConfig    `yaml:"swap_policy" json:"swapPolicy"`
	ServicePolicy ServicePolicyConfig `yaml:"service_policy" json:"servicePolicy"`
	Costs         CostConfig          `yaml:"costs" json:"costs"`
	Performance   PerformanceConfig   `yaml:"performance" json:"performance"`
}

type PlacementConfig struct {
	// Strategy is "proportional" or "cost_matrix".
	Strategy               string  `yaml:"strategy" json:"strategy"`
	LookaheadDays          int     `yaml:"lookahead_days" json:"lookaheadDays"`
	MaxConcentration       float64 `yaml:"max_concentration" json:"maxConcentration"`
	MaxVehiclesPerLocation int     `yaml:"max_vehicles_per_location" json:"maxVehiclesPerLocation"`
}

type AssignmentConfig struct {
	// AssignmentLookaheadDays bounds the route horizon; 0 assigns all.
	AssignmentLookaheadDays int `yaml:"assignment_lookahead_days" json:"assignmentLookaheadDays"`

	// Chain look-ahead. Off by default; the plain greedy pass is the
	// authoritative mode.
	UseChainOptimization bool    `yaml:"use_chain_optimization" json:"useChainOptimization"`
	LookAheadDays        int     `yaml:"look_ahead_days" json:"lookAheadDays"`
	ChainDepth           int     `yaml:"chain_depth" json:"chainDepth"`
	ChainWeight          float64 `yaml:"chain_weight" json:"chainWeight"`
	MaxLookaheadRoutes   int     `yaml:"max_lookahead_routes" json:"maxLookaheadRoutes"`
}

type SwapPolicyConfig struct {
	MaxSwapsPerPeriod int `yaml:"max_swaps_per_period" json:"maxSwapsPerPeriod"`
	SwapPeriodDays    int `yaml:"swap_period_days" json:"swapPeriodDays"`
}

type ServicePolicyConfig struct {
	ToleranceKm   int     `yaml:"service_tolerance_km" json:"serviceToleranceKm"`
	DurationHours int     `yaml:"service_duration_hours" json:"serviceDurationHours"`
	PenaltyPLN    float64 `yaml:"service_penalty_pln" json:"servicePenaltyPln"`
	CostPLN       float64 `yaml:"service_cost_pln" json:"serviceCostPln"`
}

type CostConfig struct {
	RelocationBasePLN    float64 `yaml:"relocation_base_cost_pln" json:"relocationBaseCostPln"`
	RelocationPerKmPLN   float64 `yaml:"relocation_per_km_pln" json:"relocationPerKmPln"`
	RelocationPerHourPLN float64 `yaml:"relocation_per_hour_pln" json:"relocationPerHourPln"`
	OveragePerKmPLN      float64 `yaml:"overage_per_km_pln" json:"overagePerKmPln"`
}

type PerformanceConfig struct {
	ProgressReportDays     int  `yaml:"progress_report_days" json:"progressReportDays"`
	ProgressReportInterval int  `yaml:"progress_report_interval" json:"progressReportInterval"`
	UseRelationCache       bool `yaml:"use_relation_cache" json:"useRelationCache"`
	RelationCacheSize      int  `yaml:"relation_cache_size" json:"relationCacheSize"`
}

const (
	StrategyProportional = "proportional"
	StrategyCostMatrix   = "cost_matrix"
)

// Default returns the documented defaults, matching the fee schedule and
// policies the fleet operates under.
func Default() *Config {
	return &Config{
		Placement: PlacementConfig{
			Strategy:         StrategyProportional,
			LookaheadDays:    14,
			MaxConcentration: 0.30,
		},
		Assignment: AssignmentConfig{
			AssignmentLookaheadDays: 0,
			UseChainOptimization:    false,
			LookAheadDays:           7,
			ChainDepth:              3,
			ChainWeight:             1.0,
			MaxLookaheadRoutes:      50,
		},
		SwapPolicy: SwapPolicyConfig{
			MaxSwapsPerPeriod: 1,
			SwapPeriodDays:    90,
		},
		ServicePolicy: ServicePolicyConfig{
			ToleranceKm:   1000,
			DurationHours: 48,
			PenaltyPLN:    500,
			CostPLN:       1500,
		},
		Costs: CostConfig{
			RelocationBasePLN:    1000,
			RelocationPerKmPLN:   1.0,
			RelocationPerHourPLN: 150,
			OveragePerKmPLN:      0.92,
		},
		Performance: PerformanceConfig{
			ProgressReportDays:     7,
			ProgressReportInterval: 1000,
			UseRelationCache:       true,
			RelationCacheSize:      4096,
		},
	}
}

// Load reads a YAML config file over the defaults. Unknown keys fail.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Placement.Strategy {
	case StrategyProportional, StrategyCostMatrix:
	default:
		return fmt.Errorf("unknown placement strategy: %s", c.Placement.Strategy)
	}
	if c.Placement.LookaheadDays <= 0 {
		return fmt.Errorf("placement lookahead_days must be > 0")
	}
	if c.Placement.MaxConcentration <= 0 || c.Placement.MaxConcentration > 1 {
		return fmt.Errorf("placement max_concentration must be in (0,1]")
	}
	if c.Assignment.AssignmentLookaheadDays < 0 {
		return fmt.Errorf("assignment_lookahead_days must be >= 0")
	}
	if c.SwapPolicy.MaxSwapsPerPeriod < 0 || c.SwapPolicy.SwapPeriodDays < 0 {
		return fmt.Errorf("swap policy values must be >= 0")
	}
	if c.ServicePolicy.DurationHours < 0 || c.ServicePolicy.ToleranceKm < 0 {
		return fmt.Errorf("service policy values must be >= 0")
	}
	if c.Performance.RelationCacheSize < 0 {
		return fmt.Errorf("relation_cache_size must be >= 0")
	}
	return nil
}
