package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jszwec/csvutil"
	"github.com/urfave/cli"

	"github.com/TechniCodeCamp2025/fleet-api/internal/config"
	"github.com/TechniCodeCamp2025/fleet-api/internal/engine"
	"github.com/TechniCodeCamp2025/fleet-api/internal/ingest"
	"github.com/TechniCodeCamp2025/fleet-api/internal/logging"
	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
)

func main() {
	_ = godotenv.Load()
	logging.Init(os.Getenv("LOG_LEVEL"), "console")
	log := logging.With("optimize")

	app := cli.NewApp()
	app.Name = "fleet-optimize"
	app.Usage = "run the two-phase fleet assignment optimizer over CSV inputs"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "locations", Usage: "locations csv `FILE`", Required: true},
		cli.StringFlag{Name: "relations", Usage: "location relations csv `FILE`", Required: true},
		cli.StringFlag{Name: "vehicles", Usage: "vehicles csv `FILE`", Required: true},
		cli.StringFlag{Name: "routes", Usage: "routes csv `FILE`", Required: true},
		cli.StringFlag{Name: "segments", Usage: "segments csv `FILE`", Required: true},
		cli.StringFlag{Name: "config", Usage: "optimizer config yaml `FILE`"},
		cli.StringFlag{Name: "strategy", Usage: "placement strategy override (proportional|cost_matrix)"},
		cli.IntFlag{Name: "lookahead", Usage: "placement lookahead days override"},
		cli.StringFlag{Name: "output", Value: "out", Usage: "output `DIR`"},
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("optimization failed")
		os.Exit(1)
	}
}

func loadCSV[T any](path string, parse func(f *os.File) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	return parse(f)
}

func run(c *cli.Context) error {
	log := logging.With("optimize")

	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if s := c.String("strategy"); s != "" {
		cfg.Placement.Strategy = s
	}
	if d := c.Int("lookahead"); d > 0 {
		cfg.Placement.LookaheadDays = d
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	locations, err := loadCSV(c.String("locations"), func(f *os.File) ([]model.Location, error) { return ingest.Locations(f) })
	if err != nil {
		return err
	}
	relations, err := loadCSV(c.String("relations"), func(f *os.File) ([]model.LocationEdge, error) { return ingest.Relations(f) })
	if err != nil {
		return err
	}
	vehicles, err := loadCSV(c.String("vehicles"), func(f *os.File) ([]model.Vehicle, error) { return ingest.Vehicles(f) })
	if err != nil {
		return err
	}
	routes, err := loadCSV(c.String("routes"), func(f *os.File) ([]model.Route, error) { return ingest.Routes(f) })
	if err != nil {
		return err
	}
	segments, err := loadCSV(c.String("segments"), func(f *os.File) ([]model.Segment, error) { return ingest.Segments(f) })
	if err != nil {
		return err
	}

	ds, err := ingest.BuildDataset(locations, relations, vehicles, routes, segments)
	if err != nil {
		return err
	}
	log.Info().
		Int("locations", len(ds.Locations)).
		Int("relations", len(ds.Edges)).
		Int("vehicles", len(ds.Vehicles)).
		Int("routes", len(ds.Routes)).
		Msg("dataset loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver := engine.NewDriver(cfg)
	driver.OnEvent = func(ev engine.Event) {
		if ev.Type == "progress" {
			log.Info().
				Int("done", ev.RoutesDone).
				Int("total", ev.RoutesTotal).
				Int("assigned", ev.Assigned).
				Int("unassigned", ev.Unassigned).
				Msg("progress")
		}
	}

	res, err := driver.Run(ctx, ds)
	if err != nil {
		return err
	}

	outDir := c.String("output")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	if err := writeAssignmentsCSV(filepath.Join(outDir, "assignments.csv"), res.Assignments); err != nil {
		return err
	}
	if err := writeJSONFile(filepath.Join(outDir, "vehicle_states.json"), res.VehicleStates); err != nil {
		return err
	}
	if err := writeJSONFile(filepath.Join(outDir, "unassigned.json"), res.Unassigned); err != nil {
		return err
	}
	summary := map[string]any{"summary": res.Summary, "config": cfg}
	if err := writeJSONFile(filepath.Join(outDir, "summary.json"), summary); err != nil {
		return err
	}

	log.Info().
		Int("assigned", res.Summary.RoutesAssigned).
		Int("unassigned", res.Summary.RoutesUnassigned).
		Float64("totalCost", res.Summary.TotalCost).
		Bool("cancelled", res.Summary.Cancelled).
		Str("output", outDir).
		Msg("done")
	return nil
}

// assignmentRow flattens one assignment for the CSV export.
type assignmentRow struct {
	RouteID            int64   `csv:"route_id"`
	VehicleID          int64   `csv:"vehicle_id"`
	Date               string  `csv:"date"`
	StartLocationID    int64   `csv:"start_location_id"`
	EndLocationID      int64   `csv:"end_location_id"`
	RequiresRelocation bool    `csv:"requires_relocation"`
	RequiresService    bool    `csv:"requires_service"`
	RelocationCost     float64 `csv:"relocation_cost_pln"`
	OverageCost        float64 `csv:"overage_cost_pln"`
	ServicePenalty     float64 `csv:"service_penalty_pln"`
	TotalCost          float64 `csv:"total_cost_pln"`
	VehicleKmBefore    int     `csv:"vehicle_km_before"`
	VehicleKmAfter     int     `csv:"vehicle_km_after"`
}

func writeAssignmentsCSV(path string, assignments []model.Assignment) error {
	rows := make([]assignmentRow, len(assignments))
	for i, a := range assignments {
		rows[i] = assignmentRow{
			RouteID:            a.RouteID,
			VehicleID:          a.VehicleID,
			Date:               a.Date.Format("2006-01-02 15:04:05"),
			StartLocationID:    a.StartLocationID,
			EndLocationID:      a.EndLocationID,
			RequiresRelocation: a.RequiresRelocation,
			RequiresService:    a.RequiresService,
			RelocationCost:     a.RelocationCost,
			OverageCost:        a.OverageCost,
			ServicePenalty:     a.ServicePenalty,
			TotalCost:          a.TotalCost,
			VehicleKmBefore:    a.VehicleKmBefore,
			VehicleKmAfter:     a.VehicleKmAfter,
		}
	}
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode assignments: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
