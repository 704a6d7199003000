package ingest

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
)

// jsonDataset mirrors the five tables in one JSON document. Segments may
// arrive inline on routes or as a separate table.
type jsonDataset struct {
	Locations []model.Location     `json:"locations"`
	Relations []model.LocationEdge `json:"relations"`
	Vehicles  []model.Vehicle      `json:"vehicles"`
	Routes    []model.Route        `json:"routes"`
	Segments  []model.Segment      `json:"segments,omitempty"`
}

// DecodeJSON parses a JSON dataset document.
func DecodeJSON(r io.Reader) (*model.Dataset, error) {
	var doc jsonDataset
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode dataset json: %w", err)
	}
	segments := doc.Segments
	if len(segments) == 0 {
		for _, rt := range doc.Routes {
			segments = append(segments, rt.Segments...)
		}
	}
	routes := make([]model.Route, len(doc.Routes))
	for i, rt := range doc.Routes {
		rt.Segments = nil
		routes[i] = rt
	}
	return BuildDataset(doc.Locations, doc.Relations, doc.Vehicles, routes, segments)
}
