package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gfbeer/venue-finder/internal/model"
)

// geoJSONMap "draws" the map by writing the located venues to a GeoJSON file that any map
// viewer can open. Disposing the map removes the file.
type geoJSONMap struct {
	path string
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string         `json:"type"`
	Geometry   pointGeometry  `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type pointGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func (m *geoJSONMap) RenderMarkers(ctx context.Context, venues []model.VenueSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fc := featureCollection{Type: "FeatureCollection", Features: []feature{}}
	for _, v := range venues {
		if !v.HasCoordinates() {
			continue
		}
		props := map[string]any{
			"id":        v.ID,
			"name":      v.Name,
			"postcode":  v.Postcode,
			"gf_status": v.GFStatus,
		}
		if v.DistanceKm != nil {
			props["distance_km"] = *v.DistanceKm
		}
		fc.Features = append(fc.Features, feature{
			Type:       "Feature",
			Geometry:   pointGeometry{Type: "Point", Coordinates: [2]float64{*v.Longitude, *v.Latitude}},
			Properties: props,
		})
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode map: %w", err)
	}

	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create map directory: %w", err)
		}
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write map: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("write map: %w", err)
	}
	return nil
}

func (m *geoJSONMap) DisposeMap() {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "remove map file: %v\n", err)
	}
}
