package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/canopylabs/canopy/internal/adapters/postgres"
	"github.com/canopylabs/canopy/internal/core/domain"
	"github.com/canopylabs/canopy/internal/pkg/config"
)

// ---------------------------------------------------------------------------
// GeoJSON types (points only — the importer skips other geometries)
// ---------------------------------------------------------------------------

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"` // [lon, lat]
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

const batchSize = 500

// The importer bulk-loads survey pins from a GeoJSON FeatureCollection into
// an existing project. Existing pins with the same name are updated in place.
//
// usage: importer <project-id> <file.geojson>
func main() {
	if len(os.Args) < 3 {
		log.Fatal("usage: importer <project-id> <file.geojson>")
	}
	projectID := os.Args[1]
	path := os.Args[2]

	cfg, err := config.Load("canopy-importer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// The project must exist; pins reference it.
	projectRepo := postgres.NewProjectRepo(db)
	project, err := projectRepo.GetByID(ctx, projectID)
	if err != nil {
		log.Fatalf("project %s: %v (create it first)", projectID, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}

	var fc FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		log.Fatalf("parse geojson: %v", err)
	}

	log.Printf("Canopy Importer — %d features into project %q", len(fc.Features), project.Name)

	pins, skipped := featuresToPins(projectID, fc.Features)

	pinRepo := postgres.NewPinRepo(db)
	start := time.Now()
	imported := 0
	for i := 0; i < len(pins); i += batchSize {
		end := i + batchSize
		if end > len(pins) {
			end = len(pins)
		}
		if err := pinRepo.UpsertBatch(ctx, pins[i:end]); err != nil {
			log.Fatalf("batch %d-%d: %v", i, end, err)
		}
		imported += end - i
		fmt.Printf("  %d/%d\n", imported, len(pins))
	}

	log.Printf("done: %d imported, %d skipped, took %s", imported, skipped, time.Since(start).Round(time.Millisecond))
}

// featuresToPins converts point features, skipping anything malformed.
func featuresToPins(projectID string, features []Feature) (pins []domain.Pin, skipped int) {
	for _, f := range features {
		if f.Geometry.Type != "Point" || len(f.Geometry.Coordinates) < 2 {
			skipped++
			continue
		}

		loc := domain.GeoPoint{
			Lon: f.Geometry.Coordinates[0],
			Lat: f.Geometry.Coordinates[1],
		}
		if !loc.Valid() {
			skipped++
			continue
		}

		name := propString(f.Properties, "name")
		if name == "" {
			skipped++
			continue
		}

		pin := domain.Pin{
			ProjectID: projectID,
			Name:      name,
			Location:  loc,
			Tags:      propTags(f.Properties),
			Metadata:  map[string]any{},
		}

		// Everything that isn't name/tags rides along as metadata.
		for k, v := range f.Properties {
			if k == "name" || k == "tags" {
				continue
			}
			pin.Metadata[k] = v
		}

		pins = append(pins, pin)
	}
	return pins, skipped
}

func propString(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// propTags accepts tags as a JSON array or a comma-separated string.
func propTags(props map[string]any) []string {
	var tags []string
	switch v := props["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				tags = append(tags, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				tags = append(tags, trimmed)
			}
		}
	}
	return tags
}
