//go:build integration
// +build integration

package http_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/canopylabs/canopy/internal/adapters/http"
	"github.com/canopylabs/canopy/internal/adapters/postgres"
	"github.com/canopylabs/canopy/internal/core/domain"
	"github.com/canopylabs/canopy/internal/core/usecases"
	"github.com/canopylabs/canopy/internal/pkg/config"
)

// setupTestDB connects to the test database and returns a clean DB instance.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("canopy-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}

	db := &postgres.DB{Pool: pool}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping db: %v", err)
	}

	return db
}

// setupTestDeps creates dependencies with real DB and repos, no cache or NATS.
func setupTestDeps(t *testing.T, db *postgres.DB) *http.Dependencies {
	projectRepo := postgres.NewProjectRepo(db)
	pinRepo := postgres.NewPinRepo(db)
	noteRepo := postgres.NewNoteRepo(db)
	reminderRepo := postgres.NewReminderRepo(db)

	return &http.Dependencies{
		Projects:   usecases.NewProjectService(projectRepo, nil),
		Pins:       usecases.NewPinService(pinRepo, noteRepo, nil, nil),
		Reminders:  usecases.NewReminderService(reminderRepo, pinRepo, nil, nil),
		AutoCenter: usecases.NewAutoCenterService(pinRepo, nil),
		DB:         db,
	}
}

// seedTestProject inserts a test project and returns its UUID.
func seedTestProject(t *testing.T, db *postgres.DB, owner, name string) string {
	ctx := context.Background()
	var id string
	if err := db.Pool.QueryRow(ctx, `
		INSERT INTO projects (owner_id, name)
		VALUES ($1, $2)
		ON CONFLICT (owner_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, owner, name).Scan(&id); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return id
}

// seedTestPin inserts a test pin at the given coordinates and returns its UUID.
func seedTestPin(t *testing.T, db *postgres.DB, projectID, name string, lat, lon float64, tags []string) string {
	ctx := context.Background()
	var id string
	if err := db.Pool.QueryRow(ctx, `
		INSERT INTO pins (project_id, name, location, tags)
		VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5)
		ON CONFLICT (project_id, name) DO UPDATE SET tags = EXCLUDED.tags
		RETURNING id
	`, projectID, name, lon, lat, tags).Scan(&id); err != nil {
		t.Fatalf("seed pin: %v", err)
	}
	return id
}

// TestListProjects_Integration_WithRealDB tests project listing against real database.
func TestListProjects_Integration_WithRealDB(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	owner := "it_owner_" + time.Now().Format("20060102150405")
	seedTestProject(t, db, owner, "Backyard Survey")
	seedTestProject(t, db, owner, "Orchard Survey")

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/projects?owner_id="+owner, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.Project    `json:"data"`
		Pagination struct{ Total int } `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if result.Pagination.Total < 2 {
		t.Errorf("expected at least 2 projects, got %d", result.Pagination.Total)
	}
}

// TestPinsInBounds_Integration tests the viewport query against real database.
func TestPinsInBounds_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	owner := "it_bounds_" + time.Now().Format("20060102150405")
	projectID := seedTestProject(t, db, owner, "Bounds Survey")
	// Golden Gate Park, roughly
	seedTestPin(t, db, projectID, "Coast Redwood", 37.769, -122.486, []string{"tree"})
	seedTestPin(t, db, projectID, "Monterey Cypress", 37.771, -122.469, []string{"tree", "native"})

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	req := httptest.NewRequest("GET",
		"/v1/pins?north=37.78&south=37.76&east=-122.45&west=-122.50&project_id="+projectID, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Pins  []domain.Pin `json:"pins"`
		Count int          `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if result.Count < 2 {
		t.Errorf("expected at least 2 pins in box, got %d", result.Count)
	}

	// Superset tag filter should drop the single-tag pin.
	req = httptest.NewRequest("GET",
		"/v1/pins?north=37.78&south=37.76&east=-122.45&west=-122.50&project_id="+projectID+"&tags=tree,native", nil)
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	for _, p := range result.Pins {
		if p.Name == "Coast Redwood" {
			t.Error("tag filter should exclude pins missing a selected tag")
		}
	}
}

// TestNearbyPins_Integration tests geospatial ordering against real database.
func TestNearbyPins_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	owner := "it_nearby_" + time.Now().Format("20060102150405")
	projectID := seedTestProject(t, db, owner, "Nearby Survey")
	seedTestPin(t, db, projectID, "Close Oak", 37.7701, -122.4700, nil)
	seedTestPin(t, db, projectID, "Far Oak", 37.7750, -122.4800, nil)

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/pins/nearby?lat=37.7700&lon=-122.4700&radius=5000", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var pins []domain.Pin
	if err := json.NewDecoder(resp.Body).Decode(&pins); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(pins) == 0 {
		t.Fatal("expected at least 1 nearby pin, got 0")
	}

	// Results come back closest first.
	for i := 1; i < len(pins); i++ {
		if pins[i].Distance != nil && pins[i-1].Distance != nil &&
			*pins[i].Distance < *pins[i-1].Distance {
			t.Errorf("pins out of distance order at index %d", i)
		}
	}
}
