package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/canopylabs/canopy/internal/adapters/http"
	"github.com/canopylabs/canopy/internal/core/domain"
	"github.com/canopylabs/canopy/internal/core/usecases"
)

// ---- Mock repositories ----

type mockProjectRepo struct {
	createFn      func(ctx context.Context, p *domain.Project) error
	getByIDFn     func(ctx context.Context, id string) (*domain.Project, error)
	listByOwnerFn func(ctx context.Context, ownerID string) ([]domain.Project, error)
}

func (m *mockProjectRepo) Create(ctx context.Context, p *domain.Project) error {
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	return nil
}
func (m *mockProjectRepo) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, fmt.Errorf("project %s not found", id)
}
func (m *mockProjectRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Project, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, ownerID)
	}
	return nil, nil
}
func (m *mockProjectRepo) Delete(ctx context.Context, id string) error { return nil }

type mockPinRepo struct {
	createFn        func(ctx context.Context, p *domain.Pin) error
	getByIDFn       func(ctx context.Context, id string) (*domain.Pin, error)
	findInBoundsFn  func(ctx context.Context, box domain.BoundingBox, projectID string, limit int) ([]domain.Pin, error)
	listByProjectFn func(ctx context.Context, projectID string) ([]domain.Pin, error)
	findNearbyFn    func(ctx context.Context, lat, lon, radius float64, limit int) ([]domain.Pin, error)
}

func (m *mockPinRepo) Create(ctx context.Context, p *domain.Pin) error {
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	p.ID = "pin-1"
	return nil
}
func (m *mockPinRepo) Update(ctx context.Context, p *domain.Pin) error          { return nil }
func (m *mockPinRepo) UpsertBatch(ctx context.Context, pins []domain.Pin) error { return nil }
func (m *mockPinRepo) GetByID(ctx context.Context, id string) (*domain.Pin, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, fmt.Errorf("pin %s not found", id)
}
func (m *mockPinRepo) Delete(ctx context.Context, id string) error { return nil }
func (m *mockPinRepo) FindInBounds(ctx context.Context, box domain.BoundingBox, projectID string, limit int) ([]domain.Pin, error) {
	if m.findInBoundsFn != nil {
		return m.findInBoundsFn(ctx, box, projectID, limit)
	}
	return nil, nil
}
func (m *mockPinRepo) ListByProject(ctx context.Context, projectID string) ([]domain.Pin, error) {
	if m.listByProjectFn != nil {
		return m.listByProjectFn(ctx, projectID)
	}
	return nil, nil
}
func (m *mockPinRepo) FindNearby(ctx context.Context, lat, lon, radius float64, limit int) ([]domain.Pin, error) {
	if m.findNearbyFn != nil {
		return m.findNearbyFn(ctx, lat, lon, radius, limit)
	}
	return nil, nil
}

type mockNoteRepo struct{}

func (m *mockNoteRepo) Insert(ctx context.Context, n *domain.Note) error {
	n.ID = "note-1"
	return nil
}
func (m *mockNoteRepo) ListByPin(ctx context.Context, pinID string) ([]domain.Note, error) {
	return nil, nil
}

type mockStore struct {
	uploads int
	failFn  func(path string) error
}

func (m *mockStore) Upload(ctx context.Context, path string, data []byte) (string, error) {
	m.uploads++
	if m.failFn != nil {
		if err := m.failFn(path); err != nil {
			return "", err
		}
	}
	return "https://cdn.example.com/" + path, nil
}

type mockPublisher struct{}

func (m *mockPublisher) PublishPinEvent(ctx context.Context, event *domain.PinEvent) error {
	return nil
}
func (m *mockPublisher) PublishReminderDue(ctx context.Context, r *domain.Reminder) error {
	return nil
}
func (m *mockPublisher) PublishBroadcast(ctx context.Context, data []byte) error { return nil }

type mockLocation struct {
	position *domain.GeoPoint
}

func (m *mockLocation) CurrentPosition(ctx context.Context, userID string) (*domain.GeoPoint, error) {
	if m.position == nil {
		return nil, fmt.Errorf("no position for %s", userID)
	}
	return m.position, nil
}

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(pins *mockPinRepo, projects *mockProjectRepo, store *mockStore) *handler.Dependencies {
	if pins == nil {
		pins = &mockPinRepo{}
	}
	if projects == nil {
		projects = &mockProjectRepo{}
	}
	if store == nil {
		store = &mockStore{}
	}
	pub := &mockPublisher{}
	return &handler.Dependencies{
		Projects:   usecases.NewProjectService(projects, nil),
		Pins:       usecases.NewPinService(pins, &mockNoteRepo{}, nil, pub),
		Pipeline:   usecases.NewPinPipeline(store, pins, pub, usecases.WithUploadRetry(2, time.Millisecond)),
		AutoCenter: usecases.NewAutoCenterService(pins, &mockLocation{}),
	}
}

func doRequest(t *testing.T, app *fiber.App, method, target, body string) (int, []byte) {
	t.Helper()
	var req = httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, target, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

// ---- Tests ----

func TestHealthEndpoint(t *testing.T) {
	app := setupApp(makeDeps(nil, nil, nil))
	status, body := doRequest(t, app, "GET", "/v1/health", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", payload["status"])
	}
}

func TestListProjects_RequiresOwner(t *testing.T) {
	app := setupApp(makeDeps(nil, nil, nil))
	status, body := doRequest(t, app, "GET", "/v1/projects", "")
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
	var apiErr handler.APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("invalid error JSON: %v", err)
	}
	if apiErr.Code != "bad_request" {
		t.Errorf("expected bad_request, got %q", apiErr.Code)
	}
}

func TestListProjects_PaginationHeaders(t *testing.T) {
	projects := &mockProjectRepo{
		listByOwnerFn: func(ctx context.Context, ownerID string) ([]domain.Project, error) {
			var out []domain.Project
			for i := 0; i < 150; i++ {
				out = append(out, domain.Project{ID: fmt.Sprintf("p%d", i), OwnerID: ownerID})
			}
			return out, nil
		},
	}
	app := setupApp(makeDeps(nil, projects, nil))

	req := httptest.NewRequest("GET", "/v1/projects?owner_id=u1&limit=50", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	link := resp.Header.Get("Link")
	if !strings.Contains(link, `rel="next"`) {
		t.Errorf("expected next link, got %q", link)
	}
	var payload handler.PaginatedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Pagination.Total != 150 {
		t.Errorf("expected total 150, got %d", payload.Pagination.Total)
	}
}

func TestPinsInBounds_ReturnsPins(t *testing.T) {
	pins := &mockPinRepo{
		findInBoundsFn: func(ctx context.Context, box domain.BoundingBox, projectID string, limit int) ([]domain.Pin, error) {
			if box.North != 38 || box.South != 37 {
				t.Errorf("unexpected box: %+v", box)
			}
			return []domain.Pin{
				{ID: "a", Tags: []string{"tree"}},
				{ID: "b", Tags: []string{"shrub"}},
			}, nil
		},
	}
	app := setupApp(makeDeps(pins, nil, nil))

	status, body := doRequest(t, app, "GET",
		"/v1/pins?north=38&south=37&east=-121&west=-122&tags=tree", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var payload struct {
		Pins  []domain.Pin `json:"pins"`
		Count int          `json:"count"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Count != 1 || payload.Pins[0].ID != "a" {
		t.Errorf("expected only the tagged pin, got %+v", payload.Pins)
	}
}

func TestPinsInBounds_MissingBox(t *testing.T) {
	app := setupApp(makeDeps(nil, nil, nil))
	status, _ := doRequest(t, app, "GET", "/v1/pins", "")
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestNearbyPins_Validation(t *testing.T) {
	app := setupApp(makeDeps(nil, nil, nil))

	status, _ := doRequest(t, app, "GET", "/v1/pins/nearby", "")
	if status != 400 {
		t.Errorf("missing lat/lon: expected 400, got %d", status)
	}

	status, _ = doRequest(t, app, "GET", "/v1/pins/nearby?lat=37.77&lon=-122.41&radius=99999", "")
	if status != 400 {
		t.Errorf("oversized radius: expected 400, got %d", status)
	}
}

func TestDeprecatedNearEndpoint(t *testing.T) {
	app := setupApp(makeDeps(nil, nil, nil))

	req := httptest.NewRequest("GET", "/v1/pins/near?lat=37.77&lon=-122.41", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Deprecation") != "true" {
		t.Error("expected Deprecation header")
	}
	if !strings.Contains(resp.Header.Get("Link"), "/v1/pins/nearby") {
		t.Errorf("expected successor link, got %q", resp.Header.Get("Link"))
	}
}

func TestCreatePin_UploadsThenCreates(t *testing.T) {
	store := &mockStore{}
	var created *domain.Pin
	pins := &mockPinRepo{
		createFn: func(ctx context.Context, p *domain.Pin) error {
			p.ID = "pin-9"
			created = p
			return nil
		},
	}
	app := setupApp(makeDeps(pins, nil, store))

	body := `{
		"project_id": "proj-1",
		"name": "Oak sapling",
		"location": {"lat": 37.77, "lon": -122.41},
		"tags": ["tree", "young"],
		"photos": [{"name": "leaf.jpg", "data": "aGVsbG8="}]
	}`
	status, respBody := doRequest(t, app, "POST", "/v1/pins", body)
	if status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, respBody)
	}
	if store.uploads != 1 {
		t.Errorf("expected 1 upload, got %d", store.uploads)
	}
	if created == nil || len(created.Photos) != 1 {
		t.Fatalf("pin not created with photo URL: %+v", created)
	}
	if !strings.HasPrefix(created.Photos[0], "https://cdn.example.com/proj-1/") {
		t.Errorf("unexpected photo URL %q", created.Photos[0])
	}
}

func TestCreatePin_UploadFailureIs422(t *testing.T) {
	store := &mockStore{
		failFn: func(path string) error {
			return domain.ErrPermissionDenied
		},
	}
	pins := &mockPinRepo{
		createFn: func(ctx context.Context, p *domain.Pin) error {
			t.Error("create must not run when uploads fail")
			return nil
		},
	}
	app := setupApp(makeDeps(pins, nil, store))

	body := `{
		"project_id": "proj-1",
		"name": "Oak",
		"location": {"lat": 37.77, "lon": -122.41},
		"photos": [{"name": "leaf.jpg", "data": "aGVsbG8="}]
	}`
	status, respBody := doRequest(t, app, "POST", "/v1/pins", body)
	if status != 422 {
		t.Fatalf("expected 422, got %d: %s", status, respBody)
	}
	if !strings.Contains(string(respBody), "1 out of 1") {
		t.Errorf("expected aggregate upload error, got %s", respBody)
	}
}

func TestGetPin_NotFound(t *testing.T) {
	app := setupApp(makeDeps(nil, nil, nil))
	status, _ := doRequest(t, app, "GET", "/v1/pins/missing", "")
	if status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestAddNote(t *testing.T) {
	pins := &mockPinRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Pin, error) {
			return &domain.Pin{ID: id, ProjectID: "proj-1"}, nil
		},
	}
	app := setupApp(makeDeps(pins, nil, nil))

	status, body := doRequest(t, app, "POST", "/v1/pins/pin-1/notes", `{"text":"watered today"}`)
	if status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	var note domain.Note
	if err := json.Unmarshal(body, &note); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if note.Text != "watered today" {
		t.Errorf("unexpected note text %q", note.Text)
	}
}

func TestAutoCenter_DefaultFallback(t *testing.T) {
	// No pins, no location: the hard default viewport comes back.
	app := setupApp(makeDeps(nil, nil, nil))

	status, body := doRequest(t, app, "GET", "/v1/viewport/center?project_id=proj-1", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var result usecases.AutoCenterResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Default {
		t.Error("expected default viewport fallback")
	}
}

func TestAutoCenter_FramesProjectPins(t *testing.T) {
	pins := &mockPinRepo{
		listByProjectFn: func(ctx context.Context, projectID string) ([]domain.Pin, error) {
			return []domain.Pin{
				{ID: "a", Location: domain.GeoPoint{Lat: 0, Lon: 0}},
				{ID: "b", Location: domain.GeoPoint{Lat: 10, Lon: 10}},
			}, nil
		},
	}
	app := setupApp(makeDeps(pins, nil, nil))

	status, body := doRequest(t, app, "GET", "/v1/viewport/center?project_id=proj-1", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var result usecases.AutoCenterResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Default {
		t.Fatal("expected framed pins, not default")
	}
	if result.Viewport.Center.Lat != 5 || result.Viewport.Center.Lon != 5 {
		t.Errorf("expected center (5,5), got %+v", result.Viewport.Center)
	}
}

func TestGraphQL_PinsByProject(t *testing.T) {
	pins := &mockPinRepo{
		listByProjectFn: func(ctx context.Context, projectID string) ([]domain.Pin, error) {
			return []domain.Pin{
				{ID: "a", Name: "Oak", Tags: []string{"tree"}},
				{ID: "b", Name: "Fern", Tags: []string{"shrub"}},
			}, nil
		},
	}
	app := setupApp(makeDeps(pins, nil, nil))

	query := `{"query": "{ pinsByProject(project_id: \"proj-1\", tags: [\"tree\"]) { id name } }"}`
	status, body := doRequest(t, app, "POST", "/graphql", query)
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var result struct {
		Data struct {
			PinsByProject []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"pinsByProject"`
		} `json:"data"`
		Errors []any `json:"errors"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("graphql errors: %v", result.Errors)
	}
	if len(result.Data.PinsByProject) != 1 || result.Data.PinsByProject[0].Name != "Oak" {
		t.Errorf("expected only the tagged pin, got %+v", result.Data.PinsByProject)
	}
}

func TestETagConditionalGet(t *testing.T) {
	app := setupApp(makeDeps(nil, nil, nil))

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	etag := resp.Header.Get("ETag")
	resp.Body.Close()
	if etag == "" {
		t.Fatal("expected ETag header")
	}
	// Health body includes uptime so the tag changes between calls;
	// just confirm the weak-tag format here.
	if !strings.HasPrefix(etag, `W/"`) {
		t.Errorf("expected weak ETag, got %q", etag)
	}
}
