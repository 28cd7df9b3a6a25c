package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/canopylabs/canopy/internal/core/domain"
	"github.com/canopylabs/canopy/internal/core/usecases"
	"github.com/canopylabs/canopy/internal/pkg/metrics"
)

// WorkspaceStats holds row counts across the field-data tables.
type WorkspaceStats struct {
	Projects   int    `json:"projects"`
	Pins       int    `json:"pins"`
	Notes      int    `json:"notes"`
	Reminders  int    `json:"reminders"`
	LastChange string `json:"last_change,omitempty"`
}

// WorkspaceStatsHandler returns row counts from the canopy tables.
func WorkspaceStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.DB == nil {
			return errInternal(c, "database not available")
		}

		var stats WorkspaceStats
		row := deps.DB.Pool.QueryRow(c.Context(), `
			SELECT
				(SELECT count(*) FROM projects),
				(SELECT count(*) FROM pins),
				(SELECT count(*) FROM notes),
				(SELECT count(*) FROM reminders),
				COALESCE((SELECT max(updated_at)::text FROM pins), '')
		`)
		if err := row.Scan(&stats.Projects, &stats.Pins, &stats.Notes,
			&stats.Reminders, &stats.LastChange); err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(stats)
	}
}

// ListProjectsHandler returns a user's projects.
func ListProjectsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID := c.Query("owner_id")
		if ownerID == "" {
			return errBadRequest(c, "owner_id query parameter is required")
		}

		projects, err := deps.Projects.ListByOwner(c.Context(), ownerID)
		if err != nil {
			return errInternal(c, err.Error())
		}

		page, pg := paginate(c, projects, 200, 100)
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// CreateProjectHandler creates a new project.
func CreateProjectHandler(deps *Dependencies) fiber.Handler {
	type createProjectReq struct {
		OwnerID string `json:"owner_id"`
		Name    string `json:"name"`
		Public  bool   `json:"public"`
	}

	return func(c *fiber.Ctx) error {
		var req createProjectReq
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		project := &domain.Project{
			OwnerID: req.OwnerID,
			Name:    req.Name,
			Public:  req.Public,
		}
		if err := deps.Projects.Create(c.Context(), project); err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.Status(201).JSON(project)
	}
}

// GetProjectHandler returns a single project by ID.
func GetProjectHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "project id is required")
		}
		project, err := deps.Projects.GetByID(c.Context(), id)
		if err != nil {
			return errNotFound(c, "project not found")
		}
		return c.JSON(project)
	}
}

// DeleteProjectHandler removes a project and its pins.
func DeleteProjectHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "project id is required")
		}
		if err := deps.Projects.Delete(c.Context(), id); err != nil {
			return errNotFound(c, err.Error())
		}
		return c.SendStatus(204)
	}
}

// ProjectPinsHandler returns every pin in a project.
func ProjectPinsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "project id is required")
		}
		pins, err := deps.Pins.ListByProject(c.Context(), id)
		if err != nil {
			return errInternal(c, err.Error())
		}

		// Optional tag filter, comma-separated, superset semantics
		if raw := c.Query("tags"); raw != "" {
			pins = domain.FilterByTags(pins, splitTags(raw))
		}

		page, pg := paginate(c, pins, 500, 100)
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// ProjectTagsHandler returns the sorted unique tag vocabulary of a project.
func ProjectTagsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "project id is required")
		}
		tags, err := deps.Pins.ProjectTags(c.Context(), id)
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set("Cache-Control", "public, max-age=120")
		return c.JSON(fiber.Map{"tags": tags, "count": len(tags)})
	}
}

// PinsInBoundsHandler returns pins inside a bounding box, optionally tag-filtered.
// GET /v1/pins?north=&south=&east=&west=&project_id=&tags=tree,young&limit=
func PinsInBoundsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		box := domain.BoundingBox{
			North: c.QueryFloat("north", 0),
			South: c.QueryFloat("south", 0),
			East:  c.QueryFloat("east", 0),
			West:  c.QueryFloat("west", 0),
		}
		if box.North == 0 && box.South == 0 && box.East == 0 && box.West == 0 {
			return errBadRequest(c, "north, south, east and west are required")
		}

		limit := c.QueryInt("limit", 200)
		tags := splitTags(c.Query("tags"))

		pins, err := deps.Pins.FindInBounds(c.Context(), box, c.Query("project_id"), tags, limit)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=30")
		return c.JSON(fiber.Map{"pins": pins, "count": len(pins)})
	}
}

// NearbyPinsHandler returns pins within a radius of a point.
func NearbyPinsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat := c.QueryFloat("lat", 0)
		lon := c.QueryFloat("lon", 0)
		radius := c.QueryFloat("radius", 500)
		limit := c.QueryInt("limit", 20)

		if lat == 0 || lon == 0 {
			return errBadRequest(c, "lat and lon are required")
		}
		if radius <= 0 || radius > 10000 {
			return errBadRequest(c, "radius must be between 1 and 10000 meters")
		}
		if limit <= 0 || limit > 50 {
			limit = 20
		}

		pins, err := deps.Pins.FindNearby(c.Context(), lat, lon, radius, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(pins)
	}
}

// GetPinHandler returns a single pin by ID.
func GetPinHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "pin id is required")
		}
		pin, err := deps.Pins.GetByID(c.Context(), id)
		if err != nil {
			return errNotFound(c, "pin not found")
		}
		return c.JSON(pin)
	}
}

// photoReq carries one photo in a create/update request. Data is base64
// in JSON and decoded by encoding/json into the byte slice.
type photoReq struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

func toUploads(photos []photoReq) []usecases.PhotoUpload {
	uploads := make([]usecases.PhotoUpload, 0, len(photos))
	for _, p := range photos {
		uploads = append(uploads, usecases.PhotoUpload{Name: p.Name, Data: p.Data})
	}
	return uploads
}

// CreatePinHandler runs the create pipeline: upload photos, then create the pin.
func CreatePinHandler(deps *Dependencies) fiber.Handler {
	type createPinReq struct {
		ProjectID string          `json:"project_id"`
		Name      string          `json:"name"`
		Location  domain.GeoPoint `json:"location"`
		Tags      []string        `json:"tags"`
		Metadata  map[string]any  `json:"metadata"`
		Photos    []photoReq      `json:"photos"`
	}

	return func(c *fiber.Ctx) error {
		var req createPinReq
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		pin, err := deps.Pipeline.Create(c.Context(), usecases.CreatePinInput{
			ProjectID: req.ProjectID,
			Name:      req.Name,
			Location:  req.Location,
			Tags:      req.Tags,
			Metadata:  req.Metadata,
			Photos:    toUploads(req.Photos),
		})
		if err != nil {
			if strings.Contains(err.Error(), "photos failed to upload") {
				return errUnprocessable(c, err.Error())
			}
			return errBadRequest(c, err.Error())
		}
		metrics.PinsCreated.WithLabelValues(pin.ProjectID).Inc()
		return c.Status(201).JSON(pin)
	}
}

// UpdatePinHandler runs the update pipeline: upload new photos, then save changes.
func UpdatePinHandler(deps *Dependencies) fiber.Handler {
	type updatePinReq struct {
		Name     *string          `json:"name"`
		Location *domain.GeoPoint `json:"location"`
		Tags     []string         `json:"tags"`
		Metadata map[string]any   `json:"metadata"`
		Photos   []photoReq       `json:"photos"`
	}

	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "pin id is required")
		}

		var req updatePinReq
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		pin, err := deps.Pipeline.Update(c.Context(), usecases.UpdatePinInput{
			PinID:    id,
			Name:     req.Name,
			Location: req.Location,
			Tags:     req.Tags,
			Metadata: req.Metadata,
			Photos:   toUploads(req.Photos),
		})
		if err != nil {
			if strings.Contains(err.Error(), "photos failed to upload") {
				return errUnprocessable(c, err.Error())
			}
			return errBadRequest(c, err.Error())
		}
		return c.JSON(pin)
	}
}

// DeletePinHandler removes a pin; notes and reminders cascade.
func DeletePinHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "pin id is required")
		}
		if err := deps.Pins.Delete(c.Context(), id); err != nil {
			return errNotFound(c, err.Error())
		}
		return c.SendStatus(204)
	}
}

// PinNotesHandler returns a pin's notes in creation order.
func PinNotesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "pin id is required")
		}
		notes, err := deps.Pins.Notes(c.Context(), id)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(notes)
	}
}

// AddNoteHandler appends a note to a pin.
func AddNoteHandler(deps *Dependencies) fiber.Handler {
	type addNoteReq struct {
		Text string `json:"text"`
	}

	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "pin id is required")
		}
		var req addNoteReq
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		note, err := deps.Pins.AddNote(c.Context(), id, req.Text)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.Status(201).JSON(note)
	}
}

// PinRemindersHandler returns a pin's reminders, soonest first.
func PinRemindersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "pin id is required")
		}
		reminders, err := deps.Reminders.ListByPin(c.Context(), id)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(reminders)
	}
}

// CreateReminderHandler schedules a care reminder on a pin.
func CreateReminderHandler(deps *Dependencies) fiber.Handler {
	type createReminderReq struct {
		PinID                string         `json:"pin_id"`
		UserID               string         `json:"user_id"`
		Title                string         `json:"title"`
		DueAt                time.Time      `json:"due_at"`
		IntervalSeconds      int            `json:"interval_seconds"`
		EscalateAfterSeconds int            `json:"escalate_after_seconds"`
		Metadata             map[string]any `json:"metadata"`
	}

	return func(c *fiber.Ctx) error {
		var req createReminderReq
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		reminder := &domain.Reminder{
			PinID:         req.PinID,
			UserID:        req.UserID,
			Title:         req.Title,
			DueAt:         req.DueAt,
			Interval:      time.Duration(req.IntervalSeconds) * time.Second,
			EscalateAfter: time.Duration(req.EscalateAfterSeconds) * time.Second,
			Metadata:      req.Metadata,
		}
		if err := deps.Reminders.Create(c.Context(), reminder); err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.Status(201).JSON(reminder)
	}
}

// AcknowledgeReminderHandler marks a reminder as acknowledged.
func AcknowledgeReminderHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "reminder id is required")
		}
		if err := deps.Reminders.Acknowledge(c.Context(), id); err != nil {
			return errNotFound(c, err.Error())
		}
		return c.SendStatus(204)
	}
}

// CancelReminderHandler deletes a reminder.
func CancelReminderHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "reminder id is required")
		}
		if err := deps.Reminders.Cancel(c.Context(), id); err != nil {
			return errInternal(c, err.Error())
		}
		return c.SendStatus(204)
	}
}

// AutoCenterHandler resolves a viewport from the centering fallback chain.
// GET /v1/viewport/center?project_id=&user_id=&tags=&mode=
func AutoCenterHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := usecases.AutoCenterRequest{
			Mode:         domain.AutoCenterMode(c.Query("mode", string(domain.CenterOnProjectPins))),
			ProjectID:    c.Query("project_id"),
			UserID:       c.Query("user_id"),
			SelectedTags: splitTags(c.Query("tags")),
		}

		result, err := deps.AutoCenter.Center(c.Context(), req)
		if err != nil {
			if err == usecases.ErrSuperseded {
				return newError(c, 409, "superseded", "a newer centering request took over")
			}
			return errInternal(c, err.Error())
		}
		return c.JSON(result)
	}
}

// ReportLocationHandler stores a device position fix for auto-centering.
func ReportLocationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "user id is required")
		}
		if deps.Location == nil {
			return errInternal(c, "location store not available")
		}
		var p domain.GeoPoint
		if err := c.BodyParser(&p); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if err := deps.Location.ReportPosition(c.Context(), id, p); err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.SendStatus(204)
	}
}

// splitTags parses a comma-separated tag list, dropping empty entries.
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}
