package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/canopylabs/canopy/internal/pkg/metrics"
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed, // Balance speed vs compression ratio
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(429).JSON(fiber.Map{
				"error":   "rate limit exceeded",
				"message": "too many requests, please try again later",
			})
		},
		SkipFailedRequests: false,
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// The old near-pins endpoint moved under /v1/pins/nearby
	app.Use(DeprecationMiddleware([]DeprecatedRoute{
		{
			Path:        "/v1/pins/near",
			SunsetDate:  time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC),
			Alternative: "/v1/pins/nearby",
		},
	}))

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout — fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// REST API v1 — 15s per-request timeout
	v1 := app.Group("/v1")
	v1.Get("/projects", timeout.NewWithContext(ListProjectsHandler(deps), 15*time.Second))
	v1.Post("/projects", timeout.NewWithContext(CreateProjectHandler(deps), 15*time.Second))
	v1.Get("/projects/:id", timeout.NewWithContext(GetProjectHandler(deps), 15*time.Second))
	v1.Delete("/projects/:id", timeout.NewWithContext(DeleteProjectHandler(deps), 15*time.Second))
	v1.Get("/projects/:id/pins", timeout.NewWithContext(ProjectPinsHandler(deps), 15*time.Second))
	v1.Get("/projects/:id/tags", timeout.NewWithContext(ProjectTagsHandler(deps), 15*time.Second))

	v1.Get("/pins", timeout.NewWithContext(PinsInBoundsHandler(deps), 15*time.Second))
	v1.Get("/pins/nearby", timeout.NewWithContext(NearbyPinsHandler(deps), 15*time.Second))
	v1.Get("/pins/near", timeout.NewWithContext(NearbyPinsHandler(deps), 15*time.Second))
	// Uploads get a longer window: three attempts per photo worst case
	v1.Post("/pins", timeout.NewWithContext(CreatePinHandler(deps), 120*time.Second))
	v1.Get("/pins/:id", timeout.NewWithContext(GetPinHandler(deps), 15*time.Second))
	v1.Patch("/pins/:id", timeout.NewWithContext(UpdatePinHandler(deps), 120*time.Second))
	v1.Delete("/pins/:id", timeout.NewWithContext(DeletePinHandler(deps), 15*time.Second))
	v1.Get("/pins/:id/notes", timeout.NewWithContext(PinNotesHandler(deps), 15*time.Second))
	v1.Post("/pins/:id/notes", timeout.NewWithContext(AddNoteHandler(deps), 15*time.Second))
	v1.Get("/pins/:id/reminders", timeout.NewWithContext(PinRemindersHandler(deps), 15*time.Second))

	v1.Post("/reminders", timeout.NewWithContext(CreateReminderHandler(deps), 15*time.Second))
	v1.Post("/reminders/:id/ack", timeout.NewWithContext(AcknowledgeReminderHandler(deps), 15*time.Second))
	v1.Delete("/reminders/:id", timeout.NewWithContext(CancelReminderHandler(deps), 15*time.Second))

	v1.Post("/users/:id/location", timeout.NewWithContext(ReportLocationHandler(deps), 15*time.Second))
	v1.Get("/viewport/center", timeout.NewWithContext(AutoCenterHandler(deps), 15*time.Second))
	v1.Get("/stats", timeout.NewWithContext(WorkspaceStatsHandler(deps), 15*time.Second))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// WebSocket map sessions
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps)))
}
