package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers on GET responses based on endpoint.
// Adds sensible defaults if not already set by the handler.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != "GET" {
			return err
		}

		// Don't override if already set
		if existing := c.Get("Cache-Control"); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10" // Very short for system checks

		case path == "/metrics":
			ttl = "no-cache" // Metrics are real-time

		case path == "/graphql":
			ttl = "private, max-age=0" // GraphQL varies wildly

		case strings.HasPrefix(path, "/v1/pins/nearby"):
			ttl = "public, max-age=60" // Location queries move with the user

		case path == "/v1/pins":
			ttl = "public, max-age=30" // Viewport queries: fresh pins matter

		case strings.Contains(path, "/tags"):
			ttl = "public, max-age=120" // Tag vocabularies change slowly

		case strings.HasPrefix(path, "/v1/projects"):
			ttl = "private, max-age=60" // Project lists are per-user

		case strings.HasPrefix(path, "/v1/"):
			ttl = "public, max-age=60" // Default for API endpoints
		}

		if ttl != "" {
			c.Set("Cache-Control", ttl)
		}

		return err
	}
}
