package http

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	"github.com/canopylabs/canopy/internal/core/domain"
	"github.com/canopylabs/canopy/internal/core/usecases"
	"github.com/canopylabs/canopy/internal/pkg/metrics"
)

// wsMessage is sent from client to drive a map session.
type wsMessage struct {
	Action    string   `json:"action"`     // "viewport" | "project" | "tags" | "preview" | "center"
	Lat       float64  `json:"lat"`        // viewport center
	Lon       float64  `json:"lon"`        //
	LatSpan   float64  `json:"lat_span"`   // viewport extent
	LonSpan   float64  `json:"lon_span"`   //
	ProjectID string   `json:"project_id"` // project / center
	UserID    string   `json:"user_id"`    // center
	Tags      []string `json:"tags"`       // tags / center
	Mode      string   `json:"mode"`       // center: "project-pins" | "user-location"
	Enabled   bool     `json:"enabled"`    // preview
}

// WebSocketHandler runs one map session per connection. Viewport changes
// stream in and are debounced server-side, so a pan burst costs a single
// database query; committed results stream back out. Pin change events
// from other sessions are relayed live over NATS.
//
// Clients send JSON like:
//
//	{"action":"viewport","lat":37.77,"lon":-122.41,"lat_span":0.5,"lon_span":0.5}
//	{"action":"project","project_id":"..."}
//	{"action":"tags","tags":["tree","young"]}
//	{"action":"center","mode":"project-pins","project_id":"..."}
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		log.Printf("ws client connected: %s", remoteAddr)
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Per-session viewport coordinator: fetches are grounded in the
		// pin service so cache and tag-filter semantics match REST.
		coordinator := usecases.NewViewportCoordinator(
			func(ctx context.Context, box domain.BoundingBox, projectID string, limit int) ([]domain.Pin, error) {
				metrics.ViewportFetches.Inc()
				return deps.Pins.FindInBounds(ctx, box, projectID, nil, limit)
			},
			usecases.OnResult(func(pins []domain.Pin, box domain.BoundingBox) {
				_ = writeJSON(fiber.Map{"type": "pins", "bounds": box, "pins": pins, "count": len(pins)})
			}),
			usecases.OnError(func(err error) {
				_ = writeJSON(fiber.Map{"type": "error", "error": err.Error()})
			}),
			usecases.OnPreview(func(p domain.GeoPoint) {
				_ = writeJSON(fiber.Map{"type": "preview", "location": p})
			}),
		)
		defer coordinator.Close()

		// Relay pin change events for the session's project.
		var natsSub *nats.Subscription
		subscribeProject := func(projectID string) {
			if deps.NATS == nil {
				return
			}
			if natsSub != nil {
				_ = natsSub.Unsubscribe()
				natsSub = nil
			}
			subject := "canopy.pin.>"
			if projectID != "" {
				subject = "canopy.pin." + projectID + ".>"
			}
			sub, err := deps.NATS.Subscribe(subject, func(msg *nats.Msg) {
				_ = writeJSON(fiber.Map{"type": "event", "event": json.RawMessage(msg.Data)})
			})
			if err != nil {
				log.Printf("ws subscribe error: %v", err)
				return
			}
			natsSub = sub
		}
		subscribeProject("")
		defer func() {
			if natsSub != nil {
				_ = natsSub.Unsubscribe()
			}
		}()

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(fiber.Map{"type": "error", "error": "invalid JSON"})
				continue
			}

			switch m.Action {
			case "viewport":
				coordinator.OnViewportChanged(ctx, domain.Viewport{
					Center:  domain.GeoPoint{Lat: m.Lat, Lon: m.Lon},
					LatSpan: m.LatSpan,
					LonSpan: m.LonSpan,
				})

			case "project":
				coordinator.SetProject(m.ProjectID)
				subscribeProject(m.ProjectID)
				_ = writeJSON(fiber.Map{"type": "project", "project_id": m.ProjectID})

			case "tags":
				coordinator.SetTags(m.Tags)
				_ = writeJSON(fiber.Map{"type": "tags", "tags": m.Tags})

			case "preview":
				coordinator.SetPreviewMode(m.Enabled)

			case "center":
				// Resolve asynchronously so a slow location lookup does not
				// block the read loop; a newer request supersedes this one.
				req := usecases.AutoCenterRequest{
					Mode:         domain.AutoCenterMode(m.Mode),
					ProjectID:    m.ProjectID,
					UserID:       m.UserID,
					SelectedTags: m.Tags,
				}
				go func() {
					result, err := deps.AutoCenter.Center(ctx, req)
					if err != nil {
						if err != usecases.ErrSuperseded {
							_ = writeJSON(fiber.Map{"type": "error", "error": err.Error()})
						}
						return
					}
					_ = writeJSON(fiber.Map{"type": "center", "result": result})
				}()

			default:
				_ = writeJSON(fiber.Map{"type": "error", "error": "unknown action: " + m.Action})
			}
		}

		close(done)
		log.Printf("ws client disconnected: %s", remoteAddr)
	}
}
