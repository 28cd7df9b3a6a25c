package ports

import (
	"context"

	"github.com/canopylabs/canopy/internal/core/domain"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishPinEvent(ctx context.Context, event *domain.PinEvent) error
	PublishReminderDue(ctx context.Context, reminder *domain.Reminder) error
	PublishBroadcast(ctx context.Context, data []byte) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribePinEvents(ctx context.Context, handler func(ctx context.Context, event *domain.PinEvent) error) error
	SubscribeReminderDue(ctx context.Context, handler func(ctx context.Context, reminder *domain.Reminder) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// ObjectStore uploads photo blobs and returns their public URL.
// Implementations classify failures into domain.ErrBucketMissing,
// domain.ErrPermissionDenied, or pass the raw error through.
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte) (publicURL string, err error)
}

// LocationProvider resolves a user's last known device position.
type LocationProvider interface {
	CurrentPosition(ctx context.Context, userID string) (*domain.GeoPoint, error)
}

// NotificationService sends notifications (push, email, etc.).
type NotificationService interface {
	SendPush(ctx context.Context, userID, title, body string) error
}
