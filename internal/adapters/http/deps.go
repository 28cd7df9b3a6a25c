package http

import (
	"github.com/nats-io/nats.go"

	"github.com/canopylabs/canopy/internal/adapters/postgres"
	"github.com/canopylabs/canopy/internal/adapters/valkey"
	"github.com/canopylabs/canopy/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Projects   *usecases.ProjectService
	Pins       *usecases.PinService
	Reminders  *usecases.ReminderService
	Pipeline   *usecases.PinPipeline
	AutoCenter *usecases.AutoCenterService
	NATS       *nats.Conn
	DB         *postgres.DB
	Cache      *valkey.Cache
	Location   *valkey.LocationProvider
}
