package telemetry

// SLI metric names used for instrumentation.
const (
	// Latency
	MetricAPILatencyP50 = "api.latency.p50"
	MetricAPILatencyP95 = "api.latency.p95"
	MetricAPILatencyP99 = "api.latency.p99"

	// Throughput
	MetricRequestsPerSec = "api.requests_per_second"

	// Data freshness
	MetricPinFreshness    = "pins.data_age_seconds"
	MetricViewportLatency = "viewport.fetch_latency"

	// Availability
	MetricUptime = "service.uptime_percentage"

	// Business
	MetricPinsCreated        = "business.pins_created"
	MetricRemindersDelivered = "business.reminders_delivered"
)
