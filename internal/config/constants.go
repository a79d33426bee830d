package config

import "time"

const (
	// Task limits, matching the create form of the mini app
	MaxParticipantsLimit = 1000
	MinTaskDuration      = 1 * time.Minute
	DefaultTaskDuration  = 7 * 24 * time.Hour
	DefaultReward        = "0.001"

	// Listing
	DefaultTaskPageSize = 50
	MaxTaskPageSize     = 200

	// Notification fan-out buffer per subscriber
	SubscriberBuffer = 64

	// HTTP server
	ReadHeaderTimeout = 10 * time.Second
	ShutdownTimeout   = 20 * time.Second

	// Per-caller API limits
	RateLimitPerMinute = 120
	RateLimitBurst     = 30

	// SSE keep-alive comment interval
	EventsHeartbeat = 25 * time.Second

	// Max request body for JSON endpoints
	MaxBodyBytes = 1 << 20

	// Ops alerts
	OpsAlertTimeout = 10 * time.Second

	// Reconciliation batch
	ReconcileBatchSize = 100
)
