package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// MaxCallDuration caps the reported duration of every call.
const MaxCallDuration = 30 * time.Second

// Real-time transport
const (
	SessionEventBuffer = 100
	HeartbeatInterval  = 30 * time.Second
)

// Guest SSE connections per IP per minute
const GuestConnectLimitPerMin = 30

// Default rate limiting
const DefaultRateLimitPerMin = 60

// Moment content limits
const MaxMomentContentLength = 500
