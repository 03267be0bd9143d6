package shared

import "time"

// HTTP Client Configuration
const (
	DefaultDialTimeout         = 5 * time.Second
	DefaultTLSHandshakeTimeout = 5 * time.Second
	DefaultResponseTimeout     = 30 * time.Second
	DefaultStreamTimeout       = 5 * time.Minute
	DefaultShutdownTimeout     = 30 * time.Second
	MaxUpstreamErrorBody       = 4 << 10
)

// Chat Configuration
const (
	MaxMessageLength = 4000
	MaxHistoryTurns  = 50
	MaxChatBodySize  = "256K"

	DefaultUpstreamEndpoint = "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions"
	DefaultUpstreamModel    = "gemini-2.0-flash"
	DefaultTemperature      = 0.7
	DefaultMaxTokens        = 1024
	DefaultTopP             = 0.95
)

// Rate Limit Configuration
const (
	ChatRateLimit       = 10
	ChatRateWindow      = 60 * time.Second
	TelemetryRateLimit  = 30
	TelemetryRateWindow = 60 * time.Second
	ContactRateLimit    = 5
	ContactRateWindow   = 10 * time.Minute

	RateLimitKeyPrefix     = "ratelimit"
	RateLimitRedisTimeout  = 500 * time.Millisecond
	MemoryLimiterSweepRate = 1 * time.Minute
)

// Bucket Configuration
const (
	BucketFlushInterval = 30 * time.Second
	BucketMaxSize       = 500
	BucketRetryDelay    = 2 * time.Second
	MaxFlushRetries     = 3
	MaxTelemetryBody    = "8K"
	MaxPageLength       = 512
	MaxMetricIDLength   = 128
)
