// Package ctx
package ctx

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ContextLogValues should only be accessed for logging, and not for
// actual business logic, or any other logic
type ContextLogValues struct {
	// Added in base middleware
	RequestID       string
	StartTime       time.Time
	StatusCode      int
	RequestDuration time.Duration
	Path            string
	CallerIdentity  string

	// Added by rate limited routes
	RateLimitScope     string
	RateLimitRemaining int

	// Added by the chat route once streaming starts
	StreamInfo *StreamInfo

	// Override log Log Level
	// useful for streaming where status code might be sent before errors from
	// mid-stream occur
	LogLevel string

	// Added dynamically
	Error error
}

type StreamInfo struct {
	Chunks           int
	Bytes            int
	Events           int
	Completed        bool
	Canceled         bool
	SkippedFrames    int
	TimeToFirstChunk time.Duration
}

func (s *StreamInfo) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("chunks", s.Chunks)
	enc.AddInt("bytes", s.Bytes)
	enc.AddInt("events", s.Events)
	enc.AddBool("completed", s.Completed)
	enc.AddBool("canceled", s.Canceled)
	enc.AddInt("skipped_frames", s.SkippedFrames)
	enc.AddDuration("time_to_first_chunk", s.TimeToFirstChunk)
	return nil
}

// AddError adds errors to the error chain. Always add errors, even if only warnings.
// Log level is determined by the status code of the reuqest
func (c *ContextLogValues) AddError(err error) {
	if err == nil {
		return
	}
	if c.Error == nil {
		c.Error = err
		return
	}
	c.Error = fmt.Errorf("%w: %w", err, c.Error)
}

func (c *ContextLogValues) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("request_id", c.RequestID)
	enc.AddString("caller", c.CallerIdentity)
	enc.AddTime("start_time", c.StartTime)
	enc.AddDuration("request_duration", c.RequestDuration)
	enc.AddInt("status_code", c.StatusCode)
	if c.RateLimitScope != "" {
		enc.AddString("rate_limit_scope", c.RateLimitScope)
		enc.AddInt("rate_limit_remaining", c.RateLimitRemaining)
	}
	if c.StreamInfo != nil {
		if err := enc.AddObject("stream", c.StreamInfo); err != nil {
			return err
		}
	}
	if c.Error != nil {
		enc.AddString("error", c.Error.Error())
	}
	enc.AddString("path", c.Path)
	return nil
}

type Context struct {
	echo.Context
	Log       *zap.SugaredLogger
	Reqid     string
	LogValues *ContextLogValues
}
