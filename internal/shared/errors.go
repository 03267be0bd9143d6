package shared

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// RequestError is used when we want a specific error message and StatusCode.
// The message inside Err is what the router returns to the caller, so it must
// never carry provider or database detail. Context for logging should be
// joined alongside it with errors.Join instead.
type RequestError struct {
	StatusCode int
	Err        error
}

func (r *RequestError) Error() string {
	return fmt.Sprintf("status %d: err %v", r.StatusCode, r.Err)
}

// Message is the caller facing part of the error
func (r *RequestError) Message() string {
	if r.Err == nil {
		return "request error"
	}
	return r.Err.Error()
}

// UpstreamErrorMessage is the only detail a caller sees about provider failures
const UpstreamErrorMessage = "Upstream service error"

var (
	ErrUnauthorized = &RequestError{Err: errors.New("unauthorized"), StatusCode: 401}

	ErrMessageRequired = &RequestError{Err: errors.New("message is required"), StatusCode: 400}
	ErrMessageTooLong  = &RequestError{Err: fmt.Errorf("message is too long (max %d characters)", MaxMessageLength), StatusCode: 400}
	ErrInvalidHistory  = &RequestError{Err: errors.New("history is invalid"), StatusCode: 400}
	ErrInvalidRequest  = &RequestError{Err: errors.New("invalid request body"), StatusCode: 400}

	ErrUnknownVital      = &RequestError{Err: errors.New("unknown web vital name"), StatusCode: 400}
	ErrInvalidVitalValue = &RequestError{Err: errors.New("web vital value must be a finite non-negative number"), StatusCode: 400}
	ErrInvalidVitalPage  = &RequestError{Err: fmt.Errorf("page is too long (max %d characters)", MaxPageLength), StatusCode: 400}
	ErrInvalidVitalID    = &RequestError{Err: fmt.Errorf("id is too long (max %d characters)", MaxMetricIDLength), StatusCode: 400}
	ErrInvalidRating     = &RequestError{Err: errors.New("rating must be good, needs-improvement or poor"), StatusCode: 400}

	ErrInternalServerError = &RequestError{Err: errors.New("internal server error"), StatusCode: 500}

	ErrUpstreamRequest     = &MetricsError{Msg: "failed to send http request to upstream", Code: "upstream_http_err"}
	ErrUpstreamStatus      = &MetricsError{Msg: "upstream responded with non-2xx", Code: "upstream_status_err"}
	ErrFailedReadingStream = &MetricsError{Msg: "failed to read upstream stream", Code: "stream_read_err"}
	ErrFailedWritingStream = &MetricsError{Msg: "failed to write to client", Code: "stream_write_err"}
	ErrMissingDoneToken    = &MetricsError{Msg: "missing [DONE] token", Code: "missing_done_token"}
	ErrClientCanceled      = &MetricsError{Msg: "client canceled stream", Code: "client_canceled"}
	ErrLimiterBackend      = &MetricsError{Msg: "rate limit backend unavailable", Code: "limiter_backend_err"}
	ErrFlushVitals         = &MetricsError{Msg: "failed to flush web vitals", Code: "flush_vitals_err"}
)

type MetricsError struct {
	Msg  string
	Code string
}

func (m *MetricsError) Error() string {
	return m.String()
}

func (m *MetricsError) String() string {
	return m.Msg
}

// RateLimitError is returned when a caller exhausted its quota for a scope
type RateLimitError struct {
	Scope   string
	ResetAt time.Time
}

func (r *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for scope %s", r.Scope)
}

// RetryAfter returns the whole seconds until the window resets, never negative
func (r *RateLimitError) RetryAfter(now time.Time) int {
	wait := r.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return int(math.Ceil(wait.Seconds()))
}
