// Package chat validates chat requests, enforces the chat quota and opens the
// upstream completion stream.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"time"
	"unicode/utf8"

	"relay-api/internal/metrics"
	"relay-api/internal/ratelimit"
	"relay-api/internal/shared"
	"relay-api/internal/sse"
	"relay-api/internal/upstream"

	"go.uber.org/zap"
)

// Completer is the upstream provider as seen by the chat handler
type Completer interface {
	StreamCompletion(ctx context.Context, message string, history []shared.Turn) (*upstream.Response, error)
}

type Request struct {
	Message string
	History []shared.Turn
}

type ChatHandler struct {
	limiter  ratelimit.Limiter
	upstream Completer
	policy   ratelimit.Policy
	log      *zap.SugaredLogger
}

func NewChatHandler(limiter ratelimit.Limiter, completer Completer, log *zap.SugaredLogger) *ChatHandler {
	return &ChatHandler{
		limiter:  limiter,
		upstream: completer,
		policy:   ratelimit.ChatPolicy,
		log:      log,
	}
}

// Admit charges one unit of the caller's chat quota. A denied caller gets a
// *shared.RateLimitError.
func (h *ChatHandler) Admit(ctx context.Context, identity string) (ratelimit.Decision, error) {
	return ratelimit.Enforce(ctx, h.limiter, identity, h.policy)
}

type rawRequest struct {
	Message json.RawMessage `json:"message"`
	History json.RawMessage `json:"history"`
}

// ParseRequest validates the body. Length is counted in unicode code points.
func ParseRequest(body []byte) (*Request, error) {
	var raw rawRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Join(shared.ErrMessageRequired, err)
	}

	var message string
	if len(raw.Message) == 0 || json.Unmarshal(raw.Message, &message) != nil || message == "" {
		return nil, shared.ErrMessageRequired
	}
	if utf8.RuneCountInString(message) > shared.MaxMessageLength {
		return nil, shared.ErrMessageTooLong
	}

	var history []shared.Turn
	if len(raw.History) > 0 && string(raw.History) != "null" {
		if err := json.Unmarshal(raw.History, &history); err != nil {
			return nil, errors.Join(shared.ErrInvalidHistory, err)
		}
	}
	for _, turn := range history {
		if turn.Role != "user" && turn.Role != "model" {
			return nil, shared.ErrInvalidHistory
		}
	}
	if len(history) > shared.MaxHistoryTurns {
		history = history[len(history)-shared.MaxHistoryTurns:]
	}

	return &Request{Message: message, History: history}, nil
}

// Stream owns the upstream body until Close
type Stream struct {
	transcoder *sse.Transcoder
	body       io.ReadCloser
	cancel     context.CancelFunc
	started    time.Time
}

func (s *Stream) Chunks() iter.Seq2[string, error] {
	return s.transcoder.Chunks()
}

// Completed reports whether the upstream sent its done sentinel
func (s *Stream) Completed() bool {
	return s.transcoder.Completed()
}

func (s *Stream) Events() int {
	return s.transcoder.Events()
}

func (s *Stream) SkippedFrames() int {
	return s.transcoder.Skipped()
}

func (s *Stream) Started() time.Time {
	return s.started
}

// Close releases the upstream connection. Safe to call more than once.
func (s *Stream) Close() error {
	defer s.cancel()
	return s.body.Close()
}

// Open dials the provider. A non-2xx or unreachable provider becomes a
// *shared.RequestError mirroring its status with a generic message; the
// provider's own error text only reaches the logs.
func (h *ChatHandler) Open(ctx context.Context, req *Request) (*Stream, error) {
	sctx, cancel := context.WithTimeout(ctx, shared.DefaultStreamTimeout)
	started := time.Now()

	res, err := h.upstream.StreamCompletion(sctx, req.Message, req.History)
	if err != nil {
		cancel()
		return nil, errors.Join(shared.ErrInternalServerError, err)
	}
	if !res.OK {
		cancel()
		h.log.Errorw("Upstream request failed",
			"status_code", res.Status,
			"error", res.Err,
			"upstream_body", shared.Truncate(res.ErrorText, 1000))
		metrics.ErrorCount.WithLabelValues("chat", "upstream").Inc()
		status := res.Status
		if status < 400 {
			status = 502
		}
		return nil, errors.Join(&shared.RequestError{StatusCode: status, Err: errors.New(shared.UpstreamErrorMessage)}, res.Err)
	}

	return &Stream{
		transcoder: sse.NewTranscoder(res.Body),
		body:       res.Body,
		cancel:     cancel,
		started:    started,
	}, nil
}
