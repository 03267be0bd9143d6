package routers

import (
	"context"
	"errors"
	"io"
	"time"

	"relay-api/internal/ctx"
	"relay-api/internal/handlers/chat"
	"relay-api/internal/metrics"
	"relay-api/internal/ratelimit"
	"relay-api/internal/shared"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type ChatRouter struct {
	ch *chat.ChatHandler
}

func RegisterChatRoutes(e *echo.Group, limiter ratelimit.Limiter, completer chat.Completer, log *zap.SugaredLogger) {
	chatRouter := ChatRouter{ch: chat.NewChatHandler(limiter, completer, log)}
	e.POST("/chat", chatRouter.Chat, emw.BodyLimit(shared.MaxChatBodySize))
}

func (cr *ChatRouter) Chat(cc echo.Context) error {
	c := cc.(*ctx.Context)
	reqCtx := c.Request().Context()

	body, err := readRequestBody(c)
	if err != nil {
		return writeError(c, errors.Join(shared.ErrInvalidRequest, err))
	}

	// Quota is charged before the body is validated, so malformed requests
	// count against the caller too
	decision, err := cr.ch.Admit(reqCtx, c.LogValues.CallerIdentity)
	c.LogValues.RateLimitScope = ratelimit.ScopeChat
	c.LogValues.RateLimitRemaining = decision.Remaining
	if err != nil {
		return writeError(c, err)
	}

	req, err := chat.ParseRequest(body)
	if err != nil {
		return writeError(c, err)
	}

	stream, err := cr.ch.Open(reqCtx, req)
	if err != nil {
		c.LogValues.LogLevel = "ERROR"
		metrics.StreamOutcomes.WithLabelValues("upstream_error").Inc()
		return writeError(c, err)
	}
	defer func() {
		_ = stream.Close()
	}()

	setupStreamHeaders(c)
	info := &ctx.StreamInfo{}
	c.LogValues.StreamInfo = info

	streamErr := pipeStream(reqCtx, c, stream, info)
	info.Completed = stream.Completed()
	info.Events = stream.Events()
	info.SkippedFrames = stream.SkippedFrames()
	metrics.StreamDuration.Observe(time.Since(stream.Started()).Seconds())

	// Headers are already out at this point, so failures are only logged
	switch {
	case reqCtx.Err() != nil:
		info.Canceled = true
		c.LogValues.AddError(errors.Join(shared.ErrClientCanceled, streamErr))
		metrics.ErrorCount.WithLabelValues("chat", shared.ErrClientCanceled.Code).Inc()
		metrics.StreamOutcomes.WithLabelValues("canceled").Inc()
	case streamErr != nil:
		c.LogValues.AddError(streamErr)
		c.LogValues.LogLevel = "ERROR"
		metrics.ErrorCount.WithLabelValues("chat", metricsCode(streamErr)).Inc()
		metrics.StreamOutcomes.WithLabelValues("failed").Inc()
	case !info.Completed:
		c.LogValues.AddError(shared.ErrMissingDoneToken)
		metrics.ErrorCount.WithLabelValues("chat", shared.ErrMissingDoneToken.Code).Inc()
		metrics.StreamOutcomes.WithLabelValues("incomplete").Inc()
	default:
		metrics.StreamOutcomes.WithLabelValues("completed").Inc()
	}
	return nil
}

// pipeStream pulls one chunk at a time and flushes it before asking for the
// next, so a slow caller slows down reads from the provider.
func pipeStream(reqCtx context.Context, c *ctx.Context, stream *chat.Stream, info *ctx.StreamInfo) error {
	w := c.Response()
	for chunk, err := range stream.Chunks() {
		if err != nil {
			return errors.Join(shared.ErrFailedReadingStream, err)
		}
		if reqCtx.Err() != nil {
			return reqCtx.Err()
		}
		if info.Chunks == 0 {
			info.TimeToFirstChunk = time.Since(stream.Started())
			metrics.TimeToFirstChunk.Observe(info.TimeToFirstChunk.Seconds())
		}
		n, err := io.WriteString(w, chunk)
		info.Bytes += n
		if err != nil {
			return errors.Join(shared.ErrFailedWritingStream, err)
		}
		w.Flush()
		info.Chunks++
		metrics.ChunksStreamed.Inc()
	}
	return nil
}

func metricsCode(err error) string {
	var merr *shared.MetricsError
	if errors.As(err, &merr) {
		return merr.Code
	}
	return "unknown"
}
