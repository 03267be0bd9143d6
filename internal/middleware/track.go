// Package middleware attaches request tracking and panic recovery
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"relay-api/internal/ctx"
	"relay-api/internal/metrics"
	"relay-api/internal/ratelimit"
	"relay-api/internal/shared"

	"github.com/aidarkhanov/nanoid"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func NewTrackMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqID, _ := nanoid.Generate(requestIDAlphabet, 28)
			reqID = "req_" + reqID
			caller := ratelimit.ClientIdentity(c.Request().Header)
			logger := log.With("request_id", reqID)
			c.Response().Header().Set(echo.HeaderXRequestID, reqID)

			cc := &ctx.Context{
				Context: c,
				Log:     logger,
				Reqid:   reqID,
				LogValues: &ctx.ContextLogValues{
					RequestID:      reqID,
					StartTime:      time.Now(),
					Path:           c.Path(),
					CallerIdentity: caller,
				},
			}
			err := next(cc)
			if err != nil {
				cc.LogValues.AddError(err)
				c.Error(err)
			}

			cc.LogValues.RequestDuration = time.Since(cc.LogValues.StartTime)
			cc.LogValues.StatusCode = cc.Response().Status
			logger.Desugar().Log(logLevel(cc.LogValues), "end_of_request", zap.Object("request", cc.LogValues))
			metrics.ResponseCodes.WithLabelValues(cc.Path(), fmt.Sprintf("%d", cc.Response().Status)).Inc()
			return nil
		}
	}
}

func logLevel(v *ctx.ContextLogValues) zapcore.Level {
	if v.LogLevel != "" {
		if lvl, err := zapcore.ParseLevel(v.LogLevel); err == nil {
			return lvl
		}
	}
	switch {
	case v.StatusCode >= 500:
		return zapcore.ErrorLevel
	case v.StatusCode >= 400 || v.Error != nil:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewHTTPErrorHandler answers errors that escape a handler, such as body
// limit or routing failures, with the same {"error": ...} body the routers
// use. Anything that is not an *echo.HTTPError stays an opaque 500.
func NewHTTPErrorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := shared.ErrInternalServerError.Message()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(code)
			}
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, shared.ErrorResponse{Error: msg})
		}
		if werr != nil {
			log.Warnw("Failed writing error response", "error", werr)
		}
	}
}

func NewRecoverMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return emw.RecoverWithConfig(emw.RecoverConfig{
		StackSize: 1 << 10, // 1 KB
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			defer func() {
				_ = log.Sync()
			}()
			log.Errorw("Api Panic", "error", err.Error(), "stack", string(stack))
			if c.Response().Committed {
				return nil
			}
			return c.JSON(http.StatusInternalServerError, shared.ErrorResponse{Error: shared.ErrInternalServerError.Message()})
		},
	})
}

// RequireBearer guards operational routes such as /metrics
func RequireBearer(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := shared.ExtractBearer(c)
			if err != nil || key == "" || token != key {
				return c.String(http.StatusUnauthorized, "Unauthorized")
			}
			return next(c)
		}
	}
}
