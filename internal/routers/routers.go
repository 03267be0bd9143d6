// Package routers binds handlers to echo routes and maps their errors to
// responses
package routers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"relay-api/internal/ctx"
	"relay-api/internal/shared"

	"github.com/labstack/echo/v4"
)

func readRequestBody(c *ctx.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		c.Log.Errorw("Failed to read request body", "error", err.Error())
		return nil, err
	}
	return body, nil
}

func setupStreamHeaders(c *ctx.Context) {
	c.Response().Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	c.Response().Header().Set("X-Content-Type-Options", "nosniff")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()
}

// writeError records err and answers with the response it maps to. Only
// RequestError messages reach the caller; anything else is an opaque 500.
func writeError(c *ctx.Context, err error) error {
	c.LogValues.AddError(err)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}

	var rlerr *shared.RateLimitError
	if errors.As(err, &rlerr) {
		retryAfter := rlerr.RetryAfter(time.Now())
		c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
		return c.JSON(http.StatusTooManyRequests, shared.RateLimitResponse{
			Error:      "Too many requests",
			RetryAfter: retryAfter,
		})
	}

	var rerr *shared.RequestError
	if errors.As(err, &rerr) {
		return c.JSON(rerr.StatusCode, shared.ErrorResponse{Error: rerr.Message()})
	}
	return c.JSON(http.StatusInternalServerError, shared.ErrorResponse{Error: shared.ErrInternalServerError.Message()})
}
