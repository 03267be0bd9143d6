package routers

import (
	"errors"
	"net/http"

	"relay-api/internal/ctx"
	"relay-api/internal/handlers/telemetry"
	"relay-api/internal/ratelimit"
	"relay-api/internal/shared"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type TelemetryRouter struct {
	th *telemetry.TelemetryHandler
}

// RegisterTelemetryRoutes mounts the beacon endpoint. sink may be nil when no
// telemetry database is configured.
func RegisterTelemetryRoutes(e *echo.Group, limiter ratelimit.Limiter, sink telemetry.Sink, log *zap.SugaredLogger) {
	telemetryRouter := TelemetryRouter{th: telemetry.NewTelemetryHandler(limiter, sink, log)}
	e.POST("/telemetry", telemetryRouter.Vital, emw.BodyLimit(shared.MaxTelemetryBody))
}

func (tr *TelemetryRouter) Vital(cc echo.Context) error {
	c := cc.(*ctx.Context)

	body, err := readRequestBody(c)
	if err != nil {
		return writeError(c, errors.Join(shared.ErrInvalidRequest, err))
	}

	decision, err := tr.th.Admit(c.Request().Context(), c.LogValues.CallerIdentity)
	c.LogValues.RateLimitScope = ratelimit.ScopeTelemetry
	c.LogValues.RateLimitRemaining = decision.Remaining
	if err != nil {
		return writeError(c, err)
	}

	vital, err := telemetry.ParseVital(body)
	if err != nil {
		return writeError(c, err)
	}
	tr.th.Record(c.Reqid, vital)
	return c.NoContent(http.StatusNoContent)
}
