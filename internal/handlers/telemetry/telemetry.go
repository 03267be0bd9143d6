// Package telemetry accepts web-vitals beacons from the site
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"
	"unicode/utf8"

	"relay-api/internal/database"
	"relay-api/internal/metrics"
	"relay-api/internal/ratelimit"
	"relay-api/internal/shared"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var knownVitals = map[string]bool{
	"CLS":  true,
	"FCP":  true,
	"FID":  true,
	"INP":  true,
	"LCP":  true,
	"TTFB": true,
}

var knownRatings = map[string]bool{
	"good":              true,
	"needs-improvement": true,
	"poor":              true,
}

// Sink receives accepted beacons for persistence
type Sink interface {
	Add(rec database.VitalRecord)
}

type TelemetryHandler struct {
	limiter ratelimit.Limiter
	sink    Sink
	policy  ratelimit.Policy
	log     *zap.SugaredLogger
}

// NewTelemetryHandler builds the handler. sink may be nil, in which case
// beacons only feed the metrics.
func NewTelemetryHandler(limiter ratelimit.Limiter, sink Sink, log *zap.SugaredLogger) *TelemetryHandler {
	return &TelemetryHandler{
		limiter: limiter,
		sink:    sink,
		policy:  ratelimit.TelemetryPolicy,
		log:     log,
	}
}

func (h *TelemetryHandler) Admit(ctx context.Context, identity string) (ratelimit.Decision, error) {
	return ratelimit.Enforce(ctx, h.limiter, identity, h.policy)
}

// ParseVital decodes and validates one beacon
func ParseVital(body []byte) (*shared.Vital, error) {
	var v shared.Vital
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, errors.Join(shared.ErrInvalidRequest, err)
	}
	if !knownVitals[v.Name] {
		return nil, shared.ErrUnknownVital
	}
	if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) || v.Value < 0 {
		return nil, shared.ErrInvalidVitalValue
	}
	if utf8.RuneCountInString(v.Page) > shared.MaxPageLength {
		return nil, shared.ErrInvalidVitalPage
	}
	// Column widths must hold, one oversized value fails the whole batch insert
	if utf8.RuneCountInString(v.ID) > shared.MaxMetricIDLength {
		return nil, shared.ErrInvalidVitalID
	}
	if v.Rating != "" && !knownRatings[v.Rating] {
		return nil, shared.ErrInvalidRating
	}
	return &v, nil
}

// Record observes the beacon and hands it to the sink. Beacons without an id
// get a random one so rows stay distinguishable.
func (h *TelemetryHandler) Record(requestID string, v *shared.Vital) {
	rating := v.Rating
	if rating == "" {
		rating = "unknown"
	}
	metrics.WebVitals.WithLabelValues(v.Name, rating).Observe(v.Value)
	if h.sink == nil {
		return
	}
	metricID := v.ID
	if metricID == "" {
		metricID = uuid.New().String()
	}
	h.sink.Add(database.VitalRecord{
		RequestID: requestID,
		Name:      v.Name,
		Value:     v.Value,
		MetricID:  metricID,
		Page:      v.Page,
		Rating:    v.Rating,
		CreatedAt: time.Now().UTC(),
	})
}
