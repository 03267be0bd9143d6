package telemetry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"relay-api/internal/database"
	"relay-api/internal/ratelimit"
	"relay-api/internal/shared"

	"go.uber.org/zap"
)

type recordingSink struct {
	mu      sync.Mutex
	records []database.VitalRecord
}

func (s *recordingSink) Add(rec database.VitalRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func TestParseVital(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want error
	}{
		{name: "valid", body: `{"name":"LCP","value":1234.5,"id":"v1","page":"/blog","rating":"good"}`},
		{name: "no rating", body: `{"name":"CLS","value":0.02}`},
		{name: "zero value", body: `{"name":"TTFB","value":0}`},
		{name: "bad json", body: `{`, want: shared.ErrInvalidRequest},
		{name: "unknown name", body: `{"name":"XYZ","value":1}`, want: shared.ErrUnknownVital},
		{name: "lowercase name", body: `{"name":"lcp","value":1}`, want: shared.ErrUnknownVital},
		{name: "negative value", body: `{"name":"FID","value":-1}`, want: shared.ErrInvalidVitalValue},
		{name: "long page", body: `{"name":"INP","value":1,"page":"/` + strings.Repeat("a", shared.MaxPageLength) + `"}`, want: shared.ErrInvalidVitalPage},
		{name: "max id", body: `{"name":"LCP","value":1,"id":"` + strings.Repeat("x", shared.MaxMetricIDLength) + `"}`},
		{name: "long id", body: `{"name":"LCP","value":1,"id":"` + strings.Repeat("x", 4000) + `"}`, want: shared.ErrInvalidVitalID},
		{name: "bad rating", body: `{"name":"FCP","value":1,"rating":"great"}`, want: shared.ErrInvalidRating},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v, err := ParseVital([]byte(tc.body))
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if v == nil {
					t.Fatalf("expected a vital")
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRecordPassesBeaconToSink(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	h := NewTelemetryHandler(ratelimit.NewMemoryLimiter(), sink, zap.NewNop().Sugar())
	h.Record("req_1", &shared.Vital{Name: "LCP", Value: 900, ID: "m1", Page: "/", Rating: "good"})

	if len(sink.records) != 1 {
		t.Fatalf("expected one record, got %d", len(sink.records))
	}
	rec := sink.records[0]
	if rec.RequestID != "req_1" || rec.Name != "LCP" || rec.MetricID != "m1" || rec.CreatedAt.IsZero() {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestRecordAssignsMissingMetricID(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	h := NewTelemetryHandler(ratelimit.NewMemoryLimiter(), sink, zap.NewNop().Sugar())
	h.Record("req_1", &shared.Vital{Name: "FCP", Value: 300})
	h.Record("req_2", &shared.Vital{Name: "FCP", Value: 310})

	if len(sink.records) != 2 {
		t.Fatalf("expected two records, got %d", len(sink.records))
	}
	a, b := sink.records[0].MetricID, sink.records[1].MetricID
	if a == "" || b == "" || a == b {
		t.Fatalf("expected distinct generated ids, got %q and %q", a, b)
	}
}

func TestRecordWithoutSink(t *testing.T) {
	t.Parallel()

	h := NewTelemetryHandler(ratelimit.NewMemoryLimiter(), nil, zap.NewNop().Sugar())
	h.Record("req_1", &shared.Vital{Name: "CLS", Value: 0.1})
}

func TestAdmitUsesTelemetryQuota(t *testing.T) {
	t.Parallel()

	h := NewTelemetryHandler(ratelimit.NewMemoryLimiter(), nil, zap.NewNop().Sugar())
	for i := 0; i < shared.TelemetryRateLimit; i++ {
		if _, err := h.Admit(context.Background(), "10.0.0.1"); err != nil {
			t.Fatalf("request %d unexpectedly denied: %v", i, err)
		}
	}
	_, err := h.Admit(context.Background(), "10.0.0.1")
	var rl *shared.RateLimitError
	if !errors.As(err, &rl) || rl.Scope != ratelimit.ScopeTelemetry {
		t.Fatalf("expected telemetry rate limit error, got %v", err)
	}
}
