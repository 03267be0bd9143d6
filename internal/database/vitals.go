// Package database defines the insertions to the telemetry database
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Execer is satisfied by *sql.DB and *sql.Tx
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type VitalRecord struct {
	RequestID string
	Name      string
	Value     float64
	MetricID  string
	Page      string
	Rating    string
	CreatedAt time.Time
}

// SaveVitals writes all records with a single multi-row insert
func SaveVitals(ctx context.Context, db Execer, records []VitalRecord) error {
	if len(records) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(`INSERT INTO web_vitals (
            request_id, name, value, metric_id, page, rating, created_at
        ) VALUES`)
	vals := make([]any, 0, len(records)*7)
	for i, r := range records {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(" (?, ?, ?, ?, ?, ?, ?)")
		vals = append(vals, r.RequestID, r.Name, r.Value, r.MetricID, r.Page, r.Rating, r.CreatedAt)
	}

	if _, err := db.ExecContext(ctx, b.String(), vals...); err != nil {
		return fmt.Errorf("failed to save web vitals: %w", err)
	}
	return nil
}
