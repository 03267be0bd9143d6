// Package buckets batches web vitals in memory and flushes them to the
// database on a timer or once a bucket fills up
package buckets

import (
	"context"
	"sync"
	"time"

	"relay-api/internal/database"
	"relay-api/internal/metrics"
	"relay-api/internal/shared"

	"go.uber.org/zap"
)

type VitalsBuffer struct {
	mu       sync.Mutex
	pending  []database.VitalRecord
	timer    *time.Timer
	closed   bool
	inflight sync.WaitGroup

	db         database.Execer
	log        *zap.SugaredLogger
	interval   time.Duration
	maxSize    int
	retryDelay time.Duration
}

func NewVitalsBuffer(log *zap.SugaredLogger, db database.Execer) *VitalsBuffer {
	return &VitalsBuffer{
		db:         db,
		log:        log,
		interval:   shared.BucketFlushInterval,
		maxSize:    shared.BucketMaxSize,
		retryDelay: shared.BucketRetryDelay,
	}
}

// Add queues a record. A full bucket is flushed right away, otherwise the
// first record of a fresh bucket arms the flush timer.
func (b *VitalsBuffer) Add(rec database.VitalRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.log.Debugw("Dropping web vital after shutdown", "name", rec.Name)
		return
	}
	b.pending = append(b.pending, rec)

	if len(b.pending) >= b.maxSize {
		b.stopTimer()
		batch := b.take()
		b.inflight.Add(1)
		go func() {
			defer b.inflight.Done()
			b.flush(batch)
		}()
		return
	}

	if b.timer == nil {
		b.armTimer()
	}
}

// armTimer must be called with mu held. The pending timer counts as an
// in-flight flush until it fires or is stopped.
func (b *VitalsBuffer) armTimer() {
	b.inflight.Add(1)
	var t *time.Timer
	t = time.AfterFunc(b.interval, func() {
		defer b.inflight.Done()
		b.mu.Lock()
		if b.timer == t {
			b.timer = nil
		}
		batch := b.take()
		b.mu.Unlock()
		b.flush(batch)
	})
	b.timer = t
}

// stopTimer must be called with mu held
func (b *VitalsBuffer) stopTimer() {
	if b.timer == nil {
		return
	}
	if b.timer.Stop() {
		b.inflight.Done()
	}
	b.timer = nil
}

// take must be called with mu held
func (b *VitalsBuffer) take() []database.VitalRecord {
	batch := b.pending
	b.pending = nil
	return batch
}

// Len is the number of records waiting for a flush
func (b *VitalsBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *VitalsBuffer) flush(batch []database.VitalRecord) bool {
	if len(batch) == 0 {
		return true
	}
	var err error
	for attempt := range shared.MaxFlushRetries {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = database.SaveVitals(ctx, b.db, batch)
		cancel()
		if err == nil {
			b.log.Infow("Flushed web vitals", "records", len(batch))
			return true
		}
		b.log.Warnw("Failed to flush web vitals", "error", err, "attempt", attempt+1)
		if attempt+1 < shared.MaxFlushRetries {
			time.Sleep(b.retryDelay)
		}
	}
	b.log.Errorw("Giving up on web vitals batch", "error", err, "records", len(batch))
	metrics.ErrorCount.WithLabelValues("telemetry", shared.ErrFlushVitals.Code).Inc()
	return false
}

// Shutdown stops accepting records, flushes what is pending and waits for
// in-flight flushes
func (b *VitalsBuffer) Shutdown() {
	b.log.Info("Shutting down web vitals buffer")
	b.mu.Lock()
	b.closed = true
	b.stopTimer()
	batch := b.take()
	b.mu.Unlock()

	b.flush(batch)
	b.inflight.Wait()
}
