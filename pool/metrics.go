package pool

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordSnapshot is called after each snapshot of a byte range.
	// bytes is the number of pre-image bytes written to the undo log, which
	// is zero when the range was already covered.
	RecordSnapshot(bytes int, duration time.Duration, err error)

	// RecordCommit is called after each commit.
	RecordCommit(duration time.Duration, err error)

	// RecordAbort is called after each abort. restored is the number of
	// pre-images copied back.
	RecordAbort(restored int, duration time.Duration, err error)

	// RecordRecovery is called once per Open that found a non-empty undo log.
	RecordRecovery(rolledBack int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSnapshot(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordCommit(time.Duration, error)        {}
func (NoopMetricsCollector) RecordAbort(int, time.Duration, error)    {}
func (NoopMetricsCollector) RecordRecovery(int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SnapshotCount      atomic.Int64
	SnapshotErrors     atomic.Int64
	SnapshotBytes      atomic.Int64
	SnapshotTotalNanos atomic.Int64
	CommitCount        atomic.Int64
	CommitErrors       atomic.Int64
	CommitTotalNanos   atomic.Int64
	AbortCount         atomic.Int64
	AbortErrors        atomic.Int64
	RestoredRanges     atomic.Int64
	RecoveryCount      atomic.Int64
	RolledBack         atomic.Int64
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(bytes int, duration time.Duration, err error) {
	b.SnapshotCount.Add(1)
	b.SnapshotBytes.Add(int64(bytes))
	b.SnapshotTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(duration time.Duration, err error) {
	b.CommitCount.Add(1)
	b.CommitTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CommitErrors.Add(1)
	}
}

// RecordAbort implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAbort(restored int, _ time.Duration, err error) {
	b.AbortCount.Add(1)
	b.RestoredRanges.Add(int64(restored))
	if err != nil {
		b.AbortErrors.Add(1)
	}
}

// RecordRecovery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRecovery(rolledBack int, _ time.Duration, _ error) {
	b.RecoveryCount.Add(1)
	b.RolledBack.Add(int64(rolledBack))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SnapshotCount:    b.SnapshotCount.Load(),
		SnapshotErrors:   b.SnapshotErrors.Load(),
		SnapshotBytes:    b.SnapshotBytes.Load(),
		SnapshotAvgNanos: avg(b.SnapshotTotalNanos.Load(), b.SnapshotCount.Load()),
		CommitCount:      b.CommitCount.Load(),
		CommitErrors:     b.CommitErrors.Load(),
		CommitAvgNanos:   avg(b.CommitTotalNanos.Load(), b.CommitCount.Load()),
		AbortCount:       b.AbortCount.Load(),
		AbortErrors:      b.AbortErrors.Load(),
		RestoredRanges:   b.RestoredRanges.Load(),
		RecoveryCount:    b.RecoveryCount.Load(),
		RolledBack:       b.RolledBack.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SnapshotCount    int64
	SnapshotErrors   int64
	SnapshotBytes    int64
	SnapshotAvgNanos int64
	CommitCount      int64
	CommitErrors     int64
	CommitAvgNanos   int64
	AbortCount       int64
	AbortErrors      int64
	RestoredRanges   int64
	RecoveryCount    int64
	RolledBack       int64
}
