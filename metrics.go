package segsieve

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordWindow is called after each window completes.
	// discovered is the number of new primes found in the window,
	// duration is the total time taken, err is nil if successful.
	RecordWindow(discovered int, duration time.Duration, err error)

	// RecordRun is called once after the engine reaches Done (or aborts).
	// primes is the total number of primes in the store.
	RecordRun(primes int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordWindow(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordRun(int, time.Duration, error)    {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	WindowCount      atomic.Int64
	WindowErrors     atomic.Int64
	WindowTotalNanos atomic.Int64
	PrimesFound      atomic.Int64
	RunCount         atomic.Int64
	RunErrors        atomic.Int64
	RunTotalNanos    atomic.Int64
}

// RecordWindow implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWindow(discovered int, duration time.Duration, err error) {
	b.WindowCount.Add(1)
	b.WindowTotalNanos.Add(duration.Nanoseconds())
	b.PrimesFound.Add(int64(discovered))
	if err != nil {
		b.WindowErrors.Add(1)
	}
}

// RecordRun implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRun(primes int, duration time.Duration, err error) {
	b.RunCount.Add(1)
	b.RunTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RunErrors.Add(1)
	}
}
