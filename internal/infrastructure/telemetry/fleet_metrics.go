// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// FleetMetrics provides service metrics for the store fleet dashboard.
// It tracks cross-store aggregations, health transitions, coupon pushes,
// exports, and the size and health of the registered fleet.
type FleetMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	aggregationTotal      *Counter
	storeFetchErrorTotal  *Counter
	healthTransitionTotal *Counter
	couponPushTotal       *Counter
	exportTotal           *Counter

	// Histogram metrics
	aggregationDuration *Histogram

	// Gauge metrics (point-in-time values)
	storesByStatus     *Gauge
	eventStreamClients *Gauge

	// Current connected event stream client count
	eventStreamCount atomic.Int64

	// Periodic collector
	stopChan        chan struct{}
	stopOnce        sync.Once
	collectOnce     sync.Once
	collectInterval time.Duration

	// Data provider for periodic collection
	statusProvider StoreStatusProvider
}

// StoreStatusProvider provides registry state for periodic metrics collection.
// This interface allows the telemetry layer to observe the store registry
// without depending on the registry domain directly.
type StoreStatusProvider interface {
	// GetStoreStatusCounts returns the number of registered stores per health
	// status. Implementations must include statuses with a zero count so the
	// gauge resets when the last store leaves a status.
	GetStoreStatusCounts(ctx context.Context) (map[string]int64, error)
}

// FleetMetricsConfig holds configuration for fleet metrics.
type FleetMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 1 minute
	StatusProvider  StoreStatusProvider
}

// NewFleetMetrics creates a new FleetMetrics instance.
func NewFleetMetrics(cfg FleetMetricsConfig) (*FleetMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fm := &FleetMetrics{
		meter:           cfg.Meter,
		logger:          logger,
		stopChan:        make(chan struct{}),
		statusProvider:  cfg.StatusProvider,
		collectInterval: cfg.CollectInterval,
	}

	// Initialize counter metrics
	var err error

	// Aggregation metrics
	fm.aggregationTotal, err = NewCounter(
		cfg.Meter,
		"storefleet_aggregation_total",
		"Total number of cross-store aggregation requests",
		"{requests}",
	)
	if err != nil {
		return nil, err
	}

	fm.storeFetchErrorTotal, err = NewCounter(
		cfg.Meter,
		"storefleet_store_fetch_error_total",
		"Total number of per-store fetch failures during aggregation",
		"{errors}",
	)
	if err != nil {
		return nil, err
	}

	// Health metrics
	fm.healthTransitionTotal, err = NewCounter(
		cfg.Meter,
		"storefleet_health_transition_total",
		"Total number of store health status transitions",
		"{transitions}",
	)
	if err != nil {
		return nil, err
	}

	// Coupon push metrics
	fm.couponPushTotal, err = NewCounter(
		cfg.Meter,
		"storefleet_coupon_push_total",
		"Total number of per-store coupon create attempts",
		"{pushes}",
	)
	if err != nil {
		return nil, err
	}

	// Export metrics
	fm.exportTotal, err = NewCounter(
		cfg.Meter,
		"storefleet_export_total",
		"Total number of export runs",
		"{exports}",
	)
	if err != nil {
		return nil, err
	}

	// Aggregation latency
	fm.aggregationDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "storefleet_aggregation_duration_seconds",
		Description: "Cross-store aggregation latency distribution in seconds",
		Unit:        "s",
		Boundaries:  UpstreamDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	// Fleet gauge metrics
	fm.storesByStatus, err = NewGauge(
		cfg.Meter,
		"storefleet_stores",
		"Number of registered stores by health status",
		"{stores}",
	)
	if err != nil {
		return nil, err
	}

	fm.eventStreamClients, err = NewGauge(
		cfg.Meter,
		"storefleet_event_stream_clients",
		"Number of connected dashboard event stream clients",
		"{clients}",
	)
	if err != nil {
		return nil, err
	}

	return fm, nil
}

// =============================================================================
// Aggregation Metrics
// =============================================================================

// RecordAggregation records a completed cross-store aggregation request.
// This should be called from the application layer after the fan-out finishes,
// regardless of how many stores contributed.
func (fm *FleetMetrics) RecordAggregation(ctx context.Context, resource string, duration time.Duration) {
	fm.aggregationTotal.Inc(ctx,
		AttrResource.String(resource),
	)
	fm.aggregationDuration.RecordDuration(ctx, duration,
		AttrResource.String(resource),
	)
}

// RecordStoreFetchError records a single store failing to contribute to an
// aggregation. Failed stores degrade to an empty contribution, so this counter
// is the only place those failures surface as metrics.
func (fm *FleetMetrics) RecordStoreFetchError(ctx context.Context, storeID uuid.UUID, resource string) {
	fm.storeFetchErrorTotal.Inc(ctx,
		AttrStoreID.String(storeID.String()),
		AttrResource.String(resource),
	)
}

// =============================================================================
// Health Metrics
// =============================================================================

// RecordHealthTransition records a store health status transition.
// This should be called when a probe result differs from the stored status.
func (fm *FleetMetrics) RecordHealthTransition(ctx context.Context, storeID uuid.UUID, previousStatus, status string) {
	fm.healthTransitionTotal.Inc(ctx,
		AttrStoreID.String(storeID.String()),
		AttrPreviousStatus.String(previousStatus),
		AttrStoreStatus.String(status),
	)
}

// =============================================================================
// Coupon Metrics
// =============================================================================

// PushStatus represents the outcome of a per-store coupon push for metrics labeling.
type PushStatus string

const (
	PushStatusSuccess PushStatus = "success"
	PushStatusFailed  PushStatus = "failed"
)

// RecordCouponPush records one store's outcome of a coupon fan-out.
// A single fan-out produces one event per selected store.
func (fm *FleetMetrics) RecordCouponPush(ctx context.Context, storeID uuid.UUID, status PushStatus) {
	fm.couponPushTotal.Inc(ctx,
		AttrStoreID.String(storeID.String()),
		AttrPushStatus.String(string(status)),
	)
}

// =============================================================================
// Export Metrics
// =============================================================================

// RecordExport records a completed export run.
func (fm *FleetMetrics) RecordExport(ctx context.Context, resource, format string) {
	fm.exportTotal.Inc(ctx,
		AttrResource.String(resource),
		AttrExportFormat.String(format),
	)
}

// =============================================================================
// Event Stream Metrics
// =============================================================================

// AddEventStreamClient records a dashboard client connecting to the event stream.
func (fm *FleetMetrics) AddEventStreamClient(ctx context.Context) {
	fm.eventStreamClients.Record(ctx, fm.eventStreamCount.Add(1))
}

// RemoveEventStreamClient records a dashboard client disconnecting from the event stream.
func (fm *FleetMetrics) RemoveEventStreamClient(ctx context.Context) {
	fm.eventStreamClients.Record(ctx, fm.eventStreamCount.Add(-1))
}

// EventStreamClientCount returns the current connected client count.
func (fm *FleetMetrics) EventStreamClientCount() int64 {
	return fm.eventStreamCount.Load()
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection starts periodic collection of fleet gauge metrics.
// It collects store status counts every interval; when interval is zero the
// configured CollectInterval applies, falling back to 1 minute.
// This is non-blocking - use Stop() to stop collection.
func (fm *FleetMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	fm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = fm.collectInterval
		}
		if interval <= 0 {
			interval = time.Minute
		}

		go fm.runPeriodicCollection(ctx, interval)
	})
}

// runPeriodicCollection runs the periodic collection loop.
func (fm *FleetMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	fm.collectRegistryMetrics(ctx)

	for {
		select {
		case <-fm.stopChan:
			fm.logger.Info("Stopping periodic fleet metrics collection")
			return
		case <-ctx.Done():
			fm.logger.Info("Context cancelled, stopping periodic fleet metrics collection")
			return
		case <-ticker.C:
			fm.collectRegistryMetrics(ctx)
		}
	}
}

// collectRegistryMetrics collects the store status gauge from the registry.
func (fm *FleetMetrics) collectRegistryMetrics(ctx context.Context) {
	if fm.statusProvider == nil {
		fm.logger.Debug("No store status provider configured, skipping fleet metrics collection")
		return
	}

	counts, err := fm.statusProvider.GetStoreStatusCounts(ctx)
	if err != nil {
		fm.logger.Error("Failed to get store status counts for metrics collection", zap.Error(err))
		return
	}

	for status, count := range counts {
		fm.storesByStatus.Record(ctx, count,
			AttrStoreStatus.String(status),
		)
	}
}

// Stop stops the periodic collection.
func (fm *FleetMetrics) Stop() {
	fm.stopOnce.Do(func() {
		close(fm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewFleetMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

// =============================================================================
// Attribute Key Constants
// =============================================================================

// Fleet metrics attribute keys not already defined in metrics.go
var (
	// AttrPreviousStatus labels health transitions with the status they left.
	AttrPreviousStatus = attribute.Key("previous_status")
)
