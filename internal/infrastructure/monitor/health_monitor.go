// Package monitor keeps every registered store's health status fresh. A
// sweep probes all stores concurrently on a fixed interval; the interval
// runs only while at least one subscriber is attached.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefleet/backend/internal/domain/commerce"
	"github.com/storefleet/backend/internal/domain/registry"
)

// ---------------------------------------------------------------------------
// Store Source
// ---------------------------------------------------------------------------

// StoreHealthSource supplies the stores to probe and accepts derived health
// results for persistence. The application layer implements it, so registry
// observers also hear about monitor writes.
type StoreHealthSource interface {
	// ListStores returns every registered store
	ListStores(ctx context.Context) ([]*registry.Store, error)

	// RecordHealth persists a probe result against one store
	RecordHealth(ctx context.Context, storeID uuid.UUID, report registry.HealthReport) error
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// HealthTransition is broadcast to subscribers when a store's derived
// status, message or response time actually changed.
type HealthTransition struct {
	StoreID        uuid.UUID            `json:"store_id"`
	StoreName      string               `json:"store_name"`
	PreviousStatus registry.StoreStatus `json:"previous_status"`
	Status         registry.StoreStatus `json:"status"`
	Message        string               `json:"message,omitempty"`
	ResponseTimeMs *int64               `json:"response_time_ms,omitempty"`
	CheckedAt      time.Time            `json:"checked_at"`
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// Config holds health monitor scheduling settings
type Config struct {
	// Interval is the delay between sweeps while subscribers are attached
	Interval time.Duration

	// ProbeTimeout is the per-attempt timeout for a single probe
	ProbeTimeout time.Duration

	// ProbeRetries is the number of additional attempts after a timed-out probe
	ProbeRetries int

	// SubscriberBuffer is the per-subscriber event channel capacity
	SubscriberBuffer int
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		Interval:         5 * time.Second,
		ProbeTimeout:     10 * time.Second,
		ProbeRetries:     2,
		SubscriberBuffer: 16,
	}
}

// ---------------------------------------------------------------------------
// HealthMonitor
// ---------------------------------------------------------------------------

// HealthMonitor owns the sweep scheduler, its subscriber registry and the
// per-store last results used for change detection. Instances are
// independent; nothing here is process-global.
type HealthMonitor struct {
	config Config
	source StoreHealthSource
	prober *Prober
	logger *zap.Logger

	mu          sync.Mutex
	subscribers map[uuid.UUID]chan HealthTransition
	cancel      context.CancelFunc
	isRunning   bool
	wg          sync.WaitGroup

	resultsMu   sync.RWMutex
	lastResults map[uuid.UUID]registry.HealthReport
	lastSweepAt time.Time
}

// NewHealthMonitor creates a health monitor
func NewHealthMonitor(config Config, source StoreHealthSource, factory commerce.StorefrontFactory, logger *zap.Logger) *HealthMonitor {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if config.SubscriberBuffer <= 0 {
		config.SubscriberBuffer = 16
	}

	return &HealthMonitor{
		config:      config,
		source:      source,
		prober:      NewProber(factory, config.ProbeTimeout, config.ProbeRetries, logger),
		logger:      logger,
		subscribers: make(map[uuid.UUID]chan HealthTransition),
		lastResults: make(map[uuid.UUID]registry.HealthReport),
	}
}

// Subscribe registers a health transition listener. The first subscriber
// starts the sweep ticker.
func (m *HealthMonitor) Subscribe() (uuid.UUID, <-chan HealthTransition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New()
	ch := make(chan HealthTransition, m.config.SubscriberBuffer)
	m.subscribers[id] = ch

	if !m.isRunning {
		m.startLocked()
	}

	m.logger.Debug("Health monitor subscriber added",
		zap.String("subscriber_id", id.String()),
		zap.Int("subscribers", len(m.subscribers)),
	)

	return id, ch
}

// Unsubscribe removes a listener and closes its channel. The last
// unsubscribe stops the ticker.
func (m *HealthMonitor) Unsubscribe(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.subscribers[id]
	if !ok {
		return
	}
	delete(m.subscribers, id)
	close(ch)

	if len(m.subscribers) == 0 && m.isRunning {
		m.stopLocked()
	}
}

// startLocked spawns the sweep loop. Caller holds mu.
func (m *HealthMonitor) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.isRunning = true

	m.wg.Add(1)
	go m.runLoop(ctx)

	m.logger.Info("Health monitor started",
		zap.Duration("interval", m.config.Interval),
		zap.Duration("probe_timeout", m.config.ProbeTimeout),
		zap.Int("probe_retries", m.config.ProbeRetries),
	)
}

// stopLocked cancels the sweep loop. Caller holds mu.
func (m *HealthMonitor) stopLocked() {
	m.cancel()
	m.isRunning = false
	m.logger.Info("Health monitor stopped")
}

// Shutdown stops the loop regardless of subscribers and waits for in-flight
// sweeps. Remaining subscriber channels are closed so attached clients see
// the end of the stream.
func (m *HealthMonitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.stopLocked()
	}
	for id, ch := range m.subscribers {
		delete(m.subscribers, id)
		close(ch)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop fires sweeps on the fixed interval until cancelled
func (m *HealthMonitor) runLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	// First sweep runs immediately so a fresh subscriber is not left staring
	// at stale statuses for a full interval.
	m.launchSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.launchSweep(ctx)
		}
	}
}

// launchSweep runs one sweep in its own goroutine. Ticks are scheduled
// independently of sweep completion, so a slow sweep can still be in flight
// when the next one fires.
func (m *HealthMonitor) launchSweep(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.sweep(ctx)
	}()
}

// sweep probes every registered store concurrently
func (m *HealthMonitor) sweep(ctx context.Context) {
	m.resultsMu.Lock()
	m.lastSweepAt = time.Now()
	m.resultsMu.Unlock()

	stores, err := m.source.ListStores(ctx)
	if err != nil {
		m.logger.Error("Failed to list stores for health sweep", zap.Error(err))
		return
	}

	m.pruneResults(stores)

	var wg sync.WaitGroup
	for _, store := range stores {
		wg.Add(1)
		go func(store *registry.Store) {
			defer wg.Done()
			m.probeAndRecord(ctx, store)
		}(store)
	}
	wg.Wait()
}

// CheckStore probes one store immediately, outside the sweep schedule, with
// the same persist and broadcast rules. The fresh report is returned whether
// or not it differed from the stored one.
func (m *HealthMonitor) CheckStore(ctx context.Context, store *registry.Store) registry.HealthReport {
	return m.probeAndRecord(ctx, store)
}

// probeAndRecord probes one store and persists plus broadcasts the result
// when the derived status, message or response time changed
func (m *HealthMonitor) probeAndRecord(ctx context.Context, store *registry.Store) registry.HealthReport {
	conn := commerce.StoreConnection{
		ID:             store.ID,
		Name:           store.Name,
		BaseURL:        store.BaseURL,
		ConsumerKey:    store.ConsumerKey,
		ConsumerSecret: store.ConsumerSecret,
	}

	report := m.prober.Probe(ctx, conn)
	if ctx.Err() != nil {
		// Shutdown mid-probe; an aborted attempt is not a store state.
		return report
	}

	if !m.healthChanged(store, report) {
		return report
	}

	if err := m.source.RecordHealth(ctx, store.ID, report); err != nil {
		// Leave the last-known result untouched so the next sweep retries
		// the write.
		m.logger.Error("Failed to persist health result",
			zap.String("store_id", store.ID.String()),
			zap.String("store_name", store.Name),
			zap.Error(err),
		)
		return report
	}

	m.storeResult(store.ID, report)

	m.logger.Info("Store health changed",
		zap.String("store_id", store.ID.String()),
		zap.String("store_name", store.Name),
		zap.String("previous_status", store.Status.String()),
		zap.String("status", report.Status.String()),
		zap.String("message", report.Message),
	)

	m.broadcast(HealthTransition{
		StoreID:        store.ID,
		StoreName:      store.Name,
		PreviousStatus: store.Status,
		Status:         report.Status,
		Message:        report.Message,
		ResponseTimeMs: report.ResponseTimeMs,
		CheckedAt:      report.CheckedAt,
	})

	return report
}

// healthChanged compares a probe result against the monitor's last-known
// result for the store, falling back to the persisted record for stores not
// probed since this monitor started.
func (m *HealthMonitor) healthChanged(store *registry.Store, report registry.HealthReport) bool {
	m.resultsMu.RLock()
	last, seen := m.lastResults[store.ID]
	m.resultsMu.RUnlock()

	if seen {
		return !sameResult(last, report)
	}
	return !store.HealthMatches(report)
}

func (m *HealthMonitor) storeResult(id uuid.UUID, report registry.HealthReport) {
	m.resultsMu.Lock()
	m.lastResults[id] = report
	m.resultsMu.Unlock()
}

// pruneResults drops change-detection state for stores no longer registered
func (m *HealthMonitor) pruneResults(stores []*registry.Store) {
	current := make(map[uuid.UUID]struct{}, len(stores))
	for _, store := range stores {
		current[store.ID] = struct{}{}
	}

	m.resultsMu.Lock()
	defer m.resultsMu.Unlock()
	for id := range m.lastResults {
		if _, ok := current[id]; !ok {
			delete(m.lastResults, id)
		}
	}
}

// broadcast delivers an event to every subscriber. Sends never block; a
// subscriber with a full buffer misses the event.
func (m *HealthMonitor) broadcast(event HealthTransition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, ch := range m.subscribers {
		select {
		case ch <- event:
		default:
			m.logger.Debug("Dropping health event for slow subscriber",
				zap.String("subscriber_id", id.String()),
				zap.String("store_name", event.StoreName),
			)
		}
	}
}

// sameResult compares two reports ignoring the check timestamp
func sameResult(a, b registry.HealthReport) bool {
	if a.Status != b.Status || a.Message != b.Message {
		return false
	}
	if a.ResponseTimeMs == nil || b.ResponseTimeMs == nil {
		return a.ResponseTimeMs == b.ResponseTimeMs
	}
	return *a.ResponseTimeMs == *b.ResponseTimeMs
}

// Stats reports monitor introspection for the operations endpoint
func (m *HealthMonitor) Stats(ctx context.Context) map[string]interface{} {
	m.mu.Lock()
	running := m.isRunning
	subscriberCount := len(m.subscribers)
	m.mu.Unlock()

	m.resultsMu.RLock()
	lastSweep := m.lastSweepAt
	m.resultsMu.RUnlock()

	stats := map[string]interface{}{
		"is_running":  running,
		"subscribers": subscriberCount,
		"interval":    m.config.Interval.String(),
	}
	if !lastSweep.IsZero() {
		stats["last_sweep_at"] = lastSweep.Format(time.RFC3339)
	}

	if stores, err := m.source.ListStores(ctx); err == nil {
		statusCounts := make(map[string]int)
		for _, store := range stores {
			statusCounts[store.Status.String()]++
		}
		stats["stores"] = len(stores)
		stats["store_status_counts"] = statusCounts
	}

	return stats
}
