package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefleet/backend/internal/domain/commerce"
	"github.com/storefleet/backend/internal/domain/registry"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

type recordedHealth struct {
	storeID uuid.UUID
	report  registry.HealthReport
}

// fakeHealthSource is an in-memory StoreHealthSource capturing persisted results
type fakeHealthSource struct {
	mu         sync.Mutex
	stores     []*registry.Store
	records    []recordedHealth
	failRecord bool
}

func (f *fakeHealthSource) ListStores(ctx context.Context) ([]*registry.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*registry.Store, len(f.stores))
	copy(out, f.stores)
	return out, nil
}

func (f *fakeHealthSource) RecordHealth(ctx context.Context, storeID uuid.UUID, report registry.HealthReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRecord {
		return errors.New("kv write failed")
	}
	f.records = append(f.records, recordedHealth{storeID: storeID, report: report})
	return nil
}

func (f *fakeHealthSource) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeHealthSource) setFailRecord(fail bool) {
	f.mu.Lock()
	f.failRecord = fail
	f.mu.Unlock()
}

func (f *fakeHealthSource) setStores(stores []*registry.Store) {
	f.mu.Lock()
	f.stores = stores
	f.mu.Unlock()
}

func newMonitorStore(t *testing.T, name string) *registry.Store {
	t.Helper()
	store, err := registry.NewStore(name, "https://"+name+".example.com", "ck_test", "cs_test", true)
	require.NoError(t, err)
	return store
}

func newTestMonitor(source StoreHealthSource, storefront commerce.Storefront, interval time.Duration) *HealthMonitor {
	config := Config{
		Interval:         interval,
		ProbeTimeout:     time.Second,
		ProbeRetries:     0,
		SubscriberBuffer: 16,
	}
	return NewHealthMonitor(config, source, &stubFactory{storefront: storefront}, newTestLogger())
}

// authFailure gives probes a deterministic failed result: constant message,
// no response time, so consecutive sweeps compare equal.
func authFailure() *scriptedStorefront {
	return &scriptedStorefront{script: []error{
		fmt.Errorf("%w: HTTP %d", commerce.ErrStoreAuthFailed, 401),
	}}
}

func waitForTransition(t *testing.T, events <-chan HealthTransition) HealthTransition {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for health transition")
		return HealthTransition{}
	}
}

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 5*time.Second, config.Interval)
	assert.Equal(t, 10*time.Second, config.ProbeTimeout)
	assert.Equal(t, 2, config.ProbeRetries)
	assert.Equal(t, 16, config.SubscriberBuffer)
}

// ---------------------------------------------------------------------------
// Lifecycle Tests
// ---------------------------------------------------------------------------

func TestHealthMonitor_SubscribeStartsSweeping(t *testing.T) {
	store := newMonitorStore(t, "shop-a")
	source := &fakeHealthSource{stores: []*registry.Store{store}}
	m := newTestMonitor(source, authFailure(), 20*time.Millisecond)
	defer m.Shutdown(context.Background())

	id, events := m.Subscribe()
	defer m.Unsubscribe(id)

	event := waitForTransition(t, events)
	assert.Equal(t, store.ID, event.StoreID)
	assert.Equal(t, "shop-a", event.StoreName)
	assert.Equal(t, registry.StoreStatusUnknown, event.PreviousStatus)
	assert.Equal(t, registry.StoreStatusError, event.Status)
	assert.Equal(t, "store authentication failed: HTTP 401", event.Message)
	assert.Nil(t, event.ResponseTimeMs)

	stats := m.Stats(context.Background())
	assert.Equal(t, true, stats["is_running"])
	assert.Equal(t, 1, stats["subscribers"])
	assert.Equal(t, 1, source.recordCount())
}

func TestHealthMonitor_NoWriteWhenResultUnchanged(t *testing.T) {
	store := newMonitorStore(t, "shop-a")
	source := &fakeHealthSource{stores: []*registry.Store{store}}
	m := newTestMonitor(source, authFailure(), 20*time.Millisecond)
	defer m.Shutdown(context.Background())

	id, events := m.Subscribe()
	defer m.Unsubscribe(id)

	waitForTransition(t, events)

	// Several more sweeps return the identical result; none may write or
	// notify.
	select {
	case extra := <-events:
		t.Fatalf("unexpected transition for unchanged result: %+v", extra)
	case <-time.After(150 * time.Millisecond):
	}
	assert.Equal(t, 1, source.recordCount())
}

func TestHealthMonitor_TickerRunsWhileAnySubscriber(t *testing.T) {
	store := newMonitorStore(t, "shop-a")
	source := &fakeHealthSource{stores: []*registry.Store{store}}

	// Distinct failures per sweep keep transitions flowing to whoever is
	// still attached.
	storefront := &scriptedStorefront{script: []error{
		fmt.Errorf("%w: HTTP %d", commerce.ErrStoreRequestFailed, 500),
		fmt.Errorf("%w: HTTP %d", commerce.ErrStoreRequestFailed, 502),
		fmt.Errorf("%w: HTTP %d", commerce.ErrStoreRequestFailed, 503),
		fmt.Errorf("%w: HTTP %d", commerce.ErrStoreRequestFailed, 504),
		fmt.Errorf("%w: HTTP %d", commerce.ErrStoreRequestFailed, 505),
		fmt.Errorf("%w: HTTP %d", commerce.ErrStoreRequestFailed, 507),
	}}
	m := newTestMonitor(source, storefront, 20*time.Millisecond)
	defer m.Shutdown(context.Background())

	first, _ := m.Subscribe()
	second, secondEvents := m.Subscribe()

	m.Unsubscribe(first)
	assert.Equal(t, true, m.Stats(context.Background())["is_running"])

	// The remaining subscriber still receives transitions.
	waitForTransition(t, secondEvents)

	m.Unsubscribe(second)
	assert.Equal(t, false, m.Stats(context.Background())["is_running"])
}

func TestHealthMonitor_LastUnsubscribeStopsSweeping(t *testing.T) {
	store := newMonitorStore(t, "shop-a")
	source := &fakeHealthSource{stores: []*registry.Store{store}}
	m := newTestMonitor(source, authFailure(), 20*time.Millisecond)
	defer m.Shutdown(context.Background())

	id, events := m.Subscribe()
	waitForTransition(t, events)

	m.Unsubscribe(id)
	assert.Equal(t, false, m.Stats(context.Background())["is_running"])

	// Channel is closed so an attached client can unwind.
	for {
		if _, open := <-events; !open {
			break
		}
	}

	count := source.recordCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, count, source.recordCount())
}

func TestHealthMonitor_Shutdown(t *testing.T) {
	store := newMonitorStore(t, "shop-a")
	source := &fakeHealthSource{stores: []*registry.Store{store}}
	m := newTestMonitor(source, authFailure(), 20*time.Millisecond)

	_, events := m.Subscribe()
	waitForTransition(t, events)

	require.NoError(t, m.Shutdown(context.Background()))

	stats := m.Stats(context.Background())
	assert.Equal(t, false, stats["is_running"])
	assert.Equal(t, 0, stats["subscribers"])

	for {
		select {
		case _, open := <-events:
			if !open {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber channel not closed on shutdown")
		}
	}
}

// ---------------------------------------------------------------------------
// Probe Recording Tests
// ---------------------------------------------------------------------------

func TestHealthMonitor_CheckStore(t *testing.T) {
	store := newMonitorStore(t, "shop-a")
	source := &fakeHealthSource{stores: []*registry.Store{store}}
	m := newTestMonitor(source, authFailure(), time.Hour)

	report := m.CheckStore(context.Background(), store)
	assert.Equal(t, registry.StoreStatusError, report.Status)
	assert.Equal(t, 1, source.recordCount())

	// Manual checks never start the ticker.
	assert.Equal(t, false, m.Stats(context.Background())["is_running"])

	// An identical follow-up result is returned but not written again.
	again := m.CheckStore(context.Background(), store)
	assert.Equal(t, report.Status, again.Status)
	assert.Equal(t, report.Message, again.Message)
	assert.Equal(t, 1, source.recordCount())
}

func TestHealthMonitor_RetriesWriteAfterStorageFailure(t *testing.T) {
	store := newMonitorStore(t, "shop-a")
	source := &fakeHealthSource{stores: []*registry.Store{store}, failRecord: true}
	m := newTestMonitor(source, authFailure(), 20*time.Millisecond)
	defer m.Shutdown(context.Background())

	id, events := m.Subscribe()
	defer m.Unsubscribe(id)

	// While the write fails nothing is broadcast.
	select {
	case event := <-events:
		t.Fatalf("unexpected transition while storage failing: %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 0, source.recordCount())

	// Once storage recovers the next sweep lands the write and notifies.
	source.setFailRecord(false)
	waitForTransition(t, events)
	assert.Equal(t, 1, source.recordCount())
}

func TestHealthMonitor_SlowSubscriberNeverBlocksSweeps(t *testing.T) {
	store := newMonitorStore(t, "shop-a")
	source := &fakeHealthSource{stores: []*registry.Store{store}}
	storefront := &scriptedStorefront{script: []error{
		fmt.Errorf("%w: HTTP %d", commerce.ErrStoreRequestFailed, 500),
		fmt.Errorf("%w: HTTP %d", commerce.ErrStoreRequestFailed, 502),
		fmt.Errorf("%w: HTTP %d", commerce.ErrStoreRequestFailed, 503),
		fmt.Errorf("%w: HTTP %d", commerce.ErrStoreRequestFailed, 504),
		fmt.Errorf("%w: HTTP %d", commerce.ErrStoreRequestFailed, 505),
		fmt.Errorf("%w: HTTP %d", commerce.ErrStoreRequestFailed, 507),
	}}

	config := Config{
		Interval:         20 * time.Millisecond,
		ProbeTimeout:     time.Second,
		SubscriberBuffer: 1,
	}
	m := NewHealthMonitor(config, source, &stubFactory{storefront: storefront}, newTestLogger())
	defer m.Shutdown(context.Background())

	// Subscribe but never read; the one-slot buffer fills immediately.
	m.Subscribe()

	assert.Eventually(t, func() bool {
		return source.recordCount() >= 4
	}, 2*time.Second, 10*time.Millisecond, "sweeps stalled behind a slow subscriber")
}

func TestHealthMonitor_PrunesDepartedStores(t *testing.T) {
	store := newMonitorStore(t, "shop-a")
	source := &fakeHealthSource{stores: []*registry.Store{store}}
	m := newTestMonitor(source, authFailure(), time.Hour)

	m.CheckStore(context.Background(), store)

	m.resultsMu.RLock()
	seeded := len(m.lastResults)
	m.resultsMu.RUnlock()
	require.Equal(t, 1, seeded)

	source.setStores(nil)
	m.sweep(context.Background())

	m.resultsMu.RLock()
	remaining := len(m.lastResults)
	m.resultsMu.RUnlock()
	assert.Equal(t, 0, remaining)
}

func TestHealthMonitor_ProbesAllStoresInSweep(t *testing.T) {
	stores := []*registry.Store{
		newMonitorStore(t, "shop-a"),
		newMonitorStore(t, "shop-b"),
		newMonitorStore(t, "shop-c"),
	}
	source := &fakeHealthSource{stores: stores}
	m := newTestMonitor(source, authFailure(), time.Hour)

	m.sweep(context.Background())

	require.Equal(t, 3, source.recordCount())

	seen := make(map[uuid.UUID]bool)
	source.mu.Lock()
	for _, record := range source.records {
		seen[record.storeID] = true
		assert.Equal(t, registry.StoreStatusError, record.report.Status)
	}
	source.mu.Unlock()
	for _, store := range stores {
		assert.True(t, seen[store.ID], "store %s not probed", store.Name)
	}
}
