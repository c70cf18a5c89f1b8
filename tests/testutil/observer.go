// Package testutil provides common test utilities for the StoreFleet backend.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/storefleet/backend/internal/domain/registry"
)

// SnapshotRecorder drains a registry observer channel and records every
// store-list snapshot it receives. It is used to assert on notifications
// emitted by registry mutations without racing the notifying goroutine.
type SnapshotRecorder struct {
	mu        sync.Mutex
	snapshots [][]*registry.Store
	done      chan struct{}
}

// NewSnapshotRecorder starts recording snapshots from the given observer
// channel. Recording stops when the channel is closed.
func NewSnapshotRecorder(ch <-chan []*registry.Store) *SnapshotRecorder {
	r := &SnapshotRecorder{
		snapshots: make([][]*registry.Store, 0),
		done:      make(chan struct{}),
	}

	go func() {
		defer close(r.done)
		for snapshot := range ch {
			r.mu.Lock()
			r.snapshots = append(r.snapshots, snapshot)
			r.mu.Unlock()
		}
	}()

	return r
}

// Snapshots returns all recorded snapshots.
func (r *SnapshotRecorder) Snapshots() [][]*registry.Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([][]*registry.Store, len(r.snapshots))
	copy(result, r.snapshots)
	return result
}

// Count returns the number of recorded snapshots.
func (r *SnapshotRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

// Last returns the most recent snapshot, or nil when none was recorded.
func (r *SnapshotRecorder) Last() []*registry.Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

// Reset clears all recorded snapshots.
func (r *SnapshotRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = r.snapshots[:0]
}

// WaitClosed blocks until the observed channel is closed or the timeout
// elapses. Returns true when the channel closed in time.
func (r *SnapshotRecorder) WaitClosed(timeout time.Duration) bool {
	select {
	case <-r.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// WaitForCondition waits for a condition to become true.
// Returns true if the condition was met, false if timeout occurred.
func WaitForCondition(t *testing.T, condition func() bool, timeout, interval time.Duration) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}
	return false
}

// WaitForSnapshotCount waits until the recorder has seen at least n snapshots.
func WaitForSnapshotCount(t *testing.T, recorder *SnapshotRecorder, count int, timeout time.Duration) bool {
	t.Helper()

	return WaitForCondition(t, func() bool {
		return recorder.Count() >= count
	}, timeout, 10*time.Millisecond)
}
