package commerce

import (
	"fmt"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Aggregation progress
// ---------------------------------------------------------------------------

// AggregationProgress is the ephemeral per-store progress of one fetch
// operation. It is recreated for each fetch and discarded on completion.
type AggregationProgress struct {
	TotalStores      int    `json:"total_stores"`
	CurrentIndex     int    `json:"current_index"`
	CurrentStoreName string `json:"current_store_name"`
	StatusMessage    string `json:"status_message"`
}

// ProgressFunc receives aggregation progress updates. Implementations must be
// fast and safe for concurrent calls; per-store fetches run in parallel.
type ProgressFunc func(AggregationProgress)

// NewProgress builds a progress update for the store at the given 1-indexed
// position.
func NewProgress(total, index int, storeName, entity string) AggregationProgress {
	return AggregationProgress{
		TotalStores:      total,
		CurrentIndex:     index,
		CurrentStoreName: storeName,
		StatusMessage:    fmt.Sprintf("Fetching %s from %s (%d/%d)", entity, storeName, index, total),
	}
}

// ---------------------------------------------------------------------------
// Merge results
// ---------------------------------------------------------------------------

// StoreFailure records one store that failed during a fan-out operation.
// Failures never abort the aggregation; they ride along in the result.
type StoreFailure struct {
	StoreID   uuid.UUID `json:"store_id"`
	StoreName string    `json:"store_name"`
	Reason    string    `json:"reason"`
}

// PageResult is one merged page of entities aggregated across stores.
type PageResult[T Keyed] struct {
	// Items are the deduplicated entities appended by this fetch
	Items []T
	// Fetched is the raw entity count returned by all stores before dedup;
	// the continuation heuristic is computed from it
	Fetched int
	// StoresQueried is the number of selected stores, failed ones included
	StoresQueried int
	// HasMore reports the pagination continuation heuristic
	HasMore bool
	// Failures lists the stores that contributed an empty page due to an error
	Failures []StoreFailure
}

// HasMorePages is the pagination continuation heuristic: more pages are
// assumed available iff the raw count just fetched equals stores × page size.
// This is an approximation, kept as documented behavior: one store returning
// a short page reports "no more" even when another store has deeper pages.
func HasMorePages(fetched, storeCount, pageSize int) bool {
	if storeCount < 1 || pageSize < 1 {
		return false
	}
	return fetched == storeCount*pageSize
}

// ---------------------------------------------------------------------------
// Deduplication
// ---------------------------------------------------------------------------

// KeySet tracks the entity keys already present in an accumulated result set.
type KeySet map[EntityKey]struct{}

// NewKeySet returns an empty key set
func NewKeySet() KeySet {
	return make(KeySet)
}

// Contains reports whether the key was already merged
func (s KeySet) Contains(key EntityKey) bool {
	_, ok := s[key]
	return ok
}

// Add marks a key as merged
func (s KeySet) Add(key EntityKey) {
	s[key] = struct{}{}
}

// DedupeAppend appends to acc every entity whose key is not yet in seen,
// marking appended keys. The merged set therefore never contains two entities
// with the same (store ID, entity ID) pair. Input order is preserved.
func DedupeAppend[T Keyed](acc []T, seen KeySet, fetched []T) []T {
	for _, entity := range fetched {
		key := entity.Key()
		if seen.Contains(key) {
			continue
		}
		seen.Add(key)
		acc = append(acc, entity)
	}
	return acc
}
