// Package shared holds the few primitives every domain package leans on:
// the entity base and the coded error type the HTTP layer translates.
package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity carries the identity and bookkeeping timestamps an aggregate
// embeds.
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GetID returns the entity ID.
func (e *BaseEntity) GetID() uuid.UUID { return e.ID }

// NewBaseEntity mints a fresh identity with both timestamps set to now.
func NewBaseEntity() BaseEntity {
	now := time.Now()
	return BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// RestoreBaseEntity rebuilds the identity of a persisted entity. Used by
// repositories when hydrating from storage.
func RestoreBaseEntity(id uuid.UUID, createdAt, updatedAt time.Time) BaseEntity {
	return BaseEntity{ID: id, CreatedAt: createdAt, UpdatedAt: updatedAt}
}
