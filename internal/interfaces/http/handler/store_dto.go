package handler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/storefleet/backend/internal/domain/registry"
)

// =====================
// Store Request DTOs
// =====================

// CreateStoreRequest represents the request body for registering a store
type CreateStoreRequest struct {
	Name           string `json:"name" binding:"required,min=1,max=100"`
	BaseURL        string `json:"base_url" binding:"required,url"`
	ConsumerKey    string `json:"consumer_key" binding:"required"`
	ConsumerSecret string `json:"consumer_secret" binding:"required"`
	IsActive       *bool  `json:"is_active"`
}

// UpdateStoreRequest represents the request body for a partial store update.
// Omitted fields keep their current value.
type UpdateStoreRequest struct {
	Name           *string `json:"name" binding:"omitempty,min=1,max=100"`
	BaseURL        *string `json:"base_url" binding:"omitempty,url"`
	ConsumerKey    *string `json:"consumer_key"`
	ConsumerSecret *string `json:"consumer_secret"`
	IsActive       *bool   `json:"is_active"`
}

// =====================
// Store Response DTOs
// =====================

// StoreResponse represents a registered store in responses. Credentials are
// included so the dashboard edit form can round-trip them.
type StoreResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	BaseURL            string     `json:"base_url"`
	ConsumerKey        string     `json:"consumer_key"`
	ConsumerSecret     string     `json:"consumer_secret"`
	IsActive           bool       `json:"is_active"`
	Status             string     `json:"status"`
	LastCheckedAt      *time.Time `json:"last_checked_at,omitempty"`
	LastErrorMessage   string     `json:"last_error_message,omitempty"`
	LastResponseTimeMs *int64     `json:"last_response_time_ms,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// HealthCheckResponse represents the result of an on-demand store probe
type HealthCheckResponse struct {
	StoreID        uuid.UUID `json:"store_id"`
	Status         string    `json:"status"`
	Message        string    `json:"message,omitempty"`
	ResponseTimeMs *int64    `json:"response_time_ms,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
}

// SystemStatusResponse represents the upstream system status document
type SystemStatusResponse struct {
	StoreID uuid.UUID       `json:"store_id"`
	Version string          `json:"version,omitempty"`
	SiteURL string          `json:"site_url,omitempty"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

func toStoreResponse(store *registry.Store) StoreResponse {
	return StoreResponse{
		ID:                 store.ID,
		Name:               store.Name,
		BaseURL:            store.BaseURL,
		ConsumerKey:        store.ConsumerKey,
		ConsumerSecret:     store.ConsumerSecret,
		IsActive:           store.IsActive,
		Status:             string(store.Status),
		LastCheckedAt:      store.LastCheckedAt,
		LastErrorMessage:   store.LastErrorMessage,
		LastResponseTimeMs: store.LastResponseTimeMs,
		CreatedAt:          store.CreatedAt,
		UpdatedAt:          store.UpdatedAt,
	}
}

func toStoreResponses(stores []*registry.Store) []StoreResponse {
	responses := make([]StoreResponse, len(stores))
	for i, store := range stores {
		responses[i] = toStoreResponse(store)
	}
	return responses
}
