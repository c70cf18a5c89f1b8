// Package registry contains the store registry domain: the Store aggregate,
// its health status state machine, and the repository port backing the
// persisted store list.
package registry

import (
	"net/url"
	"strings"
	"time"

	"github.com/storefleet/backend/internal/domain/shared"
)

// StoreStatus represents the last known health of a registered store
type StoreStatus string

const (
	StoreStatusUnknown StoreStatus = "unknown" // never probed
	StoreStatusOnline  StoreStatus = "online"
	StoreStatusOffline StoreStatus = "offline" // network failure or timeout
	StoreStatusError   StoreStatus = "error"   // reachable but failing (auth, HTTP error)
)

// IsValid checks if the store status is valid
func (s StoreStatus) IsValid() bool {
	switch s {
	case StoreStatusUnknown, StoreStatusOnline, StoreStatusOffline, StoreStatusError:
		return true
	}
	return false
}

// String returns the string representation
func (s StoreStatus) String() string {
	return string(s)
}

// Store represents one externally hosted e-commerce backend registered in the
// dashboard. It is the aggregate root for registry operations. Credentials are
// the key/secret pair used for HTTP basic auth against the store's API.
type Store struct {
	shared.BaseEntity
	Name               string
	BaseURL            string
	ConsumerKey        string
	ConsumerSecret     string
	IsActive           bool
	Status             StoreStatus
	LastCheckedAt      *time.Time
	LastErrorMessage   string
	LastResponseTimeMs *int64
}

// NewStore creates a new store registration. The ID is generated, the status
// starts unknown and no health fields are set until the first probe.
func NewStore(name, baseURL, consumerKey, consumerSecret string, isActive bool) (*Store, error) {
	if err := validateStoreName(name); err != nil {
		return nil, err
	}
	normalized, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if err := validateCredentials(consumerKey, consumerSecret); err != nil {
		return nil, err
	}

	return &Store{
		BaseEntity:     shared.NewBaseEntity(),
		Name:           name,
		BaseURL:        normalized,
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		IsActive:       isActive,
		Status:         StoreStatusUnknown,
	}, nil
}

// Rename updates the store's display name
func (s *Store) Rename(name string) error {
	if err := validateStoreName(name); err != nil {
		return err
	}

	s.Name = name
	s.UpdatedAt = time.Now()

	return nil
}

// UpdateBaseURL updates the store's API base URL
func (s *Store) UpdateBaseURL(baseURL string) error {
	normalized, err := normalizeBaseURL(baseURL)
	if err != nil {
		return err
	}

	s.BaseURL = normalized
	s.UpdatedAt = time.Now()

	return nil
}

// UpdateCredentials replaces the basic auth key/secret pair
func (s *Store) UpdateCredentials(consumerKey, consumerSecret string) error {
	if err := validateCredentials(consumerKey, consumerSecret); err != nil {
		return err
	}

	s.ConsumerKey = consumerKey
	s.ConsumerSecret = consumerSecret
	s.UpdatedAt = time.Now()

	return nil
}

// SetActive sets whether the store participates in health ticks and default
// aggregation selections
func (s *Store) SetActive(active bool) {
	s.IsActive = active
	s.UpdatedAt = time.Now()
}

// ToggleActive flips the active flag and returns the new value
func (s *Store) ToggleActive() bool {
	s.IsActive = !s.IsActive
	s.UpdatedAt = time.Now()
	return s.IsActive
}

// ApplyHealth records the outcome of a health probe on the store
func (s *Store) ApplyHealth(report HealthReport) {
	s.Status = report.Status
	s.LastErrorMessage = report.Message
	s.LastResponseTimeMs = report.ResponseTimeMs
	checkedAt := report.CheckedAt
	s.LastCheckedAt = &checkedAt
	s.UpdatedAt = time.Now()
}

// HealthMatches reports whether a probe result carries the same derived
// status, message and response time the store already has. The monitor uses
// this to skip redundant writes and notifications; the check timestamp alone
// never forces a write.
func (s *Store) HealthMatches(report HealthReport) bool {
	if s.Status != report.Status {
		return false
	}
	if s.LastErrorMessage != report.Message {
		return false
	}
	return int64PtrEqual(s.LastResponseTimeMs, report.ResponseTimeMs)
}

// IsOnline returns true if the last probe succeeded
func (s *Store) IsOnline() bool {
	return s.Status == StoreStatusOnline
}

// WasChecked returns true if the store has been probed at least once
func (s *Store) WasChecked() bool {
	return s.LastCheckedAt != nil
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Validation functions

func validateStoreName(name string) error {
	if strings.TrimSpace(name) == "" {
		return shared.NewDomainError("INVALID_NAME", "Store name cannot be empty")
	}
	if len(name) > 100 {
		return shared.NewDomainError("INVALID_NAME", "Store name cannot exceed 100 characters")
	}
	return nil
}

// normalizeBaseURL validates the URL and strips any trailing slash so request
// paths can be joined uniformly.
func normalizeBaseURL(baseURL string) (string, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return "", shared.NewDomainError("INVALID_BASE_URL", "Store base URL cannot be empty")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", shared.NewDomainError("INVALID_BASE_URL", "Store base URL is not a valid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", shared.NewDomainError("INVALID_BASE_URL", "Store base URL must use http or https")
	}
	if parsed.Host == "" {
		return "", shared.NewDomainError("INVALID_BASE_URL", "Store base URL must include a host")
	}

	return strings.TrimRight(trimmed, "/"), nil
}

func validateCredentials(consumerKey, consumerSecret string) error {
	if consumerKey == "" {
		return shared.NewDomainError("INVALID_API_CREDENTIALS", "Consumer key cannot be empty")
	}
	if consumerSecret == "" {
		return shared.NewDomainError("INVALID_API_CREDENTIALS", "Consumer secret cannot be empty")
	}
	return nil
}
