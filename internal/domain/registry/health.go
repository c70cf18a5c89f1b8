package registry

import "time"

// ProbeOutcome classifies the result of a single health probe against a
// store's status endpoint.
type ProbeOutcome string

const (
	ProbeOutcomeSuccess      ProbeOutcome = "success"
	ProbeOutcomeTimeout      ProbeOutcome = "timeout"
	ProbeOutcomeNetworkError ProbeOutcome = "network_error" // DNS, refused connection, reset
	ProbeOutcomeHTTPError    ProbeOutcome = "http_error"    // reachable but returned a failure status
)

// IsValid checks if the probe outcome is valid
func (o ProbeOutcome) IsValid() bool {
	switch o {
	case ProbeOutcomeSuccess, ProbeOutcomeTimeout, ProbeOutcomeNetworkError, ProbeOutcomeHTTPError:
		return true
	}
	return false
}

// String returns the string representation
func (o ProbeOutcome) String() string {
	return string(o)
}

// statusTransitions is the health status state machine. Every probe outcome
// maps to exactly one status regardless of the store's prior state; unknown
// only ever applies to stores that have never been probed.
var statusTransitions = map[ProbeOutcome]StoreStatus{
	ProbeOutcomeSuccess:      StoreStatusOnline,
	ProbeOutcomeTimeout:      StoreStatusOffline,
	ProbeOutcomeNetworkError: StoreStatusOffline,
	ProbeOutcomeHTTPError:    StoreStatusError,
}

// StatusForOutcome resolves the store status a probe outcome transitions to.
// Invalid outcomes resolve to offline, the most conservative reachable state.
func StatusForOutcome(outcome ProbeOutcome) StoreStatus {
	if status, ok := statusTransitions[outcome]; ok {
		return status
	}
	return StoreStatusOffline
}

// HealthReport is the derived result of probing one store: the classified
// status, a human-readable message (empty when healthy) and the measured
// response time for successful probes.
type HealthReport struct {
	Status         StoreStatus
	Message        string
	ResponseTimeMs *int64
	CheckedAt      time.Time
}

// NewHealthReport builds a report from a probe outcome
func NewHealthReport(outcome ProbeOutcome, message string, responseTimeMs *int64, checkedAt time.Time) HealthReport {
	return HealthReport{
		Status:         StatusForOutcome(outcome),
		Message:        message,
		ResponseTimeMs: responseTimeMs,
		CheckedAt:      checkedAt,
	}
}
