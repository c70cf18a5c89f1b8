package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storefleet/backend/internal/domain/commerce"
	"github.com/storefleet/backend/internal/domain/registry"
)

// Prober issues a single store's health probe: a status-endpoint request per
// attempt with a fixed timeout. Only timed-out attempts retry; refused
// connections and HTTP failures are final on the first attempt.
type Prober struct {
	factory commerce.StorefrontFactory
	timeout time.Duration
	retries int
	logger  *zap.Logger
}

// NewProber creates a prober. retries is the number of additional attempts
// allowed after a timed-out probe.
func NewProber(factory commerce.StorefrontFactory, timeout time.Duration, retries int, logger *zap.Logger) *Prober {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &Prober{
		factory: factory,
		timeout: timeout,
		retries: retries,
		logger:  logger,
	}
}

// Probe checks one store's status endpoint and derives its health report
func (p *Prober) Probe(ctx context.Context, conn commerce.StoreConnection) registry.HealthReport {
	storefront := p.factory.StorefrontFor(conn)

	var lastErr error
	attempts := 0
	maxAttempts := 1 + p.retries

	for attempts < maxAttempts {
		attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
		started := time.Now()
		_, err := storefront.SystemStatus(attemptCtx)
		elapsed := time.Since(started).Milliseconds()
		cancel()

		if err == nil {
			return registry.NewHealthReport(registry.ProbeOutcomeSuccess, "", &elapsed, time.Now())
		}

		lastErr = err
		if !errors.Is(err, commerce.ErrStoreTimeout) {
			break
		}
		if ctx.Err() != nil {
			// Parent context gone; the timeout was ours, not the store's.
			break
		}

		p.logger.Debug("Health probe timed out, retrying",
			zap.String("store_name", conn.Name),
			zap.Int("attempt", attempts),
		)
	}

	message := describeFailure(lastErr)
	if attempts > 1 {
		message = fmt.Sprintf("%s (%d attempts)", message, attempts)
	}
	return registry.NewHealthReport(classifyFailure(lastErr), message, nil, time.Now())
}

// classifyFailure maps a storefront error onto a probe outcome. Timeouts and
// network-level failures mean the store is unreachable; everything else means
// it answered but with a failure.
func classifyFailure(err error) registry.ProbeOutcome {
	switch {
	case errors.Is(err, commerce.ErrStoreTimeout):
		return registry.ProbeOutcomeTimeout
	case errors.Is(err, commerce.ErrStoreUnavailable):
		return registry.ProbeOutcomeNetworkError
	default:
		return registry.ProbeOutcomeHTTPError
	}
}

// describeFailure renders the operator-facing message for a failed probe
func describeFailure(err error) string {
	switch {
	case errors.Is(err, commerce.ErrStoreTimeout):
		return "request timed out"
	case errors.Is(err, commerce.ErrStoreUnavailable):
		return "store unreachable"
	case errors.Is(err, commerce.ErrInvalidResponse):
		return "invalid status response"
	default:
		// Auth and HTTP failures keep their status detail, e.g.
		// "store authentication failed: HTTP 401".
		return strings.TrimPrefix(err.Error(), "commerce: ")
	}
}
