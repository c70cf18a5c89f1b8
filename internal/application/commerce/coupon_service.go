package commerce

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/storefleet/backend/internal/domain/commerce"
	"github.com/storefleet/backend/internal/domain/registry"
	"github.com/storefleet/backend/internal/domain/shared"
	"github.com/storefleet/backend/internal/infrastructure/logger"
	"github.com/storefleet/backend/internal/infrastructure/telemetry"
)

// CouponService creates one coupon on many stores in a single fan-out,
// collecting per-store outcomes uniformly. One store failing never prevents
// the coupon from being created on the others.
type CouponService struct {
	stores  registry.StoreRepository
	factory commerce.StorefrontFactory
	metrics *telemetry.FleetMetrics
	logger  *zap.Logger
}

// NewCouponService creates the coupon fan-out service. metrics may be nil
// when telemetry is disabled.
func NewCouponService(
	stores registry.StoreRepository,
	factory commerce.StorefrontFactory,
	metrics *telemetry.FleetMetrics,
	logger *zap.Logger,
) *CouponService {
	return &CouponService{
		stores:  stores,
		factory: factory,
		metrics: metrics,
		logger:  logger,
	}
}

// Create validates the draft and creates the coupon on every selected store
// in parallel. The result carries each store's outcome; callers decide how
// to surface mixed results.
func (s *CouponService) Create(ctx context.Context, input CreateCouponInput) (result *CouponFanoutResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "coupons.create_fanout")
	defer func() { telemetry.EndSpan(span, err) }()

	if err := input.Draft.Validate(); err != nil {
		return nil, shared.NewDomainError("INVALID_COUPON", "Coupon code, discount type and a non-negative amount are required")
	}

	conns, err := resolveConnections(ctx, s.stores, input.StoreIDs)
	if err != nil {
		return nil, err
	}
	if len(conns) == 0 {
		return nil, shared.NewDomainError("NO_STORES_SELECTED", "No stores selected for coupon creation")
	}

	s.logger.Info("Creating coupon across stores",
		zap.String("code", input.Draft.Code),
		zap.Int("stores", len(conns)))

	results := make([]StoreCouponResult, len(conns))
	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(i int, conn commerce.StoreConnection) {
			defer wg.Done()
			ctx, log := logger.WithStoreID(ctx, s.logger, conn.ID.String())
			client := s.factory.StorefrontFor(conn)
			coupon, err := client.CreateCoupon(ctx, input.Draft)
			if err != nil {
				log.Warn("Coupon creation failed on store",
					zap.String("store_name", conn.Name),
					zap.String("code", input.Draft.Code),
					zap.Error(err))
				results[i] = StoreCouponResult{Store: conn.Ref(), Error: err.Error()}
				s.recordPush(ctx, conn, telemetry.PushStatusFailed)
				return
			}
			results[i] = StoreCouponResult{Store: conn.Ref(), Coupon: coupon}
			s.recordPush(ctx, conn, telemetry.PushStatusSuccess)
		}(i, conn)
	}
	wg.Wait()

	result = &CouponFanoutResult{Results: results}
	for _, r := range results {
		if r.Error == "" {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	span.SetAttributes(
		telemetry.AttrStoresQueried.Int(len(conns)),
		telemetry.AttrStoresFailed.Int(result.Failed))

	s.logger.Info("Coupon fan-out completed",
		zap.String("code", input.Draft.Code),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed))

	return result, nil
}

func (s *CouponService) recordPush(ctx context.Context, conn commerce.StoreConnection, status telemetry.PushStatus) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordCouponPush(ctx, conn.ID, status)
}
