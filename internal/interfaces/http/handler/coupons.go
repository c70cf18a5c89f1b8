package handler

import (
	"github.com/gin-gonic/gin"

	commerceapp "github.com/storefleet/backend/internal/application/commerce"
	"github.com/storefleet/backend/internal/domain/commerce"
	"github.com/storefleet/backend/internal/interfaces/http/dto"
)

// CouponHandler handles aggregated coupon API endpoints
type CouponHandler struct {
	BaseHandler
	aggregationService *commerceapp.AggregationService
	couponService      *commerceapp.CouponService
}

// NewCouponHandler creates a new CouponHandler
func NewCouponHandler(
	aggregationService *commerceapp.AggregationService,
	couponService *commerceapp.CouponService,
) *CouponHandler {
	return &CouponHandler{
		aggregationService: aggregationService,
		couponService:      couponService,
	}
}

// List returns one merged page of coupons across the selected stores.
func (h *CouponHandler) List(c *gin.Context) {
	var req dto.FetchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	storeIDs, err := parseStoreIDs(req.StoreIDs)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	query := commerce.ListQuery{Search: req.Search, Page: req.Page, PageSize: req.PerPage}.Normalize()

	result, err := h.aggregationService.ListCoupons(c.Request.Context(), commerceapp.FetchInput{
		StoreIDs: storeIDs,
		Search:   query.Search,
		Page:     query.Page,
		PageSize: query.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, toCouponResponses(result.Items), dto.Meta{
		Page:          query.Page,
		PageSize:      query.PageSize,
		HasMore:       result.HasMore,
		Fetched:       result.Fetched,
		StoresQueried: result.StoresQueried,
		StoresFailed:  len(result.Failures),
	})
}

// Create fans the coupon out to every selected store and reports each store's
// outcome. Any single success makes the operation a success; only when every
// store rejects the coupon does the request fail.
func (h *CouponHandler) Create(c *gin.Context) {
	var req CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	storeIDs, err := parseStoreIDList(req.StoreIDs)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.couponService.Create(c.Request.Context(), commerceapp.CreateCouponInput{
		StoreIDs: storeIDs,
		Draft: commerce.CouponDraft{
			Code:         req.Code,
			DiscountType: req.DiscountType,
			Amount:       req.Amount,
			Description:  req.Description,
			UsageLimit:   req.UsageLimit,
			ExpiresAt:    req.ExpiresAt,
		},
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if !result.AnySucceeded() {
		h.BadGateway(c, "Coupon creation failed on every selected store")
		return
	}

	h.Success(c, toCouponFanoutResponse(result))
}

func toCouponFanoutResponse(result *commerceapp.CouponFanoutResult) CouponFanoutResponse {
	results := make([]StoreCouponResultResponse, len(result.Results))
	for i, r := range result.Results {
		entry := StoreCouponResultResponse{
			Store: r.Store,
			Error: r.Error,
		}
		if r.Coupon != nil {
			coupon := toCouponResponse(*r.Coupon)
			entry.Coupon = &coupon
		}
		results[i] = entry
	}

	return CouponFanoutResponse{
		Results:   results,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
	}
}
