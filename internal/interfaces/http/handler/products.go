package handler

import (
	"github.com/gin-gonic/gin"

	commerceapp "github.com/storefleet/backend/internal/application/commerce"
	"github.com/storefleet/backend/internal/domain/commerce"
	"github.com/storefleet/backend/internal/interfaces/http/dto"
)

// ProductHandler handles aggregated product API endpoints
type ProductHandler struct {
	BaseHandler
	aggregationService *commerceapp.AggregationService
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(aggregationService *commerceapp.AggregationService) *ProductHandler {
	return &ProductHandler{
		aggregationService: aggregationService,
	}
}

// List returns one merged page of products across the selected stores.
func (h *ProductHandler) List(c *gin.Context) {
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

	result, err := h.aggregationService.ListProducts(c.Request.Context(), commerceapp.FetchInput{
		StoreIDs: storeIDs,
		Search:   query.Search,
		Page:     query.Page,
		PageSize: query.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, toProductResponses(result.Items), dto.Meta{
		Page:          query.Page,
		PageSize:      query.PageSize,
		HasMore:       result.HasMore,
		Fetched:       result.Fetched,
		StoresQueried: result.StoresQueried,
		StoresFailed:  len(result.Failures),
	})
}
