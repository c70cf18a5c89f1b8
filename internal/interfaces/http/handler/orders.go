package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	commerceapp "github.com/storefleet/backend/internal/application/commerce"
	"github.com/storefleet/backend/internal/domain/commerce"
	"github.com/storefleet/backend/internal/interfaces/http/dto"
)

// OrderHandler handles aggregated order API endpoints
type OrderHandler struct {
	BaseHandler
	aggregationService *commerceapp.AggregationService
	exportService      *commerceapp.ExportService
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(
	aggregationService *commerceapp.AggregationService,
	exportService *commerceapp.ExportService,
) *OrderHandler {
	return &OrderHandler{
		aggregationService: aggregationService,
		exportService:      exportService,
	}
}

// List returns one merged page of orders across the selected stores.
func (h *OrderHandler) List(c *gin.Context) {
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

	result, err := h.aggregationService.ListOrders(c.Request.Context(), commerceapp.FetchInput{
		StoreIDs: storeIDs,
		Search:   query.Search,
		Page:     query.Page,
		PageSize: query.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, toOrderResponses(result.Items), dto.Meta{
		Page:          query.Page,
		PageSize:      query.PageSize,
		HasMore:       result.HasMore,
		Fetched:       result.Fetched,
		StoresQueried: result.StoresQueried,
		StoresFailed:  len(result.Failures),
	})
}

// Export drains orders from the selected stores into a CSV. When the archive
// store is configured the response carries a presigned download URL; otherwise
// the CSV streams inline as an attachment.
func (h *OrderHandler) Export(c *gin.Context) {
	// Body is optional; an empty body exports every active store with defaults
	var req ExportOrdersRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindingError(c, err)
			return
		}
	}

	storeIDs, err := parseStoreIDList(req.StoreIDs)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.exportService.ExportOrders(c.Request.Context(), commerceapp.ExportInput{
		StoreIDs: storeIDs,
		Search:   req.Search,
		MaxPages: req.MaxPages,
		PageSize: req.PerPage,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if result.Archived {
		h.Success(c, ExportArchiveResponse{
			Filename:      result.Filename,
			RowCount:      result.RowCount,
			StoresQueried: result.StoresQueried,
			Failures:      result.Failures,
			DownloadURL:   result.DownloadURL,
			ExpiresAt:     result.ExpiresAt,
		})
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
