package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	registryapp "github.com/storefleet/backend/internal/application/registry"
	"github.com/storefleet/backend/internal/domain/commerce"
	"github.com/storefleet/backend/internal/infrastructure/monitor"
)

// StoreHandler handles store registry API endpoints
type StoreHandler struct {
	BaseHandler
	storeService *registryapp.StoreService
	monitor      *monitor.HealthMonitor
	storefronts  commerce.StorefrontFactory
}

// NewStoreHandler creates a new StoreHandler
func NewStoreHandler(
	storeService *registryapp.StoreService,
	healthMonitor *monitor.HealthMonitor,
	storefronts commerce.StorefrontFactory,
) *StoreHandler {
	return &StoreHandler{
		storeService: storeService,
		monitor:      healthMonitor,
		storefronts:  storefronts,
	}
}

// List returns every registered store in stored order.
func (h *StoreHandler) List(c *gin.Context) {
	stores, err := h.storeService.ListStores(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toStoreResponses(stores))
}

// GetByID returns a single store.
func (h *StoreHandler) GetByID(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid store ID format")
		return
	}

	store, err := h.storeService.GetStore(c.Request.Context(), storeID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toStoreResponse(store))
}

// Create registers a new store. The store starts in status unknown until the
// first health sweep reaches it.
func (h *StoreHandler) Create(c *gin.Context) {
	var req CreateStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	// New stores join health sweeps unless explicitly parked
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	store, err := h.storeService.CreateStore(c.Request.Context(), registryapp.CreateStoreInput{
		Name:           req.Name,
		BaseURL:        req.BaseURL,
		ConsumerKey:    req.ConsumerKey,
		ConsumerSecret: req.ConsumerSecret,
		IsActive:       isActive,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toStoreResponse(store))
}

// Update applies a partial update to a store.
func (h *StoreHandler) Update(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid store ID format")
		return
	}

	var req UpdateStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	store, err := h.storeService.UpdateStore(c.Request.Context(), storeID, registryapp.UpdateStoreInput{
		Name:           req.Name,
		BaseURL:        req.BaseURL,
		ConsumerKey:    req.ConsumerKey,
		ConsumerSecret: req.ConsumerSecret,
		IsActive:       req.IsActive,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toStoreResponse(store))
}

// Delete removes a store from the registry.
func (h *StoreHandler) Delete(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid store ID format")
		return
	}

	if err := h.storeService.DeleteStore(c.Request.Context(), storeID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// Toggle flips a store's active flag.
func (h *StoreHandler) Toggle(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid store ID format")
		return
	}

	store, err := h.storeService.ToggleActive(c.Request.Context(), storeID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toStoreResponse(store))
}

// Check probes a store immediately, outside the sweep schedule. The result is
// persisted and broadcast under the same change rules as a scheduled sweep.
func (h *StoreHandler) Check(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid store ID format")
		return
	}

	store, err := h.storeService.GetStore(c.Request.Context(), storeID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	report := h.monitor.CheckStore(c.Request.Context(), store)

	h.Success(c, HealthCheckResponse{
		StoreID:        store.ID,
		Status:         string(report.Status),
		Message:        report.Message,
		ResponseTimeMs: report.ResponseTimeMs,
		CheckedAt:      report.CheckedAt,
	})
}

// Status fetches the store's upstream system status document and passes it
// through for the store detail view.
func (h *StoreHandler) Status(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid store ID format")
		return
	}

	store, err := h.storeService.GetStore(c.Request.Context(), storeID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	storefront := h.storefronts.StorefrontFor(commerce.StoreConnection{
		ID:             store.ID,
		Name:           store.Name,
		BaseURL:        store.BaseURL,
		ConsumerKey:    store.ConsumerKey,
		ConsumerSecret: store.ConsumerSecret,
	})

	status, err := storefront.SystemStatus(c.Request.Context())
	if err != nil {
		if isUpstreamError(err) {
			h.BadGateway(c, "Store did not return its system status")
			return
		}
		h.HandleError(c, err)
		return
	}

	h.Success(c, SystemStatusResponse{
		StoreID: store.ID,
		Version: status.Version,
		SiteURL: status.SiteURL,
		Raw:     status.Raw,
	})
}

// isUpstreamError reports whether the error came from the storefront rather
// than from this service.
func isUpstreamError(err error) bool {
	return errors.Is(err, commerce.ErrStoreTimeout) ||
		errors.Is(err, commerce.ErrStoreUnavailable) ||
		errors.Is(err, commerce.ErrStoreRequestFailed) ||
		errors.Is(err, commerce.ErrStoreAuthFailed) ||
		errors.Is(err, commerce.ErrInvalidResponse)
}
