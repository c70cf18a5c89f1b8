package handler

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storefleet/backend/internal/domain/commerce"
)

// parseStoreIDs splits a comma-separated store ID list. An empty value selects
// every active store, so it parses to nil.
func parseStoreIDs(raw string) ([]uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("invalid store ID %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseStoreIDList parses the store ID array of a JSON request body
func parseStoreIDList(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(raw))
	for _, part := range raw {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("invalid store ID %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// =====================
// Entity Response DTOs
// =====================

// OrderNoteResponse represents one order note
type OrderNoteResponse struct {
	ID           int64      `json:"id"`
	Author       string     `json:"author,omitempty"`
	Note         string     `json:"note"`
	CustomerNote bool       `json:"customer_note"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

// OrderResponse represents an aggregated order
type OrderResponse struct {
	ID            int64               `json:"id"`
	Number        string              `json:"number"`
	Status        string              `json:"status"`
	Currency      string              `json:"currency"`
	Total         decimal.Decimal     `json:"total"`
	CustomerName  string              `json:"customer_name,omitempty"`
	CustomerEmail string              `json:"customer_email,omitempty"`
	ItemCount     int                 `json:"item_count"`
	CreatedAt     *time.Time          `json:"created_at,omitempty"`
	Notes         []OrderNoteResponse `json:"notes"`
	Store         commerce.StoreRef   `json:"store"`
	Raw           json.RawMessage     `json:"raw,omitempty"`
}

// ProductResponse represents an aggregated product
type ProductResponse struct {
	ID            int64             `json:"id"`
	Name          string            `json:"name"`
	SKU           string            `json:"sku,omitempty"`
	Status        string            `json:"status"`
	Price         decimal.Decimal   `json:"price"`
	RegularPrice  decimal.Decimal   `json:"regular_price"`
	StockStatus   string            `json:"stock_status,omitempty"`
	StockQuantity *int              `json:"stock_quantity,omitempty"`
	CreatedAt     *time.Time        `json:"created_at,omitempty"`
	Store         commerce.StoreRef `json:"store"`
	Raw           json.RawMessage   `json:"raw,omitempty"`
}

// CouponResponse represents an aggregated coupon
type CouponResponse struct {
	ID           int64             `json:"id"`
	Code         string            `json:"code"`
	DiscountType string            `json:"discount_type"`
	Amount       decimal.Decimal   `json:"amount"`
	Description  string            `json:"description,omitempty"`
	UsageCount   int               `json:"usage_count"`
	UsageLimit   *int              `json:"usage_limit,omitempty"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	CreatedAt    *time.Time        `json:"created_at,omitempty"`
	Store        commerce.StoreRef `json:"store"`
	Raw          json.RawMessage   `json:"raw,omitempty"`
}

func toOrderResponse(order commerce.Order) OrderResponse {
	notes := make([]OrderNoteResponse, len(order.Notes))
	for i, note := range order.Notes {
		notes[i] = OrderNoteResponse{
			ID:           note.ID,
			Author:       note.Author,
			Note:         note.Note,
			CustomerNote: note.CustomerNote,
			CreatedAt:    note.CreatedAt,
		}
	}

	return OrderResponse{
		ID:            order.ID,
		Number:        order.Number,
		Status:        order.Status,
		Currency:      order.Currency,
		Total:         order.Total,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		ItemCount:     order.ItemCount,
		CreatedAt:     order.CreatedAt,
		Notes:         notes,
		Store:         order.Store,
		Raw:           order.Raw,
	}
}

func toOrderResponses(orders []commerce.Order) []OrderResponse {
	responses := make([]OrderResponse, len(orders))
	for i, order := range orders {
		responses[i] = toOrderResponse(order)
	}
	return responses
}

func toProductResponses(products []commerce.Product) []ProductResponse {
	responses := make([]ProductResponse, len(products))
	for i, product := range products {
		responses[i] = ProductResponse{
			ID:            product.ID,
			Name:          product.Name,
			SKU:           product.SKU,
			Status:        product.Status,
			Price:         product.Price,
			RegularPrice:  product.RegularPrice,
			StockStatus:   product.StockStatus,
			StockQuantity: product.StockQuantity,
			CreatedAt:     product.CreatedAt,
			Store:         product.Store,
			Raw:           product.Raw,
		}
	}
	return responses
}

func toCouponResponse(coupon commerce.Coupon) CouponResponse {
	return CouponResponse{
		ID:           coupon.ID,
		Code:         coupon.Code,
		DiscountType: coupon.DiscountType,
		Amount:       coupon.Amount,
		Description:  coupon.Description,
		UsageCount:   coupon.UsageCount,
		UsageLimit:   coupon.UsageLimit,
		ExpiresAt:    coupon.ExpiresAt,
		CreatedAt:    coupon.CreatedAt,
		Store:        coupon.Store,
		Raw:          coupon.Raw,
	}
}

func toCouponResponses(coupons []commerce.Coupon) []CouponResponse {
	responses := make([]CouponResponse, len(coupons))
	for i, coupon := range coupons {
		responses[i] = toCouponResponse(coupon)
	}
	return responses
}

// =====================
// Coupon Fan-out DTOs
// =====================

// CreateCouponRequest represents the request body for creating a coupon
// across stores
type CreateCouponRequest struct {
	StoreIDs     []string        `json:"store_ids"`
	Code         string          `json:"code" binding:"required,min=1,max=100"`
	DiscountType string          `json:"discount_type" binding:"required"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description" binding:"omitempty,max=2000"`
	UsageLimit   *int            `json:"usage_limit" binding:"omitempty,min=1"`
	ExpiresAt    *time.Time      `json:"expires_at"`
}

// StoreCouponResultResponse is one store's outcome in the fan-out response
type StoreCouponResultResponse struct {
	Store  commerce.StoreRef `json:"store"`
	Coupon *CouponResponse   `json:"coupon,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// CouponFanoutResponse represents the per-store outcomes of a coupon creation
type CouponFanoutResponse struct {
	Results   []StoreCouponResultResponse `json:"results"`
	Succeeded int                         `json:"succeeded"`
	Failed    int                         `json:"failed"`
}

// =====================
// Export DTOs
// =====================

// ExportOrdersRequest represents the request body for an orders export
type ExportOrdersRequest struct {
	StoreIDs []string `json:"store_ids"`
	Search   string   `json:"search"`
	MaxPages int      `json:"max_pages" binding:"omitempty,min=1"`
	PerPage  int      `json:"per_page" binding:"omitempty,min=1,max=100"`
}

// ExportArchiveResponse represents an export uploaded to the archive store.
// The CSV itself is behind the presigned download URL.
type ExportArchiveResponse struct {
	Filename      string                  `json:"filename"`
	RowCount      int                     `json:"row_count"`
	StoresQueried int                     `json:"stores_queried"`
	Failures      []commerce.StoreFailure `json:"failures,omitempty"`
	DownloadURL   string                  `json:"download_url"`
	ExpiresAt     time.Time               `json:"expires_at"`
}
