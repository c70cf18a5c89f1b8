// Package commerce contains the remote commerce domain: the entity records
// fetched from registered stores (orders, products, coupons), the storefront
// port those records come through, and the pure aggregation logic that merges
// per-store pages into one deduplicated collection.
//
// Entities are externally defined and never persisted here. Each record keeps
// a typed projection of the fields the dashboard renders plus the verbatim
// upstream JSON, and is annotated with its source store for display and
// deduplication.
package commerce

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Store annotation and entity identity
// ---------------------------------------------------------------------------

// StoreRef is the back-reference attached to every fetched entity, naming the
// store it came from.
type StoreRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// EntityKey uniquely identifies an entity across stores. Two stores may both
// have an order 42; the pair (store ID, entity ID) disambiguates.
type EntityKey struct {
	StoreID  uuid.UUID
	EntityID int64
}

// Keyed is implemented by every remote entity so aggregation can deduplicate
// uniformly.
type Keyed interface {
	Key() EntityKey
}

// ---------------------------------------------------------------------------
// Order
// ---------------------------------------------------------------------------

// Order represents an order fetched from one store
type Order struct {
	// ID is the order ID on the store
	ID int64
	// Number is the display order number (may differ from ID)
	Number string
	// Status is the order status as reported by the store
	Status string
	// Currency is the ISO currency code
	Currency string
	// Total is the amount the buyer paid
	Total decimal.Decimal
	// CustomerName is the buyer's billing name
	CustomerName string
	// CustomerEmail is the buyer's billing email
	CustomerEmail string
	// ItemCount is the number of line items
	ItemCount int
	// CreatedAt is when the order was placed on the store
	CreatedAt *time.Time
	// Notes are the order notes fetched via the secondary notes request
	Notes []OrderNote
	// Store names the source store
	Store StoreRef
	// Raw is the verbatim upstream order document
	Raw json.RawMessage
}

// Key returns the cross-store identity of the order
func (o Order) Key() EntityKey {
	return EntityKey{StoreID: o.Store.ID, EntityID: o.ID}
}

// OrderNote is a note attached to an order on its store
type OrderNote struct {
	ID           int64
	Author       string
	Note         string
	CustomerNote bool
	CreatedAt    *time.Time
}

// ---------------------------------------------------------------------------
// Product
// ---------------------------------------------------------------------------

// Product represents a product fetched from one store
type Product struct {
	ID            int64
	Name          string
	SKU           string
	Status        string
	Price         decimal.Decimal
	RegularPrice  decimal.Decimal
	StockStatus   string
	StockQuantity *int
	CreatedAt     *time.Time
	Store         StoreRef
	Raw           json.RawMessage
}

// Key returns the cross-store identity of the product
func (p Product) Key() EntityKey {
	return EntityKey{StoreID: p.Store.ID, EntityID: p.ID}
}

// ---------------------------------------------------------------------------
// Coupon
// ---------------------------------------------------------------------------

// Coupon represents a coupon fetched from one store
type Coupon struct {
	ID           int64
	Code         string
	DiscountType string
	Amount       decimal.Decimal
	Description  string
	UsageCount   int
	UsageLimit   *int
	ExpiresAt    *time.Time
	CreatedAt    *time.Time
	Store        StoreRef
	Raw          json.RawMessage
}

// Key returns the cross-store identity of the coupon
func (c Coupon) Key() EntityKey {
	return EntityKey{StoreID: c.Store.ID, EntityID: c.ID}
}

// CouponDraft is the payload for creating a coupon on one or more stores
type CouponDraft struct {
	// Code is the coupon code shoppers enter at checkout
	Code string
	// DiscountType is the store-defined discount kind (percent, fixed_cart, ...)
	DiscountType string
	// Amount is the discount value; percentage or fixed depending on type
	Amount decimal.Decimal
	// Description is an optional internal description
	Description string
	// UsageLimit caps total redemptions when set
	UsageLimit *int
	// ExpiresAt is the optional expiry date
	ExpiresAt *time.Time
}

// Validate checks the draft before it is sent to any store
func (d *CouponDraft) Validate() error {
	if d.Code == "" {
		return ErrInvalidCouponDraft
	}
	if d.DiscountType == "" {
		return ErrInvalidCouponDraft
	}
	if d.Amount.IsNegative() {
		return ErrInvalidCouponDraft
	}
	return nil
}

// ---------------------------------------------------------------------------
// System status
// ---------------------------------------------------------------------------

// SystemStatus is the store's status-endpoint document. The probe path only
// cares that the request succeeds; the detail view renders the raw document.
type SystemStatus struct {
	// Version is the store software version when reported
	Version string
	// SiteURL is the store's public URL when reported
	SiteURL string
	// Raw is the verbatim upstream status document
	Raw json.RawMessage
}
