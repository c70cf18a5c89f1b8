package storefront

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefleet/backend/internal/domain/commerce"
)

// ---------------------------------------------------------------------------
// Wire payloads
// ---------------------------------------------------------------------------

// orderPayload is the wire shape of one order in the store API
type orderPayload struct {
	ID          int64             `json:"id"`
	Number      string            `json:"number"`
	Status      string            `json:"status"`
	Currency    string            `json:"currency"`
	Total       string            `json:"total"`
	DateCreated string            `json:"date_created"`
	Billing     billingPayload    `json:"billing"`
	LineItems   []json.RawMessage `json:"line_items"`
}

// billingPayload carries the buyer fields the dashboard renders
type billingPayload struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func (p *orderPayload) toOrder(raw json.RawMessage, ref commerce.StoreRef) commerce.Order {
	return commerce.Order{
		ID:            p.ID,
		Number:        p.Number,
		Status:        p.Status,
		Currency:      p.Currency,
		Total:         ParseDecimal(p.Total),
		CustomerName:  strings.TrimSpace(p.Billing.FirstName + " " + p.Billing.LastName),
		CustomerEmail: p.Billing.Email,
		ItemCount:     len(p.LineItems),
		CreatedAt:     parseUpstreamTime(p.DateCreated),
		Store:         ref,
		Raw:           raw,
	}
}

// notePayload is the wire shape of one order note
type notePayload struct {
	ID           int64  `json:"id"`
	Author       string `json:"author"`
	Note         string `json:"note"`
	CustomerNote bool   `json:"customer_note"`
	DateCreated  string `json:"date_created"`
}

func (p *notePayload) toOrderNote() commerce.OrderNote {
	return commerce.OrderNote{
		ID:           p.ID,
		Author:       p.Author,
		Note:         p.Note,
		CustomerNote: p.CustomerNote,
		CreatedAt:    parseUpstreamTime(p.DateCreated),
	}
}

// productPayload is the wire shape of one product in the store API
type productPayload struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	SKU           string `json:"sku"`
	Status        string `json:"status"`
	Price         string `json:"price"`
	RegularPrice  string `json:"regular_price"`
	StockStatus   string `json:"stock_status"`
	StockQuantity *int   `json:"stock_quantity"`
	DateCreated   string `json:"date_created"`
}

func (p *productPayload) toProduct(raw json.RawMessage, ref commerce.StoreRef) commerce.Product {
	return commerce.Product{
		ID:            p.ID,
		Name:          p.Name,
		SKU:           p.SKU,
		Status:        p.Status,
		Price:         ParseDecimal(p.Price),
		RegularPrice:  ParseDecimal(p.RegularPrice),
		StockStatus:   p.StockStatus,
		StockQuantity: p.StockQuantity,
		CreatedAt:     parseUpstreamTime(p.DateCreated),
		Store:         ref,
		Raw:           raw,
	}
}

// couponPayload is the wire shape of one coupon in the store API
type couponPayload struct {
	ID           int64  `json:"id"`
	Code         string `json:"code"`
	DiscountType string `json:"discount_type"`
	Amount       string `json:"amount"`
	Description  string `json:"description"`
	UsageCount   int    `json:"usage_count"`
	UsageLimit   *int   `json:"usage_limit"`
	DateExpires  string `json:"date_expires"`
	DateCreated  string `json:"date_created"`
}

func (p *couponPayload) toCoupon(raw json.RawMessage, ref commerce.StoreRef) commerce.Coupon {
	return commerce.Coupon{
		ID:           p.ID,
		Code:         p.Code,
		DiscountType: p.DiscountType,
		Amount:       ParseDecimal(p.Amount),
		Description:  p.Description,
		UsageCount:   p.UsageCount,
		UsageLimit:   p.UsageLimit,
		ExpiresAt:    parseUpstreamTime(p.DateExpires),
		CreatedAt:    parseUpstreamTime(p.DateCreated),
		Store:        ref,
		Raw:          raw,
	}
}

// couponCreatePayload is the body sent to POST /coupons. Amounts travel as
// strings, matching what the store API emits.
type couponCreatePayload struct {
	Code         string `json:"code"`
	DiscountType string `json:"discount_type"`
	Amount       string `json:"amount"`
	Description  string `json:"description,omitempty"`
	UsageLimit   *int   `json:"usage_limit,omitempty"`
	DateExpires  string `json:"date_expires,omitempty"`
}

func newCouponCreatePayload(draft commerce.CouponDraft) couponCreatePayload {
	payload := couponCreatePayload{
		Code:         draft.Code,
		DiscountType: draft.DiscountType,
		Amount:       draft.Amount.String(),
		Description:  draft.Description,
		UsageLimit:   draft.UsageLimit,
	}
	if draft.ExpiresAt != nil {
		payload.DateExpires = draft.ExpiresAt.Format(upstreamTimeLayout)
	}
	return payload
}

// systemStatusPayload is the wire shape of the status document
type systemStatusPayload struct {
	Environment struct {
		Version string `json:"version"`
		SiteURL string `json:"site_url"`
	} `json:"environment"`
}

// ---------------------------------------------------------------------------
// Parse helpers
// ---------------------------------------------------------------------------

// upstreamTimeLayout is the zone-less site-local timestamp the store API emits
const upstreamTimeLayout = "2006-01-02T15:04:05"

// parseUpstreamTime parses a store API timestamp. Some deployments emit full
// RFC3339; unparseable or empty values degrade to nil rather than failing
// the whole fetch.
func parseUpstreamTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{upstreamTimeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// ParseDecimal safely parses a string to decimal
func ParseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
