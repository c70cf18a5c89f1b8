// Package storefront implements the commerce.Storefront port over the REST
// API registered stores expose: paginated entity lists, order notes, coupon
// creation and the status document, authenticated with the store's basic
// auth key/secret pair.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/storefleet/backend/internal/domain/commerce"
)

// maxResponseSize is the maximum allowed response size from a store API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// Client talks to one store's REST API
type Client struct {
	conn       commerce.StoreConnection
	httpClient *http.Client
}

// NewClient creates a client bound to one store's endpoint and credentials.
// A nil httpClient falls back to a client with the default request timeout.
func NewClient(conn commerce.StoreConnection, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{conn: conn, httpClient: httpClient}
}

// ---------------------------------------------------------------------------
// Entity Operations
// ---------------------------------------------------------------------------

// ListOrders fetches one page of orders matching the query. Notes are not
// included; they come through ListOrderNotes per order.
func (c *Client) ListOrders(ctx context.Context, query commerce.ListQuery) ([]commerce.Order, error) {
	body, err := c.get(ctx, "/orders", listValues(query))
	if err != nil {
		return nil, err
	}

	raws, err := splitList(body, "order")
	if err != nil {
		return nil, err
	}

	ref := c.conn.Ref()
	orders := make([]commerce.Order, 0, len(raws))
	for _, raw := range raws {
		var payload orderPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("%w: failed to parse order: %v", commerce.ErrInvalidResponse, err)
		}
		orders = append(orders, payload.toOrder(raw, ref))
	}
	return orders, nil
}

// ListOrderNotes fetches the notes attached to one order
func (c *Client) ListOrderNotes(ctx context.Context, orderID int64) ([]commerce.OrderNote, error) {
	body, err := c.get(ctx, fmt.Sprintf("/orders/%d/notes", orderID), nil)
	if err != nil {
		return nil, err
	}

	raws, err := splitList(body, "order note")
	if err != nil {
		return nil, err
	}

	notes := make([]commerce.OrderNote, 0, len(raws))
	for _, raw := range raws {
		var payload notePayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("%w: failed to parse order note: %v", commerce.ErrInvalidResponse, err)
		}
		notes = append(notes, payload.toOrderNote())
	}
	return notes, nil
}

// ListProducts fetches one page of products matching the query
func (c *Client) ListProducts(ctx context.Context, query commerce.ListQuery) ([]commerce.Product, error) {
	body, err := c.get(ctx, "/products", listValues(query))
	if err != nil {
		return nil, err
	}

	raws, err := splitList(body, "product")
	if err != nil {
		return nil, err
	}

	ref := c.conn.Ref()
	products := make([]commerce.Product, 0, len(raws))
	for _, raw := range raws {
		var payload productPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("%w: failed to parse product: %v", commerce.ErrInvalidResponse, err)
		}
		products = append(products, payload.toProduct(raw, ref))
	}
	return products, nil
}

// ListCoupons fetches one page of coupons matching the query
func (c *Client) ListCoupons(ctx context.Context, query commerce.ListQuery) ([]commerce.Coupon, error) {
	body, err := c.get(ctx, "/coupons", listValues(query))
	if err != nil {
		return nil, err
	}

	raws, err := splitList(body, "coupon")
	if err != nil {
		return nil, err
	}

	ref := c.conn.Ref()
	coupons := make([]commerce.Coupon, 0, len(raws))
	for _, raw := range raws {
		var payload couponPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("%w: failed to parse coupon: %v", commerce.ErrInvalidResponse, err)
		}
		coupons = append(coupons, payload.toCoupon(raw, ref))
	}
	return coupons, nil
}

// CreateCoupon creates a coupon on the store and returns the created record
func (c *Client) CreateCoupon(ctx context.Context, draft commerce.CouponDraft) (*commerce.Coupon, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	body, err := c.post(ctx, "/coupons", newCouponCreatePayload(draft))
	if err != nil {
		return nil, err
	}

	var payload couponPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: failed to parse created coupon: %v", commerce.ErrInvalidResponse, err)
	}

	coupon := payload.toCoupon(body, c.conn.Ref())
	return &coupon, nil
}

// SystemStatus fetches the store's status document
func (c *Client) SystemStatus(ctx context.Context) (*commerce.SystemStatus, error) {
	body, err := c.get(ctx, "/system_status", nil)
	if err != nil {
		return nil, err
	}

	var payload systemStatusPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: failed to parse system status: %v", commerce.ErrInvalidResponse, err)
	}

	return &commerce.SystemStatus{
		Version: payload.Environment.Version,
		SiteURL: payload.Environment.SiteURL,
		Raw:     body,
	}, nil
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// listValues builds the pagination query parameters for a list request
func listValues(query commerce.ListQuery) url.Values {
	query = query.Normalize()
	values := url.Values{}
	values.Set("per_page", strconv.Itoa(query.PageSize))
	values.Set("page", strconv.Itoa(query.Page))
	if query.Search != "" {
		values.Set("search", query.Search)
	}
	return values
}

// splitList decodes a list response into its raw elements so each entity
// keeps its verbatim upstream document
func splitList(body []byte, entity string) ([]json.RawMessage, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s list: %v", commerce.ErrInvalidResponse, entity, err)
	}
	return raws, nil
}

// get performs an authenticated GET request against the store API
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.conn.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("storefront: failed to create request: %w", err)
	}
	req.SetBasicAuth(c.conn.ConsumerKey, c.conn.ConsumerSecret)
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

// post performs an authenticated JSON POST request against the store API
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("storefront: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conn.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("storefront: failed to create request: %w", err)
	}
	req.SetBasicAuth(c.conn.ConsumerKey, c.conn.ConsumerSecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

// do executes the request and maps failures onto the domain error taxonomy
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("storefront: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d", commerce.ErrStoreAuthFailed, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: HTTP %d", commerce.ErrStoreRequestFailed, resp.StatusCode)
	}

	return body, nil
}

// classifyTransportError separates timeouts from other network failures.
// The health monitor retries only timeouts, so the distinction matters.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", commerce.ErrStoreTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", commerce.ErrStoreTimeout, err)
	}
	return fmt.Errorf("%w: %v", commerce.ErrStoreUnavailable, err)
}

// Ensure Client implements the Storefront interface
var _ commerce.Storefront = (*Client)(nil)
