package storefront

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefleet/backend/internal/domain/commerce"
)

// ---------------------------------------------------------------------------
// Helper Tests
// ---------------------------------------------------------------------------

func TestListValues(t *testing.T) {
	tests := []struct {
		name  string
		query commerce.ListQuery
		want  map[string]string
	}{
		{
			name:  "defaults applied",
			query: commerce.ListQuery{},
			want:  map[string]string{"per_page": "20", "page": "1"},
		},
		{
			name:  "explicit page and size",
			query: commerce.ListQuery{Page: 3, PageSize: 50},
			want:  map[string]string{"per_page": "50", "page": "3"},
		},
		{
			name:  "search included when set",
			query: commerce.ListQuery{Search: "widget"},
			want:  map[string]string{"per_page": "20", "page": "1", "search": "widget"},
		},
		{
			name:  "oversized page size falls back to default",
			query: commerce.ListQuery{PageSize: 500},
			want:  map[string]string{"per_page": "20", "page": "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := listValues(tt.query)
			assert.Len(t, values, len(tt.want))
			for key, want := range tt.want {
				assert.Equal(t, want, values.Get(key))
			}
		})
	}
}

func TestParseUpstreamTime(t *testing.T) {
	t.Run("site-local layout", func(t *testing.T) {
		got := parseUpstreamTime("2024-01-15T10:30:00")
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), got.UTC())
	})

	t.Run("rfc3339 layout", func(t *testing.T) {
		got := parseUpstreamTime("2024-01-15T10:30:00Z")
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), got.UTC())
	})

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, parseUpstreamTime(""))
	})

	t.Run("garbage", func(t *testing.T) {
		assert.Nil(t, parseUpstreamTime("yesterday"))
	})
}

func TestParseDecimal(t *testing.T) {
	assert.True(t, ParseDecimal("19.99").Equal(decimal.NewFromFloat(19.99)))
	assert.True(t, ParseDecimal("").IsZero())
	assert.True(t, ParseDecimal("not-a-number").IsZero())
}

// ---------------------------------------------------------------------------
// List Operation Tests
// ---------------------------------------------------------------------------

func TestClient_ListOrders(t *testing.T) {
	t.Run("successful fetch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/orders", r.URL.Path)
			assert.Equal(t, "25", r.URL.Query().Get("per_page"))
			assert.Equal(t, "2", r.URL.Query().Get("page"))
			assert.Equal(t, "hoodie", r.URL.Query().Get("search"))

			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "ck_test_key", user)
			assert.Equal(t, "cs_test_secret", pass)

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[
				{
					"id": 101,
					"number": "101",
					"status": "processing",
					"currency": "USD",
					"total": "59.90",
					"date_created": "2024-01-15T10:30:00",
					"billing": {"first_name": "Ada", "last_name": "Lovelace", "email": "ada@example.com"},
					"line_items": [{"id": 1}, {"id": 2}]
				},
				{
					"id": 102,
					"number": "102",
					"status": "completed",
					"currency": "EUR",
					"total": "12.00",
					"billing": {},
					"line_items": []
				}
			]`))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		orders, err := client.ListOrders(context.Background(), commerce.ListQuery{
			Search:   "hoodie",
			Page:     2,
			PageSize: 25,
		})
		require.NoError(t, err)
		require.Len(t, orders, 2)

		first := orders[0]
		assert.Equal(t, int64(101), first.ID)
		assert.Equal(t, "101", first.Number)
		assert.Equal(t, "processing", first.Status)
		assert.Equal(t, "USD", first.Currency)
		assert.True(t, first.Total.Equal(decimal.NewFromFloat(59.90)))
		assert.Equal(t, "Ada Lovelace", first.CustomerName)
		assert.Equal(t, "ada@example.com", first.CustomerEmail)
		assert.Equal(t, 2, first.ItemCount)
		require.NotNil(t, first.CreatedAt)
		assert.Equal(t, client.conn.ID, first.Store.ID)
		assert.Equal(t, client.conn.Name, first.Store.Name)
		assert.NotEmpty(t, first.Raw)
		assert.Empty(t, first.Notes)

		second := orders[1]
		assert.Equal(t, "", second.CustomerName)
		assert.Equal(t, 0, second.ItemCount)
		assert.Nil(t, second.CreatedAt)
	})

	t.Run("empty page", func(t *testing.T) {
		server := newJSONServer(`[]`)
		defer server.Close()

		orders, err := newTestClient(server.URL).ListOrders(context.Background(), commerce.ListQuery{})
		require.NoError(t, err)
		assert.Empty(t, orders)
	})

	t.Run("malformed body", func(t *testing.T) {
		server := newJSONServer(`{"not": "a list"}`)
		defer server.Close()

		_, err := newTestClient(server.URL).ListOrders(context.Background(), commerce.ListQuery{})
		assert.ErrorIs(t, err, commerce.ErrInvalidResponse)
	})
}

func TestClient_ListOrderNotes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/101/notes", r.URL.Path)
		assert.Empty(t, r.URL.RawQuery)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": 9, "author": "system", "note": "Payment received", "customer_note": false, "date_created": "2024-01-15T10:31:00"},
			{"id": 10, "author": "Ada", "note": "Please gift wrap", "customer_note": true}
		]`))
	}))
	defer server.Close()

	notes, err := newTestClient(server.URL).ListOrderNotes(context.Background(), 101)
	require.NoError(t, err)
	require.Len(t, notes, 2)

	assert.Equal(t, int64(9), notes[0].ID)
	assert.Equal(t, "system", notes[0].Author)
	assert.Equal(t, "Payment received", notes[0].Note)
	assert.False(t, notes[0].CustomerNote)
	assert.NotNil(t, notes[0].CreatedAt)

	assert.True(t, notes[1].CustomerNote)
	assert.Nil(t, notes[1].CreatedAt)
}

func TestClient_ListProducts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{
				"id": 7,
				"name": "Hoodie",
				"sku": "HD-001",
				"status": "publish",
				"price": "45.00",
				"regular_price": "55.00",
				"stock_status": "instock",
				"stock_quantity": 12,
				"date_created": "2023-11-02T08:00:00"
			},
			{
				"id": 8,
				"name": "Sticker Pack",
				"sku": "",
				"status": "draft",
				"price": "",
				"regular_price": "5.00",
				"stock_status": "outofstock",
				"stock_quantity": null
			}
		]`))
	}))
	defer server.Close()

	products, err := newTestClient(server.URL).ListProducts(context.Background(), commerce.ListQuery{})
	require.NoError(t, err)
	require.Len(t, products, 2)

	first := products[0]
	assert.Equal(t, int64(7), first.ID)
	assert.Equal(t, "Hoodie", first.Name)
	assert.Equal(t, "HD-001", first.SKU)
	assert.True(t, first.Price.Equal(decimal.NewFromInt(45)))
	assert.True(t, first.RegularPrice.Equal(decimal.NewFromInt(55)))
	assert.Equal(t, "instock", first.StockStatus)
	require.NotNil(t, first.StockQuantity)
	assert.Equal(t, 12, *first.StockQuantity)
	assert.Equal(t, "mock-store", first.Store.Name)

	second := products[1]
	assert.True(t, second.Price.IsZero())
	assert.Nil(t, second.StockQuantity)
	assert.Nil(t, second.CreatedAt)
}

func TestClient_ListCoupons(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coupons", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{
				"id": 31,
				"code": "SUMMER10",
				"discount_type": "percent",
				"amount": "10.00",
				"description": "Summer sale",
				"usage_count": 4,
				"usage_limit": 100,
				"date_expires": "2024-08-31T23:59:59",
				"date_created": "2024-06-01T00:00:00"
			},
			{
				"id": 32,
				"code": "FREESHIP",
				"discount_type": "fixed_cart",
				"amount": "0.00",
				"usage_count": 0,
				"usage_limit": null
			}
		]`))
	}))
	defer server.Close()

	coupons, err := newTestClient(server.URL).ListCoupons(context.Background(), commerce.ListQuery{})
	require.NoError(t, err)
	require.Len(t, coupons, 2)

	first := coupons[0]
	assert.Equal(t, "SUMMER10", first.Code)
	assert.Equal(t, "percent", first.DiscountType)
	assert.True(t, first.Amount.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 4, first.UsageCount)
	require.NotNil(t, first.UsageLimit)
	assert.Equal(t, 100, *first.UsageLimit)
	assert.NotNil(t, first.ExpiresAt)

	second := coupons[1]
	assert.Nil(t, second.UsageLimit)
	assert.Nil(t, second.ExpiresAt)
}

// ---------------------------------------------------------------------------
// Coupon Creation Tests
// ---------------------------------------------------------------------------

func TestClient_CreateCoupon(t *testing.T) {
	t.Run("creates coupon", func(t *testing.T) {
		limit := 50
		expires := time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/coupons", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "WELCOME5", body["code"])
			assert.Equal(t, "fixed_cart", body["discount_type"])
			assert.Equal(t, "5", body["amount"])
			assert.Equal(t, float64(50), body["usage_limit"])
			assert.Equal(t, "2024-12-31T23:59:59", body["date_expires"])

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{
				"id": 77,
				"code": "WELCOME5",
				"discount_type": "fixed_cart",
				"amount": "5.00",
				"usage_count": 0,
				"usage_limit": 50,
				"date_expires": "2024-12-31T23:59:59",
				"date_created": "2024-07-01T12:00:00"
			}`))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		coupon, err := client.CreateCoupon(context.Background(), commerce.CouponDraft{
			Code:         "WELCOME5",
			DiscountType: "fixed_cart",
			Amount:       decimal.NewFromInt(5),
			UsageLimit:   &limit,
			ExpiresAt:    &expires,
		})
		require.NoError(t, err)
		require.NotNil(t, coupon)
		assert.Equal(t, int64(77), coupon.ID)
		assert.Equal(t, "WELCOME5", coupon.Code)
		assert.True(t, coupon.Amount.Equal(decimal.NewFromInt(5)))
		assert.Equal(t, client.conn.ID, coupon.Store.ID)
		assert.NotEmpty(t, coupon.Raw)
	})

	t.Run("invalid draft never reaches the store", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("store should not be called for an invalid draft")
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).CreateCoupon(context.Background(), commerce.CouponDraft{
			DiscountType: "percent",
			Amount:       decimal.NewFromInt(10),
		})
		assert.ErrorIs(t, err, commerce.ErrInvalidCouponDraft)
	})
}

// ---------------------------------------------------------------------------
// System Status Tests
// ---------------------------------------------------------------------------

func TestClient_SystemStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/system_status", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"environment": {"version": "8.5.2", "site_url": "https://shop.example.com"}}`))
	}))
	defer server.Close()

	status, err := newTestClient(server.URL).SystemStatus(context.Background())
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, "8.5.2", status.Version)
	assert.Equal(t, "https://shop.example.com", status.SiteURL)
	assert.Contains(t, string(status.Raw), "environment")
}

// ---------------------------------------------------------------------------
// Error Classification Tests
// ---------------------------------------------------------------------------

func TestClient_ErrorClassification(t *testing.T) {
	t.Run("auth failure", func(t *testing.T) {
		for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
			server := newStatusServer(code)
			_, err := newTestClient(server.URL).ListOrders(context.Background(), commerce.ListQuery{})
			assert.ErrorIs(t, err, commerce.ErrStoreAuthFailed)
			server.Close()
		}
	})

	t.Run("request failure", func(t *testing.T) {
		for _, code := range []int{http.StatusNotFound, http.StatusInternalServerError} {
			server := newStatusServer(code)
			_, err := newTestClient(server.URL).ListOrders(context.Background(), commerce.ListQuery{})
			assert.ErrorIs(t, err, commerce.ErrStoreRequestFailed)
			server.Close()
		}
	})

	t.Run("store unreachable", func(t *testing.T) {
		server := newJSONServer(`[]`)
		url := server.URL
		server.Close()

		_, err := newTestClient(url).ListOrders(context.Background(), commerce.ListQuery{})
		assert.ErrorIs(t, err, commerce.ErrStoreUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte(`[]`))
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := newTestClient(server.URL).ListOrders(ctx, commerce.ListQuery{})
		assert.ErrorIs(t, err, commerce.ErrStoreTimeout)
	})
}

// ---------------------------------------------------------------------------
// Factory Tests
// ---------------------------------------------------------------------------

func TestFactory_StorefrontFor(t *testing.T) {
	conn := newTestConnection("https://shop.example.com")

	t.Run("default client", func(t *testing.T) {
		factory := NewFactory()
		sf := factory.StorefrontFor(conn)
		require.NotNil(t, sf)

		client, ok := sf.(*Client)
		require.True(t, ok)
		assert.Equal(t, defaultRequestTimeout, client.httpClient.Timeout)
	})

	t.Run("custom http client shared across stores", func(t *testing.T) {
		custom := &http.Client{Timeout: 5 * time.Second}
		factory := NewFactory(WithHTTPClient(custom))

		first := factory.StorefrontFor(conn).(*Client)
		second := factory.StorefrontFor(newTestConnection("https://other.example.com")).(*Client)
		assert.Same(t, custom, first.httpClient)
		assert.Same(t, custom, second.httpClient)
	})
}

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func newTestConnection(baseURL string) commerce.StoreConnection {
	return commerce.StoreConnection{
		ID:             uuid.New(),
		Name:           "mock-store",
		BaseURL:        baseURL,
		ConsumerKey:    "ck_test_key",
		ConsumerSecret: "cs_test_secret",
	}
}

func newTestClient(baseURL string) *Client {
	return NewClient(newTestConnection(baseURL), nil)
}

func newJSONServer(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

func newStatusServer(code int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}))
}
