package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const alphaProducts = `[
	{"id":2001,"name":"Widget","sku":"W-1","status":"publish","price":"19.99","regular_price":"24.99","stock_status":"instock","stock_quantity":5,"date_created":"2026-07-01T09:00:00"},
	{"id":2002,"name":"Widget Pro","sku":"W-2","status":"publish","price":"49.99","regular_price":"49.99","stock_status":"instock","stock_quantity":12,"date_created":"2026-07-02T09:00:00"}
]`

const betaProducts = `[
	{"id":2001,"name":"Gadget","sku":"G-1","status":"draft","price":"5.25","regular_price":"5.25","stock_status":"outofstock","stock_quantity":0,"date_created":"2026-06-15T09:00:00"}
]`

func TestProductHandler_List_MergesStores(t *testing.T) {
	alpha := newUpstreamStore(t, func(u *upstreamStore) { u.products = alphaProducts })
	beta := newUpstreamStore(t, func(u *upstreamStore) { u.products = betaProducts })

	router, stores := setupCommerceRouter(t)
	registerStore(t, stores, "Alpha Shop", alpha.URL(), true)
	registerStore(t, stores, "Beta Shop", beta.URL(), true)

	w := doJSON(t, router, http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, w.Code)

	response := decodeResponse(t, w)
	data := response["data"].([]interface{})
	require.Len(t, data, 3)

	// Products keep store order; same upstream ID on two stores is two rows
	first := data[0].(map[string]interface{})
	assert.Equal(t, "Widget", first["name"])
	assert.Equal(t, "W-1", first["sku"])
	assert.Equal(t, "19.99", first["price"])
	assert.Equal(t, "24.99", first["regular_price"])
	assert.Equal(t, "instock", first["stock_status"])
	assert.Equal(t, float64(5), first["stock_quantity"])
	assert.Equal(t, "Alpha Shop", first["store"].(map[string]interface{})["name"])

	third := data[2].(map[string]interface{})
	assert.Equal(t, float64(2001), third["id"])
	assert.Equal(t, "Gadget", third["name"])
	assert.Equal(t, float64(0), third["stock_quantity"])
	assert.Equal(t, "Beta Shop", third["store"].(map[string]interface{})["name"])

	meta := response["meta"].(map[string]interface{})
	assert.Equal(t, float64(3), meta["fetched"])
	assert.Equal(t, float64(2), meta["stores_queried"])
	assert.Equal(t, false, meta["has_more"])
}

func TestProductHandler_List_FailedStoreDegrades(t *testing.T) {
	alpha := newUpstreamStore(t, func(u *upstreamStore) { u.products = alphaProducts })
	beta := newUpstreamStore(t, func(u *upstreamStore) { u.failStatus = http.StatusServiceUnavailable })

	router, stores := setupCommerceRouter(t)
	registerStore(t, stores, "Alpha Shop", alpha.URL(), true)
	registerStore(t, stores, "Beta Shop", beta.URL(), true)

	w := doJSON(t, router, http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, w.Code)

	response := decodeResponse(t, w)
	assert.Len(t, response["data"].([]interface{}), 2)

	meta := response["meta"].(map[string]interface{})
	assert.Equal(t, float64(1), meta["stores_failed"])
}

func TestProductHandler_List_SearchForwarded(t *testing.T) {
	alpha := newUpstreamStore(t, func(u *upstreamStore) { u.products = alphaProducts })

	router, stores := setupCommerceRouter(t)
	registerStore(t, stores, "Alpha Shop", alpha.URL(), true)

	w := doJSON(t, router, http.MethodGet, "/api/v1/products?search=widget", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "widget", alpha.lastQueryValue("search"))
}

func TestProductHandler_List_InvalidStoreIDs(t *testing.T) {
	router, _ := setupCommerceRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/products?store_ids=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProductHandler_List_PerPageBounds(t *testing.T) {
	router, _ := setupCommerceRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/products?per_page=500", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
