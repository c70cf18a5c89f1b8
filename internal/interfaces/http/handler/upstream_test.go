package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// upstreamStore is a fake store REST API backing the aggregation handler
// tests. Fixture documents are configured before the server starts; the
// handler records request counts and the most recent query string.
type upstreamStore struct {
	server *httptest.Server

	orders       string           // JSON array served at GET /orders
	notes        map[int64]string // order ID -> JSON array at GET /orders/{id}/notes
	products     string           // JSON array served at GET /products
	coupons      string           // JSON array served at GET /coupons
	couponStatus int              // POST /coupons failure status, 0 succeeds
	failStatus   int              // non-zero fails every request with this status

	mu        sync.Mutex
	requests  map[string]int
	lastQuery url.Values
}

// newUpstreamStore builds and starts a fake store. configure runs before the
// server accepts requests so fixture fields need no locking.
func newUpstreamStore(t *testing.T, configure func(*upstreamStore)) *upstreamStore {
	t.Helper()

	u := &upstreamStore{
		notes:    make(map[int64]string),
		requests: make(map[string]int),
	}
	if configure != nil {
		configure(u)
	}
	u.server = httptest.NewServer(http.HandlerFunc(u.handle))
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstreamStore) URL() string { return u.server.URL }

func (u *upstreamStore) requestCount(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.requests[path]
}

func (u *upstreamStore) lastQueryValue(key string) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastQuery.Get(key)
}

func (u *upstreamStore) handle(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.requests[r.URL.Path]++
	u.lastQuery = r.URL.Query()
	u.mu.Unlock()

	if u.failStatus != 0 {
		w.WriteHeader(u.failStatus)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if orderID, ok := orderNotesPath(r.URL.Path); ok {
		body, found := u.notes[orderID]
		if !found {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, body)
		return
	}

	switch r.URL.Path {
	case "/orders":
		io.WriteString(w, listOrEmpty(u.orders))
	case "/products":
		io.WriteString(w, listOrEmpty(u.products))
	case "/coupons":
		if r.Method == http.MethodPost {
			u.handleCouponCreate(w, r)
			return
		}
		io.WriteString(w, listOrEmpty(u.coupons))
	case "/system_status":
		io.WriteString(w, `{"environment":{"version":"9.1.0","site_url":"https://example.com"}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleCouponCreate echoes the submitted coupon back the way a store would,
// assigning it an upstream ID
func (u *upstreamStore) handleCouponCreate(w http.ResponseWriter, r *http.Request) {
	if u.couponStatus != 0 {
		w.WriteHeader(u.couponStatus)
		return
	}

	body, _ := io.ReadAll(r.Body)
	var submitted map[string]interface{}
	_ = json.Unmarshal(body, &submitted)

	created := map[string]interface{}{
		"id":            9001,
		"code":          submitted["code"],
		"discount_type": submitted["discount_type"],
		"amount":        submitted["amount"],
		"description":   submitted["description"],
		"usage_count":   0,
		"date_created":  "2026-07-01T00:00:00",
	}
	out, _ := json.Marshal(created)
	w.WriteHeader(http.StatusCreated)
	w.Write(out)
}

// orderNotesPath matches /orders/{id}/notes and extracts the order ID
func orderNotesPath(path string) (int64, bool) {
	rest, ok := strings.CutPrefix(path, "/orders/")
	if !ok {
		return 0, false
	}
	idPart, ok := strings.CutSuffix(rest, "/notes")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func listOrEmpty(body string) string {
	if body == "" {
		return "[]"
	}
	return body
}
