package commerce

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Storefront Errors
// ---------------------------------------------------------------------------

var (
	// ErrStoreTimeout indicates the request exceeded its deadline
	ErrStoreTimeout = errors.New("commerce: store request timed out")
	// ErrStoreUnavailable indicates a network-level failure (DNS, refused, reset)
	ErrStoreUnavailable = errors.New("commerce: store unreachable")
	// ErrStoreRequestFailed indicates the store answered with a failure status
	ErrStoreRequestFailed = errors.New("commerce: store request failed")
	// ErrStoreAuthFailed indicates the store rejected the credential pair
	ErrStoreAuthFailed = errors.New("commerce: store authentication failed")
	// ErrInvalidResponse indicates the store body could not be decoded
	ErrInvalidResponse = errors.New("commerce: invalid store response")

	// ErrInvalidCouponDraft indicates a coupon draft failed validation
	ErrInvalidCouponDraft = errors.New("commerce: invalid coupon draft")
)

// ---------------------------------------------------------------------------
// List queries
// ---------------------------------------------------------------------------

const (
	// DefaultPageSize is the page size used when none is requested
	DefaultPageSize = 20
	// MaxPageSize caps the per-store page size
	MaxPageSize = 100
)

// ListQuery is the paginated list request issued to a single store
type ListQuery struct {
	// Search is the free-text search term forwarded to the store
	Search string
	// Page is the 1-indexed page number
	Page int
	// PageSize is the number of entities requested per store
	PageSize int
}

// Normalize clamps the query to valid bounds, defaulting the page size
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		q.PageSize = DefaultPageSize
	}
	return q
}

// ---------------------------------------------------------------------------
// Storefront Port Interface
// ---------------------------------------------------------------------------

// StoreConnection carries everything needed to talk to one store's API. The
// application layer builds it from a registry record; the domain stays
// decoupled from the registry aggregate.
type StoreConnection struct {
	ID             uuid.UUID
	Name           string
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
}

// Ref returns the store annotation for entities fetched over this connection
func (c StoreConnection) Ref() StoreRef {
	return StoreRef{ID: c.ID, Name: c.Name}
}

// Storefront is the port for one store's REST API. Implementations live in
// the infrastructure layer; this system is a pure client of the protocol and
// defines none of it.
type Storefront interface {
	// ListOrders fetches one page of orders matching the query
	ListOrders(ctx context.Context, query ListQuery) ([]Order, error)

	// ListOrderNotes fetches the notes attached to one order
	ListOrderNotes(ctx context.Context, orderID int64) ([]OrderNote, error)

	// ListProducts fetches one page of products matching the query
	ListProducts(ctx context.Context, query ListQuery) ([]Product, error)

	// ListCoupons fetches one page of coupons matching the query
	ListCoupons(ctx context.Context, query ListQuery) ([]Coupon, error)

	// CreateCoupon creates a coupon on the store and returns the created record
	CreateCoupon(ctx context.Context, draft CouponDraft) (*Coupon, error)

	// SystemStatus fetches the store's status document. Health probes use it
	// with a caller-supplied deadline.
	SystemStatus(ctx context.Context) (*SystemStatus, error)
}

// StorefrontFactory builds storefront clients bound to one store's endpoint
// and credentials.
type StorefrontFactory interface {
	// StorefrontFor returns a client for the given connection
	StorefrontFor(conn StoreConnection) Storefront
}
