package commerce

import (
	"time"

	"github.com/google/uuid"

	"github.com/storefleet/backend/internal/domain/commerce"
)

// FetchInput selects the stores and the page for one aggregation call
type FetchInput struct {
	// StoreIDs selects the stores to query; empty means every active store
	StoreIDs []uuid.UUID
	// Search is the free-text term forwarded to each store
	Search string
	// Page is the 1-indexed page number
	Page int
	// PageSize is the per-store page size
	PageSize int
	// Progress optionally receives per-store progress updates
	Progress commerce.ProgressFunc
}

// query builds the normalized per-store list query for this input
func (in FetchInput) query() commerce.ListQuery {
	return commerce.ListQuery{
		Search:   in.Search,
		Page:     in.Page,
		PageSize: in.PageSize,
	}.Normalize()
}

// CreateCouponInput contains the coupon draft and its target stores
type CreateCouponInput struct {
	// StoreIDs selects the stores to create the coupon on; empty means every
	// active store
	StoreIDs []uuid.UUID
	// Draft is the coupon to create
	Draft commerce.CouponDraft
}

// StoreCouponResult is one store's outcome in a coupon fan-out
type StoreCouponResult struct {
	// Store names the store this result belongs to
	Store commerce.StoreRef
	// Coupon is the created coupon; nil when the store failed
	Coupon *commerce.Coupon
	// Error holds the failure reason; empty on success
	Error string
}

// CouponFanoutResult collects the per-store outcomes of one coupon creation
type CouponFanoutResult struct {
	Results   []StoreCouponResult
	Succeeded int
	Failed    int
}

// AnySucceeded reports whether at least one store created the coupon
func (r *CouponFanoutResult) AnySucceeded() bool {
	return r.Succeeded > 0
}

// ExportInput selects the stores and bounds for one orders export
type ExportInput struct {
	// StoreIDs selects the stores to drain; empty means every active store
	StoreIDs []uuid.UUID
	// Search is the free-text term forwarded to each store
	Search string
	// MaxPages caps the drain loop; zero falls back to the configured cap
	MaxPages int
	// PageSize is the per-store page size; zero falls back to the configured size
	PageSize int
	// Progress optionally receives per-store progress updates
	Progress commerce.ProgressFunc
}

// ExportResult is one finished orders export. When the archive store is
// configured the CSV lives behind DownloadURL and Data is nil; otherwise
// Data carries the CSV for direct streaming.
type ExportResult struct {
	Filename      string
	ContentType   string
	RowCount      int
	StoresQueried int
	Failures      []commerce.StoreFailure

	// Data is the inline CSV when the export is streamed to the caller
	Data []byte

	// Archived reports whether the CSV was uploaded to the archive store
	Archived    bool
	StorageKey  string
	DownloadURL string
	ExpiresAt   time.Time
}
