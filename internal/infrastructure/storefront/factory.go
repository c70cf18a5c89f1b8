package storefront

import (
	"net/http"
	"time"

	"github.com/storefleet/backend/internal/domain/commerce"
)

// defaultRequestTimeout bounds aggregation fetches. Health probes pass a
// shorter context deadline which takes precedence.
const defaultRequestTimeout = 30 * time.Second

// Factory builds Storefront clients that share one HTTP client, so
// connection pooling works across stores
type Factory struct {
	httpClient *http.Client
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithHTTPClient overrides the shared HTTP client. Tests use this to point
// clients at mock servers with custom transports.
func WithHTTPClient(client *http.Client) FactoryOption {
	return func(f *Factory) {
		f.httpClient = client
	}
}

// NewFactory creates a storefront client factory
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// StorefrontFor returns a client bound to the given store connection
func (f *Factory) StorefrontFor(conn commerce.StoreConnection) commerce.Storefront {
	return NewClient(conn, f.httpClient)
}

// Ensure Factory implements the StorefrontFactory interface
var _ commerce.StorefrontFactory = (*Factory)(nil)
