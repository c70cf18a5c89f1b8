package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/storefleet/backend/internal/infrastructure/telemetry"
)

// HTTPMetricsConfig wires the request metrics middleware to a meter provider.
type HTTPMetricsConfig struct {
	MeterProvider *telemetry.MeterProvider
	ServiceName   string
	Enabled       bool
}

// requestInstruments bundles everything recorded about a single request.
type requestInstruments struct {
	total    *telemetry.Counter
	duration *telemetry.Histogram
	inBytes  *telemetry.Histogram
	outBytes *telemetry.Histogram
	inFlight metric.Int64UpDownCounter
}

func newRequestInstruments(meter metric.Meter) (*requestInstruments, error) {
	total, err := telemetry.NewCounter(meter,
		"http_server_request_total",
		"Total number of HTTP requests",
		"{request}",
	)
	if err != nil {
		return nil, err
	}

	duration, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency distribution in seconds",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	inBytes, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_size_bytes",
		Description: "HTTP request body size distribution in bytes",
		Unit:        "By",
		Boundaries:  []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000, 1000000},
	})
	if err != nil {
		return nil, err
	}

	// CSV exports stream several megabytes, so the response buckets reach higher.
	outBytes, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_response_size_bytes",
		Description: "HTTP response body size distribution in bytes",
		Unit:        "By",
		Boundaries:  []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000, 1000000, 5000000},
	})
	if err != nil {
		return nil, err
	}

	inFlight, err := meter.Int64UpDownCounter(
		"http_server_active_requests",
		metric.WithDescription("Number of currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &requestInstruments{
		total:    total,
		duration: duration,
		inBytes:  inBytes,
		outBytes: outBytes,
		inFlight: inFlight,
	}, nil
}

// observe records one finished request. Only the counter carries the
// status code; duration and sizes keep to method and route so their
// cardinality stays flat.
func (ins *requestInstruments) observe(ctx context.Context, c *gin.Context, elapsed time.Duration, requestBytes int64) {
	route := c.FullPath()
	if route == "" {
		route = "unknown"
	}

	counted := []attribute.KeyValue{
		telemetry.AttrHTTPMethod.String(c.Request.Method),
		telemetry.AttrHTTPRoute.String(route),
		telemetry.AttrHTTPStatusCode.Int(c.Writer.Status()),
	}
	ins.total.Inc(ctx, counted...)

	sized := counted[:2]
	ins.duration.RecordDuration(ctx, elapsed, sized...)
	if requestBytes > 0 {
		ins.inBytes.Record(ctx, float64(requestBytes), sized...)
	}
	if written := c.Writer.Size(); written > 0 {
		ins.outBytes.Record(ctx, float64(written), sized...)
	}
}

func (ins *requestInstruments) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		requestBytes := c.Request.ContentLength

		ins.inFlight.Add(ctx, 1)
		c.Next()
		ins.inFlight.Add(ctx, -1)

		ins.observe(ctx, c, time.Since(start), requestBytes)
	}
}

// HTTPMetrics instruments every request with count, latency, body sizes
// and an in-flight gauge. A disabled or missing provider yields a
// pass-through handler.
func HTTPMetrics(cfg HTTPMetricsConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.MeterProvider == nil || !cfg.MeterProvider.IsEnabled() {
		return passthrough
	}
	return HTTPMetricsWithMeter(cfg.MeterProvider.Meter("http.server"), true)
}

// HTTPMetricsWithMeter builds the middleware on a caller-supplied meter,
// which tests use to pair it with a manual reader.
func HTTPMetricsWithMeter(meter metric.Meter, enabled bool) gin.HandlerFunc {
	if !enabled {
		return passthrough
	}

	ins, err := newRequestInstruments(meter)
	if err != nil {
		return passthrough
	}
	return ins.middleware()
}

func passthrough(c *gin.Context) {
	c.Next()
}
