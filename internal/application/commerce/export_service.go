package commerce

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefleet/backend/internal/domain/commerce"
	"github.com/storefleet/backend/internal/infrastructure/telemetry"
)

// ArchiveStorage stores finished export files and hands out download links.
// The infrastructure layer implements it against S3-compatible object
// storage; an in-memory implementation exists for development and tests.
type ArchiveStorage interface {
	// Upload writes a finished archive under the given key
	Upload(ctx context.Context, storageKey string, data []byte, contentType string) error

	// GenerateDownloadURL returns a download URL for a stored archive and the
	// time the URL expires. Passing a non-positive expiresIn selects the
	// implementation's default validity.
	GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error)
}

// ExportConfig bounds the export drain loop
type ExportConfig struct {
	// MaxPages caps how many pages the export drains per store
	MaxPages int
	// PageSize is the per-store page size used when the request has none
	PageSize int
	// DownloadExpiration is how long archive download links stay valid
	DownloadExpiration time.Duration
}

// DefaultExportConfig returns the production defaults
func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		MaxPages:           50,
		PageSize:           100,
		DownloadExpiration: 15 * time.Minute,
	}
}

// ExportService drains multi-page order aggregations into a CSV file. When
// an archive store is configured the CSV is uploaded and a download URL
// returned; otherwise the CSV is handed back inline for direct streaming.
type ExportService struct {
	aggregation *AggregationService
	archive     ArchiveStorage
	config      ExportConfig
	metrics     *telemetry.FleetMetrics
	logger      *zap.Logger
}

// NewExportService creates the export service. archive may be nil to always
// stream exports inline; metrics may be nil when telemetry is disabled.
func NewExportService(
	aggregation *AggregationService,
	archive ArchiveStorage,
	config ExportConfig,
	metrics *telemetry.FleetMetrics,
	logger *zap.Logger,
) *ExportService {
	if config.MaxPages < 1 {
		config.MaxPages = DefaultExportConfig().MaxPages
	}
	if config.PageSize < 1 {
		config.PageSize = DefaultExportConfig().PageSize
	}
	if config.DownloadExpiration <= 0 {
		config.DownloadExpiration = DefaultExportConfig().DownloadExpiration
	}

	return &ExportService{
		aggregation: aggregation,
		archive:     archive,
		config:      config,
		metrics:     metrics,
		logger:      logger,
	}
}

// ExportOrders aggregates orders page by page until the continuation
// heuristic reports no more pages or the page cap is reached, then renders
// one CSV row per deduplicated order. Store failures are collected across
// pages, one entry per store.
func (s *ExportService) ExportOrders(ctx context.Context, input ExportInput) (result *ExportResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "export.orders",
		telemetry.AttrExportFormat.String("csv"))
	defer func() { telemetry.EndSpan(span, err) }()

	conns, err := resolveConnections(ctx, s.aggregation.stores, input.StoreIDs)
	if err != nil {
		return nil, err
	}

	maxPages := input.MaxPages
	if maxPages < 1 || maxPages > s.config.MaxPages {
		maxPages = s.config.MaxPages
	}
	pageSize := input.PageSize
	if pageSize < 1 {
		pageSize = s.config.PageSize
	}

	start := time.Now()
	seen := commerce.NewKeySet()
	failedStores := make(map[uuid.UUID]commerce.StoreFailure)
	var orders []commerce.Order

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		query := commerce.ListQuery{Search: input.Search, Page: page, PageSize: pageSize}.Normalize()
		var fetched int
		var failures []commerce.StoreFailure
		orders, fetched, failures = aggregatePage(ctx, s.aggregation, conns, query, "orders",
			input.Progress, seen, orders, s.aggregation.fetchOrdersWithNotes)

		for _, failure := range failures {
			failedStores[failure.StoreID] = failure
		}

		if !commerce.HasMorePages(fetched, len(conns), query.PageSize) {
			break
		}
	}

	sortOrdersNewestFirst(orders)

	// CSV encoding dominates CPU on large exports, label it so the samples
	// stand out from request handling in Pyroscope.
	var data []byte
	telemetry.WithProfilingLabels(ctx, map[string]string{
		telemetry.ProfilingLabelOperation: "export_orders",
		telemetry.ProfilingLabelRegion:    "csv_encode",
	}, func(context.Context) {
		data, err = ordersCSV(orders)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render orders CSV: %w", err)
	}

	result = &ExportResult{
		Filename:      fmt.Sprintf("orders-%s.csv", time.Now().UTC().Format("20060102-150405")),
		ContentType:   "text/csv",
		RowCount:      len(orders),
		StoresQueried: len(conns),
		Failures:      collectFailures(failedStores),
		Data:          data,
	}

	span.SetAttributes(
		telemetry.AttrRowCount.Int(result.RowCount),
		telemetry.AttrStoresQueried.Int(result.StoresQueried),
		telemetry.AttrStoresFailed.Int(len(result.Failures)))

	s.archiveResult(ctx, result)

	if s.metrics != nil {
		s.metrics.RecordExport(ctx, "orders", "csv")
	}

	s.logger.Info("Orders export completed",
		zap.Int("rows", result.RowCount),
		zap.Int("stores", result.StoresQueried),
		zap.Int("failed_stores", len(result.Failures)),
		zap.Bool("archived", result.Archived),
		zap.Duration("took", time.Since(start)))

	return result, nil
}

// archiveResult uploads the CSV when an archive store is configured. Any
// archive failure falls back to the inline CSV so the export still succeeds.
func (s *ExportService) archiveResult(ctx context.Context, result *ExportResult) {
	if s.archive == nil {
		return
	}

	storageKey := "exports/" + result.Filename
	if err := s.archive.Upload(ctx, storageKey, result.Data, result.ContentType); err != nil {
		s.logger.Warn("Archive upload failed, streaming export inline",
			zap.String("key", storageKey),
			zap.Error(err))
		return
	}

	url, expiresAt, err := s.archive.GenerateDownloadURL(ctx, storageKey, s.config.DownloadExpiration)
	if err != nil {
		s.logger.Warn("Archive download URL failed, streaming export inline",
			zap.String("key", storageKey),
			zap.Error(err))
		return
	}

	result.Archived = true
	result.StorageKey = storageKey
	result.DownloadURL = url
	result.ExpiresAt = expiresAt
	result.Data = nil
}

// csvHeader is the column layout of an orders export
var csvHeader = []string{
	"store_id", "store_name", "order_id", "number", "status", "currency",
	"total", "customer_name", "customer_email", "item_count", "created_at",
}

// ordersCSV renders one CSV row per order
func ordersCSV(orders []commerce.Order) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, order := range orders {
		createdAt := ""
		if order.CreatedAt != nil {
			createdAt = order.CreatedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			order.Store.ID.String(),
			order.Store.Name,
			strconv.FormatInt(order.ID, 10),
			order.Number,
			order.Status,
			order.Currency,
			order.Total.String(),
			order.CustomerName,
			order.CustomerEmail,
			strconv.Itoa(order.ItemCount),
			createdAt,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// collectFailures flattens the per-store failure map, sorted by store name
// for a stable result order.
func collectFailures(failed map[uuid.UUID]commerce.StoreFailure) []commerce.StoreFailure {
	if len(failed) == 0 {
		return nil
	}
	failures := make([]commerce.StoreFailure, 0, len(failed))
	for _, failure := range failed {
		failures = append(failures, failure)
	}
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].StoreName < failures[j].StoreName
	})
	return failures
}
