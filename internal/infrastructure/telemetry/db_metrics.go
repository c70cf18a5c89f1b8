package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultSlowQueryThreshold = 200 * time.Millisecond
	defaultPoolStatsInterval  = 15 * time.Second
)

// DBMetricsConfig holds settings for storage metrics collection.
type DBMetricsConfig struct {
	Enabled            bool
	SlowQueryThreshold time.Duration
	PoolStatsInterval  time.Duration
}

// DBMetrics records query counters and latency plus connection pool gauges.
// Query metrics arrive through the GORM plugin, pool stats through a sampling
// goroutine started with StartPoolStatsCollection.
type DBMetrics struct {
	queryTotal     *Counter
	queryDuration  *Histogram
	slowQueryTotal *Counter

	poolConnections    *Gauge
	poolConnectionsMax *Gauge

	config DBMetricsConfig
	logger *zap.Logger

	mu       sync.RWMutex
	sqlDB    *sql.DB
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDBMetrics creates the storage metric instruments on the given meter.
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = defaultSlowQueryThreshold
	}
	if cfg.PoolStatsInterval <= 0 {
		cfg.PoolStatsInterval = defaultPoolStatsInterval
	}

	m := &DBMetrics{
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	var err error
	m.queryTotal, err = NewCounter(meter, "db_query_total",
		"Total number of database queries by operation type", "{query}")
	if err != nil {
		return nil, err
	}
	m.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency distribution in seconds",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	m.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total",
		"Total number of database queries over the slow query threshold", "{query}")
	if err != nil {
		return nil, err
	}
	m.poolConnections, err = NewGauge(meter, "db_pool_connections",
		"Number of connections in the pool by state", "{connection}")
	if err != nil {
		return nil, err
	}
	m.poolConnectionsMax, err = NewGauge(meter, "db_pool_connections_max",
		"Maximum number of connections in the pool", "{connection}")
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordQuery records one completed query. An empty operation counts as
// UNKNOWN, slow queries additionally bump the per-table slow counter.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, duration time.Duration) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "UNKNOWN"
	}

	m.queryTotal.Inc(ctx, AttrDBOperation.String(operation))
	m.queryDuration.RecordDuration(ctx, duration, AttrDBOperation.String(operation))

	if duration > m.config.SlowQueryThreshold {
		if table == "" {
			table = "unknown"
		}
		m.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
	}
}

// SetSQLDB hands over the pool the stats collector reads. Must be called
// before StartPoolStatsCollection.
func (m *DBMetrics) SetSQLDB(sqlDB *sql.DB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sqlDB = sqlDB
}

// StartPoolStatsCollection samples connection pool stats on a fixed interval
// until Stop is called or ctx ends.
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context) {
	if !m.config.Enabled {
		return
	}

	m.mu.RLock()
	sqlDB := m.sqlDB
	m.mu.RUnlock()
	if sqlDB == nil {
		m.logger.Warn("Cannot start pool stats collection, sqlDB not set")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.config.PoolStatsInterval)
		defer ticker.Stop()

		m.collectPoolStats(ctx)
		for {
			select {
			case <-ticker.C:
				m.collectPoolStats(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	m.logger.Info("Started database connection pool stats collection",
		zap.Duration("interval", m.config.PoolStatsInterval))
}

func (m *DBMetrics) collectPoolStats(ctx context.Context) {
	m.mu.RLock()
	sqlDB := m.sqlDB
	m.mu.RUnlock()
	if sqlDB == nil {
		return
	}

	// OpenConnections is idle plus in_use; WaitCount is cumulative, not a
	// current state, so it is left out.
	stats := sqlDB.Stats()
	m.poolConnectionsMax.Record(ctx, int64(stats.MaxOpenConnections))
	m.poolConnections.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolConnections.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolConnections.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
}

// Stop terminates the pool stats goroutine. Safe to call more than once.
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

// queryStartKey carries the query start time through the statement context
// from the before callback to the after callback.
type queryStartKey struct{}

// DBMetricsPlugin taps GORM's callback chain and feeds DBMetrics.
type DBMetricsPlugin struct {
	metrics *DBMetrics
	logger  *zap.Logger
}

// NewDBMetricsPlugin creates the GORM plugin. Register it with db.Use.
func NewDBMetricsPlugin(metrics *DBMetrics, logger *zap.Logger) *DBMetricsPlugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBMetricsPlugin{metrics: metrics, logger: logger}
}

// Name implements gorm.Plugin.
func (p *DBMetricsPlugin) Name() string {
	return "db_metrics"
}

// Initialize hooks every operation kind with a start stamp before and a
// metrics record after. Row and Raw carry no operation, it is detected from
// the SQL text instead.
func (p *DBMetricsPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	var errs []error
	reg := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	reg(cb.Create().Before("gorm:create").Register("db_metrics:before_create", markQueryStart))
	reg(cb.Create().After("gorm:create").Register("db_metrics:after_create", p.after("INSERT")))
	reg(cb.Query().Before("gorm:query").Register("db_metrics:before_query", markQueryStart))
	reg(cb.Query().After("gorm:query").Register("db_metrics:after_query", p.after("SELECT")))
	reg(cb.Update().Before("gorm:update").Register("db_metrics:before_update", markQueryStart))
	reg(cb.Update().After("gorm:update").Register("db_metrics:after_update", p.after("UPDATE")))
	reg(cb.Delete().Before("gorm:delete").Register("db_metrics:before_delete", markQueryStart))
	reg(cb.Delete().After("gorm:delete").Register("db_metrics:after_delete", p.after("DELETE")))
	reg(cb.Row().Before("gorm:row").Register("db_metrics:before_row", markQueryStart))
	reg(cb.Row().After("gorm:row").Register("db_metrics:after_row", p.after("")))
	reg(cb.Raw().Before("gorm:raw").Register("db_metrics:before_raw", markQueryStart))
	reg(cb.Raw().After("gorm:raw").Register("db_metrics:after_raw", p.after("")))

	if err := errors.Join(errs...); err != nil {
		return err
	}
	p.logger.Info("Database metrics plugin initialized")
	return nil
}

// markQueryStart stamps the start time into the statement context so the
// after callback can compute the latency.
func markQueryStart(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = context.WithValue(ctx, queryStartKey{}, time.Now())
}

func (p *DBMetricsPlugin) after(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		op := operation
		if op == "" {
			op = operationFromSQL(db.Statement.SQL.String())
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		var took time.Duration
		if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
			took = time.Since(start)
		}

		p.metrics.RecordQuery(ctx, op, db.Statement.Table, took)
	}
}

// operationFromSQL classifies a raw statement by its leading keyword.
func operationFromSQL(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))
	switch {
	case strings.HasPrefix(sql, "SELECT"):
		return "SELECT"
	case strings.HasPrefix(sql, "INSERT"):
		return "INSERT"
	case strings.HasPrefix(sql, "UPDATE"):
		return "UPDATE"
	case strings.HasPrefix(sql, "DELETE"):
		return "DELETE"
	default:
		return "OTHER"
	}
}
