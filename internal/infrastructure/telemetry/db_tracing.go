package telemetry

import (
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds settings for storage query tracing.
type DBTracingConfig struct {
	Enabled bool
	// LogFullSQL includes bind variables in the span SQL. Dev only, they can
	// hold credentials and customer data.
	LogFullSQL      bool
	SlowQueryThresh time.Duration
	DBSystem        string
}

// DBTracingPlugin produces one span per query via otelgorm and annotates it
// with the table, row count and slow query markers otelgorm leaves out.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates the tracing plugin. Register it with
// RegisterOtelGorm.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = defaultSlowQueryThreshold
	}
	return &DBTracingPlugin{config: cfg, logger: logger}
}

// RegisterOtelGorm wires the query span pipeline into db. The annotation
// callbacks are registered before the otelgorm plugin so they run while the
// query span is still open, otelgorm's own after hook ends it.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	cb := db.Callback()
	var errs []error
	reg := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	reg(cb.Create().Before("gorm:create").Register("db_tracing:before_create", markQueryStart))
	reg(cb.Create().After("gorm:create").Register("db_tracing:after_create", p.annotateSpan))
	reg(cb.Query().Before("gorm:query").Register("db_tracing:before_query", markQueryStart))
	reg(cb.Query().After("gorm:query").Register("db_tracing:after_query", p.annotateSpan))
	reg(cb.Update().Before("gorm:update").Register("db_tracing:before_update", markQueryStart))
	reg(cb.Update().After("gorm:update").Register("db_tracing:after_update", p.annotateSpan))
	reg(cb.Delete().Before("gorm:delete").Register("db_tracing:before_delete", markQueryStart))
	reg(cb.Delete().After("gorm:delete").Register("db_tracing:after_delete", p.annotateSpan))
	reg(cb.Row().Before("gorm:row").Register("db_tracing:before_row", markQueryStart))
	reg(cb.Row().After("gorm:row").Register("db_tracing:after_row", p.annotateSpan))
	reg(cb.Raw().Before("gorm:raw").Register("db_tracing:before_raw", markQueryStart))
	reg(cb.Raw().After("gorm:raw").Register("db_tracing:after_raw", p.annotateSpan))
	if err := errors.Join(errs...); err != nil {
		return err
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem),
	)
	return nil
}

// annotateSpan enriches the query span otelgorm opened. Record misses are
// normal control flow and don't fail the span.
func (p *DBTracingPlugin) annotateSpan(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > p.config.SlowQueryThresh {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query_warning", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", p.config.SlowQueryThresh.Milliseconds()),
		))
	}
}
