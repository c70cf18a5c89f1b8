package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// registerTracedDB opens a migrated in-memory database with query tracing
// installed and a recorder catching its spans.
func registerTracedDB(t *testing.T, cfg DBTracingConfig) (*gorm.DB, *tracetest.SpanRecorder) {
	t.Helper()
	sr := recordSpans(t)
	db := openInstrumentedDB(t)
	require.NoError(t, NewDBTracingPlugin(cfg, zaptest.NewLogger(t)).RegisterOtelGorm(db))
	return db, sr
}

func TestNewDBTracingPlugin_DefaultThreshold(t *testing.T) {
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true}, zaptest.NewLogger(t))
	assert.Equal(t, defaultSlowQueryThreshold, p.config.SlowQueryThresh)
}

func TestDBTracingPlugin_Disabled(t *testing.T) {
	db, sr := registerTracedDB(t, DBTracingConfig{Enabled: false})

	require.NoError(t, db.WithContext(context.Background()).Create(&syncCursor{StoreKey: "eu-1"}).Error)

	assert.Empty(t, sr.Ended(), "disabled tracing must not produce spans")
}

func TestDBTracingPlugin_QuerySpan(t *testing.T) {
	db, sr := registerTracedDB(t, DBTracingConfig{
		Enabled:         true,
		SlowQueryThresh: time.Second,
		DBSystem:        "sqlite",
	})

	require.NoError(t, db.WithContext(context.Background()).Create(&syncCursor{StoreKey: "eu-1", Position: 4}).Error)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Contains(t, span.Attributes(), attribute.String("db.sql.table", "sync_cursors"))
	assert.Contains(t, span.Attributes(), attribute.Int64("db.rows_affected", 1))
	assert.NotContains(t, span.Attributes(), attribute.Bool("db.slow_query", true),
		"fast queries carry no slow marker")
	assert.Equal(t, codes.Unset, span.Status().Code)
}

func TestDBTracingPlugin_SlowQuery(t *testing.T) {
	db, sr := registerTracedDB(t, DBTracingConfig{
		Enabled:         true,
		SlowQueryThresh: time.Nanosecond,
	})

	var cursors []syncCursor
	require.NoError(t, db.WithContext(context.Background()).Find(&cursors).Error)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Contains(t, span.Attributes(), attribute.Bool("db.slow_query", true))

	names := make([]string, 0, len(span.Events()))
	for _, ev := range span.Events() {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, "slow_query_warning")
}

func TestDBTracingPlugin_ErrorMarksSpan(t *testing.T) {
	db, sr := registerTracedDB(t, DBTracingConfig{
		Enabled:         true,
		SlowQueryThresh: time.Second,
	})

	err := db.WithContext(context.Background()).Exec("SELECT * FROM missing_table").Error
	require.Error(t, err)

	spans := sr.Ended()
	require.NotEmpty(t, spans)
	assert.Equal(t, codes.Error, spans[len(spans)-1].Status().Code)
}

func TestDBTracingPlugin_RecordMissIsNotAnError(t *testing.T) {
	db, sr := registerTracedDB(t, DBTracingConfig{
		Enabled:         true,
		SlowQueryThresh: time.Second,
	})

	var cursor syncCursor
	err := db.WithContext(context.Background()).First(&cursor, 999).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
}
