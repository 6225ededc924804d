package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm/logger"
)

func tracedContext() context.Context {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03},
		SpanID:     trace.SpanID{0x0a},
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func selectOne() (string, int64) { return "SELECT 1", 1 }

func TestZapGormLogger_TraceCarriesTraceIDs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapGormLogger(zap.New(core), logger.Warn, false)
	ctx := tracedContext()

	l.Trace(ctx, time.Now(), selectOne, errors.New("boom"))
	l.Trace(ctx, time.Now().Add(-time.Second), selectOne, nil)
	// below threshold and ShowSQL off
	l.Trace(ctx, time.Now(), selectOne, nil)
	// not found is not a failure
	l.Trace(ctx, time.Now(), selectOne, logger.ErrRecordNotFound)

	entries := logs.All()
	require.Len(t, entries, 2)

	require.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	require.Equal(t, "gorm.query", entries[0].Message)
	require.Equal(t, "boom", entries[0].ContextMap()["error"])

	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "gorm.slow_query", entries[1].Message)

	for _, e := range entries {
		fields := e.ContextMap()
		require.Equal(t, "01020300000000000000000000000000", fields["trace_id"])
		require.Equal(t, "0a00000000000000", fields["span_id"])
		require.Equal(t, "SELECT 1", fields["sql"])
	}
}

func TestZapGormLogger_LevelsAndShowSQL(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapGormLogger(zap.New(core), logger.Info, true)

	l.Trace(context.Background(), time.Now(), selectOne, nil)
	l.Info(context.Background(), "migrated %d tables", 3)
	require.Equal(t, 2, logs.Len())
	require.Equal(t, "migrated 3 tables", logs.All()[1].Message)
	require.NotContains(t, logs.All()[0].ContextMap(), "trace_id")

	silent := l.LogMode(logger.Silent)
	silent.Trace(context.Background(), time.Now(), selectOne, errors.New("boom"))
	silent.Error(context.Background(), "ignored")
	require.Equal(t, 2, logs.Len())
}
