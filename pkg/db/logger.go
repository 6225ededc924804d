package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	hmlogger "hashmine/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// ZapGormLogger routes gorm output to zap, tagged with the trace of the
// calling context.
type ZapGormLogger struct {
	Zap           *zap.Logger
	SlowThreshold time.Duration
	LogLevel      logger.LogLevel
	ShowSQL       bool
}

func NewZapGormLogger(z *zap.Logger, logLevel logger.LogLevel, showSQL bool) *ZapGormLogger {
	return &ZapGormLogger{
		Zap:           z,
		LogLevel:      logLevel,
		ShowSQL:       showSQL,
		SlowThreshold: 200 * time.Millisecond,
	}
}

func (l *ZapGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *ZapGormLogger) with(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return l.Zap
	}
	return l.Zap.With(hmlogger.TraceFields(ctx)...)
}

func (l *ZapGormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Info {
		l.with(ctx).Info(fmt.Sprintf(msg, data...))
	}
}

func (l *ZapGormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Warn {
		l.with(ctx).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *ZapGormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Error {
		l.with(ctx).Error(fmt.Sprintf(msg, data...))
	}
}

// Trace logs failed statements at Error, slow ones at Warn and, with
// ShowSQL at Info level, every statement.
func (l *ZapGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	slow := l.SlowThreshold != 0 && elapsed > l.SlowThreshold
	failed := err != nil && !errors.Is(err, logger.ErrRecordNotFound)

	var level func(string, ...zap.Field)
	msg := "gorm.query"
	switch {
	case failed && l.LogLevel >= logger.Error:
		level = l.with(ctx).Error
	case slow && l.LogLevel >= logger.Warn:
		level, msg = l.with(ctx).Warn, "gorm.slow_query"
	case l.LogLevel >= logger.Info && l.ShowSQL:
		level = l.with(ctx).Info
	default:
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("file", utils.FileWithLineNum()),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
	}
	if failed {
		fields = append(fields, zap.Error(err))
	}
	if slow {
		fields = append(fields, zap.Duration("threshold", l.SlowThreshold))
	}
	level(msg, fields...)
}
