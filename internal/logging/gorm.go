package logging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowQueryThreshold = 200 * time.Millisecond

// GormLogger routes GORM statement logging through zap.
type GormLogger struct {
	logger        *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger logs slow statements and failures at warn/error; trace output only in Info mode.
func NewGormLogger(logger *zap.Logger, level gormlogger.LogLevel) *GormLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormLogger{
		logger:        logger.Named("gorm").WithOptions(zap.AddCallerSkip(3)),
		level:         level,
		slowThreshold: defaultSlowQueryThreshold,
	}
}

func (gormLogger *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *gormLogger
	clone.level = level
	return &clone
}

func (gormLogger *GormLogger) Info(_ context.Context, message string, arguments ...interface{}) {
	if gormLogger.level >= gormlogger.Info {
		gormLogger.logger.Info(fmt.Sprintf(message, arguments...))
	}
}

func (gormLogger *GormLogger) Warn(_ context.Context, message string, arguments ...interface{}) {
	if gormLogger.level >= gormlogger.Warn {
		gormLogger.logger.Warn(fmt.Sprintf(message, arguments...))
	}
}

func (gormLogger *GormLogger) Error(_ context.Context, message string, arguments ...interface{}) {
	if gormLogger.level >= gormlogger.Error {
		gormLogger.logger.Error(fmt.Sprintf(message, arguments...))
	}
}

// Trace skips record-not-found, which the store translates into domain errors.
func (gormLogger *GormLogger) Trace(_ context.Context, begin time.Time, statement func() (string, int64), err error) {
	if gormLogger.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && gormLogger.level >= gormlogger.Error:
		sql, rows := statement()
		gormLogger.logger.Error("gorm statement failed",
			zap.Error(err), zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	case elapsed > gormLogger.slowThreshold && gormLogger.level >= gormlogger.Warn:
		sql, rows := statement()
		gormLogger.logger.Warn("gorm slow statement",
			zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	case gormLogger.level >= gormlogger.Info:
		sql, rows := statement()
		gormLogger.logger.Debug("gorm statement",
			zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	}
}

// ParseGormLevel maps a level name onto a GORM log level. Empty means warn.
func ParseGormLevel(raw string) (gormlogger.LogLevel, error) {
	switch raw {
	case "silent":
		return gormlogger.Silent, nil
	case "error":
		return gormlogger.Error, nil
	case "", "warn":
		return gormlogger.Warn, nil
	case "info":
		return gormlogger.Info, nil
	default:
		return gormlogger.Warn, fmt.Errorf("unsupported gorm log level %q", raw)
	}
}
