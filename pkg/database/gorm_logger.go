package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notifly-go/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SlowQueryThreshold defines the threshold for slow queries
const SlowQueryThreshold = 200 * time.Millisecond

// GormLogger routes ORM logs through the application logger.
type GormLogger struct {
	log        logger.Logger
	level      gormlogger.LogLevel
	logQueries bool
}

func NewGormLogger(log logger.Logger, logQueries bool) *GormLogger {
	if log == nil {
		log = logger.NewNop()
	}
	return &GormLogger{log: log.With("component", "gorm"), level: gormlogger.Warn, logQueries: logQueries}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *GormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *GormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.Error(fmt.Sprintf(msg, args...))
	}
}

func (l *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.log.Error("query failed", "error", err, "sql", sql, "rows", rows, "duration", elapsed)
	case elapsed > SlowQueryThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.Warn("slow query detected", "sql", sql, "rows", rows, "duration", elapsed,
			"threshold", SlowQueryThreshold.String())
	case l.logQueries:
		sql, rows := fc()
		l.log.Debug("query", "sql", sql, "rows", rows, "duration", elapsed)
	}
}
