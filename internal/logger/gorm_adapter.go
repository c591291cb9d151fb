package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// GormLoggerAdapter routes gorm output into a module logger. Statements go
// to trace, failed and slow statements to warn.
type GormLoggerAdapter struct {
	log  Logger
	slow time.Duration // zero disables slow statement warnings
}

// NewGormLoggerAdapter returns an adapter writing to log.
func NewGormLoggerAdapter(log Logger, slow time.Duration) *GormLoggerAdapter {
	if log == nil {
		log = NewSlogLogger(nil, LogLevelInfo, nil)
	}
	return &GormLoggerAdapter{log: log, slow: slow}
}

// LogMode is a no-op, levels come from the central logger configuration.
func (a *GormLoggerAdapter) LogMode(gorm_logger.LogLevel) gorm_logger.Interface { return a }

func (a *GormLoggerAdapter) Info(_ context.Context, format string, args ...any) {
	a.log.Debug(fmt.Sprintf(format, args...))
}

func (a *GormLoggerAdapter) Warn(_ context.Context, format string, args ...any) {
	a.log.Warn(fmt.Sprintf(format, args...))
}

func (a *GormLoggerAdapter) Error(_ context.Context, format string, args ...any) {
	a.log.Error(fmt.Sprintf(format, args...))
}

// Trace is called by gorm after every statement.
func (a *GormLoggerAdapter) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	took := time.Since(begin)
	statement, rows := fc()
	fields := []Field{
		String("sql", statement),
		Int64("rows", rows),
		Duration("took", took),
	}

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		a.log.Warn("statement failed", append(fields, Error(err))...)
		return
	}
	if a.slow > 0 && took > a.slow {
		a.log.Warn("slow statement", append(fields, Duration("threshold", a.slow))...)
		return
	}
	a.log.Trace("statement", fields...)
}
