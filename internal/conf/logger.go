package conf

import "github.com/tphakala/livecaption/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// It is fetched from the global logger on each call, which may be replaced
// after package init.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
