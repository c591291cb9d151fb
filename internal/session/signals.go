package session

import (
	"context"
	"os/signal"
)

// NotifyContext returns a context cancelled by the first shutdown signal
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, shutdownSignals...)
}
