// Package translation translates finalized utterances.
package translation

import (
	"context"

	"github.com/tphakala/livecaption/internal/logger"
)

// Translator translates text into the target language. An empty target or
// empty text yields an empty translation and no error.
type Translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
}

// Nop is a Translator that never translates
type Nop struct{}

// Translate returns an empty translation
func (Nop) Translate(context.Context, string, string) (string, error) {
	return "", nil
}

// GetLogger returns the translation package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("translation")
}
