// Package recognizer wraps the speech recognition backends. Each call
// recognizes one unit of float samples and returns its text segments.
package recognizer

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/httpclient"
	"github.com/tphakala/livecaption/internal/logger"
)

// Backend names
const (
	BackendOpenAI        = "openai"
	BackendWhisperServer = "whisper-server"
)

// Options are per-request recognition hints
type Options struct {
	Language    string  // ISO-639-1 code, empty for auto-detect
	Temperature float32 // sampling temperature, 0 is deterministic
}

// Recognizer turns mono float samples into text segments.
type Recognizer interface {
	Recognize(ctx context.Context, samples []float32, opts Options) ([]string, error)
}

// Config selects and configures a backend
type Config struct {
	Backend    string
	Model      string
	BaseURL    string
	APIKey     string
	SampleRate int
	Timeout    time.Duration
}

// New builds the configured backend
func New(config Config) (Recognizer, error) {
	client := httpclient.New(&httpclient.Config{DefaultTimeout: config.Timeout})

	switch config.Backend {
	case BackendOpenAI, "":
		return NewOpenAI(config, client)
	case BackendWhisperServer:
		return NewWhisperServer(config, client)
	default:
		return nil, errors.Newf("unknown recognition backend %q", config.Backend).
			Component("recognizer").
			Category(errors.CategoryConfiguration).
			Context("backend", config.Backend).
			Build()
	}
}

// GetLogger returns the recognizer package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("recognizer")
}

var annotationPattern = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)

// StripAnnotations removes parenthesized and bracketed spans such as
// "(music)" or "[BLANK_AUDIO]" and collapses the remaining whitespace.
func StripAnnotations(text string) string {
	return strings.Join(strings.Fields(annotationPattern.ReplaceAllString(text, " ")), " ")
}

// Join concatenates segments into one transcript
func Join(segments []string) string {
	return strings.TrimSpace(strings.Join(segments, ""))
}

func recognitionError(err error, backend string, samples int) error {
	return errors.New(err).
		Component("recognizer").
		Category(errors.CategoryRecognition).
		Context("backend", backend).
		Context("samples", samples).
		Build()
}
