package translation

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/k3a/html2text"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/httpclient"
	"github.com/tphakala/livecaption/internal/logger"
)

// DefaultEndpoint is the Cloud Translation v2 REST endpoint
const DefaultEndpoint = "https://translation.googleapis.com/language/translate/v2"

const apiKeyHeader = "X-Goog-Api-Key"

// Request formats accepted by the v2 API
const (
	FormatText = "text"
	FormatHTML = "html"
)

// GoogleConfig configures the Google Cloud Translation client
type GoogleConfig struct {
	APIKey    string
	Endpoint  string
	Timeout   time.Duration
	CacheTTL  time.Duration // zero disables caching
	RateLimit float64       // requests per second, zero for unlimited
	Format    string        // FormatText or FormatHTML, empty means FormatText

	// HTTPClient overrides the client built from Timeout
	HTTPClient *httpclient.Client
}

// GoogleStats counts translation requests
type GoogleStats struct {
	Requests  uint64
	CacheHits uint64
	Failures  uint64
}

// Google translates through the Cloud Translation v2 REST API.
type Google struct {
	config  GoogleConfig
	client  *httpclient.Client
	cache   *cache.Cache
	limiter *rate.Limiter
	log     logger.Logger

	requests  atomic.Uint64
	cacheHits atomic.Uint64
	failures  atomic.Uint64
}

type googleRequest struct {
	Q      string `json:"q"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type googleResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText         string `json:"translatedText"`
			DetectedSourceLanguage string `json:"detectedSourceLanguage"`
		} `json:"translations"`
	} `json:"data"`
	Error *googleError `json:"error"`
}

type googleError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewGoogle returns a Google translator. The API key is required.
func NewGoogle(config GoogleConfig) (*Google, error) {
	if config.APIKey == "" {
		return nil, errors.Newf("google translation API key is required").
			Component("translation").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	switch config.Format {
	case "":
		config.Format = FormatText
	case FormatText, FormatHTML:
	default:
		return nil, errors.Newf("unsupported translation format %q", config.Format).
			Component("translation").
			Category(errors.CategoryConfiguration).
			Build()
	}

	client := config.HTTPClient
	if client == nil {
		client = httpclient.New(&httpclient.Config{DefaultTimeout: config.Timeout})
	}

	g := &Google{
		config: config,
		client: client,
		log:    GetLogger().With(logger.String("backend", "google")),
	}
	if config.CacheTTL > 0 {
		g.cache = cache.New(config.CacheTTL, config.CacheTTL*2)
	}
	if config.RateLimit > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return g, nil
}

// Translate returns text translated into target.
func (g *Google) Translate(ctx context.Context, text, target string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" || target == "" {
		return "", nil
	}

	cacheKey := target + "\x00" + text
	if g.cache != nil {
		if cached, found := g.cache.Get(cacheKey); found {
			if s, ok := cached.(string); ok {
				g.cacheHits.Add(1)
				return s, nil
			}
		}
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	g.requests.Add(1)
	start := time.Now()

	var resp googleResponse
	headers := http.Header{apiKeyHeader: []string{g.config.APIKey}}
	err := g.client.PostJSON(ctx, g.config.Endpoint, headers,
		googleRequest{Q: text, Target: target, Format: g.config.Format}, &resp)
	if err != nil {
		g.failures.Add(1)
		return "", g.wrapError(err, target)
	}

	if resp.Error != nil {
		g.failures.Add(1)
		return "", errors.Newf("translation service error: %s", resp.Error.Message).
			Component("translation").
			Category(errors.CategoryTranslation).
			Context("target", target).
			Context("code", resp.Error.Code).
			Build()
	}
	if len(resp.Data.Translations) == 0 {
		g.failures.Add(1)
		return "", errors.Newf("translation response has no translations").
			Component("translation").
			Category(errors.CategoryTranslation).
			Context("target", target).
			Build()
	}

	translated := resp.Data.Translations[0].TranslatedText
	if g.config.Format == FormatHTML {
		// html responses carry entities and markup
		translated = strings.TrimSpace(html2text.HTML2Text(translated))
	}
	if g.cache != nil {
		g.cache.Set(cacheKey, translated, cache.DefaultExpiration)
	}

	g.log.Debug("translated utterance",
		logger.String("target", target),
		logger.String("source_language", resp.Data.Translations[0].DetectedSourceLanguage),
		logger.Int("chars", len(text)),
		logger.Duration("duration", time.Since(start)))

	return translated, nil
}

// wrapError surfaces the service message of an HTTP error response
func (g *Google) wrapError(err error, target string) error {
	var statusErr *httpclient.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}

	message := string(statusErr.Body)
	var body googleResponse
	if json.Unmarshal(statusErr.Body, &body) == nil && body.Error != nil && body.Error.Message != "" {
		message = body.Error.Message
	}

	return errors.Newf("translation service error: %s", message).
		Component("translation").
		Category(errors.CategoryTranslation).
		Context("target", target).
		Context("status_code", statusErr.StatusCode).
		Build()
}

// Stats returns the request counters
func (g *Google) Stats() GoogleStats {
	return GoogleStats{
		Requests:  g.requests.Load(),
		CacheHits: g.cacheHits.Load(),
		Failures:  g.failures.Load(),
	}
}

// Close releases idle connections
func (g *Google) Close() {
	g.client.Close()
}
