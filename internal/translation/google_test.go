package translation

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/httpclient"
)

const testKey = "test-api-key"

func newTestGoogle(t *testing.T, config GoogleConfig) (*Google, *httpmock.MockTransport) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	config.APIKey = testKey
	config.HTTPClient = httpclient.New(&httpclient.Config{Transport: transport})

	g, err := NewGoogle(config)
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return g, transport
}

func translateResponder(t *testing.T, translated string) httpmock.Responder {
	t.Helper()
	return func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, testKey, req.Header.Get("X-Goog-Api-Key"))
		assert.Empty(t, req.URL.RawQuery, "the key must not travel in the URL")

		var body googleRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
		}
		assert.Equal(t, "text", body.Format)
		assert.NotEmpty(t, body.Q)

		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
			"data": map[string]any{
				"translations": []map[string]string{
					{"translatedText": translated, "detectedSourceLanguage": "en"},
				},
			},
		})
	}
}

func TestGoogleTranslate(t *testing.T) {
	t.Parallel()

	g, transport := newTestGoogle(t, GoogleConfig{})
	transport.RegisterResponder(http.MethodPost, DefaultEndpoint, translateResponder(t, "Hyvää huomenta."))

	got, err := g.Translate(t.Context(), "Good morning.", "fi")
	require.NoError(t, err)
	assert.Equal(t, "Hyvää huomenta.", got)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestGoogleTranslateSkipsEmptyInput(t *testing.T) {
	t.Parallel()

	g, transport := newTestGoogle(t, GoogleConfig{})

	got, err := g.Translate(t.Context(), "  ", "fi")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = g.Translate(t.Context(), "Hello.", "")
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Zero(t, transport.GetTotalCallCount())
}

func TestGoogleTranslateServiceError(t *testing.T) {
	t.Parallel()

	g, transport := newTestGoogle(t, GoogleConfig{})
	transport.RegisterResponder(http.MethodPost, DefaultEndpoint,
		httpmock.NewStringResponder(http.StatusBadRequest,
			`{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`))

	_, err := g.Translate(t.Context(), "Hello.", "fi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not valid")
	assert.True(t, errors.IsCategory(err, errors.CategoryTranslation))
	assert.Equal(t, uint64(1), g.Stats().Failures)
}

func TestGoogleTranslateErrorInBody(t *testing.T) {
	t.Parallel()

	g, transport := newTestGoogle(t, GoogleConfig{})
	transport.RegisterResponder(http.MethodPost, DefaultEndpoint,
		httpmock.NewStringResponder(http.StatusOK, `{"error":{"code":403,"message":"quota exceeded"}}`))

	_, err := g.Translate(t.Context(), "Hello.", "fi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestGoogleTranslateEmptyTranslations(t *testing.T) {
	t.Parallel()

	g, transport := newTestGoogle(t, GoogleConfig{})
	transport.RegisterResponder(http.MethodPost, DefaultEndpoint,
		httpmock.NewStringResponder(http.StatusOK, `{"data":{"translations":[]}}`))

	_, err := g.Translate(t.Context(), "Hello.", "fi")
	require.Error(t, err)
}

func TestGoogleTranslateCaches(t *testing.T) {
	t.Parallel()

	g, transport := newTestGoogle(t, GoogleConfig{CacheTTL: time.Hour})
	transport.RegisterResponder(http.MethodPost, DefaultEndpoint, translateResponder(t, "Hei."))

	for range 3 {
		got, err := g.Translate(t.Context(), "Hello.", "fi")
		require.NoError(t, err)
		assert.Equal(t, "Hei.", got)
	}

	assert.Equal(t, 1, transport.GetTotalCallCount())
	stats := g.Stats()
	assert.Equal(t, uint64(1), stats.Requests)
	assert.Equal(t, uint64(2), stats.CacheHits)
}

func TestGoogleTranslateCustomEndpoint(t *testing.T) {
	t.Parallel()

	const endpoint = "http://translate.local/v2"
	g, transport := newTestGoogle(t, GoogleConfig{Endpoint: endpoint})
	transport.RegisterResponder(http.MethodPost, endpoint, translateResponder(t, "Hallo."))

	got, err := g.Translate(t.Context(), "Hello.", "de")
	require.NoError(t, err)
	assert.Equal(t, "Hallo.", got)
}

func TestGoogleTranslateHonorsContext(t *testing.T) {
	t.Parallel()

	g, transport := newTestGoogle(t, GoogleConfig{RateLimit: 1})
	transport.RegisterResponder(http.MethodPost, DefaultEndpoint, translateResponder(t, "Hei."))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := g.Translate(ctx, "Hello.", "fi")
	require.Error(t, err)
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestGoogleTranslateHTMLFormat(t *testing.T) {
	t.Parallel()

	g, transport := newTestGoogle(t, GoogleConfig{Format: FormatHTML})
	transport.RegisterResponder(http.MethodPost, DefaultEndpoint,
		func(req *http.Request) (*http.Response, error) {
			var body googleRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
			}
			assert.Equal(t, FormatHTML, body.Format)
			return httpmock.NewStringResponse(http.StatusOK,
				`{"data":{"translations":[{"translatedText":"C&#39;est l&#39;heure &amp; demie."}]}}`), nil
		})

	got, err := g.Translate(t.Context(), "It's half past.", "fr")
	require.NoError(t, err)
	assert.Equal(t, "C'est l'heure & demie.", got)
}

func TestNewGoogleRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := NewGoogle(GoogleConfig{APIKey: testKey, Format: "markdown"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestNewGoogleRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewGoogle(GoogleConfig{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestNop(t *testing.T) {
	t.Parallel()

	got, err := Nop{}.Translate(t.Context(), "Hello.", "fi")
	require.NoError(t, err)
	assert.Empty(t, got)
}
