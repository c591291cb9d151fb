package httpclient

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/livecaption/internal/errors"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil config", func(t *testing.T) {
		client := New(nil)
		assert.Equal(t, DefaultTimeout, client.defaultTimeout)
		assert.Equal(t, defaultUserAgent, client.userAgent)
	})

	t.Run("custom config", func(t *testing.T) {
		cfg := Config{DefaultTimeout: 5 * time.Second, UserAgent: "TestAgent/1.0"}
		client := New(&cfg)
		assert.Equal(t, 5*time.Second, client.defaultTimeout)
		assert.Equal(t, "TestAgent/1.0", client.userAgent)
	})

	t.Run("zero values use defaults", func(t *testing.T) {
		client := New(&Config{})
		assert.Equal(t, DefaultTimeout, client.defaultTimeout)
		assert.NotEmpty(t, client.userAgent)
	})
}

func TestDo_UserAgent(t *testing.T) {
	t.Parallel()

	var receivedUA string
	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		receivedUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClient(t, &Config{UserAgent: "CustomAgent/2.0"})

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(t.Context(), req)
	require.NoError(t, err)
	closeBody(t, resp)

	assert.Equal(t, "CustomAgent/2.0", receivedUA)
	assert.Empty(t, req.Header.Get("User-Agent"), "caller's request must not be modified")
}

func TestDo_DefaultTimeout(t *testing.T) {
	t.Parallel()

	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	client := newTestClient(t, &Config{DefaultTimeout: 50 * time.Millisecond})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Do(context.Background(), req)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDo_BodyReadableAfterReturn(t *testing.T) {
	t.Parallel()

	server := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	})
	client := newTestClient(t, nil)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	defer closeBody(t, resp)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func TestDo_Cancellation(t *testing.T) {
	t.Parallel()

	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	client := newTestClient(t, nil)

	ctx, cancel := context.WithCancel(t.Context())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = client.Do(ctx, req)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAfterResponseHook(t *testing.T) {
	t.Parallel()

	server := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	client := newTestClient(t, nil)

	var calls atomic.Int32
	var status atomic.Int32
	client.SetAfterResponseHook(func(_ *http.Request, resp *http.Response, d time.Duration, err error) {
		calls.Add(1)
		if err == nil {
			status.Store(int32(resp.StatusCode)) //nolint:gosec // test status codes fit
		}
		assert.GreaterOrEqual(t, d, time.Duration(0))
	})

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(t.Context(), req)
	require.NoError(t, err)
	closeBody(t, resp)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(http.StatusTeapot), status.Load())
}

func TestPostJSON(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, "https://api.example.com/echo",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			assert.Equal(t, "secret", req.Header.Get("X-Api-Key"))
			body, _ := io.ReadAll(req.Body)
			return httpmock.NewStringResponse(http.StatusOK, `{"echo":`+string(body)+`}`), nil
		})

	client := newTestClient(t, &Config{Transport: transport})

	var out struct {
		Echo struct {
			Q string `json:"q"`
		} `json:"echo"`
	}
	headers := http.Header{"X-Api-Key": []string{"secret"}}
	err := client.PostJSON(t.Context(), "https://api.example.com/echo", headers, map[string]string{"q": "hello"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Echo.Q)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestDoJSON_StatusError(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, "https://api.example.com/fail",
		httpmock.NewStringResponder(http.StatusForbidden, `{"error":{"message":"denied"}}`))

	client := newTestClient(t, &Config{Transport: transport})

	err := client.PostJSON(t.Context(), "https://api.example.com/fail", nil, struct{}{}, nil)
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Contains(t, string(statusErr.Body), "denied")
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))
}

func TestDoJSON_NetworkError(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, "https://api.example.com/down",
		httpmock.NewErrorResponder(io.ErrUnexpectedEOF))

	client := newTestClient(t, &Config{Transport: transport})

	err := client.PostJSON(t.Context(), "https://api.example.com/down", nil, struct{}{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
}

func TestStandardClientRoutesThroughClient(t *testing.T) {
	t.Parallel()

	var receivedUA string
	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		receivedUA = r.Header.Get("User-Agent")
	})
	client := newTestClient(t, nil)

	resp, err := client.StandardClient().Get(server.URL)
	require.NoError(t, err)
	closeBody(t, resp)

	assert.Equal(t, defaultUserAgent, receivedUA)
}
