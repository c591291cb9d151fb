package recognizer

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/tphakala/livecaption/internal/archive"
	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/httpclient"
)

// WhisperServer recognizes through the /inference endpoint of the
// whisper.cpp example server.
type WhisperServer struct {
	client     *httpclient.Client
	url        string
	sampleRate int
}

type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// NewWhisperServer returns a backend for the server at config.BaseURL
func NewWhisperServer(config Config, client *httpclient.Client) (*WhisperServer, error) {
	if config.BaseURL == "" {
		return nil, errors.Newf("whisper-server base URL is required").
			Component("recognizer").
			Category(errors.CategoryConfiguration).
			Context("backend", BackendWhisperServer).
			Build()
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}

	return &WhisperServer{
		client:     client,
		url:        strings.TrimRight(config.BaseURL, "/") + "/inference",
		sampleRate: config.SampleRate,
	}, nil
}

// Recognize posts samples as a multipart float WAV upload
func (w *WhisperServer) Recognize(ctx context.Context, samples []float32, opts Options) ([]string, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	wav, err := archive.EncodeWAV(archive.MonoBuffer(samples, w.sampleRate))
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "unit.wav")
	if err != nil {
		return nil, recognitionError(err, BackendWhisperServer, len(samples))
	}
	if _, err := part.Write(wav); err != nil {
		return nil, recognitionError(err, BackendWhisperServer, len(samples))
	}

	fields := map[string]string{
		"response_format": "json",
		"temperature":     strconv.FormatFloat(float64(opts.Temperature), 'f', -1, 32),
	}
	if opts.Language != "" {
		fields["language"] = opts.Language
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, recognitionError(err, BackendWhisperServer, len(samples))
		}
	}
	if err := mw.Close(); err != nil {
		return nil, recognitionError(err, BackendWhisperServer, len(samples))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, &body)
	if err != nil {
		return nil, recognitionError(err, BackendWhisperServer, len(samples))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp inferenceResponse
	if err := w.client.DoJSON(ctx, req, &resp); err != nil {
		return nil, recognitionError(err, BackendWhisperServer, len(samples))
	}
	if resp.Error != "" {
		return nil, recognitionError(errors.NewStd(resp.Error), BackendWhisperServer, len(samples))
	}

	return []string{resp.Text}, nil
}
