package recognizer

import (
	"bytes"
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/tphakala/livecaption/internal/archive"
	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/httpclient"
)

// OpenAI recognizes through the audio transcription endpoint of OpenAI or
// a compatible server.
type OpenAI struct {
	client     *openai.Client
	model      string
	sampleRate int
}

// NewOpenAI returns an OpenAI backend. BaseURL overrides the API root,
// e.g. "http://localhost:8000/v1" for a local server.
func NewOpenAI(config Config, client *httpclient.Client) (*OpenAI, error) {
	if config.APIKey == "" && config.BaseURL == "" {
		return nil, errors.Newf("openai API key is required").
			Component("recognizer").
			Category(errors.CategoryConfiguration).
			Context("backend", BackendOpenAI).
			Build()
	}
	if config.Model == "" {
		config.Model = openai.Whisper1
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = client.StandardClient()

	return &OpenAI{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      config.Model,
		sampleRate: config.SampleRate,
	}, nil
}

// Recognize uploads samples as a float WAV and returns the transcript
func (o *OpenAI) Recognize(ctx context.Context, samples []float32, opts Options) ([]string, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	wav, err := archive.EncodeWAV(archive.MonoBuffer(samples, o.sampleRate))
	if err != nil {
		return nil, err
	}

	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       o.model,
		FilePath:    "unit.wav",
		Reader:      bytes.NewReader(wav),
		Language:    opts.Language,
		Temperature: opts.Temperature,
		Format:      openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return nil, recognitionError(err, BackendOpenAI, len(samples))
	}

	return []string{resp.Text}, nil
}
