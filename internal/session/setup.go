package session

import (
	"context"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/google/uuid"

	"github.com/tphakala/livecaption/internal/archive"
	"github.com/tphakala/livecaption/internal/capture"
	"github.com/tphakala/livecaption/internal/capture/malgo"
	"github.com/tphakala/livecaption/internal/conf"
	"github.com/tphakala/livecaption/internal/datastore"
	"github.com/tphakala/livecaption/internal/logger"
	"github.com/tphakala/livecaption/internal/mqtt"
	"github.com/tphakala/livecaption/internal/recognizer"
	"github.com/tphakala/livecaption/internal/telemetry"
	"github.com/tphakala/livecaption/internal/transcript"
	"github.com/tphakala/livecaption/internal/translation"
)

// initialBufferSeconds sizes the first buffer allocation; it grows as needed
const initialBufferSeconds = 30

// mqttConnectTimeout bounds the broker connection attempt at startup
const mqttConnectTimeout = 15 * time.Second

// NewFromSettings opens every collaborator the settings enable and returns
// a session ready to Run. On error everything opened so far is closed.
func NewFromSettings(ctx context.Context, settings *conf.Settings) (sess *Session, err error) {
	id := uuid.NewString()
	log := GetLogger().With(logger.String("session_id", id))

	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	deps := Deps{Display: os.Stdout}

	if settings.Telemetry.Enabled {
		if deps.Metrics, err = telemetry.NewMetrics(); err != nil {
			return nil, err
		}
	}

	deps.Buffer = capture.NewStreamBuffer(settings.Audio.SampleRate * initialBufferSeconds)
	deps.Source = malgo.NewSource(malgo.Config{
		Source:       settings.Audio.Source,
		SampleRate:   uint32(settings.Audio.SampleRate),   //nolint:gosec // validated positive
		PeriodFrames: uint32(settings.Audio.PeriodFrames), //nolint:gosec // validated non-negative
	}, deps.Buffer)

	if deps.Recognizer, err = recognizer.New(recognizer.Config{
		Backend:    settings.Recognition.Backend,
		Model:      settings.Recognition.Model,
		BaseURL:    settings.Recognition.BaseURL,
		APIKey:     settings.Recognition.APIKey,
		SampleRate: settings.Audio.SampleRate,
		Timeout:    settings.Recognition.Timeout,
	}); err != nil {
		return nil, err
	}

	deps.Translator = translation.Nop{}
	if settings.Translation.Target != "" {
		google, err := translation.NewGoogle(translation.GoogleConfig{
			APIKey:    settings.Translation.APIKey,
			Endpoint:  settings.Translation.Endpoint,
			Timeout:   settings.Translation.Timeout,
			CacheTTL:  settings.Translation.CacheTTL,
			RateLimit: settings.Translation.RateLimit,
			Format:    settings.Translation.Format,
		})
		if err != nil {
			return nil, err
		}
		closers = append(closers, google.Close)
		deps.Translator = google
	}

	if deps.Transcript, err = transcript.Open(settings.Output.Transcript.Path); err != nil {
		return nil, err
	}
	closers = append(closers, func() { _ = deps.Transcript.Close() })

	if settings.Archive.Enabled {
		format := &audio.Format{NumChannels: conf.NumChannels, SampleRate: settings.Audio.SampleRate}
		if deps.Archive, err = archive.Create(settings.Archive.Path, format,
			archive.WithSyncInterval(settings.Archive.SyncInterval)); err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = deps.Archive.Finalize() })
	}

	if store := datastore.New(settings); store != nil {
		if err = store.Open(); err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = store.Close() })
		deps.Store = store
	}

	if settings.MQTT.Enabled {
		deps.Publisher = connectMQTT(ctx, settings, id, deps.Metrics, log)
	}

	sess, err = New(Config{
		ID:               id,
		SampleRate:       settings.Audio.SampleRate,
		Interval:         settings.Recognition.Interval,
		MinDuration:      settings.Segment.MinDuration,
		Language:         settings.Recognition.Language,
		Temperature:      settings.Recognition.Temperature,
		TranslateTarget:  settings.Translation.Target,
		StripAnnotations: settings.Recognition.StripAnnotations,
		ClearScreen:      settings.Output.ClearScreen,
	}, deps)
	if err != nil {
		if deps.Publisher != nil {
			deps.Publisher.Disconnect()
		}
		return nil, err
	}

	if settings.Telemetry.Enabled {
		var lister telemetry.UtteranceLister
		if deps.Store != nil {
			lister = deps.Store
		}
		sess.Server = telemetry.NewServer(settings.Telemetry.Listen, deps.Metrics, sess, lister)
	}

	return sess, nil
}

// connectMQTT returns a connected publisher, or nil when the broker cannot
// be reached. Publishing is best effort and never blocks startup.
func connectMQTT(ctx context.Context, settings *conf.Settings, id string, metrics *telemetry.Metrics, log logger.Logger) mqtt.Client {
	client, err := mqtt.NewClient(mqtt.ConfigFromSettings(settings, "livecaption-"+id[:8]), metrics)
	if err != nil {
		log.Warn("mqtt publishing disabled", logger.Error(err))
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		log.Warn("mqtt broker unreachable, publishing disabled",
			logger.String("broker", settings.MQTT.Broker),
			logger.Error(err))
		return nil
	}
	return client
}
