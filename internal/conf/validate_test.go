package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Audio:       AudioSettings{SampleRate: SampleRate, PeriodFrames: PeriodFrames},
		Recognition: RecognitionSettings{Interval: 0.4, Backend: BackendOpenAI, Language: "en"},
		Segment:     SegmentSettings{MinDuration: 15 * time.Second},
		Archive:     ArchiveSettings{Enabled: true, Path: "audio.wav", SyncInterval: 20 * time.Second},
		Telemetry:   TelemetrySettings{Listen: "0.0.0.0:8090"},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid defaults", func(*Settings) {}, ""},
		{"zero sample rate", func(s *Settings) { s.Audio.SampleRate = 0 }, "audio.samplerate"},
		{"zero interval", func(s *Settings) { s.Recognition.Interval = 0 }, "recognition.interval"},
		{"unknown backend", func(s *Settings) { s.Recognition.Backend = "vosk" }, "recognition.backend"},
		{"whisper-server without url", func(s *Settings) { s.Recognition.Backend = BackendWhisperServer }, "recognition.baseurl"},
		{"whisper-server with url", func(s *Settings) {
			s.Recognition.Backend = BackendWhisperServer
			s.Recognition.BaseURL = "http://localhost:8080"
		}, ""},
		{"temperature out of range", func(s *Settings) { s.Recognition.Temperature = 1.5 }, "recognition.temperature"},
		{"bad language", func(s *Settings) { s.Recognition.Language = "not a tag" }, "recognition.language"},
		{"negative min duration", func(s *Settings) { s.Segment.MinDuration = -time.Second }, "segment.minduration"},
		{"translation without key", func(s *Settings) { s.Translation.Target = "fi" }, "translation.apikey"},
		{"translation bad target", func(s *Settings) {
			s.Translation.Target = "???"
			s.Translation.APIKey = "key"
		}, "translation.target"},
		{"translation bad format", func(s *Settings) {
			s.Translation.Target = "fi"
			s.Translation.APIKey = "key"
			s.Translation.Format = "markdown"
		}, "translation.format"},
		{"translation ok", func(s *Settings) {
			s.Translation.Target = "fi"
			s.Translation.APIKey = "key"
		}, ""},
		{"archive without path", func(s *Settings) { s.Archive.Path = "" }, "archive.path"},
		{"archive disabled without path", func(s *Settings) {
			s.Archive.Enabled = false
			s.Archive.Path = ""
		}, ""},
		{"both databases", func(s *Settings) {
			s.Output.SQLite = SQLiteSettings{Enabled: true, Path: "a.db"}
			s.Output.MySQL = MySQLSettings{Enabled: true, Host: "h", Database: "d"}
		}, "only one of"},
		{"mqtt without broker", func(s *Settings) {
			s.MQTT = MQTTSettings{Enabled: true, Topic: "t"}
		}, "mqtt.broker"},
		{"telemetry bad listen", func(s *Settings) {
			s.Telemetry = TelemetrySettings{Enabled: true, Listen: "8090"}
		}, "telemetry.listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSettingsCollectsAllErrors(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Audio.SampleRate = 0
	s.Archive.Path = ""

	err := ValidateSettings(s)
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
}
