package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// resetViper isolates tests from the global viper instance. Tests using it
// must not run in parallel.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

// writeDefaultConfig writes the embedded config into a temp dir and points
// LIVECAPTION_CONFIG at it.
func writeDefaultConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, DefaultConfig(), 0o600))
	t.Setenv(ConfigFileEnv, path)
	return path
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)
	writeDefaultConfig(t)

	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, SampleRate, settings.Audio.SampleRate)
	assert.Equal(t, PeriodFrames, settings.Audio.PeriodFrames)
	assert.InDelta(t, 0.4, settings.Recognition.Interval, 1e-9)
	assert.Equal(t, BackendOpenAI, settings.Recognition.Backend)
	assert.Equal(t, "whisper-1", settings.Recognition.Model)
	assert.Equal(t, 30*time.Second, settings.Recognition.Timeout)
	assert.True(t, settings.Recognition.StripAnnotations)
	assert.Equal(t, 15*time.Second, settings.Segment.MinDuration)
	assert.Empty(t, settings.Translation.Target)
	assert.Equal(t, GoogleTranslateEndpoint, settings.Translation.Endpoint)
	assert.True(t, settings.Archive.Enabled)
	assert.Equal(t, "audio.wav", settings.Archive.Path)
	assert.Equal(t, 20*time.Second, settings.Archive.SyncInterval)
	assert.Equal(t, "temp.txt", settings.Output.Transcript.Path)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)

	assert.Same(t, settings, GetSettings())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	resetViper(t)
	writeDefaultConfig(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GOOGLE_TRANSLATE_API_KEY", "translate-key")
	t.Setenv("LIVECAPTION_TRANSLATION_TARGET", "fi")
	t.Setenv("LIVECAPTION_SEGMENT_MINDURATION", "5s")
	t.Setenv("LIVECAPTION_RECOGNITION_INTERVAL", "1.5")

	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", settings.Recognition.APIKey)
	assert.Equal(t, "translate-key", settings.Translation.APIKey)
	assert.Equal(t, "fi", settings.Translation.Target)
	assert.Equal(t, 5*time.Second, settings.Segment.MinDuration)
	assert.InDelta(t, 1.5, settings.Recognition.Interval, 1e-9)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	resetViper(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recognition:\n  backend: vosk\n"), 0o600))
	t.Setenv(ConfigFileEnv, path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recognition.backend")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	resetViper(t)
	t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
}

func TestCreateDefaultConfig(t *testing.T) {
	resetViper(t)
	setDefaultConfig()
	dir := filepath.Join(t.TempDir(), "nested")

	require.NoError(t, createDefaultConfig(dir))

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), data)
	assert.Equal(t, "audio.wav", viper.GetString("archive.path"))
}

func TestDefaultConfigMatchesDefaults(t *testing.T) {
	t.Parallel()

	var fromFile Settings
	require.NoError(t, yaml.Unmarshal(DefaultConfig(), &fromFile))

	assert.Equal(t, SampleRate, fromFile.Audio.SampleRate)
	assert.Equal(t, BackendOpenAI, fromFile.Recognition.Backend)
	assert.Equal(t, "audio.wav", fromFile.Archive.Path)
	assert.Equal(t, "temp.txt", fromFile.Output.Transcript.Path)
	assert.Empty(t, fromFile.Recognition.APIKey, "embedded config must not carry credentials")
	assert.Empty(t, fromFile.Translation.APIKey, "embedded config must not carry credentials")
}

func TestSaveYAMLConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	settings := &Settings{
		Audio:       AudioSettings{Source: "USB Mic", SampleRate: SampleRate},
		Recognition: RecognitionSettings{Interval: 0.4, Backend: BackendOpenAI},
		Segment:     SegmentSettings{MinDuration: 10 * time.Second},
	}

	require.NoError(t, SaveYAMLConfig(path, settings))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Settings
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, "USB Mic", got.Audio.Source)
	assert.Equal(t, 10*time.Second, got.Segment.MinDuration)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should be replaced")
}

func TestRedacted(t *testing.T) {
	t.Parallel()

	settings := &Settings{}
	settings.Recognition.APIKey = "sk-secret"
	settings.MQTT.Password = "hunter2"
	settings.Translation.Target = "fi"

	redacted := settings.Redacted()

	assert.Equal(t, "********", redacted.Recognition.APIKey)
	assert.Equal(t, "********", redacted.MQTT.Password)
	assert.Empty(t, redacted.Translation.APIKey, "unset secrets stay empty")
	assert.Equal(t, "fi", redacted.Translation.Target)
	assert.Equal(t, "sk-secret", settings.Recognition.APIKey, "original must not change")
}
