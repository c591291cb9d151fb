// Package conf provides configuration management for livecaption.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings contains all configuration options for livecaption.
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug" json:"debug"` // true to enable debug mode

	Audio       AudioSettings        `yaml:"audio" mapstructure:"audio" json:"audio"`
	Recognition RecognitionSettings  `yaml:"recognition" mapstructure:"recognition" json:"recognition"`
	Segment     SegmentSettings      `yaml:"segment" mapstructure:"segment" json:"segment"`
	Translation TranslationSettings  `yaml:"translation" mapstructure:"translation" json:"translation"`
	Archive     ArchiveSettings      `yaml:"archive" mapstructure:"archive" json:"archive"`
	Output      OutputSettings       `yaml:"output" mapstructure:"output" json:"output"`
	MQTT        MQTTSettings         `yaml:"mqtt" mapstructure:"mqtt" json:"mqtt"`
	Telemetry   TelemetrySettings    `yaml:"telemetry" mapstructure:"telemetry" json:"telemetry"`
	Sentry      SentrySettings       `yaml:"sentry" mapstructure:"sentry" json:"sentry"`
	Logging     logger.LoggingConfig `yaml:"logging" mapstructure:"logging" json:"logging"`
}

// AudioSettings selects the capture device and its format.
type AudioSettings struct {
	Source       string `yaml:"source" mapstructure:"source" json:"source"`                   // device name or ID, empty for the default device
	SampleRate   int    `yaml:"samplerate" mapstructure:"samplerate" json:"samplerate"`       // capture rate in Hz
	PeriodFrames int    `yaml:"periodframes" mapstructure:"periodframes" json:"periodframes"` // frames per driver callback
}

// RecognitionSettings configures the speech recognition backend.
type RecognitionSettings struct {
	Interval         float64       `yaml:"interval" mapstructure:"interval" json:"interval"` // seconds of new audio before a recognition unit is taken
	Backend          string        `yaml:"backend" mapstructure:"backend" json:"backend"`    // openai or whisper-server
	Model            string        `yaml:"model" mapstructure:"model" json:"model"`
	BaseURL          string        `yaml:"baseurl" mapstructure:"baseurl" json:"baseurl"`
	APIKey           string        `yaml:"apikey" mapstructure:"apikey" json:"-"`
	Language         string        `yaml:"language" mapstructure:"language" json:"language"`
	Temperature      float32       `yaml:"temperature" mapstructure:"temperature" json:"temperature"`
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout" json:"timeout"`
	StripAnnotations bool          `yaml:"stripannotations" mapstructure:"stripannotations" json:"stripannotations"` // drop (...) and [...] spans
}

// SegmentSettings controls when an utterance is finalized.
type SegmentSettings struct {
	MinDuration time.Duration `yaml:"minduration" mapstructure:"minduration" json:"minduration"`
}

// TranslationSettings configures the Google Cloud Translation client.
type TranslationSettings struct {
	Target    string        `yaml:"target" mapstructure:"target" json:"target"` // target language code, empty disables translation
	APIKey    string        `yaml:"apikey" mapstructure:"apikey" json:"-"`
	Endpoint  string        `yaml:"endpoint" mapstructure:"endpoint" json:"endpoint"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout" json:"timeout"`
	CacheTTL  time.Duration `yaml:"cachettl" mapstructure:"cachettl" json:"cachettl"`
	RateLimit float64       `yaml:"ratelimit" mapstructure:"ratelimit" json:"ratelimit"` // requests per second, 0 for unlimited
	Format    string        `yaml:"format" mapstructure:"format" json:"format"`          // text or html
}

// ArchiveSettings controls the float WAV recording of the session.
type ArchiveSettings struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Path         string        `yaml:"path" mapstructure:"path" json:"path"`
	SyncInterval time.Duration `yaml:"syncinterval" mapstructure:"syncinterval" json:"syncinterval"` // header patch interval, 0 patches only on close
}

// OutputSettings groups transcript destinations.
type OutputSettings struct {
	Transcript  TranscriptSettings `yaml:"transcript" mapstructure:"transcript" json:"transcript"`
	ClearScreen bool               `yaml:"clearscreen" mapstructure:"clearscreen" json:"clearscreen"`
	SQLite      SQLiteSettings     `yaml:"sqlite" mapstructure:"sqlite" json:"sqlite"`
	MySQL       MySQLSettings      `yaml:"mysql" mapstructure:"mysql" json:"mysql"`
}

// TranscriptSettings configures the plain text utterance log.
type TranscriptSettings struct {
	Path string `yaml:"path" mapstructure:"path" json:"path"`
}

// SQLiteSettings contains settings for the SQLite utterance store.
type SQLiteSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Path    string `yaml:"path" mapstructure:"path" json:"path"`
}

// MySQLSettings contains settings for the MySQL utterance store.
type MySQLSettings struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Username string `yaml:"username" mapstructure:"username" json:"username"`
	Password string `yaml:"password" mapstructure:"password" json:"-"`
	Host     string `yaml:"host" mapstructure:"host" json:"host"`
	Port     string `yaml:"port" mapstructure:"port" json:"port"`
	Database string `yaml:"database" mapstructure:"database" json:"database"`
}

// MQTTSettings contains settings for publishing utterances to a broker.
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Broker   string `yaml:"broker" mapstructure:"broker" json:"broker"`
	Topic    string `yaml:"topic" mapstructure:"topic" json:"topic"`
	Username string `yaml:"username" mapstructure:"username" json:"username"`
	Password string `yaml:"password" mapstructure:"password" json:"-"`
	Retain   bool   `yaml:"retain" mapstructure:"retain" json:"retain"`
}

// TelemetrySettings controls the Prometheus and status endpoint.
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen" json:"listen"`
}

// SentrySettings controls error reporting to Sentry.
type SentrySettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	DSN     string `yaml:"dsn" mapstructure:"dsn" json:"-"`
}

// ConfigFileEnv names an explicit config file, bypassing the default search paths.
const ConfigFileEnv = "LIVECAPTION_CONFIG"

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment into a new Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// SyncViper refreshes settings from viper after command line flags were bound.
func SyncViper(settings *Settings) error {
	if err := viper.Unmarshal(settings); err != nil {
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "sync_viper").
			Build()
	}
	if err := resolveSecrets(settings); err != nil {
		return err
	}
	return ValidateSettings(settings)
}

// GetSettings returns the most recently loaded settings
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// initViper sets defaults, binds the environment and reads the config file.
// A missing config file is created from the embedded defaults.
func initViper() error {
	viper.SetConfigType("yaml")
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if explicit := os.Getenv(ConfigFileEnv); explicit != "" {
		viper.SetConfigFile(explicit)
		if err := viper.ReadInConfig(); err != nil {
			return errors.New(err).
				Category(errors.CategoryConfiguration).
				FileContext(explicit, 0).
				Context("operation", "read_config").
				Build()
		}
		return nil
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded config.yaml into dir and reads it
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "create_config_dir").
			Build()
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil { //nolint:gosec // config is not secret until the user edits it
		return errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(configPath, int64(len(data))).
			Context("operation", "write_default_config").
			Build()
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// DefaultConfig returns the embedded default configuration file contents.
func DefaultConfig() []byte {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil
	}
	return data
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// most specific first.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	switch runtime.GOOS {
	case "windows":
		return []string{".", filepath.Join(homeDir, "AppData", "Roaming", "livecaption")}, nil
	default:
		return []string{".", filepath.Join(homeDir, ".config", "livecaption"), "/etc/livecaption"}, nil
	}
}

// SaveYAMLConfig writes settings to configPath atomically. Comments in an
// existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(configPath, int64(len(yamlData))).
			Context("operation", "replace_config").
			Build()
	}

	return nil
}
