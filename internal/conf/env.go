// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings. Well-known
// provider variables are accepted next to the LIVECAPTION_ ones.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "LIVECAPTION_DEBUG", validateEnvBool},
		{"audio.source", "LIVECAPTION_AUDIO_SOURCE", nil},

		{"recognition.interval", "LIVECAPTION_RECOGNITION_INTERVAL", validateEnvPositiveFloat},
		{"recognition.backend", "LIVECAPTION_RECOGNITION_BACKEND", validateEnvBackend},
		{"recognition.model", "LIVECAPTION_RECOGNITION_MODEL", nil},
		{"recognition.baseurl", "LIVECAPTION_RECOGNITION_BASEURL", validateEnvURL},
		{"recognition.apikey", "OPENAI_API_KEY", nil},
		{"recognition.language", "LIVECAPTION_RECOGNITION_LANGUAGE", nil},

		{"segment.minduration", "LIVECAPTION_SEGMENT_MINDURATION", validateEnvDuration},

		{"translation.target", "LIVECAPTION_TRANSLATION_TARGET", nil},
		{"translation.apikey", "GOOGLE_TRANSLATE_API_KEY", nil},

		{"archive.path", "LIVECAPTION_ARCHIVE_PATH", nil},
		{"output.transcript.path", "LIVECAPTION_TRANSCRIPT_PATH", nil},

		{"mqtt.broker", "LIVECAPTION_MQTT_BROKER", validateEnvURL},
		{"mqtt.username", "LIVECAPTION_MQTT_USERNAME", nil},
		{"mqtt.password", "LIVECAPTION_MQTT_PASSWORD", nil},

		{"sentry.dsn", "LIVECAPTION_SENTRY_DSN", validateEnvURL},
	}
}

// bindEnvVars binds every environment variable and validates set values.
// Binding always happens; invalid values are reported together.
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPositiveFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if f <= 0 {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func validateEnvDuration(value string) error {
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("must be a duration such as 15s")
	}
	return nil
}

func validateEnvBackend(value string) error {
	switch value {
	case BackendOpenAI, BackendWhisperServer:
		return nil
	default:
		return fmt.Errorf("must be %q or %q", BackendOpenAI, BackendWhisperServer)
	}
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}
