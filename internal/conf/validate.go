// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/text/language"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		func(s *Settings) error { return validateAudioSettings(&s.Audio) },
		func(s *Settings) error { return validateRecognitionSettings(&s.Recognition) },
		func(s *Settings) error { return validateSegmentSettings(&s.Segment) },
		func(s *Settings) error { return validateTranslationSettings(&s.Translation) },
		func(s *Settings) error { return validateArchiveSettings(&s.Archive) },
		func(s *Settings) error { return validateOutputSettings(&s.Output) },
		func(s *Settings) error { return validateMQTTSettings(&s.MQTT) },
		func(s *Settings) error { return validateTelemetrySettings(&s.Telemetry) },
	}

	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAudioSettings(settings *AudioSettings) error {
	if settings.SampleRate <= 0 {
		return fmt.Errorf("audio.samplerate must be positive, got %d", settings.SampleRate)
	}
	if settings.PeriodFrames < 0 {
		return fmt.Errorf("audio.periodframes must not be negative, got %d", settings.PeriodFrames)
	}
	return nil
}

func validateRecognitionSettings(settings *RecognitionSettings) error {
	var errs []string

	if settings.Interval <= 0 {
		errs = append(errs, fmt.Sprintf("recognition.interval must be positive, got %v", settings.Interval))
	}

	switch settings.Backend {
	case BackendOpenAI:
	case BackendWhisperServer:
		if settings.BaseURL == "" {
			errs = append(errs, "recognition.baseurl is required for the whisper-server backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("recognition.backend %q is not supported", settings.Backend))
	}

	if settings.Temperature < 0 || settings.Temperature > 1 {
		errs = append(errs, fmt.Sprintf("recognition.temperature must be between 0 and 1, got %v", settings.Temperature))
	}

	if settings.Language != "" {
		if _, err := language.Parse(settings.Language); err != nil {
			errs = append(errs, fmt.Sprintf("recognition.language %q is not a valid language tag", settings.Language))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSegmentSettings(settings *SegmentSettings) error {
	if settings.MinDuration < 0 {
		return fmt.Errorf("segment.minduration must not be negative, got %v", settings.MinDuration)
	}
	return nil
}

func validateTranslationSettings(settings *TranslationSettings) error {
	if settings.Target == "" {
		return nil
	}

	if _, err := language.Parse(settings.Target); err != nil {
		return fmt.Errorf("translation.target %q is not a valid language tag", settings.Target)
	}
	if settings.APIKey == "" {
		return fmt.Errorf("translation.apikey is required when translation.target is set")
	}
	if settings.RateLimit < 0 {
		return fmt.Errorf("translation.ratelimit must not be negative")
	}
	switch settings.Format {
	case "", "text", "html":
	default:
		return fmt.Errorf("translation.format must be text or html, got %q", settings.Format)
	}
	return nil
}

func validateArchiveSettings(settings *ArchiveSettings) error {
	if settings.Enabled && settings.Path == "" {
		return fmt.Errorf("archive.path is required when archiving is enabled")
	}
	if settings.SyncInterval < 0 {
		return fmt.Errorf("archive.syncinterval must not be negative")
	}
	return nil
}

func validateOutputSettings(settings *OutputSettings) error {
	if settings.SQLite.Enabled && settings.MySQL.Enabled {
		return fmt.Errorf("only one of output.sqlite and output.mysql can be enabled")
	}
	if settings.SQLite.Enabled && settings.SQLite.Path == "" {
		return fmt.Errorf("output.sqlite.path is required when sqlite output is enabled")
	}
	if settings.MySQL.Enabled && (settings.MySQL.Host == "" || settings.MySQL.Database == "") {
		return fmt.Errorf("output.mysql.host and output.mysql.database are required when mysql output is enabled")
	}
	return nil
}

func validateMQTTSettings(settings *MQTTSettings) error {
	if !settings.Enabled {
		return nil
	}
	if settings.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if settings.Topic == "" {
		return fmt.Errorf("mqtt.topic is required when mqtt is enabled")
	}
	return nil
}

func validateTelemetrySettings(settings *TelemetrySettings) error {
	if !settings.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return fmt.Errorf("telemetry.listen %q is not a host:port address", settings.Listen)
	}
	return nil
}

// Redacted returns a copy of settings with credentials blanked, for display.
func (s *Settings) Redacted() *Settings {
	c := *s
	const mask = "********"
	for _, secret := range []*string{
		&c.Recognition.APIKey, &c.Translation.APIKey,
		&c.Output.MySQL.Password, &c.MQTT.Password, &c.Sentry.DSN,
	} {
		if *secret != "" {
			*secret = mask
		}
	}
	return &c
}
