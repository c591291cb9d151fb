// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers the default value of every configuration key.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("audio.source", "")
	viper.SetDefault("audio.samplerate", SampleRate)
	viper.SetDefault("audio.periodframes", PeriodFrames)

	viper.SetDefault("recognition.interval", 0.4)
	viper.SetDefault("recognition.backend", BackendOpenAI)
	viper.SetDefault("recognition.model", "whisper-1")
	viper.SetDefault("recognition.baseurl", "")
	viper.SetDefault("recognition.apikey", "")
	viper.SetDefault("recognition.language", "en")
	viper.SetDefault("recognition.temperature", 0.0)
	viper.SetDefault("recognition.timeout", 30*time.Second)
	viper.SetDefault("recognition.stripannotations", true)

	viper.SetDefault("segment.minduration", 15*time.Second)

	viper.SetDefault("translation.target", "")
	viper.SetDefault("translation.apikey", "")
	viper.SetDefault("translation.endpoint", GoogleTranslateEndpoint)
	viper.SetDefault("translation.timeout", 10*time.Second)
	viper.SetDefault("translation.cachettl", time.Hour)
	viper.SetDefault("translation.ratelimit", 5.0)
	viper.SetDefault("translation.format", "text")

	viper.SetDefault("archive.enabled", true)
	viper.SetDefault("archive.path", "audio.wav")
	viper.SetDefault("archive.syncinterval", 20*time.Second)

	viper.SetDefault("output.transcript.path", "temp.txt")
	viper.SetDefault("output.clearscreen", true)
	viper.SetDefault("output.sqlite.enabled", false)
	viper.SetDefault("output.sqlite.path", "livecaption.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
	viper.SetDefault("output.mysql.database", "livecaption")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "livecaption/utterances")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/livecaption.log")
	viper.SetDefault("logging.file_output.level", "debug")
}
