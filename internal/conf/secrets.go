package conf

import (
	"fmt"

	"github.com/tphakala/livecaption/internal/secrets"
)

// resolveSecrets replaces ${VAR} and file: references in credential fields
// with the values they point to.
func resolveSecrets(settings *Settings) error {
	fields := []struct {
		key   string
		value *string
	}{
		{"recognition.apikey", &settings.Recognition.APIKey},
		{"translation.apikey", &settings.Translation.APIKey},
		{"output.mysql.password", &settings.Output.MySQL.Password},
		{"mqtt.password", &settings.MQTT.Password},
		{"sentry.dsn", &settings.Sentry.DSN},
	}

	for _, f := range fields {
		resolved, err := secrets.Resolve(*f.value)
		if err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
		*f.value = resolved
	}
	return nil
}
