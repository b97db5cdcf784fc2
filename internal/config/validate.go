package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if len(cfg.Locales) == 0 {
		warnings = append(warnings, Warning{Message: "no default locales configured; start and toggle need --locale"})
	}
	for _, locale := range cfg.Locales {
		if strings.TrimSpace(locale) == "" {
			return nil, errors.New("locales must not contain empty entries")
		}
	}

	switch cfg.Recognizer.Backend {
	case "gcloud", "mock":
	default:
		return nil, errors.New("recognizer.backend must be one of: gcloud, mock")
	}
	if cfg.Recognizer.SpeechStartTimeoutMS < 0 || cfg.Recognizer.SpeechEndTimeoutMS < 0 {
		return nil, errors.New("recognizer speech timeouts must be >= 0")
	}
	if cfg.Recognizer.OpenTimeoutMS <= 0 {
		return nil, errors.New("recognizer.open_timeout_ms must be > 0")
	}
	if cfg.Recognizer.MockErrorEvery < 0 {
		return nil, errors.New("recognizer.mock_error_every must be >= 0")
	}
	if cfg.Recognizer.Backend == "gcloud" && cfg.Recognizer.CredentialsFile == "" {
		warnings = append(warnings, Warning{Message: "recognizer.credentials_file unset; using application default credentials"})
	}

	b := cfg.Backoff
	if b.NoSpeechMS <= 0 || b.ServerDisconnectedMS <= 0 || b.OtherMS <= 0 {
		return nil, errors.New("backoff delays must be > 0")
	}
	if b.RecreateMS <= 0 {
		return nil, errors.New("backoff.recreate_ms must be > 0")
	}
	if b.RecreateMaxAttempts < 0 {
		return nil, errors.New("backoff.recreate_max_attempts must be >= 0")
	}
	if b.RecreateMultiplier < 1 {
		return nil, errors.New("backoff.recreate_multiplier must be >= 1")
	}

	if cfg.Sinks.CommitCmd.Raw != "" && len(cfg.Sinks.CommitCmd.Argv) == 0 {
		return nil, errors.New("sinks.commit_cmd is configured but empty")
	}
	if k := cfg.Sinks.Kafka; len(k.Brokers) > 0 && k.TopicPartial == "" && k.TopicFinal == "" && k.TopicEvents == "" {
		return nil, errors.New("sinks.kafka needs at least one topic when brokers are set")
	}
	if n := cfg.Sinks.NATS; n.URL != "" && n.Subject == "" {
		return nil, errors.New("sinks.nats.subject must not be empty when sinks.nats.url is set")
	}

	if cfg.Offline.Workers <= 0 {
		return nil, errors.New("offline.workers must be > 0")
	}
	if cfg.Offline.TimeoutMS < 0 {
		return nil, errors.New("offline.timeout_ms must be >= 0")
	}
	if s := cfg.Offline.Server; s != "" && !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return nil, fmt.Errorf("offline.server %q must be an http(s) URL", s)
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return nil, errors.New("log.level must be one of: debug, info, warn, error")
	}
	if cfg.Log.MaxSizeMB < 0 || cfg.Log.MaxBackups < 0 || cfg.Log.MaxAgeDays < 0 {
		return nil, errors.New("log rotation limits must be >= 0")
	}

	return warnings, nil
}
