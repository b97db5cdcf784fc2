package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

type jsoncConfig struct {
	Locales    *jsoncStringList `json:"locales"`
	Recognizer *jsoncRecognizer `json:"recognizer"`
	Audio      *jsoncAudio      `json:"audio"`
	Backoff    *jsoncBackoff    `json:"backoff"`
	Sinks      *jsoncSinks      `json:"sinks"`
	Offline    *jsoncOffline    `json:"offline"`
	Metrics    *jsoncMetrics    `json:"metrics"`
	Log        *jsoncLog        `json:"log"`
}

type jsoncRecognizer struct {
	Backend              *string `json:"backend"`
	Endpoint             *string `json:"endpoint"`
	CredentialsFile      *string `json:"credentials_file"`
	Model                *string `json:"model"`
	LanguageDetection    *bool   `json:"language_detection"`
	PartialResults       *bool   `json:"partial_results"`
	AutomaticPunctuation *bool   `json:"automatic_punctuation"`
	SpeechStartTimeoutMS *int    `json:"speech_start_timeout_ms"`
	SpeechEndTimeoutMS   *int    `json:"speech_end_timeout_ms"`
	OpenTimeoutMS        *int    `json:"open_timeout_ms"`
	MockErrorEvery       *int    `json:"mock_error_every"`
}

type jsoncAudio struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncBackoff struct {
	NoSpeechMS           *int     `json:"no_speech_ms"`
	ServerDisconnectedMS *int     `json:"server_disconnected_ms"`
	OtherMS              *int     `json:"other_ms"`
	RecreateMS           *int     `json:"recreate_ms"`
	RecreateMaxAttempts  *int     `json:"recreate_max_attempts"`
	RecreateMultiplier   *float64 `json:"recreate_multiplier"`
}

type jsoncSinks struct {
	Stdout    *bool       `json:"stdout"`
	CommitCmd *string     `json:"commit_cmd"`
	Kafka     *jsoncKafka `json:"kafka"`
	NATS      *jsoncNATS  `json:"nats"`
}

type jsoncKafka struct {
	Brokers            *jsoncStringList `json:"brokers"`
	TopicPartial       *string          `json:"topic_partial"`
	TopicFinal         *string          `json:"topic_final"`
	TopicEvents        *string          `json:"topic_events"`
	IncludeSoundLevels *bool            `json:"include_sound_levels"`
}

type jsoncNATS struct {
	URL     *string `json:"url"`
	Subject *string `json:"subject"`
}

type jsoncOffline struct {
	Server    *string `json:"server"`
	Workers   *int    `json:"workers"`
	TimeoutMS *int    `json:"timeout_ms"`
	Language  *string `json:"language"`
}

type jsoncMetrics struct {
	Listen *string `json:"listen"`
}

type jsoncLog struct {
	Level      *string `json:"level"`
	MaxSizeMB  *int    `json:"max_size_mb"`
	MaxBackups *int    `json:"max_backups"`
	MaxAgeDays *int    `json:"max_age_days"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = trimList(list)
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = trimList(strings.Split(single, ","))
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, part := range in {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if payload.Locales != nil {
		cfg.Locales = append([]string(nil), (*payload.Locales)...)
	}

	if r := payload.Recognizer; r != nil {
		if r.Backend != nil {
			cfg.Recognizer.Backend = strings.ToLower(strings.TrimSpace(*r.Backend))
		}
		setString(&cfg.Recognizer.Endpoint, r.Endpoint)
		setString(&cfg.Recognizer.CredentialsFile, r.CredentialsFile)
		setString(&cfg.Recognizer.Model, r.Model)
		setBool(&cfg.Recognizer.LanguageDetection, r.LanguageDetection)
		setBool(&cfg.Recognizer.PartialResults, r.PartialResults)
		setBool(&cfg.Recognizer.AutomaticPunctuation, r.AutomaticPunctuation)
		setInt(&cfg.Recognizer.SpeechStartTimeoutMS, r.SpeechStartTimeoutMS)
		setInt(&cfg.Recognizer.SpeechEndTimeoutMS, r.SpeechEndTimeoutMS)
		setInt(&cfg.Recognizer.OpenTimeoutMS, r.OpenTimeoutMS)
		setInt(&cfg.Recognizer.MockErrorEvery, r.MockErrorEvery)
	}

	if a := payload.Audio; a != nil {
		setString(&cfg.Audio.Input, a.Input)
		setString(&cfg.Audio.Fallback, a.Fallback)
	}

	if b := payload.Backoff; b != nil {
		setInt(&cfg.Backoff.NoSpeechMS, b.NoSpeechMS)
		setInt(&cfg.Backoff.ServerDisconnectedMS, b.ServerDisconnectedMS)
		setInt(&cfg.Backoff.OtherMS, b.OtherMS)
		setInt(&cfg.Backoff.RecreateMS, b.RecreateMS)
		setInt(&cfg.Backoff.RecreateMaxAttempts, b.RecreateMaxAttempts)
		if b.RecreateMultiplier != nil {
			cfg.Backoff.RecreateMultiplier = *b.RecreateMultiplier
		}
	}

	if s := payload.Sinks; s != nil {
		setBool(&cfg.Sinks.Stdout, s.Stdout)
		if s.CommitCmd != nil {
			raw := *s.CommitCmd
			argv, err := parseArgv(raw)
			if err != nil {
				return fmt.Errorf("invalid sinks.commit_cmd: %w", err)
			}
			cfg.Sinks.CommitCmd = CommandConfig{Raw: raw, Argv: argv}
		}
		if k := s.Kafka; k != nil {
			if k.Brokers != nil {
				cfg.Sinks.Kafka.Brokers = append([]string(nil), (*k.Brokers)...)
			}
			setString(&cfg.Sinks.Kafka.TopicPartial, k.TopicPartial)
			setString(&cfg.Sinks.Kafka.TopicFinal, k.TopicFinal)
			setString(&cfg.Sinks.Kafka.TopicEvents, k.TopicEvents)
			setBool(&cfg.Sinks.Kafka.IncludeSoundLevels, k.IncludeSoundLevels)
		}
		if n := s.NATS; n != nil {
			setString(&cfg.Sinks.NATS.URL, n.URL)
			setString(&cfg.Sinks.NATS.Subject, n.Subject)
		}
	}

	if o := payload.Offline; o != nil {
		setString(&cfg.Offline.Server, o.Server)
		setInt(&cfg.Offline.Workers, o.Workers)
		setInt(&cfg.Offline.TimeoutMS, o.TimeoutMS)
		setString(&cfg.Offline.Language, o.Language)
	}

	if m := payload.Metrics; m != nil {
		setString(&cfg.Metrics.Listen, m.Listen)
	}

	if l := payload.Log; l != nil {
		if l.Level != nil {
			cfg.Log.Level = strings.ToLower(strings.TrimSpace(*l.Level))
		}
		setInt(&cfg.Log.MaxSizeMB, l.MaxSizeMB)
		setInt(&cfg.Log.MaxBackups, l.MaxBackups)
		setInt(&cfg.Log.MaxAgeDays, l.MaxAgeDays)
	}

	return nil
}
