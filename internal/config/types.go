// Package config resolves, parses, validates, and defaults canto configuration.
package config

// Config is the fully materialized runtime configuration used by canto.
type Config struct {
	Locales    []string
	Recognizer RecognizerConfig
	Audio      AudioConfig
	Backoff    BackoffConfig
	Sinks      SinksConfig
	Offline    OfflineConfig
	Metrics    MetricsConfig
	Log        LogConfig
}

// RecognizerConfig selects the streaming backend and per-attempt options.
type RecognizerConfig struct {
	Backend              string
	Endpoint             string
	CredentialsFile      string
	Model                string
	LanguageDetection    bool
	PartialResults       bool
	AutomaticPunctuation bool
	SpeechStartTimeoutMS int
	SpeechEndTimeoutMS   int
	OpenTimeoutMS        int
	MockErrorEvery       int
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// BackoffConfig holds restart delays per error class and the recreate policy.
type BackoffConfig struct {
	NoSpeechMS           int
	ServerDisconnectedMS int
	OtherMS              int
	RecreateMS           int
	RecreateMaxAttempts  int
	RecreateMultiplier   float64
}

// SinksConfig lists where session events are delivered.
type SinksConfig struct {
	Stdout    bool
	CommitCmd CommandConfig
	Kafka     KafkaConfig
	NATS      NATSConfig
}

type KafkaConfig struct {
	Brokers            []string
	TopicPartial       string
	TopicFinal         string
	TopicEvents        string
	IncludeSoundLevels bool
}

type NATSConfig struct {
	URL     string
	Subject string
}

// OfflineConfig points the offline transcription engine at a whisper.cpp server.
type OfflineConfig struct {
	Server    string
	Workers   int
	TimeoutMS int
	Language  string
}

type MetricsConfig struct {
	Listen string
}

// LogConfig controls level and rotation of the JSONL log file.
type LogConfig struct {
	Level      string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
