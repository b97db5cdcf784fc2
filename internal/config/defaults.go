package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Locales: []string{"en-US"},
		Recognizer: RecognizerConfig{
			Backend:              "gcloud",
			LanguageDetection:    true,
			PartialResults:       true,
			AutomaticPunctuation: true,
			OpenTimeoutMS:        5000,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Backoff: BackoffConfig{
			NoSpeechMS:           300,
			ServerDisconnectedMS: 1000,
			OtherMS:              500,
			RecreateMS:           1000,
			RecreateMultiplier:   1.0,
		},
		Sinks: SinksConfig{
			Kafka: KafkaConfig{
				TopicPartial: "canto.partial",
				TopicFinal:   "canto.final",
				TopicEvents:  "canto.events",
			},
			NATS: NATSConfig{Subject: "canto"},
		},
		Offline: OfflineConfig{
			Workers:   2,
			TimeoutMS: 120000,
			Language:  "auto",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}
