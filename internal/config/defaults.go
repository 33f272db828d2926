package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:          "info",
			DataDir:           "~/.phasebot",
			MaxConcurrentRuns: 5,
		},
		Actor: ActorConfig{
			ID:          "phasebot",
			Platform:    "console",
			DisplayName: "phasebot",
		},
		Providers: map[string]ProviderConfig{
			"ollama": {
				Enabled:      true,
				APIBase:      "http://localhost:11434",
				DefaultModel: "llama3.1:8b",
			},
		},
		Models: ModelsConfig{
			Provider:         "ollama",
			VisionModel:      "llava",
			NotesTemperature: 0.2,
			RatePerMinute:    30,
			Burst:            5,
		},
		Store: StoreConfig{
			DBPath:          "~/.phasebot/phasebot.db",
			CacheTTLSeconds: 600,
		},
		Lexicon: LexiconConfig{
			BundlePath:      "~/.phasebot/lexicon.yaml",
			Watch:           false,
			IncludeInPrompt: false,
		},
		Attachments: AttachmentsConfig{
			MaxBytes:       20 << 20,
			TimeoutSeconds: 30,
			OCR: OCRConfig{
				Enabled: false,
				Command: []string{"tesseract", "stdin", "stdout"},
			},
		},
		Notes: NotesConfig{
			Enabled:     true,
			Workers:     2,
			QueueSize:   64,
			MaxAttempts: 3,
		},
		History: HistoryConfig{
			MaxReplyDepth: 50,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Addr:     "127.0.0.1:9464",
			Endpoint: "/metrics",
		},
	}
}
