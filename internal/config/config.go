// Package config provides the configuration schema, loader, and provider
// registry for the meetbridge transcription mediator.
package config

// Config is the root configuration structure for meetbridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Audio      AudioConfig      `yaml:"audio"`
	Recording  RecordingConfig  `yaml:"recording"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Memory     MemoryConfig     `yaml:"memory"`
}

// ServerMode selects how the session orchestrator is wired.
type ServerMode string

const (
	ModeLocal  ServerMode = "local"
	ModeRemote ServerMode = "remote"
)

// IsValid reports whether m is one of the recognised server modes.
func (m ServerMode) IsValid() bool {
	switch m {
	case ModeLocal, ModeRemote:
		return true
	}
	return false
}

// LogLevel controls slog verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, "":
		return true
	}
	return false
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// Host is the interface the audio ingress server binds to.
	Host string `yaml:"host"`

	// Port is the TCP port the audio ingress server listens on.
	Port int `yaml:"port"`

	// WebhookAddr is the listen address for the webhook intake server
	// (e.g., ":4050"). It is served separately from the ingress port so the
	// two surfaces can be scaled or firewalled independently.
	WebhookAddr string `yaml:"webhook_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`

	// Mode selects how the session's startup gate behaves: "local" forwards
	// audio as soon as the first ingress connection registers, "remote"
	// withholds it until a bot.status_change webhook reports
	// in_call_not_recording.
	Mode ServerMode `yaml:"mode"`
}

// ProvidersConfig declares which STT provider implementation to use.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
}

// ProviderEntry is the configuration block for the configured STT provider.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation: "deepgram",
	// "google", "azure", or "whisper".
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API. Unused by
	// the whisper provider.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-3",
	// or a local path to a whisper.cpp model file).
	Model string `yaml:"model"`

	// Region is required by the azure provider and optional for google.
	Region string `yaml:"region"`

	// Language is the BCP-47 recognition language. Defaults to the
	// provider's built-in default when empty.
	Language string `yaml:"language"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// AudioConfig describes the PCM format expected from the bot's audio ingress
// connection.
type AudioConfig struct {
	// SampleRateHz is the PCM sample rate. Must match what the bot sends.
	SampleRateHz int `yaml:"sample_rate_hz"`

	// Channels is the PCM channel count. 1 for mono.
	Channels int `yaml:"channels"`

	// BitDepth is the PCM sample bit depth. Only 16 is currently supported.
	BitDepth int `yaml:"bit_depth"`
}

// RecordingConfig controls the optional raw-audio WAV writer.
type RecordingConfig struct {
	// Enabled turns on writing a WAV file per session.
	Enabled bool `yaml:"enabled"`

	// Dir is the directory WAV files are written to.
	Dir string `yaml:"dir"`
}

// TranscriptConfig controls the session journal writers.
type TranscriptConfig struct {
	// LoggingEnabled turns on writing transcript journal artifacts per
	// session (structured JSON, plain-text finals, raw stream log, summary).
	LoggingEnabled bool `yaml:"logging_enabled"`

	// Dir is the directory session journals are written to.
	Dir string `yaml:"dir"`
}

// MemoryConfig holds settings for the optional Postgres session index.
type MemoryConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the optional
	// session index. Leave empty to disable it.
	PostgresDSN string `yaml:"postgres_dsn"`
}
