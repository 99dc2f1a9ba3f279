package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the recognised STT provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"deepgram", "google", "azure", "whisper"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := defaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config populated with the mediator's defaults,
// which LoadFromReader decodes YAML values on top of.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     4040,
			LogLevel: LogLevelInfo,
			Mode:     ModeRemote,
		},
		Audio: AudioConfig{
			SampleRateHz: 16000,
			Channels:     1,
			BitDepth:     16,
		},
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Mode != "" && !cfg.Server.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("server.mode %q is invalid; valid values: local, remote", cfg.Server.Mode))
	}
	if cfg.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be a positive TCP port"))
	}

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, fmt.Errorf("providers.stt.name is required"))
	} else {
		validateProviderName(cfg.Providers.STT.Name)
		switch cfg.Providers.STT.Name {
		case "deepgram", "google":
			if cfg.Providers.STT.APIKey == "" {
				errs = append(errs, fmt.Errorf("providers.stt.api_key is required for provider %q", cfg.Providers.STT.Name))
			}
		case "azure":
			if cfg.Providers.STT.APIKey == "" {
				errs = append(errs, fmt.Errorf("providers.stt.api_key is required for provider %q", cfg.Providers.STT.Name))
			}
			if cfg.Providers.STT.Region == "" {
				errs = append(errs, fmt.Errorf("providers.stt.region is required for provider %q", cfg.Providers.STT.Name))
			}
		case "whisper":
			if cfg.Providers.STT.Model == "" {
				errs = append(errs, fmt.Errorf("providers.stt.model (path to a whisper.cpp model file) is required for provider %q", cfg.Providers.STT.Name))
			}
		}
	}

	if cfg.Audio.SampleRateHz <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate_hz must be positive"))
	}
	if cfg.Audio.Channels <= 0 {
		errs = append(errs, fmt.Errorf("audio.channels must be positive"))
	}
	if cfg.Audio.BitDepth != 16 {
		errs = append(errs, fmt.Errorf("audio.bit_depth %d is unsupported; only 16 is currently supported", cfg.Audio.BitDepth))
	}

	if cfg.Recording.Enabled && cfg.Recording.Dir == "" {
		errs = append(errs, fmt.Errorf("recording.dir is required when recording.enabled is true"))
	}
	if cfg.Transcript.LoggingEnabled && cfg.Transcript.Dir == "" {
		errs = append(errs, fmt.Errorf("transcript.dir is required when transcript.logging_enabled is true"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not found in
// [ValidProviderNames]. It never fails validation outright, since
// third-party adapters registered outside this package are still usable.
func validateProviderName(name string) {
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown STT provider name — may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}
