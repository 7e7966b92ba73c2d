// Package config loads broker settings from a YAML file. Argument parsing
// is out of scope for the broker, so a config file path is the only input;
// Load overlays the file onto Default(), and callers with no file use
// Default() alone.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the broker reads at startup. Fields default to
// the values Default returns when left unset in a loaded YAML file.
type Config struct {
	// AppAddr is the listen address for application registrations.
	AppAddr string `yaml:"app_addr"`
	// ProtocolAddr is the listen address for protocol client connections.
	ProtocolAddr string `yaml:"protocol_addr"`
	// EventAddr is the listen address for event subscribers.
	EventAddr string `yaml:"event_addr"`
	// RetryLimit bounds the relay loop's bounded-retry steps.
	RetryLimit int `yaml:"retry_limit"`
	// LogFormat names the structured log encoding ("json" or "text"). It is
	// loaded and defaulted, but cmd/amby does not apply it to the logger.
	LogFormat string `yaml:"log_format"`
	// LogDebug names whether debug-level logging is wanted. It is loaded,
	// but cmd/amby does not apply it to the logger.
	LogDebug bool `yaml:"log_debug"`
	// TracingEnabled makes cmd/amby use the OpenTelemetry tracer (backed by
	// the global TracerProvider) instead of the no-op tracer. No exporter is
	// configured here.
	TracingEnabled bool `yaml:"tracing_enabled"`
}

// Default returns the broker's built-in configuration, used when no config
// file is supplied or a file omits a field.
func Default() Config {
	return Config{
		AppAddr:        "127.0.0.1:4000",
		ProtocolAddr:   "127.0.0.1:4001",
		EventAddr:      "127.0.0.1:4002",
		RetryLimit:     3,
		LogFormat:      "json",
		LogDebug:       false,
		TracingEnabled: false,
	}
}

// Load reads a YAML file at path and overlays it onto Default(). A missing
// RetryLimit, address, or LogFormat in the file falls back to its default
// rather than the YAML zero value, mirroring the defaulting style the
// broker's grounding repo applies in its own config constructors.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var override Config
	if err := yaml.Unmarshal(b, &override); err != nil {
		return Config{}, err
	}

	if override.AppAddr != "" {
		cfg.AppAddr = override.AppAddr
	}
	if override.ProtocolAddr != "" {
		cfg.ProtocolAddr = override.ProtocolAddr
	}
	if override.EventAddr != "" {
		cfg.EventAddr = override.EventAddr
	}
	if override.RetryLimit > 0 {
		cfg.RetryLimit = override.RetryLimit
	}
	if override.LogFormat != "" {
		cfg.LogFormat = override.LogFormat
	}
	cfg.LogDebug = override.LogDebug
	cfg.TracingEnabled = override.TracingEnabled

	return cfg, nil
}
