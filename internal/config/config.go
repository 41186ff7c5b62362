// Package config loads the daemon's yaml configuration, adapted from
// the teacher's internal/config.go: same env-substitution-then-yaml
// pipeline, restructured around the cistern domain (serial transport,
// NV persistence backend, tunable fault-detection windows) instead of
// the teacher's engine/buffer/auth sections.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the daemon's full configuration.
type Config struct {
	Serial        SerialConfig        `yaml:"serial"`
	Persistence   PersistenceConfig   `yaml:"persistence"`
	Tunables      TunablesConfig      `yaml:"tunables"`
	Observability ObservabilityConfig `yaml:"observability"`
	LogLevel      string              `yaml:"log_level"`
}

// SerialConfig describes the host-facing UART link, or "-" for the
// stdin/stdout loopback test-harness mode.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// PersistenceConfig selects and locates the NV byte-store backend.
type PersistenceConfig struct {
	Backend string `yaml:"backend"` // "memory", "file", or "sqlite"
	Path    string `yaml:"path"`
}

// TunablesConfig holds per-tank fault-detection window values (spec
// §4.4) decoded from the config file. cmd/cisternd does not apply them:
// every tank runs with the watertank package defaults.
type TunablesConfig struct {
	ChangingIntervalMS           uint32 `yaml:"changing_interval_ms"`
	MaxTimeNotFillingMS          uint32 `yaml:"max_time_not_filling_ms"`
	FillingCallsProtectionTimeMS uint32 `yaml:"filling_calls_protection_time_ms"`
}

// ObservabilityConfig controls the local-only Prometheus listener and
// in-process tracer (§4.12) — never a networked exporter.
type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration a freshly imaged controller boots
// with absent a config file.
func Default() *Config {
	return &Config{
		Serial:      SerialConfig{Port: "-", Baud: 9600},
		Persistence: PersistenceConfig{Backend: "memory"},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9100",
			ServiceName: "cisternd",
		},
		LogLevel: "info",
	}
}

// Load reads and decodes path, substituting ${VAR} / ${VAR:-default}
// environment references before parsing, same as the teacher's
// LoadConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	content := SubstituteEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg back to path as yaml.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

var envRegex = regexp.MustCompile(`\${(\w+)(?::-([^}]*))?}`)

// SubstituteEnvVars replaces ${VAR} / ${VAR:-default} references in
// input with the environment value (or the default, or the literal
// reference if neither is available).
func SubstituteEnvVars(input string) string {
	return envRegex.ReplaceAllStringFunc(input, func(m string) string {
		matches := envRegex.FindStringSubmatch(m)
		if len(matches) < 2 {
			return m
		}
		envVar := matches[1]
		if val, ok := os.LookupEnv(envVar); ok {
			return val
		}
		if len(matches) > 2 && strings.Contains(m, ":-") {
			return matches[2]
		}
		return m
	})
}
