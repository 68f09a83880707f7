// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tracelane/config.yaml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			Timeout:        60 * time.Second,
			MaxUploadBytes: 512 << 20,
		},
		Database: DatabaseConfig{
			Path:      "/data/tracelane.duckdb",
			MaxMemory: "2GB",
			Threads:   0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Tasks: TasksConfig{
			SweepInterval: 2 * time.Minute,
			Retention:     5 * time.Minute,
			StuckTimeout:  30 * time.Minute,
		},
		Ingest: IngestConfig{
			BatchSize:             500,
			RowErrorLimit:         50,
			UploadDir:             "/data/uploads",
			TempDir:               os.TempDir(),
			DefaultDatetimeFormat: "DD/MM/YYYY HH:mm:ss",
		},
		Correlation: CorrelationConfig{
			CrossSourceMaxPlates:    5000,
			ShadowDefaultWindow:     10,
			ShadowDefaultSeparation: 5,
			ShadowCacheTTL:          2 * time.Hour,
			CacheBackend:            "memory",
			CachePath:               "/data/cache",
		},
	}
}

// Default returns the built-in defaults without reading any file or env var.
func Default() *Config {
	return defaultConfig()
}

// Load builds the configuration from three layers:
//  1. built-in defaults
//  2. an optional YAML file (CONFIG_PATH, then DefaultConfigPaths)
//  3. environment variables listed in envMappings
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields splits comma-separated env values into slices.
// Values already loaded as lists from YAML are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"http_host":                 "server.host",
	"http_port":                 "server.port",
	"http_timeout":              "server.timeout",
	"max_upload_bytes":          "server.max_upload_bytes",
	"duckdb_path":               "database.path",
	"duckdb_max_memory":         "database.max_memory",
	"duckdb_threads":            "database.threads",
	"duckdb_skip_indexes":       "database.skip_indexes",
	"log_level":                 "logging.level",
	"log_format":                "logging.format",
	"log_caller":                "logging.caller",
	"cors_origins":              "security.cors_origins",
	"rate_limit_requests":       "security.rate_limit_reqs",
	"rate_limit_window":         "security.rate_limit_window",
	"disable_rate_limit":        "security.rate_limit_disabled",
	"task_sweep_interval":       "tasks.sweep_interval",
	"task_retention":            "tasks.retention",
	"task_stuck_timeout":        "tasks.stuck_timeout",
	"ingest_batch_size":         "ingest.batch_size",
	"ingest_row_error_limit":    "ingest.row_error_limit",
	"upload_dir":                "ingest.upload_dir",
	"ingest_temp_dir":           "ingest.temp_dir",
	"ingest_datetime_format":    "ingest.default_datetime_format",
	"cross_source_max_plates":   "correlation.cross_source_max_plates",
	"shadow_default_window":     "correlation.shadow_default_window",
	"shadow_default_separation": "correlation.shadow_default_separation",
	"shadow_cache_ttl":          "correlation.shadow_cache_ttl",
	"cache_backend":             "correlation.cache_backend",
	"cache_path":                "correlation.cache_path",
}

// envTransformFunc maps known environment variables to koanf paths.
// Unknown variables map to "" and are ignored.
//
//   - HTTP_PORT -> server.port
//   - DUCKDB_PATH -> database.path
//   - SHADOW_CACHE_TTL -> correlation.shadow_cache_ttl
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
