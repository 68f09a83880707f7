// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

// Package config loads Tracelane configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Logging     LoggingConfig     `koanf:"logging"`
	Security    SecurityConfig    `koanf:"security"`
	Tasks       TasksConfig       `koanf:"tasks"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Correlation CorrelationConfig `koanf:"correlation"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	Timeout        time.Duration `koanf:"timeout"`
	MaxUploadBytes int64         `koanf:"max_upload_bytes"` // multipart upload ceiling
}

// DatabaseConfig holds DuckDB settings
type DatabaseConfig struct {
	Path        string `koanf:"path"`
	MaxMemory   string `koanf:"max_memory"`
	Threads     int    `koanf:"threads"`      // 0 = runtime.NumCPU()
	SkipIndexes bool   `koanf:"skip_indexes"` // fast test setup
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SecurityConfig holds CORS and rate limiting settings.
// Authentication is handled in front of this service.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// TasksConfig controls the background task registry sweep.
type TasksConfig struct {
	SweepInterval time.Duration `koanf:"sweep_interval"`
	Retention     time.Duration `koanf:"retention"`     // how long terminal tasks stay pollable
	StuckTimeout  time.Duration `koanf:"stuck_timeout"` // age after which unfinished tasks are failed
}

// IngestConfig controls the ingestion pipeline.
type IngestConfig struct {
	BatchSize             int    `koanf:"batch_size"`
	RowErrorLimit         int    `koanf:"row_error_limit"`
	UploadDir             string `koanf:"upload_dir"`
	TempDir               string `koanf:"temp_dir"`
	DefaultDatetimeFormat string `koanf:"default_datetime_format"`
}

// CorrelationConfig controls the correlation matchers and the shadow result cache.
type CorrelationConfig struct {
	CrossSourceMaxPlates    int           `koanf:"cross_source_max_plates"`
	ShadowDefaultWindow     int           `koanf:"shadow_default_window"`     // minutes
	ShadowDefaultSeparation int           `koanf:"shadow_default_separation"` // minutes
	ShadowCacheTTL          time.Duration `koanf:"shadow_cache_ttl"`
	CacheBackend            string        `koanf:"cache_backend"` // memory or badger
	CachePath               string        `koanf:"cache_path"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
