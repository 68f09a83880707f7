// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package config

import (
	"fmt"
	"strings"
	"time"
)

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{
	"json": true, "console": true,
}

var validCacheBackends = map[string]bool{
	"memory": true, "badger": true,
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateTasks(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateCorrelation(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
	}
	if c.Security.RateLimitWindow < time.Second {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s")
	}
	return nil
}

func (c *Config) validateTasks() error {
	t := c.Tasks
	if t.SweepInterval <= 0 || t.Retention <= 0 || t.StuckTimeout <= 0 {
		return fmt.Errorf("task sweep interval, retention and stuck timeout must be positive")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("INGEST_BATCH_SIZE must be at least 1")
	}
	if c.Ingest.RowErrorLimit < 0 {
		return fmt.Errorf("INGEST_ROW_ERROR_LIMIT must not be negative")
	}
	if strings.TrimSpace(c.Ingest.UploadDir) == "" {
		return fmt.Errorf("UPLOAD_DIR is required")
	}
	return nil
}

func (c *Config) validateCorrelation() error {
	cc := c.Correlation
	if cc.CrossSourceMaxPlates < 1 {
		return fmt.Errorf("CROSS_SOURCE_MAX_PLATES must be at least 1")
	}
	if cc.ShadowDefaultWindow < 1 || cc.ShadowDefaultSeparation < 1 {
		return fmt.Errorf("SHADOW_DEFAULT_WINDOW and SHADOW_DEFAULT_SEPARATION must be at least 1 minute")
	}
	if !validCacheBackends[cc.CacheBackend] {
		return fmt.Errorf("CACHE_BACKEND must be one of: memory, badger")
	}
	if cc.CacheBackend == "badger" && strings.TrimSpace(cc.CachePath) == "" {
		return fmt.Errorf("CACHE_PATH is required when CACHE_BACKEND=badger")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// ShouldWarnAboutCORS reports a wildcard CORS origin, which also lets any
// site open task streams.
func (c *Config) ShouldWarnAboutCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}
