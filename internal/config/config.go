// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

// Package config loads and validates the Scrobblarr configuration from
// defaults, an optional YAML file and environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/scrobblarr/scrobblarr/internal/models"
)

// Config is the root configuration.
type Config struct {
	Trakt       TraktConfig          `koanf:"trakt"`
	MediaServer MediaServerConfig    `koanf:"media_server"`
	Profiles    []models.UserProfile `koanf:"profiles"`
	Sync        SyncConfig           `koanf:"sync"`
	Queue       QueueConfig          `koanf:"queue"`
	Server      ServerConfig         `koanf:"server"`
	Database    DatabaseConfig       `koanf:"database"`
	Logging     LoggingConfig        `koanf:"logging"`
}

// MediaServerConfig configures the host media-server API used for library
// enumeration and item lookup.
type MediaServerConfig struct {
	// BaseURL is the media server root, e.g. http://localhost:8096.
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// APIKey authenticates library queries.
	APIKey string `koanf:"api_key"`

	// Timeout bounds a single library query.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// TraktConfig configures the remote service client.
type TraktConfig struct {
	// BaseURL is the API root. Only overridden in tests.
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// MaxConcurrent is the size of the shared admission pool for
	// outbound calls. Bursts of host events queue on this pool instead
	// of opening unbounded simultaneous connections.
	MaxConcurrent int64 `koanf:"max_concurrent" validate:"gte=1"`

	// RatePerSecond and RateBurst pace outbound calls below the remote
	// service's documented limits. RatePerSecond <= 0 disables pacing.
	RatePerSecond float64 `koanf:"rate_per_second"`
	RateBurst     int     `koanf:"rate_burst"`
}

// SyncConfig configures the scheduled tasks and the progress tracker.
type SyncConfig struct {
	// LibrarySchedule is the cron expression for the full library push.
	LibrarySchedule string `koanf:"library_schedule" validate:"required"`

	// WatchedSchedule is the cron expression for the watched-state
	// reconciliation pass.
	WatchedSchedule string `koanf:"watched_schedule" validate:"required"`

	// PingInterval is the minimum gap between two "watching" pings for
	// the same playback session.
	PingInterval time.Duration `koanf:"ping_interval" validate:"gt=0"`
}

// QueueConfig configures the library-change batching queue.
type QueueConfig struct {
	// MaxBatchSize caps a per-user batch; reaching it flushes immediately.
	MaxBatchSize int `koanf:"max_batch_size" validate:"gte=1"`

	// FlushInterval is the quiet-period after which a non-empty batch is
	// flushed even when no further event arrives.
	FlushInterval time.Duration `koanf:"flush_interval" validate:"gt=0"`
}

// ServerConfig configures the embedded HTTP API.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// DatabaseConfig configures the play-state store.
type DatabaseConfig struct {
	// Path is the SQLite database file; ":memory:" for ephemeral use.
	Path string `koanf:"path" validate:"required"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Trakt: TraktConfig{
			BaseURL:       "https://api.trakt.tv",
			Timeout:       30 * time.Second,
			MaxConcurrent: 5,
			RatePerSecond: 2,
			RateBurst:     5,
		},
		MediaServer: MediaServerConfig{
			BaseURL: "http://localhost:8096",
			Timeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			LibrarySchedule: "0 3 * * 0", // Sunday 3am
			WatchedSchedule: "0 4 * * *",
			PingInterval:    5 * time.Minute,
		},
		Queue: QueueConfig{
			MaxBatchSize:  200,
			FlushInterval: 30 * time.Second,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8417,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "/data/scrobblarr.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks structural constraints and profile well-formedness.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	for i := range c.Profiles {
		p := &c.Profiles[i]
		if p.Username == "" {
			return fmt.Errorf("profile %d: username is required", i)
		}
		if _, err := uuid.Parse(p.LinkedUserID); err != nil {
			return fmt.Errorf("profile %d (%s): linked_user_id is not a valid UUID: %w", i, p.Username, err)
		}
	}
	return nil
}
