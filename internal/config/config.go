// Package config loads stagehand settings from a TOML or YAML file,
// applies STAGEHAND_ environment overrides and validates the result.
//
// Precedence, lowest first:
//
//	built-in defaults
//	config file (.stagehand.toml, .stagehand.yaml or the user config dir)
//	environment variables
package config

import "time"

// Config is the complete stagehand configuration.
type Config struct {
	Log     LogConfig     `toml:"log" yaml:"log"`
	Cache   CacheConfig   `toml:"cache" yaml:"cache"`
	Watcher WatcherConfig `toml:"watcher" yaml:"watcher"`
	Status  StatusConfig  `toml:"status" yaml:"status"`
	Queue   QueueConfig   `toml:"queue" yaml:"queue"`
}

// LogConfig controls logging output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" yaml:"level" validate:"loglevel"`

	// Format is console or json.
	Format string `toml:"format" yaml:"format" validate:"logformat"`

	// File, when set, also writes logs to a rotated file.
	File string `toml:"file" yaml:"file"`

	MaxSizeMB  int  `toml:"max_size_mb" yaml:"max_size_mb" validate:"min=1"`
	MaxBackups int  `toml:"max_backups" yaml:"max_backups" validate:"min=0"`
	MaxAgeDays int  `toml:"max_age_days" yaml:"max_age_days" validate:"min=0"`
	Compress   bool `toml:"compress" yaml:"compress"`
}

// CacheConfig sizes the caches.
type CacheConfig struct {
	// DiffCacheSize is the number of commit diffs kept per repository.
	DiffCacheSize int `toml:"diff_cache_size" yaml:"diff_cache_size" validate:"min=1"`
}

// WatcherConfig controls file system watching.
type WatcherConfig struct {
	Enabled            bool     `toml:"enabled" yaml:"enabled"`
	DebounceMS         int      `toml:"debounce_ms" yaml:"debounce_ms" validate:"min=0"`
	ConfigDebounceMS   int      `toml:"config_debounce_ms" yaml:"config_debounce_ms" validate:"min=0"`
	RecreateIntervalMS int      `toml:"recreate_interval_ms" yaml:"recreate_interval_ms" validate:"min=1"`
	BufferSize         int      `toml:"buffer_size" yaml:"buffer_size" validate:"min=1"`
	IgnorePatterns     []string `toml:"ignore_patterns" yaml:"ignore_patterns" validate:"dive,required"`
}

// Debounce returns DebounceMS as a duration. Zero means each watcher's
// own default.
func (w WatcherConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// ConfigDebounce returns ConfigDebounceMS as a duration.
func (w WatcherConfig) ConfigDebounce() time.Duration {
	return time.Duration(w.ConfigDebounceMS) * time.Millisecond
}

// RecreateInterval returns RecreateIntervalMS as a duration.
func (w WatcherConfig) RecreateInterval() time.Duration {
	return time.Duration(w.RecreateIntervalMS) * time.Millisecond
}

// StatusConfig sets defaults for status and diff queries.
type StatusConfig struct {
	ShowIgnored      bool `toml:"show_ignored" yaml:"show_ignored"`
	RecurseUntracked bool `toml:"recurse_untracked" yaml:"recurse_untracked"`
	ContextLines     int  `toml:"context_lines" yaml:"context_lines" validate:"min=0"`
}

// QueueConfig sizes the per-repository task queue.
type QueueConfig struct {
	BufferSize int `toml:"buffer_size" yaml:"buffer_size" validate:"min=1"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Cache: CacheConfig{
			DiffCacheSize: 50,
		},
		Watcher: WatcherConfig{
			Enabled:            true,
			RecreateIntervalMS: 50,
			BufferSize:         100,
			IgnorePatterns:     []string{".git/"},
		},
		Status: StatusConfig{
			RecurseUntracked: true,
			ContextLines:     3,
		},
		Queue: QueueConfig{
			BufferSize: 64,
		},
	}
}
