package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "STAGEHAND_"

// LookupFunc reads an environment variable; os.LookupEnv fits.
type LookupFunc func(key string) (string, bool)

type envSetter func(c *Config, value string) error

// envMapping maps environment variables to the setting they override.
var envMapping = map[string]envSetter{
	"STAGEHAND_LOG_LEVEL":            str(func(c *Config) *string { return &c.Log.Level }),
	"STAGEHAND_LOG_FORMAT":           str(func(c *Config) *string { return &c.Log.Format }),
	"STAGEHAND_LOG_FILE":             str(func(c *Config) *string { return &c.Log.File }),
	"STAGEHAND_DIFF_CACHE_SIZE":      integer(func(c *Config) *int { return &c.Cache.DiffCacheSize }),
	"STAGEHAND_WATCHER_ENABLED":      boolean(func(c *Config) *bool { return &c.Watcher.Enabled }),
	"STAGEHAND_WATCHER_DEBOUNCE_MS":  integer(func(c *Config) *int { return &c.Watcher.DebounceMS }),
	"STAGEHAND_WATCHER_BUFFER_SIZE":  integer(func(c *Config) *int { return &c.Watcher.BufferSize }),
	"STAGEHAND_WATCHER_IGNORE":       list(func(c *Config) *[]string { return &c.Watcher.IgnorePatterns }),
	"STAGEHAND_SHOW_IGNORED":         boolean(func(c *Config) *bool { return &c.Status.ShowIgnored }),
	"STAGEHAND_RECURSE_UNTRACKED":    boolean(func(c *Config) *bool { return &c.Status.RecurseUntracked }),
	"STAGEHAND_CONTEXT_LINES":        integer(func(c *Config) *int { return &c.Status.ContextLines }),
	"STAGEHAND_QUEUE_BUFFER_SIZE":    integer(func(c *Config) *int { return &c.Queue.BufferSize }),
	"STAGEHAND_CONFIG_DEBOUNCE_MS":   integer(func(c *Config) *int { return &c.Watcher.ConfigDebounceMS }),
	"STAGEHAND_RECREATE_INTERVAL_MS": integer(func(c *Config) *int { return &c.Watcher.RecreateIntervalMS }),
}

// EnvVars lists the supported environment variables, sorted.
func EnvVars() []string {
	names := make([]string, 0, len(envMapping))
	for name := range envMapping {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyEnv overrides settings from environment variables read through
// lookup. Note: an empty string is a value, not an unset variable.
func ApplyEnv(c *Config, lookup LookupFunc) error {
	for _, name := range EnvVars() {
		value, ok := lookup(name)
		if !ok {
			continue
		}
		if err := envMapping[name](c, value); err != nil {
			return fmt.Errorf("environment %s: %w", name, err)
		}
	}
	return nil
}

func str(field func(*Config) *string) envSetter {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func integer(field func(*Config) *int) envSetter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolean(field func(*Config) *bool) envSetter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

// list splits a comma separated value, dropping empty items.
func list(field func(*Config) *[]string) envSetter {
	return func(c *Config, v string) error {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*field(c) = out
		return nil
	}
}
