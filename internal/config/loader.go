package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileNames are the per-repository config files Discover looks for, in
// order.
var FileNames = []string{".stagehand.toml", ".stagehand.yaml", ".stagehand.yml"}

// Load reads the config file at path onto the defaults, applies
// environment overrides and validates the result. An empty path skips
// the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%s: %w", path, ErrFileNotFound)
			}
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := Decode(path, data, cfg); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses data onto cfg, choosing the format from the extension of
// path. Keys not present in data keep their current values; unknown keys
// are errors.
func Decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return decodeTOML(path, data, cfg)
	case ".yaml", ".yml":
		return decodeYAML(path, data, cfg)
	default:
		return fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

func decodeTOML(path string, data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	err := dec.Decode(cfg)
	if err == nil {
		return nil
	}

	perr := &ParseError{Path: path, Message: err.Error(), Err: err}
	var strict *toml.StrictMissingError
	var derr *toml.DecodeError
	switch {
	case errors.As(err, &strict) && len(strict.Errors) > 0:
		perr.Line, perr.Column = strict.Errors[0].Position()
		perr.Message = "unknown key " + strings.Join(strict.Errors[0].Key(), ".")
	case errors.As(err, &derr):
		perr.Line, perr.Column = derr.Position()
	}
	return perr
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

func decodeYAML(path string, data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err := dec.Decode(cfg)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	perr := &ParseError{Path: path, Message: err.Error(), Err: err}
	var terr *yaml.TypeError
	if errors.As(err, &terr) && len(terr.Errors) > 0 {
		perr.Message = terr.Errors[0]
	}
	if m := yamlLine.FindStringSubmatch(perr.Message); m != nil {
		perr.Line, _ = strconv.Atoi(m[1])
	}
	return perr
}

// Discover returns the config file for a working tree: the first of
// FileNames found in workdir, then in the user config directory. It
// returns "" when there is none.
func Discover(workdir string) string {
	dirs := []string{workdir}
	if dir := userConfigDir(); dir != "" {
		dirs = append(dirs, dir)
	}
	for _, dir := range dirs {
		for _, name := range FileNames {
			p := filepath.Join(dir, name)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p
			}
		}
	}
	return ""
}

// userConfigDir returns $XDG_CONFIG_HOME/stagehand or the platform
// equivalent.
func userConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "stagehand")
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "stagehand")
}
