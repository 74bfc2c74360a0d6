package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type config struct {
	Addr            string
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Count           int
	LogLevel        string
}

func defaultConfig() config {
	return config{
		Addr:            "127.0.0.1:12345",
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 0,
		Count:           3,
		LogLevel:        "info",
	}
}

type fileConfig struct {
	Addr            string `toml:"addr" yaml:"addr"`
	WriteTimeout    string `toml:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	Count           int    `toml:"count" yaml:"count"`
	LogLevel        string `toml:"log_level" yaml:"log_level"`
}

// loadConfig overlays the keys present in path onto the defaults.
// An empty path yields the defaults. Files ending in .yaml or .yml are read
// as YAML, anything else as TOML.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	var (
		raw     fileConfig
		defined func(key string) bool
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		defined, err = decodeYAML(path, &raw)
	default:
		defined, err = decodeTOML(path, &raw)
	}
	if err != nil {
		return config{}, errors.Wrapf(err, "load config %s", path)
	}

	if defined("addr") {
		if addr := strings.TrimSpace(raw.Addr); addr != "" {
			cfg.Addr = addr
		}
	}

	if defined("write_timeout") {
		d, err := parseDuration("write_timeout", raw.WriteTimeout)
		if err != nil {
			return config{}, err
		}
		cfg.WriteTimeout = d
	}

	if defined("shutdown_timeout") {
		d, err := parseDuration("shutdown_timeout", raw.ShutdownTimeout)
		if err != nil {
			return config{}, err
		}
		cfg.ShutdownTimeout = d
	}

	if defined("count") {
		if raw.Count < 1 {
			return config{}, errors.Errorf("count must be positive, got %d", raw.Count)
		}
		cfg.Count = raw.Count
	}

	if defined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	return cfg, nil
}

func decodeTOML(path string, raw *fileConfig) (func(string) bool, error) {
	meta, err := toml.DecodeFile(path, raw)
	if err != nil {
		return nil, err
	}
	return func(key string) bool { return meta.IsDefined(key) }, nil
}

func decodeYAML(path string, raw *fileConfig) (func(string) bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	keys := map[string]any{}
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, raw); err != nil {
		return nil, err
	}
	return func(key string) bool {
		_, ok := keys[key]
		return ok
	}, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	if d < 0 {
		return 0, errors.Errorf("%s must not be negative, got %s", key, d)
	}
	return d, nil
}
