package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown fields are rejected so typos surface at load time instead of
// silently falling back to defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Fields left empty are not errors; flags may still supply them.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.ServerURL != "" {
		u, err := url.Parse(cfg.ServerURL)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("server_url %q is not a valid URL: %v", cfg.ServerURL, err))
		case u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss":
			errs = append(errs, fmt.Errorf("server_url scheme %q is not supported; use http, https, ws or wss", u.Scheme))
		case u.Host == "":
			errs = append(errs, fmt.Errorf("server_url %q has no host", cfg.ServerURL))
		}
	} else {
		slog.Warn("server_url is not set; the -server flag must supply it")
	}

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.Audio.Backend != "" && !cfg.Audio.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: auto, miniaudio, portaudio", cfg.Audio.Backend))
	}
	if cfg.Audio.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must not be negative", cfg.Audio.FrameSize))
	}
	if fs := cfg.Audio.FrameSize; fs > 0 && fs < 160 {
		slog.Warn("audio.frame_size is below 10ms of audio; expect heavy envelope overhead", "frame_size", fs)
	}

	return errors.Join(errs...)
}
