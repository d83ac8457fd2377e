package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadFile loads configuration from a JSON or YAML file into c, following
// the teacher's LoadFromFile path-cleaning discipline. Unlike the
// teacher's stubbed-out YAML branch, this one actually parses YAML via
// gopkg.in/yaml.v3 — the teacher's own dependency, just never wired up
// for this purpose. File settings override environment variables but are
// themselves overridden by functional options applied after LoadFile.
func (c *Config) LoadFile(path string) error {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %q", ext)
	}

	if !filepath.IsAbs(cleanPath) {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		cleanPath = filepath.Join(wd, cleanPath)
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- path cleaned above
	if err != nil {
		return fmt.Errorf("read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse JSON config file %s: %w", cleanPath, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse YAML config file %s: %w", cleanPath, err)
		}
	}
	return nil
}

// WithConfigFile returns an Option that loads path via LoadFile. Applying
// it earlier in the Option list than other With* options lets the file
// set broad defaults while still letting later options override specific
// fields (teacher's WithConfigFile pattern).
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFile(path)
	}
}
