// Package config loads the engine's on-disk configuration: where the
// catalog and data/index files live, and the optional schedule for
// sgbdctl's maintenance "compact" job.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CompactConfig configures the cmd/sgbdctl compact maintenance job.
// Schedule uses robfig/cron/v3's seconds-enabled syntax (e.g.
// "0 */15 * * * *" for every 15 minutes); an empty Schedule means
// "run compact once and exit" rather than scheduling anything.
type CompactConfig struct {
	Schedule string `yaml:"schedule"`
}

// EngineConfig is the engine's top-level configuration. Page size is
// not configurable: it is fixed at 4096 bytes per spec.md §3.
type EngineConfig struct {
	DataDir string        `yaml:"data_dir"`
	Compact CompactConfig `yaml:"compact"`
}

// Default returns the configuration used when no file is supplied.
func Default() EngineConfig {
	return EngineConfig{DataDir: "./data"}
}

// Load reads and parses an EngineConfig from a YAML file at path.
func Load(path string) (EngineConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	return cfg, nil
}
