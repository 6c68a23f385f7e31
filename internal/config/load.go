package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// candidateNames are the four recognised config file names, searched in
// this order at the watch root.
var candidateNames = []string{
	".cartograph.toml",
	"cartograph.toml",
	filepath.Join(".config", "cartograph.toml"),
	filepath.Join(".cartograph", "config.toml"),
}

// Load searches watchDir for a recognised config file, parses it over
// DefaultConfig, validates the result, and returns it along with the
// path that was used (empty if none was found and defaults applied).
func Load(watchDir string, logger *slog.Logger) (*Config, string, error) {
	cfg := DefaultConfig()
	cfg.WatchDir = watchDir

	var foundPath string

	for _, name := range candidateNames {
		candidate := filepath.Join(watchDir, name)

		if _, err := os.Stat(candidate); err != nil {
			continue
		}

		foundPath = candidate

		break
	}

	if foundPath == "" {
		logger.Debug("no config file found, using defaults", slog.String("watch_dir", watchDir))

		if err := cfg.Validate(); err != nil {
			return nil, "", err
		}

		return cfg, "", nil
	}

	if _, err := toml.DecodeFile(foundPath, cfg); err != nil {
		return nil, "", fmt.Errorf("loading config %s: %w", foundPath, err)
	}

	cfg.WatchDir = watchDir

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("loading config %s: %w", foundPath, err)
	}

	logger.Debug("config loaded", slog.String("path", foundPath))

	return cfg, foundPath, nil
}
