package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - BM_CONFIG_PATH: config file location (default: ~/.config/bm.toml)
//   - BM_HOME: base directory for bm data (default: ~/.local/share/bm)
//   - BM_LOG_LEVEL: minimum level written to the log file (default: info)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"log_level":   getLogLevel(),
	}, nil
}

// getConfigPath returns the config file path, checking BM_CONFIG_PATH env var first,
// then falling back to the default ~/.config/bm.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("BM_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "bm.toml"), nil
}

// getBaseDir returns the base directory for bm data, checking BM_HOME env var first,
// then falling back to the XDG default ~/.local/share/bm.
func getBaseDir() (string, error) {
	if path := os.Getenv("BM_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "bm"), nil
}

func getLogLevel() string {
	if level := os.Getenv("BM_LOG_LEVEL"); level != "" {
		return level
	}
	return "info"
}
