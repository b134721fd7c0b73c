package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("BM_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("BM_HOME", "/custom/bm")
		t.Setenv("BM_LOG_LEVEL", "debug")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/config.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/config.toml")
		}
		if defaults["base_dir"] != "/custom/bm" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/custom/bm")
		}
		if defaults["log_dir"] != "/custom/bm/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/custom/bm/log")
		}
		if defaults["log_level"] != "debug" {
			t.Errorf("log_level = %q, want %q", defaults["log_level"], "debug")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("BM_CONFIG_PATH", "")
		t.Setenv("BM_HOME", "")
		t.Setenv("BM_LOG_LEVEL", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "bm.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "bm")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}

		if defaults["log_level"] != "info" {
			t.Errorf("log_level = %q, want %q", defaults["log_level"], "info")
		}

		wantLog := filepath.Join(wantBase, "log")
		if defaults["log_dir"] != wantLog {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], wantLog)
		}
	})
}
