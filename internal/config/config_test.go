package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func withTestDefaults(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	origConfigPath := getConfigPath
	origDataDir := getDefaultDataDir
	origInstanceID := generateInstanceID
	getConfigPath = func() (string, error) { return filepath.Join(dir, "config.yaml"), nil }
	getDefaultDataDir = func() string { return filepath.Join(dir, "data") }
	generateInstanceID = func() string { return "test-instance" }
	t.Cleanup(func() {
		getConfigPath = origConfigPath
		getDefaultDataDir = origDataDir
		generateInstanceID = origInstanceID
	})
	return dir
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := withTestDefaults(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InstanceID != "test-instance" {
		t.Errorf("InstanceID = %q", cfg.InstanceID)
	}
	if cfg.MaxEntries != 100 || cfg.PreviewLength != 200 {
		t.Errorf("defaults = %d entries, %d preview", cfg.MaxEntries, cfg.PreviewLength)
	}
	if !cfg.PersistPinned || cfg.MonitorOnly {
		t.Errorf("defaults: persist=%v monitor=%v", cfg.PersistPinned, cfg.MonitorOnly)
	}
	if cfg.CaptureTimeout() != 5*time.Second {
		t.Errorf("CaptureTimeout = %v", cfg.CaptureTimeout())
	}

	// The default file was written and loads back.
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("config file not created: %v", err)
	}
	again, err := Load("")
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if again.InstanceID != cfg.InstanceID {
		t.Errorf("reloaded InstanceID = %q, want %q", again.InstanceID, cfg.InstanceID)
	}
}

func TestLoadParsesFile(t *testing.T) {
	dir := withTestDefaults(t)
	path := filepath.Join(dir, "custom.yaml")
	content := []byte(`
instance_id: abc123
max_entries: 25
monitor_only: true
capture_timeout: 1500
log_level: debug
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InstanceID != "abc123" || cfg.MaxEntries != 25 || !cfg.MonitorOnly {
		t.Errorf("parsed config = %+v", cfg)
	}
	if cfg.CaptureTimeout() != 1500*time.Millisecond {
		t.Errorf("CaptureTimeout = %v", cfg.CaptureTimeout())
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	// Fields absent from the file keep their defaults.
	if cfg.PreviewLength != 200 {
		t.Errorf("PreviewLength = %d, want default", cfg.PreviewLength)
	}
}

func TestEnvOverrides(t *testing.T) {
	withTestDefaults(t)
	t.Setenv("CURSORCLIP_MAX_ENTRIES", "7")
	t.Setenv("CURSORCLIP_MONITOR_ONLY", "true")
	t.Setenv("CURSORCLIP_SOCKET", "/tmp/custom.sock")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxEntries != 7 {
		t.Errorf("MaxEntries = %d, want 7", cfg.MaxEntries)
	}
	if !cfg.MonitorOnly {
		t.Error("MonitorOnly not overridden")
	}
	if cfg.SocketPath != "/tmp/custom.sock" {
		t.Errorf("SocketPath = %q", cfg.SocketPath)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := withTestDefaults(t)
	cfg := DefaultConfig()
	cfg.MaxEntries = 42
	path := filepath.Join(dir, "nested", "config.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.MaxEntries != 42 {
		t.Errorf("MaxEntries = %d, want 42", loaded.MaxEntries)
	}
}

func TestDBPath(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/cursorclip"}
	if got := cfg.DBPath(); got != "/var/lib/cursorclip/cursorclip.db" {
		t.Errorf("DBPath = %q", got)
	}
}
