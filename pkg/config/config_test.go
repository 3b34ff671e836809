package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.KDFIterations != DefaultIterations {
		t.Errorf("KDFIterations = %d, want %d", cfg.KDFIterations, DefaultIterations)
	}
	if cfg.SessionTimeout != DefaultSessionTimeout {
		t.Errorf("SessionTimeout = %d, want %d", cfg.SessionTimeout, DefaultSessionTimeout)
	}
	if cfg.ClipboardClear != DefaultClipboardClear {
		t.Errorf("ClipboardClear = %d, want %d", cfg.ClipboardClear, DefaultClipboardClear)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "session_timeout: 300\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionTimeout != 300 {
		t.Errorf("SessionTimeout = %d, want 300", cfg.SessionTimeout)
	}
	if cfg.KDFIterations != DefaultIterations {
		t.Errorf("KDFIterations = %d, want default %d", cfg.KDFIterations, DefaultIterations)
	}
}

func TestLoadClampsOutOfRangeValues(t *testing.T) {
	path := writeConfig(t, "kdf_iterations: 1000\nsession_timeout: 999999\nclipboard_clear: -5\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.KDFIterations != MinIterations {
		t.Errorf("KDFIterations = %d, want floor %d", cfg.KDFIterations, MinIterations)
	}
	if cfg.SessionTimeout != MaxSessionTimeout {
		t.Errorf("SessionTimeout = %d, want ceiling %d", cfg.SessionTimeout, MaxSessionTimeout)
	}
	if cfg.ClipboardClear != 0 {
		t.Errorf("ClipboardClear = %d, want 0", cfg.ClipboardClear)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "kdf_iterations: [not a number\n")
	if _, err := Load(path); err == nil {
		t.Error("Load() accepted malformed YAML")
	}
}

func TestLoadVaultDirOverride(t *testing.T) {
	path := writeConfig(t, "vault_dir: /srv/vecna\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.VaultDir != "/srv/vecna" {
		t.Errorf("VaultDir = %q, want /srv/vecna", cfg.VaultDir)
	}
}
